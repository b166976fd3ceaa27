package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/net/websocket"

	"casegate/internal/classifier"
	"casegate/internal/classifier/classifiertest"
	"casegate/internal/intake/handler"
	"casegate/internal/intake/metrics"
	"casegate/internal/intake/models"
	"casegate/internal/intake/service"
	"casegate/internal/intake/store"
	dErrors "casegate/pkg/domain-errors"
	audit "casegate/pkg/platform/audit"
	"casegate/pkg/platform/audit/publisher"
	"casegate/pkg/platform/audit/store/memory"
	authmw "casegate/pkg/platform/middleware/auth"
	"casegate/pkg/testutil"
)

const anaFingerprint = "3e9df2e41a2cc9bdc8bc8d0f86763ddb"

type testFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type testError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

type HandlerSuite struct {
	suite.Suite
	store    *store.InMemory
	audit    *memory.InMemoryStore
	registry *prometheus.Registry
	server   *httptest.Server
}

func (s *HandlerSuite) SetupTest() {
	ctx := context.Background()
	s.store = store.NewInMemory()
	_, err := store.SeedCrises(ctx, s.store, store.DefaultCrises)
	s.Require().NoError(err)

	model, err := classifier.Fit(classifiertest.Corpus(400), classifier.DefaultConfig())
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.registry = prometheus.NewRegistry()
	m := metrics.New(s.registry)
	s.audit = memory.NewInMemoryStore()
	svc := service.New(s.store, model,
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithAuditPublisher(publisher.NewPublisher(s.audit, publisher.WithLogger(logger))),
	)

	h := handler.New(svc,
		handler.WithLogger(logger),
		handler.WithMetrics(m),
		handler.WithGatherer(s.registry),
		handler.WithHealthCheck("store", s.store),
	)
	r := chi.NewRouter()
	h.Register(r)
	s.server = httptest.NewServer(r)
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func dial(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	conn, err := dialURL(serverURL, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialURL(serverURL, query string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws" + query
	return websocket.Dial(wsURL, "", serverURL)
}

func send(t *testing.T, conn *websocket.Conn, frameType, requestID string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, websocket.JSON.Send(conn, testFrame{Type: frameType, RequestID: requestID, Payload: raw}))
}

func receive(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	var frame testFrame
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	return frame
}

func verification(t *testing.T, frame testFrame) handler.VerificationResponse {
	t.Helper()
	require.Equal(t, handler.EventVerification, frame.Type, string(frame.Payload))
	var out handler.VerificationResponse
	require.NoError(t, json.Unmarshal(frame.Payload, &out))
	return out
}

func frameError(t *testing.T, frame testFrame) testError {
	t.Helper()
	require.Equal(t, handler.EventError, frame.Type)
	var out testError
	require.NoError(t, json.Unmarshal(frame.Payload, &out))
	return out
}

func anaPayload(categories, amount string) map[string]string {
	return map[string]string{
		"FN": "Ana", "LN": "Li", "DOB": "1990-01-01", "COO": "SYR",
		"CCC": "1", "RAT": categories, "AMO": amount,
	}
}

func (s *HandlerSuite) TestSubmitOverWebsocket() {
	t := s.T()
	conn := dial(t, s.server.URL)

	testutil.Given(t, "an empty store with crisis 1", func(t *testing.T) {
		testutil.When(t, "a new inlier case is submitted", func(t *testing.T) {
			send(t, conn, handler.EventSubmit, "req-1", anaPayload("FO,WA", "120.00"))
			frame := receive(t, conn)

			testutil.Then(t, "the case is accepted and persisted", func(t *testing.T) {
				assert.Equal(t, "req-1", frame.RequestID)
				assert.Equal(t, handler.VerificationResponse{Data: anaFingerprint, New: "T"}, verification(t, frame))
				n, err := s.store.CountRecords(context.Background())
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})
		})

		testutil.When(t, "the same identity is submitted again", func(t *testing.T) {
			send(t, conn, handler.EventSubmit, "req-2", anaPayload("FO", "150.00"))
			frame := receive(t, conn)

			testutil.Then(t, "it is reported as a duplicate", func(t *testing.T) {
				assert.Equal(t, handler.VerificationResponse{Data: anaFingerprint, New: "F"}, verification(t, frame))
			})
		})

		testutil.When(t, "an outlier request is submitted", func(t *testing.T) {
			payload := anaPayload("FO,TH,CE,WA,SA,RE", "50000.00")
			payload["FN"] = "Omar"
			send(t, conn, handler.EventSubmit, "", payload)
			frame := receive(t, conn)

			testutil.Then(t, "it is rejected with the sentinel fingerprint", func(t *testing.T) {
				assert.NotEmpty(t, frame.RequestID)
				assert.Equal(t, handler.VerificationResponse{Data: models.SentinelFingerprint, New: "P"}, verification(t, frame))
				n, err := s.store.CountRecords(context.Background())
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})
		})
	})
}

func (s *HandlerSuite) TestMalformedPayloadKeepsConnection() {
	t := s.T()
	conn := dial(t, s.server.URL)

	payload := anaPayload("FO", "120.00")
	delete(payload, "DOB")
	send(t, conn, handler.EventSubmit, "bad-1", payload)
	got := frameError(t, receive(t, conn))
	assert.Equal(t, string(dErrors.CodeValidation), got.Error.Code)
	assert.Equal(t, "DOB is required", got.Error.Message)
	assert.False(t, got.Error.Retryable)

	send(t, conn, handler.EventSubmit, "good-1", anaPayload("FO", "120.00"))
	assert.Equal(t, "T", verification(t, receive(t, conn)).New)
}

func (s *HandlerSuite) TestRejectedPayloadsAreAudited() {
	t := s.T()
	conn := dial(t, s.server.URL)

	noDOB := anaPayload("FO", "120.00")
	delete(noDOB, "DOB")
	payloads := map[string]map[string]string{
		"no-dob":       noDOB,
		"bad-category": anaPayload("FO,XX", "120.00"),
		"bad-amount":   anaPayload("FO", "abc"),
	}
	for requestID, payload := range payloads {
		send(t, conn, handler.EventSubmit, requestID, payload)
		got := frameError(t, receive(t, conn))
		assert.Equal(t, string(dErrors.CodeValidation), got.Error.Code, requestID)
	}
	send(t, conn, handler.EventSubmit, "not-an-object", []int{1})
	frameError(t, receive(t, conn))

	events, err := s.audit.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 4)
	seen := make(map[string]bool, len(events))
	for _, event := range events {
		assert.Equal(t, audit.ActionIntakeFailed, event.Action)
		assert.NotEmpty(t, event.Reason)
		seen[event.RequestID] = true
	}
	assert.Equal(t, map[string]bool{
		"no-dob": true, "bad-category": true, "bad-amount": true, "not-an-object": true,
	}, seen)
}

func (s *HandlerSuite) TestPayloadWithWrongShape() {
	t := s.T()
	conn := dial(t, s.server.URL)

	send(t, conn, handler.EventSubmit, "shape", []string{"not", "an", "object"})
	got := frameError(t, receive(t, conn))
	assert.Equal(t, string(dErrors.CodeBadRequest), got.Error.Code)
}

func (s *HandlerSuite) TestUnknownCrisis() {
	t := s.T()
	conn := dial(t, s.server.URL)

	payload := anaPayload("FO", "120.00")
	payload["CCC"] = "99"
	send(t, conn, handler.EventSubmit, "missing", payload)
	got := frameError(t, receive(t, conn))
	assert.Equal(t, string(dErrors.CodeNotFound), got.Error.Code)
}

func (s *HandlerSuite) TestUnsupportedFrameType() {
	t := s.T()
	conn := dial(t, s.server.URL)

	send(t, conn, "chat.send", "x", map[string]string{})
	got := frameError(t, receive(t, conn))
	assert.Equal(t, string(dErrors.CodeBadRequest), got.Error.Code)
	assert.Equal(t, "unsupported frame type", got.Error.Message)
}

func (s *HandlerSuite) TestInvalidFramesCloseConnection() {
	t := s.T()
	conn := dial(t, s.server.URL)

	for i := 0; i < 5; i++ {
		require.NoError(t, websocket.Message.Send(conn, "{not json"))
		got := frameError(t, receive(t, conn))
		assert.Equal(t, "invalid frame", got.Error.Message)
	}

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	var frame testFrame
	err := websocket.JSON.Receive(conn, &frame)
	assert.Error(t, err)
}

func (s *HandlerSuite) TestValidFrameResetsInvalidCount() {
	t := s.T()
	conn := dial(t, s.server.URL)

	for i := 0; i < 4; i++ {
		require.NoError(t, websocket.Message.Send(conn, "garbage"))
		frameError(t, receive(t, conn))
	}
	send(t, conn, handler.EventSubmit, "ok", anaPayload("FO", "120.00"))
	assert.Equal(t, "T", verification(t, receive(t, conn)).New)

	for i := 0; i < 4; i++ {
		require.NoError(t, websocket.Message.Send(conn, "garbage"))
		frameError(t, receive(t, conn))
	}
	send(t, conn, handler.EventSubmit, "dup", anaPayload("FO", "120.00"))
	assert.Equal(t, "F", verification(t, receive(t, conn)).New)
}

func (s *HandlerSuite) TestOversizedFrame() {
	t := s.T()
	conn := dial(t, s.server.URL)

	require.NoError(t, websocket.Message.Send(conn, strings.Repeat("x", 20*1024)))
	got := frameError(t, receive(t, conn))
	assert.Equal(t, "payload too large", got.Error.Message)

	send(t, conn, handler.EventSubmit, "after", anaPayload("FO", "120.00"))
	assert.Equal(t, "T", verification(t, receive(t, conn)).New)
}

func (s *HandlerSuite) TestHealth() {
	resp, err := http.Get(s.server.URL + "/health")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	var body map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("ok", body["status"])
	s.Equal(map[string]any{"store": "ok"}, body["dependencies"])
}

func (s *HandlerSuite) TestMetrics() {
	conn := dial(s.T(), s.server.URL)
	send(s.T(), conn, handler.EventSubmit, "m", anaPayload("FO", "120.00"))
	receive(s.T(), conn)

	resp, err := http.Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(raw), "casegate_intake_outcomes_total")
}

func TestHealth_Degraded(t *testing.T) {
	h := handler.New(nil,
		handler.WithHealthCheck("redis", handler.HealthCheckFunc(func(context.Context) error {
			return errors.New("connection refused")
		})),
	)
	r := chi.NewRouter()
	h.Register(r)

	rr := testutil.DoRequest(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	body := *testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"redis": "unavailable"}, body["dependencies"])
}

type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	if token != "desk-token" {
		return nil, errors.New("invalid")
	}
	return &authmw.JWTClaims{Subject: "desk-7"}, nil
}

type stubService struct {
	outcome *models.Outcome
	err     error
}

func (s stubService) Submit(context.Context, models.Submission) (*models.Outcome, error) {
	return s.outcome, s.err
}

func (s stubService) Reject(_ context.Context, err error) error { return err }

func TestWebsocketAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.New(stubService{outcome: &models.Outcome{Fingerprint: anaFingerprint, Tag: models.TagNew}},
		handler.WithLogger(logger),
		handler.WithAuth(authmw.RequireAuth(staticValidator{}, logger)),
	)
	r := chi.NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	_, err := dialURL(srv.URL, "")
	assert.Error(t, err)

	_, err = dialURL(srv.URL, "?access_token=wrong")
	assert.Error(t, err)

	conn, err := dialURL(srv.URL, "?access_token=desk-token")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	send(t, conn, handler.EventSubmit, "auth", anaPayload("FO", "120.00"))
	assert.Equal(t, "T", verification(t, receive(t, conn)).New)
}

func TestStoreOutageIsRetryable(t *testing.T) {
	h := handler.New(stubService{err: dErrors.New(dErrors.CodeUnavailable, "failed to persist record")})
	r := chi.NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn := dial(t, srv.URL)
	send(t, conn, handler.EventSubmit, "outage", anaPayload("FO", "120.00"))
	got := frameError(t, receive(t, conn))
	assert.Equal(t, string(dErrors.CodeUnavailable), got.Error.Code)
	assert.True(t, got.Error.Retryable)
}

func TestConnectLimit(t *testing.T) {
	limitOne := func(next http.Handler) http.Handler {
		var seen atomic.Int32
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if seen.Add(1) > 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	h := handler.New(stubService{outcome: &models.Outcome{Fingerprint: anaFingerprint, Tag: models.TagNew}},
		handler.WithConnectLimit(limitOne),
	)
	r := chi.NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn := dial(t, srv.URL)
	send(t, conn, handler.EventSubmit, "first", anaPayload("FO", "120.00"))
	assert.Equal(t, "T", verification(t, receive(t, conn)).New)

	_, err := dialURL(srv.URL, "")
	assert.Error(t, err)
}
