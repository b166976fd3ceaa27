package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"casegate/pkg/requestcontext"
	"casegate/pkg/testutil"
)

type stubValidator map[string]string

func (v stubValidator) ValidateToken(token string) (*JWTClaims, error) {
	subject, ok := v[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &JWTClaims{Subject: subject}, nil
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var subject string
	h := RequireAuth(stubValidator{"good": "desk-7"}, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = requestcontext.Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "desk-7", subject)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?access_token=good", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	for name, req := range map[string]*http.Request{
		"missing": httptest.NewRequest(http.MethodGet, "/ws", nil),
		"invalid": httptest.NewRequest(http.MethodGet, "/ws?access_token=bad", nil),
	} {
		t.Run(name, func(t *testing.T) {
			testutil.AssertStatusAndError(t, testutil.DoRequest(h, req), http.StatusUnauthorized, "unauthorized")
		})
	}
}
