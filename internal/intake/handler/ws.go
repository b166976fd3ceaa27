package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	dErrors "casegate/pkg/domain-errors"
	"casegate/pkg/requestcontext"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 5
	maxRequestIDLength     = 64
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// wsPeer serialises writes to one connection.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

func (p *wsPeer) writeReply(requestID string, reply *Reply) error {
	payload, err := json.Marshal(reply.Payload)
	if err != nil {
		return err
	}
	return p.writeFrame(wsFrame{Type: reply.Type, RequestID: requestID, Payload: payload})
}

func (p *wsPeer) writeError(requestID string, err error) error {
	payload, mErr := json.Marshal(toFrameError(err))
	if mErr != nil {
		return mErr
	}
	return p.writeFrame(wsFrame{Type: EventError, RequestID: requestID, Payload: payload})
}

// serveConn reads one JSON frame per websocket message and answers each
// before reading the next. Bad frames are answered with an error frame; the
// connection is dropped after maxDecodeErrorsPerConn consecutive ones or when
// the client exceeds maxFramesPerSecond.
func (h *Handler) serveConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	conn.MaxPayloadBytes = maxFramePayloadBytes

	base, remote := context.Background(), ""
	if req := conn.Request(); req != nil {
		base, remote = req.Context(), req.RemoteAddr
	}

	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()
	h.logger.DebugContext(base, "websocket connection opened", "remote", remote)

	peer := newWSPeer(json.NewEncoder(conn))
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				_ = peer.writeError("", dErrors.New(dErrors.CodeBadRequest, "payload too large"))
				continue
			}
			if !errors.Is(err, io.EOF) {
				h.logger.DebugContext(base, "websocket read failed", "error", err)
			}
			return
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = peer.writeError("", dErrors.New(dErrors.CodeBadRequest, "rate limit exceeded"))
			h.logger.WarnContext(base, "websocket frame rate exceeded; closing connection")
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
			decodeErrors++
			_ = peer.writeError("", dErrors.New(dErrors.CodeBadRequest, "invalid frame"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				h.logger.WarnContext(base, "too many invalid frames; closing connection")
				return
			}
			continue
		}
		decodeErrors = 0

		requestID := frame.RequestID
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(base, requestID)
		ctx = requestcontext.WithTime(ctx, now)

		reply, err := h.dispatcher.Dispatch(ctx, frame.Type, frame.Payload)
		if err != nil {
			if wErr := peer.writeError(requestID, err); wErr != nil {
				return
			}
			continue
		}
		if wErr := peer.writeReply(requestID, reply); wErr != nil {
			h.logger.WarnContext(ctx, "websocket write failed", "request_id", requestID, "error", wErr)
			return
		}
	}
}
