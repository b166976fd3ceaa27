package handler

import (
	"context"
	"encoding/json"
	"sync"

	dErrors "casegate/pkg/domain-errors"
)

// Reply is the frame a HandlerFunc sends back on success.
type Reply struct {
	Type    string
	Payload any
}

// HandlerFunc processes one inbound frame payload synchronously.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (*Reply, error)

// Dispatcher routes inbound frames to the handler registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register binds fn to event, replacing any earlier registration.
func (d *Dispatcher) Register(event string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = fn
}

func (d *Dispatcher) Dispatch(ctx context.Context, event string, payload json.RawMessage) (*Reply, error) {
	d.mu.RLock()
	fn, ok := d.handlers[event]
	d.mu.RUnlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported frame type")
	}
	return fn(ctx, payload)
}
