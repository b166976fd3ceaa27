package worker

import (
	"context"

	audit "casegate/pkg/platform/audit"
)

// Handler persists one event. Its errors are its own to report; the worker
// keeps draining.
type Handler func(ctx context.Context, event audit.Event) error

// Worker drains an event channel into a Handler.
type Worker struct {
	handle Handler
	inbox  <-chan audit.Event
}

func NewWorker(handle Handler, inbox <-chan audit.Event) *Worker {
	return &Worker{handle: handle, inbox: inbox}
}

// Run returns nil once inbox is closed and drained, or ctx.Err() when ctx is
// cancelled first.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			_ = w.handle(ctx, event)
		}
	}
}
