package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "casegate/pkg/platform/audit"
	"casegate/pkg/platform/audit/publishers/ops"
	"casegate/pkg/platform/audit/worker"
)

var (
	// ErrBufferFull is returned by Emit in async mode when the buffer has no room.
	ErrBufferFull = errors.New("audit buffer full")
	// ErrCircuitOpen is returned when the sink is skipped after repeated failures.
	ErrCircuitOpen = errors.New("audit circuit open")
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("audit publisher closed")
)

const defaultPersistTimeout = 5 * time.Second

// Publisher writes audit events to a Store. In sync mode Emit writes inline;
// with WithAsyncBuffer a worker goroutine drains a bounded channel and Emit
// never blocks. A circuit breaker guards the store in both modes.
type Publisher struct {
	store          audit.Store
	logger         *slog.Logger
	metrics        *ops.Metrics
	breaker        *ops.CircuitBreaker
	clock          func() time.Time
	persistTimeout time.Duration
	bufferSize     int

	mu     sync.RWMutex
	closed bool
	events chan audit.Event
	done   chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a channel of the given capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *ops.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithCircuitBreaker(cb *ops.CircuitBreaker) Option {
	return func(p *Publisher) {
		if cb != nil {
			p.breaker = cb
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:          store,
		logger:         slog.Default(),
		breaker:        ops.NewCircuitBreaker(5, 30*time.Second),
		clock:          time.Now,
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.events = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(p.persistAsync, p.events)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit stamps the event with an ID and timestamp when missing and hands it to
// the store.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	if p.events == nil {
		return p.persist(ctx, event)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.events <- event:
		return nil
	default:
		p.metrics.IncBufferDropped()
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"fingerprint", event.Fingerprint,
		)
		return ErrBufferFull
	}
}

// Close stops accepting events and, in async mode, waits for the buffer to
// drain.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.events != nil {
		close(p.events)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}

func (p *Publisher) persistAsync(_ context.Context, event audit.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.persistTimeout)
	defer cancel()
	return p.persist(ctx, event)
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	if !p.breaker.Allow() {
		p.metrics.IncCircuitBreakerDropped()
		return ErrCircuitOpen
	}
	err := p.store.Append(ctx, event)
	if err != nil {
		p.breaker.RecordFailure()
		p.metrics.IncPersistFailures()
		p.logger.WarnContext(ctx, "failed to persist audit event",
			"action", event.Action,
			"fingerprint", event.Fingerprint,
			"error", err,
		)
	} else {
		p.breaker.RecordSuccess()
		p.metrics.IncTracked()
	}
	p.metrics.SetCircuitBreakerState(p.breaker.IsOpen())
	return err
}
