package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "casegate/pkg/platform/audit"
	"casegate/pkg/platform/audit/publishers/ops"
	"casegate/pkg/platform/audit/store/memory"
)

const fp = "3e9df2e41a2cc9bdc8bc8d0f86763ddb"

type failingStore struct {
	calls atomic.Int32
}

func (s *failingStore) Append(context.Context, audit.Event) error {
	s.calls.Add(1)
	return errors.New("sink down")
}

// blockingStore holds every Append until release is closed.
type blockingStore struct {
	release chan struct{}
	inner   *memory.InMemoryStore
}

func (s *blockingStore) Append(ctx context.Context, event audit.Event) error {
	<-s.release
	return s.inner.Append(ctx, event)
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: audit.ActionIntakeAccepted, Fingerprint: fp})
	require.NoError(t, err)

	events, err := store.ListByFingerprint(context.Background(), fp)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionIntakeAccepted, events[0].Action)
	assert.NotEqual(t, uuid.Nil, events[0].ID, "event id is assigned")
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionIntakeDuplicate, Fingerprint: fp}))
	}
	pub.Close()

	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull(t *testing.T) {
	blocked := &blockingStore{release: make(chan struct{}), inner: memory.NewInMemoryStore()}
	pub := NewPublisher(blocked, WithAsyncBuffer(1))

	var full int
	for range 5 {
		if errors.Is(pub.Emit(context.Background(), audit.Event{Action: audit.ActionIntakeAccepted}), ErrBufferFull) {
			full++
		}
	}
	assert.GreaterOrEqual(t, full, 3, "at most one event in flight plus one buffered")

	close(blocked.release)
	pub.Close()
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: audit.ActionIntakeAccepted})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_CancelledContext(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Emit(ctx, audit.Event{Action: audit.ActionIntakeAccepted}), context.Canceled)
}

func TestPublisher_Timestamps(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	custom := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionIntakeAccepted}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionIntakeFailed, Timestamp: custom}))

	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, custom, events[1].Timestamp)
}

func TestPublisher_CircuitBreakerStopsCallingFailingStore(t *testing.T) {
	store := &failingStore{}
	metrics := ops.NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(store,
		WithCircuitBreaker(ops.NewCircuitBreaker(2, time.Hour)),
		WithMetrics(metrics),
	)
	defer pub.Close()

	ctx := context.Background()
	assert.Error(t, pub.Emit(ctx, audit.Event{Action: audit.ActionIntakeAccepted}))
	assert.Error(t, pub.Emit(ctx, audit.Event{Action: audit.ActionIntakeAccepted}))
	assert.ErrorIs(t, pub.Emit(ctx, audit.Event{Action: audit.ActionIntakeAccepted}), ErrCircuitOpen)

	assert.Equal(t, int32(2), store.calls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.PersistFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CircuitBreakerDropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CircuitBreakerState))
}

func TestPublisher_ConcurrentEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(256))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{Action: audit.ActionIntakeAccepted})
		}()
	}
	wg.Wait()
	pub.Close()

	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 50)
}
