package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"casegate/internal/intake/models"
	"casegate/pkg/platform/sentinel"
)

// InMemory keeps crises and records in process memory. The fingerprint index
// is checked under the write lock, so it enforces the same uniqueness as the
// PostgreSQL constraint.
type InMemory struct {
	mu            sync.RWMutex
	crises        map[int64]models.Crisis
	crisisOrder   []int64
	records       []models.Record
	byFingerprint map[string]int
	nextCrisisID  int64
	nextRecordID  int64
	clock         func() time.Time
}

// InMemoryOption configures an InMemory store.
type InMemoryOption func(*InMemory)

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemory) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		crises:        make(map[int64]models.Crisis),
		byFingerprint: make(map[string]int),
		clock:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemory) FindByFingerprint(_ context.Context, fingerprint string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	record := s.records[idx]
	return &record, nil
}

func (s *InMemory) FindCrisis(_ context.Context, id int64) (*models.Crisis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	crisis, ok := s.crises[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &crisis, nil
}

// Create assigns the record an ID and creation time and appends it. A second
// record with the same fingerprint fails with sentinel.ErrConflict.
func (s *InMemory) Create(_ context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byFingerprint[record.Fingerprint]; exists {
		return fmt.Errorf("record %s: %w", record.Fingerprint, sentinel.ErrConflict)
	}
	if _, ok := s.crises[record.CrisisID]; !ok {
		return fmt.Errorf("crisis %d: %w", record.CrisisID, sentinel.ErrNotFound)
	}

	s.nextRecordID++
	record.ID = s.nextRecordID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock()
	}
	s.records = append(s.records, *record)
	s.byFingerprint[record.Fingerprint] = len(s.records) - 1
	return nil
}

// ListRecords returns every record in ascending ID order.
func (s *InMemory) ListRecords(_ context.Context) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Record(nil), s.records...), nil
}

func (s *InMemory) CountRecords(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *InMemory) ListCrises(_ context.Context) ([]models.Crisis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Crisis, 0, len(s.crisisOrder))
	for _, id := range s.crisisOrder {
		out = append(out, s.crises[id])
	}
	return out, nil
}

func (s *InMemory) CreateCrisis(_ context.Context, crisis *models.Crisis) error {
	if crisis == nil {
		return fmt.Errorf("crisis is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCrisisID++
	crisis.ID = s.nextCrisisID
	s.crises[crisis.ID] = *crisis
	s.crisisOrder = append(s.crisisOrder, crisis.ID)
	return nil
}

func (s *InMemory) Health(_ context.Context) error {
	return nil
}
