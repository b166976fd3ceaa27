// Package service runs intake submissions through fingerprinting, duplicate
// detection, anomaly screening and commit.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"

	"casegate/internal/classifier"
	"casegate/internal/intake/metrics"
	"casegate/internal/intake/models"
	audit "casegate/pkg/platform/audit"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Classifier,AuditPublisher

// Store is the persistence port of the intake pipeline.
type Store interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.Record, error)
	FindCrisis(ctx context.Context, id int64) (*models.Crisis, error)
	Create(ctx context.Context, record *models.Record) error
}

// Classifier screens a feature vector. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Classify(amount float64, categories int) classifier.Verdict
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

var tracer = otel.Tracer("casegate/internal/intake/service")

// Service orchestrates a submission from RECEIVED to a terminal state.
type Service struct {
	store          Store
	duplicates     *DuplicateChecker
	classifier     Classifier
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. The classifier handle is shared, read-only.
func New(store Store, clf Classifier, opts ...Option) *Service {
	s := &Service{
		store:      store,
		duplicates: NewDuplicateChecker(store),
		classifier: clf,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
