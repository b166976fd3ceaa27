// Package trainer fits the intake anomaly classifier from the committed
// corpus and publishes it through an artifact store.
package trainer

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"casegate/internal/classifier"
	"casegate/internal/classifier/artifact"
	"casegate/internal/intake/models"
	dErrors "casegate/pkg/domain-errors"
)

// Label values attached to training rows.
const (
	LabelInlier  = 1
	LabelOutlier = -1
)

// DefaultThreshold separates ordinary requests from suspicious ones.
var DefaultThreshold = models.NewAmount(1000, 0)

var tracer = otel.Tracer("casegate/internal/classifier/trainer")

// Corpus supplies every committed record in ascending ID order.
type Corpus interface {
	ListRecords(ctx context.Context) ([]models.Record, error)
}

type Config struct {
	Threshold  models.Amount
	Classifier classifier.Config
}

func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, Classifier: classifier.DefaultConfig()}
}

// TrainingSet is the feature matrix handed to Fit with its ground-truth labels.
type TrainingSet struct {
	X      [][]float64
	Labels []int
}

// Report summarises one training run.
type Report struct {
	TrainedAt      time.Time
	CorpusRecords  int
	InlierRows     int
	OutlierRows    int
	Neighbors      int
	Offset         float64
	LabelAgreement float64
}

// Partition splits records by amount. A record whose amount equals the
// threshold lands in both sets.
func Partition(records []models.Record, threshold models.Amount) (inliers, outliers []models.Record) {
	for _, r := range records {
		if r.Amount <= threshold {
			inliers = append(inliers, r)
		}
		if r.Amount >= threshold {
			outliers = append(outliers, r)
		}
	}
	return inliers, outliers
}

// BuildTrainingSet stacks inlier rows before outlier rows.
func BuildTrainingSet(inliers, outliers []models.Record) TrainingSet {
	set := TrainingSet{
		X:      make([][]float64, 0, len(inliers)+len(outliers)),
		Labels: make([]int, 0, len(inliers)+len(outliers)),
	}
	for i := range inliers {
		set.X = append(set.X, inliers[i].Features().Slice())
		set.Labels = append(set.Labels, LabelInlier)
	}
	for i := range outliers {
		set.X = append(set.X, outliers[i].Features().Slice())
		set.Labels = append(set.Labels, LabelOutlier)
	}
	return set
}

// Trainer reads the corpus, fits a detector and saves it.
type Trainer struct {
	corpus Corpus
	store  artifact.Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Trainer)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trainer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Trainer) {
		if now != nil {
			t.now = now
		}
	}
}

func New(corpus Corpus, store artifact.Store, opts ...Option) *Trainer {
	t := &Trainer{
		corpus: corpus,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits a detector on the current corpus and replaces the stored
// artifact. Nothing is written when the corpus has fewer than two records.
func (t *Trainer) Train(ctx context.Context, cfg Config) (*Report, error) {
	ctx, span := tracer.Start(ctx, "trainer.Train")
	defer span.End()

	records, err := t.corpus.ListRecords(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read training corpus")
	}
	if len(records) < 2 {
		return nil, dErrors.New(dErrors.CodeValidation, "training corpus must contain at least two records")
	}

	inliers, outliers := Partition(records, cfg.Threshold)
	set := BuildTrainingSet(inliers, outliers)
	span.SetAttributes(
		attribute.Int("trainer.records", len(records)),
		attribute.Int("trainer.rows", len(set.X)),
	)

	model, err := classifier.Fit(set.X, cfg.Classifier)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "failed to fit classifier")
	}

	report := &Report{
		TrainedAt:      t.now().UTC(),
		CorpusRecords:  len(records),
		InlierRows:     len(inliers),
		OutlierRows:    len(outliers),
		Neighbors:      model.Neighbors(),
		Offset:         model.Offset(),
		LabelAgreement: agreement(model.TrainingVerdicts(), set.Labels),
	}

	meta := artifact.Metadata{
		TrainedAt:      report.TrainedAt,
		Threshold:      cfg.Threshold.String(),
		InlierRows:     report.InlierRows,
		OutlierRows:    report.OutlierRows,
		CorpusRecords:  report.CorpusRecords,
		LabelAgreement: report.LabelAgreement,
	}
	if err := artifact.Save(ctx, t.store, model, meta); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save classifier artifact")
	}

	t.logger.InfoContext(ctx, "classifier trained",
		"records", report.CorpusRecords,
		"inlier_rows", report.InlierRows,
		"outlier_rows", report.OutlierRows,
		"neighbors", report.Neighbors,
		"offset", report.Offset,
		"label_agreement", report.LabelAgreement,
	)
	return report, nil
}

// agreement is the share of rows whose fitted verdict matches their label.
func agreement(verdicts []classifier.Verdict, labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	match := 0
	for i, label := range labels {
		if int(verdicts[i]) == label {
			match++
		}
	}
	return float64(match) / float64(len(labels))
}
