// Package artifact persists fitted classifiers as a single opaque blob.
//
// A blob is snappy-compressed JSON holding a format tag, training metadata and
// the detector state. Blobs with an unknown format tag are refused.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"casegate/internal/classifier"
)

// Format identifies the blob layout written by this package.
const Format = "lof/v1"

// ErrIncompatible is returned for blobs that cannot be decoded into a detector.
var ErrIncompatible = errors.New("artifact: incompatible classifier artifact")

// Metadata describes how a model was trained.
type Metadata struct {
	TrainedAt      time.Time `json:"trained_at"`
	Threshold      string    `json:"threshold"`
	InlierRows     int       `json:"inlier_rows"`
	OutlierRows    int       `json:"outlier_rows"`
	CorpusRecords  int       `json:"corpus_records"`
	LabelAgreement float64   `json:"label_agreement"`
}

type envelope struct {
	Format   string           `json:"format"`
	Metadata Metadata         `json:"metadata"`
	Model    classifier.State `json:"model"`
}

// Encode serialises a fitted detector.
func Encode(m *classifier.LOF, meta Metadata) ([]byte, error) {
	if m == nil {
		return nil, errors.New("artifact: model is required")
	}
	raw, err := json.Marshal(envelope{Format: Format, Metadata: meta, Model: m.State()})
	if err != nil {
		return nil, fmt.Errorf("marshal classifier artifact: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode restores a detector and its metadata.
func Decode(blob []byte) (*classifier.LOF, Metadata, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if env.Format != Format {
		return nil, Metadata{}, fmt.Errorf("%w: format %q, want %q", ErrIncompatible, env.Format, Format)
	}
	m, err := classifier.FromState(env.Model)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if m.Dimensions() != 2 {
		return nil, Metadata{}, fmt.Errorf("%w: model has %d features, want 2", ErrIncompatible, m.Dimensions())
	}
	return m, env.Metadata, nil
}

// Store holds the current artifact blob.
type Store interface {
	Save(ctx context.Context, blob []byte) error
	// Load returns sentinel.ErrNotFound when no artifact has been saved.
	Load(ctx context.Context) ([]byte, error)
}

// Load fetches and decodes the current model from store.
func Load(ctx context.Context, store Store) (*classifier.LOF, Metadata, error) {
	blob, err := store.Load(ctx)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("load classifier artifact: %w", err)
	}
	return Decode(blob)
}

// Save encodes m and replaces the stored artifact.
func Save(ctx context.Context, store Store, m *classifier.LOF, meta Metadata) error {
	blob, err := Encode(m, meta)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, blob); err != nil {
		return fmt.Errorf("save classifier artifact: %w", err)
	}
	return nil
}
