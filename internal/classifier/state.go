package classifier

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrIncompatibleState reports a snapshot that cannot back a detector.
var ErrIncompatibleState = errors.New("classifier: incompatible model state")

// State is the serialisable form of a fitted LOF. It carries everything a
// novelty query needs so loading never refits.
type State struct {
	Neighbors             int         `json:"n_neighbors"`
	Contamination         float64     `json:"contamination"`
	Offset                float64     `json:"offset"`
	Points                [][]float64 `json:"fit_x"`
	KDistance             []float64   `json:"k_distance"`
	LRD                   []float64   `json:"lrd"`
	NegativeOutlierFactor []float64   `json:"negative_outlier_factor"`
}

// State snapshots the fitted detector.
func (m *LOF) State() State {
	points := make([][]float64, len(m.points))
	for i, p := range m.points {
		points[i] = slices.Clone(p)
	}
	return State{
		Neighbors:             m.neighbors,
		Contamination:         m.contamination,
		Offset:                m.offset,
		Points:                points,
		KDistance:             slices.Clone(m.kDistance),
		LRD:                   slices.Clone(m.lrd),
		NegativeOutlierFactor: slices.Clone(m.negativeOutlierFactor),
	}
}

// FromState rebuilds a detector from a snapshot, checking that the arrays are
// mutually consistent.
func FromState(s State) (*LOF, error) {
	n := len(s.Points)
	if n < 2 {
		return nil, fmt.Errorf("%w: %d training points", ErrIncompatibleState, n)
	}
	if s.Neighbors < 1 || s.Neighbors > n-1 {
		return nil, fmt.Errorf("%w: n_neighbors %d for %d points", ErrIncompatibleState, s.Neighbors, n)
	}
	if len(s.KDistance) != n || len(s.LRD) != n || len(s.NegativeOutlierFactor) != n {
		return nil, fmt.Errorf("%w: per-point arrays do not match %d points", ErrIncompatibleState, n)
	}
	if math.IsNaN(s.Offset) || math.IsInf(s.Offset, 0) {
		return nil, fmt.Errorf("%w: offset is not finite", ErrIncompatibleState)
	}
	dim := len(s.Points[0])
	points := make([][]float64, n)
	for i, p := range s.Points {
		if len(p) != dim || dim == 0 || !finite(p) {
			return nil, fmt.Errorf("%w: training point %d", ErrIncompatibleState, i)
		}
		points[i] = slices.Clone(p)
	}
	for i := range n {
		if !(s.LRD[i] > 0) || math.IsInf(s.LRD[i], 0) {
			return nil, fmt.Errorf("%w: lrd of point %d", ErrIncompatibleState, i)
		}
	}
	return &LOF{
		neighbors:             s.Neighbors,
		contamination:         s.Contamination,
		points:                points,
		kDistance:             slices.Clone(s.KDistance),
		lrd:                   slices.Clone(s.LRD),
		negativeOutlierFactor: slices.Clone(s.NegativeOutlierFactor),
		offset:                s.Offset,
	}, nil
}
