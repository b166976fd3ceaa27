// Package classifier implements the Local Outlier Factor novelty detector used
// to screen intake submissions.
//
// The model follows the usual LOF definitions. For a training point p with k
// nearest neighbours N(p):
//
//	reach(p, o) = max(kdist(o), d(p, o))
//	lrd(p)      = 1 / (mean_{o in N(p)} reach(p, o) + 1e-10)
//	lof(p)      = mean_{o in N(p)} lrd(o) / lrd(p)
//
// In novelty mode a query point is scored against the fitted training set only;
// its neighbourhood never includes other queries and the model is never updated.
package classifier

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// Verdict is the classification of a feature vector.
type Verdict int8

const (
	Outlier Verdict = -1
	Inlier  Verdict = 1
)

func (v Verdict) String() string {
	switch v {
	case Inlier:
		return "inlier"
	case Outlier:
		return "outlier"
	default:
		return fmt.Sprintf("verdict(%d)", int8(v))
	}
}

// densityEpsilon keeps lrd finite when a point has duplicate neighbours.
const densityEpsilon = 1e-10

// autoOffset is the decision threshold used when no contamination is given.
const autoOffset = -1.5

var (
	ErrTooFewSamples        = errors.New("classifier: at least two training samples are required")
	ErrDimensionMismatch    = errors.New("classifier: feature dimension mismatch")
	ErrInvalidContamination = errors.New("classifier: contamination must be in (0, 0.5]")
	ErrNonFinite            = errors.New("classifier: features must be finite")
)

// Config holds the fitting hyperparameters.
type Config struct {
	// Neighbors is the requested neighbourhood size. It is clamped to the
	// number of training samples minus one.
	Neighbors int
	// Contamination is the expected share of outliers in the training data.
	// Zero selects the fixed offset of -1.5.
	Contamination float64
}

// DefaultConfig returns the screening defaults: 20 neighbours, 5% contamination.
func DefaultConfig() Config {
	return Config{Neighbors: 20, Contamination: 0.05}
}

// LOF is a fitted novelty detector. It is immutable after Fit and safe for
// concurrent use.
type LOF struct {
	neighbors     int
	contamination float64
	points        [][]float64
	kDistance     []float64
	lrd           []float64
	// negativeOutlierFactor is -lof(p) for each training point.
	negativeOutlierFactor []float64
	offset                float64
}

// Fit builds a detector from the rows of X.
func Fit(X [][]float64, cfg Config) (*LOF, error) {
	if len(X) < 2 {
		return nil, ErrTooFewSamples
	}
	if cfg.Contamination < 0 || cfg.Contamination > 0.5 {
		return nil, ErrInvalidContamination
	}
	dim := len(X[0])
	if dim == 0 {
		return nil, ErrDimensionMismatch
	}
	points := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensionMismatch, i, len(row), dim)
		}
		if !finite(row) {
			return nil, fmt.Errorf("%w: row %d", ErrNonFinite, i)
		}
		points[i] = slices.Clone(row)
	}

	k := cfg.Neighbors
	if k <= 0 {
		k = DefaultConfig().Neighbors
	}
	k = min(k, len(points)-1)

	m := &LOF{
		neighbors:     k,
		contamination: cfg.Contamination,
		points:        points,
		kDistance:     make([]float64, len(points)),
		lrd:           make([]float64, len(points)),
	}

	hoods := make([][]neighbor, len(points))
	for i, p := range points {
		hoods[i] = m.nearest(p, i)
		m.kDistance[i] = hoods[i][k-1].dist
	}
	for i := range points {
		m.lrd[i] = m.density(hoods[i])
	}
	m.negativeOutlierFactor = make([]float64, len(points))
	for i := range points {
		m.negativeOutlierFactor[i] = -m.ratio(hoods[i], m.lrd[i])
	}

	if cfg.Contamination == 0 {
		m.offset = autoOffset
	} else {
		m.offset = percentile(m.negativeOutlierFactor, 100*cfg.Contamination)
	}
	return m, nil
}

// ScoreSamples returns -lof(x) against the training set. Lower is more abnormal.
func (m *LOF) ScoreSamples(x []float64) (float64, error) {
	if len(x) != len(m.points[0]) {
		return 0, ErrDimensionMismatch
	}
	if !finite(x) {
		return 0, ErrNonFinite
	}
	hood := m.nearest(x, -1)
	return -m.ratio(hood, m.density(hood)), nil
}

// DecisionFunction shifts ScoreSamples by the fitted offset. Negative values
// are outliers.
func (m *LOF) DecisionFunction(x []float64) (float64, error) {
	score, err := m.ScoreSamples(x)
	if err != nil {
		return 0, err
	}
	return score - m.offset, nil
}

// Predict classifies a feature vector.
func (m *LOF) Predict(x []float64) (Verdict, error) {
	d, err := m.DecisionFunction(x)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return Outlier, nil
	}
	return Inlier, nil
}

// Classify screens an (amount, category count) pair. Non-finite input is an
// outlier; a two-feature model never reports a dimension mismatch here.
func (m *LOF) Classify(amount float64, categories int) Verdict {
	v, err := m.Predict([]float64{amount, float64(categories)})
	if err != nil {
		return Outlier
	}
	return v
}

// Neighbors is the effective neighbourhood size.
func (m *LOF) Neighbors() int { return m.neighbors }

// Offset is the decision threshold on ScoreSamples.
func (m *LOF) Offset() float64 { return m.offset }

// Dimensions is the number of features per sample.
func (m *LOF) Dimensions() int { return len(m.points[0]) }

// Samples is the number of training points.
func (m *LOF) Samples() int { return len(m.points) }

// TrainingVerdicts returns the fitted verdict of every training point, in
// training order.
func (m *LOF) TrainingVerdicts() []Verdict {
	out := make([]Verdict, len(m.negativeOutlierFactor))
	for i, nof := range m.negativeOutlierFactor {
		if nof-m.offset < 0 {
			out[i] = Outlier
		} else {
			out[i] = Inlier
		}
	}
	return out
}

type neighbor struct {
	index int
	dist  float64
}

// nearest returns the k closest training points to x. skip excludes a training
// index, used when x is itself a training point. Ties resolve by lower index.
func (m *LOF) nearest(x []float64, skip int) []neighbor {
	all := make([]neighbor, 0, len(m.points))
	for j, p := range m.points {
		if j == skip {
			continue
		}
		all = append(all, neighbor{index: j, dist: euclidean(x, p)})
	}
	slices.SortFunc(all, func(a, b neighbor) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
	return all[:m.neighbors]
}

func (m *LOF) density(hood []neighbor) float64 {
	var sum float64
	for _, n := range hood {
		sum += max(m.kDistance[n.index], n.dist)
	}
	return 1 / (sum/float64(len(hood)) + densityEpsilon)
}

func (m *LOF) ratio(hood []neighbor, lrd float64) float64 {
	var sum float64
	for _, n := range hood {
		sum += m.lrd[n.index] / lrd
	}
	return sum / float64(len(hood))
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func finite(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, q float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
