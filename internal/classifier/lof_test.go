package classifier

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casegate/internal/classifier/classifiertest"
)

// line is a four-point fixture whose LOF values were worked out by hand:
// kdist = [2 1 2 9], lrd = [2/3 1/2 2/3 1/8.5], lof = [0.875 4/3 0.875 4.9583].
var line = [][]float64{{0, 0}, {1, 0}, {2, 0}, {10, 0}}

func TestFitLine(t *testing.T) {
	m, err := Fit(line, Config{Neighbors: 2, Contamination: 0.25})
	require.NoError(t, err)

	s := m.State()
	assert.Equal(t, []float64{2, 1, 2, 9}, s.KDistance)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 0.5, 2.0 / 3, 1 / 8.5}, s.LRD, 1e-9)
	assert.InDeltaSlice(t, []float64{-0.875, -4.0 / 3, -0.875, -4.958333333}, s.NegativeOutlierFactor, 1e-8)
	assert.InDelta(t, -2.2395833333, m.Offset(), 1e-8)
	assert.Equal(t, []Verdict{Inlier, Inlier, Inlier, Outlier}, m.TrainingVerdicts())
}

func TestNoveltyScoring(t *testing.T) {
	m, err := Fit(line, Config{Neighbors: 2, Contamination: 0.25})
	require.NoError(t, err)

	t.Run("query inside the dense run", func(t *testing.T) {
		score, err := m.ScoreSamples([]float64{0.5, 0})
		require.NoError(t, err)
		assert.InDelta(t, -0.875, score, 1e-8)

		d, err := m.DecisionFunction([]float64{0.5, 0})
		require.NoError(t, err)
		assert.InDelta(t, 1.3645833333, d, 1e-8)
		assert.Equal(t, Inlier, m.Classify(0.5, 0))
	})

	t.Run("query far from every training point", func(t *testing.T) {
		score, err := m.ScoreSamples([]float64{30, 0})
		require.NoError(t, err)
		assert.InDelta(t, -9.4117647054, score, 1e-8)
		assert.Equal(t, Outlier, m.Classify(30, 0))
	})

	t.Run("queries do not change the model", func(t *testing.T) {
		before := m.State()
		for i := 0; i < 10; i++ {
			m.Classify(float64(i), 0)
		}
		assert.Equal(t, before, m.State())
	})
}

func TestFitValidation(t *testing.T) {
	_, err := Fit([][]float64{{1, 1}}, DefaultConfig())
	assert.ErrorIs(t, err, ErrTooFewSamples)

	_, err = Fit([][]float64{{1, 1}, {2}}, DefaultConfig())
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Fit([][]float64{{1, 1}, {math.NaN(), 2}}, DefaultConfig())
	assert.ErrorIs(t, err, ErrNonFinite)

	_, err = Fit(line, Config{Neighbors: 2, Contamination: 0.6})
	assert.ErrorIs(t, err, ErrInvalidContamination)
}

func TestNeighborsClampedToSampleCount(t *testing.T) {
	m, err := Fit(line, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, m.Neighbors())
	assert.Equal(t, 4, m.Samples())
	assert.Equal(t, 2, m.Dimensions())
}

func TestAutoContaminationOffset(t *testing.T) {
	m, err := Fit(line, Config{Neighbors: 2})
	require.NoError(t, err)
	assert.Equal(t, -1.5, m.Offset())
}

func TestClassifyRejectsNonFinite(t *testing.T) {
	m, err := Fit(line, Config{Neighbors: 2, Contamination: 0.25})
	require.NoError(t, err)
	assert.Equal(t, Outlier, m.Classify(math.Inf(1), 1))

	_, err = m.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIntakeCorpusScreening(t *testing.T) {
	m, err := Fit(classifiertest.Corpus(400), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, Inlier, m.Classify(120, 2))
	assert.Equal(t, Inlier, m.Classify(180, 3))
	assert.Equal(t, Outlier, m.Classify(50000, 6))
	assert.Equal(t, Outlier, m.Classify(1500, 6))

	t.Run("verdicts are deterministic", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			assert.Equal(t, Outlier, m.Classify(50000, 6))
			assert.Equal(t, Inlier, m.Classify(120, 2))
		}
	})

	t.Run("concurrent reads agree", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make([]Verdict, 64)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = m.Classify(50000, 6)
			}(i)
		}
		wg.Wait()
		for _, v := range results {
			assert.Equal(t, Outlier, v)
		}
	})
}

func TestStateRoundTrip(t *testing.T) {
	m, err := Fit(line, Config{Neighbors: 2, Contamination: 0.25})
	require.NoError(t, err)

	restored, err := FromState(m.State())
	require.NoError(t, err)
	for _, q := range [][]float64{{0.5, 0}, {30, 0}, {4, 1}} {
		want, _ := m.DecisionFunction(q)
		got, _ := restored.DecisionFunction(q)
		assert.Equal(t, want, got)
	}
}

func TestFromStateRejectsInconsistentSnapshots(t *testing.T) {
	m, err := Fit(line, Config{Neighbors: 2, Contamination: 0.25})
	require.NoError(t, err)

	cases := map[string]func(s *State){
		"too few points":     func(s *State) { s.Points = s.Points[:1] },
		"neighbours too big": func(s *State) { s.Neighbors = 4 },
		"short lrd":          func(s *State) { s.LRD = s.LRD[:2] },
		"ragged point":       func(s *State) { s.Points[2] = []float64{1} },
		"zero density":       func(s *State) { s.LRD[0] = 0 },
		"nan offset":         func(s *State) { s.Offset = math.NaN() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := m.State()
			mutate(&s)
			_, err := FromState(s)
			assert.ErrorIs(t, err, ErrIncompatibleState)
		})
	}
}
