package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "casegate/pkg/domain-errors"
)

func TestParseAmount(t *testing.T) {
	valid := map[string]Amount{
		"120.00":      12000,
		"120":         12000,
		"120.5":       12050,
		"0.07":        7,
		".5":          50,
		"1000.00":     100000,
		"+3.10":       310,
		" 50000.00 ":  5000000,
		"99999999.99": MaxAmount,
	}
	for raw, want := range valid {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	invalid := []string{"", "abc", "-1.00", "1.234", "1e3", ".", "100000000.00", "12,50"}
	for _, raw := range invalid {
		_, err := ParseAmount(raw)
		require.Error(t, err, raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), raw)
	}
}

func TestAmountFormatting(t *testing.T) {
	assert.Equal(t, "120.00", MustParseAmount("120").String())
	assert.Equal(t, "0.07", Amount(7).String())
	assert.InDelta(t, 5000.5, MustParseAmount("5000.50").Float64(), 1e-9)
	assert.Equal(t, MustParseAmount("1000.00"), NewAmount(1000, 0))
}

func TestParseCategories(t *testing.T) {
	t.Run("maps codes onto flags", func(t *testing.T) {
		c, err := ParseCategories("FO,WA")
		require.NoError(t, err)
		assert.Equal(t, Categories{Food: true, Water: true}, c)
		assert.Equal(t, 2, c.Count())
		assert.Equal(t, []Category{CategoryFood, CategoryWater}, c.Codes())
	})

	t.Run("all six codes", func(t *testing.T) {
		c, err := ParseCategories("FO,TH,CE,WA,SA,RE")
		require.NoError(t, err)
		assert.Equal(t, 6, c.Count())
		assert.Equal(t, AllCategories, c.Codes())
	})

	t.Run("repeats and whitespace collapse", func(t *testing.T) {
		c, err := ParseCategories(" fo , FO,wa")
		require.NoError(t, err)
		assert.Equal(t, 2, c.Count())
	})

	t.Run("empty list requests nothing", func(t *testing.T) {
		c, err := ParseCategories("")
		require.NoError(t, err)
		assert.Equal(t, 0, c.Count())
	})

	t.Run("unknown code is rejected", func(t *testing.T) {
		_, err := ParseCategories("FO,XX")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestStateIsTerminal(t *testing.T) {
	for _, s := range []State{StateRejectedDuplicate, StateRejectedOutlier, StateCommitted} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []State{StateReceived, StateFingerprinted, StateDuplicate, StateClassifying} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestSentinelFingerprint(t *testing.T) {
	assert.Equal(t, "--------------------------------", SentinelFingerprint)
	assert.Len(t, SentinelFingerprint, FingerprintLength)
}

func TestRecordFeatures(t *testing.T) {
	r := Record{Amount: MustParseAmount("120.00"), Categories: Categories{Food: true, Water: true}}
	assert.Equal(t, []float64{120, 2}, r.Features().Slice())
}
