package ambient_test

import (
	"math"
	"testing"

	"github.com/shini4i/dimmer/internal/ambient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear_Boundaries(t *testing.T) {
	curve := ambient.Linear{}

	assert.Equal(t, 0.0, curve.Map(0))
	assert.Equal(t, 100.0, curve.Map(255))
	assert.InDelta(t, 50.0, curve.Map(127.5), 1e-9)
}

func TestLinear_Monotonic(t *testing.T) {
	curve := ambient.Linear{}

	previous := curve.Map(0)
	for sample := 0.5; sample <= 255; sample += 0.5 {
		current := curve.Map(sample)
		require.GreaterOrEqual(t, current, previous, "sample %v", sample)
		previous = current
	}
}

func TestPlateau_Boundaries(t *testing.T) {
	curve := ambient.Plateau{Rate: ambient.DefaultRate}

	assert.Equal(t, 0.0, curve.Map(0))
	// 100 * (1 - e^-4)
	assert.InDelta(t, 98.168, curve.Map(255), 1e-3)
}

func TestPlateau_StrictlyIncreasingAndBounded(t *testing.T) {
	curve := ambient.Plateau{Rate: ambient.DefaultRate}

	previous := curve.Map(0)
	for sample := 1.0; sample <= 255; sample++ {
		current := curve.Map(sample)
		require.Greater(t, current, previous, "sample %v", sample)
		require.Less(t, current, 100.0, "sample %v", sample)
		previous = current
	}

	for _, sample := range []float64{1e3, 1e6, math.MaxFloat64, math.Inf(1)} {
		assert.Less(t, curve.Map(sample), 100.0, "sample %v", sample)
	}
	assert.InDelta(t, 100.0, curve.Map(5000), 1e-6)
}

func TestPlateau_ZeroRateUsesDefault(t *testing.T) {
	assert.Equal(t, ambient.Plateau{Rate: ambient.DefaultRate}.Map(100), ambient.Plateau{}.Map(100))
}

func TestCurves_ClampOutOfRangeInput(t *testing.T) {
	expr, err := ambient.NewExpression("sample * 2")
	require.NoError(t, err)

	curves := map[string]ambient.Curve{
		"linear":     ambient.Linear{},
		"plateau":    ambient.Plateau{Rate: ambient.DefaultRate},
		"expression": expr,
	}

	for name, curve := range curves {
		t.Run(name, func(t *testing.T) {
			for _, sample := range []float64{-50, -1, 300, 1e9, math.NaN()} {
				value := curve.Map(sample)
				assert.GreaterOrEqual(t, value, 0.0, "sample %v", sample)
				assert.LessOrEqual(t, value, 100.0, "sample %v", sample)
			}
		})
	}
}

func TestExpression(t *testing.T) {
	expr, err := ambient.NewExpression("sample * 100 / 255")
	require.NoError(t, err)

	assert.InDelta(t, ambient.Linear{}.Map(100), expr.Map(100), 1e-9)
	assert.Equal(t, "sample * 100 / 255", expr.String())
}

func TestNewExpression_Errors(t *testing.T) {
	_, err := ambient.NewExpression("sample * (")
	assert.Error(t, err)

	_, err = ambient.NewExpression("lux * 2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lux")
}

func TestNewCurve(t *testing.T) {
	tests := []struct {
		name        string
		curve       string
		rate        float64
		formula     string
		expected    ambient.Curve
		expectedErr error
	}{
		{name: "empty defaults to linear", curve: "", expected: ambient.Linear{}},
		{name: "linear", curve: "linear", expected: ambient.Linear{}},
		{name: "plateau with rate", curve: "plateau", rate: 0.02, expected: ambient.Plateau{Rate: 0.02}},
		{name: "plateau without rate", curve: "plateau", expected: ambient.Plateau{Rate: ambient.DefaultRate}},
		{name: "plateau with negative rate", curve: "plateau", rate: -1, expectedErr: ambient.ErrInvalidRate},
		{name: "unknown curve", curve: "cubic", expectedErr: ambient.ErrUnknownCurve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curve, err := ambient.NewCurve(tt.curve, tt.rate, tt.formula)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, curve)
		})
	}

	curve, err := ambient.NewCurve("expression", 0, "sample / 2.55")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, curve.Map(255), 1e-9)
}
