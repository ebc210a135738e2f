// Package ambient maps a raw ambient light sample (0-255) to a display
// brightness percentage (0-100).
package ambient

import (
	"errors"
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

// MaxSample is the upper end of the documented sample range.
const MaxSample = 255.0

// DefaultRate is the plateau rate constant used when none is configured.
const DefaultRate = 4.0 / MaxSample

// Curve names accepted by NewCurve.
const (
	CurveLinear     = "linear"
	CurvePlateau    = "plateau"
	CurveExpression = "expression"
)

// ErrUnknownCurve is returned by NewCurve for unsupported names.
var ErrUnknownCurve = errors.New("unknown curve")

// ErrInvalidRate is returned for a non-positive plateau rate.
var ErrInvalidRate = errors.New("plateau rate must be positive")

// Curve converts a sample into a percentage in [0,100].
type Curve interface {
	Map(sample float64) float64
}

// Linear maps 0 to 0% and 255 to 100%.
type Linear struct{}

// Map implements Curve.
func (Linear) Map(sample float64) float64 {
	return clamp(sample * 100 / MaxSample)
}

// Plateau saturates exponentially towards 100% so bright scenes do not
// overshoot the display brightness.
type Plateau struct {
	Rate float64
}

// plateauCeiling keeps the curve strictly below 100 once exp underflows.
var plateauCeiling = math.Nextafter(100, 0)

// Map implements Curve.
func (p Plateau) Map(sample float64) float64 {
	rate := p.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	if sample <= 0 || math.IsNaN(sample) {
		return 0
	}
	return min(clamp(-100*math.Expm1(-rate*sample)), plateauCeiling)
}

// Expression evaluates a user supplied formula over the variable "sample".
type Expression struct {
	expr   *govaluate.EvaluableExpression
	source string
}

// NewExpression parses formula, e.g. "sample * 100 / 255".
func NewExpression(formula string) (*Expression, error) {
	expr, err := govaluate.NewEvaluableExpression(formula)
	if err != nil {
		return nil, fmt.Errorf("failed to parse curve expression %q: %w", formula, err)
	}
	for _, v := range expr.Vars() {
		if v != "sample" {
			return nil, fmt.Errorf("curve expression %q uses unknown variable %q", formula, v)
		}
	}
	return &Expression{expr: expr, source: formula}, nil
}

// Map implements Curve. Evaluation errors and non-numeric results map to 0.
func (e *Expression) Map(sample float64) float64 {
	result, err := e.expr.Evaluate(map[string]interface{}{"sample": sample})
	if err != nil {
		return 0
	}
	value, ok := result.(float64)
	if !ok {
		return 0
	}
	return clamp(value)
}

func (e *Expression) String() string {
	return e.source
}

// NewCurve builds the curve selected in the configuration.
func NewCurve(name string, rate float64, formula string) (Curve, error) {
	switch name {
	case "", CurveLinear:
		return Linear{}, nil
	case CurvePlateau:
		if rate < 0 || math.IsNaN(rate) {
			return nil, fmt.Errorf("%w: got %v", ErrInvalidRate, rate)
		}
		if rate == 0 {
			rate = DefaultRate
		}
		return Plateau{Rate: rate}, nil
	case CurveExpression:
		return NewExpression(formula)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCurve, name)
	}
}

func clamp(percent float64) float64 {
	if math.IsNaN(percent) {
		return 0
	}
	return min(max(percent, 0), 100)
}
