package workflow

import "math"

// ToleranceConfig holds the percentage bands allowed for pre-arrival
// quantity checks.
type ToleranceConfig struct {
	WeightTolerancePct float64
	CBMTolerancePct    float64
}

// DefaultToleranceConfig is the 5% band applied to weight and CBM.
var DefaultToleranceConfig = ToleranceConfig{
	WeightTolerancePct: 5,
	CBMTolerancePct:    5,
}

// ToleranceCheck is one banded comparison between an expected and actual
// quantity. A failed check can be overridden with a recorded reason.
type ToleranceCheck struct {
	Field          string  `json:"field"`
	Expected       float64 `json:"expected"`
	Actual         float64 `json:"actual"`
	Tolerance      float64 `json:"tolerance"`
	Deviation      float64 `json:"deviation"`
	Passed         bool    `json:"passed"`
	OverrideReason string  `json:"overrideReason,omitempty"`
}

// CheckTolerances evaluates weight and CBM against their bands. Used by
// the pre-arrival validation checks only; the pre-submission unit gate is
// exact-match and does not consult tolerances.
func CheckTolerances(actualWeight, expectedWeight, actualCBM, expectedCBM float64, config ToleranceConfig) []ToleranceCheck {
	return []ToleranceCheck{
		bandCheck("weight", expectedWeight, actualWeight, config.WeightTolerancePct),
		bandCheck("cbm", expectedCBM, actualCBM, config.CBMTolerancePct),
	}
}

func bandCheck(field string, expected, actual, tolerancePct float64) ToleranceCheck {
	deviation := 0.0
	if expected != 0 {
		deviation = math.Abs((actual - expected) / expected * 100)
	}
	return ToleranceCheck{
		Field:     field,
		Expected:  expected,
		Actual:    actual,
		Tolerance: tolerancePct,
		Deviation: deviation,
		Passed:    deviation <= tolerancePct,
	}
}

// AllTolerancesPassed reports whether every check passed or carries an
// override reason.
func AllTolerancesPassed(checks []ToleranceCheck) bool {
	for _, check := range checks {
		if !check.Passed && check.OverrideReason == "" {
			return false
		}
	}
	return true
}
