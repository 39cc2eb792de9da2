// Package validate compares an implementation's visibility windows against a
// reference: it aligns windows and points, accumulates per-metric errors, and
// turns them into verdicts, pass rates and grades.
package validate

import (
	"math"
	"time"
)

// Tolerances bound the acceptable error per metric. The defaults are a fixed
// contract shared with implementations outside this module.
type Tolerances struct {
	AzimuthDeg   float64 `json:"azimuth"`
	ElevationDeg float64 `json:"elevation"`
	RangeKm      float64 `json:"range"`
	TimeSeconds  float64 `json:"time"`
	RangeRateKmS float64 `json:"rangeRate"`
	AltitudeKm   float64 `json:"altitude"`
}

// DefaultTolerances returns the standard comparison contract.
func DefaultTolerances() Tolerances {
	return Tolerances{
		AzimuthDeg:   0.1,
		ElevationDeg: 0.1,
		RangeKm:      1.0,
		TimeSeconds:  1.0,
		RangeRateKmS: 0.1,
		AltitudeKm:   1.0,
	}
}

// Time returns the time tolerance as a duration.
func (t Tolerances) Time() time.Duration {
	return time.Duration(t.TimeSeconds * float64(time.Second))
}

// epsilon absorbs float noise from subtracting values rounded to 2 or 3 places,
// so an error of exactly the tolerance counts as within it.
const epsilon = 1e-9

func within(err, tol float64) bool {
	return err <= tol+epsilon
}

// AngularDistance returns the shortest distance in degrees between two azimuths,
// so 359.95 and 0.05 are 0.1 apart.
func AngularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Grade buckets a pass rate.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
)

// GradeFor maps a pass rate in percent to a grade.
func GradeFor(passRate float64) Grade {
	switch {
	case passRate >= 95:
		return GradeExcellent
	case passRate >= 85:
		return GradeGood
	case passRate >= 70:
		return GradeFair
	default:
		return GradePoor
	}
}

// Rank orders grades from best (0) to worst.
func (g Grade) Rank() int {
	switch g {
	case GradeExcellent:
		return 0
	case GradeGood:
		return 1
	case GradeFair:
		return 2
	default:
		return 3
	}
}
