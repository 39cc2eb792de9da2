package validate

import (
	"math"

	"github.com/cprosche/visibility-testing/internal/visibility"
)

// DeltaSet collects absolute per-point errors for each metric.
type DeltaSet struct {
	Azimuth   []float64
	Elevation []float64
	Range     []float64
	RangeRate []float64
	Altitude  []float64
}

// Add records the errors between a paired implementation and reference sample.
func (d *DeltaSet) Add(impl, ref visibility.Sample) {
	d.Azimuth = append(d.Azimuth, AngularDistance(impl.AzimuthDeg, ref.AzimuthDeg))
	d.Elevation = append(d.Elevation, math.Abs(impl.ElevationDeg-ref.ElevationDeg))
	d.Range = append(d.Range, math.Abs(impl.RangeKm-ref.RangeKm))
	d.RangeRate = append(d.RangeRate, math.Abs(impl.RangeRateKmS-ref.RangeRateKmS))
	d.Altitude = append(d.Altitude, math.Abs(impl.AltitudeKm-ref.AltitudeKm))
}

// Merge appends every error in other.
func (d *DeltaSet) Merge(other DeltaSet) {
	d.Azimuth = append(d.Azimuth, other.Azimuth...)
	d.Elevation = append(d.Elevation, other.Elevation...)
	d.Range = append(d.Range, other.Range...)
	d.RangeRate = append(d.RangeRate, other.RangeRate...)
	d.Altitude = append(d.Altitude, other.Altitude...)
}

// Len is the number of paired points.
func (d DeltaSet) Len() int {
	return len(d.Azimuth)
}

// Stats summarises every metric against tol.
func (d DeltaSet) Stats(tol Tolerances) Accuracy {
	return Accuracy{
		Azimuth:   Summarize(d.Azimuth, tol.AzimuthDeg),
		Elevation: Summarize(d.Elevation, tol.ElevationDeg),
		Range:     Summarize(d.Range, tol.RangeKm),
		RangeRate: Summarize(d.RangeRate, tol.RangeRateKmS),
		Altitude:  Summarize(d.Altitude, tol.AltitudeKm),
	}
}

// MetricStats describes the error distribution of one metric.
type MetricStats struct {
	AvgError               float64 `json:"avgError"`
	MaxError               float64 `json:"maxError"`
	PercentWithinTolerance float64 `json:"percentWithinTolerance"`
	SampleCount            int     `json:"sampleCount"`
}

// Summarize computes MetricStats for errs. An empty slice yields zero stats.
func Summarize(errs []float64, tol float64) MetricStats {
	if len(errs) == 0 {
		return MetricStats{}
	}
	var sum, maxErr float64
	ok := 0
	for _, e := range errs {
		sum += e
		if e > maxErr {
			maxErr = e
		}
		if within(e, tol) {
			ok++
		}
	}
	n := float64(len(errs))
	return MetricStats{
		AvgError:               sum / n,
		MaxError:               maxErr,
		PercentWithinTolerance: float64(ok) / n * 100,
		SampleCount:            len(errs),
	}
}

// Accuracy holds MetricStats for every compared metric. Range rate and
// altitude are reported but do not count toward the pass rate.
type Accuracy struct {
	Azimuth   MetricStats `json:"azimuth"`
	Elevation MetricStats `json:"elevation"`
	Range     MetricStats `json:"range"`
	RangeRate MetricStats `json:"rangeRate"`
	Altitude  MetricStats `json:"altitude"`
}

// Points is the number of paired points behind the stats.
func (a Accuracy) Points() int {
	return a.Azimuth.SampleCount
}

// PassRate is the mean of the azimuth, elevation and range percentages.
func (a Accuracy) PassRate() float64 {
	return (a.Azimuth.PercentWithinTolerance +
		a.Elevation.PercentWithinTolerance +
		a.Range.PercentWithinTolerance) / 3
}

// NormalizedError scales the average azimuth, elevation and range errors by
// their tolerances and averages them. Lower is better; 1.0 means the average
// error sits at the tolerance.
func (a Accuracy) NormalizedError(tol Tolerances) float64 {
	return (a.Azimuth.AvgError/tol.AzimuthDeg +
		a.Elevation.AvgError/tol.ElevationDeg +
		a.Range.AvgError/tol.RangeKm) / 3
}
