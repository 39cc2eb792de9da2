package visibility

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cprosche/visibility-testing/internal/propagation"
	"github.com/cprosche/visibility-testing/internal/testcase"
	"github.com/cprosche/visibility-testing/internal/transform"
)

// RangeRateOffset is the forward-difference offset for range rate. It is fixed
// rather than tied to the grid step so every engine differentiates the same way.
const RangeRateOffset = time.Second

// SampleSet is the generator output for one test case.
type SampleSet struct {
	Samples       []Sample
	GridSize      int
	Skipped       int // instants whose propagation failed
	RangeRateGaps int // samples whose offset propagation failed (range rate 0)
	Truncated     bool
}

// Stats summarises the set for a Result.
func (s SampleSet) Stats() *Stats {
	return &Stats{
		GridSize:      s.GridSize,
		Samples:       len(s.Samples),
		Skipped:       s.Skipped,
		RangeRateGaps: s.RangeRateGaps,
		Truncated:     s.Truncated,
	}
}

// GeneratorOptions tunes GenerateSamples.
type GeneratorOptions struct {
	Logger *slog.Logger
}

// TimeGrid returns start, start+step, ... up to and including end. Instants are
// computed as start + i*step so no error accumulates over long windows.
func TimeGrid(start, end time.Time, step time.Duration) []time.Time {
	if step <= 0 || end.Before(start) {
		return nil
	}
	n := int(end.Sub(start)/step) + 1
	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i) * step)
	}
	return grid
}

// GenerateSamples propagates the satellite over the test case's grid and converts
// each instant to observer-relative geometry.
//
// A failed instant is skipped and counted. When ctx ends mid-loop the samples
// gathered so far are returned with Truncated set and no error; the caller still
// runs detection over them. Errors are returned only for invalid input, before
// any propagation.
func GenerateSamples(ctx context.Context, prop propagation.Propagator, tc testcase.TestCase, opts GeneratorOptions) (SampleSet, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := transform.ValidateGeodetic(tc.Observer.LatitudeDeg, tc.Observer.LongitudeDeg); err != nil {
		return SampleSet{}, fmt.Errorf("%w: observer: %v", testcase.ErrInvalid, err)
	}
	grid := TimeGrid(tc.Window.Start, tc.Window.End, tc.Window.Step)
	if len(grid) == 0 {
		return SampleSet{}, fmt.Errorf("%w: empty time grid", testcase.ErrInvalid)
	}

	obs := transform.NewObserverPosition(tc.Observer.LatitudeDeg, tc.Observer.LongitudeDeg, tc.Observer.AltitudeKm())
	set := SampleSet{
		Samples:  make([]Sample, 0, len(grid)),
		GridSize: len(grid),
	}

	for _, t := range grid {
		if ctx.Err() != nil {
			set.Truncated = true
			logger.Warn("sample generation truncated",
				"test_case", tc.ID,
				"emitted", len(set.Samples),
				"grid_size", len(grid),
				"error", ctx.Err(),
			)
			break
		}

		teme, err := prop.Propagate(t)
		if err != nil {
			set.Skipped++
			logger.Debug("skipping instant", "test_case", tc.ID, "time", t.Format(time.RFC3339), "error", err)
			continue
		}
		la := transform.Observe(teme, t, obs)

		rangeRate := 0.0
		if next, err := prop.Propagate(t.Add(RangeRateOffset)); err == nil {
			laNext := transform.Observe(next, t.Add(RangeRateOffset), obs)
			rangeRate = (laNext.RangeKm - la.RangeKm) / RangeRateOffset.Seconds()
		} else {
			set.RangeRateGaps++
			logger.Debug("range rate unavailable", "test_case", tc.ID, "time", t.Format(time.RFC3339), "error", err)
		}

		set.Samples = append(set.Samples, Sample{
			Time:         t,
			AzimuthDeg:   roundAzimuth(la.AzimuthDeg),
			ElevationDeg: round(la.ElevationDeg, 2),
			RangeKm:      round(la.RangeKm, 2),
			RangeRateKmS: round(rangeRate, 3),
			AltitudeKm:   round(transform.SatelliteAltitudeKm(teme), 2),
		})
	}

	return set, nil
}

// round rounds half away from zero to the given number of decimal places.
// decimal panics on non-finite input, so those pass through unchanged.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// roundAzimuth rounds to 2 places and keeps the result in [0, 360):
// 359.996 rounds to 360.00, which folds to 0.
func roundAzimuth(az float64) float64 {
	r := round(az, 2)
	if r >= 360 {
		r -= 360
	}
	return r
}
