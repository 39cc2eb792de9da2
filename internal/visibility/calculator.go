package visibility

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cprosche/visibility-testing/internal/metrics"
	"github.com/cprosche/visibility-testing/internal/propagation"
	"github.com/cprosche/visibility-testing/internal/testcase"
)

// Calculator computes a Result for a test case with one engine.
type Calculator struct {
	Engine  propagation.Engine
	Version string
	Logger  *slog.Logger
}

// NewCalculator returns a Calculator for engine.
func NewCalculator(engine propagation.Engine, version string, logger *slog.Logger) *Calculator {
	return &Calculator{Engine: engine, Version: version, Logger: logger}
}

// Calculate builds a propagator from the test case elements, samples the time
// grid, and detects windows. An input error fails the case before any sampling.
// A deadline on ctx truncates sampling; the partial result is still returned.
func (c *Calculator) Calculate(ctx context.Context, tc testcase.TestCase) (*Result, error) {
	name := c.Engine.Name()
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("engine", name, "test_case", tc.ID)

	start := time.Now()

	prop, err := c.Engine.New(tc.Satellite)
	if err != nil {
		metrics.RecordCalculation(name, time.Since(start), err)
		return nil, fmt.Errorf("initialising %s for %s: %w", name, tc.ID, err)
	}

	set, err := GenerateSamples(ctx, prop, tc, GeneratorOptions{Logger: logger})
	if err != nil {
		metrics.RecordCalculation(name, time.Since(start), err)
		return nil, fmt.Errorf("sampling %s: %w", tc.ID, err)
	}
	windows := DetectWindows(set.Samples, tc.MinElevationDeg)

	elapsed := time.Since(start)
	metrics.RecordSamples(name, len(set.Samples), set.Skipped)
	metrics.RecordWindows(name, len(windows))
	metrics.RecordCalculation(name, elapsed, nil)

	logger.Info("calculation complete",
		"samples", len(set.Samples),
		"skipped", set.Skipped,
		"windows", len(windows),
		"truncated", set.Truncated,
		"duration_ms", elapsed.Milliseconds(),
	)

	info := c.Engine.Info()
	return &Result{
		TestCase:       tc.ID,
		Implementation: name,
		Version:        c.Version,
		Windows:        windows,
		ExecutionTime:  math.Round(elapsed.Seconds()*1000) / 1000,
		Timestamp:      time.Now().UTC().Truncate(time.Second),
		Metadata: Metadata{
			LibraryName:    info.LibraryName,
			LibraryVersion: info.LibraryVersion,
			Platform:       info.Platform,
		},
		Stats: set.Stats(),
	}, nil
}
