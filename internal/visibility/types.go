// Package visibility turns a propagator and a test case into visibility windows:
// a sample generator over a fixed time grid, a two-state window detector, and the
// calculator that ties them to an engine.
package visibility

import (
	"time"
)

// Sample is the observer-relative geometry at one grid instant.
type Sample struct {
	Time         time.Time `json:"time"`
	AzimuthDeg   float64   `json:"azimuth"`
	ElevationDeg float64   `json:"elevation"`
	RangeKm      float64   `json:"range"`
	RangeRateKmS float64   `json:"rangeRate"`
	AltitudeKm   float64   `json:"altitude"`
}

// Window is a maximal run of consecutive samples at or above the elevation threshold.
type Window struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	MaxElevationDeg  float64   `json:"maxElevation"`
	MaxElevationTime time.Time `json:"maxElevationTime"`
	DurationSeconds  float64   `json:"duration"`
	Points           []Sample  `json:"points"`
}

// Metadata identifies the library that produced a result.
type Metadata struct {
	LibraryName    string `json:"libraryName"`
	LibraryVersion string `json:"libraryVersion"`
	Platform       string `json:"platform"`
}

// Stats carries run details beyond the shared result format.
type Stats struct {
	GridSize      int  `json:"gridSize"`
	Samples       int  `json:"samples"`
	Skipped       int  `json:"skipped"`
	RangeRateGaps int  `json:"rangeRateGaps"`
	Truncated     bool `json:"truncated,omitempty"`
}

// Result is one implementation's output for one test case. The JSON layout is
// shared with calculators written outside this module; reference results use
// the same type.
type Result struct {
	TestCase       string    `json:"testCase"`
	Implementation string    `json:"implementation"`
	Version        string    `json:"version"`
	Windows        []Window  `json:"visibilityWindows"`
	ExecutionTime  float64   `json:"executionTime"`
	Timestamp      time.Time `json:"timestamp"`
	Metadata       Metadata  `json:"metadata"`
	Stats          *Stats    `json:"stats,omitempty"`
}
