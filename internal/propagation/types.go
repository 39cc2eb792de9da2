// Package propagation wraps SGP4 libraries behind a common interface so every
// engine is driven by the same time grid, frame transform, and detector.
package propagation

import (
	"errors"
	"time"

	"github.com/cprosche/visibility-testing/internal/tle"
	"github.com/cprosche/visibility-testing/internal/transform"
)

var (
	// ErrPropagation marks a failed propagation at one instant. Callers skip
	// the instant and continue.
	ErrPropagation = errors.New("propagation failed")

	// ErrUnknownEngine is returned by Registry.Lookup for an unregistered name.
	ErrUnknownEngine = errors.New("unknown engine")
)

// Propagator produces the inertial state of one satellite at an instant.
// Implementations are safe for concurrent use.
type Propagator interface {
	Propagate(t time.Time) (transform.PositionTEME, error)
}

// EngineInfo describes the library behind an engine. It is copied into the
// metadata of every result the engine produces.
type EngineInfo struct {
	LibraryName    string `json:"libraryName"`
	LibraryVersion string `json:"libraryVersion"`
	Platform       string `json:"platform"`
}

// Engine builds propagators from validated element sets.
type Engine interface {
	Name() string
	Info() EngineInfo
	New(el tle.Elements) (Propagator, error)
}
