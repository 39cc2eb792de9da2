package propagation

import (
	"fmt"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/cprosche/visibility-testing/internal/tle"
	"github.com/cprosche/visibility-testing/internal/transform"
)

// Gravity selects the geopotential constants used by go-satellite.
type Gravity string

const (
	WGS72 Gravity = "wgs72"
	WGS84 Gravity = "wgs84"
)

const goSatelliteModule = "github.com/joshuaferrara/go-satellite"

// GoSatelliteEngine propagates with github.com/joshuaferrara/go-satellite.
//
// Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller. Failures are detected by checking output for NaN/Inf and
// unreasonable position magnitudes.
type GoSatelliteEngine struct {
	gravity Gravity
}

// NewGoSatelliteEngine returns an engine using the given gravity model.
func NewGoSatelliteEngine(g Gravity) *GoSatelliteEngine {
	return &GoSatelliteEngine{gravity: g}
}

// Name returns "go-satellite-wgs72" or "go-satellite-wgs84".
func (e *GoSatelliteEngine) Name() string {
	return "go-satellite-" + string(e.gravity)
}

// Info reports the library metadata.
func (e *GoSatelliteEngine) Info() EngineInfo {
	return EngineInfo{
		LibraryName:    goSatelliteModule + " (" + string(e.gravity) + ")",
		LibraryVersion: moduleVersion(goSatelliteModule),
		Platform:       platform(),
	}
}

// New initialises SGP4 for one element set.
//
// Lines must already have passed tle.ParseElements: go-satellite calls log.Fatal
// on malformed input, which would kill the process.
func (e *GoSatelliteEngine) New(el tle.Elements) (Propagator, error) {
	if len(el.Line1) != 69 || len(el.Line2) != 69 || el.Line1[0] != '1' || el.Line2[0] != '2' {
		return nil, fmt.Errorf("%w: element lines not validated", tle.ErrMalformed)
	}

	grav := satellite.GravityWGS84
	if e.gravity == WGS72 {
		grav = satellite.GravityWGS72
	}

	sat := satellite.TLEToSat(el.Line1, el.Line2, grav)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for catalog %d: code=%d %s", el.CatalogNumber, sat.Error, sat.ErrorStr)
	}
	return &goSatellitePropagator{sat: sat, catalog: el.CatalogNumber}, nil
}

type goSatellitePropagator struct {
	sat     satellite.Satellite
	catalog int
}

// Propagate computes the TEME state at t. go-satellite resolves whole seconds;
// the sub-second part of t is dropped.
func (p *goSatellitePropagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return checkState(p.catalog, pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z)
}

// checkState wraps transform.CheckState failures in ErrPropagation.
func checkState(catalog int, x, y, z, vx, vy, vz float64) (transform.PositionTEME, error) {
	p := transform.PositionTEME{X: x, Y: y, Z: z, VX: vx, VY: vy, VZ: vz}
	if err := transform.CheckState(p); err != nil {
		return transform.PositionTEME{}, fmt.Errorf("%w for catalog %d: %v", ErrPropagation, catalog, err)
	}
	return p, nil
}
