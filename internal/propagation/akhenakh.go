package propagation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sgp4 "github.com/akhenakh/sgp4"

	"github.com/cprosche/visibility-testing/internal/tle"
	"github.com/cprosche/visibility-testing/internal/transform"
)

const akhenakhModule = "github.com/akhenakh/sgp4"

// AkhenakhEngine propagates with github.com/akhenakh/sgp4, which reports decay
// and model-limit conditions as typed errors instead of NaN output.
type AkhenakhEngine struct{}

// NewAkhenakhEngine returns the akhenakh-sgp4 engine.
func NewAkhenakhEngine() *AkhenakhEngine {
	return &AkhenakhEngine{}
}

// Name returns "akhenakh-sgp4".
func (e *AkhenakhEngine) Name() string {
	return "akhenakh-sgp4"
}

// Info reports the library metadata.
func (e *AkhenakhEngine) Info() EngineInfo {
	return EngineInfo{
		LibraryName:    akhenakhModule,
		LibraryVersion: moduleVersion(akhenakhModule),
		Platform:       platform(),
	}
}

// New parses the element set with the library's own parser.
func (e *AkhenakhEngine) New(el tle.Elements) (Propagator, error) {
	name := el.Name
	if name == "" {
		name = fmt.Sprintf("CATALOG %d", el.CatalogNumber)
	}
	parsed, err := sgp4.ParseTLE(name + "\n" + el.Line1 + "\n" + el.Line2)
	if err != nil {
		return nil, fmt.Errorf("%w: akhenakh-sgp4: %v", tle.ErrMalformed, err)
	}
	return &akhenakhPropagator{tle: parsed, epoch: parsed.EpochTime(), catalog: el.CatalogNumber}, nil
}

// The library keeps propagation state on the TLE, so calls are serialised.
type akhenakhPropagator struct {
	mu      sync.Mutex
	tle     *sgp4.TLE
	epoch   time.Time
	catalog int
}

// Propagate computes the TEME state at t, minutes since the element epoch.
func (p *akhenakhPropagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	tsince := t.Sub(p.epoch).Minutes()
	p.mu.Lock()
	eci, err := p.tle.FindPosition(tsince)
	p.mu.Unlock()
	if err != nil {
		var decayed *sgp4.SatelliteDecayedError
		var limits *sgp4.SGP4ModelLimitsError
		switch {
		case errors.As(err, &decayed):
			return transform.PositionTEME{}, fmt.Errorf("%w for catalog %d: decayed at tsince %.2f min", ErrPropagation, p.catalog, tsince)
		case errors.As(err, &limits):
			return transform.PositionTEME{}, fmt.Errorf("%w for catalog %d: model limits at tsince %.2f min: %v", ErrPropagation, p.catalog, tsince, err)
		default:
			return transform.PositionTEME{}, fmt.Errorf("%w for catalog %d: %v", ErrPropagation, p.catalog, err)
		}
	}
	return checkState(p.catalog,
		eci.Position.X, eci.Position.Y, eci.Position.Z,
		eci.Velocity.X, eci.Velocity.Y, eci.Velocity.Z)
}
