// Package testcase loads visibility test fixtures. Fixtures are JSON or YAML,
// checked against an embedded CUE schema, then converted into TestCase values.
package testcase

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cprosche/visibility-testing/internal/tle"
)

// ErrInvalid is wrapped by every fixture validation failure.
var ErrInvalid = errors.New("invalid test case")

// Observer is a ground observer in geodetic coordinates.
type Observer struct {
	Name         string
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeM    float64
}

// AltitudeKm returns the observer altitude in kilometres.
func (o Observer) AltitudeKm() float64 {
	return o.AltitudeM / 1000.0
}

// TimeWindow is the inclusive sampling interval.
type TimeWindow struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// TestCase is one fixture after validation. Values are built only by Parse and
// never modified afterwards.
type TestCase struct {
	ID              string
	Description     string
	Satellite       tle.Elements
	Observer        Observer
	Window          TimeWindow
	MinElevationDeg float64
}

// WithElements returns a copy of tc using the given element set.
func (tc TestCase) WithElements(el tle.Elements) TestCase {
	tc.Satellite = el
	return tc
}

// fixture mirrors the on-disk layout.
type fixture struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Satellite   struct {
		Name string   `json:"name"`
		TLE  []string `json:"tle"`
	} `json:"satellite"`
	Observer struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Altitude  float64 `json:"altitude"`
	} `json:"observer"`
	TimeWindow struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Step  int    `json:"step"`
	} `json:"timeWindow"`
	MinElevation float64 `json:"minElevation"`
}

// Format is a fixture encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// Parse validates fixture bytes and builds a TestCase.
func Parse(raw []byte, format Format) (TestCase, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(raw)
		if err != nil {
			return TestCase{}, err
		}
		raw = converted
	}

	if err := Validate(raw); err != nil {
		return TestCase{}, err
	}

	var f fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return TestCase{}, fmt.Errorf("%w: decoding fixture: %v", ErrInvalid, err)
	}
	return f.build()
}

func (f fixture) build() (TestCase, error) {
	start, err := time.Parse(time.RFC3339, f.TimeWindow.Start)
	if err != nil {
		return TestCase{}, fmt.Errorf("%w: %s: timeWindow.start: %v", ErrInvalid, f.Name, err)
	}
	end, err := time.Parse(time.RFC3339, f.TimeWindow.End)
	if err != nil {
		return TestCase{}, fmt.Errorf("%w: %s: timeWindow.end: %v", ErrInvalid, f.Name, err)
	}
	// Engines resolve whole seconds, so every grid instant must be one.
	if start.Nanosecond() != 0 || end.Nanosecond() != 0 {
		return TestCase{}, fmt.Errorf("%w: %s: timeWindow bounds must be whole seconds", ErrInvalid, f.Name)
	}
	if end.Before(start) {
		return TestCase{}, fmt.Errorf("%w: %s: timeWindow.end %s before start %s", ErrInvalid, f.Name, f.TimeWindow.End, f.TimeWindow.Start)
	}

	name := f.Satellite.Name
	lines := f.Satellite.TLE
	if len(lines) == 3 {
		if name == "" {
			name = lines[0]
		}
		lines = lines[1:]
	}
	el, err := tle.ParseElements(name, lines[0], lines[1])
	if err != nil {
		return TestCase{}, fmt.Errorf("%w: %s: %v", ErrInvalid, f.Name, err)
	}

	return TestCase{
		ID:          f.Name,
		Description: f.Description,
		Satellite:   el,
		Observer: Observer{
			Name:         f.Observer.Name,
			LatitudeDeg:  f.Observer.Latitude,
			LongitudeDeg: f.Observer.Longitude,
			AltitudeM:    f.Observer.Altitude,
		},
		Window: TimeWindow{
			Start: start.UTC(),
			End:   end.UTC(),
			Step:  time.Duration(f.TimeWindow.Step) * time.Second,
		},
		MinElevationDeg: f.MinElevation,
	}, nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share one
// validation path.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding YAML: %v", ErrInvalid, err)
	}
	out, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: re-encoding YAML: %v", ErrInvalid, err)
	}
	return out, nil
}

// normalizeYAML converts values json.Marshal cannot encode (time.Time from
// unquoted timestamps, non-string map keys) into JSON-safe forms.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
