package visibility

import "time"

// State is the detector's position relative to the elevation threshold.
type State int

const (
	StateBelow State = iota
	StateAbove
)

func (s State) String() string {
	if s == StateAbove {
		return "above"
	}
	return "below"
}

// Detector groups a time-ordered sample stream into visibility windows.
// A sample is visible when its elevation is at or above the threshold.
// A Detector is used for one sample sequence and is not safe for concurrent use.
type Detector struct {
	threshold float64
	state     State
	current   Window
	last      Sample
	windows   []Window
}

// NewDetector returns a detector in StateBelow.
func NewDetector(thresholdDeg float64) *Detector {
	return &Detector{threshold: thresholdDeg}
}

// State reports whether a window is currently open.
func (d *Detector) State() State {
	return d.state
}

// Feed consumes the next sample.
func (d *Detector) Feed(s Sample) {
	visible := s.ElevationDeg >= d.threshold

	switch {
	case visible && d.state == StateBelow:
		d.state = StateAbove
		d.current = Window{
			Start:            s.Time,
			MaxElevationDeg:  s.ElevationDeg,
			MaxElevationTime: s.Time,
			Points:           []Sample{s},
		}
	case visible:
		// Strict > keeps the first maximum on ties.
		if s.ElevationDeg > d.current.MaxElevationDeg {
			d.current.MaxElevationDeg = s.ElevationDeg
			d.current.MaxElevationTime = s.Time
		}
		d.current.Points = append(d.current.Points, s)
	case d.state == StateAbove:
		d.close(d.last)
	}

	d.last = s
}

// Finish closes any open window at the last sample and returns every window
// found. The detector is reset and may be reused for a new sequence.
func (d *Detector) Finish() []Window {
	if d.state == StateAbove {
		d.close(d.last)
	}
	out := d.windows
	if out == nil {
		out = []Window{}
	}
	*d = Detector{threshold: d.threshold}
	return out
}

func (d *Detector) close(end Sample) {
	w := d.current
	w.End = end.Time
	w.DurationSeconds = w.End.Sub(w.Start).Truncate(time.Second).Seconds()
	d.windows = append(d.windows, w)
	d.current = Window{}
	d.state = StateBelow
}

// DetectWindows runs a fresh detector over samples. The result is never nil.
func DetectWindows(samples []Sample, thresholdDeg float64) []Window {
	d := NewDetector(thresholdDeg)
	for _, s := range samples {
		d.Feed(s)
	}
	return d.Finish()
}
