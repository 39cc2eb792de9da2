package validate

import (
	"fmt"
	"math"
	"time"

	"github.com/cprosche/visibility-testing/internal/visibility"
)

// Status says whether a case could be compared at all.
type Status string

const (
	StatusCompared            Status = "compared"
	StatusNoReference         Status = "no_reference"
	StatusImplementationError Status = "implementation_error"
)

// PointPassPercent is the share of paired points that must be within every
// tolerance for a compared case to pass.
const PointPassPercent = 95.0

// DefaultMarginalBand is how close to the threshold a window's maximum
// elevation must be for the window to count as marginal.
const DefaultMarginalBand = 1.0

// Options tunes CompareCase.
type Options struct {
	Tolerances Tolerances
	Gate       time.Duration

	// TolerateMarginal excuses unmatched windows whose maximum elevation lies
	// within MarginalBand of ThresholdDeg. Excused windows become warnings.
	TolerateMarginal bool
	MarginalBand     float64
	ThresholdDeg     float64
}

// DefaultOptions returns strict comparison with the standard tolerances.
func DefaultOptions() Options {
	return Options{
		Tolerances:   DefaultTolerances(),
		Gate:         DefaultMatchGate,
		MarginalBand: DefaultMarginalBand,
	}
}

// CaseComparison is the outcome of comparing one implementation against the
// reference for one test case.
type CaseComparison struct {
	TestCase       string   `json:"testCase"`
	Implementation string   `json:"implementation"`
	Status         Status   `json:"status"`
	Passed         bool     `json:"passed"`
	ImplWindows    int      `json:"implementationWindows"`
	RefWindows     int      `json:"referenceWindows"`
	MatchedWindows int      `json:"matchedWindows"`
	MissedWindows  int      `json:"missedWindows"`
	ExtraWindows   int      `json:"extraWindows"`
	Accuracy       Accuracy `json:"accuracy"`
	PointsWithin   float64  `json:"pointsWithinTolerance"`
	PassRate       float64  `json:"passRate"`
	Grade          Grade    `json:"grade"`
	Reasons        []string `json:"reasons,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	Error          string   `json:"error,omitempty"`

	// Deltas feeds the implementation-level aggregation.
	Deltas DeltaSet `json:"-"`
}

// Verdict is a one-word summary: passed, failed, no_reference or
// implementation_error.
func (c CaseComparison) Verdict() string {
	switch c.Status {
	case StatusCompared:
		if c.Passed {
			return "passed"
		}
		return "failed"
	default:
		return string(c.Status)
	}
}

// Failed records a case the implementation could not produce a result for.
func Failed(testCase, implementation string, err error) CaseComparison {
	msg := "no result"
	if err != nil {
		msg = err.Error()
	}
	return CaseComparison{
		TestCase:       testCase,
		Implementation: implementation,
		Status:         StatusImplementationError,
		Grade:          GradePoor,
		Error:          msg,
		Reasons:        []string{"implementation error: " + msg},
	}
}

// CompareCase compares impl against ref. A nil ref yields StatusNoReference,
// which is not a failure. A nil impl yields StatusImplementationError.
func CompareCase(impl, ref *visibility.Result, opts Options) CaseComparison {
	if opts.Tolerances == (Tolerances{}) {
		opts.Tolerances = DefaultTolerances()
	}
	if opts.MarginalBand <= 0 {
		opts.MarginalBand = DefaultMarginalBand
	}
	tol := opts.Tolerances

	if impl == nil {
		name := ""
		if ref != nil {
			name = ref.TestCase
		}
		return Failed(name, "", nil)
	}
	c := CaseComparison{
		TestCase:       impl.TestCase,
		Implementation: impl.Implementation,
		ImplWindows:    len(impl.Windows),
	}
	if ref == nil {
		c.Status = StatusNoReference
		c.Warnings = []string{"no reference result for " + impl.TestCase}
		return c
	}
	c.Status = StatusCompared
	c.RefWindows = len(ref.Windows)

	align := AlignWindows(impl.Windows, ref.Windows, opts.Gate)
	c.MatchedWindows = len(align.Pairs)

	extra := c.excuse(align.Extra, "extra", opts)
	missed := c.excuse(align.Missed, "missed", opts)
	c.ExtraWindows = len(extra)
	c.MissedWindows = len(missed)

	implCount := c.ImplWindows - (len(align.Extra) - len(extra))
	refCount := c.RefWindows - (len(align.Missed) - len(missed))
	if implCount != refCount {
		c.Reasons = append(c.Reasons, fmt.Sprintf("window count %d, reference %d", implCount, refCount))
	}
	for _, w := range missed {
		c.Reasons = append(c.Reasons, fmt.Sprintf("missed reference window starting %s (max elevation %.2f)", stamp(w), w.MaxElevationDeg))
	}
	for _, w := range extra {
		c.Reasons = append(c.Reasons, fmt.Sprintf("extra window starting %s (max elevation %.2f)", stamp(w), w.MaxElevationDeg))
	}

	pointsOK, pointsTotal := 0, 0
	for _, p := range align.Pairs {
		c.Reasons = append(c.Reasons, windowReasons(p, tol)...)
		for _, pp := range AlignPoints(p.Impl.Points, p.Ref.Points, tol.Time()) {
			c.Deltas.Add(pp.Impl, pp.Ref)
			pointsTotal++
			if pointWithin(pp, tol) {
				pointsOK++
			}
		}
	}

	c.Accuracy = c.Deltas.Stats(tol)
	if pointsTotal > 0 {
		c.PointsWithin = float64(pointsOK) / float64(pointsTotal) * 100
		if c.PointsWithin < PointPassPercent {
			c.Reasons = append(c.Reasons, fmt.Sprintf("%.1f%% of %d points within tolerance, need %.0f%%", c.PointsWithin, pointsTotal, PointPassPercent))
		}
	}

	c.Passed = len(c.Reasons) == 0
	switch {
	case pointsTotal > 0:
		c.PassRate = c.Accuracy.PassRate()
	case c.Passed:
		c.PassRate = 100
	default:
		c.PassRate = 0
	}
	c.Grade = GradeFor(c.PassRate)
	return c
}

// excuse drops marginal windows when the options allow it, recording a
// warning for each, and returns the windows that still count.
func (c *CaseComparison) excuse(windows []visibility.Window, kind string, opts Options) []visibility.Window {
	if !opts.TolerateMarginal {
		return windows
	}
	var kept []visibility.Window
	for _, w := range windows {
		if w.MaxElevationDeg-opts.ThresholdDeg <= opts.MarginalBand {
			c.Warnings = append(c.Warnings, fmt.Sprintf("marginal %s window starting %s (max elevation %.2f) excused", kind, stamp(w), w.MaxElevationDeg))
			continue
		}
		kept = append(kept, w)
	}
	return kept
}

func windowReasons(p WindowPair, tol Tolerances) []string {
	var reasons []string
	at := stamp(p.Ref)
	if d := math.Abs(p.Impl.Start.Sub(p.Ref.Start).Seconds()); !within(d, tol.TimeSeconds) {
		reasons = append(reasons, fmt.Sprintf("window %s: start off by %.0f s", at, d))
	}
	if d := math.Abs(p.Impl.End.Sub(p.Ref.End).Seconds()); !within(d, tol.TimeSeconds) {
		reasons = append(reasons, fmt.Sprintf("window %s: end off by %.0f s", at, d))
	}
	if d := math.Abs(p.Impl.MaxElevationDeg - p.Ref.MaxElevationDeg); !within(d, tol.ElevationDeg) {
		reasons = append(reasons, fmt.Sprintf("window %s: max elevation off by %.2f deg", at, d))
	}
	if d := math.Abs(p.Impl.MaxElevationTime.Sub(p.Ref.MaxElevationTime).Seconds()); !within(d, tol.TimeSeconds) {
		reasons = append(reasons, fmt.Sprintf("window %s: max elevation time off by %.0f s", at, d))
	}
	return reasons
}

func pointWithin(p PointPair, tol Tolerances) bool {
	return within(AngularDistance(p.Impl.AzimuthDeg, p.Ref.AzimuthDeg), tol.AzimuthDeg) &&
		within(math.Abs(p.Impl.ElevationDeg-p.Ref.ElevationDeg), tol.ElevationDeg) &&
		within(math.Abs(p.Impl.RangeKm-p.Ref.RangeKm), tol.RangeKm)
}

func stamp(w visibility.Window) string {
	return w.Start.UTC().Format("2006-01-02T15:04:05Z")
}
