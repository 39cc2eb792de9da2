package validate

import (
	"time"

	"github.com/cprosche/visibility-testing/internal/visibility"
)

// DefaultMatchGate is the largest start-time difference at which two windows
// can still describe the same pass.
const DefaultMatchGate = 600 * time.Second

// WindowPair is an implementation window matched to a reference window.
type WindowPair struct {
	ImplIndex int
	RefIndex  int
	Impl      visibility.Window
	Ref       visibility.Window
}

// Alignment is the result of matching two window lists.
type Alignment struct {
	Pairs      []WindowPair
	Extra      []visibility.Window // implementation windows with no reference match
	Missed     []visibility.Window // reference windows with no implementation match
	Positional bool
}

// AlignWindows matches implementation windows to reference windows.
//
// When both lists have the same length and every positional pair starts within
// gate, windows are paired by index. Otherwise each implementation window, in
// order, takes the reference window nearest in start time among those not yet
// passed, provided it lies within gate. Matches never cross, so the pairing
// preserves chronological order on both sides.
func AlignWindows(impl, ref []visibility.Window, gate time.Duration) Alignment {
	if gate <= 0 {
		gate = DefaultMatchGate
	}
	if len(impl) == len(ref) && positional(impl, ref, gate) {
		a := Alignment{Positional: true, Pairs: make([]WindowPair, len(impl))}
		for i := range impl {
			a.Pairs[i] = WindowPair{ImplIndex: i, RefIndex: i, Impl: impl[i], Ref: ref[i]}
		}
		return a
	}

	var a Alignment
	j := 0
	for i, w := range impl {
		best := -1
		var bestDiff time.Duration
		for k := j; k < len(ref); k++ {
			diff := absDuration(w.Start.Sub(ref[k].Start))
			if diff <= gate && (best < 0 || diff < bestDiff) {
				best, bestDiff = k, diff
			}
			// Reference windows are ordered, so later ones only move further away.
			if ref[k].Start.After(w.Start.Add(gate)) {
				break
			}
		}
		if best < 0 {
			a.Extra = append(a.Extra, w)
			continue
		}
		a.Missed = append(a.Missed, ref[j:best]...)
		a.Pairs = append(a.Pairs, WindowPair{ImplIndex: i, RefIndex: best, Impl: w, Ref: ref[best]})
		j = best + 1
	}
	a.Missed = append(a.Missed, ref[j:]...)
	return a
}

func positional(impl, ref []visibility.Window, gate time.Duration) bool {
	for i := range impl {
		if absDuration(impl[i].Start.Sub(ref[i].Start)) > gate {
			return false
		}
	}
	return true
}

// PointPair is a matched pair of samples.
type PointPair struct {
	Impl visibility.Sample
	Ref  visibility.Sample
}

// AlignPoints merges two time-ordered sample lists, pairing samples whose
// timestamps differ by at most tol. Unpaired samples are dropped. When both
// lists share a grid this is the same as pairing by index.
func AlignPoints(impl, ref []visibility.Sample, tol time.Duration) []PointPair {
	pairs := make([]PointPair, 0, min(len(impl), len(ref)))
	i, j := 0, 0
	for i < len(impl) && j < len(ref) {
		d := impl[i].Time.Sub(ref[j].Time)
		switch {
		case absDuration(d) <= tol:
			pairs = append(pairs, PointPair{Impl: impl[i], Ref: ref[j]})
			i++
			j++
		case d < 0:
			i++
		default:
			j++
		}
	}
	return pairs
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
