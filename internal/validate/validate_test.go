package validate

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cprosche/visibility-testing/internal/visibility"
)

var base = time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)

// pass builds a window starting at offset with n points 10 s apart whose
// elevation peaks at maxEl in the middle.
func pass(offset time.Duration, n int, maxEl float64) visibility.Window {
	start := base.Add(offset)
	w := visibility.Window{Start: start, MaxElevationDeg: maxEl}
	mid := n / 2
	for i := 0; i < n; i++ {
		el := maxEl - float64(abs(i-mid))*2
		t := start.Add(time.Duration(i) * 10 * time.Second)
		w.Points = append(w.Points, visibility.Sample{
			Time:         t,
			AzimuthDeg:   float64(100 + i*5),
			ElevationDeg: el,
			RangeKm:      1200 - el*10,
			RangeRateKmS: -3 + float64(i)*0.5,
			AltitudeKm:   420,
		})
		if i == mid {
			w.MaxElevationTime = t
		}
	}
	w.End = w.Points[n-1].Time
	w.DurationSeconds = w.End.Sub(w.Start).Seconds()
	return w
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func result(impl string, windows ...visibility.Window) *visibility.Result {
	if windows == nil {
		windows = []visibility.Window{}
	}
	return &visibility.Result{TestCase: "iss_nyc_24h", Implementation: impl, Windows: windows}
}

// tenPasses returns ten windows 95 minutes apart.
func tenPasses() []visibility.Window {
	out := make([]visibility.Window, 10)
	for i := range out {
		out[i] = pass(time.Duration(i)*95*time.Minute, 9, 20+float64(i)*5)
	}
	return out
}

func shiftAzimuth(windows []visibility.Window, deg float64) []visibility.Window {
	out := make([]visibility.Window, len(windows))
	for i, w := range windows {
		w.Points = append([]visibility.Sample(nil), w.Points...)
		for j := range w.Points {
			w.Points[j].AzimuthDeg += deg
		}
		out[i] = w
	}
	return out
}

func TestAngularDistance(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{10, 20, 10},
		{359.95, 0.05, 0.1},
		{0.05, 359.95, 0.1},
		{0, 180, 180},
		{90, 270, 180},
		{350, 10, 20},
		{0, 0, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, AngularDistance(tt.a, tt.b), 1e-9, "AngularDistance(%v, %v)", tt.a, tt.b)
	}
}

func TestGradeFor(t *testing.T) {
	assert.Equal(t, GradeExcellent, GradeFor(100))
	assert.Equal(t, GradeExcellent, GradeFor(95))
	assert.Equal(t, GradeGood, GradeFor(94.99))
	assert.Equal(t, GradeGood, GradeFor(85))
	assert.Equal(t, GradeFair, GradeFor(70))
	assert.Equal(t, GradePoor, GradeFor(69.9))
	assert.Less(t, GradeExcellent.Rank(), GradePoor.Rank())
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{0.05, 0.1, 0.2, 0.0}, 0.1)
	assert.InDelta(t, 0.0875, s.AvgError, 1e-12)
	assert.Equal(t, 0.2, s.MaxError)
	assert.Equal(t, 75.0, s.PercentWithinTolerance)
	assert.Equal(t, 4, s.SampleCount)

	assert.Equal(t, MetricStats{}, Summarize(nil, 0.1))
}

func TestAlignWindows_Positional(t *testing.T) {
	ref := tenPasses()
	impl := tenPasses()
	a := AlignWindows(impl, ref, DefaultMatchGate)

	assert.True(t, a.Positional)
	require.Len(t, a.Pairs, 10)
	assert.Empty(t, a.Extra)
	assert.Empty(t, a.Missed)
	for i, p := range a.Pairs {
		assert.Equal(t, i, p.ImplIndex)
		assert.Equal(t, i, p.RefIndex)
	}
}

func TestAlignWindows_MissedAndExtra(t *testing.T) {
	ref := tenPasses()

	// Drop the third reference pass and add a spurious pass between the
	// seventh and eighth.
	impl := append([]visibility.Window{}, ref[:2]...)
	impl = append(impl, ref[3:7]...)
	impl = append(impl, pass(6*95*time.Minute+45*time.Minute, 5, 11))
	impl = append(impl, ref[7:]...)

	a := AlignWindows(impl, ref, DefaultMatchGate)
	assert.False(t, a.Positional)
	assert.Len(t, a.Pairs, 9)
	require.Len(t, a.Missed, 1)
	assert.Equal(t, ref[2].Start, a.Missed[0].Start)
	require.Len(t, a.Extra, 1)
	assert.Equal(t, 11.0, a.Extra[0].MaxElevationDeg)

	// Pairs never cross.
	for i := 1; i < len(a.Pairs); i++ {
		assert.Greater(t, a.Pairs[i].ImplIndex, a.Pairs[i-1].ImplIndex)
		assert.Greater(t, a.Pairs[i].RefIndex, a.Pairs[i-1].RefIndex)
	}
}

func TestAlignWindows_ShiftedBeyondGate(t *testing.T) {
	ref := []visibility.Window{pass(0, 5, 30)}
	impl := []visibility.Window{pass(20*time.Minute, 5, 30)}

	a := AlignWindows(impl, ref, DefaultMatchGate)
	assert.Empty(t, a.Pairs)
	assert.Len(t, a.Extra, 1)
	assert.Len(t, a.Missed, 1)

	// A wider gate pairs them.
	a = AlignWindows(impl, ref, 30*time.Minute)
	assert.Len(t, a.Pairs, 1)
}

func TestAlignWindows_Empty(t *testing.T) {
	a := AlignWindows(nil, nil, 0)
	assert.True(t, a.Positional)
	assert.Empty(t, a.Pairs)

	a = AlignWindows(nil, tenPasses(), 0)
	assert.Len(t, a.Missed, 10)
}

func TestAlignPoints(t *testing.T) {
	w := pass(0, 9, 40)

	pairs := AlignPoints(w.Points, w.Points, time.Second)
	require.Len(t, pairs, 9)
	for i, p := range pairs {
		assert.Equal(t, w.Points[i].Time, p.Impl.Time)
		assert.Equal(t, p.Impl.Time, p.Ref.Time)
	}

	// A reference sampled every 20 s pairs with every other point.
	var sparse []visibility.Sample
	for i := 0; i < len(w.Points); i += 2 {
		sparse = append(sparse, w.Points[i])
	}
	pairs = AlignPoints(w.Points, sparse, time.Second)
	assert.Len(t, pairs, len(sparse))

	// Offsets beyond the tolerance never pair.
	shifted := make([]visibility.Sample, len(w.Points))
	for i, s := range w.Points {
		s.Time = s.Time.Add(5 * time.Second)
		shifted[i] = s
	}
	assert.Empty(t, AlignPoints(w.Points, shifted, time.Second))
}

func TestCompareCase_Identical(t *testing.T) {
	ref := result("reference", tenPasses()...)
	impl := result("go-satellite-wgs72", tenPasses()...)

	c := CompareCase(impl, ref, DefaultOptions())
	assert.Equal(t, StatusCompared, c.Status)
	assert.True(t, c.Passed, "reasons: %v", c.Reasons)
	assert.Equal(t, "passed", c.Verdict())
	assert.Equal(t, 100.0, c.PassRate)
	assert.Equal(t, GradeExcellent, c.Grade)
	assert.Equal(t, 90, c.Accuracy.Points())
	assert.Zero(t, c.Accuracy.Azimuth.MaxError)
	assert.Zero(t, c.Accuracy.NormalizedError(DefaultTolerances()))
	assert.Empty(t, c.Reasons)
}

func TestCompareCase_AzimuthBias(t *testing.T) {
	ref := result("reference", tenPasses()...)
	impl := result("biased", shiftAzimuth(tenPasses(), 0.5)...)

	c := CompareCase(impl, ref, DefaultOptions())
	assert.Equal(t, StatusCompared, c.Status)
	assert.InDelta(t, 0.5, c.Accuracy.Azimuth.AvgError, 1e-9)
	assert.Equal(t, 0.0, c.Accuracy.Azimuth.PercentWithinTolerance)
	assert.Equal(t, 100.0, c.Accuracy.Elevation.PercentWithinTolerance)
	assert.Equal(t, 100.0, c.Accuracy.Range.PercentWithinTolerance)
	assert.InDelta(t, 200.0/3, c.PassRate, 1e-9)
	assert.NotEqual(t, GradeExcellent, c.Grade)
	assert.False(t, c.Passed)
	assert.NotEmpty(t, c.Reasons)
	assert.InDelta(t, 5.0/3, c.Accuracy.NormalizedError(DefaultTolerances()), 1e-9)
}

func TestCompareCase_AzimuthSeam(t *testing.T) {
	w := pass(0, 3, 30)
	for i := range w.Points {
		w.Points[i].AzimuthDeg = 359.95
	}
	other := w
	other.Points = append([]visibility.Sample(nil), w.Points...)
	for i := range other.Points {
		other.Points[i].AzimuthDeg = 0.05
	}

	c := CompareCase(result("impl", other), result("ref", w), DefaultOptions())
	assert.True(t, c.Passed, "reasons: %v", c.Reasons)
	assert.InDelta(t, 0.1, c.Accuracy.Azimuth.MaxError, 1e-9)
}

func TestCompareCase_NoReference(t *testing.T) {
	c := CompareCase(result("impl", tenPasses()...), nil, DefaultOptions())
	assert.Equal(t, StatusNoReference, c.Status)
	assert.Equal(t, "no_reference", c.Verdict())
	assert.False(t, c.Passed)
	assert.Empty(t, c.Reasons)
	assert.NotEmpty(t, c.Warnings)
}

func TestCompareCase_ImplementationError(t *testing.T) {
	c := CompareCase(nil, result("ref", tenPasses()...), DefaultOptions())
	assert.Equal(t, StatusImplementationError, c.Status)
	assert.Equal(t, "iss_nyc_24h", c.TestCase)

	f := Failed("iss_nyc_24h", "broken", assert.AnError)
	assert.Equal(t, "implementation_error", f.Verdict())
	assert.Equal(t, assert.AnError.Error(), f.Error)
	assert.NotEmpty(t, f.Reasons)
}

func TestCompareCase_WindowCountMismatch(t *testing.T) {
	ref := result("ref", tenPasses()...)
	impl := result("impl", tenPasses()[:9]...)

	c := CompareCase(impl, ref, DefaultOptions())
	assert.False(t, c.Passed)
	assert.Equal(t, 1, c.MissedWindows)
	assert.Equal(t, 9, c.MatchedWindows)
	assert.Contains(t, c.Reasons, "window count 9, reference 10")
}

func TestCompareCase_TimingReasons(t *testing.T) {
	ref := pass(0, 5, 30)
	impl := ref
	impl.Start = impl.Start.Add(2 * time.Second)
	impl.MaxElevationDeg += 0.2

	c := CompareCase(result("impl", impl), result("ref", ref), DefaultOptions())
	assert.False(t, c.Passed)
	assert.Len(t, c.Reasons, 2)
	// Points still agree, so the pass rate stays high.
	assert.Equal(t, 100.0, c.PassRate)
}

func TestCompareCase_WithoutPoints(t *testing.T) {
	bare := func() visibility.Window {
		w := pass(0, 3, 30)
		w.Points = nil
		return w
	}
	c := CompareCase(result("impl", bare()), result("ref", bare()), DefaultOptions())
	assert.True(t, c.Passed)
	assert.Equal(t, 100.0, c.PassRate)
	assert.Zero(t, c.Accuracy.Points())

	shifted := bare()
	shifted.End = shifted.End.Add(time.Minute)
	c = CompareCase(result("impl", shifted), result("ref", bare()), DefaultOptions())
	assert.False(t, c.Passed)
	assert.Equal(t, 0.0, c.PassRate)
	assert.Equal(t, GradePoor, c.Grade)
}

func TestCompareCase_TolerateMarginal(t *testing.T) {
	ref := tenPasses()
	marginal := pass(10*95*time.Minute, 3, 10.6)
	impl := append(tenPasses(), marginal)

	strict := CompareCase(result("impl", impl...), result("ref", ref...), DefaultOptions())
	assert.False(t, strict.Passed)
	assert.Equal(t, 1, strict.ExtraWindows)

	opts := DefaultOptions()
	opts.TolerateMarginal = true
	opts.ThresholdDeg = 10
	lenient := CompareCase(result("impl", impl...), result("ref", ref...), opts)
	assert.True(t, lenient.Passed, "reasons: %v", lenient.Reasons)
	assert.Zero(t, lenient.ExtraWindows)
	require.Len(t, lenient.Warnings, 1)
	assert.Contains(t, lenient.Warnings[0], "marginal extra window")

	// A high pass is never excused.
	impl = append(tenPasses(), pass(10*95*time.Minute, 3, 45))
	c := CompareCase(result("impl", impl...), result("ref", ref...), opts)
	assert.False(t, c.Passed)
}

func TestDeltaSetMerge(t *testing.T) {
	w := pass(0, 3, 30)
	var a, b DeltaSet
	a.Add(w.Points[0], w.Points[0])
	b.Add(w.Points[1], w.Points[2])
	b.Add(w.Points[2], w.Points[1])
	a.Merge(b)

	want := DeltaSet{
		Azimuth:   []float64{0, 5, 5},
		Elevation: []float64{0, 2, 2},
		Range:     []float64{0, 20, 20},
		RangeRate: []float64{0, 0.5, 0.5},
		Altitude:  []float64{0, 0, 0},
	}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("merged deltas mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, a.Len())
}
