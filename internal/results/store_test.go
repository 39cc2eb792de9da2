package results

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cprosche/visibility-testing/internal/visibility"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func sampleResult(impl, tc string, ts time.Time, maxEl float64) *visibility.Result {
	start := time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)
	return &visibility.Result{
		TestCase:       tc,
		Implementation: impl,
		Version:        "1.0.0",
		Windows: []visibility.Window{{
			Start:            start,
			End:              start.Add(30 * time.Second),
			MaxElevationDeg:  maxEl,
			MaxElevationTime: start.Add(10 * time.Second),
			DurationSeconds:  30,
			Points: []visibility.Sample{
				{Time: start, AzimuthDeg: 10.5, ElevationDeg: 11, RangeKm: 1500.25, RangeRateKmS: -5.125, AltitudeKm: 420.1},
			},
		}},
		ExecutionTime: 0.042,
		Timestamp:     ts,
		Metadata:      visibility.Metadata{LibraryName: "lib", LibraryVersion: "v1", Platform: "go"},
	}
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name     string
		impl     string
		wantCase string
		wantTS   time.Time
		wantOK   bool
	}{
		{"python-sgp4_iss_nyc_24h_20250518_120000.json", "python-sgp4", "iss_nyc_24h", time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC), true},
		{"python-sgp4_iss_nyc_24h.json", "python-sgp4", "iss_nyc_24h", time.Time{}, true},
		{"python-sgp4_simple.json", "python-sgp4", "simple", time.Time{}, true},
		{"python-sgp4_case_2025_1200.json", "python-sgp4", "case_2025_1200", time.Time{}, true},
		{"rust-sgp4_iss_nyc_24h_20250518_120000.json", "python-sgp4", "", time.Time{}, false},
		{"python-sgp4_iss.txt", "python-sgp4", "", time.Time{}, false},
		{"python-sgp4_.json", "python-sgp4", "", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, ts, ok := ParseFileName(tt.name, tt.impl)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCase, tc)
			assert.True(t, tt.wantTS.Equal(ts), "timestamp %v, want %v", ts, tt.wantTS)
		})
	}

	ts := time.Date(2025, 5, 18, 9, 8, 7, 0, time.UTC)
	assert.Equal(t, "akhenakh-sgp4_leo_20250518_090807.json", FileName("akhenakh-sgp4", "leo", ts))
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger)
	ts := time.Date(2025, 5, 18, 12, 30, 0, 0, time.UTC)
	res := sampleResult("go-satellite-wgs72", "iss_nyc_24h", ts, 42.5)

	path, err := store.Write(res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "go-satellite-wgs72_iss_nyc_24h_20250518_123000.json"), path)

	got, err := Read(path)
	require.NoError(t, err)
	if diff := cmp.Diff(res, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"timestamp": "2025-05-18T12:30:00Z"`)
	assert.Contains(t, string(raw), `"visibilityWindows"`)
}

func TestWriteRequiresIdentity(t *testing.T) {
	_, err := NewStore(t.TempDir(), testLogger).Write(&visibility.Result{})
	assert.True(t, errors.Is(err, ErrInvalidResult))
}

func TestDecode(t *testing.T) {
	// Calculators outside this module write the same layout.
	doc := `{
  "testCase": "iss_nyc_24h",
  "implementation": "python-sgp4",
  "version": "1.0.0",
  "visibilityWindows": [],
  "executionTime": 0.123,
  "timestamp": "2025-05-18T12:00:00Z",
  "metadata": {"libraryName": "sgp4", "libraryVersion": "2.22", "platform": "Python 3.11"}
}`
	res, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "python-sgp4", res.Implementation)
	assert.NotNil(t, res.Windows)
	assert.Nil(t, res.Stats)

	_, err = Decode([]byte(`{"testCase": "x"}`))
	assert.ErrorIs(t, err, ErrInvalidResult)
	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidResult)

	res, err = Decode([]byte(`{"testCase": "x", "implementation": "y", "visibilityWindows": null}`))
	require.NoError(t, err)
	assert.NotNil(t, res.Windows)
}

func TestCollectLatest(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger)
	day := time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)

	for i, maxEl := range []float64{10, 20, 30} {
		_, err := store.Write(sampleResult("impl", "case_a", day.Add(time.Duration(i)*time.Hour), maxEl))
		require.NoError(t, err)
	}
	_, err := store.Write(sampleResult("impl", "case_b", day, 50))
	require.NoError(t, err)
	_, err = store.Write(sampleResult("other", "case_a", day.Add(5*time.Hour), 99))
	require.NoError(t, err)

	// A legacy file is older than any stamped one.
	data, err := os.ReadFile(filepath.Join(dir, FileName("impl", "case_b", day)))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "impl_case_c.json"), data, 0644))

	// Broken files are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName("impl", "case_d", day)), []byte("{"), 0644))

	latest, err := store.CollectLatest("impl")
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, 30.0, latest["case_a"].Windows[0].MaxElevationDeg)
	assert.Equal(t, 50.0, latest["case_b"].Windows[0].MaxElevationDeg)
	assert.Contains(t, latest, "case_c")
	assert.NotContains(t, latest, "case_d")

	impls, err := store.Implementations()
	require.NoError(t, err)
	assert.Equal(t, []string{"impl", "other"}, impls)
}

func TestCollectLatestMissingDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"), testLogger)
	latest, err := store.CollectLatest("impl")
	require.NoError(t, err)
	assert.Empty(t, latest)

	impls, err := store.Implementations()
	require.NoError(t, err)
	assert.Empty(t, impls)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, testLogger)
	day := time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.Write(sampleResult("impl", "case_a", day.Add(time.Duration(i)*time.Minute), float64(i)))
		require.NoError(t, err)
	}

	removed, err := store.Prune("impl", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	latest, err := store.CollectLatest("impl")
	require.NoError(t, err)
	assert.Equal(t, 4.0, latest["case_a"].Windows[0].MaxElevationDeg)
}

func TestReferenceSet(t *testing.T) {
	day := time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)
	set := NewReferenceSet("go-satellite-wgs72", []*visibility.Result{
		sampleResult("go-satellite-wgs72", "case_a", day, 10),
		nil,
		sampleResult("go-satellite-wgs72", "case_b", day, 20),
	})
	assert.Equal(t, "go-satellite-wgs72", set.Name())
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"case_a", "case_b"}, set.TestCases())

	ref, ok := set.Lookup("case_b")
	require.True(t, ok)
	assert.Equal(t, 20.0, ref.Windows[0].MaxElevationDeg)
	_, ok = set.Lookup("case_z")
	assert.False(t, ok)

	var empty *ReferenceSet
	_, ok = empty.Lookup("case_a")
	assert.False(t, ok)
	assert.Zero(t, empty.Len())
}

func TestLoadReferenceSet(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)
	store := NewStore(dir, testLogger)
	_, err := store.Write(sampleResult("python-skyfield", "case_a", day, 10))
	require.NoError(t, err)
	_, err = store.Write(sampleResult("python-sgp4", "case_a", day, 99))
	require.NoError(t, err)

	set, err := LoadReferenceSet(dir, "python-skyfield", testLogger)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	ref, ok := set.Lookup("case_a")
	require.True(t, ok)
	assert.Equal(t, "python-skyfield", ref.Implementation)
}
