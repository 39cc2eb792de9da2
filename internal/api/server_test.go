package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cprosche/visibility-testing/internal/auth"
	"github.com/cprosche/visibility-testing/internal/health"
	"github.com/cprosche/visibility-testing/internal/propagation"
	"github.com/cprosche/visibility-testing/internal/validate"
	"github.com/cprosche/visibility-testing/internal/visibility"
)

const reference = "go-satellite-wgs72"

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testOptions() Options {
	return Options{
		Registry:  propagation.DefaultRegistry(),
		Reference: reference,
		Compare:   validate.DefaultOptions(),
		Version:   "test",
		Logger:    testLogger(),
	}
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "test-data", "cases", name))
	require.NoError(t, err)
	return data
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestEngines(t *testing.T) {
	h := NewServer(testOptions()).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/engines", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Engines   []EngineDescription `json:"engines"`
		Reference string              `json:"reference"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, reference, list.Reference)
	require.Len(t, list.Engines, 3)
	for _, e := range list.Engines {
		assert.NotEmpty(t, e.LibraryName)
		assert.Equal(t, e.Name == reference, e.Reference)
	}

	w = do(t, h, http.MethodGet, "/api/v1/engines/akhenakh-sgp4", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"libraryName":"github.com/akhenakh/sgp4"`)

	w = do(t, h, http.MethodGet, "/api/v1/engines/orekit", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVisibility(t *testing.T) {
	h := NewServer(testOptions()).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/visibility?engine=akhenakh-sgp4", fixture(t, "iss_equator_6h.json"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res visibility.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "akhenakh-sgp4", res.Implementation)
	assert.Equal(t, "iss_equator_6h", res.TestCase)
	assert.Equal(t, "test", res.Version)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 2161, res.Stats.GridSize)
}

func TestVisibility_YAMLDefaultsToReference(t *testing.T) {
	h := NewServer(testOptions()).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/visibility", fixture(t, "iss_london_12h.yaml"),
		http.Header{"Content-Type": {"application/yaml"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"implementation":"`+reference+`"`)
}

func TestVisibility_Errors(t *testing.T) {
	valid := fixture(t, "iss_equator_6h.json")

	tests := []struct {
		name       string
		mutate     func(*Options)
		target     string
		body       []byte
		wantStatus int
		wantBody   string
	}{
		{"unknown engine", nil, "/api/v1/visibility?engine=orekit", valid, http.StatusNotFound, "unknown engine"},
		{"invalid fixture", nil, "/api/v1/visibility", []byte(`{"name": "x"}`), http.StatusBadRequest, "invalid test case"},
		{"not json", nil, "/api/v1/visibility", []byte(`{`), http.StatusBadRequest, ""},
		{"sample budget", func(o *Options) { o.MaxSamples = 100 }, "/api/v1/visibility", valid, http.StatusBadRequest, `"max_samples":100`},
		{"body too large", func(o *Options) { o.MaxBodyBytes = 64 }, "/api/v1/visibility", valid, http.StatusRequestEntityTooLarge, "exceeds 64 bytes"},
		{"wrong method", nil, "/api/v1/visibility", nil, http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			method := http.MethodPost
			if tt.name == "wrong method" {
				method = http.MethodGet
			}
			w := do(t, NewServer(opts).Handler(), method, tt.target, tt.body, nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	h := NewServer(testOptions()).Handler()
	tc := fixture(t, "iss_equator_6h.json")

	w := do(t, h, http.MethodPost, "/api/v1/visibility?engine="+reference, tc, nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := w.Body.Bytes()

	t.Run("reference computed from fixture", func(t *testing.T) {
		body, err := json.Marshal(ValidateRequest{TestCase: tc, Result: result})
		require.NoError(t, err)

		w := do(t, h, http.MethodPost, "/api/v1/validate", body, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var cmp validate.CaseComparison
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cmp))
		assert.Equal(t, validate.StatusCompared, cmp.Status)
		assert.True(t, cmp.Passed, cmp.Reasons)
		assert.Equal(t, 100.0, cmp.PassRate)
	})

	t.Run("explicit reference", func(t *testing.T) {
		body, err := json.Marshal(ValidateRequest{Result: result, Reference: result})
		require.NoError(t, err)

		w := do(t, h, http.MethodPost, "/api/v1/validate", body, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"passed":true`)
	})

	t.Run("bad requests", func(t *testing.T) {
		mismatched := strings.Replace(string(result), `"testCase":"iss_equator_6h"`, `"testCase":"other"`, 1)
		for _, body := range []string{
			`{`,
			`{}`,
			`{"result": {"testCase": "x"}}`,
			`{"result": ` + string(result) + `}`,
			`{"result": ` + mismatched + `, "testCase": ` + string(tc) + `}`,
		} {
			w := do(t, h, http.MethodPost, "/api/v1/validate", []byte(body), nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		}
	})
}

func verdictSeries(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, mf := range families {
		if mf.GetName() != "visval_case_verdicts_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "implementation" {
					seen[l.GetValue()] = true
				}
			}
		}
	}
	return seen
}

func TestValidate_VerdictLabelsBounded(t *testing.T) {
	h := NewServer(testOptions()).Handler()
	w := do(t, h, http.MethodPost, "/api/v1/visibility?engine="+reference, fixture(t, "iss_equator_6h.json"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	post := func(name string) {
		result["implementation"] = name
		raw, err := json.Marshal(result)
		require.NoError(t, err)
		body, err := json.Marshal(ValidateRequest{Result: raw, Reference: raw})
		require.NoError(t, err)
		w := do(t, h, http.MethodPost, "/api/v1/validate", body, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	for i := range 50 {
		post(fmt.Sprintf("client-build-%d", i))
	}
	post(reference)

	seen := verdictSeries(t)
	assert.True(t, seen["external"])
	assert.True(t, seen[reference])
	for name := range seen {
		assert.NotContains(t, name, "client-build-")
	}
}

func TestAuthAndProbes(t *testing.T) {
	opts := testOptions()
	opts.Auth = auth.Config{Enabled: true, Token: "s3cret"}
	opts.Readiness = health.NewReadiness()
	h := NewServer(opts).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/engines", nil, nil).Code)

	opts.Readiness.SetReady()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", nil, nil).Code)

	tc := fixture(t, "iss_equator_6h.json")
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/visibility", tc, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/visibility", tc,
		http.Header{"Authorization": {"Bearer s3cret"}}).Code)

	w := do(t, h, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "visval_")
}

func TestPublicRoutesFollowRouteTable(t *testing.T) {
	opts := testOptions()
	opts.Auth = auth.Config{Enabled: true, Token: "s3cret"}
	opts.Readiness = health.NewReadiness()
	srv := NewServer(opts)
	h := &handlers{opts: opts}

	for _, rt := range h.routes() {
		method, path, ok := strings.Cut(rt.pattern, " ")
		require.True(t, ok, rt.pattern)
		path = strings.Replace(path, "{name}", reference, 1)

		t.Run(rt.pattern, func(t *testing.T) {
			w := do(t, srv.Handler(), method, path, []byte(`{}`), nil)
			if rt.public {
				assert.NotEqual(t, http.StatusUnauthorized, w.Code)
			} else {
				assert.Equal(t, http.StatusUnauthorized, w.Code)
			}
		})
	}

	// A public path under a method it does not serve is not public.
	assert.Equal(t, http.StatusUnauthorized, do(t, srv.Handler(), http.MethodPost, "/api/v1/engines", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv.Handler(), http.MethodGet, "/api/v1/unknown", nil, nil).Code)
}
