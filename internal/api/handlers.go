package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cprosche/visibility-testing/internal/metrics"
	"github.com/cprosche/visibility-testing/internal/observability"
	"github.com/cprosche/visibility-testing/internal/propagation"
	"github.com/cprosche/visibility-testing/internal/results"
	"github.com/cprosche/visibility-testing/internal/testcase"
	"github.com/cprosche/visibility-testing/internal/validate"
	"github.com/cprosche/visibility-testing/internal/visibility"
)

type handlers struct {
	opts   Options
	logger *slog.Logger
}

// EngineDescription is one entry of the engine catalogue.
type EngineDescription struct {
	Name      string `json:"name"`
	Reference bool   `json:"reference"`
	propagation.EngineInfo
}

// ValidateRequest is the body of POST /api/v1/validate. When Reference is
// absent it is computed from TestCase with the reference engine.
type ValidateRequest struct {
	TestCase  json.RawMessage `json:"testCase,omitempty"`
	Result    json.RawMessage `json:"result"`
	Reference json.RawMessage `json:"reference,omitempty"`
}

type apiError struct {
	Error      string `json:"error"`
	MaxSamples int    `json:"max_samples,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func (h *handlers) describe(e propagation.Engine) EngineDescription {
	return EngineDescription{Name: e.Name(), Reference: e.Name() == h.opts.Reference, EngineInfo: e.Info()}
}

func (h *handlers) listEngines(w http.ResponseWriter, r *http.Request) {
	engines, _ := h.opts.Registry.Select(nil)
	out := make([]EngineDescription, 0, len(engines))
	for _, e := range engines {
		out = append(out, h.describe(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"engines": out, "reference": h.opts.Reference})
}

func (h *handlers) getEngine(w http.ResponseWriter, r *http.Request) {
	e, err := h.opts.Registry.Lookup(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.describe(e))
}

// readBody reads the request body within the configured limit. The returned
// status is non-zero when the body could not be read.
func (h *handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("reading request body: %w", err)
	}
	return body, 0, nil
}

func fixtureFormat(r *http.Request) testcase.Format {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return testcase.FormatYAML
	default:
		return testcase.FormatJSON
	}
}

// checkBudget rejects grids larger than MaxSamples before any propagation.
func (h *handlers) checkBudget(w http.ResponseWriter, tc testcase.TestCase) bool {
	n := int(tc.Window.End.Sub(tc.Window.Start)/tc.Window.Step) + 1
	if n > h.opts.MaxSamples {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:      fmt.Sprintf("time grid of %d samples exceeds the limit", n),
			MaxSamples: h.opts.MaxSamples,
		})
		return false
	}
	return true
}

func (h *handlers) calculate(r *http.Request, engineName string, tc testcase.TestCase) (*visibility.Result, int, error) {
	engine, err := h.opts.Registry.Lookup(engineName)
	if err != nil {
		return nil, http.StatusNotFound, err
	}

	ctx, span := observability.Tracer().Start(r.Context(), "visval.calculate")
	defer span.End()
	span.SetAttributes(
		attribute.String("visval.engine", engineName),
		attribute.String("visval.test_case", tc.ID),
	)

	res, err := visibility.NewCalculator(engine, h.opts.Version, h.logger).Calculate(ctx, tc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, http.StatusUnprocessableEntity, err
	}
	span.SetAttributes(attribute.Int("visval.windows", len(res.Windows)))
	return res, 0, nil
}

func (h *handlers) visibility(w http.ResponseWriter, r *http.Request) {
	engineName := r.URL.Query().Get("engine")
	if engineName == "" {
		engineName = h.opts.Reference
	}

	body, status, err := h.readBody(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	tc, err := testcase.Parse(body, fixtureFormat(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.checkBudget(w, tc) {
		return
	}

	res, status, err := h.calculate(r, engineName, tc)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	if res.Stats != nil && res.Stats.Truncated {
		h.logger.Warn("returning truncated result", "engine", engineName, "test_case", tc.ID)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	body, status, err := h.readBody(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	var req ValidateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "decoding request: "+err.Error())
		return
	}
	if len(req.Result) == 0 {
		writeError(w, http.StatusBadRequest, "result is required")
		return
	}
	impl, err := results.Decode(req.Result)
	if err != nil {
		writeError(w, http.StatusBadRequest, "result: "+err.Error())
		return
	}

	opts := h.opts.Compare
	var ref *visibility.Result
	if len(req.TestCase) > 0 {
		tc, err := testcase.Parse(req.TestCase, testcase.FormatJSON)
		if err != nil {
			writeError(w, http.StatusBadRequest, "testCase: "+err.Error())
			return
		}
		if tc.ID != impl.TestCase {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("result is for test case %q, fixture is %q", impl.TestCase, tc.ID))
			return
		}
		opts.ThresholdDeg = tc.MinElevationDeg
		if len(req.Reference) == 0 {
			if !h.checkBudget(w, tc) {
				return
			}
			ref, status, err = h.calculate(r, h.opts.Reference, tc)
			if err != nil {
				writeError(w, status, "reference: "+err.Error())
				return
			}
		}
	}
	if len(req.Reference) > 0 {
		ref, err = results.Decode(req.Reference)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reference: "+err.Error())
			return
		}
	}
	if ref == nil {
		writeError(w, http.StatusBadRequest, "either testCase or reference is required")
		return
	}

	cmp := validate.CompareCase(impl, ref, opts)
	metrics.RecordVerdict(h.verdictLabel(cmp.Implementation), cmp.Verdict())
	writeJSON(w, http.StatusOK, cmp)
}

// externalImplementation labels verdicts for results from engines this
// server does not run. Request bodies name the implementation freely, so
// only registered names reach the metric label.
const externalImplementation = "external"

func (h *handlers) verdictLabel(implementation string) string {
	if _, err := h.opts.Registry.Lookup(implementation); err == nil {
		return implementation
	}
	return externalImplementation
}
