package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cprosche/visibility-testing/internal/metrics"
	"github.com/cprosche/visibility-testing/internal/propagation"
	"github.com/cprosche/visibility-testing/internal/report"
	"github.com/cprosche/visibility-testing/internal/results"
	"github.com/cprosche/visibility-testing/internal/runner"
	"github.com/cprosche/visibility-testing/internal/testcase"
	"github.com/cprosche/visibility-testing/internal/tle"
)

// errGate is returned when a validated run has failing or erroring cases.
var errGate = errors.New("validation gate failed")

// loadCases loads the configured fixtures. Fixtures that fail to load are
// logged and skipped; having none left is an error. With tle-source set,
// elements are replaced by the catalog entry with the same catalog number.
func (a *app) loadCases(ctx context.Context) ([]testcase.TestCase, error) {
	cases, failed, err := testcase.LoadDir(a.cfg.CasesDir, a.cfg.Cases)
	if err != nil {
		return nil, err
	}
	for _, f := range failed {
		a.logger.Warn("skipping test case", "case", f.CaseID(), "path", f.Path, "error", f.Err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no test cases loaded from %s", a.cfg.CasesDir)
	}

	if a.cfg.TLESource == "" {
		return cases, nil
	}
	catalog, err := tle.NewFetcher(a.cfg.TLESource, a.logger).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading elements from %s: %w", a.cfg.TLESource, err)
	}
	for i, tc := range cases {
		el, ok := catalog[tc.Satellite.CatalogNumber]
		if !ok {
			a.logger.Warn("catalog has no elements for test case satellite, keeping fixture elements",
				"case", tc.ID, "catalog_number", tc.Satellite.CatalogNumber)
			continue
		}
		cases[i] = tc.WithElements(el)
		a.logger.Info("replaced test case elements", "case", tc.ID, "epoch", el.Epoch)
	}
	return cases, nil
}

// engines resolves the configured engine names against the built-in registry.
func (a *app) engines(registry *propagation.Registry) ([]propagation.Engine, error) {
	return registry.Select(a.cfg.Engines)
}

func (a *app) runner() *runner.Runner {
	return runner.New(runner.Options{
		Workers:     a.cfg.Workers,
		CaseTimeout: a.cfg.CaseTimeout,
		Version:     version,
		Logger:      a.logger,
	})
}

// saveOutcomes writes every successful result and prunes old files per
// engine. It returns the number of failed calculations.
func (a *app) saveOutcomes(outcomes []runner.Outcome) (int, error) {
	store := results.NewStore(a.cfg.ResultsDir, a.logger)
	failed := 0
	written := make(map[string]bool)
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			a.logger.Error("calculation failed", "engine", o.Engine, "case", o.Case.ID, "error", o.Err)
			continue
		}
		path, err := store.Write(o.Result)
		if err != nil {
			return failed, err
		}
		written[o.Engine] = true
		a.logger.Debug("result written", "path", path)
	}

	for engine := range written {
		removed, err := store.Prune(engine, a.cfg.KeepResults)
		if err != nil {
			return failed, err
		}
		if removed > 0 {
			a.logger.Info("pruned old result files", "engine", engine, "removed", removed)
		}
	}
	return failed, nil
}

// writeMetrics dumps the registry when metrics-file is set.
func (a *app) writeMetrics() {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.logger.Warn("writing metrics file", "path", a.cfg.MetricsFile, "error", err)
	}
}

// emit renders the report in format ("text" or "json") to output, or to w
// when output is empty.
func emit(rep *report.Report, format, output string, w io.Writer) error {
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		return rep.WriteJSON(w)
	case "text", "":
		return rep.WriteText(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// gate turns failing or erroring cases into errGate.
func gate(rep *report.Report, enabled bool) error {
	if !enabled {
		return nil
	}
	if f, e := rep.Failures(), rep.Errors(); f+e > 0 {
		return fmt.Errorf("%w: %d failed, %d errors", errGate, f, e)
	}
	return nil
}
