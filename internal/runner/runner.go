// Package runner fans (engine, test case) jobs out over a fixed pool of
// workers and collects their outcomes in a deterministic order.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cprosche/visibility-testing/internal/observability"
	"github.com/cprosche/visibility-testing/internal/propagation"
	"github.com/cprosche/visibility-testing/internal/testcase"
	"github.com/cprosche/visibility-testing/internal/visibility"
)

// Outcome is the result of one (engine, test case) job. Exactly one of Result
// and Err is set.
type Outcome struct {
	Engine   string
	Case     testcase.TestCase
	Result   *visibility.Result
	Err      error
	Duration time.Duration
}

// job is a unit of work for the pool.
type job struct {
	index  int
	engine propagation.Engine
	tc     testcase.TestCase
}

// jobResult pairs an outcome with its job index.
type jobResult struct {
	index   int
	outcome Outcome
}

// Options configures a Runner.
type Options struct {
	Workers     int
	CaseTimeout time.Duration // 0 disables the per-case deadline
	Version     string
	Logger      *slog.Logger
}

// Runner manages a fixed number of goroutines running calculations.
type Runner struct {
	workers     int
	caseTimeout time.Duration
	version     string
	logger      *slog.Logger
}

// New creates a runner. Fewer than one worker is treated as one.
func New(opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		workers:     opts.Workers,
		caseTimeout: opts.CaseTimeout,
		version:     opts.Version,
		logger:      opts.Logger.With("component", "runner"),
	}
}

// Run calculates every case with every engine. Outcomes are ordered by engine,
// then by case, following the order of the arguments. A failing job never
// stops the others. Jobs not started before ctx ends carry ctx's error.
func (r *Runner) Run(ctx context.Context, engines []propagation.Engine, cases []testcase.TestCase) []Outcome {
	total := len(engines) * len(cases)
	if total == 0 {
		return nil
	}

	jobs := make(chan job, r.workers*2)
	results := make(chan jobResult, r.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				// The collector drains results until close, so this never blocks forever.
				results <- jobResult{index: j.index, outcome: r.runOne(ctx, j)}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		idx := 0
		for _, e := range engines {
			for _, tc := range cases {
				select {
				case jobs <- job{index: idx, engine: e, tc: tc}:
				case <-ctx.Done():
					return
				}
				idx++
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]Outcome, total)
	done := make([]bool, total)
	var failed int
	for res := range results {
		outcomes[res.index] = res.outcome
		done[res.index] = true
		if res.outcome.Err != nil {
			failed++
		}
	}

	// Fill in jobs that never ran.
	idx := 0
	for _, e := range engines {
		for _, tc := range cases {
			if !done[idx] {
				err := ctx.Err()
				if err == nil {
					err = context.Canceled
				}
				outcomes[idx] = Outcome{Engine: e.Name(), Case: tc, Err: fmt.Errorf("not started: %w", err)}
				failed++
			}
			idx++
		}
	}

	r.logger.Info("run complete", "jobs", total, "failed", failed, "workers", r.workers)
	return outcomes
}

// runOne calculates one job under its own deadline and span.
func (r *Runner) runOne(ctx context.Context, j job) Outcome {
	name := j.engine.Name()
	ctx, span := observability.Tracer().Start(ctx, "visval.calculate",
		trace.WithAttributes(
			attribute.String("visval.engine", name),
			attribute.String("visval.test_case", j.tc.ID),
		),
	)
	defer span.End()

	if r.caseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.caseTimeout)
		defer cancel()
	}

	start := time.Now()
	calc := visibility.NewCalculator(j.engine, r.version, r.logger)
	res, err := calc.Calculate(ctx, j.tc)
	out := Outcome{Engine: name, Case: j.tc, Result: res, Err: err, Duration: time.Since(start)}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("calculation failed", "engine", name, "test_case", j.tc.ID, "error", err)
		return out
	}
	span.SetAttributes(
		attribute.Int("visval.windows", len(res.Windows)),
		attribute.Bool("visval.truncated", res.Stats != nil && res.Stats.Truncated),
	)
	return out
}
