package main

import (
	"github.com/spf13/cobra"

	"github.com/cprosche/visibility-testing/internal/propagation"
	"github.com/cprosche/visibility-testing/internal/report"
	"github.com/cprosche/visibility-testing/internal/results"
	"github.com/cprosche/visibility-testing/internal/validate"
	"github.com/cprosche/visibility-testing/internal/visibility"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		rf   reportFlags
		save bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Calculate, validate and rank every engine in one process",
		Long: `run calculates every selected engine over every test case, compares each
result against the reference and prints the accuracy and speed rankings.

The reference is the engine named by --reference, which is added to the run
when not selected. With --reference-dir set, stored results of that name are
used instead, which allows validating against implementations outside this
binary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cases, err := a.loadCases(ctx)
			if err != nil {
				return err
			}
			registry := propagation.DefaultRegistry()
			engines, err := a.engines(registry)
			if err != nil {
				return err
			}

			var refs *results.ReferenceSet
			computedRef := a.cfg.ReferenceDir == ""
			if computedRef {
				refEngine, err := registry.Lookup(a.cfg.Reference)
				if err != nil {
					return err
				}
				if !containsEngine(engines, refEngine.Name()) {
					engines = append(engines, refEngine)
				}
			} else {
				refs, err = results.LoadReferenceSet(a.cfg.ReferenceDir, a.cfg.Reference, a.logger)
				if err != nil {
					return err
				}
				a.logger.Info("loaded reference results", "reference", refs.Name(), "cases", refs.Len())
			}

			a.logger.Info("running", "engines", len(engines), "cases", len(cases), "reference", a.cfg.Reference)
			outcomes := a.runner().Run(ctx, engines, cases)

			if computedRef {
				var refResults []*visibility.Result
				for _, o := range outcomes {
					if o.Engine == a.cfg.Reference && o.Result != nil {
						refResults = append(refResults, o.Result)
					}
				}
				refs = results.NewReferenceSet(a.cfg.Reference, refResults)
			}

			opts := a.cfg.CompareOptions()
			acc := report.NewAccumulator(opts.Tolerances)
			for _, o := range outcomes {
				if computedRef && o.Engine == a.cfg.Reference {
					continue
				}
				if o.Err != nil {
					acc.Add(validate.Failed(o.Case.ID, o.Engine, o.Err), nil)
					continue
				}
				ref, _ := refs.Lookup(o.Case.ID)
				opts.ThresholdDeg = o.Case.MinElevationDeg
				acc.Add(validate.CompareCase(o.Result, ref, opts), o.Result)
			}

			if save {
				if _, err := a.saveOutcomes(outcomes); err != nil {
					return err
				}
			}

			rep := acc.Build(a.cfg.Implementations)
			a.writeMetrics()
			if err := emit(rep, rf.format, rf.output, cmd.OutOrStdout()); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return gate(rep, rf.gate)
		},
	}
	rf.register(cmd)
	registerCompareFlags(cmd)
	cmd.Flags().BoolVar(&save, "save", false, "also write result files to results-dir")
	cmd.Flags().String("results-dir", "results", "directory result files are written to with --save")
	cmd.Flags().Int("keep-results", 0, "result files kept per engine and case (0 keeps all)")
	cmd.Flags().String("reference-dir", "", "use stored reference results from this directory")
	return cmd
}

func containsEngine(engines []propagation.Engine, name string) bool {
	for _, e := range engines {
		if e.Name() == name {
			return true
		}
	}
	return false
}
