package main

import (
	"errors"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/cprosche/visibility-testing/internal/report"
	"github.com/cprosche/visibility-testing/internal/results"
	"github.com/cprosche/visibility-testing/internal/testcase"
	"github.com/cprosche/visibility-testing/internal/validate"
)

var errNoResultFile = errors.New("no result file")

type reportFlags struct {
	format string
	output string
	gate   bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "text", "report format: text or json")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&f.gate, "gate", true, "exit non-zero when any case fails or errors")
}

func registerCompareFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("match-gate", validate.DefaultMatchGate, "largest start offset at which two windows are matched")
	cmd.Flags().Bool("tolerate-marginal", false, "report unmatched windows peaking near the threshold as warnings")
	cmd.Flags().Float64("marginal-band", validate.DefaultMarginalBand, "degrees above the threshold a window counts as marginal")
}

func newValidateCmd(a *app) *cobra.Command {
	var (
		rf    reportFlags
		impls []string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare stored result files against the reference results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := results.NewStore(a.cfg.ResultsDir, a.logger)

			refDir := a.cfg.ReferenceDir
			if refDir == "" {
				refDir = a.cfg.ResultsDir
			}
			refs, err := results.LoadReferenceSet(refDir, a.cfg.Reference, a.logger)
			if err != nil {
				return err
			}
			if refs.Len() == 0 {
				a.logger.Warn("no reference results found", "reference", a.cfg.Reference, "dir", refDir)
			}

			if len(impls) == 0 {
				found, err := store.Implementations()
				if err != nil {
					return err
				}
				impls = lo.Without(found, a.cfg.Reference)
			}

			thresholds := a.thresholds()
			opts := a.cfg.CompareOptions()
			acc := report.NewAccumulator(opts.Tolerances)
			for _, impl := range impls {
				latest, err := store.CollectLatest(impl)
				if err != nil {
					return err
				}
				if len(latest) == 0 {
					a.logger.Warn("no result files for implementation", "implementation", impl, "dir", a.cfg.ResultsDir)
				}
				// Reference cases the implementation never produced count as errors.
				ids := lo.Union(lo.Keys(latest), refs.TestCases())
				slices.Sort(ids)
				for _, id := range ids {
					res, ok := latest[id]
					if !ok {
						acc.Add(validate.Failed(id, impl, errNoResultFile), nil)
						continue
					}
					ref, _ := refs.Lookup(id)
					opts.ThresholdDeg = thresholds[id]
					acc.Add(validate.CompareCase(res, ref, opts), res)
				}
			}

			rep := acc.Build(a.cfg.Implementations)
			a.writeMetrics()
			if err := emit(rep, rf.format, rf.output, cmd.OutOrStdout()); err != nil {
				return err
			}
			return gate(rep, rf.gate)
		},
	}
	rf.register(cmd)
	registerCompareFlags(cmd)
	cmd.Flags().StringSliceVar(&impls, "implementations", nil, "implementations to validate (default every one found except the reference)")
	cmd.Flags().String("results-dir", "results", "directory holding result files")
	cmd.Flags().String("reference-dir", "", "directory holding reference result files (default results-dir)")
	return cmd
}

// thresholds maps test case ids to their elevation threshold. Result files
// carry no threshold, so it is read from the fixtures; a missing fixture
// leaves the threshold at 0.
func (a *app) thresholds() map[string]float64 {
	out := make(map[string]float64)
	cases, failed, err := testcase.LoadDir(a.cfg.CasesDir, nil)
	if err != nil {
		a.logger.Warn("test cases unavailable, using a 0° threshold for marginal windows", "error", err)
		return out
	}
	for _, f := range failed {
		a.logger.Debug("skipping test case", "path", f.Path, "error", f.Err)
	}
	for _, tc := range cases {
		out[tc.ID] = tc.MinElevationDeg
	}
	return out
}
