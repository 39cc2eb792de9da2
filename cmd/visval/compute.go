package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cprosche/visibility-testing/internal/propagation"
)

func newComputeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Calculate visibility windows and write one result file per engine and case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cases, err := a.loadCases(ctx)
			if err != nil {
				return err
			}
			engines, err := a.engines(propagation.DefaultRegistry())
			if err != nil {
				return err
			}

			a.logger.Info("computing", "engines", len(engines), "cases", len(cases), "workers", a.cfg.Workers)
			outcomes := a.runner().Run(ctx, engines, cases)
			failed, err := a.saveOutcomes(outcomes)
			a.writeMetrics()
			if err != nil {
				return err
			}
			a.logger.Info("results written", "dir", a.cfg.ResultsDir, "results", len(outcomes)-failed, "failed", failed)

			if failed > 0 {
				return fmt.Errorf("%d of %d calculations failed", failed, len(outcomes))
			}
			return ctx.Err()
		},
	}
	cmd.Flags().String("results-dir", "results", "directory result files are written to")
	cmd.Flags().Int("keep-results", 0, "result files kept per engine and case (0 keeps all)")
	return cmd
}
