package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cprosche/visibility-testing/internal/config"
	"github.com/cprosche/visibility-testing/internal/logging"
	"github.com/cprosche/visibility-testing/internal/observability"
)

// app carries state shared by every subcommand once configuration is loaded.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *slog.Logger

	shutdownTracing func(context.Context) error
}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"addr":       "http.addr",
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "visval",
		Short:        "Cross-check satellite visibility windows between SGP4 implementations",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./.visval.yaml or $HOME/.visval.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.Int("workers", 4, "number of concurrent calculations")
	pf.Duration("case-timeout", 2*time.Minute, "deadline per calculation; expiry truncates the result (0 disables)")
	pf.String("cases-dir", "test-data/cases", "directory holding test case fixtures")
	pf.StringSlice("cases", nil, "test case ids to load (default all)")
	pf.StringSlice("engines", nil, "engines to run (default all)")
	pf.String("reference", "go-satellite-wgs72", "reference implementation name")
	pf.String("tle-source", "", "URL or file of an element catalog overriding fixture elements by catalog number")
	pf.String("metrics-file", "", "write Prometheus metrics in text format to this file after the run")

	cmd.AddCommand(
		newEnginesCmd(a),
		newComputeCmd(a),
		newValidateCmd(a),
		newRunCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// setup resolves configuration, builds the logger and starts tracing.
func (a *app) setup(cmd *cobra.Command) error {
	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(cmd.Flags(), v); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.v, a.cfg = v, cfg

	a.logger = logging.New(cfg.Logging())
	slog.SetDefault(a.logger)
	if f := v.ConfigFileUsed(); f != "" {
		a.logger.Debug("using config file", "path", f)
	}

	shutdown, err := observability.InitTracing(cmd.Context(), cfg.TracingSettings(), a.logger)
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}

// close flushes tracing. It is safe to call when setup never ran.
func (a *app) close() {
	if a.shutdownTracing == nil {
		return
	}
	observability.ShutdownWithTimeout(context.Background(), a.shutdownTracing, a.logger)
	a.shutdownTracing = nil
}

// bindFlags binds every flag that names a config key, so a flag set on the
// command line wins over the environment, the config file and defaults.
func bindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := f.Name
		if k, ok := flagKeys[f.Name]; ok {
			key = k
		}
		if !v.IsSet(key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("binding flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}
