// Package config resolves visval settings from flags, environment variables
// and an optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cprosche/visibility-testing/internal/logging"
	"github.com/cprosche/visibility-testing/internal/observability"
	"github.com/cprosche/visibility-testing/internal/report"
	"github.com/cprosche/visibility-testing/internal/validate"
)

// EnvPrefix prefixes every environment variable, e.g. VISVAL_WORKERS.
const EnvPrefix = "VISVAL"

// Config holds the resolved configuration.
type Config struct {
	Log              LogConfig                        `mapstructure:"log"`
	Workers          int                              `mapstructure:"workers"`
	CaseTimeout      time.Duration                    `mapstructure:"case-timeout"`
	CasesDir         string                           `mapstructure:"cases-dir"`
	Cases            []string                         `mapstructure:"cases"`
	ResultsDir       string                           `mapstructure:"results-dir"`
	KeepResults      int                              `mapstructure:"keep-results"`
	ReferenceDir     string                           `mapstructure:"reference-dir"`
	Reference        string                           `mapstructure:"reference"`
	Engines          []string                         `mapstructure:"engines"`
	TLESource        string                           `mapstructure:"tle-source"`
	MatchGate        time.Duration                    `mapstructure:"match-gate"`
	TolerateMarginal bool                             `mapstructure:"tolerate-marginal"`
	MarginalBand     float64                          `mapstructure:"marginal-band"`
	MetricsFile      string                           `mapstructure:"metrics-file"`
	Tracing          TracingConfig                    `mapstructure:"tracing"`
	HTTP             HTTPConfig                       `mapstructure:"http"`
	Auth             AuthConfig                       `mapstructure:"auth"`
	Implementations  map[string]report.Implementation `mapstructure:"implementations"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample-ratio"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read-header-timeout"`
	WriteTimeout      time.Duration `mapstructure:"write-timeout"`
	MaxBodyBytes      int64         `mapstructure:"max-body-bytes"`
}

// AuthConfig enables bearer-token authentication on the HTTP API.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("workers", 4)
	v.SetDefault("case-timeout", 2*time.Minute)
	v.SetDefault("cases-dir", "test-data/cases")
	v.SetDefault("cases", []string{})
	v.SetDefault("results-dir", "results")
	v.SetDefault("keep-results", 0)
	v.SetDefault("reference-dir", "")
	v.SetDefault("reference", "go-satellite-wgs72")
	v.SetDefault("engines", []string{})
	v.SetDefault("tle-source", "")
	v.SetDefault("match-gate", validate.DefaultMatchGate)
	v.SetDefault("tolerate-marginal", false)
	v.SetDefault("marginal-band", validate.DefaultMarginalBand)
	v.SetDefault("metrics-file", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample-ratio", 1.0)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read-header-timeout", 5*time.Second)
	v.SetDefault("http.write-timeout", 5*time.Minute)
	v.SetDefault("http.max-body-bytes", int64(1<<20))
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
}

// NewViper returns a viper instance with defaults and environment lookup.
// When cfgFile is set it is read; otherwise ./.visval.yaml and
// $HOME/.visval.yaml are tried and their absence is not an error.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".visval")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.CaseTimeout < 0 {
		errs = append(errs, fmt.Errorf("case-timeout must not be negative"))
	}
	if c.MatchGate <= 0 {
		errs = append(errs, fmt.Errorf("match-gate must be positive"))
	}
	if c.MarginalBand < 0 {
		errs = append(errs, fmt.Errorf("marginal-band must not be negative"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample-ratio must be within [0, 1]"))
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		errs = append(errs, fmt.Errorf("auth.token is required when auth is enabled"))
	}
	return errors.Join(errs...)
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// TracingSettings returns the tracing settings for observability.InitTracing.
func (c *Config) TracingSettings() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: "visval",
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// CompareOptions returns validator options. The elevation threshold is set per
// test case by the caller.
func (c *Config) CompareOptions() validate.Options {
	opts := validate.DefaultOptions()
	opts.Gate = c.MatchGate
	opts.TolerateMarginal = c.TolerateMarginal
	if c.MarginalBand > 0 {
		opts.MarginalBand = c.MarginalBand
	}
	return opts
}
