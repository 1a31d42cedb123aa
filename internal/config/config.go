package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/casualty-flow-simulator/core"
	"github.com/signalsfoundry/casualty-flow-simulator/internal/logging"
	"github.com/signalsfoundry/casualty-flow-simulator/internal/observability"
)

// EnvPrefix is prepended to every environment variable, e.g. CASUALTY_WORKERS.
const EnvPrefix = "CASUALTY"

// Config is the runtime configuration of the simulator binary. Scenario
// content is not part of it; scenarios are loaded from their own files.
type Config struct {
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	Workers          int    `mapstructure:"WORKERS"`
	MaxPatients      int    `mapstructure:"MAX_PATIENTS"`
	ProgressInterval int    `mapstructure:"PROGRESS_INTERVAL"`
	OverflowPolicy   string `mapstructure:"OVERFLOW_POLICY"`
	MetricsAddr      string `mapstructure:"METRICS_ADDR"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
	ServiceName        string  `mapstructure:"SERVICE_NAME"`
}

var keys = []string{
	"LOG_LEVEL",
	"LOG_FORMAT",
	"WORKERS",
	"MAX_PATIENTS",
	"PROGRESS_INTERVAL",
	"OVERFLOW_POLICY",
	"METRICS_ADDR",
	"TRACING_ENABLED",
	"TRACING_EXPORTER",
	"OTLP_ENDPOINT",
	"TRACING_SAMPLE_RATIO",
	"SERVICE_NAME",
}

// Load reads configuration from v, which the caller may have pointed at a
// config file or bound to command-line flags. Environment variables with
// the CASUALTY_ prefix override file values. A nil v uses a fresh viper.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("WORKERS", 0) // GOMAXPROCS
	v.SetDefault("MAX_PATIENTS", core.DefaultMaxPatients)
	v.SetDefault("PROGRESS_INTERVAL", 0)
	v.SetDefault("OVERFLOW_POLICY", "proportional")
	v.SetDefault("METRICS_ADDR", "")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
	v.SetDefault("SERVICE_NAME", observability.DefaultServiceName)

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be >= 0, got %d", c.Workers))
	}
	if c.MaxPatients <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PATIENTS must be > 0, got %d", c.MaxPatients))
	}
	if c.ProgressInterval < 0 {
		errs = append(errs, fmt.Errorf("PROGRESS_INTERVAL must be >= 0, got %d", c.ProgressInterval))
	}
	if _, err := core.ParseOverflowPolicy(c.OverflowPolicy); err != nil {
		errs = append(errs, fmt.Errorf("OVERFLOW_POLICY: %w", err))
	}
	if c.TracingEnabled {
		switch strings.ToLower(c.TracingExporter) {
		case "stdout":
		case "otlp":
			if c.OTLPEndpoint == "" {
				errs = append(errs, errors.New("OTLP_ENDPOINT is required when TRACING_EXPORTER is otlp"))
			}
		default:
			errs = append(errs, fmt.Errorf("TRACING_EXPORTER must be stdout or otlp, got %q", c.TracingExporter))
		}
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("TRACING_SAMPLE_RATIO must lie in [0,1], got %v", c.TracingSampleRatio))
	}
	return errors.Join(errs...)
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}

func (c *Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.TracingEnabled,
		ServiceName: c.ServiceName,
		Exporter:    strings.ToLower(c.TracingExporter),
		Endpoint:    c.OTLPEndpoint,
		SampleRatio: c.TracingSampleRatio,
	}
}

// EngineOptions maps the runtime settings onto engine options. Validate
// must have succeeded.
func (c *Config) EngineOptions() core.Options {
	policy, _ := core.ParseOverflowPolicy(c.OverflowPolicy)
	return core.Options{
		Workers:          c.Workers,
		ProgressInterval: c.ProgressInterval,
		OverflowPolicy:   policy,
		Limits:           core.Limits{MaxPatients: c.MaxPatients},
	}
}
