package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/casualty-flow-simulator/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, core.DefaultMaxPatients, cfg.MaxPatients)
	assert.Equal(t, "proportional", cfg.OverflowPolicy)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, 1.0, cfg.TracingSampleRatio)

	opts := cfg.EngineOptions()
	assert.Equal(t, core.OverflowProportional, opts.OverflowPolicy)
	assert.Equal(t, core.DefaultMaxPatients, opts.Limits.MaxPatients)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CASUALTY_LOG_FORMAT", "json")
	t.Setenv("CASUALTY_WORKERS", "6")
	t.Setenv("CASUALTY_MAX_PATIENTS", "5000")
	t.Setenv("CASUALTY_OVERFLOW_POLICY", "kia_priority")
	t.Setenv("CASUALTY_TRACING_ENABLED", "true")
	t.Setenv("CASUALTY_TRACING_EXPORTER", "otlp")
	t.Setenv("CASUALTY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("CASUALTY_TRACING_SAMPLE_RATIO", "0.25")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "json", cfg.Logging().Format)
	opts := cfg.EngineOptions()
	assert.Equal(t, 6, opts.Workers)
	assert.Equal(t, 5000, opts.Limits.MaxPatients)
	assert.Equal(t, core.OverflowKIAPriority, opts.OverflowPolicy)

	tr := cfg.Tracing()
	assert.True(t, tr.Enabled)
	assert.Equal(t, "otlp", tr.Exporter)
	assert.Equal(t, "collector:4317", tr.Endpoint)
	assert.Equal(t, 0.25, tr.SampleRatio)
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casualtysim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\nprogress_interval: 50\nlog_level: debug\n"), 0o600))
	t.Setenv("CASUALTY_WORKERS", "9")

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Workers)
	assert.Equal(t, 50, cfg.ProgressInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingConfigFile(t *testing.T) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load(v)
	require.Error(t, err)
}

func TestValidateReportsEverySetting(t *testing.T) {
	cfg := &Config{
		LogLevel:           "loud",
		LogFormat:          "xml",
		Workers:            -1,
		MaxPatients:        0,
		ProgressInterval:   -5,
		OverflowPolicy:     "rtd_first",
		TracingEnabled:     true,
		TracingExporter:    "zipkin",
		TracingSampleRatio: 2,
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"LOG_LEVEL", "LOG_FORMAT", "WORKERS", "MAX_PATIENTS", "PROGRESS_INTERVAL",
		"OVERFLOW_POLICY", "TRACING_EXPORTER", "TRACING_SAMPLE_RATIO",
	} {
		assert.Contains(t, err.Error(), want)
	}
}
