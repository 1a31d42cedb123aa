package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run status label values.
const (
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusInvalid   = "invalid"
	RunStatusFailed    = "failed"
)

// GenerationCollector bundles Prometheus metrics for casualty generation runs.
// All methods are nil-safe so callers can pass a nil collector.
type GenerationCollector struct {
	gatherer prometheus.Gatherer

	RunsTotal          *prometheus.CounterVec
	PatientsGenerated  *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	ChainLength        prometheus.Histogram
	ValidationFailures prometheus.Counter
	Progress           prometheus.Gauge
}

// NewGenerationCollector registers generation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewGenerationCollector(reg prometheus.Registerer) (*GenerationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "casualty_generation_runs_total",
		Help: "Total number of generation runs, labeled by terminal status.",
	}, []string{"status"}), "casualty_generation_runs_total")
	if err != nil {
		return nil, err
	}

	patients, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "casualty_patients_generated_total",
		Help: "Total number of simulated patients, labeled by final outcome.",
	}, []string{"outcome"}), "casualty_patients_generated_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "casualty_generation_duration_seconds",
		Help:    "Wall-clock duration of generation runs in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}), "casualty_generation_duration_seconds")
	if err != nil {
		return nil, err
	}

	chain, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "casualty_treatment_chain_length",
		Help:    "Number of facilities visited per simulated patient.",
		Buckets: []float64{1, 2, 3, 4, 5},
	}), "casualty_treatment_chain_length")
	if err != nil {
		return nil, err
	}

	validation, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casualty_validation_failures_total",
		Help: "Number of scenario configurations rejected by validation.",
	}), "casualty_validation_failures_total")
	if err != nil {
		return nil, err
	}

	progress, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "casualty_generation_progress_ratio",
		Help: "Fraction of scheduled patients simulated in the current run.",
	}), "casualty_generation_progress_ratio")
	if err != nil {
		return nil, err
	}

	return &GenerationCollector{
		gatherer:           gatherer,
		RunsTotal:          runs,
		PatientsGenerated:  patients,
		GenerationDuration: duration,
		ChainLength:        chain,
		ValidationFailures: validation,
		Progress:           progress,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *GenerationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GenerationCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRun records the terminal status and duration of one run.
func (c *GenerationCollector) ObserveRun(status string, d time.Duration) {
	if c == nil {
		return
	}
	if c.RunsTotal != nil {
		c.RunsTotal.WithLabelValues(status).Inc()
	}
	if c.GenerationDuration != nil {
		c.GenerationDuration.Observe(d.Seconds())
	}
}

// ObservePatient records one simulated patient.
func (c *GenerationCollector) ObservePatient(outcome string, visits int) {
	if c == nil {
		return
	}
	if c.PatientsGenerated != nil {
		c.PatientsGenerated.WithLabelValues(outcome).Inc()
	}
	if c.ChainLength != nil {
		c.ChainLength.Observe(float64(visits))
	}
}

// IncValidationFailures increments the validation failure counter.
func (c *GenerationCollector) IncValidationFailures() {
	if c == nil || c.ValidationFailures == nil {
		return
	}
	c.ValidationFailures.Inc()
}

// SetProgress updates the progress gauge.
func (c *GenerationCollector) SetProgress(completed, total int) {
	if c == nil || c.Progress == nil {
		return
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(completed) / float64(total)
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.Progress.Set(ratio)
}
