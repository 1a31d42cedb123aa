package core

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/casualty-flow-simulator/internal/logging"
	"github.com/signalsfoundry/casualty-flow-simulator/internal/observability"
	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

// Progress is reported to Options.Progress while a run is in flight.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// MetricsRecorder receives run-level measurements. It is satisfied by
// *observability.GenerationCollector.
type MetricsRecorder interface {
	ObserveRun(status string, d time.Duration)
	ObservePatient(outcome string, visits int)
	IncValidationFailures()
	SetProgress(completed, total int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string, time.Duration) {}
func (noopMetrics) ObservePatient(string, int)       {}
func (noopMetrics) IncValidationFailures()           {}
func (noopMetrics) SetProgress(int, int)             {}

// Options configure an Engine. The zero value is usable.
type Options struct {
	// Workers is the number of concurrent simulation goroutines; zero
	// means GOMAXPROCS.
	Workers int

	// ProgressInterval is the number of completed patients between
	// progress reports; zero means one percent of the run. A final report
	// is always made when the last patient completes.
	ProgressInterval int

	// Progress is invoked serially, never concurrently with itself.
	Progress func(Progress)

	// Logger defaults to logging.NewFromEnv, which is silent unless
	// CASUALTY_LOG_LEVEL or CASUALTY_LOG_FORMAT is set.
	Logger logging.Logger

	OverflowPolicy OverflowPolicy
	Limits         Limits
	KB             *kb.KnowledgeBase
	Metrics        MetricsRecorder
}

// Engine runs complete generations. It holds no per-run state and may be
// shared between goroutines.
type Engine struct {
	opts      Options
	kb        *kb.KnowledgeBase
	validator *Validator
	scheduler *CasualtyScheduler
	log       logging.Logger
	metrics   MetricsRecorder
}

// NewEngine applies defaults to opts and returns an engine.
func NewEngine(opts Options) *Engine {
	store := opts.KB
	if store == nil {
		store = defaultKB()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewFromEnv()
	}
	var metrics MetricsRecorder = noopMetrics{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}
	return &Engine{
		opts:      opts,
		kb:        store,
		validator: NewValidator(store, opts.Limits),
		scheduler: NewCasualtyScheduler(store),
		log:       log,
		metrics:   metrics,
	}
}

// Generate runs one generation with default options.
func Generate(ctx context.Context, cfg *model.ScenarioConfig, seed uint64) (*model.Dataset, error) {
	return NewEngine(Options{}).Generate(ctx, cfg, seed)
}

// Generate validates cfg, schedules casualties, simulates every patient and
// aggregates the result. The same (cfg, seed) always yields the same
// dataset regardless of Workers.
//
// Errors:
//   - validation failures return a *ValidationError or
//     *ConfigurationBoundsError and no dataset;
//   - cancellation of ctx returns the patients completed so far, flagged
//     Partial and Cancelled, together with a *GenerationError wrapping
//     ErrCancelled;
//   - broken invariants return a *GenerationError wrapping ErrInternal and
//     no dataset.
func (e *Engine) Generate(ctx context.Context, cfg *model.ScenarioConfig, seed uint64) (ds *model.Dataset, err error) {
	started := time.Now()
	ctx, log := logging.WithRunLogger(ctx, e.log)
	ctx = logging.ContextWithLogger(ctx, log)
	ctx, span := observability.StartSpan(ctx, "casualty.Generate", attribute.Int64("seed", int64(seed)))
	defer func() { observability.EndSpan(span, spanError(err)) }()

	if err := e.validator.Validate(cfg); err != nil {
		e.metrics.IncValidationFailures()
		e.metrics.ObserveRun(observability.RunStatusInvalid, time.Since(started))
		log.Warn(ctx, "scenario rejected", logging.Err(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("total_patients", cfg.TotalPatients),
		attribute.Int("days_of_fighting", cfg.DaysOfFighting),
	)
	log.Info(ctx, "generation started",
		logging.Int("total_patients", cfg.TotalPatients),
		logging.Int("days_of_fighting", cfg.DaysOfFighting),
		logging.Uint64("seed", seed),
		logging.Int("workers", e.opts.Workers),
		logging.String("overflow_policy", e.opts.OverflowPolicy.String()),
	)

	seeds, err := e.schedule(ctx, cfg, seed)
	if err != nil {
		return nil, e.fail(ctx, started, err)
	}

	sim, err := NewPatientFlowSimulator(cfg, e.kb, e.opts.OverflowPolicy, WithRunSeed(seed))
	if err != nil {
		return nil, e.fail(ctx, started, &GenerationError{Kind: KindInternal, PatientIndex: -1, Err: err})
	}

	collector := NewCollector(len(seeds))
	if err := e.simulate(ctx, sim, seeds, seed, collector); err != nil {
		return nil, e.fail(ctx, started, err)
	}

	_, aggSpan := observability.StartSpan(ctx, "casualty.Aggregate")
	ds, err = aggregate(collector.Patients(), cfg.DaysOfFighting)
	observability.EndSpan(aggSpan, err)
	if err != nil {
		return nil, e.fail(ctx, started, &GenerationError{Kind: KindInternal, PatientIndex: -1, Err: err})
	}
	ds.Seed = seed
	ds.RequestedTotal = cfg.TotalPatients
	for _, p := range ds.Patients {
		e.metrics.ObservePatient(string(p.FinalOutcome), len(p.TreatmentHistory))
	}

	if len(ds.Patients) < cfg.TotalPatients {
		ds.Partial = true
		ds.Cancelled = true
		e.metrics.ObserveRun(observability.RunStatusCancelled, time.Since(started))
		log.Warn(ctx, "generation cancelled",
			logging.Int("completed", len(ds.Patients)),
			logging.Int("total_patients", cfg.TotalPatients),
		)
		return ds, &GenerationError{Kind: KindCancelled, PatientIndex: -1, Err: context.Cause(ctx)}
	}

	e.metrics.ObserveRun(observability.RunStatusCompleted, time.Since(started))
	log.Info(ctx, "generation completed",
		logging.Int("patients", ds.Summary.TotalPatients),
		logging.Int("kia", ds.Summary.KIA),
		logging.Int("rtd", ds.Summary.RTD),
		logging.Float("kia_rate", ds.Summary.KIARate),
		logging.Duration("duration", time.Since(started)),
	)
	return ds, nil
}

func (e *Engine) schedule(ctx context.Context, cfg *model.ScenarioConfig, seed uint64) ([]model.CasualtySeed, error) {
	_, span := observability.StartSpan(ctx, "casualty.Schedule")
	seeds, err := e.scheduler.Schedule(cfg, newSchedulerSource(seed))
	span.SetAttributes(attribute.Int("seeds", len(seeds)))
	observability.EndSpan(span, err)
	if err != nil {
		var gerr *GenerationError
		if errors.As(err, &gerr) {
			return nil, gerr
		}
		return nil, &GenerationError{Kind: KindInternal, PatientIndex: -1, Err: err}
	}
	return seeds, nil
}

// simulate runs the worker pool. Workers claim patient indices from a
// shared counter and check ctx before each patient, never mid-patient.
// Only internal errors are returned; cancellation simply stops the pool.
func (e *Engine) simulate(ctx context.Context, sim *PatientFlowSimulator, seeds []model.CasualtySeed, seed uint64, out *Collector) error {
	ctx, span := observability.StartSpan(ctx, "casualty.Simulate", attribute.Int("workers", e.opts.Workers))
	total := len(seeds)
	progress := newProgressReporter(total, e.opts.ProgressInterval, e.opts.Progress, e.metrics)

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < e.opts.Workers; w++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				idx := int(next.Add(1) - 1)
				if idx >= total {
					return nil
				}
				p, err := sim.Simulate(seeds[idx], newPatientSource(seed, idx))
				if err != nil {
					return err
				}
				out.Add(p)
				progress.done()
			}
			return nil
		})
	}
	err := g.Wait()
	span.SetAttributes(attribute.Int("completed", out.Len()))
	observability.EndSpan(span, err)
	return err
}

func (e *Engine) fail(ctx context.Context, started time.Time, err error) error {
	e.metrics.ObserveRun(observability.RunStatusFailed, time.Since(started))
	logging.LoggerFromContext(ctx).Error(ctx, "generation failed", logging.Err(err))
	return err
}

// spanError keeps cancellation from marking the span as failed.
func spanError(err error) error {
	if errors.Is(err, ErrCancelled) {
		return nil
	}
	return err
}

// progressReporter serialises progress callbacks and reports at a bounded
// cadence.
type progressReporter struct {
	mu        sync.Mutex
	completed int
	total     int
	interval  int
	fn        func(Progress)
	metrics   MetricsRecorder
}

func newProgressReporter(total, interval int, fn func(Progress), metrics MetricsRecorder) *progressReporter {
	if interval <= 0 {
		interval = max(1, total/100)
	}
	return &progressReporter{total: total, interval: interval, fn: fn, metrics: metrics}
}

func (r *progressReporter) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	if r.completed%r.interval != 0 && r.completed != r.total {
		return
	}
	r.metrics.SetProgress(r.completed, r.total)
	if r.fn != nil {
		r.fn(Progress{Completed: r.completed, Total: r.total})
	}
}
