package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/casualty-flow-simulator/core"
	"github.com/signalsfoundry/casualty-flow-simulator/internal/logging"
	"github.com/signalsfoundry/casualty-flow-simulator/internal/observability"
	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

func newValidateCmd(a *app) *cobra.Command {
	var (
		scenarioPath  string
		applyDefaults bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a scenario file and list every problem found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := core.LoadScenarioFile(scenarioPath)
			if err != nil {
				return err
			}
			if applyDefaults {
				cfg = core.ApplyDefaults(cfg, nil)
			}
			limits := a.cfg.EngineOptions().Limits
			err = core.NewValidator(nil, limits).ValidateAll(cfg)
			out := cmd.OutOrStdout()
			if err == nil {
				fmt.Fprintf(out, "%s: ok (%d patients over %d days)\n", scenarioPath, cfg.TotalPatients, cfg.DaysOfFighting)
				return nil
			}
			var all core.ValidationErrors
			if errors.As(err, &all) {
				for _, e := range all {
					fmt.Fprintf(out, "%s: %v\n", scenarioPath, e)
				}
			} else {
				fmt.Fprintf(out, "%s: %v\n", scenarioPath, err)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (.json, .yaml, .yml)")
	cmd.Flags().BoolVar(&applyDefaults, "defaults", false, "fill missing timing cells and rate modifiers from the reference tables first, as generate does")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		scenarioPath string
		outPath      string
		seed         uint64
		indent       bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Simulate a scenario and write the dataset as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.generate(cmd.Context(), scenarioPath, seed, outPath, indent, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (.json, .yaml, .yml)")
	flags.StringVarP(&outPath, "out", "o", "-", "dataset destination; - writes to stdout")
	flags.Uint64Var(&seed, "seed", 1, "run seed; equal seeds reproduce equal datasets")
	flags.BoolVar(&indent, "indent", false, "indent the JSON output")
	flags.Int("workers", 0, "simulation goroutines; 0 means GOMAXPROCS")
	flags.Int("progress-interval", 0, "patients between progress reports; 0 means one percent")
	flags.String("overflow-policy", "proportional", "outcome overflow policy: proportional or kia_priority")
	flags.String("metrics-addr", "", "serve Prometheus /metrics on this address while generating")
	flags.Bool("tracing", false, "enable OpenTelemetry tracing")
	_ = cmd.MarkFlagRequired("scenario")

	_ = a.v.BindPFlag("WORKERS", flags.Lookup("workers"))
	_ = a.v.BindPFlag("PROGRESS_INTERVAL", flags.Lookup("progress-interval"))
	_ = a.v.BindPFlag("OVERFLOW_POLICY", flags.Lookup("overflow-policy"))
	_ = a.v.BindPFlag("METRICS_ADDR", flags.Lookup("metrics-addr"))
	_ = a.v.BindPFlag("TRACING_ENABLED", flags.Lookup("tracing"))
	return cmd
}

func (a *app) generate(ctx context.Context, scenarioPath string, seed uint64, outPath string, indent bool, stdout io.Writer) error {
	log := a.log

	shutdown, err := observability.InitTracing(ctx, a.cfg.Tracing(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	collector, err := observability.NewGenerationCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if srv := serveMetrics(ctx, a.cfg.MetricsAddr, collector, log); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cfg, err := core.LoadScenarioFile(scenarioPath)
	if err != nil {
		return err
	}
	cfg = core.ApplyDefaults(cfg, nil)

	opts := a.cfg.EngineOptions()
	opts.Logger = log
	opts.Metrics = collector
	opts.Progress = func(p core.Progress) {
		log.Debug(ctx, "generation progress",
			logging.Int("completed", p.Completed),
			logging.Int("total", p.Total),
		)
	}

	ds, genErr := core.NewEngine(opts).Generate(ctx, cfg, seed)
	if ds == nil {
		return genErr
	}
	if err := writeDataset(ds, outPath, indent, stdout); err != nil {
		return errors.Join(genErr, err)
	}
	return genErr
}

func writeDataset(ds *model.Dataset, path string, indent bool, stdout io.Writer) (err error) {
	w, closeFn, err := openOutput(path, stdout)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if cerr := closeFn(); err == nil {
			err = cerr
		}
	}()
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(ds)
}

// defaultsView is the printable form of the reference knowledge base.
type defaultsView struct {
	BaseRates               map[model.FacilityStage]map[model.TriageCategory]kb.Rates `json:"base_rates"`
	EvacuationTimes         model.DwellTable                                            `json:"evacuation_times"`
	TransitTimes            model.TransitTable                                          `json:"transit_times"`
	WarfareTypes            []string                                                    `json:"warfare_types"`
	SpecialEvents           []string                                                    `json:"special_events"`
	EnvironmentalConditions []string                                                    `json:"environmental_conditions"`
}

func newDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the reference rates and timing tables as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := kb.Default()
			view := defaultsView{
				BaseRates:               make(map[model.FacilityStage]map[model.TriageCategory]kb.Rates, len(model.Stages)),
				EvacuationTimes:         store.DefaultDwellTable(),
				TransitTimes:            store.DefaultTransitTable(),
				WarfareTypes:            store.WarfareTypes(),
				SpecialEvents:           store.SpecialEvents(),
				EnvironmentalConditions: store.EnvironmentalConditions(),
			}
			for _, stage := range model.Stages {
				row := make(map[model.TriageCategory]kb.Rates, len(model.TriageCategories))
				for _, triage := range model.TriageCategories {
					if r, ok := store.BaseRates(stage, triage); ok {
						row[triage] = r
					}
				}
				view.BaseRates[stage] = row
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}
