package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/casualty-flow-simulator/internal/logging"
	"github.com/signalsfoundry/casualty-flow-simulator/internal/observability"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

func TestGenerateProducesExactlyTotalPatients(t *testing.T) {
	cfg := baseScenario()
	cfg.TotalPatients = 1000
	cfg.Tempo = model.TempoSurge
	cfg.WarfareTypes = map[string]bool{"drone": true}

	ds, err := NewEngine(Options{Workers: 4}).Generate(context.Background(), cfg, 11)
	require.NoError(t, err)
	require.Len(t, ds.Patients, 1000)
	assert.False(t, ds.Partial)
	assert.False(t, ds.Cancelled)
	assert.Equal(t, uint64(11), ds.Seed)
	assert.Equal(t, 1000, ds.RequestedTotal)
	assert.Equal(t, 1000, ds.Summary.TotalPatients)
	assert.Equal(t, 1000, ds.Summary.KIA+ds.Summary.RTD)
	assert.Len(t, ds.Summary.ByDay, cfg.DaysOfFighting)

	poi, ok := ds.StatsFor(model.StagePOI)
	require.True(t, ok)
	assert.Equal(t, 1000, poi.Entered)
	for _, fs := range ds.FacilityStats {
		assert.Equal(t, fs.Entered, fs.KIA+fs.RTD+fs.Forwarded, fs.Facility)
	}
	for i, p := range ds.Patients {
		assert.Equal(t, i, p.Sequence)
		assert.True(t, p.FinalOutcome.IsTerminal())
	}
}

func TestGenerateIsReproducibleAcrossWorkerCounts(t *testing.T) {
	cfg := baseScenario()
	cfg.TotalPatients = 600
	cfg.AdvancedOverrides = &model.AdvancedOverrides{DiagnosticAccuracy: ptr(0.85)}

	var encoded [][]byte
	for _, workers := range []int{1, 3, 16} {
		ds, err := NewEngine(Options{Workers: workers}).Generate(context.Background(), cfg, 20240301)
		require.NoError(t, err)
		b, err := json.Marshal(ds)
		require.NoError(t, err)
		encoded = append(encoded, b)
	}
	assert.True(t, bytes.Equal(encoded[0], encoded[1]), "1 vs 3 workers differ")
	assert.True(t, bytes.Equal(encoded[0], encoded[2]), "1 vs 16 workers differ")

	other, err := NewEngine(Options{Workers: 2}).Generate(context.Background(), cfg, 20240302)
	require.NoError(t, err)
	b, err := json.Marshal(other)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(encoded[0], b), "different seeds should differ")
}

// Recorded fixture: 1,000 T1 patients, POI KIA probability 0.20, seed 42.
func TestGenerateKIAAtPOIFixture(t *testing.T) {
	const recordedKIAAtPOI = 180

	cfg := allT1Scenario(1000)
	cfg.KIARateModifiers[model.TriageT1] = 1.0

	for run := 0; run < 2; run++ {
		ds, err := NewEngine(Options{Workers: 1 + run*7}).Generate(context.Background(), cfg, 42)
		require.NoError(t, err)

		kiaAtPOI := 0
		for _, p := range ds.Patients {
			require.Equal(t, model.TriageT1, p.TriageCategory)
			if p.FinalOutcome == model.OutcomeKIA && p.FinalFacility == model.StagePOI {
				kiaAtPOI++
			}
		}
		assert.Equal(t, recordedKIAAtPOI, kiaAtPOI)
		poi, _ := ds.StatsFor(model.StagePOI)
		assert.Equal(t, recordedKIAAtPOI, poi.KIA)
		assert.Zero(t, poi.RTD, "T1 POI RTD base rate is zero")
	}
}

func TestGenerateAllDiseaseScenario(t *testing.T) {
	cfg := baseScenario()
	cfg.TotalPatients = 100
	cfg.Fronts = cfg.Fronts[:1]
	cfg.Fronts[0].CasualtyRate = 1.0
	cfg.Fronts[0].NationalityDistribution = []model.NationalityShare{{NationalityCode: "USA", Percentage: 100}}
	cfg.InjuryMix = map[model.InjuryType]float64{
		model.InjuryDisease:   1.0,
		model.InjuryNonBattle: 0.0,
		model.InjuryBattle:    0.0,
	}

	ds, err := Generate(context.Background(), cfg, 5)
	require.NoError(t, err)
	require.Len(t, ds.Patients, 100)
	for _, p := range ds.Patients {
		assert.Equal(t, model.InjuryDisease, p.InjuryType)
	}
	assert.Equal(t, 100, ds.Summary.ByInjuryType[model.InjuryDisease])
}

func TestGenerateCancellationReturnsCompletedPatients(t *testing.T) {
	cfg := baseScenario()
	cfg.TotalPatients = 1000

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := NewEngine(Options{
		Workers:          1,
		ProgressInterval: 1,
		Progress: func(p Progress) {
			if p.Completed == 50 {
				cancel()
			}
		},
	})
	ds, err := engine.Generate(ctx, cfg, 8)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	var gerr *GenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindCancelled, gerr.Kind)

	require.NotNil(t, ds)
	assert.True(t, ds.Cancelled)
	assert.True(t, ds.Partial)
	require.Len(t, ds.Patients, 50)
	assert.Equal(t, 1000, ds.RequestedTotal)
	for i, p := range ds.Patients {
		assert.Equal(t, i, p.Sequence)
	}
	poi, _ := ds.StatsFor(model.StagePOI)
	assert.Equal(t, 50, poi.Entered)
}

func TestGenerateCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds, err := NewEngine(Options{Workers: 4}).Generate(ctx, baseScenario(), 1)
	require.True(t, errors.Is(err, ErrCancelled))
	require.NotNil(t, ds)
	assert.Empty(t, ds.Patients)
	assert.True(t, ds.Cancelled)
}

func TestGenerateRejectsInvalidScenarioBeforeSimulating(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewGenerationCollector(reg)
	require.NoError(t, err)

	called := false
	cfg := baseScenario()
	cfg.Fronts[1].CasualtyRate = 0.39
	ds, err := NewEngine(Options{Metrics: metrics, Progress: func(Progress) { called = true }}).Generate(context.Background(), cfg, 1)

	require.Error(t, err)
	assert.Nil(t, ds)
	assert.True(t, errors.Is(err, ErrInvalidScenario))
	assert.False(t, called)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ValidationFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.RunStatusInvalid)))
}

func TestGenerateEnforcesLimits(t *testing.T) {
	ds, err := NewEngine(Options{Limits: Limits{MaxPatients: 100}}).Generate(context.Background(), baseScenario(), 1)
	assert.Nil(t, ds)
	var berr *ConfigurationBoundsError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, 100, berr.Limit)
	assert.Equal(t, 200, berr.Value)
}

func TestGenerateRejectsScenarioWithoutRole4Outcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewGenerationCollector(reg)
	require.NoError(t, err)

	cfg := baseScenario()
	cfg.KIARateModifiers[model.TriageT3] = 0
	cfg.RTDRateModifiers[model.TriageT3] = 0

	ds, err := NewEngine(Options{Workers: 4, Metrics: metrics}).Generate(context.Background(), cfg, 3)
	assert.Nil(t, ds)
	requireValidationError(t, err, "kia_rate_modifiers.T3/rtd_rate_modifiers.T3", RuleCoverage)
	assert.False(t, errors.Is(err, ErrInternal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.RunStatusInvalid)))
	assert.Zero(t, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.RunStatusFailed)))
}

func TestGenerateInternalErrorAbortsWithoutDataset(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewGenerationCollector(reg)
	require.NoError(t, err)

	store := knowledgeBaseWithout(t, model.StageRole4)
	ds, err := NewEngine(Options{Workers: 4, Metrics: metrics, KB: store}).Generate(context.Background(), baseScenario(), 3)
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.True(t, errors.Is(err, ErrInternal))
	assert.False(t, errors.Is(err, ErrCancelled))
	assert.False(t, errors.Is(err, ErrInvalidScenario))

	var gerr *GenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindInternal, gerr.Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.RunStatusFailed)))
}

func TestGenerateReportsProgressAtBoundedCadence(t *testing.T) {
	cfg := baseScenario()
	cfg.TotalPatients = 250

	var reports []Progress
	ds, err := NewEngine(Options{
		Workers:  4,
		Progress: func(p Progress) { reports = append(reports, p) },
	}).Generate(context.Background(), cfg, 1)
	require.NoError(t, err)
	require.Len(t, ds.Patients, 250)

	require.Len(t, reports, 125, "default cadence is one percent of the run")
	for i, r := range reports {
		assert.Equal(t, 250, r.Total)
		assert.Equal(t, 2*(i+1), r.Completed)
	}

	reports = nil
	_, err = NewEngine(Options{Workers: 2, ProgressInterval: 100, Progress: func(p Progress) { reports = append(reports, p) }}).
		Generate(context.Background(), cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, []Progress{{100, 250}, {200, 250}, {250, 250}}, reports)
}

func TestGenerateRecordsMetricsAndLogs(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewGenerationCollector(reg)
	require.NoError(t, err)
	var buf bytes.Buffer
	log := logging.New(logging.Config{Format: "json", Output: &buf})

	cfg := baseScenario()
	ds, err := NewEngine(Options{Metrics: metrics, Logger: log}).Generate(context.Background(), cfg, 4)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.RunStatusCompleted)))
	assert.Equal(t, float64(ds.Summary.KIA), testutil.ToFloat64(metrics.PatientsGenerated.WithLabelValues("KIA")))
	assert.Equal(t, float64(ds.Summary.RTD), testutil.ToFloat64(metrics.PatientsGenerated.WithLabelValues("RTD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Progress))

	out := buf.String()
	assert.Contains(t, out, "generation started")
	assert.Contains(t, out, "generation completed")
	assert.Contains(t, out, `"run_id"`)
}

func TestGenerateOverflowPolicyChangesOutcomes(t *testing.T) {
	cfg := allT1Scenario(300)
	cfg.AdvancedOverrides.MarkovOverrides = map[model.FacilityStage]map[model.TriageCategory]model.RateOverride{
		model.StagePOI: {model.TriageT1: {KIA: ptr(0.6), RTD: ptr(0.6)}},
	}

	prop, err := NewEngine(Options{OverflowPolicy: OverflowProportional}).Generate(context.Background(), cfg, 6)
	require.NoError(t, err)
	prio, err := NewEngine(Options{OverflowPolicy: OverflowKIAPriority}).Generate(context.Background(), cfg, 6)
	require.NoError(t, err)

	// Every patient resolves at POI under both policies.
	assert.Equal(t, 300, prop.Summary.KIA+prop.Summary.RTD)
	assert.Equal(t, 300, prio.FacilityStats[0].Entered)
	assert.Zero(t, prio.FacilityStats[0].Forwarded)
	assert.Greater(t, prio.Summary.KIA, prop.Summary.KIA)
}
