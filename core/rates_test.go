package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

func TestResolveOverflow(t *testing.T) {
	p := resolveOverflow(0.3, 0.5, OverflowProportional)
	assert.Equal(t, OutcomeProbabilities{KIA: 0.3, RTD: 0.5}, p)

	p = resolveOverflow(0.8, 0.6, OverflowProportional)
	assert.InDelta(t, 0.8/1.4, p.KIA, 1e-12)
	assert.InDelta(t, 0.6/1.4, p.RTD, 1e-12)
	assert.InDelta(t, 1.0, p.KIA+p.RTD, 1e-12)

	p = resolveOverflow(0.8, 0.6, OverflowKIAPriority)
	assert.Equal(t, 0.8, p.KIA)
	assert.InDelta(t, 0.2, p.RTD, 1e-12)
}

func TestParseOverflowPolicy(t *testing.T) {
	for in, want := range map[string]OverflowPolicy{
		"":             OverflowProportional,
		"Proportional": OverflowProportional,
		"kia_priority": OverflowKIAPriority,
		"kia-priority": OverflowKIAPriority,
	} {
		got, err := ParseOverflowPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseOverflowPolicy("random")
	require.Error(t, err)
	assert.Equal(t, "kia_priority", OverflowKIAPriority.String())
}

func TestOutcomeTableAppliesModifiers(t *testing.T) {
	cfg := baseScenario()
	table, err := newOutcomeTable(cfg, defaultKB(), OverflowProportional)
	require.NoError(t, err)
	p, ok := table.probabilities(model.StagePOI, model.TriageT1)
	require.True(t, ok)
	assert.InDelta(t, 0.20, p.KIA, 1e-12)
	assert.Zero(t, p.RTD)

	cfg.Intensity = model.IntensityHigh
	cfg.WarfareTypes = map[string]bool{"artillery": true, "urban": true}
	table, err = newOutcomeTable(cfg, defaultKB(), OverflowProportional)
	require.NoError(t, err)
	p, _ = table.probabilities(model.StagePOI, model.TriageT1)
	assert.InDelta(t, 0.20*1.2*1.15, p.KIA, 1e-12, "intensity times the strongest warfare type")

	cfg = baseScenario()
	cfg.KIARateModifiers[model.TriageT2] = 2
	cfg.RTDRateModifiers[model.TriageT2] = 0.5
	cfg.AdvancedOverrides = &model.AdvancedOverrides{
		TreatmentEffectiveness: map[model.FacilityStage]*float64{model.StageRole1: ptr(0.5)},
		MarkovOverrides: map[model.FacilityStage]map[model.TriageCategory]model.RateOverride{
			model.StageRole2: {model.TriageT2: {KIA: ptr(0.1)}},
		},
	}
	table, err = newOutcomeTable(cfg, defaultKB(), OverflowProportional)
	require.NoError(t, err)
	p, _ = table.probabilities(model.StageRole1, model.TriageT2)
	assert.InDelta(t, 0.03*2*0.5, p.KIA, 1e-12)
	assert.InDelta(t, 0.25*0.5, p.RTD, 1e-12)
	p, _ = table.probabilities(model.StageRole2, model.TriageT2)
	assert.InDelta(t, 0.1*2, p.KIA, 1e-12)
	assert.InDelta(t, 0.40*0.5, p.RTD, 1e-12, "nil rtd override keeps the base rate")
}

func TestOutcomeTableClampsAndResolvesOverflow(t *testing.T) {
	cfg := baseScenario()
	cfg.KIARateModifiers[model.TriageT3] = 300
	cfg.RTDRateModifiers[model.TriageT3] = 2

	table, err := newOutcomeTable(cfg, defaultKB(), OverflowProportional)
	require.NoError(t, err)
	p, _ := table.probabilities(model.StageRole1, model.TriageT3)
	assert.InDelta(t, 0.5, p.KIA, 1e-12)
	assert.InDelta(t, 0.5, p.RTD, 1e-12)

	table, err = newOutcomeTable(cfg, defaultKB(), OverflowKIAPriority)
	require.NoError(t, err)
	p, _ = table.probabilities(model.StageRole1, model.TriageT3)
	assert.Equal(t, 1.0, p.KIA)
	assert.Zero(t, p.RTD)
}

func TestOutcomeDrawPartitionsUnitInterval(t *testing.T) {
	cfg := baseScenario()
	table, err := newOutcomeTable(cfg, defaultKB(), OverflowProportional)
	require.NoError(t, err)

	counts := map[model.Outcome]int{}
	src := newCountingSource(3)
	for i := 0; i < 5000; i++ {
		o, err := table.draw(model.StageRole4, model.TriageT2, src)
		require.NoError(t, err)
		counts[o]++
	}
	assert.Zero(t, counts[model.OutcomeContinue], "Role4 never continues")
	assert.Equal(t, 5000, counts[model.OutcomeKIA]+counts[model.OutcomeRTD])
	assert.Equal(t, 5000, src.draws)

	counts = map[model.Outcome]int{}
	for i := 0; i < 5000; i++ {
		o, err := table.draw(model.StageRole2, model.TriageT1, src)
		require.NoError(t, err)
		counts[o]++
	}
	assert.Positive(t, counts[model.OutcomeContinue])
	assert.Positive(t, counts[model.OutcomeKIA])
	assert.Positive(t, counts[model.OutcomeRTD])
}

func TestOutcomeDrawTerminalStageWithoutBranchFails(t *testing.T) {
	cfg := baseScenario()
	cfg.AdvancedOverrides = &model.AdvancedOverrides{
		MarkovOverrides: map[model.FacilityStage]map[model.TriageCategory]model.RateOverride{
			model.StageRole4: {model.TriageT3: {KIA: ptr(0), RTD: ptr(0)}},
		},
	}
	table, err := newOutcomeTable(cfg, defaultKB(), OverflowProportional)
	require.NoError(t, err)
	_, err = table.draw(model.StageRole4, model.TriageT3, newCountingSource(1))
	require.Error(t, err)
}
