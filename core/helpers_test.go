package core

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

func ptr(v float64) *float64 { return &v }

// baseScenario returns a small, valid scenario with every table filled from
// the reference knowledge base.
func baseScenario() *model.ScenarioConfig {
	cfg := &model.ScenarioConfig{
		TotalPatients:  200,
		DaysOfFighting: 5,
		BaseDate:       "2024-03-01",
		Intensity:      model.IntensityMedium,
		Tempo:          model.TempoSustained,
		InjuryMix: map[model.InjuryType]float64{
			model.InjuryDisease:   0.2,
			model.InjuryNonBattle: 0.3,
			model.InjuryBattle:    0.5,
		},
		Fronts: []model.Front{
			{
				ID:           "north",
				Name:         "Northern Front",
				CasualtyRate: 0.6,
				NationalityDistribution: []model.NationalityShare{
					{NationalityCode: "USA", Percentage: 70},
					{NationalityCode: "GBR", Percentage: 30},
				},
			},
			{
				ID:           "south",
				Name:         "Southern Front",
				CasualtyRate: 0.4,
				NationalityDistribution: []model.NationalityShare{
					{NationalityCode: "POL", Percentage: 100},
				},
			},
		},
	}
	return ApplyDefaults(cfg, nil)
}

// allT1Scenario sends every casualty to the Battle Injury / T1 cell.
func allT1Scenario(total int) *model.ScenarioConfig {
	cfg := baseScenario()
	cfg.TotalPatients = total
	cfg.DaysOfFighting = 1
	cfg.InjuryMix = map[model.InjuryType]float64{
		model.InjuryDisease:   0,
		model.InjuryNonBattle: 0,
		model.InjuryBattle:    1,
	}
	cfg.Fronts = []model.Front{{
		ID:           "alpha",
		CasualtyRate: 1,
		NationalityDistribution: []model.NationalityShare{
			{NationalityCode: "USA", Percentage: 100},
		},
	}}
	cfg.AdvancedOverrides = &model.AdvancedOverrides{
		TriageDistribution: map[model.InjuryType]map[model.TriageCategory]*float64{
			model.InjuryBattle: {model.TriageT1: ptr(1), model.TriageT2: ptr(0), model.TriageT3: ptr(0)},
		},
	}
	return cfg
}

// countingSource wraps a source and counts draws.
type countingSource struct {
	src   rand.Source
	draws int
}

func newCountingSource(seed uint64) *countingSource {
	return &countingSource{src: rand.NewPCG(seed, seed+1)}
}

func (c *countingSource) Uint64() uint64 {
	c.draws++
	return c.src.Uint64()
}

// knowledgeBaseWithout copies the reference knowledge base but leaves out
// every base rate of one facility.
func knowledgeBaseWithout(t *testing.T, missing model.FacilityStage) *kb.KnowledgeBase {
	t.Helper()
	src := kb.Default()
	dst := kb.NewKnowledgeBase()

	for _, stage := range model.Stages {
		if stage == missing {
			continue
		}
		for _, triage := range model.TriageCategories {
			r, ok := src.BaseRates(stage, triage)
			require.True(t, ok)
			require.NoError(t, dst.SetBaseRates(stage, triage, r))
		}
	}
	for _, injury := range model.InjuryTypes {
		w, ok := src.TriageProfile(injury)
		require.True(t, ok)
		require.NoError(t, dst.SetTriageProfile(injury, w))
	}
	for _, level := range model.Intensities {
		p, ok := src.IntensityProfile(level)
		require.True(t, ok)
		require.NoError(t, dst.SetIntensityProfile(level, p))
	}
	for _, name := range src.WarfareTypes() {
		p, _ := src.WarfareProfile(name)
		require.NoError(t, dst.SetWarfareProfile(name, p))
	}
	for _, name := range src.EnvironmentalConditions() {
		p, _ := src.EnvironmentProfile(name)
		require.NoError(t, dst.SetEnvironmentProfile(name, p))
	}
	for _, name := range src.SpecialEvents() {
		p, _ := src.SpecialEventProfile(name)
		require.NoError(t, dst.SetSpecialEventProfile(name, p))
	}
	for stage, row := range src.DefaultDwellTable() {
		for triage, c := range row {
			require.NoError(t, dst.SetDefaultDwell(stage, triage, c))
		}
	}
	for route, row := range src.DefaultTransitTable() {
		for triage, c := range row {
			require.NoError(t, dst.SetDefaultTransit(route, triage, c))
		}
	}
	return dst
}
