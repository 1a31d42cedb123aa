package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

var t0 = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func visit(stage model.FacilityStage, hoursIn, hoursOut float64, outcome model.Outcome) model.FacilityVisit {
	return model.FacilityVisit{
		Facility:              stage,
		EntryTime:             t0.Add(time.Duration(hoursIn * float64(time.Hour))),
		ExitTime:              t0.Add(time.Duration(hoursOut * float64(time.Hour))),
		TriageCategoryAtVisit: model.TriageT2,
		OutcomeAtStage:        outcome,
	}
}

func samplePatients() []*model.Patient {
	return []*model.Patient{
		{
			Sequence: 2, FrontID: "north", NationalityCode: "USA", InjuryType: model.InjuryBattle,
			TriageCategory: model.TriageT2, DayIndex: 1, FinalOutcome: model.OutcomeRTD, FinalFacility: model.StageRole1,
			TreatmentHistory: []model.FacilityVisit{
				visit(model.StagePOI, 0, 1, model.OutcomeContinue),
				visit(model.StageRole1, 2, 4, model.OutcomeRTD),
			},
		},
		{
			Sequence: 0, FrontID: "north", NationalityCode: "GBR", InjuryType: model.InjuryDisease,
			TriageCategory: model.TriageT2, DayIndex: 0, FinalOutcome: model.OutcomeKIA, FinalFacility: model.StagePOI,
			TreatmentHistory: []model.FacilityVisit{
				visit(model.StagePOI, 0, 2, model.OutcomeKIA),
			},
		},
		{
			Sequence: 1, FrontID: "south", NationalityCode: "POL", InjuryType: model.InjuryBattle,
			TriageCategory: model.TriageT2, DayIndex: 3, FinalOutcome: model.OutcomeRTD, FinalFacility: model.StagePOI,
			TreatmentHistory: []model.FacilityVisit{
				visit(model.StagePOI, 0, 3, model.OutcomeRTD),
			},
		},
	}
}

func TestAggregateFacilityStatsAndFlowGraph(t *testing.T) {
	ds, err := Aggregate(samplePatients())
	require.NoError(t, err)

	require.Len(t, ds.Patients, 3)
	for i, p := range ds.Patients {
		assert.Equal(t, i, p.Sequence)
	}

	poi, ok := ds.StatsFor(model.StagePOI)
	require.True(t, ok)
	assert.Equal(t, model.FacilityStats{Facility: model.StagePOI, Entered: 3, KIA: 1, RTD: 1, Forwarded: 1, MeanDwellHours: 2}, poi)

	role1, _ := ds.StatsFor(model.StageRole1)
	assert.Equal(t, 1, role1.Entered)
	assert.Equal(t, 1, role1.RTD)
	assert.Equal(t, 2.0, role1.MeanDwellHours)

	role4, _ := ds.StatsFor(model.StageRole4)
	assert.Zero(t, role4.Entered)

	for _, fs := range ds.FacilityStats {
		assert.Equal(t, fs.Entered, fs.KIA+fs.RTD+fs.Forwarded, fs.Facility)
	}

	assert.Equal(t, []string{"POI", "Role1", "Role2", "Role3", "Role4", "KIA", "RTD"}, ds.FlowGraph.Nodes)
	assert.Equal(t, []model.FlowEdge{
		{Source: "POI", Target: "Role1", Count: 1},
		{Source: "POI", Target: "KIA", Count: 1},
		{Source: "POI", Target: "RTD", Count: 1},
		{Source: "Role1", Target: "RTD", Count: 1},
	}, ds.FlowGraph.Edges)
}

func TestAggregateSummary(t *testing.T) {
	ds, err := aggregate(samplePatients(), 5)
	require.NoError(t, err)

	s := ds.Summary
	assert.Equal(t, 3, s.TotalPatients)
	assert.Equal(t, 1, s.KIA)
	assert.Equal(t, 2, s.RTD)
	assert.InDelta(t, 1.0/3, s.KIARate, 1e-12)
	assert.Equal(t, map[string]int{"north": 2, "south": 1}, s.ByFront)
	assert.Equal(t, 2, s.ByInjuryType[model.InjuryBattle])
	assert.Equal(t, 3, s.ByTriage[model.TriageT2])
	assert.Equal(t, []int{1, 1, 0, 1, 0}, s.ByDay)
	assert.InDelta(t, 4.0/3, s.MeanChainLength, 1e-12)
}

func TestAggregateRejectsBrokenPatients(t *testing.T) {
	ps := samplePatients()
	ps[0].FinalOutcome = model.OutcomeStillInChain
	_, err := Aggregate(ps)
	require.True(t, errors.Is(err, ErrInternal))

	ps = samplePatients()
	ps[0].TreatmentHistory[1].OutcomeAtStage = model.OutcomeContinue
	_, err = Aggregate(ps)
	require.True(t, errors.Is(err, ErrInternal))

	ps = samplePatients()
	ps[1].TreatmentHistory = nil
	_, err = Aggregate(ps)
	require.True(t, errors.Is(err, ErrInternal))

	_, err = Aggregate([]*model.Patient{nil})
	require.True(t, errors.Is(err, ErrInternal))
}

func TestAggregateEmpty(t *testing.T) {
	ds, err := aggregate(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, ds.Patients)
	assert.Equal(t, []int{0, 0, 0}, ds.Summary.ByDay)
	assert.Len(t, ds.FacilityStats, 5)
	assert.Empty(t, ds.FlowGraph.Edges)
}

func TestCollectorConcurrentAdd(t *testing.T) {
	c := NewCollector(0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < 800; i += 8 {
				c.Add(&model.Patient{Sequence: i})
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 800, c.Len())
	for i, p := range c.Patients() {
		assert.Equal(t, i, p.Sequence)
	}
}
