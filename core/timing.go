package core

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
	"github.com/signalsfoundry/casualty-flow-simulator/timectrl"
)

// TimingEngine samples dwell and transit durations for one scenario.
// It is immutable after construction and safe for concurrent use.
type TimingEngine struct {
	dwell      model.DwellTable
	transit    model.TransitTable
	multiplier float64
}

// NewTimingEngine resolves the scenario's timing tables and environmental
// multiplier. The multiplier is the product over enabled environmental
// conditions, each taken from environmental_modifiers when present and from
// the knowledge base otherwise.
func NewTimingEngine(cfg *model.ScenarioConfig, store *kb.KnowledgeBase) (*TimingEngine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("timing: config is nil")
	}
	if store == nil {
		store = defaultKB()
	}
	mult := 1.0
	for _, name := range cfg.EnabledEnvironmentalConditions() {
		if m, ok := cfg.EnvironmentalModifiers[name]; ok {
			mult *= m
			continue
		}
		p, ok := store.EnvironmentProfile(name)
		if !ok {
			return nil, fmt.Errorf("timing: unknown environmental condition %q", name)
		}
		mult *= p.TimingMultiplier
	}
	if math.IsNaN(mult) || math.IsInf(mult, 0) || mult < 0 {
		return nil, fmt.Errorf("timing: invalid environmental multiplier %v", mult)
	}
	return &TimingEngine{
		dwell:      cfg.EvacuationTimes,
		transit:    cfg.TransitTimes,
		multiplier: mult,
	}, nil
}

// Multiplier returns the environmental scalar applied to every sample.
func (e *TimingEngine) Multiplier() float64 { return e.multiplier }

// SampleDwell draws the time a patient of the given triage category spends
// at stage. Degenerate cells return their exact value without drawing.
func (e *TimingEngine) SampleDwell(stage model.FacilityStage, triage model.TriageCategory, rng rand.Source) (time.Duration, error) {
	cell, ok := e.dwell[stage][triage]
	if !ok {
		return 0, fmt.Errorf("timing: no dwell range for %s/%s", stage, triage)
	}
	return e.sample(cell, rng), nil
}

// SampleTransit draws the travel time along route.
func (e *TimingEngine) SampleTransit(route model.Route, triage model.TriageCategory, rng rand.Source) (time.Duration, error) {
	cell, ok := e.transit[route][triage]
	if !ok {
		return 0, fmt.Errorf("timing: no transit range for %s/%s", route, triage)
	}
	return e.sample(cell, rng), nil
}

func (e *TimingEngine) sample(cell model.TimingCell, rng rand.Source) time.Duration {
	hours := cell.MinHours
	if !cell.Degenerate() {
		hours += uniform(rng) * (cell.MaxHours - cell.MinHours)
	}
	return timectrl.HoursToDuration(hours * e.multiplier)
}
