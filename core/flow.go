package core

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
	"github.com/signalsfoundry/casualty-flow-simulator/timectrl"
)

// patientNamespace scopes the name-based UUIDs of generated patients.
var patientNamespace = uuid.MustParse("6f1c2d8e-5b7a-4e0f-9a3d-2c4b6e8f0a1d")

// PatientFlowSimulator walks one casualty through the evacuation chain.
// It is immutable after construction; concurrent Simulate calls are safe
// as long as each call uses its own rng.
type PatientFlowSimulator struct {
	runSeed  uint64
	clock    timectrl.SimClock
	timing   *TimingEngine
	triage   *triageModel
	outcomes *outcomeTable
}

// SimulatorOption customises a PatientFlowSimulator.
type SimulatorOption func(*PatientFlowSimulator)

// WithRunSeed sets the seed mixed into patient ids.
func WithRunSeed(seed uint64) SimulatorOption {
	return func(s *PatientFlowSimulator) { s.runSeed = seed }
}

// WithClock replaces the clock derived from base_date.
func WithClock(clock timectrl.SimClock) SimulatorOption {
	return func(s *PatientFlowSimulator) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPatientFlowSimulator prepares the per-scenario tables. cfg must already
// be valid.
func NewPatientFlowSimulator(cfg *model.ScenarioConfig, store *kb.KnowledgeBase, policy OverflowPolicy, opts ...SimulatorOption) (*PatientFlowSimulator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("simulator: config is nil")
	}
	if store == nil {
		store = defaultKB()
	}
	start, err := timectrl.ParseBaseDate(cfg.BaseDate)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	timing, err := NewTimingEngine(cfg, store)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	triage, err := newTriageModel(cfg, store)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	outcomes, err := newOutcomeTable(cfg, store, policy)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	s := &PatientFlowSimulator{
		clock:    timectrl.NewScenarioClock(start, cfg.DaysOfFighting),
		timing:   timing,
		triage:   triage,
		outcomes: outcomes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Timing exposes the simulator's timing engine.
func (s *PatientFlowSimulator) Timing() *TimingEngine { return s.timing }

// Probabilities returns the effective outcome probabilities of a cell.
func (s *PatientFlowSimulator) Probabilities(stage model.FacilityStage, triage model.TriageCategory) (OutcomeProbabilities, bool) {
	return s.outcomes.probabilities(stage, triage)
}

// Simulate produces the complete trajectory of one casualty. Draws from rng
// happen in a fixed order: arrival offset, triage (and the mis-triage check
// when diagnostic accuracy is below one), then per stage the dwell, the
// outcome and, on Continue, the transit to the next stage.
//
// Any error is a *GenerationError of kind KindInternal.
func (s *PatientFlowSimulator) Simulate(seed model.CasualtySeed, rng rand.Source) (*model.Patient, error) {
	if rng == nil {
		return nil, internalError(seed.Sequence, "", "rng is nil")
	}

	offset := time.Duration(uniform(rng)*float64(timectrl.Day/time.Second)) * time.Second
	arrival := s.clock.At(seed.DayIndex, offset)

	triage, err := s.triage.draw(seed.InjuryType, rng)
	if err != nil {
		return nil, internalError(seed.Sequence, model.StagePOI, "%v", err)
	}

	p := &model.Patient{
		ID:               patientID(s.runSeed, seed.Sequence),
		Sequence:         seed.Sequence,
		FrontID:          seed.FrontID,
		NationalityCode:  seed.NationalityCode,
		InjuryType:       seed.InjuryType,
		TriageCategory:   triage,
		DayIndex:         seed.DayIndex,
		ArrivalTime:      arrival,
		TreatmentHistory: make([]model.FacilityVisit, 0, len(model.Stages)),
		FinalOutcome:     model.OutcomeStillInChain,
	}

	stage := model.StagePOI
	entry := arrival
	for {
		dwell, err := s.timing.SampleDwell(stage, triage, rng)
		if err != nil {
			return nil, internalError(seed.Sequence, stage, "%v", err)
		}
		exit := entry.Add(dwell)

		outcome, err := s.outcomes.draw(stage, triage, rng)
		if err != nil {
			return nil, internalError(seed.Sequence, stage, "%v", err)
		}
		p.TreatmentHistory = append(p.TreatmentHistory, model.FacilityVisit{
			Facility:              stage,
			EntryTime:             entry,
			ExitTime:              exit,
			TriageCategoryAtVisit: triage,
			OutcomeAtStage:        outcome,
		})

		if outcome.IsTerminal() {
			p.FinalOutcome = outcome
			p.FinalFacility = stage
			p.OutcomeTime = exit
			return p, nil
		}

		next, ok := stage.Next()
		if !ok {
			return nil, internalError(seed.Sequence, stage, "continue drawn at terminal stage")
		}
		route, _ := model.RouteFrom(stage)
		transit, err := s.timing.SampleTransit(route, triage, rng)
		if err != nil {
			return nil, internalError(seed.Sequence, stage, "%v", err)
		}
		entry = exit.Add(transit)
		stage = next
	}
}

func patientID(runSeed uint64, sequence int) uuid.UUID {
	var name [16]byte
	binary.BigEndian.PutUint64(name[:8], runSeed)
	binary.BigEndian.PutUint64(name[8:], uint64(sequence))
	return uuid.NewSHA1(patientNamespace, name[:])
}
