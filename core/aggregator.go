package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

// Collector is a concurrency-safe, append-only sink for simulated
// patients. Workers Add; the engine aggregates once they are done.
type Collector struct {
	mu       sync.Mutex
	patients []*model.Patient
}

// NewCollector returns a collector sized for capacity patients.
func NewCollector(capacity int) *Collector {
	if capacity < 0 {
		capacity = 0
	}
	return &Collector{patients: make([]*model.Patient, 0, capacity)}
}

// Add appends a patient. The collector takes ownership of p.
func (c *Collector) Add(p *model.Patient) {
	c.mu.Lock()
	c.patients = append(c.patients, p)
	c.mu.Unlock()
}

// Len returns the number of patients collected so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.patients)
}

// Patients returns the collected patients ordered by sequence.
func (c *Collector) Patients() []*model.Patient {
	c.mu.Lock()
	out := make([]*model.Patient, len(c.patients))
	copy(out, c.patients)
	c.mu.Unlock()
	sortBySequence(out)
	return out
}

// sortBySequence orders patients by sequence, nils last.
func sortBySequence(ps []*model.Patient) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i] == nil || ps[j] == nil {
			return ps[j] == nil && ps[i] != nil
		}
		return ps[i].Sequence < ps[j].Sequence
	})
}

// Flow graph terminal nodes.
const (
	NodeKIA = "KIA"
	NodeRTD = "RTD"
)

// Aggregate builds a dataset from simulated patients: the patient list
// ordered by sequence, per-facility statistics, the flow graph and a
// summary. It fails with ErrInternal when a patient has no terminal
// outcome or a facility's counts do not balance.
func Aggregate(patients []*model.Patient) (*model.Dataset, error) {
	return aggregate(patients, 0)
}

// aggregate is Aggregate with a minimum length for Summary.ByDay.
func aggregate(patients []*model.Patient, days int) (*model.Dataset, error) {
	ordered := make([]*model.Patient, len(patients))
	copy(ordered, patients)
	sortBySequence(ordered)

	stats := make(map[model.FacilityStage]*facilityTally, len(model.Stages))
	for _, stage := range model.Stages {
		stats[stage] = &facilityTally{}
	}
	summary := model.Summary{
		ByFront:       make(map[string]int),
		ByNationality: make(map[string]int),
		ByInjuryType:  make(map[model.InjuryType]int),
		ByTriage:      make(map[model.TriageCategory]int),
		ByDay:         make([]int, max(days, 0)),
	}
	visits := 0

	for _, p := range ordered {
		if p == nil {
			return nil, fmt.Errorf("%w: aggregate: nil patient", ErrInternal)
		}
		if !p.FinalOutcome.IsTerminal() {
			return nil, fmt.Errorf("%w: aggregate: patient %d ended %s", ErrInternal, p.Sequence, p.FinalOutcome)
		}
		if n := len(p.TreatmentHistory); n < 1 || n > len(model.Stages) {
			return nil, fmt.Errorf("%w: aggregate: patient %d has %d visits", ErrInternal, p.Sequence, n)
		}
		for i, v := range p.TreatmentHistory {
			tally, ok := stats[v.Facility]
			if !ok {
				return nil, fmt.Errorf("%w: aggregate: patient %d visited unknown facility %q", ErrInternal, p.Sequence, v.Facility)
			}
			last := i == len(p.TreatmentHistory)-1
			if err := tally.add(v, last); err != nil {
				return nil, fmt.Errorf("%w: aggregate: patient %d: %v", ErrInternal, p.Sequence, err)
			}
		}
		visits += len(p.TreatmentHistory)

		summary.TotalPatients++
		switch p.FinalOutcome {
		case model.OutcomeKIA:
			summary.KIA++
		case model.OutcomeRTD:
			summary.RTD++
		}
		summary.ByFront[p.FrontID]++
		summary.ByNationality[p.NationalityCode]++
		summary.ByInjuryType[p.InjuryType]++
		summary.ByTriage[p.TriageCategory]++
		if p.DayIndex >= 0 {
			for len(summary.ByDay) <= p.DayIndex {
				summary.ByDay = append(summary.ByDay, 0)
			}
			summary.ByDay[p.DayIndex]++
		}
	}
	if summary.TotalPatients > 0 {
		summary.KIARate = float64(summary.KIA) / float64(summary.TotalPatients)
		summary.RTDRate = float64(summary.RTD) / float64(summary.TotalPatients)
		summary.MeanChainLength = float64(visits) / float64(summary.TotalPatients)
	}

	ds := &model.Dataset{
		Patients:      ordered,
		FacilityStats: make([]model.FacilityStats, 0, len(model.Stages)),
		Summary:       summary,
	}
	for _, stage := range model.Stages {
		fs := stats[stage].stats(stage)
		if fs.Entered != fs.KIA+fs.RTD+fs.Forwarded {
			return nil, fmt.Errorf("%w: aggregate: %s entered %d != kia %d + rtd %d + forwarded %d",
				ErrInternal, stage, fs.Entered, fs.KIA, fs.RTD, fs.Forwarded)
		}
		ds.FacilityStats = append(ds.FacilityStats, fs)
	}
	ds.FlowGraph = buildFlowGraph(ds.FacilityStats)
	return ds, nil
}

type facilityTally struct {
	entered, kia, rtd, forwarded int
	dwellHours                   float64
}

func (t *facilityTally) add(v model.FacilityVisit, last bool) error {
	switch v.OutcomeAtStage {
	case model.OutcomeKIA:
		t.kia++
	case model.OutcomeRTD:
		t.rtd++
	case model.OutcomeContinue:
		if last {
			return fmt.Errorf("last visit at %s has outcome Continue", v.Facility)
		}
		t.forwarded++
	default:
		return fmt.Errorf("visit at %s has outcome %q", v.Facility, v.OutcomeAtStage)
	}
	if v.OutcomeAtStage.IsTerminal() && !last {
		return fmt.Errorf("terminal outcome at %s before the end of the history", v.Facility)
	}
	t.entered++
	t.dwellHours += v.DwellHours()
	return nil
}

func (t *facilityTally) stats(stage model.FacilityStage) model.FacilityStats {
	fs := model.FacilityStats{
		Facility:  stage,
		Entered:   t.entered,
		KIA:       t.kia,
		RTD:       t.rtd,
		Forwarded: t.forwarded,
	}
	if t.entered > 0 {
		fs.MeanDwellHours = t.dwellHours / float64(t.entered)
	}
	return fs
}

// buildFlowGraph lists every stage and terminal outcome as a node and adds
// an edge for each non-empty transition, in chain order.
func buildFlowGraph(stats []model.FacilityStats) model.FlowGraph {
	g := model.FlowGraph{Nodes: make([]string, 0, len(model.Stages)+2)}
	for _, stage := range model.Stages {
		g.Nodes = append(g.Nodes, string(stage))
	}
	g.Nodes = append(g.Nodes, NodeKIA, NodeRTD)

	for _, fs := range stats {
		if next, ok := fs.Facility.Next(); ok && fs.Forwarded > 0 {
			g.Edges = append(g.Edges, model.FlowEdge{Source: string(fs.Facility), Target: string(next), Count: fs.Forwarded})
		}
		if fs.KIA > 0 {
			g.Edges = append(g.Edges, model.FlowEdge{Source: string(fs.Facility), Target: NodeKIA, Count: fs.KIA})
		}
		if fs.RTD > 0 {
			g.Edges = append(g.Edges, model.FlowEdge{Source: string(fs.Facility), Target: NodeRTD, Count: fs.RTD})
		}
	}
	return g
}
