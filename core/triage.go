package core

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

// triageWeights holds T1, T2, T3 probabilities in severity order.
type triageWeights [3]float64

// triageModel assigns the POI triage category of a patient.
type triageModel struct {
	weights  map[model.InjuryType]triageWeights
	accuracy float64
}

// newTriageModel combines the knowledge-base profiles, any triage
// distribution override and the scenario's severity shift.
func newTriageModel(cfg *model.ScenarioConfig, store *kb.KnowledgeBase) (*triageModel, error) {
	shift := severityShift(cfg, store)
	m := &triageModel{weights: make(map[model.InjuryType]triageWeights, len(model.InjuryTypes)), accuracy: 1}

	var overrides map[model.InjuryType]map[model.TriageCategory]*float64
	if adv := cfg.AdvancedOverrides; adv != nil {
		overrides = adv.TriageDistribution
		if adv.DiagnosticAccuracy != nil {
			m.accuracy = *adv.DiagnosticAccuracy
		}
	}

	for _, injury := range model.InjuryTypes {
		profile, ok := store.TriageProfile(injury)
		if !ok {
			return nil, fmt.Errorf("triage: no profile for %q", injury)
		}
		var w triageWeights
		for i, t := range model.TriageCategories {
			w[i] = profile[t]
			if p := overrides[injury][t]; p != nil {
				w[i] = *p
			}
		}
		w, err := w.normalised()
		if err != nil {
			return nil, fmt.Errorf("triage: %s: %w", injury, err)
		}
		m.weights[injury] = w.shifted(shift)
	}
	return m, nil
}

// severityShift is the probability mass moved towards T1: intensity, the
// strongest enabled warfare type and every enabled special event.
func severityShift(cfg *model.ScenarioConfig, store *kb.KnowledgeBase) float64 {
	shift := 0.0
	if p, ok := store.IntensityProfile(cfg.Intensity); ok {
		shift += p.T1Shift
	}
	warfare, found := 0.0, false
	for _, name := range cfg.EnabledWarfareTypes() {
		if p, ok := store.WarfareProfile(name); ok && (!found || p.T1Shift > warfare) {
			warfare, found = p.T1Shift, true
		}
	}
	shift += warfare
	for _, name := range cfg.EnabledSpecialEvents() {
		if p, ok := store.SpecialEventProfile(name); ok {
			shift += p.T1Shift
		}
	}
	return shift
}

func (w triageWeights) normalised() (triageWeights, error) {
	sum := 0.0
	for _, v := range w {
		if v < 0 {
			return w, fmt.Errorf("negative triage weight")
		}
		sum += v
	}
	if !(sum > 0) {
		return w, fmt.Errorf("triage weights sum to zero")
	}
	for i := range w {
		w[i] /= sum
	}
	return w, nil
}

// shifted moves mass towards T1 for positive shifts, taking it from T3
// first and then T2. Negative shifts move mass from T1 to T3.
func (w triageWeights) shifted(shift float64) triageWeights {
	switch {
	case shift > 0:
		need := shift
		for _, i := range []int{2, 1} {
			take := min(need, w[i])
			w[i] -= take
			w[0] += take
			need -= take
		}
	case shift < 0:
		take := min(-shift, w[0])
		w[0] -= take
		w[2] += take
	}
	return w
}

// draw assigns a triage category. It always consumes one value from rng,
// plus a second one when diagnostic accuracy is below one. A mis-triaged
// patient moves one category towards T2, or away from T2 in either
// direction.
func (m *triageModel) draw(injury model.InjuryType, rng rand.Source) (model.TriageCategory, error) {
	w, ok := m.weights[injury]
	if !ok {
		return "", fmt.Errorf("triage: unknown injury type %q", injury)
	}
	u := uniform(rng)
	idx := len(w) - 1
	acc := 0.0
	for i, p := range w {
		acc += p
		if u < acc && p > 0 {
			idx = i
			break
		}
	}
	if idx == len(w)-1 && !(w[idx] > 0) {
		for idx > 0 && !(w[idx] > 0) {
			idx--
		}
	}

	if m.accuracy < 1 {
		v := uniform(rng)
		if v >= m.accuracy {
			switch idx {
			case 0, 2:
				idx = 1
			default:
				if (v-m.accuracy)/(1-m.accuracy) < 0.5 {
					idx = 0
				} else {
					idx = 2
				}
			}
		}
	}
	return model.TriageCategories[idx], nil
}
