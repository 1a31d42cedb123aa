package core

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

// OverflowPolicy decides how a cell whose KIA and RTD probabilities sum
// above one is brought back to a valid distribution.
type OverflowPolicy int

const (
	// OverflowProportional scales both probabilities so they sum to one.
	OverflowProportional OverflowPolicy = iota
	// OverflowKIAPriority keeps KIA and clamps RTD to 1 - KIA.
	OverflowKIAPriority
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowProportional:
		return "proportional"
	case OverflowKIAPriority:
		return "kia_priority"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy accepts "proportional" or "kia_priority".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "proportional":
		return OverflowProportional, nil
	case "kia_priority", "kia-priority":
		return OverflowKIAPriority, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// OutcomeProbabilities are the effective per-visit probabilities of a cell.
type OutcomeProbabilities struct {
	KIA float64 `json:"kia"`
	RTD float64 `json:"rtd"`
}

// outcomeTable holds the effective probabilities of every (stage, triage)
// cell for one scenario.
type outcomeTable struct {
	cells map[model.FacilityStage]map[model.TriageCategory]OutcomeProbabilities
}

// kiaScalar is the scenario-wide multiplier on KIA probabilities:
// intensity, the strongest enabled warfare type and every enabled
// environmental condition.
func kiaScalar(cfg *model.ScenarioConfig, store *kb.KnowledgeBase) float64 {
	scalar := 1.0
	if p, ok := store.IntensityProfile(cfg.Intensity); ok {
		scalar *= p.KIAScalar
	}
	warfare, found := 1.0, false
	for _, name := range cfg.EnabledWarfareTypes() {
		if p, ok := store.WarfareProfile(name); ok && (!found || p.KIAScalar > warfare) {
			warfare, found = p.KIAScalar, true
		}
	}
	scalar *= warfare
	for _, name := range cfg.EnabledEnvironmentalConditions() {
		if p, ok := store.EnvironmentProfile(name); ok {
			scalar *= p.KIAScalar
		}
	}
	return scalar
}

func newOutcomeTable(cfg *model.ScenarioConfig, store *kb.KnowledgeBase, policy OverflowPolicy) (*outcomeTable, error) {
	scalar := kiaScalar(cfg, store)
	adv := cfg.AdvancedOverrides
	t := &outcomeTable{cells: make(map[model.FacilityStage]map[model.TriageCategory]OutcomeProbabilities, len(model.Stages))}

	for _, stage := range model.Stages {
		effectiveness := 0.0
		if adv != nil {
			if e := adv.TreatmentEffectiveness[stage]; e != nil {
				effectiveness = *e
			}
		}
		row := make(map[model.TriageCategory]OutcomeProbabilities, len(model.TriageCategories))
		for _, triage := range model.TriageCategories {
			base, ok := store.BaseRates(stage, triage)
			if !ok {
				return nil, fmt.Errorf("outcomes: no base rates for %s/%s", stage, triage)
			}
			if adv != nil {
				o := adv.MarkovOverrides[stage][triage]
				if o.KIA != nil {
					base.KIA = *o.KIA
				}
				if o.RTD != nil {
					base.RTD = *o.RTD
				}
			}
			kia := base.KIA * cfg.KIARateModifiers[triage] * scalar * (1 - effectiveness)
			rtd := base.RTD * cfg.RTDRateModifiers[triage]
			row[triage] = resolveOverflow(clampUnit(kia), clampUnit(rtd), policy)
		}
		t.cells[stage] = row
	}
	return t, nil
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func resolveOverflow(kia, rtd float64, policy OverflowPolicy) OutcomeProbabilities {
	if kia+rtd <= 1 {
		return OutcomeProbabilities{KIA: kia, RTD: rtd}
	}
	if policy == OverflowKIAPriority {
		return OutcomeProbabilities{KIA: kia, RTD: 1 - kia}
	}
	sum := kia + rtd
	return OutcomeProbabilities{KIA: kia / sum, RTD: rtd / sum}
}

func (t *outcomeTable) probabilities(stage model.FacilityStage, triage model.TriageCategory) (OutcomeProbabilities, bool) {
	p, ok := t.cells[stage][triage]
	return p, ok
}

// draw resolves the outcome of one visit from a single uniform value. The
// terminal stage has no Continue branch; its probabilities are renormalised
// over KIA and RTD.
func (t *outcomeTable) draw(stage model.FacilityStage, triage model.TriageCategory, rng rand.Source) (model.Outcome, error) {
	p, ok := t.probabilities(stage, triage)
	if !ok {
		return "", fmt.Errorf("no outcome probabilities for %s/%s", stage, triage)
	}
	u := uniform(rng)
	if stage.IsTerminal() {
		total := p.KIA + p.RTD
		if !(total > 0) {
			return "", fmt.Errorf("terminal stage %s/%s has no KIA or RTD branch", stage, triage)
		}
		if u < p.KIA/total {
			return model.OutcomeKIA, nil
		}
		return model.OutcomeRTD, nil
	}
	switch {
	case u < p.KIA:
		return model.OutcomeKIA, nil
	case u < p.KIA+p.RTD:
		return model.OutcomeRTD, nil
	default:
		return model.OutcomeContinue, nil
	}
}
