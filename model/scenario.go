package model

import "sort"

// Intensity scales casualty severity across the scenario.
type Intensity string

const (
	IntensityLow     Intensity = "low"
	IntensityMedium  Intensity = "medium"
	IntensityHigh    Intensity = "high"
	IntensityExtreme Intensity = "extreme"
)

// Intensities lists the recognised intensity levels.
var Intensities = []Intensity{IntensityLow, IntensityMedium, IntensityHigh, IntensityExtreme}

// Tempo shapes how casualties are spread over the days of fighting.
type Tempo string

const (
	TempoSustained    Tempo = "sustained"
	TempoEscalating   Tempo = "escalating"
	TempoSurge        Tempo = "surge"
	TempoDeclining    Tempo = "declining"
	TempoIntermittent Tempo = "intermittent"
)

// Tempos lists the recognised tempo curves.
var Tempos = []Tempo{TempoSustained, TempoEscalating, TempoSurge, TempoDeclining, TempoIntermittent}

// NationalityShare is the percentage of a front's casualties from one nation.
type NationalityShare struct {
	NationalityCode string  `json:"nationality_code"`
	Percentage      float64 `json:"percentage"`
}

// Front is a battle front receiving a fraction of all casualties.
type Front struct {
	ID                      string             `json:"id"`
	Name                    string             `json:"name"`
	CasualtyRate            float64            `json:"casualty_rate"`
	NationalityDistribution []NationalityShare `json:"nationality_distribution"`
}

// RateOverride replaces the base KIA and/or RTD probability of one
// (facility, triage) cell. Nil fields keep the reference value.
type RateOverride struct {
	KIA *float64 `json:"kia"`
	RTD *float64 `json:"rtd"`
}

// AdvancedOverrides carries optional tuning knobs. Every value lies in
// [0,1]; a nil value means "use the reference default".
type AdvancedOverrides struct {
	TreatmentEffectiveness map[FacilityStage]*float64                        `json:"treatment_effectiveness,omitempty"`
	DiagnosticAccuracy     *float64                                          `json:"diagnostic_accuracy,omitempty"`
	MarkovOverrides        map[FacilityStage]map[TriageCategory]RateOverride `json:"markov_overrides,omitempty"`
	PolytraumaRates        map[string]*float64                               `json:"polytrauma_rates,omitempty"`
	TriageDistribution     map[InjuryType]map[TriageCategory]*float64        `json:"triage_distribution,omitempty"`
}

// DwellTable maps each facility and triage category to a dwell time range.
type DwellTable map[FacilityStage]map[TriageCategory]TimingCell

// TransitTable maps each route and triage category to a transit time range.
type TransitTable map[Route]map[TriageCategory]TimingCell

// RateModifiers holds one non-negative multiplier per triage category.
type RateModifiers map[TriageCategory]float64

// ScenarioConfig is the declarative input of one generation run. The engine
// only reads it; callers own it.
type ScenarioConfig struct {
	TotalPatients  int       `json:"total_patients"`
	DaysOfFighting int       `json:"days_of_fighting"`
	BaseDate       string    `json:"base_date"`
	Intensity      Intensity `json:"intensity"`
	Tempo          Tempo     `json:"tempo"`

	WarfareTypes            map[string]bool    `json:"warfare_types,omitempty"`
	SpecialEvents           map[string]bool    `json:"special_events,omitempty"`
	EnvironmentalConditions map[string]bool    `json:"environmental_conditions,omitempty"`
	EnvironmentalModifiers  map[string]float64 `json:"environmental_modifiers,omitempty"`

	// InjuryMix holds fractions summing to 1. InjuryDistribution is the
	// percentage form some callers send; it is used only when InjuryMix is absent.
	InjuryMix          map[InjuryType]float64 `json:"injury_mix,omitempty"`
	InjuryDistribution map[InjuryType]float64 `json:"injury_distribution,omitempty"`

	Fronts []Front `json:"front_configs"`

	EvacuationTimes  DwellTable    `json:"evacuation_times,omitempty"`
	TransitTimes     TransitTable  `json:"transit_times,omitempty"`
	KIARateModifiers RateModifiers `json:"kia_rate_modifiers,omitempty"`
	RTDRateModifiers RateModifiers `json:"rtd_rate_modifiers,omitempty"`

	AdvancedOverrides *AdvancedOverrides `json:"advanced_overrides,omitempty"`
}

// EffectiveInjuryMix returns the injury mix as fractions, converting the
// percentage form when only that was supplied.
func (c *ScenarioConfig) EffectiveInjuryMix() map[InjuryType]float64 {
	if len(c.InjuryMix) > 0 {
		return c.InjuryMix
	}
	if len(c.InjuryDistribution) == 0 {
		return nil
	}
	out := make(map[InjuryType]float64, len(c.InjuryDistribution))
	for k, v := range c.InjuryDistribution {
		out[k] = v / 100
	}
	return out
}

// EnabledWarfareTypes returns the enabled warfare types in sorted order.
func (c *ScenarioConfig) EnabledWarfareTypes() []string { return enabledKeys(c.WarfareTypes) }

// EnabledSpecialEvents returns the enabled special events in sorted order.
func (c *ScenarioConfig) EnabledSpecialEvents() []string { return enabledKeys(c.SpecialEvents) }

// EnabledEnvironmentalConditions returns the enabled conditions in sorted order.
func (c *ScenarioConfig) EnabledEnvironmentalConditions() []string {
	return enabledKeys(c.EnvironmentalConditions)
}

func enabledKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, on := range m {
		if on {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
