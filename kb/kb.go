package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

var (
	ErrUnknownFacility = errors.New("unknown facility")
	ErrUnknownTriage   = errors.New("unknown triage category")
	ErrUnknownInjury   = errors.New("unknown injury type")
	ErrInvalidRate     = errors.New("rate must lie in [0,1]")
	ErrInvalidProfile  = errors.New("invalid profile")
)

// Rates are the base per-visit probabilities of a (facility, triage) cell
// before scenario modifiers are applied.
type Rates struct {
	KIA float64 `json:"kia"`
	RTD float64 `json:"rtd"`
}

// IntensityProfile describes how a scenario intensity shifts severity.
type IntensityProfile struct {
	KIAScalar float64 `json:"kia_scalar"`
	T1Shift   float64 `json:"t1_shift"`
}

// WarfareProfile describes the lethality and severity effect of a warfare type.
type WarfareProfile struct {
	KIAScalar float64 `json:"kia_scalar"`
	T1Shift   float64 `json:"t1_shift"`
}

// EnvironmentProfile describes how an environmental condition slows evacuation
// and affects lethality.
type EnvironmentProfile struct {
	TimingMultiplier float64 `json:"timing_multiplier"`
	KIAScalar        float64 `json:"kia_scalar"`
}

// SpecialEventProfile describes a casualty spike placed within the campaign.
// SpikePosition is a fraction of the campaign length in [0,1].
type SpecialEventProfile struct {
	SpikePosition  float64 `json:"spike_position"`
	DayWeightBoost float64 `json:"day_weight_boost"`
	T1Shift        float64 `json:"t1_shift"`
}

// KnowledgeBase is an in-memory, thread-safe store of medical reference data
// used to resolve base rates, triage profiles, scenario modifiers and default
// timing tables.
type KnowledgeBase struct {
	mu sync.RWMutex

	baseRates   map[model.FacilityStage]map[model.TriageCategory]Rates
	triage      map[model.InjuryType]map[model.TriageCategory]float64
	intensity   map[model.Intensity]IntensityProfile
	warfare     map[string]WarfareProfile
	environment map[string]EnvironmentProfile
	events      map[string]SpecialEventProfile
	dwell       model.DwellTable
	transit     model.TransitTable
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		baseRates:   make(map[model.FacilityStage]map[model.TriageCategory]Rates),
		triage:      make(map[model.InjuryType]map[model.TriageCategory]float64),
		intensity:   make(map[model.Intensity]IntensityProfile),
		warfare:     make(map[string]WarfareProfile),
		environment: make(map[string]EnvironmentProfile),
		events:      make(map[string]SpecialEventProfile),
		dwell:       make(model.DwellTable),
		transit:     make(model.TransitTable),
	}
}

//
// ---------- Base rates ----------
//

// SetBaseRates stores the base KIA/RTD probabilities of a cell.
func (kb *KnowledgeBase) SetBaseRates(stage model.FacilityStage, triage model.TriageCategory, r Rates) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFacility, stage)
	}
	if !triage.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTriage, triage)
	}
	if !inUnit(r.KIA) || !inUnit(r.RTD) {
		return fmt.Errorf("%w: %s/%s kia=%v rtd=%v", ErrInvalidRate, stage, triage, r.KIA, r.RTD)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	row, ok := kb.baseRates[stage]
	if !ok {
		row = make(map[model.TriageCategory]Rates)
		kb.baseRates[stage] = row
	}
	row[triage] = r
	return nil
}

// BaseRates returns the base probabilities of a cell.
func (kb *KnowledgeBase) BaseRates(stage model.FacilityStage, triage model.TriageCategory) (Rates, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	r, ok := kb.baseRates[stage][triage]
	return r, ok
}

//
// ---------- Triage profiles ----------
//

// SetTriageProfile stores the POI triage weights of an injury type. Weights
// are normalised on read, so they need not sum to one.
func (kb *KnowledgeBase) SetTriageProfile(injury model.InjuryType, weights map[model.TriageCategory]float64) error {
	if !injury.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownInjury, injury)
	}
	total := 0.0
	cp := make(map[model.TriageCategory]float64, len(weights))
	for t, w := range weights {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTriage, t)
		}
		if w < 0 {
			return fmt.Errorf("%w: negative triage weight for %s/%s", ErrInvalidProfile, injury, t)
		}
		cp[t] = w
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%w: triage profile for %s has no weight", ErrInvalidProfile, injury)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.triage[injury] = cp
	return nil
}

// TriageProfile returns a copy of the triage weights of an injury type.
func (kb *KnowledgeBase) TriageProfile(injury model.InjuryType) (map[model.TriageCategory]float64, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	profile, ok := kb.triage[injury]
	if !ok {
		return nil, false
	}
	out := make(map[model.TriageCategory]float64, len(profile))
	for k, v := range profile {
		out[k] = v
	}
	return out, true
}

//
// ---------- Scenario modifier profiles ----------
//

func (kb *KnowledgeBase) SetIntensityProfile(level model.Intensity, p IntensityProfile) error {
	if p.KIAScalar < 0 {
		return fmt.Errorf("%w: intensity %q has negative kia scalar", ErrInvalidProfile, level)
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.intensity[level] = p
	return nil
}

func (kb *KnowledgeBase) IntensityProfile(level model.Intensity) (IntensityProfile, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	p, ok := kb.intensity[level]
	return p, ok
}

func (kb *KnowledgeBase) SetWarfareProfile(name string, p WarfareProfile) error {
	if name == "" || p.KIAScalar < 0 {
		return fmt.Errorf("%w: warfare type %q", ErrInvalidProfile, name)
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.warfare[name] = p
	return nil
}

func (kb *KnowledgeBase) WarfareProfile(name string) (WarfareProfile, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	p, ok := kb.warfare[name]
	return p, ok
}

// WarfareTypes returns the known warfare types in sorted order.
func (kb *KnowledgeBase) WarfareTypes() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedKeys(kb.warfare)
}

func (kb *KnowledgeBase) SetEnvironmentProfile(name string, p EnvironmentProfile) error {
	if name == "" || p.TimingMultiplier < 0 || p.KIAScalar < 0 {
		return fmt.Errorf("%w: environmental condition %q", ErrInvalidProfile, name)
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.environment[name] = p
	return nil
}

func (kb *KnowledgeBase) EnvironmentProfile(name string) (EnvironmentProfile, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	p, ok := kb.environment[name]
	return p, ok
}

// EnvironmentalConditions returns the known conditions in sorted order.
func (kb *KnowledgeBase) EnvironmentalConditions() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedKeys(kb.environment)
}

func (kb *KnowledgeBase) SetSpecialEventProfile(name string, p SpecialEventProfile) error {
	if name == "" || p.DayWeightBoost < 0 || !inUnit(p.SpikePosition) {
		return fmt.Errorf("%w: special event %q", ErrInvalidProfile, name)
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.events[name] = p
	return nil
}

func (kb *KnowledgeBase) SpecialEventProfile(name string) (SpecialEventProfile, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	p, ok := kb.events[name]
	return p, ok
}

// SpecialEvents returns the known special events in sorted order.
func (kb *KnowledgeBase) SpecialEvents() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return sortedKeys(kb.events)
}

//
// ---------- Default timing tables ----------
//

// SetDefaultDwell stores the default dwell range of a cell.
func (kb *KnowledgeBase) SetDefaultDwell(stage model.FacilityStage, triage model.TriageCategory, cell model.TimingCell) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFacility, stage)
	}
	if !triage.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTriage, triage)
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.dwell[stage] == nil {
		kb.dwell[stage] = make(map[model.TriageCategory]model.TimingCell)
	}
	kb.dwell[stage][triage] = cell
	return nil
}

// SetDefaultTransit stores the default transit range of a route cell.
func (kb *KnowledgeBase) SetDefaultTransit(route model.Route, triage model.TriageCategory, cell model.TimingCell) error {
	if !route.Valid() {
		return fmt.Errorf("unknown route %q", route)
	}
	if !triage.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTriage, triage)
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.transit[route] == nil {
		kb.transit[route] = make(map[model.TriageCategory]model.TimingCell)
	}
	kb.transit[route][triage] = cell
	return nil
}

// DefaultDwellTable returns a deep copy of the default dwell table.
func (kb *KnowledgeBase) DefaultDwellTable() model.DwellTable {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make(model.DwellTable, len(kb.dwell))
	for stage, row := range kb.dwell {
		cp := make(map[model.TriageCategory]model.TimingCell, len(row))
		for t, c := range row {
			cp[t] = c
		}
		out[stage] = cp
	}
	return out
}

// DefaultTransitTable returns a deep copy of the default transit table.
func (kb *KnowledgeBase) DefaultTransitTable() model.TransitTable {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make(model.TransitTable, len(kb.transit))
	for route, row := range kb.transit {
		cp := make(map[model.TriageCategory]model.TimingCell, len(row))
		for t, c := range row {
			cp[t] = c
		}
		out[route] = cp
	}
	return out
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
