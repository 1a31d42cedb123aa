package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
	"github.com/signalsfoundry/casualty-flow-simulator/timectrl"
)

const (
	// DefaultMaxPatients bounds the run time of a single generation.
	DefaultMaxPatients = 100000
	// MaxDaysOfFighting bounds the scheduling horizon.
	MaxDaysOfFighting = 365
	// MaxTimingHours bounds every dwell and transit cell to one year.
	MaxTimingHours = 8760

	// Sums may differ from their target by at most the tolerance. In
	// float64 a rate sum of 0.99 is 0.010000000000000009 away from 1, so it
	// is still rejected.
	fractionTolerance   = 0.01
	percentageTolerance = 0.01
)

// Limits are the hard ceilings enforced during validation.
type Limits struct {
	MaxPatients int
}

// DefaultLimits returns the built-in ceilings.
func DefaultLimits() Limits {
	return Limits{MaxPatients: DefaultMaxPatients}
}

func (l Limits) maxPatients() int {
	if l.MaxPatients <= 0 {
		return DefaultMaxPatients
	}
	return l.MaxPatients
}

// Validator checks a ScenarioConfig against the knowledge base and limits.
// It never mutates the configuration.
type Validator struct {
	kb     *kb.KnowledgeBase
	limits Limits
}

// NewValidator builds a validator. A nil store uses the reference data.
func NewValidator(store *kb.KnowledgeBase, limits Limits) *Validator {
	if store == nil {
		store = defaultKB()
	}
	return &Validator{kb: store, limits: limits}
}

var (
	sharedKBOnce sync.Once
	sharedKB     *kb.KnowledgeBase
)

// defaultKB returns a process-wide reference knowledge base used when the
// caller does not supply one. It is only ever read.
func defaultKB() *kb.KnowledgeBase {
	sharedKBOnce.Do(func() { sharedKB = kb.Default() })
	return sharedKB
}

// Validate runs every check in order and returns the first failure.
func Validate(cfg *model.ScenarioConfig) error {
	return NewValidator(nil, DefaultLimits()).Validate(cfg)
}

// ValidateWithLimits is Validate with caller-supplied ceilings.
func ValidateWithLimits(cfg *model.ScenarioConfig, limits Limits) error {
	return NewValidator(nil, limits).Validate(cfg)
}

// ValidateAll reports every failing check. It returns nil or a
// ValidationErrors value.
func ValidateAll(cfg *model.ScenarioConfig) error {
	return NewValidator(nil, DefaultLimits()).ValidateAll(cfg)
}

// Validate returns the first failing check, or nil.
func (v *Validator) Validate(cfg *model.ScenarioConfig) error {
	var first error
	v.run(cfg, func(err error) bool {
		first = err
		return false
	})
	return first
}

// ValidateAll returns every failing check as ValidationErrors, or nil.
func (v *Validator) ValidateAll(cfg *model.ScenarioConfig) error {
	var errs ValidationErrors
	v.run(cfg, func(err error) bool {
		errs = append(errs, err)
		return true
	})
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// report receives each failure and returns false to stop validation.
type report func(error) bool

type check func(v *Validator, cfg *model.ScenarioConfig, r report) bool

// checks run in this order; each returns false once r asks to stop.
var checks = []check{
	checkTotalPatients,
	checkFronts,
	checkNationalities,
	checkInjuryMix,
	checkEnums,
	checkTimingTables,
	checkRateModifiers,
	checkAdvancedOverrides,
	checkCampaign,
	checkScenarioModifiers,
	checkTerminalOutcomes,
}

func (v *Validator) run(cfg *model.ScenarioConfig, r report) {
	if cfg == nil {
		r(invalid("config", RuleRequired, "scenario configuration is required"))
		return
	}
	for _, c := range checks {
		if !c(v, cfg, r) {
			return
		}
	}
}

func invalid(field, rule, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// withinTolerance reports |sum-want| <= tol; NaN sums are never within.
func withinTolerance(sum, want, tol float64) bool {
	return math.Abs(sum-want) <= tol
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func inUnit(x float64) bool { return finite(x) && x >= 0 && x <= 1 }

func sortedKeys[K ~string, V any](m map[K]V) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func checkTotalPatients(v *Validator, cfg *model.ScenarioConfig, r report) bool {
	if cfg.TotalPatients <= 0 {
		return r(invalid("total_patients", RuleRange, "must be a positive integer, got %d", cfg.TotalPatients))
	}
	if limit := v.limits.maxPatients(); cfg.TotalPatients > limit {
		return r(&ConfigurationBoundsError{Field: "total_patients", Limit: limit, Value: cfg.TotalPatients})
	}
	return true
}

func checkFronts(_ *Validator, cfg *model.ScenarioConfig, r report) bool {
	if len(cfg.Fronts) == 0 {
		return r(invalid("front_configs", RuleRequired, "at least one front is required"))
	}
	seen := make(map[string]bool, len(cfg.Fronts))
	sum := 0.0
	for i, f := range cfg.Fronts {
		field := fmt.Sprintf("front_configs[%d]", i)
		if strings.TrimSpace(f.ID) == "" {
			if !r(invalid(field+".id", RuleRequired, "front id is required")) {
				return false
			}
		} else if seen[f.ID] {
			if !r(invalid(field+".id", RuleDuplicate, "duplicate front id %q", f.ID)) {
				return false
			}
		}
		seen[f.ID] = true
		if !inUnit(f.CasualtyRate) {
			if !r(invalid(field+".casualty_rate", RuleRange, "front %q casualty_rate %v must lie in [0,1]", f.ID, f.CasualtyRate)) {
				return false
			}
		}
		sum += f.CasualtyRate
	}
	if !withinTolerance(sum, 1, fractionTolerance) {
		return r(invalid("front_configs.casualty_rate", RuleCasualtyRates,
			"front casualty rates sum to %.4f, want 1.0 ± %.2f", sum, fractionTolerance))
	}
	return true
}

func checkNationalities(_ *Validator, cfg *model.ScenarioConfig, r report) bool {
	for i, f := range cfg.Fronts {
		field := fmt.Sprintf("front_configs[%d].nationality_distribution", i)
		if len(f.NationalityDistribution) == 0 {
			if !r(invalid(field, RuleRequired, "front %q has no nationality distribution", f.ID)) {
				return false
			}
			continue
		}
		seen := make(map[string]bool, len(f.NationalityDistribution))
		sum := 0.0
		for j, n := range f.NationalityDistribution {
			nf := fmt.Sprintf("%s[%d]", field, j)
			code := strings.TrimSpace(n.NationalityCode)
			switch {
			case code == "":
				if !r(invalid(nf+".nationality_code", RuleRequired, "nationality code is required")) {
					return false
				}
			case seen[code]:
				if !r(invalid(nf+".nationality_code", RuleDuplicate, "duplicate nationality %q in front %q", code, f.ID)) {
					return false
				}
			}
			seen[code] = true
			if !finite(n.Percentage) || n.Percentage < 0 || n.Percentage > 100 {
				if !r(invalid(nf+".percentage", RuleRange, "percentage %v must lie in [0,100]", n.Percentage)) {
					return false
				}
			}
			sum += n.Percentage
		}
		if !withinTolerance(sum, 100, percentageTolerance) {
			if !r(invalid(field, RuleSum, "front %q nationality percentages sum to %.4f, want 100 ± %.2f", f.ID, sum, percentageTolerance)) {
				return false
			}
		}
	}
	return true
}

func checkInjuryMix(_ *Validator, cfg *model.ScenarioConfig, r report) bool {
	mix := cfg.EffectiveInjuryMix()
	if len(mix) == 0 {
		return r(invalid("injury_mix", RuleRequired, "injury_mix is required"))
	}
	for _, k := range sortedKeys(mix) {
		if !k.Valid() {
			if !r(invalid("injury_mix", RuleUnknown, "unknown injury category %q", k)) {
				return false
			}
		}
	}
	sum := 0.0
	for _, k := range model.InjuryTypes {
		share, ok := mix[k]
		if !ok {
			if !r(invalid("injury_mix", RuleCoverage, "missing injury category %q", k)) {
				return false
			}
			continue
		}
		if !inUnit(share) {
			if !r(invalid("injury_mix", RuleRange, "share of %q is %v, must lie in [0,1]", k, share)) {
				return false
			}
		}
		sum += share
	}
	if !withinTolerance(sum, 1, fractionTolerance) {
		return r(invalid("injury_mix", RuleSum, "injury mix sums to %.4f, want 1.0 ± %.2f", sum, fractionTolerance))
	}
	return true
}

func checkEnums(_ *Validator, cfg *model.ScenarioConfig, r report) bool {
	if !validIntensity(cfg.Intensity) {
		if !r(invalid("intensity", RuleEnum, "unknown intensity %q", cfg.Intensity)) {
			return false
		}
	}
	if !validTempo(cfg.Tempo) {
		return r(invalid("tempo", RuleEnum, "unknown tempo %q", cfg.Tempo))
	}
	return true
}

func validIntensity(i model.Intensity) bool {
	for _, known := range model.Intensities {
		if known == i {
			return true
		}
	}
	return false
}

func validTempo(t model.Tempo) bool {
	for _, known := range model.Tempos {
		if known == t {
			return true
		}
	}
	return false
}

func checkTimingTables(_ *Validator, cfg *model.ScenarioConfig, r report) bool {
	for _, stage := range sortedKeys(cfg.EvacuationTimes) {
		if !stage.Valid() {
			if !r(invalid("evacuation_times", RuleUnknown, "unknown facility %q", stage)) {
				return false
			}
		}
	}
	for _, stage := range model.Stages {
		row := cfg.EvacuationTimes[stage]
		for _, triage := range model.TriageCategories {
			field := fmt.Sprintf("evacuation_times.%s.%s", stage, triage)
			cell, ok := row[triage]
			if !ok {
				if !r(invalid(field, RuleCoverage, "missing dwell range")) {
					return false
				}
				continue
			}
			if err := checkCell(field, cell); err != nil && !r(err) {
				return false
			}
		}
	}
	for _, route := range sortedKeys(cfg.TransitTimes) {
		if !route.Valid() {
			if !r(invalid("transit_times", RuleUnknown, "unknown route %q", route)) {
				return false
			}
		}
	}
	for _, route := range model.Routes {
		row := cfg.TransitTimes[route]
		for _, triage := range model.TriageCategories {
			field := fmt.Sprintf("transit_times.%s.%s", route, triage)
			cell, ok := row[triage]
			if !ok {
				if !r(invalid(field, RuleCoverage, "missing transit range")) {
					return false
				}
				continue
			}
			if err := checkCell(field, cell); err != nil && !r(err) {
				return false
			}
		}
	}
	return true
}

func checkCell(field string, c model.TimingCell) error {
	if !finite(c.MinHours) || !finite(c.MaxHours) || c.MinHours < 0 || c.MaxHours < 0 {
		return invalid(field, RuleRange, "hours must be finite and non-negative, got [%v,%v]", c.MinHours, c.MaxHours)
	}
	if c.MinHours > c.MaxHours {
		return invalid(field, RuleTimingOrder, "min_hours %v exceeds max_hours %v", c.MinHours, c.MaxHours)
	}
	if c.MaxHours > MaxTimingHours {
		return invalid(field, RuleRange, "max_hours %v exceeds %d", c.MaxHours, MaxTimingHours)
	}
	return nil
}

func checkRateModifiers(_ *Validator, cfg *model.ScenarioConfig, r report) bool {
	tables := []struct {
		name string
		mods model.RateModifiers
	}{
		{"kia_rate_modifiers", cfg.KIARateModifiers},
		{"rtd_rate_modifiers", cfg.RTDRateModifiers},
	}
	for _, tbl := range tables {
		for _, k := range sortedKeys(tbl.mods) {
			if !k.Valid() {
				if !r(invalid(tbl.name, RuleUnknown, "unknown triage category %q", k)) {
					return false
				}
			}
		}
		for _, triage := range model.TriageCategories {
			field := tbl.name + "." + string(triage)
			m, ok := tbl.mods[triage]
			if !ok {
				if !r(invalid(field, RuleCoverage, "missing modifier")) {
					return false
				}
				continue
			}
			if !finite(m) || m < 0 {
				if !r(invalid(field, RuleNonNegative, "modifier %v must be non-negative", m)) {
					return false
				}
			}
		}
	}
	return true
}

func checkAdvancedOverrides(v *Validator, cfg *model.ScenarioConfig, r report) bool {
	adv := cfg.AdvancedOverrides
	if adv == nil {
		return true
	}
	unit := func(field string, p *float64) bool {
		if p == nil || inUnit(*p) {
			return true
		}
		return r(invalid(field, RuleRange, "value %v must lie in [0,1]", *p))
	}

	for _, stage := range sortedKeys(adv.TreatmentEffectiveness) {
		p := adv.TreatmentEffectiveness[stage]
		field := "advanced_overrides.treatment_effectiveness." + string(stage)
		if !stage.Valid() {
			if !r(invalid(field, RuleUnknown, "unknown facility %q", stage)) {
				return false
			}
			continue
		}
		if !unit(field, p) {
			return false
		}
	}
	if !unit("advanced_overrides.diagnostic_accuracy", adv.DiagnosticAccuracy) {
		return false
	}
	for _, stage := range sortedKeys(adv.MarkovOverrides) {
		row := adv.MarkovOverrides[stage]
		if !stage.Valid() {
			if !r(invalid("advanced_overrides.markov_overrides", RuleUnknown, "unknown facility %q", stage)) {
				return false
			}
			continue
		}
		for _, triage := range sortedKeys(row) {
			o := row[triage]
			field := fmt.Sprintf("advanced_overrides.markov_overrides.%s.%s", stage, triage)
			if !triage.Valid() {
				if !r(invalid(field, RuleUnknown, "unknown triage category %q", triage)) {
					return false
				}
				continue
			}
			if !unit(field+".kia", o.KIA) || !unit(field+".rtd", o.RTD) {
				return false
			}
		}
	}
	for _, name := range sortedKeys(adv.PolytraumaRates) {
		p := adv.PolytraumaRates[name]
		field := "advanced_overrides.polytrauma_rates." + name
		if _, ok := v.kb.WarfareProfile(name); !ok {
			if !r(invalid(field, RuleUnknown, "unknown warfare type %q", name)) {
				return false
			}
			continue
		}
		if !unit(field, p) {
			return false
		}
	}
	for _, injury := range sortedKeys(adv.TriageDistribution) {
		row := adv.TriageDistribution[injury]
		field := "advanced_overrides.triage_distribution." + string(injury)
		if !injury.Valid() {
			if !r(invalid(field, RuleUnknown, "unknown injury category %q", injury)) {
				return false
			}
			continue
		}
		sum, complete := 0.0, true
		for _, triage := range sortedKeys(row) {
			p := row[triage]
			if !triage.Valid() {
				if !r(invalid(field, RuleUnknown, "unknown triage category %q", triage)) {
					return false
				}
				continue
			}
			if !unit(field+"."+string(triage), p) {
				return false
			}
		}
		for _, triage := range model.TriageCategories {
			p := row[triage]
			if p == nil {
				complete = false
				continue
			}
			sum += *p
		}
		if complete && !withinTolerance(sum, 1, fractionTolerance) {
			if !r(invalid(field, RuleSum, "triage distribution sums to %.4f, want 1.0 ± %.2f", sum, fractionTolerance)) {
				return false
			}
		}
	}
	return true
}

func checkCampaign(_ *Validator, cfg *model.ScenarioConfig, r report) bool {
	if cfg.DaysOfFighting < 1 || cfg.DaysOfFighting > MaxDaysOfFighting {
		if !r(invalid("days_of_fighting", RuleRange, "must lie in [1,%d], got %d", MaxDaysOfFighting, cfg.DaysOfFighting)) {
			return false
		}
	}
	if _, err := timectrl.ParseBaseDate(cfg.BaseDate); err != nil {
		return r(invalid("base_date", RuleFormat, "%v", err))
	}
	return true
}

func checkScenarioModifiers(v *Validator, cfg *model.ScenarioConfig, r report) bool {
	for _, name := range cfg.EnabledWarfareTypes() {
		if _, ok := v.kb.WarfareProfile(name); !ok {
			if !r(invalid("warfare_types."+name, RuleUnknown, "unknown warfare type %q", name)) {
				return false
			}
		}
	}
	for _, name := range cfg.EnabledSpecialEvents() {
		if _, ok := v.kb.SpecialEventProfile(name); !ok {
			if !r(invalid("special_events."+name, RuleUnknown, "unknown special event %q", name)) {
				return false
			}
		}
	}
	for _, name := range cfg.EnabledEnvironmentalConditions() {
		if _, ok := v.kb.EnvironmentProfile(name); !ok {
			if !r(invalid("environmental_conditions."+name, RuleUnknown, "unknown environmental condition %q", name)) {
				return false
			}
		}
	}
	for _, name := range sortedKeys(cfg.EnvironmentalModifiers) {
		m := cfg.EnvironmentalModifiers[name]
		field := "environmental_modifiers." + name
		if _, ok := v.kb.EnvironmentProfile(name); !ok {
			if !r(invalid(field, RuleUnknown, "unknown environmental condition %q", name)) {
				return false
			}
			continue
		}
		if !finite(m) || m < 0 {
			if !r(invalid(field, RuleNonNegative, "multiplier %v must be non-negative", m)) {
				return false
			}
		}
	}
	return true
}

// checkTerminalOutcomes rejects scenarios whose effective Role4 rates leave
// a triage category with neither a KIA nor an RTD branch. It only runs once
// the rate modifiers are complete; a knowledge base without Role4 rates is
// an internal fault and is left to the engine.
func checkTerminalOutcomes(v *Validator, cfg *model.ScenarioConfig, r report) bool {
	for _, mods := range []model.RateModifiers{cfg.KIARateModifiers, cfg.RTDRateModifiers} {
		for _, triage := range model.TriageCategories {
			if m, ok := mods[triage]; !ok || !finite(m) || m < 0 {
				return true
			}
		}
	}
	table, err := newOutcomeTable(cfg, v.kb, OverflowProportional)
	if err != nil {
		return true
	}
	for _, triage := range model.TriageCategories {
		p, _ := table.probabilities(model.StageRole4, triage)
		if p.KIA+p.RTD > 0 {
			continue
		}
		field := fmt.Sprintf("kia_rate_modifiers.%[1]s/rtd_rate_modifiers.%[1]s", triage)
		if !r(invalid(field, RuleCoverage, "Role4 has neither a KIA nor an RTD outcome for %s after modifiers and overrides", triage)) {
			return false
		}
	}
	return true
}
