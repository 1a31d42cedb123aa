package core

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/casualty-flow-simulator/kb"
	"github.com/signalsfoundry/casualty-flow-simulator/model"
)

// NationalityCount is the number of casualties of one nationality within
// a front-day.
type NationalityCount struct {
	NationalityCode string `json:"nationality_code"`
	Count           int    `json:"count"`
}

// FrontPlan is the share of one day's casualties assigned to a front.
type FrontPlan struct {
	FrontID       string             `json:"front_id"`
	Count         int                `json:"count"`
	Nationalities []NationalityCount `json:"nationalities"`
}

// DayPlan is the casualty count of one campaign day.
type DayPlan struct {
	DayIndex int         `json:"day_index"`
	Count    int         `json:"count"`
	Fronts   []FrontPlan `json:"fronts"`
}

// SchedulePlan is the deterministic count plan behind a schedule. Every
// level sums exactly to its parent.
type SchedulePlan struct {
	Total     int                          `json:"total"`
	Days      []DayPlan                    `json:"days"`
	InjuryMix map[model.InjuryType]float64 `json:"injury_mix"`
}

// CasualtyScheduler turns a scenario into an ordered list of casualty seeds.
type CasualtyScheduler struct {
	kb *kb.KnowledgeBase
}

// NewCasualtyScheduler returns a scheduler backed by store, or by the
// reference data when store is nil.
func NewCasualtyScheduler(store *kb.KnowledgeBase) *CasualtyScheduler {
	if store == nil {
		store = defaultKB()
	}
	return &CasualtyScheduler{kb: store}
}

// DayWeights returns the relative casualty weight of each campaign day:
// the tempo curve with special-event spikes applied.
func (s *CasualtyScheduler) DayWeights(cfg *model.ScenarioConfig) []float64 {
	n := cfg.DaysOfFighting
	if n <= 0 {
		return nil
	}
	weights := tempoCurve(cfg.Tempo, n)
	for _, name := range cfg.EnabledSpecialEvents() {
		ev, ok := s.kb.SpecialEventProfile(name)
		if !ok {
			continue
		}
		weights[spikeDay(ev.SpikePosition, n)] *= ev.DayWeightBoost
	}
	return weights
}

func tempoCurve(tempo model.Tempo, n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		ramp := 0.0
		if n > 1 {
			ramp = float64(i) / float64(n-1)
		}
		switch tempo {
		case model.TempoEscalating:
			w[i] = 1 + 2*ramp
		case model.TempoDeclining:
			w[i] = 3 - 2*ramp
		case model.TempoSurge:
			if i < (n+3)/4 {
				w[i] = 3
			} else {
				w[i] = 1
			}
		case model.TempoIntermittent:
			if i%2 == 0 {
				w[i] = 1.5
			} else {
				w[i] = 0.5
			}
		default:
			w[i] = 1
		}
	}
	return w
}

func spikeDay(position float64, n int) int {
	day := int(math.Floor(position * float64(n)))
	if day >= n {
		day = n - 1
	}
	if day < 0 {
		day = 0
	}
	return day
}

// Plan partitions total_patients over days, fronts and nationalities using
// largest-remainder rounding at every level. It draws no random numbers.
func (s *CasualtyScheduler) Plan(cfg *model.ScenarioConfig) (*SchedulePlan, error) {
	if cfg == nil {
		return nil, fmt.Errorf("schedule: config is nil")
	}
	if cfg.TotalPatients <= 0 || cfg.DaysOfFighting <= 0 || len(cfg.Fronts) == 0 {
		return nil, fmt.Errorf("schedule: total_patients, days_of_fighting and front_configs must be positive")
	}

	frontWeights := make([]float64, len(cfg.Fronts))
	for i, f := range cfg.Fronts {
		frontWeights[i] = f.CasualtyRate
	}

	plan := &SchedulePlan{
		Total:     cfg.TotalPatients,
		Days:      make([]DayPlan, cfg.DaysOfFighting),
		InjuryMix: s.EffectiveInjuryMix(cfg),
	}
	for day, dayCount := range allocate(cfg.TotalPatients, s.DayWeights(cfg)) {
		dp := DayPlan{DayIndex: day, Count: dayCount, Fronts: make([]FrontPlan, 0, len(cfg.Fronts))}
		for fi, frontCount := range allocate(dayCount, frontWeights) {
			front := cfg.Fronts[fi]
			if len(front.NationalityDistribution) == 0 && frontCount > 0 {
				return nil, fmt.Errorf("schedule: front %q has no nationality distribution", front.ID)
			}
			natWeights := make([]float64, len(front.NationalityDistribution))
			for ni, n := range front.NationalityDistribution {
				natWeights[ni] = n.Percentage
			}
			fp := FrontPlan{FrontID: front.ID, Count: frontCount}
			for ni, c := range allocate(frontCount, natWeights) {
				fp.Nationalities = append(fp.Nationalities, NationalityCount{
					NationalityCode: front.NationalityDistribution[ni].NationalityCode,
					Count:           c,
				})
			}
			dp.Fronts = append(dp.Fronts, fp)
		}
		plan.Days[day] = dp
	}
	return plan, nil
}

// Schedule expands the plan into exactly total_patients seeds ordered by
// day, front and nationality, sampling each seed's injury type from rng.
func (s *CasualtyScheduler) Schedule(cfg *model.ScenarioConfig, rng rand.Source) ([]model.CasualtySeed, error) {
	plan, err := s.Plan(cfg)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("schedule: rng is nil")
	}
	sampler, err := newInjurySampler(plan.InjuryMix)
	if err != nil {
		return nil, err
	}

	seeds := make([]model.CasualtySeed, 0, plan.Total)
	for _, day := range plan.Days {
		for _, front := range day.Fronts {
			for _, nat := range front.Nationalities {
				for k := 0; k < nat.Count; k++ {
					seeds = append(seeds, model.CasualtySeed{
						Sequence:        len(seeds),
						FrontID:         front.FrontID,
						NationalityCode: nat.NationalityCode,
						InjuryType:      sampler.draw(uniform(rng)),
						DayIndex:        day.DayIndex,
					})
				}
			}
		}
	}
	if len(seeds) != plan.Total {
		return nil, fmt.Errorf("%w: scheduled %d seeds, want %d", ErrInternal, len(seeds), plan.Total)
	}
	return seeds, nil
}

// EffectiveInjuryMix returns the injury mix after polytrauma overrides.
// The largest polytrauma rate among enabled warfare types replaces the
// Battle Injury share when it is higher, and the other categories shrink
// proportionally.
func (s *CasualtyScheduler) EffectiveInjuryMix(cfg *model.ScenarioConfig) map[model.InjuryType]float64 {
	base := cfg.EffectiveInjuryMix()
	mix := make(map[model.InjuryType]float64, len(model.InjuryTypes))
	for _, t := range model.InjuryTypes {
		mix[t] = base[t]
	}

	rate, ok := polytraumaRate(cfg)
	battle := mix[model.InjuryBattle]
	if !ok || rate <= battle {
		return mix
	}
	others := 0.0
	for _, t := range model.InjuryTypes {
		if t != model.InjuryBattle {
			others += mix[t]
		}
	}
	for _, t := range model.InjuryTypes {
		if t == model.InjuryBattle {
			continue
		}
		if others > 0 {
			mix[t] = mix[t] * (1 - rate) / others
		} else {
			mix[t] = 0
		}
	}
	mix[model.InjuryBattle] = rate
	return mix
}

func polytraumaRate(cfg *model.ScenarioConfig) (float64, bool) {
	if cfg.AdvancedOverrides == nil || len(cfg.AdvancedOverrides.PolytraumaRates) == 0 {
		return 0, false
	}
	best, found := 0.0, false
	for _, name := range cfg.EnabledWarfareTypes() {
		p := cfg.AdvancedOverrides.PolytraumaRates[name]
		if p == nil {
			continue
		}
		if !found || *p > best {
			best, found = *p, true
		}
	}
	return best, found
}

type injurySampler struct {
	types []model.InjuryType
	cum   []float64
	total float64
}

func newInjurySampler(mix map[model.InjuryType]float64) (*injurySampler, error) {
	s := &injurySampler{}
	for _, t := range model.InjuryTypes {
		w := mix[t]
		if !(w > 0) {
			continue
		}
		s.total += w
		s.types = append(s.types, t)
		s.cum = append(s.cum, s.total)
	}
	if len(s.types) == 0 {
		return nil, fmt.Errorf("schedule: injury mix has no positive share")
	}
	return s, nil
}

func (s *injurySampler) draw(u float64) model.InjuryType {
	x := u * s.total
	for i, c := range s.cum {
		if x < c {
			return s.types[i]
		}
	}
	return s.types[len(s.types)-1]
}
