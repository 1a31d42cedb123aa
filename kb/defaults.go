package kb

import "github.com/signalsfoundry/casualty-flow-simulator/model"

// Reference values. Base rates are per-visit probabilities; Role4 rates are
// renormalised by the simulator because Role4 always resolves.
var defaultBaseRates = map[model.FacilityStage]map[model.TriageCategory]Rates{
	model.StagePOI: {
		model.TriageT1: {KIA: 0.20, RTD: 0.00},
		model.TriageT2: {KIA: 0.05, RTD: 0.10},
		model.TriageT3: {KIA: 0.01, RTD: 0.35},
	},
	model.StageRole1: {
		model.TriageT1: {KIA: 0.10, RTD: 0.05},
		model.TriageT2: {KIA: 0.03, RTD: 0.25},
		model.TriageT3: {KIA: 0.005, RTD: 0.60},
	},
	model.StageRole2: {
		model.TriageT1: {KIA: 0.07, RTD: 0.15},
		model.TriageT2: {KIA: 0.02, RTD: 0.40},
		model.TriageT3: {KIA: 0.005, RTD: 0.75},
	},
	model.StageRole3: {
		model.TriageT1: {KIA: 0.05, RTD: 0.35},
		model.TriageT2: {KIA: 0.01, RTD: 0.60},
		model.TriageT3: {KIA: 0.002, RTD: 0.85},
	},
	model.StageRole4: {
		model.TriageT1: {KIA: 0.04, RTD: 0.60},
		model.TriageT2: {KIA: 0.01, RTD: 0.80},
		model.TriageT3: {KIA: 0.001, RTD: 0.95},
	},
}

var defaultTriageProfiles = map[model.InjuryType]map[model.TriageCategory]float64{
	model.InjuryBattle:    {model.TriageT1: 0.35, model.TriageT2: 0.40, model.TriageT3: 0.25},
	model.InjuryNonBattle: {model.TriageT1: 0.15, model.TriageT2: 0.35, model.TriageT3: 0.50},
	model.InjuryDisease:   {model.TriageT1: 0.10, model.TriageT2: 0.30, model.TriageT3: 0.60},
}

var defaultIntensity = map[model.Intensity]IntensityProfile{
	model.IntensityLow:     {KIAScalar: 0.8, T1Shift: -0.05},
	model.IntensityMedium:  {KIAScalar: 1.0, T1Shift: 0},
	model.IntensityHigh:    {KIAScalar: 1.2, T1Shift: 0.05},
	model.IntensityExtreme: {KIAScalar: 1.5, T1Shift: 0.10},
}

var defaultWarfare = map[string]WarfareProfile{
	"conventional": {KIAScalar: 1.0, T1Shift: 0},
	"artillery":    {KIAScalar: 1.15, T1Shift: 0.05},
	"urban":        {KIAScalar: 1.10, T1Shift: 0.03},
	"guerrilla":    {KIAScalar: 1.05, T1Shift: 0.02},
	"drone":        {KIAScalar: 1.10, T1Shift: 0.04},
	"naval":        {KIAScalar: 1.05, T1Shift: 0},
	"cbrn":         {KIAScalar: 1.30, T1Shift: 0.08},
}

var defaultEnvironment = map[string]EnvironmentProfile{
	"rain":                {TimingMultiplier: 1.15, KIAScalar: 1.0},
	"fog":                 {TimingMultiplier: 1.10, KIAScalar: 1.0},
	"storm":               {TimingMultiplier: 1.30, KIAScalar: 1.02},
	"extreme_heat":        {TimingMultiplier: 1.05, KIAScalar: 1.05},
	"extreme_cold":        {TimingMultiplier: 1.10, KIAScalar: 1.05},
	"dust_storm":          {TimingMultiplier: 1.25, KIAScalar: 1.0},
	"mountainous_terrain": {TimingMultiplier: 1.30, KIAScalar: 1.03},
	"urban_debris":        {TimingMultiplier: 1.20, KIAScalar: 1.0},
	"night_operations":    {TimingMultiplier: 1.25, KIAScalar: 1.02},
}

var defaultEvents = map[string]SpecialEventProfile{
	"major_offensive": {SpikePosition: 0.33, DayWeightBoost: 2.0, T1Shift: 0.03},
	"ambush":          {SpikePosition: 0.50, DayWeightBoost: 1.5, T1Shift: 0.05},
	"mass_casualty":   {SpikePosition: 0.66, DayWeightBoost: 2.5, T1Shift: 0.10},
}

// Dwell ranges in hours.
var defaultDwell = model.DwellTable{
	model.StagePOI: {
		model.TriageT1: {MinHours: 0.25, MaxHours: 1},
		model.TriageT2: {MinHours: 0.5, MaxHours: 2},
		model.TriageT3: {MinHours: 0.5, MaxHours: 4},
	},
	model.StageRole1: {
		model.TriageT1: {MinHours: 0.5, MaxHours: 2},
		model.TriageT2: {MinHours: 1, MaxHours: 4},
		model.TriageT3: {MinHours: 2, MaxHours: 8},
	},
	model.StageRole2: {
		model.TriageT1: {MinHours: 2, MaxHours: 8},
		model.TriageT2: {MinHours: 4, MaxHours: 24},
		model.TriageT3: {MinHours: 12, MaxHours: 48},
	},
	model.StageRole3: {
		model.TriageT1: {MinHours: 24, MaxHours: 72},
		model.TriageT2: {MinHours: 48, MaxHours: 120},
		model.TriageT3: {MinHours: 72, MaxHours: 168},
	},
	model.StageRole4: {
		model.TriageT1: {MinHours: 72, MaxHours: 336},
		model.TriageT2: {MinHours: 120, MaxHours: 480},
		model.TriageT3: {MinHours: 168, MaxHours: 720},
	},
}

// Transit ranges in hours.
var defaultTransit = model.TransitTable{
	model.RoutePOIToRole1: {
		model.TriageT1: {MinHours: 0.25, MaxHours: 1},
		model.TriageT2: {MinHours: 0.5, MaxHours: 2},
		model.TriageT3: {MinHours: 1, MaxHours: 4},
	},
	model.RouteRole1ToRole2: {
		model.TriageT1: {MinHours: 0.5, MaxHours: 2},
		model.TriageT2: {MinHours: 1, MaxHours: 4},
		model.TriageT3: {MinHours: 2, MaxHours: 8},
	},
	model.RouteRole2ToRole3: {
		model.TriageT1: {MinHours: 1, MaxHours: 4},
		model.TriageT2: {MinHours: 2, MaxHours: 8},
		model.TriageT3: {MinHours: 4, MaxHours: 12},
	},
	model.RouteRole3ToRole4: {
		model.TriageT1: {MinHours: 6, MaxHours: 24},
		model.TriageT2: {MinHours: 12, MaxHours: 48},
		model.TriageT3: {MinHours: 24, MaxHours: 72},
	},
}

// Default returns a new knowledge base populated with the reference data.
// Each call returns an independent instance that callers may override.
func Default() *KnowledgeBase {
	store := NewKnowledgeBase()
	for stage, row := range defaultBaseRates {
		for triage, r := range row {
			mustNot(store.SetBaseRates(stage, triage, r))
		}
	}
	for injury, weights := range defaultTriageProfiles {
		mustNot(store.SetTriageProfile(injury, weights))
	}
	for level, p := range defaultIntensity {
		mustNot(store.SetIntensityProfile(level, p))
	}
	for name, p := range defaultWarfare {
		mustNot(store.SetWarfareProfile(name, p))
	}
	for name, p := range defaultEnvironment {
		mustNot(store.SetEnvironmentProfile(name, p))
	}
	for name, p := range defaultEvents {
		mustNot(store.SetSpecialEventProfile(name, p))
	}
	for stage, row := range defaultDwell {
		for triage, c := range row {
			mustNot(store.SetDefaultDwell(stage, triage, c))
		}
	}
	for route, row := range defaultTransit {
		for triage, c := range row {
			mustNot(store.SetDefaultTransit(route, triage, c))
		}
	}
	return store
}

func mustNot(err error) {
	if err != nil {
		panic(err)
	}
}
