package model

import "fmt"

// FacilityStage is an echelon of the medical evacuation chain.
type FacilityStage string

const (
	StagePOI   FacilityStage = "POI"
	StageRole1 FacilityStage = "Role1"
	StageRole2 FacilityStage = "Role2"
	StageRole3 FacilityStage = "Role3"
	StageRole4 FacilityStage = "Role4"
)

// Stages lists the evacuation chain in order, point of injury first.
var Stages = []FacilityStage{StagePOI, StageRole1, StageRole2, StageRole3, StageRole4}

// Index returns the position of s in the chain, or -1 for unknown stages.
func (s FacilityStage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a recognised stage.
func (s FacilityStage) Valid() bool { return s.Index() >= 0 }

// IsTerminal reports whether s is the last echelon. Patients reaching it
// always resolve to KIA or RTD.
func (s FacilityStage) IsTerminal() bool { return s == StageRole4 }

// Next returns the following echelon and false when s is terminal or unknown.
func (s FacilityStage) Next() (FacilityStage, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(Stages) {
		return "", false
	}
	return Stages[idx+1], true
}

// Route identifies an inter-echelon transit leg, e.g. "POI_to_Role1".
type Route string

const (
	RoutePOIToRole1   Route = "POI_to_Role1"
	RouteRole1ToRole2 Route = "Role1_to_Role2"
	RouteRole2ToRole3 Route = "Role2_to_Role3"
	RouteRole3ToRole4 Route = "Role3_to_Role4"
)

// Routes lists the four transit legs in chain order.
var Routes = []Route{RoutePOIToRole1, RouteRole1ToRole2, RouteRole2ToRole3, RouteRole3ToRole4}

// RouteBetween returns the route from one stage to the next.
func RouteBetween(from, to FacilityStage) (Route, error) {
	next, ok := from.Next()
	if !ok || next != to {
		return "", fmt.Errorf("no transit route from %q to %q", from, to)
	}
	return Route(string(from) + "_to_" + string(to)), nil
}

// RouteFrom returns the route leaving stage s.
func RouteFrom(s FacilityStage) (Route, bool) {
	next, ok := s.Next()
	if !ok {
		return "", false
	}
	return Route(string(s) + "_to_" + string(next)), true
}

// Valid reports whether r is one of the four recognised legs.
func (r Route) Valid() bool {
	for _, known := range Routes {
		if known == r {
			return true
		}
	}
	return false
}

// TriageCategory is a severity class; T1 is the most severe.
type TriageCategory string

const (
	TriageT1 TriageCategory = "T1"
	TriageT2 TriageCategory = "T2"
	TriageT3 TriageCategory = "T3"
)

// TriageCategories lists categories from most to least severe.
var TriageCategories = []TriageCategory{TriageT1, TriageT2, TriageT3}

// Severity returns 0 for T1 through 2 for T3, or -1 when unknown.
func (t TriageCategory) Severity() int {
	for i, c := range TriageCategories {
		if c == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is a recognised triage category.
func (t TriageCategory) Valid() bool { return t.Severity() >= 0 }

// Outcome is the result drawn at a stage, or the final state of a patient.
type Outcome string

const (
	OutcomeContinue     Outcome = "Continue"
	OutcomeKIA          Outcome = "KIA"
	OutcomeRTD          Outcome = "RTD"
	OutcomeStillInChain Outcome = "StillInChain"
)

// IsTerminal reports whether o ends the patient's walk through the chain.
func (o Outcome) IsTerminal() bool { return o == OutcomeKIA || o == OutcomeRTD }

// TimingCell is an inclusive range of hours.
type TimingCell struct {
	MinHours float64 `json:"min_hours"`
	MaxHours float64 `json:"max_hours"`
}

// Degenerate reports whether the cell collapses to a single value.
func (c TimingCell) Degenerate() bool { return c.MinHours == c.MaxHours }
