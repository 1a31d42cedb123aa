package model

import (
	"time"

	"github.com/google/uuid"
)

// CasualtySeed is one scheduled casualty before its flow is simulated.
type CasualtySeed struct {
	Sequence        int        `json:"sequence"`
	FrontID         string     `json:"front_id"`
	NationalityCode string     `json:"nationality_code"`
	InjuryType      InjuryType `json:"injury_type"`
	DayIndex        int        `json:"day_index"`
}

// FacilityVisit records one stage of a patient's treatment. Visits are
// immutable once appended to a history.
type FacilityVisit struct {
	Facility              FacilityStage  `json:"facility"`
	EntryTime             time.Time      `json:"entry_time"`
	ExitTime              time.Time      `json:"exit_time"`
	TriageCategoryAtVisit TriageCategory `json:"triage_category"`
	OutcomeAtStage        Outcome        `json:"outcome"`
}

// DwellHours returns the time spent at the facility in hours.
func (v FacilityVisit) DwellHours() float64 { return v.ExitTime.Sub(v.EntryTime).Hours() }

// Patient is one synthetic casualty and its trajectory through the chain.
type Patient struct {
	ID               uuid.UUID       `json:"id"`
	Sequence         int             `json:"sequence"`
	FrontID          string          `json:"front_id"`
	NationalityCode  string          `json:"nationality_code"`
	InjuryType       InjuryType      `json:"injury_type"`
	TriageCategory   TriageCategory  `json:"triage_category"`
	DayIndex         int             `json:"day_index"`
	ArrivalTime      time.Time       `json:"arrival_time"`
	TreatmentHistory []FacilityVisit `json:"treatment_history"`
	FinalOutcome     Outcome         `json:"final_outcome"`
	FinalFacility    FacilityStage   `json:"final_facility,omitempty"`
	OutcomeTime      time.Time       `json:"outcome_time"`
}

// LastVisit returns the most recent visit, if any.
func (p *Patient) LastVisit() (FacilityVisit, bool) {
	if p == nil || len(p.TreatmentHistory) == 0 {
		return FacilityVisit{}, false
	}
	return p.TreatmentHistory[len(p.TreatmentHistory)-1], true
}
