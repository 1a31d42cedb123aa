package model

// FacilityStats are per-facility totals derived from a set of patients.
// Entered always equals KIA + RTD + Forwarded.
type FacilityStats struct {
	Facility       FacilityStage `json:"facility"`
	Entered        int           `json:"entered"`
	KIA            int           `json:"kia"`
	RTD            int           `json:"rtd"`
	Forwarded      int           `json:"forwarded"`
	MeanDwellHours float64       `json:"mean_dwell_hours"`
}

// FlowEdge is a directed edge of the patient flow graph.
type FlowEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Count  int    `json:"count"`
}

// FlowGraph is a Sankey-ready view of patient movement between facilities
// and terminal outcomes.
type FlowGraph struct {
	Nodes []string   `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// Summary aggregates high level counts for dashboards.
type Summary struct {
	TotalPatients   int                    `json:"total_patients"`
	KIA             int                    `json:"kia"`
	RTD             int                    `json:"rtd"`
	KIARate         float64                `json:"kia_rate"`
	RTDRate         float64                `json:"rtd_rate"`
	ByFront         map[string]int         `json:"by_front"`
	ByNationality   map[string]int         `json:"by_nationality"`
	ByInjuryType    map[InjuryType]int     `json:"by_injury_type"`
	ByTriage        map[TriageCategory]int `json:"by_triage"`
	ByDay           []int                  `json:"by_day"`
	MeanChainLength float64                `json:"mean_chain_length"`
}

// Dataset is the output of one generation run.
type Dataset struct {
	Seed           uint64          `json:"seed"`
	RequestedTotal int             `json:"requested_total"`
	Patients       []*Patient      `json:"patients"`
	FacilityStats  []FacilityStats `json:"facility_stats"`
	FlowGraph      FlowGraph       `json:"flow_graph"`
	Summary        Summary         `json:"summary"`

	// Partial is set when the run stopped before every seed was simulated.
	Partial   bool `json:"partial"`
	Cancelled bool `json:"cancelled"`
}

// StatsFor returns the stats row of a facility.
func (d *Dataset) StatsFor(stage FacilityStage) (FacilityStats, bool) {
	if d == nil {
		return FacilityStats{}, false
	}
	for _, fs := range d.FacilityStats {
		if fs.Facility == stage {
			return fs, true
		}
	}
	return FacilityStats{}, false
}
