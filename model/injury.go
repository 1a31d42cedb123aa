package model

// InjuryType is the broad casualty category used by the injury mix.
type InjuryType string

const (
	InjuryDisease   InjuryType = "Disease"
	InjuryNonBattle InjuryType = "Non-Battle Injury"
	InjuryBattle    InjuryType = "Battle Injury"
)

// InjuryTypes lists the recognised categories in canonical order.
var InjuryTypes = []InjuryType{InjuryDisease, InjuryNonBattle, InjuryBattle}

// Valid reports whether i is a recognised category.
func (i InjuryType) Valid() bool {
	for _, known := range InjuryTypes {
		if known == i {
			return true
		}
	}
	return false
}
