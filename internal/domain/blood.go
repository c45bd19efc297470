package domain

// BloodGroup represents an ABO/Rh blood group
type BloodGroup string

const (
	GroupAPos  BloodGroup = "A+"
	GroupANeg  BloodGroup = "A-"
	GroupBPos  BloodGroup = "B+"
	GroupBNeg  BloodGroup = "B-"
	GroupABPos BloodGroup = "AB+"
	GroupABNeg BloodGroup = "AB-"
	GroupOPos  BloodGroup = "O+"
	GroupONeg  BloodGroup = "O-"
)

// AllBloodGroups lists the eight ABO/Rh groups
var AllBloodGroups = []BloodGroup{
	GroupAPos, GroupANeg,
	GroupBPos, GroupBNeg,
	GroupABPos, GroupABNeg,
	GroupOPos, GroupONeg,
}

// IsValid checks if the blood group is a recognized ABO/Rh value
func (g BloodGroup) IsValid() bool {
	switch g {
	case GroupAPos, GroupANeg, GroupBPos, GroupBNeg,
		GroupABPos, GroupABNeg, GroupOPos, GroupONeg:
		return true
	default:
		return false
	}
}

// Component represents a separable blood product
type Component string

const (
	ComponentWholeBlood        Component = "whole_blood"
	ComponentRedCells          Component = "red_cells"
	ComponentPlasma            Component = "plasma"
	ComponentPlatelets         Component = "platelets"
	ComponentCryoprecipitate   Component = "cryoprecipitate"
	ComponentFreshFrozenPlasma Component = "fresh_frozen_plasma"
)

// IsValid checks if the component is a recognized blood product
func (c Component) IsValid() bool {
	switch c {
	case ComponentWholeBlood, ComponentRedCells, ComponentPlasma,
		ComponentPlatelets, ComponentCryoprecipitate, ComponentFreshFrozenPlasma:
		return true
	default:
		return false
	}
}

// OrganType represents a transplantable organ
type OrganType string

const (
	OrganKidney    OrganType = "kidney"
	OrganLiver     OrganType = "liver"
	OrganHeart     OrganType = "heart"
	OrganLung      OrganType = "lung"
	OrganPancreas  OrganType = "pancreas"
	OrganIntestine OrganType = "intestine"
	OrganCornea    OrganType = "cornea"
)

// IsValid checks if the organ type is recognized
func (o OrganType) IsValid() bool {
	switch o {
	case OrganKidney, OrganLiver, OrganHeart, OrganLung,
		OrganPancreas, OrganIntestine, OrganCornea:
		return true
	default:
		return false
	}
}

// Urgency represents a request urgency tier
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyModerate Urgency = "moderate"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// IsValidForBlood checks the urgency against the blood request tiers
func (u Urgency) IsValidForBlood() bool {
	switch u {
	case UrgencyRoutine, UrgencyModerate, UrgencyUrgent, UrgencyCritical:
		return true
	default:
		return false
	}
}

// IsValidForOrgan checks the urgency against the organ request tiers
func (u Urgency) IsValidForOrgan() bool {
	switch u {
	case UrgencyRoutine, UrgencyMedium, UrgencyHigh, UrgencyUrgent, UrgencyCritical:
		return true
	default:
		return false
	}
}

// Rank returns a comparable ordering for urgency tiers, highest first
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 5
	case UrgencyUrgent:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyMedium, UrgencyModerate:
		return 2
	case UrgencyRoutine:
		return 1
	default:
		return 0
	}
}
