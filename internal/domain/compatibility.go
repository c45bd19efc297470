package domain

// compatibleFrom maps a recipient blood group to the donor groups it can
// receive from. The table is fixed ABO/Rh medicine: O- is the universal
// donor, AB+ the universal recipient.
var compatibleFrom = map[BloodGroup][]BloodGroup{
	GroupAPos:  {GroupAPos, GroupANeg, GroupOPos, GroupONeg},
	GroupANeg:  {GroupANeg, GroupONeg},
	GroupBPos:  {GroupBPos, GroupBNeg, GroupOPos, GroupONeg},
	GroupBNeg:  {GroupBNeg, GroupONeg},
	GroupABPos: {GroupAPos, GroupANeg, GroupBPos, GroupBNeg, GroupABPos, GroupABNeg, GroupOPos, GroupONeg},
	GroupABNeg: {GroupANeg, GroupBNeg, GroupABNeg, GroupONeg},
	GroupOPos:  {GroupOPos, GroupONeg},
	GroupONeg:  {GroupONeg},
}

// CompatibleDonors returns the donor groups a recipient of the given group
// can receive from.
func CompatibleDonors(recipient BloodGroup) ([]BloodGroup, error) {
	donors, ok := compatibleFrom[recipient]
	if !ok {
		return nil, ErrInvalidGroup
	}

	out := make([]BloodGroup, len(donors))
	copy(out, donors)
	return out, nil
}

// CompatibleRecipients returns the recipient groups a donor of the given
// group can donate to.
func CompatibleRecipients(donor BloodGroup) ([]BloodGroup, error) {
	if !donor.IsValid() {
		return nil, ErrInvalidGroup
	}

	var out []BloodGroup
	for _, recipient := range AllBloodGroups {
		for _, d := range compatibleFrom[recipient] {
			if d == donor {
				out = append(out, recipient)
				break
			}
		}
	}
	return out, nil
}

// CanDonate reports whether a donor group can give to a recipient group.
// Unknown groups are compatible with nothing; group validity is enforced
// where groups enter the system.
func CanDonate(donor, recipient BloodGroup) bool {
	for _, d := range compatibleFrom[recipient] {
		if d == donor {
			return true
		}
	}
	return false
}

// OrganCompatible reports blood-group level organ compatibility. Tissue
// typing is not modeled; HLA match level is an opaque scoring input.
func OrganCompatible(donor, recipient BloodGroup) bool {
	return CanDonate(donor, recipient)
}

// IsExactMatch reports whether donor and recipient share the same ABO/Rh
// group. Exact matches score higher than universal-compatible ones.
func IsExactMatch(donor, recipient BloodGroup) bool {
	return donor == recipient
}
