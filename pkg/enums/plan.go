package enums

import "fmt"

// PlanID identifies a subscription tier in the plan catalog.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanTrial      PlanID = "trial"
	PlanPro        PlanID = "pro"
	PlanTeam       PlanID = "team"
	PlanEnterprise PlanID = "enterprise"
)

var validPlanIDs = []PlanID{
	PlanFree,
	PlanTrial,
	PlanPro,
	PlanTeam,
	PlanEnterprise,
}

// String implements fmt.Stringer.
func (p PlanID) String() string {
	return string(p)
}

// IsValid reports whether the plan id belongs to the closed plan set.
func (p PlanID) IsValid() bool {
	for _, candidate := range validPlanIDs {
		if candidate == p {
			return true
		}
	}
	return false
}

// OrFree returns the plan id when recognized, PlanFree otherwise. Malformed
// or legacy tenant records degrade to the most restrictive tier instead of
// failing.
func (p PlanID) OrFree() PlanID {
	if p.IsValid() {
		return p
	}
	return PlanFree
}

// ParsePlanID converts a raw string into a PlanID.
func ParsePlanID(value string) (PlanID, error) {
	for _, candidate := range validPlanIDs {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan id %q", value)
}

// PlanIDs returns the closed set of plan ids.
func PlanIDs() []PlanID {
	out := make([]PlanID, len(validPlanIDs))
	copy(out, validPlanIDs)
	return out
}
