package enums

import "fmt"

// PlanName identifies the subscription tiers sold on the platform.
type PlanName string

const (
	PlanNameBasic   PlanName = "BASIC"
	PlanNamePro     PlanName = "PRO"
	PlanNamePremium PlanName = "PREMIUM"
)

var validPlanNames = []PlanName{
	PlanNameBasic,
	PlanNamePro,
	PlanNamePremium,
}

// String implements fmt.Stringer.
func (p PlanName) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanName.
func (p PlanName) IsValid() bool {
	for _, candidate := range validPlanNames {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanName converts raw input into a PlanName.
func ParsePlanName(value string) (PlanName, error) {
	for _, candidate := range validPlanNames {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan name %q", value)
}
