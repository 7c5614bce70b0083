package enums

import "fmt"

// FeatureKey names a metered feature whose consumption is capped per plan.
type FeatureKey string

const (
	FeaturePolicies   FeatureKey = "policies"
	FeatureExecutions FeatureKey = "executions"
	FeatureAPICalls   FeatureKey = "api_calls"
	FeatureExports    FeatureKey = "exports"
)

var validFeatureKeys = []FeatureKey{
	FeaturePolicies,
	FeatureExecutions,
	FeatureAPICalls,
	FeatureExports,
}

// String implements fmt.Stringer.
func (f FeatureKey) String() string {
	return string(f)
}

// IsValid reports whether the feature key is recognized.
func (f FeatureKey) IsValid() bool {
	for _, candidate := range validFeatureKeys {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFeatureKey converts a raw string into a FeatureKey.
func ParseFeatureKey(value string) (FeatureKey, error) {
	for _, candidate := range validFeatureKeys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid feature key %q", value)
}

// FeatureKeys returns every metered feature key.
func FeatureKeys() []FeatureKey {
	out := make([]FeatureKey, len(validFeatureKeys))
	copy(out, validFeatureKeys)
	return out
}
