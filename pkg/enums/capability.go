package enums

import "fmt"

// CapabilityKey names an on/off or tiered plan capability.
type CapabilityKey string

const (
	CapabilityAdvancedRules    CapabilityKey = "advanced_rules"
	CapabilityAuditLog         CapabilityKey = "audit_log"
	CapabilityPrioritySupport  CapabilityKey = "priority_support"
	CapabilitySSO              CapabilityKey = "sso"
	CapabilityDetectionQuality CapabilityKey = "detection_quality"
)

var validCapabilityKeys = []CapabilityKey{
	CapabilityAdvancedRules,
	CapabilityAuditLog,
	CapabilityPrioritySupport,
	CapabilitySSO,
	CapabilityDetectionQuality,
}

// String implements fmt.Stringer.
func (c CapabilityKey) String() string {
	return string(c)
}

// IsValid reports whether the capability key is recognized.
func (c CapabilityKey) IsValid() bool {
	for _, candidate := range validCapabilityKeys {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCapabilityKey converts a raw string into a CapabilityKey.
func ParseCapabilityKey(value string) (CapabilityKey, error) {
	for _, candidate := range validCapabilityKeys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid capability key %q", value)
}

// CapabilityKeys returns every declared capability key.
func CapabilityKeys() []CapabilityKey {
	out := make([]CapabilityKey, len(validCapabilityKeys))
	copy(out, validCapabilityKeys)
	return out
}
