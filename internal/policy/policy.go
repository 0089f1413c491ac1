// Package policy maps resource sensitivity tiers to the authentication
// factors required before access is granted. Step-up is decided here, at
// resource-access time, not by the risk score.
package policy

import "hybridaccess.org/internal/factor"

// Sensitivity tiers, lowest to highest.
const (
	TierPublic       = 1
	TierConfidential = 2
	TierSecret       = 3
	TierTopSecret    = 4
)

// RequiredFactors returns the factor set a resource of the given tier demands
// beyond the password. Unmapped tiers fall back to the safe default of no
// step-up; callers should check Known and log the anomaly.
func RequiredFactors(tier int) factor.Set {
	switch tier {
	case TierTopSecret:
		return factor.NewSet(factor.Biometric, factor.RotatingCode)
	case TierSecret:
		return factor.NewSet(factor.RotatingCode)
	case TierConfidential:
		return factor.NewSet(factor.Biometric)
	default:
		return factor.NewSet()
	}
}

// Known reports whether tier is one of the mapped sensitivity tiers.
func Known(tier int) bool {
	return tier >= TierPublic && tier <= TierTopSecret
}

// TierName returns the display name for a tier.
func TierName(tier int) string {
	switch tier {
	case TierPublic:
		return "PUBLIC"
	case TierConfidential:
		return "CONFIDENTIAL"
	case TierSecret:
		return "SECRET"
	case TierTopSecret:
		return "TOP_SECRET"
	default:
		return "UNKNOWN"
	}
}
