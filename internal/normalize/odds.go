package normalize

import "math"

// ToDecimalOdds converts a raw odds value into decimal (European) odds.
//
// Values at or below 1 are Hong Kong odds (net return per unit staked) and
// convert as raw+1. Anything above 1 is already decimal and passes through.
// Non-finite or non-positive input is invalid; the caller must discard the pick.
func ToDecimalOdds(raw float64) (float64, bool) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
		return 0, false
	}
	if raw <= 1 {
		return raw + 1, true
	}
	return raw, true
}
