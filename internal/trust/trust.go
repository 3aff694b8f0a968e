// Package trust implements the asymmetric trust update applied to a
// consumer's relationship with a producer after each transaction.
package trust

import "github.com/arnaldoapp/gridtrust/pkg/blackboard"

// Grow raises trust by the factor (1+alpha), capped at 1.
func Grow(trust, alpha float64) float64 {
	return clamp(trust * (1 + alpha))
}

// Decay lowers trust by the factor (1-beta), floored at 0.
func Decay(trust, beta float64) float64 {
	return clamp(trust * (1 - beta))
}

// Update applies one transition. Trust only grows on a success by a
// consumer that was not selfish; every other case decays.
func Update(trust, alpha, beta float64, status blackboard.DeliveryStatus, selfish bool) float64 {
	if status == blackboard.StatusSuccess && !selfish {
		return Grow(trust, alpha)
	}
	return Decay(trust, beta)
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
