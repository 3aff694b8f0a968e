package resolver

// ScoreGap is the personal score minus the collective score, both computed
// from the same consumer's mirrors. Negative means the consumer's own pick
// was cheaper.
func ScoreGap(personal, collective float64) float64 {
	return personal - collective
}

// IsSelfish reports whether the gap falls strictly below threshold.
func IsSelfish(personal, collective, threshold float64) bool {
	return ScoreGap(personal, collective) < threshold
}
