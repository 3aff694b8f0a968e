// Package decision implements the consumer-side choice of a producer: filter
// mirrors by trust, affordability and capacity, score the survivors, and
// pick the cheapest trust-discounted offer.
package decision

import (
	"fmt"

	"github.com/arnaldoapp/gridtrust/internal/market"
)

const (
	// DefaultTrustCutoff is the minimum trust a producer needs to be considered.
	DefaultTrustCutoff = 0.5

	// DefaultEpsilon keeps a fully trusted producer's score above zero.
	DefaultEpsilon = 0.001
)

// Params tune the decision rule.
type Params struct {
	TrustCutoff float64
	Epsilon     float64
}

// DefaultParams returns the standard cutoff and epsilon.
func DefaultParams() Params {
	return Params{TrustCutoff: DefaultTrustCutoff, Epsilon: DefaultEpsilon}
}

// Validate rejects a cutoff outside [0,1] or a negative epsilon.
func (p Params) Validate() error {
	if p.TrustCutoff < 0 || p.TrustCutoff > 1 {
		return fmt.Errorf("trust cutoff must be in [0,1], got %v", p.TrustCutoff)
	}
	if p.Epsilon < 0 {
		return fmt.Errorf("epsilon must be >= 0, got %v", p.Epsilon)
	}
	return nil
}

// Demand is the amount of energy sought and the money available for it.
type Demand struct {
	Usage  float64
	Budget float64
}

// Choice is the outcome of a decision. The zero Choice means no producer
// was available.
type Choice struct {
	Mirror *market.ProducerMirror
	Score  float64
}

// Available reports whether a producer was chosen.
func (c Choice) Available() bool {
	return c.Mirror != nil
}

// Score returns the trust-discounted price of a producer. Lower is better.
func Score(m *market.ProducerMirror, epsilon float64) float64 {
	return m.UnitCost * (1 + epsilon - m.TrustLevel)
}

// Decide picks the minimum-score producer among mirrors that pass the trust
// cutoff and can serve demand within budget and mirrored capacity.
//
// Mirrors are expected in ascending AgentID order; on equal scores the
// first one wins, so ties go to the lowest AgentID.
func Decide(mirrors []*market.ProducerMirror, demand Demand, p Params) Choice {
	var best Choice

	for _, m := range mirrors {
		if m.TrustLevel < p.TrustCutoff {
			continue
		}
		if demand.Usage*m.UnitCost > demand.Budget || demand.Usage > m.Capacity {
			continue
		}

		score := Score(m, p.Epsilon)
		if !best.Available() || score < best.Score {
			best = Choice{Mirror: m, Score: score}
		}
	}

	return best
}
