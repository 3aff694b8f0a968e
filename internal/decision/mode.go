package decision

import (
	"fmt"

	"github.com/arnaldoapp/gridtrust/internal/market"
)

// Mode selects whose demand a consumer decides on.
type Mode string

const (
	// ModeIndividual uses the consumer's own usage and budget.
	ModeIndividual Mode = "individual"

	// ModeCollective pools usage and budget across every consumer of the rank.
	ModeCollective Mode = "collective"
)

// Validate checks if the Mode is a valid enum value.
func (m Mode) Validate() error {
	switch m {
	case ModeIndividual, ModeCollective:
		return nil
	default:
		return fmt.Errorf("unknown decision mode: %q (must be %q or %q)", m, ModeIndividual, ModeCollective)
	}
}

// Pool sums the usage and budget of every consumer.
func Pool(consumers []*market.Consumer) Demand {
	var d Demand
	for _, c := range consumers {
		d.Usage += c.Usage()
		d.Budget += c.Budget()
	}
	return d
}

// DemandFor returns the demand c decides on under mode. pooled is the
// result of Pool over the rank's consumers and is only read in collective
// mode.
func DemandFor(mode Mode, c *market.Consumer, pooled Demand) Demand {
	if mode == ModeCollective {
		return pooled
	}
	return Demand{Usage: c.Usage(), Budget: c.Budget()}
}
