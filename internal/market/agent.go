// Package market holds the agents of the energy market: authoritative
// producers, consumers with their private producer mirrors, and the
// process-wide mirror cache that synchronization refreshes every tick.
package market

import (
	"errors"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// ErrInvalidParameter is returned when an agent is constructed from values
// outside their valid range. It is fatal and always raised before tick 1.
var ErrInvalidParameter = errors.New("invalid parameter")

// Agent is the capability shared by every market participant. The set of
// implementations is closed: *Producer and *Consumer.
type Agent interface {
	ID() blackboard.AgentID
	Name() string

	sealed()
}

var (
	_ Agent = (*Producer)(nil)
	_ Agent = (*Consumer)(nil)
)
