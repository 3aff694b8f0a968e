package market

import (
	"fmt"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Consumer holds a consumer's demand and its private mirror of every
// producer it has observed.
type Consumer struct {
	id      blackboard.AgentID
	name    string
	budget  float64
	usage   float64
	mirrors map[blackboard.AgentID]*ProducerMirror
	seed    map[blackboard.AgentID]float64
}

// NewConsumer validates and builds a consumer with no mirrors.
func NewConsumer(id blackboard.AgentID, name string, budget, usage float64) (*Consumer, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("%w: consumer id: %v", ErrInvalidParameter, err)
	}
	if id.Kind != blackboard.KindConsumer {
		return nil, fmt.Errorf("%w: consumer %s has kind %s", ErrInvalidParameter, id, id.Kind)
	}
	if !finiteAtLeast(budget, 0) {
		return nil, fmt.Errorf("%w: consumer %s budget must be >= 0, got %v", ErrInvalidParameter, id, budget)
	}
	if !finiteAtLeast(usage, 0) {
		return nil, fmt.Errorf("%w: consumer %s usage must be >= 0, got %v", ErrInvalidParameter, id, usage)
	}
	if name == "" {
		name = fmt.Sprintf("consumer-%d", id.LocalID)
	}
	return &Consumer{
		id:      id,
		name:    name,
		budget:  budget,
		usage:   usage,
		mirrors: make(map[blackboard.AgentID]*ProducerMirror),
		seed:    make(map[blackboard.AgentID]float64),
	}, nil
}

func (c *Consumer) sealed() {}

// ID returns the consumer's agent id.
func (c *Consumer) ID() blackboard.AgentID { return c.id }

// Name returns the consumer's display name.
func (c *Consumer) Name() string { return c.name }

// Budget returns the static spending limit per tick.
func (c *Consumer) Budget() float64 { return c.budget }

// Usage returns the energy demanded per tick.
func (c *Consumer) Usage() float64 { return c.usage }

// SeedTrust sets the trust a mirror of producer starts with when it is
// first observed. Mirrors that already exist are not affected.
func (c *Consumer) SeedTrust(producer blackboard.AgentID, trust float64) {
	c.seed[producer] = clampUnit(trust)
}

// Observe brings the consumer's mirrors up to date with the cache. Unseen
// producers get a new mirror; existing mirrors only take the public fields.
func (c *Consumer) Observe(cache *Cache) {
	for _, entry := range cache.Mirrors() {
		m, ok := c.mirrors[entry.ID]
		if !ok {
			trust := entry.TrustLevel
			if seeded, ok := c.seed[entry.ID]; ok {
				trust = seeded
			}
			m = &ProducerMirror{
				ID:         entry.ID,
				TrustLevel: trust,
				Alpha:      entry.Alpha,
				Beta:       entry.Beta,
			}
			c.mirrors[entry.ID] = m
		}
		m.Name = entry.Name
		m.UnitCost = entry.UnitCost
		m.Capacity = entry.Capacity
	}
}

// Mirror returns the consumer's mirror of producer.
func (c *Consumer) Mirror(producer blackboard.AgentID) (*ProducerMirror, bool) {
	m, ok := c.mirrors[producer]
	return m, ok
}

// Mirrors returns the consumer's mirrors in ascending AgentID order.
func (c *Consumer) Mirrors() []*ProducerMirror {
	out := make([]*ProducerMirror, 0, len(c.mirrors))
	for _, m := range c.mirrors {
		out = append(out, m)
	}
	sortMirrors(out)
	return out
}
