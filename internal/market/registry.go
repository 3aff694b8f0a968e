package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Registry owns the authoritative producers of one rank and serves delivery
// requests addressed to them. It satisfies blackboard.Fulfiller.
type Registry struct {
	mu        sync.Mutex
	producers map[blackboard.AgentID]*Producer
}

var _ blackboard.Fulfiller = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		producers: make(map[blackboard.AgentID]*Producer),
	}
}

// Add registers a producer. Ids must be unique.
func (r *Registry) Add(p *Producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.producers[p.ID()]; exists {
		return fmt.Errorf("%w: duplicate producer id %s", ErrInvalidParameter, p.ID())
	}
	r.producers[p.ID()] = p
	return nil
}

// Owns reports whether the producer lives in this registry.
func (r *Registry) Owns(id blackboard.AgentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[id]
	return ok
}

// Producers returns the registered producers in ascending AgentID order.
func (r *Registry) Producers() []*Producer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Producer, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().Less(out[j].ID()) })
	return out
}

// Snapshots returns the public state of every registered producer.
func (r *Registry) Snapshots() []blackboard.ProducerSnapshot {
	producers := r.Producers()
	out := make([]blackboard.ProducerSnapshot, len(producers))
	for i, p := range producers {
		out[i] = p.Save()
	}
	return out
}

// Fulfil runs the production attempt for req. A request for a producer this
// registry does not hold is answered Failed and Unanswered.
func (r *Registry) Fulfil(tick uint64, req *blackboard.DeliveryRequest) *blackboard.DeliveryOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := &blackboard.DeliveryOutcome{
		Tick:       tick,
		ProducerID: req.ProducerID,
		Status:     blackboard.StatusFailed,
	}

	p, ok := r.producers[req.ProducerID]
	if !ok {
		outcome.Unanswered = true
		return outcome
	}

	outcome.CapacityBefore = p.Capacity()
	outcome.Status = p.AttemptDelivery(req.Amount)
	outcome.CapacityAfter = p.Capacity()
	return outcome
}
