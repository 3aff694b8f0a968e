package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// ProducerMirror is a consumer-local view of one producer. Name, UnitCost
// and Capacity are refreshed from snapshots; TrustLevel belongs to the
// holder and is only changed by trust updates.
type ProducerMirror struct {
	ID         blackboard.AgentID
	Name       string
	UnitCost   float64
	Capacity   float64
	TrustLevel float64
	Alpha      float64
	Beta       float64
}

// refresh copies the public fields of a snapshot.
func (m *ProducerMirror) refresh(s blackboard.ProducerSnapshot) {
	m.Name = s.Name
	m.UnitCost = s.UnitCost
	m.Capacity = s.Capacity
}

// TrustTerms are the private terms a new mirror starts with.
type TrustTerms struct {
	InitialTrust float64
	Alpha        float64
	Beta         float64
}

// DefaultTrustTerms returns the market defaults.
func DefaultTrustTerms() TrustTerms {
	return TrustTerms{InitialTrust: DefaultInitialTrust, Alpha: DefaultAlpha, Beta: DefaultBeta}
}

// TermsFunc resolves the trust terms of a producer. Snapshots do not carry
// alpha and beta, so every rank reads them from the shared params.
type TermsFunc func(id blackboard.AgentID) TrustTerms

// Cache is the process-wide reconciliation cache, one entry per producer
// AgentID ever observed. Entries are never dropped during a run.
type Cache struct {
	mu       sync.RWMutex
	terms    TermsFunc
	entries  map[blackboard.AgentID]*ProducerMirror
	restored map[blackboard.AgentID]uint64
}

// NewCache creates an empty cache. A nil terms func yields the defaults.
func NewCache(terms TermsFunc) *Cache {
	if terms == nil {
		terms = func(blackboard.AgentID) TrustTerms { return DefaultTrustTerms() }
	}
	return &Cache{
		terms:    terms,
		entries:  make(map[blackboard.AgentID]*ProducerMirror),
		restored: make(map[blackboard.AgentID]uint64),
	}
}

// Restore merges a snapshot into the cache and returns the entry for its id.
// The same id always yields the same entry. Only the public fields are
// overwritten. Restoring the same snapshot twice in a tick is a no-op.
func (c *Cache) Restore(s blackboard.ProducerSnapshot, tick uint64) (*ProducerMirror, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("restore %s: %w", s.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.entries[s.ID]
	if !ok {
		t := c.terms(s.ID)
		m = &ProducerMirror{
			ID:         s.ID,
			TrustLevel: clampUnit(t.InitialTrust),
			Alpha:      t.Alpha,
			Beta:       t.Beta,
		}
		c.entries[s.ID] = m
	}
	m.refresh(s)
	c.restored[s.ID] = tick
	return m, nil
}

// Get returns the cached entry for id.
func (c *Cache) Get(id blackboard.AgentID) (*ProducerMirror, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[id]
	return m, ok
}

// LastRestored returns the tick at which id was last refreshed. Entries of
// producers that stopped appearing keep their last tick.
func (c *Cache) LastRestored(id blackboard.AgentID) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tick, ok := c.restored[id]
	return tick, ok
}

// Mirrors returns every entry in ascending AgentID order.
func (c *Cache) Mirrors() []*ProducerMirror {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*ProducerMirror, 0, len(c.entries))
	for _, m := range c.entries {
		out = append(out, m)
	}
	sortMirrors(out)
	return out
}

// Len returns the number of cached producers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry. The engine calls it when it terminates.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[blackboard.AgentID]*ProducerMirror)
	c.restored = make(map[blackboard.AgentID]uint64)
}

func sortMirrors(ms []*ProducerMirror) {
	sort.Slice(ms, func(i, j int) bool {
		return ms[i].ID.Less(ms[j].ID)
	})
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
