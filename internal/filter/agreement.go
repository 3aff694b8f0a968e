package filter

import (
	"fmt"
	"path/filepath"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Criteria defines filtering criteria for agreement records.
// All filters are ANDed together - a record must match ALL criteria to pass.
type Criteria struct {
	FromTick     uint64                    // First tick included, 0 = no filter
	ToTick       uint64                    // Last tick included, 0 = no filter
	ProducerGlob string                    // Glob pattern for producer name, empty = no filter
	ConsumerID   string                    // Exact match for consumer id, empty = no filter
	Status       blackboard.DeliveryStatus // Exact match, empty = no filter
	SelfishOnly  bool
}

// Validate rejects malformed globs, unknown statuses and inverted tick ranges.
func (c *Criteria) Validate() error {
	if c.ProducerGlob != "" {
		if _, err := filepath.Match(c.ProducerGlob, ""); err != nil {
			return fmt.Errorf("invalid producer pattern %q: %w", c.ProducerGlob, err)
		}
	}
	switch c.Status {
	case "", blackboard.StatusSuccess, blackboard.StatusFailed:
	default:
		return fmt.Errorf("invalid status %q (use %s or %s)", c.Status, blackboard.StatusSuccess, blackboard.StatusFailed)
	}
	if c.FromTick > 0 && c.ToTick > 0 && c.FromTick > c.ToTick {
		return fmt.Errorf("tick range %d..%d is empty", c.FromTick, c.ToTick)
	}
	return nil
}

// Matches returns true if the record matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(rec *blackboard.AgreementRecord) bool {
	if c.FromTick > 0 && rec.Tick < c.FromTick {
		return false
	}
	if c.ToTick > 0 && rec.Tick > c.ToTick {
		return false
	}

	if c.ProducerGlob != "" {
		matched, err := filepath.Match(c.ProducerGlob, rec.ProducerName)
		if err != nil || !matched {
			return false
		}
	}

	if c.ConsumerID != "" && rec.ConsumerID != c.ConsumerID {
		return false
	}
	if c.Status != "" && rec.Status != c.Status {
		return false
	}
	if c.SelfishOnly && !rec.Selfish {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.FromTick > 0 ||
		c.ToTick > 0 ||
		c.ProducerGlob != "" ||
		c.ConsumerID != "" ||
		c.Status != "" ||
		c.SelfishOnly
}

// Apply returns the records that match, preserving order.
func (c *Criteria) Apply(records []blackboard.AgreementRecord) []blackboard.AgreementRecord {
	if !c.HasFilters() {
		return records
	}
	var out []blackboard.AgreementRecord
	for i := range records {
		if c.Matches(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}
