package blackboard

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedSnapshot is returned when a producer snapshot is missing its
// identity or carries values that cannot describe a producer.
var ErrMalformedSnapshot = errors.New("malformed producer snapshot")

// Kind tags the variant of an agent. The set is closed.
type Kind int

const (
	// KindConsumer tags consumer agents
	KindConsumer Kind = 0

	// KindProducer tags producer agents
	KindProducer Kind = 1
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConsumer:
		return "consumer"
	case KindProducer:
		return "producer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Validate checks if the Kind is a known variant.
func (k Kind) Validate() error {
	switch k {
	case KindConsumer, KindProducer:
		return nil
	default:
		return fmt.Errorf("unknown agent kind: %d", int(k))
	}
}

// AgentID identifies an agent for its whole lifetime across all ranks.
// It is the key of every mirror cache.
type AgentID struct {
	LocalID int  `json:"id"`   // Sequence number, unique within (kind, rank)
	Kind    Kind `json:"kind"` // Consumer or producer
	Rank    int  `json:"rank"` // Owning process
}

// String renders the canonical "<id>:<kind>:<rank>" form used as Redis hash
// field and SQL key.
func (id AgentID) String() string {
	return fmt.Sprintf("%d:%d:%d", id.LocalID, int(id.Kind), id.Rank)
}

// Less orders ids by rank, then kind, then local id. This is the enumeration
// order used for every deterministic tie-break.
func (id AgentID) Less(other AgentID) bool {
	if id.Rank != other.Rank {
		return id.Rank < other.Rank
	}
	if id.Kind != other.Kind {
		return id.Kind < other.Kind
	}
	return id.LocalID < other.LocalID
}

// Compare returns -1, 0 or +1 following the order of Less.
func (id AgentID) Compare(other AgentID) int {
	switch {
	case id == other:
		return 0
	case id.Less(other):
		return -1
	default:
		return 1
	}
}

// Validate checks the id fields.
func (id AgentID) Validate() error {
	if id.LocalID < 0 {
		return fmt.Errorf("negative local id: %d", id.LocalID)
	}
	if id.Rank < 0 {
		return fmt.Errorf("negative rank: %d", id.Rank)
	}
	return id.Kind.Validate()
}

// ParseAgentID parses the canonical "<id>:<kind>:<rank>" form.
func ParseAgentID(s string) (AgentID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return AgentID{}, fmt.Errorf("invalid agent id %q: expected 3 parts, got %d", s, len(parts))
	}

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return AgentID{}, fmt.Errorf("invalid agent id %q: %w", s, err)
		}
		nums[i] = n
	}

	id := AgentID{LocalID: nums[0], Kind: Kind(nums[1]), Rank: nums[2]}
	if err := id.Validate(); err != nil {
		return AgentID{}, fmt.Errorf("invalid agent id %q: %w", s, err)
	}
	return id, nil
}

// ProducerSnapshot is the public state of a producer shipped to other ranks.
type ProducerSnapshot struct {
	ID       AgentID `json:"id"`
	Name     string  `json:"name"`
	UnitCost float64 `json:"unit_cost"`
	Capacity float64 `json:"capacity"`
}

// Validate checks that the snapshot can describe a producer.
// All failures wrap ErrMalformedSnapshot.
func (s *ProducerSnapshot) Validate() error {
	if err := s.ID.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if s.ID.Kind != KindProducer {
		return fmt.Errorf("%w: agent %s is a %s", ErrMalformedSnapshot, s.ID, s.ID.Kind)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: agent %s has no name", ErrMalformedSnapshot, s.ID)
	}
	if !isNonNegative(s.UnitCost) {
		return fmt.Errorf("%w: agent %s has invalid unit cost %v", ErrMalformedSnapshot, s.ID, s.UnitCost)
	}
	if !isNonNegative(s.Capacity) {
		return fmt.Errorf("%w: agent %s has invalid capacity %v", ErrMalformedSnapshot, s.ID, s.Capacity)
	}
	return nil
}

// DeliveryStatus is the result of a production attempt.
type DeliveryStatus string

const (
	// StatusSuccess means the producer delivered the full amount
	StatusSuccess DeliveryStatus = "Success"

	// StatusFailed means the producer lacked capacity or the failure draw triggered
	StatusFailed DeliveryStatus = "Failed"
)

// Validate checks if the DeliveryStatus is a valid enum value.
func (ds DeliveryStatus) Validate() error {
	switch ds {
	case StatusSuccess, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown delivery status: %q", ds)
	}
}

// DeliveryRequest is the tick's single production attempt: the plurality
// winner and the usage pooled across every bound consumer of the world.
type DeliveryRequest struct {
	Tick       uint64  `json:"tick"`
	ProducerID AgentID `json:"producer_id"`
	Amount     float64 `json:"amount"`
}

// Validate checks the request fields.
func (r *DeliveryRequest) Validate() error {
	if r.ProducerID.Kind != KindProducer {
		return fmt.Errorf("delivery request targets non-producer %s", r.ProducerID)
	}
	if !isNonNegative(r.Amount) {
		return fmt.Errorf("invalid delivery amount: %v", r.Amount)
	}
	return nil
}

// DeliveryOutcome is the owner's answer to a DeliveryRequest, shared by every
// rank.
type DeliveryOutcome struct {
	Tick           uint64         `json:"tick"`
	ProducerID     AgentID        `json:"producer_id"`
	Status         DeliveryStatus `json:"status"`
	CapacityBefore float64        `json:"capacity_before"`
	CapacityAfter  float64        `json:"capacity_after"`

	// Unanswered is set when no rank owned the requested producer, e.g. the
	// producer disappeared after its last snapshot. Status is then Failed and
	// the capacities are unknown.
	Unanswered bool `json:"unanswered,omitempty"`
}

// VoteCount is the number of a rank's consumers that picked one producer.
type VoteCount struct {
	ProducerID AgentID `json:"producer_id"`
	Count      int     `json:"count"`
}

// Ballot is one rank's share of the tick's collective vote. Usage is the
// summed usage of the rank's consumers that cast a vote.
type Ballot struct {
	Tick  uint64      `json:"tick"`
	Rank  int         `json:"rank"`
	Votes []VoteCount `json:"votes,omitempty"`
	Usage float64     `json:"usage"`
}

// NewBallot builds a ballot from per-producer counts. Votes are ordered by
// producer id.
func NewBallot(tick uint64, rank int, counts map[AgentID]int, usage float64) *Ballot {
	b := &Ballot{Tick: tick, Rank: rank, Usage: usage}
	for id, n := range counts {
		b.Votes = append(b.Votes, VoteCount{ProducerID: id, Count: n})
	}
	b.sortVotes()
	return b
}

func (b *Ballot) sortVotes() {
	slices.SortFunc(b.Votes, func(x, y VoteCount) int { return x.ProducerID.Compare(y.ProducerID) })
}

// Validate checks the ballot fields.
func (b *Ballot) Validate() error {
	if b.Rank < 0 {
		return fmt.Errorf("negative ballot rank: %d", b.Rank)
	}
	if !isNonNegative(b.Usage) {
		return fmt.Errorf("invalid ballot usage: %v", b.Usage)
	}
	for _, v := range b.Votes {
		if v.ProducerID.Kind != KindProducer {
			return fmt.Errorf("ballot votes for non-producer %s", v.ProducerID)
		}
		if v.Count < 1 {
			return fmt.Errorf("ballot has %d votes for %s", v.Count, v.ProducerID)
		}
	}
	return nil
}

// Counts returns the votes keyed by producer.
func (b *Ballot) Counts() map[AgentID]int {
	counts := make(map[AgentID]int, len(b.Votes))
	for _, v := range b.Votes {
		counts[v.ProducerID] += v.Count
	}
	return counts
}

// MergeBallots sums ballots in rank order, so every rank merging the same
// ballots gets the same votes and the same pooled usage. The result has
// rank -1.
func MergeBallots(tick uint64, ballots []Ballot) *Ballot {
	sorted := make([]Ballot, len(ballots))
	copy(sorted, ballots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	counts := make(map[AgentID]int)
	var usage float64
	for _, b := range sorted {
		for _, v := range b.Votes {
			counts[v.ProducerID] += v.Count
		}
		usage += b.Usage
	}
	return NewBallot(tick, -1, counts, usage)
}

// AgreementRecord is one row of the agreement log: the outcome of a tick's
// collective transaction as seen by one bound consumer.
type AgreementRecord struct {
	Tick           uint64         `json:"tick" db:"tick"`
	Status         DeliveryStatus `json:"status" db:"status"`
	ProducerName   string         `json:"producer_name" db:"producer_name"`
	CapacityBefore float64        `json:"capacity_before" db:"capacity_before"`
	CapacityAfter  float64        `json:"capacity_after" db:"capacity_after"`
	Trust          float64        `json:"trust" db:"trust"`
	ConsumerID     string         `json:"consumer_id" db:"consumer_id"`
	ProducerID     string         `json:"producer_id" db:"producer_id"`
	Usage          float64        `json:"usage" db:"usage"`
	Budget         float64        `json:"budget" db:"budget"`
	UnitCost       float64        `json:"unit_cost" db:"unit_cost"`
	ConsumerTrust  float64        `json:"consumer_trust" db:"consumer_trust"`
	ScoreGap       float64        `json:"score_gap" db:"score_gap"`
	Selfish        bool           `json:"selfish" db:"selfish"`
	PooledUsage    float64        `json:"pooled_usage" db:"pooled_usage"`
}

func isNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1) && !math.IsNaN(v)
}
