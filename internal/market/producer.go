package market

import (
	"fmt"
	"math"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Defaults for producer parameters that the seed data may omit.
const (
	DefaultInitialTrust = 0.5
	DefaultAlpha        = 0.01
	DefaultBeta         = 0.08
	DefaultFailureProb  = 0.15
)

// Source is the uniform random source behind production failures.
// *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// ProducerParams are the construction values of a producer.
type ProducerParams struct {
	ID          blackboard.AgentID
	Name        string
	UnitCost    float64
	Capacity    float64
	TrustLevel  float64
	Alpha       float64
	Beta        float64
	FailureProb float64
}

// DefaultProducerParams returns params with the market defaults filled in.
func DefaultProducerParams(id blackboard.AgentID, name string, unitCost, capacity float64) ProducerParams {
	return ProducerParams{
		ID:          id,
		Name:        name,
		UnitCost:    unitCost,
		Capacity:    capacity,
		TrustLevel:  DefaultInitialTrust,
		Alpha:       DefaultAlpha,
		Beta:        DefaultBeta,
		FailureProb: DefaultFailureProb,
	}
}

// Validate checks every field. Failures wrap ErrInvalidParameter.
func (p ProducerParams) Validate() error {
	if err := p.ID.Validate(); err != nil {
		return fmt.Errorf("%w: producer id: %v", ErrInvalidParameter, err)
	}
	if p.ID.Kind != blackboard.KindProducer {
		return fmt.Errorf("%w: producer %s has kind %s", ErrInvalidParameter, p.ID, p.ID.Kind)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: producer %s has no name", ErrInvalidParameter, p.ID)
	}
	if !finiteAtLeast(p.UnitCost, 0) {
		return fmt.Errorf("%w: producer %s unit cost must be >= 0, got %v", ErrInvalidParameter, p.ID, p.UnitCost)
	}
	if !finiteAtLeast(p.Capacity, 0) {
		return fmt.Errorf("%w: producer %s capacity must be >= 0, got %v", ErrInvalidParameter, p.ID, p.Capacity)
	}
	if !inUnitInterval(p.TrustLevel) {
		return fmt.Errorf("%w: producer %s trust must be in [0,1], got %v", ErrInvalidParameter, p.ID, p.TrustLevel)
	}
	if !(p.Alpha > 0) || math.IsInf(p.Alpha, 1) {
		return fmt.Errorf("%w: producer %s alpha must be > 0, got %v", ErrInvalidParameter, p.ID, p.Alpha)
	}
	if !(p.Beta > 0) || p.Beta > 1 {
		return fmt.Errorf("%w: producer %s beta must be in (0,1], got %v", ErrInvalidParameter, p.ID, p.Beta)
	}
	if !inUnitInterval(p.FailureProb) {
		return fmt.Errorf("%w: producer %s failure probability must be in [0,1], got %v", ErrInvalidParameter, p.ID, p.FailureProb)
	}
	return nil
}

// Producer is the authoritative state of a producer. Only the owning rank
// holds one; every other rank works from snapshots.
type Producer struct {
	id          blackboard.AgentID
	name        string
	unitCost    float64
	capacity    float64
	trustLevel  float64
	alpha       float64
	beta        float64
	failureProb float64
	rng         Source
}

// NewProducer validates params and builds a producer drawing failures from rng.
func NewProducer(p ProducerParams, rng Source) (*Producer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: producer %s has no random source", ErrInvalidParameter, p.ID)
	}
	return &Producer{
		id:          p.ID,
		name:        p.Name,
		unitCost:    p.UnitCost,
		capacity:    p.Capacity,
		trustLevel:  p.TrustLevel,
		alpha:       p.Alpha,
		beta:        p.Beta,
		failureProb: p.FailureProb,
		rng:         rng,
	}, nil
}

func (p *Producer) sealed() {}

// ID returns the producer's agent id.
func (p *Producer) ID() blackboard.AgentID { return p.id }

// Name returns the producer's display name.
func (p *Producer) Name() string { return p.name }

// UnitCost returns the price per unit of energy.
func (p *Producer) UnitCost() float64 { return p.unitCost }

// Capacity returns the energy still available.
func (p *Producer) Capacity() float64 { return p.capacity }

// TrustLevel returns the producer's starting trust for new relationships.
func (p *Producer) TrustLevel() float64 { return p.trustLevel }

// Alpha returns the trust growth rate.
func (p *Producer) Alpha() float64 { return p.alpha }

// Beta returns the trust decay rate.
func (p *Producer) Beta() float64 { return p.beta }

// FailureProb returns the probability that a delivery attempt fails.
func (p *Producer) FailureProb() float64 { return p.failureProb }

// AttemptDelivery tries to produce amount units. Exactly one failure draw is
// consumed per call. The attempt succeeds iff amount fits the remaining
// capacity and the draw did not trigger; only then is capacity reduced.
func (p *Producer) AttemptDelivery(amount float64) blackboard.DeliveryStatus {
	failed := p.rng.Float64() < p.failureProb

	if amount <= p.capacity && !failed {
		p.capacity -= amount
		return blackboard.StatusSuccess
	}
	return blackboard.StatusFailed
}

// Save returns the public state shipped to other ranks.
func (p *Producer) Save() blackboard.ProducerSnapshot {
	return blackboard.ProducerSnapshot{
		ID:       p.id,
		Name:     p.name,
		UnitCost: p.unitCost,
		Capacity: p.capacity,
	}
}

func finiteAtLeast(v, min float64) bool {
	return v >= min && !math.IsInf(v, 1) && !math.IsNaN(v)
}

func inUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
