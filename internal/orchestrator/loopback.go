package orchestrator

import (
	"context"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Loopback is the exchange of a world with a single rank. The barrier is
// trivial, there are no remote snapshots, and requests go straight to the
// local fulfiller.
type Loopback struct {
	fulfiller blackboard.Fulfiller
}

var _ Exchange = (*Loopback)(nil)

// NewLoopback creates a loopback exchange. fulfiller may be nil when the
// world has no producers.
func NewLoopback(fulfiller blackboard.Fulfiller) *Loopback {
	return &Loopback{fulfiller: fulfiller}
}

// Synchronize validates the local snapshots and returns no remote ones.
func (l *Loopback) Synchronize(ctx context.Context, _ uint64, local []blackboard.ProducerSnapshot) ([]blackboard.ProducerSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range local {
		if err := local[i].Validate(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// Tally returns the local ballot as the whole world's vote.
func (l *Loopback) Tally(ctx context.Context, tick uint64, local *blackboard.Ballot) (*blackboard.Ballot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ballots []blackboard.Ballot
	if local != nil {
		ballots = append(ballots, *local)
	}
	return blackboard.MergeBallots(tick, ballots), nil
}

// Transact fulfils req locally.
func (l *Loopback) Transact(ctx context.Context, tick uint64, req *blackboard.DeliveryRequest) (*blackboard.DeliveryOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, nil
	}

	req.Tick = tick
	if l.fulfiller == nil || !l.fulfiller.Owns(req.ProducerID) {
		return &blackboard.DeliveryOutcome{
			Tick:       tick,
			ProducerID: req.ProducerID,
			Status:     blackboard.StatusFailed,
			Unanswered: true,
		}, nil
	}
	return l.fulfiller.Fulfil(tick, req), nil
}
