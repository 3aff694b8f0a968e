package blackboard

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Barrier phases of a tick, in protocol order.
const (
	PhaseSync    = "sync"
	PhaseTally   = "tally"
	PhaseOutcome = "outcome"
)

const (
	defaultPollInterval   = 20 * time.Millisecond
	defaultBarrierTimeout = 30 * time.Second
	defaultKeyTTL         = 10 * time.Minute
)

// Fulfiller serves delivery requests for the producers a rank owns.
type Fulfiller interface {
	// Owns reports whether the producer is authoritative on this rank.
	Owns(id AgentID) bool

	// Fulfil performs the tick's production attempt. The exchange calls it
	// at most once per tick, on the rank owning the winner.
	Fulfil(tick uint64, req *DeliveryRequest) *DeliveryOutcome
}

// ExchangeConfig configures a rank's participation in the tick protocol.
type ExchangeConfig struct {
	Rank           int
	WorldSize      int
	PollInterval   time.Duration // How often barrier membership is polled (default 20ms)
	BarrierTimeout time.Duration // Abort if a barrier is not reached in time (default 30s)
	KeyTTL         time.Duration // Expiry applied to every per-tick key (default 10m)
}

// Validate checks the configuration and applies defaults.
func (c *ExchangeConfig) Validate() error {
	if c.WorldSize < 1 {
		return fmt.Errorf("world size must be >= 1, got %d", c.WorldSize)
	}
	if c.Rank < 0 || c.Rank >= c.WorldSize {
		return fmt.Errorf("rank %d out of range [0, %d)", c.Rank, c.WorldSize)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BarrierTimeout <= 0 {
		c.BarrierTimeout = defaultBarrierTimeout
	}
	if c.KeyTTL <= 0 {
		c.KeyTTL = defaultKeyTTL
	}
	return nil
}

// Exchange runs the lockstep tick protocol over Redis for one rank.
// It is not safe for concurrent use; each rank drives its own Exchange from
// a single goroutine.
type Exchange struct {
	client    *Client
	cfg       ExchangeConfig
	fulfiller Fulfiller
}

// NewExchange creates an exchange for one rank. fulfiller may be nil for
// ranks that own no producers.
func NewExchange(client *Client, cfg ExchangeConfig, fulfiller Fulfiller) (*Exchange, error) {
	if client == nil {
		return nil, fmt.Errorf("blackboard client cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid exchange config: %w", err)
	}
	return &Exchange{
		client:    client,
		cfg:       cfg,
		fulfiller: fulfiller,
	}, nil
}

// Synchronize publishes this rank's producer snapshots for the tick, waits
// until every rank has published, and returns the snapshots of all other
// ranks ordered by AgentID.
//
// Any malformed snapshot aborts the call with an error wrapping
// ErrMalformedSnapshot.
func (x *Exchange) Synchronize(ctx context.Context, tick uint64, local []ProducerSnapshot) ([]ProducerSnapshot, error) {
	inst := x.client.instanceName
	rdb := x.client.rdb
	indexKey := TickSnapshotIndexKey(inst, tick)

	if len(local) > 0 {
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i := range local {
				s := &local[i]
				if err := s.Validate(); err != nil {
					return err
				}
				key := SnapshotKey(inst, tick, s.ID)
				pipe.HSet(ctx, key, SnapshotToHash(s))
				pipe.Expire(ctx, key, x.cfg.KeyTTL)
				pipe.SAdd(ctx, indexKey, s.ID.String())
			}
			pipe.Expire(ctx, indexKey, x.cfg.KeyTTL)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to publish snapshots for tick %d: %w", tick, err)
		}
	}

	if err := x.WaitForBarrier(ctx, tick, PhaseSync); err != nil {
		return nil, err
	}

	members, err := rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot index for tick %d: %w", tick, err)
	}

	remote := make([]ProducerSnapshot, 0, len(members))
	for _, member := range members {
		id, err := ParseAgentID(member)
		if err != nil {
			return nil, fmt.Errorf("%w: bad index entry: %v", ErrMalformedSnapshot, err)
		}
		if id.Rank == x.cfg.Rank {
			continue
		}

		hash, err := rdb.HGetAll(ctx, SnapshotKey(inst, tick, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", id, err)
		}
		if len(hash) == 0 {
			return nil, fmt.Errorf("%w: snapshot %s indexed but missing", ErrMalformedSnapshot, id)
		}

		snapshot, err := HashToSnapshot(hash)
		if err != nil {
			return nil, fmt.Errorf("tick %d snapshot %s: %w", tick, id, err)
		}
		if snapshot.ID != id {
			return nil, fmt.Errorf("%w: snapshot stored under %s claims id %s", ErrMalformedSnapshot, id, snapshot.ID)
		}
		remote = append(remote, *snapshot)
	}

	sort.Slice(remote, func(i, j int) bool { return remote[i].ID.Less(remote[j].ID) })
	return remote, nil
}

// Tally publishes this rank's ballot, waits until every rank has voted, and
// returns all ballots merged. Every rank gets the same merged ballot and so
// resolves the same winner. local may be nil for a rank without consumers.
func (x *Exchange) Tally(ctx context.Context, tick uint64, local *Ballot) (*Ballot, error) {
	inst := x.client.instanceName
	rdb := x.client.rdb
	key := TickBallotsKey(inst, tick)

	if local == nil {
		local = NewBallot(tick, x.cfg.Rank, nil, 0)
	}
	local.Tick = tick
	local.Rank = x.cfg.Rank
	encoded, err := EncodeBallot(local)
	if err != nil {
		return nil, err
	}
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.Itoa(x.cfg.Rank), encoded)
		pipe.Expire(ctx, key, x.cfg.KeyTTL)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit ballot for tick %d: %w", tick, err)
	}

	if err := x.WaitForBarrier(ctx, tick, PhaseTally); err != nil {
		return nil, err
	}

	raw, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ballots for tick %d: %w", tick, err)
	}
	if len(raw) != x.cfg.WorldSize {
		return nil, fmt.Errorf("tick %d has %d ballots, expected %d", tick, len(raw), x.cfg.WorldSize)
	}

	ballots := make([]Ballot, 0, len(raw))
	for rank, value := range raw {
		b, err := DecodeBallot(value)
		if err != nil {
			return nil, fmt.Errorf("ballot of rank %s for tick %d: %w", rank, tick, err)
		}
		ballots = append(ballots, *b)
	}
	return MergeBallots(tick, ballots), nil
}

// Transact carries out the tick's single delivery attempt. Every rank passes
// the same request, derived from the merged ballot, or nil when nobody voted.
// The rank owning the producer fulfils it once and publishes the outcome;
// every rank returns that outcome (nil when req is nil).
func (x *Exchange) Transact(ctx context.Context, tick uint64, req *DeliveryRequest) (*DeliveryOutcome, error) {
	rdb := x.client.rdb
	key := TickOutcomeKey(x.client.instanceName, tick)

	if req != nil {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("invalid delivery request: %w", err)
		}
		req.Tick = tick
		if x.fulfiller != nil && x.fulfiller.Owns(req.ProducerID) {
			encoded, err := EncodeOutcome(x.fulfiller.Fulfil(tick, req))
			if err != nil {
				return nil, err
			}
			if err := rdb.Set(ctx, key, encoded, x.cfg.KeyTTL).Err(); err != nil {
				return nil, fmt.Errorf("failed to write delivery outcome for tick %d: %w", tick, err)
			}
		}
	}

	if err := x.WaitForBarrier(ctx, tick, PhaseOutcome); err != nil {
		return nil, err
	}

	if req == nil {
		return nil, nil
	}

	raw, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if IsNotFound(err) {
			log.Printf("[Exchange] WARN: no rank owns producer %s, delivery for tick %d unanswered", req.ProducerID, tick)
			return &DeliveryOutcome{
				Tick:       tick,
				ProducerID: req.ProducerID,
				Status:     StatusFailed,
				Unanswered: true,
			}, nil
		}
		return nil, fmt.Errorf("failed to read delivery outcome for tick %d: %w", tick, err)
	}

	return DecodeOutcome(raw)
}

// WaitForBarrier registers this rank at a barrier phase of the tick and
// polls until all ranks of the world have registered.
// Logs periodic waiting messages every 5 seconds.
//
// Returns an error if the context is cancelled, Redis fails or the barrier
// timeout elapses.
func (x *Exchange) WaitForBarrier(ctx context.Context, tick uint64, phase string) error {
	rdb := x.client.rdb
	key := BarrierKey(x.client.instanceName, tick, phase)

	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, strconv.Itoa(x.cfg.Rank))
		pipe.Expire(ctx, key, x.cfg.KeyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to join %s barrier for tick %d: %w", phase, tick, err)
	}

	expected := int64(x.cfg.WorldSize)
	start := time.Now()
	lastLogTime := start
	deadline := time.NewTimer(x.cfg.BarrierTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(x.cfg.PollInterval)
	defer ticker.Stop()

	for {
		arrived, err := rdb.SCard(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to poll %s barrier for tick %d: %w", phase, tick, err)
		}
		if arrived >= expected {
			return nil
		}

		if time.Since(lastLogTime) >= 5*time.Second {
			log.Printf("[Exchange] Rank %d waiting at %s barrier for tick %d: %d/%d ranks (waited %v)",
				x.cfg.Rank, phase, tick, arrived, expected, time.Since(start).Round(time.Second))
			lastLogTime = time.Now()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timeout at %s barrier for tick %d after %v: %d/%d ranks arrived",
				phase, tick, x.cfg.BarrierTimeout, arrived, expected)
		case <-ticker.C:
		}
	}
}
