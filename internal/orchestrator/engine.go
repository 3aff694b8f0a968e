package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/arnaldoapp/gridtrust/internal/decision"
	"github.com/arnaldoapp/gridtrust/internal/ledger"
	"github.com/arnaldoapp/gridtrust/internal/market"
	"github.com/arnaldoapp/gridtrust/internal/resolver"
	"github.com/arnaldoapp/gridtrust/internal/trust"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Exchange is the lockstep primitive ranks meet at each tick.
// *blackboard.Exchange and *Loopback satisfy it.
type Exchange interface {
	// Synchronize publishes local snapshots and returns every other rank's.
	Synchronize(ctx context.Context, tick uint64, local []blackboard.ProducerSnapshot) ([]blackboard.ProducerSnapshot, error)

	// Tally publishes the rank's ballot and returns every rank's ballots merged.
	Tally(ctx context.Context, tick uint64, local *blackboard.Ballot) (*blackboard.Ballot, error)

	// Transact performs the tick's single delivery attempt (nil req when nobody
	// voted) and returns the shared outcome.
	Transact(ctx context.Context, tick uint64, req *blackboard.DeliveryRequest) (*blackboard.DeliveryOutcome, error)
}

// ErrTerminated is returned by Step once the engine has aborted.
var ErrTerminated = errors.New("engine is terminal")

// Options configure an Engine.
type Options struct {
	Rank     int
	Instance string

	Exchange  Exchange
	Registry  *market.Registry   // Producers owned by this rank; may be empty
	Consumers []*market.Consumer // Consumers owned by this rank; may be empty
	Cache     *market.Cache

	Mode             decision.Mode
	Decision         decision.Params
	SelfishThreshold float64

	Sink   ledger.Sink      // Receives one record per bound consumer
	OnTick func(TickResult) // Called after every completed tick
}

// TickResult summarizes one completed tick on one rank.
type TickResult struct {
	Tick       uint64
	Transacted bool // False when no consumer of this rank had a candidate

	ProducerID     blackboard.AgentID
	ProducerName   string
	Status         blackboard.DeliveryStatus
	CapacityBefore float64
	CapacityAfter  float64
	Trust          float64 // Mean post-update trust of this rank's bound consumers
	PooledUsage    float64 // Usage of every bound consumer in the world
	Bound          int     // Bound consumers on this rank
	Selfish        int

	Records []blackboard.AgreementRecord
}

// Engine runs the tick cycle for one rank.
// Step must be called from a single goroutine; Phase and Tick are safe to
// read concurrently.
type Engine struct {
	opts      Options
	consumers []*market.Consumer
	registry  *market.Registry

	phase atomic.Int32
	tick  atomic.Uint64
}

// NewEngine validates opts and creates an idle engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Exchange == nil {
		return nil, fmt.Errorf("engine requires an exchange")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("engine requires a mirror cache")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("engine requires an agreement sink")
	}
	if err := opts.Mode.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Decision.Validate(); err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = market.NewRegistry()
	}

	consumers := make([]*market.Consumer, len(opts.Consumers))
	copy(consumers, opts.Consumers)
	sort.Slice(consumers, func(i, j int) bool { return consumers[i].ID().Less(consumers[j].ID()) })

	return &Engine{
		opts:      opts,
		consumers: consumers,
		registry:  registry,
	}, nil
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Tick returns the last completed tick.
func (e *Engine) Tick() uint64 {
	return e.tick.Load()
}

// Consumers returns the rank's consumers in AgentID order.
func (e *Engine) Consumers() []*market.Consumer {
	return e.consumers
}

func (e *Engine) advance() {
	e.phase.Store(int32(e.Phase().next()))
}

// Terminate moves the engine to Terminal and drops the mirror cache.
// Further Steps fail. Consumers keep their own mirrors.
func (e *Engine) Terminate() {
	e.phase.Store(int32(PhaseTerminal))
	e.opts.Cache.Clear()
}

// vote pairs a consumer with its personal choice for the tick.
type vote struct {
	consumer *market.Consumer
	choice   decision.Choice
}

// Step runs one full tick: synchronize, decide, resolve, transact, update
// and emit. Any error leaves the engine Terminal and discards the tick.
func (e *Engine) Step(ctx context.Context, tick uint64) (*TickResult, error) {
	if e.Phase() != PhaseIdle {
		return nil, fmt.Errorf("%w: cannot start tick %d in phase %s", ErrTerminated, tick, e.Phase())
	}

	result, err := e.step(ctx, tick)
	if err != nil {
		e.Terminate()
		e.logEvent("run_aborted", map[string]interface{}{
			"tick":  tick,
			"error": err.Error(),
		})
		return nil, err
	}

	e.tick.Store(tick)
	if e.opts.OnTick != nil {
		e.opts.OnTick(*result)
	}
	return result, nil
}

func (e *Engine) step(ctx context.Context, tick uint64) (*TickResult, error) {
	startTime := time.Now()

	// Synchronizing
	e.advance()
	if err := e.synchronize(ctx, tick); err != nil {
		return nil, err
	}

	// Deciding
	e.advance()
	votes := e.decide()

	// Resolving. Every rank merges the same ballots and picks the same winner.
	e.advance()
	bound := boundVotes(votes)
	tally, err := e.opts.Exchange.Tally(ctx, tick, e.ballot(tick, votes, bound))
	if err != nil {
		return nil, fmt.Errorf("tally tick %d: %w", tick, err)
	}
	winner, ok := resolver.Leader(tally.Counts())

	// Transacting. Every rank takes part, with or without a request.
	e.advance()
	var req *blackboard.DeliveryRequest
	if ok {
		req = &blackboard.DeliveryRequest{ProducerID: winner, Amount: tally.Usage}
	}
	outcome, err := e.opts.Exchange.Transact(ctx, tick, req)
	if err != nil {
		return nil, fmt.Errorf("transact tick %d: %w", tick, err)
	}

	// Updating
	e.advance()
	result := &TickResult{Tick: tick}
	switch {
	case ok && outcome == nil:
		return nil, fmt.Errorf("transact tick %d: no outcome for request to %s", tick, winner)
	case ok && len(bound) > 0:
		if err := e.update(ctx, result, bound, winner, outcome, tally.Usage); err != nil {
			return nil, err
		}
	case len(e.consumers) > 0 && len(bound) == 0:
		log.Printf("[Orchestrator] Tick %d: no producer available for any consumer", tick)
		e.logEvent("no_candidate", map[string]interface{}{
			"tick":      tick,
			"consumers": len(e.consumers),
		})
	}

	if err := e.opts.Sink.Flush(); err != nil {
		return nil, fmt.Errorf("flush agreements for tick %d: %w", tick, err)
	}

	e.advance()
	if result.Transacted {
		e.logEvent("tick_resolved", map[string]interface{}{
			"tick":         tick,
			"producer_id":  result.ProducerID.String(),
			"status":       string(result.Status),
			"bound":        result.Bound,
			"selfish":      result.Selfish,
			"pooled_usage": result.PooledUsage,
			"trust":        result.Trust,
			"duration_ms":  time.Since(startTime).Milliseconds(),
		})
	}
	return result, nil
}

// synchronize merges this rank's own producers and every remote snapshot
// into the cache.
func (e *Engine) synchronize(ctx context.Context, tick uint64) error {
	local := e.registry.Snapshots()
	for _, s := range local {
		if _, err := e.opts.Cache.Restore(s, tick); err != nil {
			return fmt.Errorf("synchronize tick %d: %w", tick, err)
		}
	}

	remote, err := e.opts.Exchange.Synchronize(ctx, tick, local)
	if err != nil {
		return fmt.Errorf("synchronize tick %d: %w", tick, err)
	}
	for _, s := range remote {
		if _, err := e.opts.Cache.Restore(s, tick); err != nil {
			return fmt.Errorf("synchronize tick %d: %w", tick, err)
		}
	}

	// Mirrors of producers that stopped appearing are kept as they were.
	// Report each once, on the first tick it is missing.
	for _, m := range e.opts.Cache.Mirrors() {
		if last, ok := e.opts.Cache.LastRestored(m.ID); ok && last+1 == tick {
			log.Printf("[Orchestrator] Tick %d: producer %s (%s) missing from sync, keeping mirror from tick %d", tick, m.ID, m.Name, last)
		}
	}
	return nil
}

// decide lets every consumer pick against the same post-sync cache.
func (e *Engine) decide() []vote {
	pooled := decision.Pool(e.consumers)

	votes := make([]vote, len(e.consumers))
	for i, c := range e.consumers {
		c.Observe(e.opts.Cache)
		demand := decision.DemandFor(e.opts.Mode, c, pooled)
		votes[i] = vote{consumer: c, choice: decision.Decide(c.Mirrors(), demand, e.opts.Decision)}
	}
	return votes
}

// update applies the single outcome to every bound consumer and appends
// their records.
func (e *Engine) update(ctx context.Context, result *TickResult, bound []vote, winner blackboard.AgentID, outcome *blackboard.DeliveryOutcome, pooled float64) error {
	result.Transacted = true
	result.ProducerID = winner
	result.Status = outcome.Status
	result.CapacityBefore = outcome.CapacityBefore
	result.CapacityAfter = outcome.CapacityAfter
	result.PooledUsage = pooled
	result.Bound = len(bound)

	records := make([]blackboard.AgreementRecord, 0, len(bound))
	var trustSum float64
	for _, v := range bound {
		m, ok := v.consumer.Mirror(winner)
		if !ok {
			return fmt.Errorf("consumer %s has no mirror of winner %s", v.consumer.ID(), winner)
		}

		collective := decision.Score(m, e.opts.Decision.Epsilon)
		gap := resolver.ScoreGap(v.choice.Score, collective)
		selfish := resolver.IsSelfish(v.choice.Score, collective, e.opts.SelfishThreshold)
		if selfish {
			result.Selfish++
		}

		m.TrustLevel = trust.Update(m.TrustLevel, m.Alpha, m.Beta, outcome.Status, selfish)
		if !outcome.Unanswered {
			m.Capacity = outcome.CapacityAfter
		}
		trustSum += m.TrustLevel
		result.ProducerName = m.Name

		records = append(records, blackboard.AgreementRecord{
			Tick:           result.Tick,
			Status:         outcome.Status,
			ProducerName:   m.Name,
			CapacityBefore: outcome.CapacityBefore,
			CapacityAfter:  outcome.CapacityAfter,
			ConsumerID:     v.consumer.ID().String(),
			ProducerID:     winner.String(),
			Usage:          v.consumer.Usage(),
			Budget:         v.consumer.Budget(),
			UnitCost:       m.UnitCost,
			ConsumerTrust:  m.TrustLevel,
			ScoreGap:       gap,
			Selfish:        selfish,
			PooledUsage:    result.PooledUsage,
		})
	}
	result.Trust = trustSum / float64(len(bound))

	for i := range records {
		records[i].Trust = result.Trust
		if err := e.opts.Sink.Append(ctx, &records[i]); err != nil {
			return fmt.Errorf("append agreement for tick %d: %w", result.Tick, err)
		}
	}
	result.Records = records
	return nil
}

func ballots(votes []vote) []resolver.Vote {
	out := make([]resolver.Vote, len(votes))
	for i, v := range votes {
		out[i] = resolver.Vote{Consumer: v.consumer.ID(), Cast: v.choice.Available()}
		if v.choice.Available() {
			out[i].Producer = v.choice.Mirror.ID
		}
	}
	return out
}

// boundVotes returns the votes of the consumers bound by the tick's
// transaction, in consumer order.
func boundVotes(votes []vote) []vote {
	byID := make(map[blackboard.AgentID]vote, len(votes))
	for _, v := range votes {
		byID[v.consumer.ID()] = v
	}

	ids := resolver.Bound(ballots(votes))
	out := make([]vote, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out
}

// ballot summarizes this rank's votes for the tally.
func (e *Engine) ballot(tick uint64, votes, bound []vote) *blackboard.Ballot {
	var usage float64
	for _, v := range bound {
		usage += v.consumer.Usage()
	}
	return blackboard.NewBallot(tick, e.opts.Rank, resolver.Count(ballots(votes)), usage)
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType
	data["instance"] = e.opts.Instance
	data["rank"] = e.opts.Rank

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
