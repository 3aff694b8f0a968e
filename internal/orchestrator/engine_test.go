package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arnaldoapp/gridtrust/internal/decision"
	"github.com/arnaldoapp/gridtrust/internal/ledger"
	"github.com/arnaldoapp/gridtrust/internal/market"
	"github.com/arnaldoapp/gridtrust/internal/resolver"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func producerID(n, rank int) blackboard.AgentID {
	return blackboard.AgentID{LocalID: n, Kind: blackboard.KindProducer, Rank: rank}
}

func consumerID(n, rank int) blackboard.AgentID {
	return blackboard.AgentID{LocalID: n, Kind: blackboard.KindConsumer, Rank: rank}
}

func solarParams() market.ProducerParams {
	p := market.DefaultProducerParams(producerID(1, 0), "Solar", 12, 1200)
	p.TrustLevel = 0.8
	p.FailureProb = 0
	return p
}

func newConsumer(t *testing.T, n int, budget, usage float64) *market.Consumer {
	t.Helper()
	c, err := market.NewConsumer(consumerID(n, 0), "", budget, usage)
	require.NoError(t, err)
	return c
}

// termsFrom gives every producer in params its own trust terms.
func termsFrom(params []market.ProducerParams) market.TermsFunc {
	terms := make(map[blackboard.AgentID]market.TrustTerms)
	for _, p := range params {
		terms[p.ID] = market.TrustTerms{InitialTrust: p.TrustLevel, Alpha: p.Alpha, Beta: p.Beta}
	}
	return func(id blackboard.AgentID) market.TrustTerms {
		if t, ok := terms[id]; ok {
			return t
		}
		return market.DefaultTrustTerms()
	}
}

type scenario struct {
	producers []market.ProducerParams
	consumers []*market.Consumer
	mode      decision.Mode
	exchange  Exchange
}

type testEnv struct {
	engine   *Engine
	registry *market.Registry
	cache    *market.Cache
	recorder *ledger.Recorder
	results  []TickResult
}

func newScenario(t *testing.T, sc scenario) *testEnv {
	t.Helper()
	if sc.producers == nil {
		sc.producers = []market.ProducerParams{solarParams()}
	}
	if sc.consumers == nil {
		sc.consumers = []*market.Consumer{newConsumer(t, 123, 5000, 9)}
	}
	if sc.mode == "" {
		sc.mode = decision.ModeIndividual
	}

	env := &testEnv{
		registry: market.NewRegistry(),
		cache:    market.NewCache(termsFrom(sc.producers)),
		recorder: &ledger.Recorder{},
	}
	rng := rand.New(rand.NewSource(1))
	for _, p := range sc.producers {
		prod, err := market.NewProducer(p, rng)
		require.NoError(t, err)
		require.NoError(t, env.registry.Add(prod))
	}
	if sc.exchange == nil {
		sc.exchange = NewLoopback(env.registry)
	}

	engine, err := NewEngine(Options{
		Instance:         "test",
		Exchange:         sc.exchange,
		Registry:         env.registry,
		Consumers:        sc.consumers,
		Cache:            env.cache,
		Mode:             sc.mode,
		Decision:         decision.DefaultParams(),
		SelfishThreshold: resolver.DefaultSelfishThreshold,
		Sink:             env.recorder,
		OnTick:           func(r TickResult) { env.results = append(env.results, r) },
	})
	require.NoError(t, err)
	env.engine = engine
	return env
}

func TestEngine_EndToEndTick(t *testing.T) {
	env := newScenario(t, scenario{})

	result, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)

	require.True(t, result.Transacted)
	assert.Equal(t, blackboard.StatusSuccess, result.Status)
	assert.Equal(t, 1200.0, result.CapacityBefore)
	assert.Equal(t, 1191.0, result.CapacityAfter)
	assert.InDelta(t, 0.808, result.Trust, 1e-12)
	assert.Equal(t, "Solar", result.ProducerName)

	assert.Equal(t, 1191.0, env.registry.Producers()[0].Capacity())

	m, ok := env.engine.Consumers()[0].Mirror(producerID(1, 0))
	require.True(t, ok)
	assert.InDelta(t, 0.808, m.TrustLevel, 1e-12)

	records := env.recorder.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, uint64(1), rec.Tick)
	assert.Equal(t, "123:0:0", rec.ConsumerID)
	assert.Equal(t, "1:1:0", rec.ProducerID)
	assert.Equal(t, 9.0, rec.Usage)
	assert.Equal(t, 5000.0, rec.Budget)
	assert.Equal(t, 12.0, rec.UnitCost)
	assert.InDelta(t, 0.808, rec.ConsumerTrust, 1e-12)
	assert.Equal(t, 0.0, rec.ScoreGap)
	assert.False(t, rec.Selfish)

	assert.Equal(t, 1, env.recorder.Flushes())
	assert.Equal(t, PhaseIdle, env.engine.Phase())
	assert.Equal(t, uint64(1), env.engine.Tick())
	require.Len(t, env.results, 1)
}

func TestEngine_NoCandidate(t *testing.T) {
	env := newScenario(t, scenario{
		consumers: []*market.Consumer{newConsumer(t, 123, 100, 50)},
	})

	result, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)

	assert.False(t, result.Transacted)
	assert.Empty(t, env.recorder.Records())
	assert.Equal(t, 1200.0, env.registry.Producers()[0].Capacity())

	m, ok := env.engine.Consumers()[0].Mirror(producerID(1, 0))
	require.True(t, ok, "mirrors exist even when nothing is affordable")
	assert.Equal(t, 0.8, m.TrustLevel)
}

func TestEngine_DeliveryFailureDecaysTrust(t *testing.T) {
	p := solarParams()
	p.FailureProb = 1
	env := newScenario(t, scenario{producers: []market.ProducerParams{p}})

	result, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, blackboard.StatusFailed, result.Status)
	assert.Equal(t, 1200.0, result.CapacityAfter)
	assert.InDelta(t, 0.736, result.Trust, 1e-12)
}

func TestEngine_SelfishConsumerPenalized(t *testing.T) {
	p1 := market.DefaultProducerParams(producerID(1, 0), "Hydro", 20, 1000)
	p1.FailureProb = 0
	p2 := market.DefaultProducerParams(producerID(2, 0), "Wind", 15, 1000)
	p2.FailureProb = 0

	a := newConsumer(t, 1, 5000, 5)
	b := newConsumer(t, 2, 5000, 5)
	c := newConsumer(t, 3, 5000, 5)
	for _, loyal := range []*market.Consumer{a, b} {
		loyal.SeedTrust(p1.ID, 0.9)
		loyal.SeedTrust(p2.ID, 0.5)
	}
	c.SeedTrust(p1.ID, 0.5)
	c.SeedTrust(p2.ID, 0.9)

	env := newScenario(t, scenario{
		producers: []market.ProducerParams{p1, p2},
		consumers: []*market.Consumer{a, b, c},
	})

	result, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)

	require.True(t, result.Transacted)
	assert.Equal(t, p1.ID, result.ProducerID, "plurality goes to Hydro")
	assert.Equal(t, blackboard.StatusSuccess, result.Status)
	assert.Equal(t, 15.0, result.PooledUsage)
	assert.Equal(t, 3, result.Bound)
	assert.Equal(t, 1, result.Selfish)
	assert.Equal(t, 985.0, result.CapacityAfter)

	records := env.recorder.Records()
	require.Len(t, records, 3)

	// Loyal consumers grow trust; the selfish one decays despite success.
	assert.InDelta(t, 0.909, records[0].ConsumerTrust, 1e-12)
	assert.InDelta(t, 0.909, records[1].ConsumerTrust, 1e-12)
	assert.InDelta(t, 0.46, records[2].ConsumerTrust, 1e-12)
	assert.True(t, records[2].Selfish)
	assert.InDelta(t, 15*(1.001-0.9)-20*(1.001-0.5), records[2].ScoreGap, 1e-9)

	mean := (0.909 + 0.909 + 0.46) / 3
	for _, rec := range records {
		assert.InDelta(t, mean, rec.Trust, 1e-12)
		assert.Equal(t, 15.0, rec.PooledUsage)
	}

	// Only the winner's relationship changes.
	m, _ := c.Mirror(p2.ID)
	assert.Equal(t, 0.9, m.TrustLevel)
}

func TestEngine_CollectiveMode(t *testing.T) {
	build := func(mode decision.Mode) *testEnv {
		p := market.DefaultProducerParams(producerID(1, 0), "Grid", 8, 1000)
		p.FailureProb = 0
		return newScenario(t, scenario{
			producers: []market.ProducerParams{p},
			consumers: []*market.Consumer{newConsumer(t, 1, 30, 5), newConsumer(t, 2, 100, 5)},
			mode:      mode,
		})
	}

	t.Run("individual leaves the poorer consumer out", func(t *testing.T) {
		result, err := build(decision.ModeIndividual).engine.Step(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Bound)
		assert.Equal(t, 5.0, result.PooledUsage)
	})

	t.Run("collective pools budgets", func(t *testing.T) {
		result, err := build(decision.ModeCollective).engine.Step(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Bound)
		assert.Equal(t, 10.0, result.PooledUsage)
		assert.Equal(t, 990.0, result.CapacityAfter)
	})
}

func TestEngine_CapacityRunsOut(t *testing.T) {
	p := solarParams()
	p.Capacity = 20
	env := newScenario(t, scenario{producers: []market.ProducerParams{p}})

	var transacted []bool
	for tick := uint64(1); tick <= 3; tick++ {
		result, err := env.engine.Step(context.Background(), tick)
		require.NoError(t, err)
		transacted = append(transacted, result.Transacted)
	}

	assert.Equal(t, []bool{true, true, false}, transacted)
	assert.Equal(t, 2.0, env.registry.Producers()[0].Capacity())
	assert.Len(t, env.recorder.Records(), 2)
}

// scriptedExchange returns canned snapshots and other ranks' ballots, and
// records requests.
type scriptedExchange struct {
	remote        []blackboard.ProducerSnapshot
	remoteBallots []blackboard.Ballot
	syncErr       error
	outcome       *blackboard.DeliveryOutcome
	requests      []*blackboard.DeliveryRequest
}

func (s *scriptedExchange) Synchronize(context.Context, uint64, []blackboard.ProducerSnapshot) ([]blackboard.ProducerSnapshot, error) {
	return s.remote, s.syncErr
}

func (s *scriptedExchange) Tally(_ context.Context, tick uint64, local *blackboard.Ballot) (*blackboard.Ballot, error) {
	return blackboard.MergeBallots(tick, append([]blackboard.Ballot{*local}, s.remoteBallots...)), nil
}

func (s *scriptedExchange) Transact(_ context.Context, tick uint64, req *blackboard.DeliveryRequest) (*blackboard.DeliveryOutcome, error) {
	s.requests = append(s.requests, req)
	if req == nil {
		return nil, nil
	}
	out := *s.outcome
	out.Tick = tick
	out.ProducerID = req.ProducerID
	return &out, nil
}

func TestEngine_RemoteProducer(t *testing.T) {
	remote := producerID(1, 1)
	x := &scriptedExchange{
		remote: []blackboard.ProducerSnapshot{{ID: remote, Name: "Solar", UnitCost: 12, Capacity: 1200}},
		outcome: &blackboard.DeliveryOutcome{
			Status:         blackboard.StatusSuccess,
			CapacityBefore: 1200,
			CapacityAfter:  1191,
		},
	}
	env := newScenario(t, scenario{producers: []market.ProducerParams{}, exchange: x})

	result, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, x.requests, 1)
	require.NotNil(t, x.requests[0])
	assert.Equal(t, remote, x.requests[0].ProducerID)
	assert.Equal(t, 9.0, x.requests[0].Amount)

	assert.Equal(t, blackboard.StatusSuccess, result.Status)
	assert.InDelta(t, 0.505, result.Trust, 1e-12, "remote producer starts at neutral trust")

	m, _ := env.engine.Consumers()[0].Mirror(remote)
	assert.Equal(t, 1191.0, m.Capacity)
}

func TestEngine_OtherRanksOutvote(t *testing.T) {
	wind, solar := producerID(1, 1), producerID(1, 2)
	x := &scriptedExchange{
		remote: []blackboard.ProducerSnapshot{
			{ID: wind, Name: "Wind", UnitCost: 10, Capacity: 500},
			{ID: solar, Name: "Solar", UnitCost: 12, Capacity: 1200},
		},
		remoteBallots: []blackboard.Ballot{
			*blackboard.NewBallot(1, 3, map[blackboard.AgentID]int{solar: 2}, 20),
		},
		outcome: &blackboard.DeliveryOutcome{
			Status:         blackboard.StatusSuccess,
			CapacityBefore: 1200,
			CapacityAfter:  1171,
		},
	}
	env := newScenario(t, scenario{producers: []market.ProducerParams{}, exchange: x})

	result, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)

	// The local consumer prefers the cheaper Wind but two remote votes win.
	require.Len(t, x.requests, 1)
	assert.Equal(t, solar, x.requests[0].ProducerID)
	assert.Equal(t, 29.0, x.requests[0].Amount)

	require.True(t, result.Transacted)
	assert.Equal(t, solar, result.ProducerID)
	assert.Equal(t, 29.0, result.PooledUsage)
	assert.Equal(t, 1, result.Bound)

	records := env.recorder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "1:1:2", records[0].ProducerID)
	assert.Equal(t, 29.0, records[0].PooledUsage)
}

func TestEngine_RankWithoutCandidatesStillTransacts(t *testing.T) {
	x := &scriptedExchange{}
	env := newScenario(t, scenario{producers: []market.ProducerParams{}, consumers: []*market.Consumer{}, exchange: x})

	result, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, result.Transacted)
	require.Len(t, x.requests, 1)
	assert.Nil(t, x.requests[0])
}

func TestEngine_MalformedSnapshotIsTerminal(t *testing.T) {
	x := &scriptedExchange{
		remote: []blackboard.ProducerSnapshot{{ID: producerID(1, 1), Name: "", UnitCost: 12, Capacity: 1200}},
	}
	env := newScenario(t, scenario{producers: []market.ProducerParams{}, exchange: x})

	_, err := env.engine.Step(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, blackboard.ErrMalformedSnapshot))
	assert.Equal(t, PhaseTerminal, env.engine.Phase())
	assert.Empty(t, x.requests, "no decision runs after a failed sync")

	_, err = env.engine.Step(context.Background(), 2)
	assert.True(t, errors.Is(err, ErrTerminated))
}

func TestEngine_StaleMirrorReportedOnce(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	remote := producerID(1, 1)
	x := &scriptedExchange{
		remote:  []blackboard.ProducerSnapshot{{ID: remote, Name: "Solar", UnitCost: 12, Capacity: 1200}},
		outcome: &blackboard.DeliveryOutcome{Status: blackboard.StatusSuccess, CapacityBefore: 1200, CapacityAfter: 1191},
	}
	env := newScenario(t, scenario{producers: []market.ProducerParams{}, exchange: x})

	_, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)

	x.remote = nil
	for tick := uint64(2); tick <= 3; tick++ {
		_, err := env.engine.Step(context.Background(), tick)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, strings.Count(logs.String(), "missing from sync"))
	assert.Contains(t, logs.String(), "Tick 2: producer 1:1:1 (Solar) missing from sync, keeping mirror from tick 1")

	_, ok := env.cache.Get(remote)
	assert.True(t, ok, "stale mirror stays in the cache")
}

func TestEngine_TerminateClearsCache(t *testing.T) {
	env := newScenario(t, scenario{})
	_, err := env.engine.Step(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, env.cache.Len())

	env.engine.Terminate()
	assert.Equal(t, 0, env.cache.Len())

	_, ok := env.engine.Consumers()[0].Mirror(producerID(1, 0))
	assert.True(t, ok, "consumers keep their mirrors for the final checkpoint")
}

func TestEngine_SyncErrorAborts(t *testing.T) {
	x := &scriptedExchange{syncErr: errors.New("timeout at sync barrier")}
	env := newScenario(t, scenario{exchange: x})

	_, err := env.engine.Step(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synchronize tick 1")
	assert.Equal(t, PhaseTerminal, env.engine.Phase())
	assert.Empty(t, env.recorder.Records())
	assert.Equal(t, 0, env.cache.Len())
}

func TestEngine_CancelledContext(t *testing.T) {
	env := newScenario(t, scenario{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.engine.Step(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1200.0, env.registry.Producers()[0].Capacity())
}

func TestNewEngine_Validation(t *testing.T) {
	base := Options{
		Exchange: NewLoopback(nil),
		Cache:    market.NewCache(nil),
		Sink:     &ledger.Recorder{},
		Mode:     decision.ModeIndividual,
		Decision: decision.DefaultParams(),
	}

	_, err := NewEngine(base)
	require.NoError(t, err)

	noExchange := base
	noExchange.Exchange = nil
	_, err = NewEngine(noExchange)
	assert.Error(t, err)

	badMode := base
	badMode.Mode = "bloc"
	_, err = NewEngine(badMode)
	assert.Error(t, err)

	noSink := base
	noSink.Sink = nil
	_, err = NewEngine(noSink)
	assert.Error(t, err)
}

// TestEngine_TwoRanksOverRedis runs a consumer rank and a producer rank
// against the same blackboard.
func TestEngine_TwoRanksOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	newExchange := func(rank int, f blackboard.Fulfiller) *blackboard.Exchange {
		client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "market")
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		x, err := blackboard.NewExchange(client, blackboard.ExchangeConfig{
			Rank:           rank,
			WorldSize:      2,
			PollInterval:   5 * time.Millisecond,
			BarrierTimeout: 5 * time.Second,
		}, f)
		require.NoError(t, err)
		return x
	}

	solar := solarParams()
	solar.ID = producerID(1, 1)

	producerRank := newScenario(t, scenario{
		producers: []market.ProducerParams{solar},
		consumers: []*market.Consumer{},
	})
	producerRank.engine.opts.Exchange = newExchange(1, producerRank.registry)
	producerRank.engine.opts.Rank = 1

	consumerCache := market.NewCache(termsFrom([]market.ProducerParams{solar}))
	recorder := &ledger.Recorder{}
	consumerEngine, err := NewEngine(Options{
		Rank:             0,
		Instance:         "market",
		Exchange:         newExchange(0, nil),
		Consumers:        []*market.Consumer{newConsumer(t, 123, 5000, 9)},
		Cache:            consumerCache,
		Mode:             decision.ModeIndividual,
		Decision:         decision.DefaultParams(),
		SelfishThreshold: resolver.DefaultSelfishThreshold,
		Sink:             recorder,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const ticks = 3
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for tick := uint64(1); tick <= ticks; tick++ {
			if _, err := consumerEngine.Step(gctx, tick); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for tick := uint64(1); tick <= ticks; tick++ {
			if _, err := producerRank.engine.Step(gctx, tick); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	records := recorder.Records()
	require.Len(t, records, ticks)
	assert.Equal(t, 1191.0, records[0].CapacityAfter)
	assert.InDelta(t, 0.808, records[0].ConsumerTrust, 1e-12)
	assert.Equal(t, 1173.0, records[2].CapacityAfter)
	assert.Equal(t, 1173.0, producerRank.registry.Producers()[0].Capacity())
	assert.Empty(t, producerRank.recorder.Records())
}

// TestEngine_ConsumersOnSeveralRanks runs consumers on ranks 0 and 1 and the
// only producer on rank 2. The world makes one pooled attempt per tick and
// every consumer shares its outcome.
func TestEngine_ConsumersOnSeveralRanks(t *testing.T) {
	mr := miniredis.RunT(t)
	const worldSize = 3

	solar := solarParams()
	solar.ID = producerID(1, 2)
	terms := termsFrom([]market.ProducerParams{solar})

	registry := market.NewRegistry()
	prod, err := market.NewProducer(solar, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, registry.Add(prod))

	type rankEnv struct {
		engine   *Engine
		recorder *ledger.Recorder
	}
	ranks := make([]rankEnv, worldSize)
	for rank := 0; rank < worldSize; rank++ {
		client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "market")
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })

		var consumers []*market.Consumer
		var fulfiller blackboard.Fulfiller
		var owned *market.Registry
		if rank < 2 {
			c, err := market.NewConsumer(consumerID(1, rank), "", 5000, 9)
			require.NoError(t, err)
			consumers = append(consumers, c)
		} else {
			fulfiller, owned = registry, registry
		}

		x, err := blackboard.NewExchange(client, blackboard.ExchangeConfig{
			Rank:           rank,
			WorldSize:      worldSize,
			PollInterval:   5 * time.Millisecond,
			BarrierTimeout: 5 * time.Second,
		}, fulfiller)
		require.NoError(t, err)

		recorder := &ledger.Recorder{}
		engine, err := NewEngine(Options{
			Rank:             rank,
			Instance:         "market",
			Exchange:         x,
			Registry:         owned,
			Consumers:        consumers,
			Cache:            market.NewCache(terms),
			Mode:             decision.ModeIndividual,
			Decision:         decision.DefaultParams(),
			SelfishThreshold: resolver.DefaultSelfishThreshold,
			Sink:             recorder,
		})
		require.NoError(t, err)
		ranks[rank] = rankEnv{engine: engine, recorder: recorder}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const ticks = 2
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range ranks {
		g.Go(func() error {
			for tick := uint64(1); tick <= ticks; tick++ {
				if _, err := r.engine.Step(gctx, tick); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// One attempt of 18 units per tick.
	assert.Equal(t, 1164.0, prod.Capacity())

	for rank := 0; rank < 2; rank++ {
		records := ranks[rank].recorder.Records()
		require.Len(t, records, ticks, "rank %d", rank)

		first := records[0]
		assert.Equal(t, blackboard.StatusSuccess, first.Status)
		assert.Equal(t, 1200.0, first.CapacityBefore)
		assert.Equal(t, 1182.0, first.CapacityAfter)
		assert.Equal(t, 18.0, first.PooledUsage)
		assert.InDelta(t, 0.808, first.ConsumerTrust, 1e-12)

		assert.Equal(t, 1164.0, records[1].CapacityAfter)
	}
	assert.Empty(t, ranks[2].recorder.Records())
}
