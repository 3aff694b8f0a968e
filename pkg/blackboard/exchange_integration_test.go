//go:build integration

package blackboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/arnaldoapp/gridtrust/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestExchange_RealRedisManyTicks drives three ranks through several ticks
// against a real Redis server. Ranks 0 and 2 vote for Solar on rank 1.
func TestExchange_RealRedisManyTicks(t *testing.T) {
	redisURL := testutil.StartRedis(t)

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	const worldSize = 3
	const ticks = 5

	fulfiller := newStubFulfiller(map[AgentID]float64{solar: 100})
	exchanges := make([]*Exchange, worldSize)
	for rank := 0; rank < worldSize; rank++ {
		client, err := NewClient(opts, "integration")
		require.NoError(t, err)
		defer client.Close()

		var f Fulfiller
		if rank == solar.Rank {
			f = fulfiller
		}
		exchanges[rank], err = NewExchange(client, ExchangeConfig{
			Rank:           rank,
			WorldSize:      worldSize,
			PollInterval:   5 * time.Millisecond,
			BarrierTimeout: 10 * time.Second,
		}, f)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for rank, x := range exchanges {
		rank, x := rank, x
		g.Go(func() error {
			for tick := uint64(1); tick <= ticks; tick++ {
				var local []ProducerSnapshot
				if rank == solar.Rank {
					local = []ProducerSnapshot{{ID: solar, Name: "Solar", UnitCost: 2, Capacity: fulfiller.owned[solar]}}
				}
				var ballot *Ballot
				if rank != solar.Rank {
					ballot = NewBallot(tick, rank, map[AgentID]int{solar: 1}, 5)
				}
				_, _, outcome, err := playTick(gctx, x, tick, local, ballot)
				if err != nil {
					return err
				}
				if outcome == nil || outcome.Status != StatusSuccess {
					return fmt.Errorf("tick %d rank %d: expected success, got %+v", tick, rank, outcome)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 50.0, fulfiller.owned[solar])
}
