package orchestrator

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/arnaldoapp/gridtrust/internal/config"
	"github.com/arnaldoapp/gridtrust/internal/market"
	"github.com/arnaldoapp/gridtrust/internal/persistence"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// AllRanks selects every seed regardless of rank, for single-process runs.
const AllRanks = -1

// Agents are the authoritative agents one engine drives.
type Agents struct {
	Registry  *market.Registry
	Consumers []*market.Consumer
}

// BuildAgents constructs the producers and consumers seeded on rank, or on
// every rank when rank is AllRanks. Producers of one engine share a failure
// source seeded from the market seed and the rank.
func BuildAgents(p *config.Params, rank int) (*Agents, error) {
	seed := *p.Market.Seed
	if rank != AllRanks {
		seed += int64(rank)
	}
	rng := rand.New(rand.NewSource(seed))

	agents := &Agents{Registry: market.NewRegistry()}
	for _, s := range p.Producers {
		if rank != AllRanks && s.Rank != rank {
			continue
		}
		prod, err := market.NewProducer(p.ProducerParams(s), rng)
		if err != nil {
			return nil, err
		}
		if err := agents.Registry.Add(prod); err != nil {
			return nil, err
		}
	}

	for _, s := range p.Consumers {
		if rank != AllRanks && s.Rank != rank {
			continue
		}
		c, err := market.NewConsumer(s.AgentID(), s.Name, s.Budget, s.Usage)
		if err != nil {
			return nil, err
		}
		agents.Consumers = append(agents.Consumers, c)
	}

	return agents, nil
}

// SeedTrust primes the consumers' future mirrors with checkpointed trust.
// Rows for consumers this engine does not own are ignored.
func SeedTrust(consumers []*market.Consumer, rows []persistence.TrustRow) (int, error) {
	byID := make(map[string]*market.Consumer, len(consumers))
	for _, c := range consumers {
		byID[c.ID().String()] = c
	}

	seeded := 0
	for _, row := range rows {
		c, ok := byID[row.ConsumerID]
		if !ok {
			continue
		}
		producer, err := blackboard.ParseAgentID(row.ProducerID)
		if err != nil {
			return seeded, fmt.Errorf("checkpoint row for consumer %s: %w", row.ConsumerID, err)
		}
		c.SeedTrust(producer, row.Trust)
		seeded++
	}

	if seeded > 0 {
		log.Printf("[Orchestrator] Resumed %d trust relationships from checkpoint", seeded)
	}
	return seeded, nil
}

// TrustRows captures every (consumer, producer) trust scalar for a checkpoint.
func TrustRows(consumers []*market.Consumer, runID string, tick uint64) []persistence.TrustRow {
	var rows []persistence.TrustRow
	for _, c := range consumers {
		for _, m := range c.Mirrors() {
			rows = append(rows, persistence.TrustRow{
				ConsumerID: c.ID().String(),
				ProducerID: m.ID.String(),
				Trust:      m.TrustLevel,
				Tick:       tick,
				RunID:      runID,
			})
		}
	}
	return rows
}
