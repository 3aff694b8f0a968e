// Package blackboard provides the wire types and the Redis-backed exchange
// that gridtrust ranks use to share producer state each tick.
//
// # Overview
//
// Every rank (process) of a run owns a disjoint set of agents. Producers are
// authoritative only on the rank that created them; every other rank sees a
// snapshot of their public fields, written to the blackboard once per tick.
// The blackboard is the shared workspace where those snapshots, delivery
// requests and delivery outcomes meet.
//
// # Tick protocol
//
// All ranks execute ticks in lockstep. Within tick N each rank:
//
//  1. writes snapshots of its own producers and joins the "sync" barrier
//  2. reads every other rank's snapshots for tick N
//  3. optionally writes one delivery request and joins the "request" barrier
//  4. fulfils requests addressed to producers it owns and joins the "outcome" barrier
//  5. reads the outcome of its own request
//
// A barrier is a per-tick Redis set of arrived ranks, polled until its size
// equals the world size.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several runs can share a Redis server. Per-tick keys carry a TTL.
//
// # Usage Example
//
//	client, err := blackboard.NewClient(&redis.Options{Addr: "localhost:6379"}, "run-1")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	exchange, err := blackboard.NewExchange(client, blackboard.ExchangeConfig{
//		Rank:      0,
//		WorldSize: 2,
//	}, registry)
//	remote, err := exchange.Synchronize(ctx, tick, registry.Snapshots())
package blackboard
