package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several runs can coexist on a single Redis server.
//
// Key pattern: gridtrust:{instance_name}:tick:{tick}:{entity}
// Channel pattern: gridtrust:{instance_name}:{event_type}_events

// TickSnapshotIndexKey returns the Redis key for the set of producer ids
// published during a tick.
// Pattern: gridtrust:{instance_name}:tick:{tick}:snapshots
func TickSnapshotIndexKey(instanceName string, tick uint64) string {
	return fmt.Sprintf("gridtrust:%s:tick:%d:snapshots", instanceName, tick)
}

// SnapshotKey returns the Redis key for one producer snapshot hash.
// Pattern: gridtrust:{instance_name}:tick:{tick}:producer:{agent_id}
func SnapshotKey(instanceName string, tick uint64, id AgentID) string {
	return fmt.Sprintf("gridtrust:%s:tick:%d:producer:%s", instanceName, tick, id)
}

// BarrierKey returns the Redis key for the set of ranks that reached a
// barrier phase of a tick.
// Pattern: gridtrust:{instance_name}:tick:{tick}:barrier:{phase}
func BarrierKey(instanceName string, tick uint64, phase string) string {
	return fmt.Sprintf("gridtrust:%s:tick:%d:barrier:%s", instanceName, tick, phase)
}

// TickBallotsKey returns the Redis key for the ballots hash of a tick
// (field = rank, value = ballot JSON).
// Pattern: gridtrust:{instance_name}:tick:{tick}:ballots
func TickBallotsKey(instanceName string, tick uint64) string {
	return fmt.Sprintf("gridtrust:%s:tick:%d:ballots", instanceName, tick)
}

// TickOutcomeKey returns the Redis key holding the outcome JSON of the tick's
// single delivery attempt.
// Pattern: gridtrust:{instance_name}:tick:{tick}:outcome
func TickOutcomeKey(instanceName string, tick uint64) string {
	return fmt.Sprintf("gridtrust:%s:tick:%d:outcome", instanceName, tick)
}

// AgreementEventsChannel returns the Pub/Sub channel name for agreement events.
// Pattern: gridtrust:{instance_name}:agreement_events
func AgreementEventsChannel(instanceName string) string {
	return fmt.Sprintf("gridtrust:%s:agreement_events", instanceName)
}
