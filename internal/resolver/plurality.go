// Package resolver reconciles the consumers' independent choices into the
// single producer the world transacts with in a tick, and flags consumers whose
// own pick was materially better than the collective one.
package resolver

import (
	"sort"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// DefaultSelfishThreshold is the score gap below which a consumer counts as
// selfish.
const DefaultSelfishThreshold = -4.0

// Vote is one consumer's pick for a tick. A vote with Cast unset is the
// "no producer available" vote and does not count toward the plurality.
type Vote struct {
	Consumer blackboard.AgentID
	Producer blackboard.AgentID
	Cast     bool
}

// Count tallies the cast votes per producer.
func Count(votes []Vote) map[blackboard.AgentID]int {
	counts := make(map[blackboard.AgentID]int)
	for _, v := range votes {
		if v.Cast {
			counts[v.Producer]++
		}
	}
	return counts
}

// Leader returns the producer with the most votes. Ties go to the lowest
// AgentID. ok is false when nobody voted.
func Leader(counts map[blackboard.AgentID]int) (winner blackboard.AgentID, ok bool) {
	best := 0
	var leaders []blackboard.AgentID
	for id, n := range counts {
		switch {
		case n > best:
			best = n
			leaders = append(leaders[:0], id)
		case n == best && n > 0:
			leaders = append(leaders, id)
		}
	}
	if best == 0 {
		return blackboard.AgentID{}, false
	}
	return SelectWinner(leaders), true
}

// SelectWinner breaks a tie deterministically by returning the lowest
// AgentID. Panics if candidates is empty (caller must check).
func SelectWinner(candidates []blackboard.AgentID) blackboard.AgentID {
	if len(candidates) == 0 {
		panic("SelectWinner called with empty candidates list")
	}

	if len(candidates) == 1 {
		return candidates[0]
	}

	sorted := make([]blackboard.AgentID, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	return sorted[0]
}

// Bound returns the consumers that cast a vote. They are the consumers the
// tick's transaction binds.
func Bound(votes []Vote) []blackboard.AgentID {
	var out []blackboard.AgentID
	for _, v := range votes {
		if v.Cast {
			out = append(out, v.Consumer)
		}
	}
	return out
}
