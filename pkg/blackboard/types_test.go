package blackboard

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDString_RoundTrip(t *testing.T) {
	id := AgentID{LocalID: 7, Kind: KindProducer, Rank: 2}
	assert.Equal(t, "7:1:2", id.String())

	parsed, err := ParseAgentID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseAgentID_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "two parts", input: "1:1"},
		{name: "four parts", input: "1:1:0:3"},
		{name: "non numeric", input: "a:1:0"},
		{name: "unknown kind", input: "1:9:0"},
		{name: "negative rank", input: "1:1:-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAgentID(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestAgentIDLess_Ordering(t *testing.T) {
	ids := []AgentID{
		{LocalID: 2, Kind: KindProducer, Rank: 1},
		{LocalID: 1, Kind: KindProducer, Rank: 1},
		{LocalID: 9, Kind: KindConsumer, Rank: 1},
		{LocalID: 5, Kind: KindProducer, Rank: 0},
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	assert.Equal(t, []AgentID{
		{LocalID: 5, Kind: KindProducer, Rank: 0},
		{LocalID: 9, Kind: KindConsumer, Rank: 1},
		{LocalID: 1, Kind: KindProducer, Rank: 1},
		{LocalID: 2, Kind: KindProducer, Rank: 1},
	}, ids)

	assert.Equal(t, 0, ids[0].Compare(ids[0]))
	assert.Equal(t, -1, ids[0].Compare(ids[1]))
	assert.Equal(t, 1, ids[3].Compare(ids[2]))
}

func TestProducerSnapshotValidate(t *testing.T) {
	valid := func() ProducerSnapshot {
		return ProducerSnapshot{
			ID:       AgentID{LocalID: 1, Kind: KindProducer, Rank: 1},
			Name:     "Solar",
			UnitCost: 12,
			Capacity: 1200,
		}
	}

	t.Run("valid snapshot passes", func(t *testing.T) {
		s := valid()
		assert.NoError(t, s.Validate())
	})

	tests := []struct {
		name   string
		mutate func(s *ProducerSnapshot)
	}{
		{name: "consumer kind", mutate: func(s *ProducerSnapshot) { s.ID.Kind = KindConsumer }},
		{name: "missing name", mutate: func(s *ProducerSnapshot) { s.Name = "" }},
		{name: "negative cost", mutate: func(s *ProducerSnapshot) { s.UnitCost = -1 }},
		{name: "negative capacity", mutate: func(s *ProducerSnapshot) { s.Capacity = -0.5 }},
		{name: "NaN capacity", mutate: func(s *ProducerSnapshot) { s.Capacity = math.NaN() }},
		{name: "negative local id", mutate: func(s *ProducerSnapshot) { s.ID.LocalID = -3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedSnapshot))
		})
	}
}

func TestDeliveryRequestValidate(t *testing.T) {
	req := &DeliveryRequest{
		ProducerID: AgentID{LocalID: 1, Kind: KindProducer, Rank: 1},
		Amount:     9,
	}
	assert.NoError(t, req.Validate())

	req.Amount = -1
	assert.Error(t, req.Validate())

	req.Amount = 9
	req.ProducerID.Kind = KindConsumer
	assert.Error(t, req.Validate())
}

func TestDeliveryStatusValidate(t *testing.T) {
	assert.NoError(t, StatusSuccess.Validate())
	assert.NoError(t, StatusFailed.Validate())
	assert.Error(t, DeliveryStatus("Pending").Validate())
}

func TestMergeBallots(t *testing.T) {
	hydro := AgentID{LocalID: 1, Kind: KindProducer, Rank: 0}
	solar := AgentID{LocalID: 1, Kind: KindProducer, Rank: 2}

	ballots := []Ballot{
		*NewBallot(3, 1, map[AgentID]int{solar: 1}, 9),
		*NewBallot(3, 2, nil, 0),
		*NewBallot(3, 0, map[AgentID]int{solar: 1, hydro: 2}, 25),
	}

	merged := MergeBallots(3, ballots)
	assert.Equal(t, uint64(3), merged.Tick)
	assert.Equal(t, -1, merged.Rank)
	assert.Equal(t, 34.0, merged.Usage)
	assert.Equal(t, []VoteCount{
		{ProducerID: hydro, Count: 2},
		{ProducerID: solar, Count: 2},
	}, merged.Votes)
	assert.Equal(t, map[AgentID]int{hydro: 2, solar: 2}, merged.Counts())

	assert.Equal(t, 1, ballots[0].Rank, "input must not be reordered")
	assert.Empty(t, MergeBallots(3, nil).Votes)
}
