package filter

import (
	"testing"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
	"github.com/stretchr/testify/assert"
)

func rec(tick uint64, producer string, status blackboard.DeliveryStatus, selfish bool) blackboard.AgreementRecord {
	return blackboard.AgreementRecord{
		Tick:         tick,
		ProducerName: producer,
		Status:       status,
		ConsumerID:   "123:0:0",
		Selfish:      selfish,
	}
}

func TestCriteria_Matches(t *testing.T) {
	r := rec(5, "Solar-North", blackboard.StatusFailed, true)

	tests := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{"empty criteria match all", Criteria{}, true},
		{"tick inside range", Criteria{FromTick: 5, ToTick: 5}, true},
		{"tick before range", Criteria{FromTick: 6}, false},
		{"tick after range", Criteria{ToTick: 4}, false},
		{"producer glob", Criteria{ProducerGlob: "Solar-*"}, true},
		{"producer glob mismatch", Criteria{ProducerGlob: "Wind*"}, false},
		{"consumer mismatch", Criteria{ConsumerID: "1:0:0"}, false},
		{"status", Criteria{Status: blackboard.StatusFailed}, true},
		{"status mismatch", Criteria{Status: blackboard.StatusSuccess}, false},
		{"selfish only", Criteria{SelfishOnly: true}, true},
		{"all together", Criteria{FromTick: 1, ProducerGlob: "Solar*", ConsumerID: "123:0:0", Status: blackboard.StatusFailed}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(&r))
		})
	}
}

func TestCriteria_Validate(t *testing.T) {
	assert.NoError(t, (&Criteria{ProducerGlob: "S*", Status: blackboard.StatusSuccess}).Validate())
	assert.Error(t, (&Criteria{ProducerGlob: "["}).Validate())
	assert.Error(t, (&Criteria{Status: "Pending"}).Validate())
	assert.Error(t, (&Criteria{FromTick: 9, ToTick: 3}).Validate())
}

func TestCriteria_Apply(t *testing.T) {
	records := []blackboard.AgreementRecord{
		rec(1, "Solar", blackboard.StatusSuccess, false),
		rec(2, "Wind", blackboard.StatusFailed, false),
		rec(3, "Solar", blackboard.StatusFailed, true),
	}

	c := Criteria{}
	assert.False(t, c.HasFilters())
	assert.Len(t, c.Apply(records), 3)

	c = Criteria{ProducerGlob: "Solar"}
	assert.True(t, c.HasFilters())
	got := c.Apply(records)
	assert.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[1].Tick)

	c = Criteria{Status: blackboard.StatusFailed, SelfishOnly: true}
	assert.Len(t, c.Apply(records), 1)
}
