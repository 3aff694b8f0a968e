package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "gridtrust.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(tick uint64, status blackboard.DeliveryStatus, producer string) blackboard.AgreementRecord {
	return blackboard.AgreementRecord{
		Tick:           tick,
		Status:         status,
		ProducerName:   producer,
		CapacityBefore: 1200,
		CapacityAfter:  1191,
		Trust:          0.808,
		ConsumerID:     "123:0:0",
		ProducerID:     "1:1:1",
		Usage:          9,
		Budget:         5000,
		UnitCost:       12,
		ConsumerTrust:  0.808,
		ScoreGap:       -6,
		Selfish:        true,
		PooledUsage:    18,
	}
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridtrust.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)

	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, s.BeginRun("run-a", "market", 10))
	require.NoError(t, s.BeginRun("run-b", "market", 20))
	assert.Error(t, s.BeginRun("run-a", "market", 10), "run ids are unique")

	latest, err = s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-b", latest.RunID)
	assert.Equal(t, uint64(20), latest.StopAt)

	run, err := s.Run("run-a")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, uint64(10), run.StopAt)

	run, err = s.Run("missing")
	require.NoError(t, err)
	assert.Nil(t, run)

	ids, err := s.RunIDsWithPrefix("run-")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, ids)

	ids, err = s.RunIDsWithPrefix("run_")
	require.NoError(t, err)
	assert.Empty(t, ids, "underscore is not a wildcard")

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-a", runs[0].RunID)
}

func TestAgreements(t *testing.T) {
	s := openTestStore(t)
	want := []blackboard.AgreementRecord{
		record(1, blackboard.StatusSuccess, "Solar"),
		record(2, blackboard.StatusFailed, "Solar"),
		record(3, blackboard.StatusSuccess, "Wind"),
	}
	require.NoError(t, s.SaveAgreements("run-a", want))
	require.NoError(t, s.SaveAgreements("run-b", want[:1]))
	require.NoError(t, s.SaveAgreements("run-a", nil))

	got, err := s.Agreements("run-a")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("agreements mismatch (-want +got):\n%s", diff)
	}

	counts, err := s.AgreementCounts("run-a")
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{
		{ProducerName: "Solar", Status: "Failed", Count: 1},
		{ProducerName: "Solar", Status: "Success", Count: 1},
		{ProducerName: "Wind", Status: "Success", Count: 1},
	}, counts)
}

func TestTrustCheckpoint(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveTrust([]TrustRow{
		{ConsumerID: "123:0:0", ProducerID: "1:1:1", Trust: 0.8, Tick: 5, RunID: "run-a"},
		{ConsumerID: "123:0:0", ProducerID: "2:1:1", Trust: 0.4, Tick: 5, RunID: "run-a"},
	}))
	require.NoError(t, s.SaveTrust([]TrustRow{
		{ConsumerID: "123:0:0", ProducerID: "1:1:1", Trust: 0.808, Tick: 6, RunID: "run-a"},
	}))

	rows, err := s.LoadTrust()
	require.NoError(t, err)
	assert.Equal(t, []TrustRow{
		{ConsumerID: "123:0:0", ProducerID: "1:1:1", Trust: 0.808, Tick: 6, RunID: "run-a"},
		{ConsumerID: "123:0:0", ProducerID: "2:1:1", Trust: 0.4, Tick: 5, RunID: "run-a"},
	}, rows)
}

func TestAgreementSink(t *testing.T) {
	s := openTestStore(t)
	sink := NewAgreementSink(s, "run-a")
	ctx := context.Background()

	rec := record(1, blackboard.StatusSuccess, "Solar")
	require.NoError(t, sink.Append(ctx, &rec))

	got, err := s.Agreements("run-a")
	require.NoError(t, err)
	assert.Empty(t, got, "records are only written on flush")

	require.NoError(t, sink.Flush())
	rec2 := record(2, blackboard.StatusFailed, "Solar")
	require.NoError(t, sink.Append(ctx, &rec2))
	require.NoError(t, sink.Close())

	got, err = s.Agreements("run-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[1].Tick)
	assert.True(t, got[0].Selfish)
}
