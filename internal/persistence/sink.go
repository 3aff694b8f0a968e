package persistence

import (
	"context"
	"sync"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// AgreementSink buffers a tick's records and commits them on Flush.
// It satisfies ledger.Sink.
type AgreementSink struct {
	store *Store
	runID string

	mu      sync.Mutex
	pending []blackboard.AgreementRecord
}

// NewAgreementSink writes records for runID into store.
func NewAgreementSink(store *Store, runID string) *AgreementSink {
	return &AgreementSink{store: store, runID: runID}
}

// Append buffers rec until the next Flush.
func (s *AgreementSink) Append(_ context.Context, rec *blackboard.AgreementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, *rec)
	return nil
}

// Flush commits the buffered records in one transaction.
func (s *AgreementSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveAgreements(s.runID, s.pending); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

// Close flushes what is left. The store stays open.
func (s *AgreementSink) Close() error {
	return s.Flush()
}
