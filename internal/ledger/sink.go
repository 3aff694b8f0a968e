// Package ledger records agreement records: the outcome of each tick's
// collective transaction, one record per bound consumer.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Sink is an append-only destination for agreement records.
type Sink interface {
	Append(ctx context.Context, rec *blackboard.AgreementRecord) error

	// Flush makes every appended record durable. Called once per tick.
	Flush() error

	Close() error
}

// Multi fans every call out to all sinks. Errors from individual sinks are
// joined; a failing sink does not stop the others.
type Multi []Sink

var _ Sink = Multi(nil)

// Append appends rec to every sink.
func (m Multi) Append(ctx context.Context, rec *blackboard.AgreementRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every sink.
func (m Multi) Flush() error {
	var errs []error
	for _, s := range m {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps records in memory.
type Recorder struct {
	mu      sync.Mutex
	records []blackboard.AgreementRecord
	flushes int
}

var _ Sink = (*Recorder)(nil)

// Append stores a copy of rec.
func (r *Recorder) Append(_ context.Context, rec *blackboard.AgreementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

// Flush counts the call.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Records returns a copy of everything appended so far.
func (r *Recorder) Records() []blackboard.AgreementRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]blackboard.AgreementRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Flushes returns how many times Flush was called.
func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}
