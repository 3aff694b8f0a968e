package ledger

import (
	"context"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Publisher broadcasts a record to live watchers. *blackboard.Client
// satisfies it.
type Publisher interface {
	PublishAgreement(ctx context.Context, rec *blackboard.AgreementRecord) error
}

// Events publishes each appended record.
type Events struct {
	pub Publisher
}

var _ Sink = (*Events)(nil)

// NewEvents wraps pub as a Sink.
func NewEvents(pub Publisher) *Events {
	return &Events{pub: pub}
}

// Append publishes rec.
func (e *Events) Append(ctx context.Context, rec *blackboard.AgreementRecord) error {
	return e.pub.PublishAgreement(ctx, rec)
}

// Flush is a no-op; publishing is immediate.
func (e *Events) Flush() error { return nil }

// Close does not close the publisher, which the caller owns.
func (e *Events) Close() error { return nil }
