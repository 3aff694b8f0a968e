// Package watch streams agreement events published by running ranks.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/arnaldoapp/gridtrust/internal/filter"
	"github.com/arnaldoapp/gridtrust/internal/printer"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// OutputFormat specifies how streamed agreements are rendered.
type OutputFormat string

const (
	// OutputFormatDefault renders one human-readable line per agreement
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON renders line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value onto an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Subscriber is the part of the blackboard client watch depends on.
type Subscriber interface {
	SubscribeAgreements(ctx context.Context) (*blackboard.AgreementSubscription, error)
}

// StreamAgreements writes every agreement event matching criteria to w until
// ctx is cancelled or the subscription ends. Malformed events are logged and
// skipped.
func StreamAgreements(ctx context.Context, sub Subscriber, criteria filter.Criteria, format OutputFormat, w io.Writer) error {
	subscription, err := sub.SubscribeAgreements(ctx)
	if err != nil {
		return err
	}
	defer subscription.Close()

	events := subscription.Events()
	errs := subscription.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-events:
			if !ok {
				return nil
			}
			if !criteria.Matches(rec) {
				continue
			}
			if err := writeAgreement(w, rec, format); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[Watch] Skipping event: %v", err)
		}
	}
}

func writeAgreement(w io.Writer, rec *blackboard.AgreementRecord, format OutputFormat) error {
	if format == OutputFormatJSON {
		return json.NewEncoder(w).Encode(rec)
	}
	_, err := fmt.Fprintln(w, FormatAgreement(rec))
	return err
}

// FormatAgreement renders rec in the default output format.
func FormatAgreement(rec *blackboard.AgreementRecord) string {
	line := fmt.Sprintf("tick %-6d consumer %-10s %s",
		rec.Tick,
		rec.ConsumerID,
		printer.FormatTickStatus(string(rec.Status), rec.ProducerName, rec.CapacityAfter, rec.ConsumerTrust),
	)
	if rec.Selfish {
		line += " (selfish)"
	}
	return line
}
