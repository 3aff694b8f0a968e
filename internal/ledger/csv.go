package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Header is the fixed column order of the agreement CSV.
var Header = []string{
	"tick",
	"status",
	"producer_name",
	"capacity_before",
	"capacity_after",
	"trust",
	"consumer_id",
	"producer_id",
	"usage",
	"budget",
	"unit_cost",
	"consumer_trust",
	"score_gap",
}

// CSV writes agreement records as CSV rows.
type CSV struct {
	f *os.File
	w *csv.Writer
}

var _ Sink = (*CSV)(nil)

// CreateCSV truncates or creates path and writes the header row.
func CreateCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create agreement log: %w", err)
	}

	s := &CSV{f: f, w: csv.NewWriter(f)}
	if err := s.w.Write(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write agreement log header: %w", err)
	}
	if err := s.Flush(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Append writes one row.
func (s *CSV) Append(_ context.Context, rec *blackboard.AgreementRecord) error {
	if err := s.w.Write(Row(rec)); err != nil {
		return fmt.Errorf("failed to write agreement row for tick %d: %w", rec.Tick, err)
	}
	return nil
}

// Flush pushes buffered rows to the file.
func (s *CSV) Flush() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush agreement log: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *CSV) Close() error {
	flushErr := s.Flush()
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("failed to close agreement log: %w", err)
	}
	return flushErr
}

// Row renders rec in Header order.
func Row(rec *blackboard.AgreementRecord) []string {
	return []string{
		strconv.FormatUint(rec.Tick, 10),
		string(rec.Status),
		rec.ProducerName,
		formatFloat(rec.CapacityBefore),
		formatFloat(rec.CapacityAfter),
		formatFloat(rec.Trust),
		rec.ConsumerID,
		rec.ProducerID,
		formatFloat(rec.Usage),
		formatFloat(rec.Budget),
		formatFloat(rec.UnitCost),
		formatFloat(rec.ConsumerTrust),
		formatFloat(rec.ScoreGap),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
