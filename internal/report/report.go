// Package report summarizes persisted runs: delivery tallies per producer,
// the latest trust checkpoint, and raw agreement export.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/arnaldoapp/gridtrust/internal/filter"
	"github.com/arnaldoapp/gridtrust/internal/persistence"
	"github.com/arnaldoapp/gridtrust/internal/timespec"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// OutputFormat specifies how a report is rendered.
type OutputFormat string

const (
	// OutputFormatDefault renders the tally and trust tables
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL dumps every agreement record as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ErrNoRuns is returned when the store holds no run to report on.
var ErrNoRuns = errors.New("no runs recorded")

// Store is the read side of persistence.Store used by reports.
type Store interface {
	LatestRun() (*persistence.Run, error)
	Run(runID string) (*persistence.Run, error)
	Runs() ([]persistence.Run, error)
	RunIDsWithPrefix(prefix string) ([]string, error)
	Agreements(runID string) ([]blackboard.AgreementRecord, error)
	AgreementCounts(runID string) ([]persistence.StatusCount, error)
	LoadTrust() ([]persistence.TrustRow, error)
}

// Request selects what a report covers.
type Request struct {
	RunID    string // Full id or a prefix of at least MinShortIDLength; empty selects the latest run
	Format   OutputFormat
	Criteria filter.Criteria
}

// Generate writes the report of one run to w.
func Generate(w io.Writer, store Store, req Request) error {
	if err := req.Criteria.Validate(); err != nil {
		return err
	}

	run, err := resolveRun(store, req.RunID)
	if err != nil {
		return err
	}

	switch req.Format {
	case OutputFormatJSONL:
		records, err := store.Agreements(run.RunID)
		if err != nil {
			return fmt.Errorf("failed to load agreements: %w", err)
		}
		return FormatJSONL(w, req.Criteria.Apply(records))

	case OutputFormatDefault, "":
		counts, err := countAgreements(store, run.RunID, &req.Criteria)
		if err != nil {
			return err
		}
		FormatCounts(w, run, counts)

		rows, err := store.LoadTrust()
		if err != nil {
			return fmt.Errorf("failed to load trust checkpoint: %w", err)
		}
		fmt.Fprintln(w)
		FormatTrustTable(w, rows)
		return nil

	default:
		return fmt.Errorf("unknown report format %q", req.Format)
	}
}

// ListRuns writes the runs started inside window. Returns how many were listed.
func ListRuns(w io.Writer, store Store, window timespec.Window) (int, error) {
	runs, err := store.Runs()
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}

	var selected []persistence.Run
	for _, r := range runs {
		started, err := r.Started()
		if err != nil {
			return 0, err
		}
		if window.Contains(started) {
			selected = append(selected, r)
		}
	}
	return FormatRuns(w, selected), nil
}

// countAgreements tallies in SQL, or in memory when filters are active.
func countAgreements(store Store, runID string, criteria *filter.Criteria) ([]persistence.StatusCount, error) {
	if !criteria.HasFilters() {
		counts, err := store.AgreementCounts(runID)
		if err != nil {
			return nil, fmt.Errorf("failed to count agreements: %w", err)
		}
		return counts, nil
	}

	records, err := store.Agreements(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agreements: %w", err)
	}

	var counts []persistence.StatusCount
	index := make(map[[2]string]int)
	for _, rec := range criteria.Apply(records) {
		key := [2]string{rec.ProducerName, string(rec.Status)}
		i, ok := index[key]
		if !ok {
			i = len(counts)
			index[key] = i
			counts = append(counts, persistence.StatusCount{ProducerName: rec.ProducerName, Status: string(rec.Status)})
		}
		counts[i].Count++
	}
	return counts, nil
}

func resolveRun(store Store, runID string) (*persistence.Run, error) {
	if runID == "" {
		run, err := store.LatestRun()
		if err != nil {
			return nil, fmt.Errorf("failed to look up run: %w", err)
		}
		if run == nil {
			return nil, ErrNoRuns
		}
		return run, nil
	}

	fullID, err := ResolveRunID(store, runID)
	if err != nil {
		return nil, err
	}
	run, err := store.Run(fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if run == nil {
		return nil, &NotFoundError{ShortID: runID}
	}
	return run, nil
}
