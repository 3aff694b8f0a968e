package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arnaldoapp/gridtrust/internal/persistence"
	"github.com/arnaldoapp/gridtrust/internal/printer"
	"github.com/arnaldoapp/gridtrust/internal/report"
	"github.com/arnaldoapp/gridtrust/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	reportDBPath  string
	reportRunID   string
	reportOutput  string
	reportList    bool
	reportSince   string
	reportUntil   string
	reportFilters filterFlags
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a persisted run",
	Long: `Print delivery counts per producer and the latest trust checkpoint
from a database written by 'gridtrust run --db'.

Output Formats:
  default - Tally and trust tables
  jsonl   - Every agreement record as line-delimited JSON

Time Specifications (--since/--until with --list):
  Duration: 1h, 30m, 2h45m (relative to now)
  RFC3339:  2026-10-18T13:00:00Z

Examples:
  gridtrust report --db gridtrust.db
  gridtrust report --db gridtrust.db --run 5f2b8c1e-... --output=jsonl
  gridtrust report --db gridtrust.db --status Failed --producer 'Wind*'
  gridtrust report --db gridtrust.db --list --since 24h`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDBPath, "db", "gridtrust.db", "SQLite file written by run --db")
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "Run id (default: latest run)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "default", "Output format (default or jsonl)")
	reportCmd.Flags().BoolVar(&reportList, "list", false, "List recorded runs instead of reporting on one")
	reportCmd.Flags().StringVar(&reportSince, "since", "", "With --list, runs started after this time")
	reportCmd.Flags().StringVar(&reportUntil, "until", "", "With --list, runs started before this time")
	reportFilters.register(reportCmd.Flags())
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	format := report.OutputFormat(reportOutput)
	if format != report.OutputFormatDefault && format != report.OutputFormatJSONL {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", reportOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	criteria, err := reportFilters.criteria()
	if err != nil {
		return printer.Error("invalid filter", err.Error(), nil)
	}

	window, err := timespec.ParseRange(reportSince, reportUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time range", err.Error(), []string{"Use a duration like 1h30m or an RFC3339 timestamp"})
	}

	if _, err := os.Stat(reportDBPath); err != nil {
		return printer.Error(
			"database not found",
			fmt.Sprintf("%s: %v", reportDBPath, err),
			[]string{"Record a run first:\n  gridtrust run --config params.yml --db " + reportDBPath},
		)
	}

	store, err := persistence.Open(reportDBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if reportList {
		_, err := report.ListRuns(os.Stdout, store, window)
		return err
	}

	req := report.Request{RunID: reportRunID, Format: format, Criteria: criteria}
	if err := report.Generate(os.Stdout, store, req); err != nil {
		if errors.Is(err, report.ErrNoRuns) {
			return printer.Error(
				"no runs recorded",
				fmt.Sprintf("%s holds no runs.", reportDBPath),
				[]string{"Record a run first:\n  gridtrust run --config params.yml --db " + reportDBPath},
			)
		}
		return printer.Error("report failed", err.Error(), nil)
	}
	return nil
}
