package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/arnaldoapp/gridtrust/internal/persistence"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// FormatCounts writes the per-producer delivery tally of a run.
// Returns the number of agreements counted.
func FormatCounts(w io.Writer, run *persistence.Run, counts []persistence.StatusCount) int {
	fmt.Fprintf(w, "Run %s (instance '%s', started %s, stop at tick %d):\n\n",
		formatRunID(run.RunID), run.Instance, run.StartedAt, run.StopAt)

	if len(counts) == 0 {
		fmt.Fprintf(w, "No agreements recorded\n")
		return 0
	}

	type tally struct {
		success, failed int
	}
	var order []string
	byProducer := make(map[string]*tally)
	for _, c := range counts {
		t, ok := byProducer[c.ProducerName]
		if !ok {
			t = &tally{}
			byProducer[c.ProducerName] = t
			order = append(order, c.ProducerName)
		}
		switch blackboard.DeliveryStatus(c.Status) {
		case blackboard.StatusSuccess:
			t.success += c.Count
		default:
			t.failed += c.Count
		}
	}

	fmt.Fprintf(w, "%-20s %-8s %-8s %s\n", "PRODUCER", "SUCCESS", "FAILED", "RATE")
	fmt.Fprintf(w, "%-20s %-8s %-8s %s\n", "--------------------", "--------", "--------", "------")

	total := 0
	for _, name := range order {
		t := byProducer[name]
		n := t.success + t.failed
		total += n
		fmt.Fprintf(w, "%-20s %-8d %-8d %s\n",
			formatName(name), t.success, t.failed, formatRate(t.success, n))
	}

	countMsg := "agreement"
	if total != 1 {
		countMsg = "agreements"
	}
	fmt.Fprintf(w, "\n%d %s recorded\n", total, countMsg)

	return total
}

// FormatTrustTable writes checkpointed trust scalars, one row per
// (consumer, producer) pair. Returns the number of rows written.
func FormatTrustTable(w io.Writer, rows []persistence.TrustRow) int {
	if len(rows) == 0 {
		fmt.Fprintf(w, "No trust checkpoint found\n")
		return 0
	}

	fmt.Fprintf(w, "%-12s %-12s %-8s %-8s %s\n", "CONSUMER", "PRODUCER", "TRUST", "TICK", "RUN")
	fmt.Fprintf(w, "%-12s %-12s %-8s %-8s %s\n", "------------", "------------", "--------", "--------", "--------")

	for _, r := range rows {
		fmt.Fprintf(w, "%-12s %-12s %-8s %-8d %s\n",
			r.ConsumerID,
			r.ProducerID,
			strconv.FormatFloat(r.Trust, 'f', 3, 64),
			r.Tick,
			formatRunID(r.RunID),
		)
	}

	return len(rows)
}

// FormatRuns writes one line per run. Returns the number of runs written.
func FormatRuns(w io.Writer, runs []persistence.Run) int {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs found\n")
		return 0
	}

	fmt.Fprintf(w, "%-36s %-16s %-20s %s\n", "RUN", "INSTANCE", "STARTED", "STOP AT")
	fmt.Fprintf(w, "%-36s %-16s %-20s %s\n",
		"------------------------------------", "----------------", "--------------------", "-------")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s %-16s %-20s %d\n", r.RunID, r.Instance, r.StartedAt, r.StopAt)
	}

	countMsg := "run"
	if len(runs) != 1 {
		countMsg = "runs"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(runs), countMsg)
	return len(runs)
}

// FormatJSONL writes agreement records as line-delimited JSON.
func FormatJSONL(w io.Writer, records []blackboard.AgreementRecord) error {
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("failed to marshal agreement to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// formatRunID truncates a run UUID to its first 8 characters.
func formatRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatName(name string) string {
	if name == "" {
		return "-"
	}
	if len(name) > 20 {
		return name[:17] + "..."
	}
	return name
}

func formatRate(success, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(success)/float64(total))
}
