// Package persistence stores agreement records and trust checkpoints in
// SQLite.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
)

// Store wraps a SQLite connection.
type Store struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Ranks of one process share the store; SQLite takes one writer at a time.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		instance TEXT NOT NULL,
		started_at TEXT NOT NULL,
		stop_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agreements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		status TEXT NOT NULL,
		producer_name TEXT NOT NULL,
		capacity_before REAL NOT NULL,
		capacity_after REAL NOT NULL,
		trust REAL NOT NULL,
		consumer_id TEXT NOT NULL,
		producer_id TEXT NOT NULL,
		usage REAL NOT NULL,
		budget REAL NOT NULL,
		unit_cost REAL NOT NULL,
		consumer_trust REAL NOT NULL,
		score_gap REAL NOT NULL,
		selfish INTEGER NOT NULL,
		pooled_usage REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trust (
		consumer_id TEXT NOT NULL,
		producer_id TEXT NOT NULL,
		trust REAL NOT NULL,
		tick INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		PRIMARY KEY (consumer_id, producer_id)
	);

	CREATE INDEX IF NOT EXISTS idx_agreements_run_tick ON agreements(run_id, tick);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Run describes one simulation run.
type Run struct {
	RunID     string `db:"run_id"`
	Instance  string `db:"instance"`
	StartedAt string `db:"started_at"`
	StopAt    uint64 `db:"stop_at"`
}

// Started parses the run's start time.
func (r Run) Started() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, r.StartedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("run %s has a malformed start time: %w", r.RunID, err)
	}
	return t, nil
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(runID, instance string, stopAt uint64) error {
	_, err := s.conn.Exec(
		"INSERT INTO runs (run_id, instance, started_at, stop_at) VALUES (?, ?, ?, ?)",
		runID, instance, time.Now().UTC().Format(time.RFC3339), stopAt,
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", runID, err)
	}
	return nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (*Run, error) {
	var r Run
	err := s.conn.Get(&r, "SELECT run_id, instance, started_at, stop_at FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Runs returns every run, oldest first.
func (s *Store) Runs() ([]Run, error) {
	var out []Run
	err := s.conn.Select(&out, "SELECT run_id, instance, started_at, stop_at FROM runs ORDER BY started_at, rowid")
	return out, err
}

// RunIDsWithPrefix returns the ids of runs starting with prefix, sorted.
func (s *Store) RunIDsWithPrefix(prefix string) ([]string, error) {
	var out []string
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)
	err := s.conn.Select(&out, `SELECT run_id FROM runs WHERE run_id LIKE ? ESCAPE '\' ORDER BY run_id`, escaped+"%")
	return out, err
}

// Run returns the run with the given id, or nil when there is none.
func (s *Store) Run(runID string) (*Run, error) {
	var r Run
	err := s.conn.Get(&r, "SELECT run_id, instance, started_at, stop_at FROM runs WHERE run_id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type agreementRow struct {
	RunID string `db:"run_id"`
	blackboard.AgreementRecord
}

// SaveAgreements appends records of one run in a single transaction.
func (s *Store) SaveAgreements(runID string, records []blackboard.AgreementRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err := tx.NamedExec(`INSERT INTO agreements
			(run_id, tick, status, producer_name, capacity_before, capacity_after, trust,
			 consumer_id, producer_id, usage, budget, unit_cost, consumer_trust, score_gap,
			 selfish, pooled_usage)
			VALUES (:run_id, :tick, :status, :producer_name, :capacity_before, :capacity_after, :trust,
			 :consumer_id, :producer_id, :usage, :budget, :unit_cost, :consumer_trust, :score_gap,
			 :selfish, :pooled_usage)`,
			agreementRow{RunID: runID, AgreementRecord: rec})
		if err != nil {
			return fmt.Errorf("save agreement for tick %d: %w", rec.Tick, err)
		}
	}

	return tx.Commit()
}

// Agreements returns every record of a run in insertion order.
func (s *Store) Agreements(runID string) ([]blackboard.AgreementRecord, error) {
	var out []blackboard.AgreementRecord
	err := s.conn.Select(&out,
		`SELECT tick, status, producer_name, capacity_before, capacity_after, trust,
			consumer_id, producer_id, usage, budget, unit_cost, consumer_trust, score_gap,
			selfish, pooled_usage
		 FROM agreements WHERE run_id = ? ORDER BY id`,
		runID,
	)
	return out, err
}

// StatusCount is the number of records per producer and status.
type StatusCount struct {
	ProducerName string `db:"producer_name"`
	Status       string `db:"status"`
	Count        int    `db:"n"`
}

// AgreementCounts groups a run's records by producer and status.
func (s *Store) AgreementCounts(runID string) ([]StatusCount, error) {
	var out []StatusCount
	err := s.conn.Select(&out,
		`SELECT producer_name, status, COUNT(*) AS n FROM agreements
		 WHERE run_id = ? GROUP BY producer_name, status ORDER BY producer_name, status`,
		runID,
	)
	return out, err
}

// TrustRow is one checkpointed (consumer, producer) trust scalar.
type TrustRow struct {
	ConsumerID string  `db:"consumer_id"`
	ProducerID string  `db:"producer_id"`
	Trust      float64 `db:"trust"`
	Tick       uint64  `db:"tick"`
	RunID      string  `db:"run_id"`
}

// SaveTrust upserts trust rows. Only the latest value per pair is kept.
func (s *Store) SaveTrust(rows []TrustRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(`INSERT OR REPLACE INTO trust
		(consumer_id, producer_id, trust, tick, run_id)
		VALUES (:consumer_id, :producer_id, :trust, :tick, :run_id)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r); err != nil {
			return fmt.Errorf("save trust %s -> %s: %w", r.ConsumerID, r.ProducerID, err)
		}
	}

	return tx.Commit()
}

// LoadTrust returns every checkpointed pair ordered by consumer, then producer.
func (s *Store) LoadTrust() ([]TrustRow, error) {
	var out []TrustRow
	err := s.conn.Select(&out,
		"SELECT consumer_id, producer_id, trust, tick, run_id FROM trust ORDER BY consumer_id, producer_id")
	return out, err
}
