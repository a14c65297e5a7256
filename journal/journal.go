// ════════════════════════════════════════════════════════════════════════════════════════════════
// Race Journal
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Block Hash Horse Race
// Component: SQLite record of every run and every block it consumed
//
// Description:
//   Optional persistence for races. Each run gets a KSUID, each applied block is stored with
//   its hash, usage multiplier and pace vector so a finished race can be audited or replayed
//   against the chain.
//
// Schema:
//   - race_runs:   one row per run (start height, threshold, outcome)
//   - race_blocks: one row per applied block, paces as a msgpack blob
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/segmentio/ksuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mjpowersjr/block-hash-experiments/debug"
	"github.com/mjpowersjr/block-hash-experiments/types"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RECORDS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Step is one applied block.
type Step struct {
	Height     uint64
	Hash       string
	Multiplier float64
	Paces      []int
	Mode       string
}

// Run summarises one race.
type Run struct {
	ID           string
	Start        uint64
	Threshold    float64
	Horses       int
	Endpoint     string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running or if the process died
	Winner       string
	WinnerHeight uint64
	Error        string
	Blocks       int
}

// Finished reports whether the run reached an outcome.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// DATABASE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Journal is a handle on the journal database.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal %s unreachable: %w", path, err)
	}
	if err := configureDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	debug.DropMessage("JOURNAL", "opened "+path)
	return &Journal{db: db}, nil
}

func configureDatabase(db *sql.DB) error {
	settings := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range settings {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func initializeSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS race_runs (
		id            TEXT PRIMARY KEY,
		start_height  INTEGER NOT NULL,
		threshold     REAL NOT NULL,
		horses        INTEGER NOT NULL,
		endpoint      TEXT NOT NULL,
		started_at    INTEGER NOT NULL,
		finished_at   INTEGER,
		winner        TEXT,
		winner_height INTEGER,
		error         TEXT
	) WITHOUT ROWID;

	CREATE TABLE IF NOT EXISTS race_blocks (
		run_id     TEXT NOT NULL REFERENCES race_runs(id) ON DELETE CASCADE,
		height     INTEGER NOT NULL,
		hash       TEXT NOT NULL,
		multiplier REAL NOT NULL,
		paces      BLOB NOT NULL,
		mode       TEXT NOT NULL,
		PRIMARY KEY (run_id, height)
	) WITHOUT ROWID;

	CREATE INDEX IF NOT EXISTS idx_race_runs_started ON race_runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WRITES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// StartRun records a new run and returns its id.
func (j *Journal) StartRun(start uint64, threshold float64, horses int, endpoint string) (string, error) {
	id := ksuid.New().String()
	_, err := j.db.Exec(
		`INSERT INTO race_runs (id, start_height, threshold, horses, endpoint, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, int64(start), threshold, horses, endpoint, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// RecordBlock stores one applied block. Recording the same height twice for
// a run is an error: the race never applies a height twice.
func (j *Journal) RecordBlock(runID string, step Step) error {
	paces, err := msgpack.Marshal(step.Paces)
	if err != nil {
		return fmt.Errorf("failed to encode paces: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT INTO race_blocks (run_id, height, hash, multiplier, paces, mode)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, int64(step.Height), step.Hash, step.Multiplier, paces, step.Mode)
	if err != nil {
		return fmt.Errorf("failed to record block %d: %w", step.Height, err)
	}
	return nil
}

// FinishRun stores the outcome. Exactly one of winner and runErr is set.
func (j *Journal) FinishRun(runID string, winner *types.Winner, runErr error) error {
	var (
		name   sql.NullString
		height sql.NullInt64
		msg    sql.NullString
	)
	if winner != nil {
		name = sql.NullString{String: winner.Name, Valid: true}
		height = sql.NullInt64{Int64: int64(winner.Height), Valid: true}
	}
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := j.db.Exec(
		`UPDATE race_runs SET finished_at = ?, winner = ?, winner_height = ?, error = ?
		 WHERE id = ? AND finished_at IS NULL`,
		time.Now().UnixNano(), name, height, msg, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotOpen)
	}
	return nil
}

// ErrRunNotOpen reports a FinishRun on an unknown or already finished run.
var ErrRunNotOpen = errors.New("run not open")

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// READS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(`
		SELECT r.id, r.start_height, r.threshold, r.horses, r.endpoint, r.started_at,
		       r.finished_at, r.winner, r.winner_height, r.error,
		       (SELECT COUNT(*) FROM race_blocks b WHERE b.run_id = r.id)
		FROM race_runs r
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			start    int64
			started  int64
			finished sql.NullInt64
			winner   sql.NullString
			wHeight  sql.NullInt64
			errMsg   sql.NullString
		)
		if err := rows.Scan(&r.ID, &start, &r.Threshold, &r.Horses, &r.Endpoint, &started,
			&finished, &winner, &wHeight, &errMsg, &r.Blocks); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Start = uint64(start)
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}
		r.Winner = winner.String
		r.WinnerHeight = uint64(wHeight.Int64)
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Steps returns the blocks applied in a run, in height order.
func (j *Journal) Steps(runID string) ([]Step, error) {
	rows, err := j.db.Query(
		`SELECT height, hash, multiplier, paces, mode FROM race_blocks
		 WHERE run_id = ? ORDER BY height`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			s      Step
			height int64
			blob   []byte
		)
		if err := rows.Scan(&height, &s.Hash, &s.Multiplier, &blob, &s.Mode); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		if err := msgpack.Unmarshal(blob, &s.Paces); err != nil {
			return nil, fmt.Errorf("block %d: failed to decode paces: %w", height, err)
		}
		s.Height = uint64(height)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
