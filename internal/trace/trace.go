// Package trace persists simulator runs to SQLite, recording every poll of
// every workload process.
package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

type (
	// Store manages the trace database.
	Store struct {
		db *sql.DB
	}

	// Run buffers records for a single simulator run, which are written on
	// Flush, or Finish. Run is not safe for concurrent use.
	Run struct {
		ID      uuid.UUID
		store   *Store
		pending []Record
	}

	// Record is a single poll.
	Record struct {
		Frame       uint64
		Segment     string
		Name        string
		Handle      string
		Now         time.Duration
		Instruction string
		Err         string
	}

	// RunSummary describes a run. FinishedAt is the zero value if the run
	// did not finish.
	RunSummary struct {
		ID         uuid.UUID
		Workload   string
		StartedAt  time.Time
		FinishedAt time.Time
		Frames     uint64
		Records    int
	}
)

// flushThreshold bounds the number of buffered records per Run.
const flushThreshold = 1024

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		workload    TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		finished_at TEXT,
		frames      INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS polls (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id),
		frame       INTEGER NOT NULL,
		segment     TEXT NOT NULL,
		name        TEXT NOT NULL,
		handle      TEXT NOT NULL,
		now_ns      INTEGER NOT NULL,
		instruction TEXT NOT NULL,
		error       TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_polls_run ON polls(run_id, id);
	CREATE INDEX IF NOT EXISTS idx_polls_name ON polls(run_id, name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun records the start of a run, identified by a new random UUID.
func (s *Store) BeginRun(ctx context.Context, workload string, startedAt time.Time) (*Run, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workload, started_at) VALUES (?, ?, ?)`,
		id.String(), workload, startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return &Run{ID: id, store: s}, nil
}

// Add buffers a record, flushing if the buffer is full.
func (r *Run) Add(ctx context.Context, rec Record) error {
	r.pending = append(r.pending, rec)
	if len(r.pending) >= flushThreshold {
		return r.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered records, in a single transaction.
func (r *Run) Flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO polls (run_id, frame, segment, name, handle, now_ns, instruction, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	defer stmt.Close()

	id := r.ID.String()
	for _, rec := range r.pending {
		var errText sql.NullString
		if rec.Err != `` {
			errText = sql.NullString{String: rec.Err, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			id, int64(rec.Frame), rec.Segment, rec.Name, rec.Handle, int64(rec.Now), rec.Instruction, errText,
		); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	clear(r.pending)
	r.pending = r.pending[:0]
	return nil
}

// Finish flushes, then records the end of the run.
func (r *Run) Finish(ctx context.Context, frames uint64, finishedAt time.Time) error {
	if err := r.Flush(ctx); err != nil {
		return err
	}
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, frames = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano), int64(frames), r.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Runs lists every run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.workload, r.started_at, r.finished_at, r.frames,
		        (SELECT COUNT(*) FROM polls p WHERE p.run_id = r.id)
		 FROM runs r ORDER BY r.started_at, r.rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RunSummary
	for rows.Next() {
		var (
			summary     RunSummary
			id, started string
			finished    sql.NullString
			frames      int64
		)
		if err := rows.Scan(&id, &summary.Workload, &started, &finished, &frames, &summary.Records); err != nil {
			return nil, err
		}
		if summary.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id: %w", err)
		}
		if summary.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("started_at: %w", err)
		}
		if finished.Valid {
			if summary.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
				return nil, fmt.Errorf("finished_at: %w", err)
			}
		}
		summary.Frames = uint64(frames)
		result = append(result, summary)
	}
	return result, rows.Err()
}

// Records returns every flushed record of the run, in insertion order.
func (s *Store) Records(ctx context.Context, runID uuid.UUID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, segment, name, handle, now_ns, instruction, error
		 FROM polls WHERE run_id = ? ORDER BY id`,
		runID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var (
			rec     Record
			frame   int64
			now     int64
			errText sql.NullString
		)
		if err := rows.Scan(&frame, &rec.Segment, &rec.Name, &rec.Handle, &now, &rec.Instruction, &errText); err != nil {
			return nil, err
		}
		rec.Frame = uint64(frame)
		rec.Now = time.Duration(now)
		rec.Err = errText.String
		result = append(result, rec)
	}
	return result, rows.Err()
}

// PollCounts returns the number of flushed records per process name.
func (s *Store) PollCounts(ctx context.Context, runID uuid.UUID) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COUNT(*) FROM polls WHERE run_id = ? GROUP BY name`,
		runID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		result[name] = count
	}
	return result, rows.Err()
}
