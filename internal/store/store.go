// Package store persists finalized transcripts, suggestion decks and
// two-stage run traces to a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
	"github.com/hubenschmidt/interview-assistant/internal/transcript"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending
// migrations. ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveTranscript stores a finalized segment, replacing any row with the same id.
func (s *Store) SaveTranscript(ctx context.Context, seg transcript.Segment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transcripts (tx_id, timestamp, text, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		seg.ID, seg.Timestamp, seg.Text, seg.Confidence, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", seg.ID, err)
	}
	return nil
}

// SaveSuggestions stores a whole deck in one transaction.
func (s *Store) SaveSuggestions(ctx context.Context, deck []pipeline.Suggestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO suggestions (id, tx_id, mode, summary, next_line, probe, why, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, sg := range deck {
		var probe sql.NullString
		if sg.Probe != nil {
			probe = sql.NullString{String: *sg.Probe, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			sg.ID, sg.TxID, string(sg.Mode), sg.Summary, sg.NextLine, probe, sg.Why, sg.CreatedAt,
		); err != nil {
			return fmt.Errorf("save suggestion %s: %w", sg.ID, err)
		}
	}
	return tx.Commit()
}

// Suggestions returns the deck stored for txID ordered by created_at.
func (s *Store) Suggestions(ctx context.Context, txID string) ([]pipeline.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_id, mode, summary, next_line, probe, why, created_at
		FROM suggestions
		WHERE tx_id = ?
		ORDER BY created_at ASC
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Suggestion
	for rows.Next() {
		var sg pipeline.Suggestion
		var m string
		var probe sql.NullString
		if err := rows.Scan(&sg.ID, &sg.TxID, &m, &sg.Summary, &sg.NextLine, &probe, &sg.Why, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		sg.Mode = mode.Mode(m)
		if probe.Valid {
			p := probe.String
			sg.Probe = &p
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// Transcript returns one stored segment, or nil if absent.
func (s *Store) Transcript(ctx context.Context, txID string) (*transcript.Segment, error) {
	var seg transcript.Segment
	err := s.db.QueryRowContext(ctx,
		`SELECT tx_id, timestamp, text, confidence FROM transcripts WHERE tx_id = ?`, txID,
	).Scan(&seg.ID, &seg.Timestamp, &seg.Text, &seg.Confidence)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return &seg, nil
}

// RecentTranscripts returns up to limit segments, newest first.
func (s *Store) RecentTranscripts(ctx context.Context, limit int) ([]transcript.Segment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, timestamp, text, confidence
		FROM transcripts
		ORDER BY created_at DESC, timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []transcript.Segment
	for rows.Next() {
		var seg transcript.Segment
		if err := rows.Scan(&seg.ID, &seg.Timestamp, &seg.Text, &seg.Confidence); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// Run is one persisted two-stage run.
type Run struct {
	ID         string    `json:"id"`
	TxID       string    `json:"tx_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Spans      []Span    `json:"spans,omitempty"`
}

// Span is one timed stage of a run.
type Span struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// CreateRun inserts a run together with its spans.
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, tx_id, started_at, duration_ms, status, error) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.TxID, r.StartedAt.UnixMilli(), r.DurationMs, r.Status, r.Error,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, sp := range r.Spans {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO spans (id, run_id, name, started_at, duration_ms, status, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sp.ID, r.ID, sp.Name, sp.StartedAt.UnixMilli(), sp.DurationMs, sp.Status, sp.Error,
		); err != nil {
			return fmt.Errorf("insert span: %w", err)
		}
	}
	return tx.Commit()
}

// RunsForTranscript returns the runs recorded for txID with their spans.
func (s *Store) RunsForTranscript(ctx context.Context, txID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_id, started_at, duration_ms, status, error
		FROM runs
		WHERE tx_id = ?
		ORDER BY started_at ASC
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.TxID, &started, &r.DurationMs, &r.Status, &r.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		spans, err := s.spans(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Spans = spans
	}
	return runs, nil
}

func (s *Store) spans(ctx context.Context, runID string) ([]Span, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, name, started_at, duration_ms, status, error
		FROM spans
		WHERE run_id = ?
		ORDER BY started_at ASC, name ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var sp Span
		var started int64
		if err := rows.Scan(&sp.ID, &sp.RunID, &sp.Name, &started, &sp.DurationMs, &sp.Status, &sp.Error); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		sp.StartedAt = time.UnixMilli(started)
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}
