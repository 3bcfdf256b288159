package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/engaging-workplace/clarity/internal/transcript"
)

const (
	SummaryNone      = "none"
	SummaryPending   = "pending"
	SummaryRunning   = "running"
	SummaryCompleted = "completed"
	SummaryFailed    = "failed"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Interview is the local view of one interview session, built from the
// transcript records the server has accepted.
type Interview struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	LastAt        time.Time `json:"last_at"`
	Utterances    int       `json:"utterances"`
	Summary       string    `json:"summary"`
	SummaryStatus string    `json:"summary_status"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "clarity.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	statements := []struct {
		name string
		sql  string
	}{
		{"interviews table", `
			CREATE TABLE IF NOT EXISTS interviews (
				id TEXT PRIMARY KEY,
				started_at TEXT NOT NULL,
				last_at TEXT NOT NULL,
				summary TEXT NOT NULL DEFAULT '',
				summary_status TEXT NOT NULL DEFAULT 'none'
			);`},
		{"transcripts table", `
			CREATE TABLE IF NOT EXISTS transcripts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				speaker TEXT NOT NULL,
				transcript TEXT NOT NULL,
				timestamp TEXT NOT NULL,
				FOREIGN KEY(session_id) REFERENCES interviews(id) ON DELETE CASCADE
			);`},
		{"summary_requests table", `
			CREATE TABLE IF NOT EXISTS summary_requests (
				session_id TEXT NOT NULL,
				fingerprint TEXT NOT NULL,
				created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(session_id, fingerprint)
			);`},
		{"interviews index", "CREATE INDEX IF NOT EXISTS idx_interviews_started_at ON interviews(started_at)"},
		{"transcripts index", "CREATE INDEX IF NOT EXISTS idx_transcripts_session_id ON transcripts(session_id, timestamp)"},
	}
	for _, st := range statements {
		if _, err := s.db.Exec(st.sql); err != nil {
			return fmt.Errorf("create %s: %w", st.name, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Write stores one transcript record, creating its interview on first sight.
// It satisfies transcript.Sink so the store can mirror the warehouse.
func (s *SQLiteStore) Write(ctx context.Context, rec transcript.Record) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return errors.New("session id is required")
	}
	at, err := rec.Time()
	if err != nil {
		return fmt.Errorf("parse record timestamp: %w", err)
	}
	ts := at.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transcript insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO interviews(id, started_at, last_at) VALUES(?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			started_at = min(started_at, excluded.started_at),
			last_at = max(last_at, excluded.last_at)`,
		rec.SessionID, ts, ts,
	); err != nil {
		return fmt.Errorf("upsert interview %s: %w", rec.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transcripts(session_id, speaker, transcript, timestamp) VALUES(?, ?, ?, ?)`,
		rec.SessionID, string(rec.Speaker), strings.TrimSpace(rec.Transcript), ts,
	); err != nil {
		return fmt.Errorf("append transcript for session %s: %w", rec.SessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transcript for session %s: %w", rec.SessionID, err)
	}
	return nil
}

const interviewColumns = `
	i.id, i.started_at, i.last_at, i.summary, i.summary_status,
	(SELECT COUNT(*) FROM transcripts t WHERE t.session_id = i.id)`

func (s *SQLiteStore) GetInterviewsByDate(date string) ([]Interview, error) {
	rows, err := s.db.Query(
		`SELECT`+interviewColumns+`
		 FROM interviews i
		 WHERE substr(i.started_at, 1, 10) = ?
		 ORDER BY i.started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query interviews by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	interviews := make([]Interview, 0, 16)
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interview rows: %w", err)
	}

	return interviews, nil
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM interviews ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

// GetInterview returns sql.ErrNoRows (wrapped) for unknown ids.
func (s *SQLiteStore) GetInterview(id string) (Interview, error) {
	row := s.db.QueryRow(`SELECT`+interviewColumns+` FROM interviews i WHERE i.id = ?`, id)
	iv, err := scanInterview(row)
	if err != nil {
		return Interview{}, fmt.Errorf("query interview %s: %w", id, err)
	}
	return iv, nil
}

// GetTranscripts returns the interview's records in arrival order.
func (s *SQLiteStore) GetTranscripts(sessionID string) ([]transcript.Record, error) {
	rows, err := s.db.Query(
		`SELECT speaker, transcript, timestamp
		 FROM transcripts
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcripts for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]transcript.Record, 0, 32)
	for rows.Next() {
		rec := transcript.Record{SessionID: sessionID}
		var speaker string
		if err := rows.Scan(&speaker, &rec.Transcript, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transcript for session %s: %w", sessionID, err)
		}
		rec.Speaker = transcript.Speaker(speaker)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows for session %s: %w", sessionID, err)
	}

	return records, nil
}

func (s *SQLiteStore) UpdateSummary(sessionID, summary, status string) error {
	res, err := s.db.Exec(
		`UPDATE interviews SET summary = ?, summary_status = ? WHERE id = ?`,
		summary,
		status,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("update summary for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update summary rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// ClaimSummaryRequest records that a summary of this exact transcript was
// requested. It reports false when the same request was already claimed.
func (s *SQLiteStore) ClaimSummaryRequest(sessionID, fingerprint string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO summary_requests(session_id, fingerprint) VALUES(?, ?)`,
		sessionID,
		fingerprint,
	)
	if err != nil {
		return false, fmt.Errorf("claim summary request for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim summary rows affected: %w", err)
	}

	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(row rowScanner) (Interview, error) {
	var iv Interview
	var startedAt, lastAt string
	if err := row.Scan(&iv.ID, &startedAt, &lastAt, &iv.Summary, &iv.SummaryStatus, &iv.Utterances); err != nil {
		return Interview{}, fmt.Errorf("scan interview: %w", err)
	}

	var err error
	if iv.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Interview{}, fmt.Errorf("parse started_at: %w", err)
	}
	if iv.LastAt, err = time.Parse(time.RFC3339Nano, lastAt); err != nil {
		return Interview{}, fmt.Errorf("parse last_at: %w", err)
	}
	return iv, nil
}
