package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_entries (
		id TEXT PRIMARY KEY,
		sessionId TEXT NOT NULL,
		seq INTEGER NOT NULL,
		fillerWords INTEGER NOT NULL,
		speakingTime INTEGER NOT NULL,
		engagementScore REAL NOT NULL,
		questions TEXT NOT NULL DEFAULT '[]',
		receivedAt REAL NOT NULL,
		UNIQUE(sessionId, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_entries_session ON analysis_entries (sessionId, seq)`,
}

// SQLiteStore keeps the journal in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the journal at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordAnalysis(ctx context.Context, e Entry) error {
	e = withDefaults(e)
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_entries
			(id, sessionId, seq, fillerWords, speakingTime, engagementScore, questions, receivedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SessionID, e.Seq, e.FillerWords, e.SpeakingTime, e.EngagementScore,
		string(questions), unixFromTime(e.ReceivedAt))
	if err != nil {
		return fmt.Errorf("insert analysis entry: %w", err)
	}
	return nil
}

// EntriesForSession returns a session's entries ordered by sequence number.
func (s *SQLiteStore) EntriesForSession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sessionId, seq, fillerWords, speakingTime, engagementScore, questions, receivedAt
		FROM analysis_entries
		WHERE sessionId = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var questions string
		var receivedAt float64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.FillerWords, &e.SpeakingTime,
			&e.EngagementScore, &questions, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(questions), &e.Questions); err != nil {
			return nil, fmt.Errorf("decode questions of %s: %w", e.ID, err)
		}
		e.ReceivedAt = timeFromUnix(receivedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func withDefaults(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	if e.Questions == nil {
		e.Questions = []string{}
	}
	return e
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
