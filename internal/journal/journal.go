// Package journal records analysis events of a dashboard session for later
// offline review. It is disabled unless a DSN is configured. The dashboard
// only writes to it: nothing recorded is ever loaded back, so a restarted
// session always starts with empty metrics and history, and device
// selections are never recorded.
package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one applied analysis event.
type Entry struct {
	ID              string
	SessionID       string
	Seq             int
	FillerWords     int
	SpeakingTime    int
	EngagementScore float64
	Questions       []string
	ReceivedAt      time.Time
}

// Recorder persists entries.
type Recorder interface {
	RecordAnalysis(ctx context.Context, e Entry) error
	Close() error
}

// Reader lists recorded entries. Used by tests and offline review only.
type Reader interface {
	EntriesForSession(ctx context.Context, sessionID string) ([]Entry, error)
}

// Store is a Recorder that can also read back.
type Store interface {
	Recorder
	Reader
}

// Nop discards every entry.
type Nop struct{}

func (Nop) RecordAnalysis(context.Context, Entry) error { return nil }
func (Nop) Close() error { return nil }

// Open picks a store for dsn: empty disables the journal, a postgres URL
// selects PostgreSQL, anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (Recorder, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return Nop{}, nil
	case isPostgres(dsn):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(ctx, dsn)
	}
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// DefaultPath returns a per-user SQLite location for the journal.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "SpeakerAssistant", "journal.sqlite")
}
