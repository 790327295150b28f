package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the journal in a shared PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_entries (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			filler_words INTEGER NOT NULL,
			speaking_time INTEGER NOT NULL,
			engagement_score DOUBLE PRECISION NOT NULL,
			questions TEXT[] NOT NULL DEFAULT '{}',
			received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_entries_session ON analysis_entries (session_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) RecordAnalysis(ctx context.Context, e Entry) error {
	e = withDefaults(e)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_entries
			(id, session_id, seq, filler_words, speaking_time, engagement_score, questions, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.SessionID, e.Seq, e.FillerWords, e.SpeakingTime, e.EngagementScore,
		e.Questions, e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) EntriesForSession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, seq, filler_words, speaking_time, engagement_score, questions, received_at
		 FROM analysis_entries WHERE session_id=$1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.FillerWords, &e.SpeakingTime,
			&e.EngagementScore, &e.Questions, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
