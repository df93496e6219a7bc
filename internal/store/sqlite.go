package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteLog persists the call log in a single SQLite file.
type SQLiteLog struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create calllog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open calllog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure calllog: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			id          TEXT PRIMARY KEY,
			caller      TEXT NOT NULL,
			callee      TEXT NOT NULL,
			call_type   TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			answered_at INTEGER,
			ended_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS calls_ended_at ON calls(ended_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create calls table: %w", err)
	}
	log.Info().Str("module", "store.sqlite").Str("path", path).Msg("call log opened")
	return &SQLiteLog{db: db}, nil
}

func (s *SQLiteLog) Record(ctx context.Context, rec domain.CallRecord) error {
	var answered sql.NullInt64
	if rec.AnsweredAt != nil {
		answered = sql.NullInt64{Int64: rec.AnsweredAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO calls (id, caller, callee, call_type, outcome, started_at, answered_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Caller), string(rec.Callee), string(rec.Type), string(rec.Outcome),
		rec.StartedAt.UnixMilli(), answered, rec.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert call %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteLog) Recent(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caller, callee, call_type, outcome, started_at, answered_at, ended_at
		FROM calls ORDER BY ended_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var out []domain.CallRecord
	for rows.Next() {
		var (
			rec                               domain.CallRecord
			caller, callee, callType, outcome string
			startedAt, endedAt                int64
			answered                          sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &caller, &callee, &callType, &outcome, &startedAt, &answered, &endedAt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.Caller = domain.IdentityID(caller)
		rec.Callee = domain.IdentityID(callee)
		rec.Type = domain.CallType(callType)
		rec.Outcome = domain.CallOutcome(outcome)
		rec.StartedAt = time.UnixMilli(startedAt)
		rec.EndedAt = time.UnixMilli(endedAt)
		if answered.Valid {
			t := time.UnixMilli(answered.Int64)
			rec.AnsweredAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteLog) Close() error {
	return s.db.Close()
}
