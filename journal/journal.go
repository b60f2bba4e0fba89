// Package journal records accepted state-changing submissions in Postgres
// for auditability. It is write-only on the serving path: poll reads always
// go to the ledger, never here.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

type Entry struct {
	Operation   string
	Signature   string
	Signer      string
	PollAddress string
	SubmittedAt time.Time
}

// Journal is nil-safe: a nil *Journal silently drops entries, so callers
// need no enabled/disabled branching.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

func Open(dsn string, logger zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach journal database: %w", err)
	}

	j := &Journal{db: db, logger: logger}
	if err := j.ensureSchema(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) ensureSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS submissions (
			id           BIGSERIAL PRIMARY KEY,
			operation    TEXT NOT NULL,
			signature    TEXT NOT NULL,
			signer       TEXT NOT NULL,
			poll_address TEXT NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create submissions table: %w", err)
	}
	return nil
}

// Record is best-effort: a journal failure is logged and swallowed, never
// surfaced to the client whose transaction already went through.
func (j *Journal) Record(ctx context.Context, e Entry) {
	if j == nil || j.db == nil {
		return
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO submissions (operation, signature, signer, poll_address, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.Operation, e.Signature, e.Signer, e.PollAddress, e.SubmittedAt)
	if err != nil {
		j.logger.Error().Err(err).
			Str("operation", e.Operation).
			Str("signature", e.Signature).
			Msg("failed to journal submission")
	}
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
