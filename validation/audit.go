package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seatmatrix/matchlink/db"
)

// Auditor appends every committed match to match_audit so runs can be
// replayed and bad commits traced back to the stage and model that made
// them. Audit writes are best-effort relative to the match itself.
type Auditor struct {
	db    *db.DB
	RunID string
}

// NewAuditor creates an auditor with a fresh run id and makes sure the
// audit table exists.
func NewAuditor(ctx context.Context, d *db.DB) (*Auditor, error) {
	a := &Auditor{db: d, RunID: uuid.NewString()}
	if err := a.ensureTable(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Auditor) ensureTable(ctx context.Context) error {
	_, err := a.db.Seat.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS match_audit (
			run_id      TEXT NOT NULL,
			record_id   TEXT NOT NULL,
			college_id  TEXT,
			method      TEXT NOT NULL,
			score       REAL,
			detail      TEXT,
			created_at  TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating match_audit: %w", err)
	}
	return nil
}

// LogCommit records an applied match.
func (a *Auditor) LogCommit(ctx context.Context, c db.Commit, detail string) error {
	q := a.db.Rebind(`
		INSERT INTO match_audit (run_id, record_id, college_id, method, score, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	now := time.Now().UTC()
	for _, id := range c.IDs {
		if _, err := a.db.Seat.ExecContext(ctx, q, a.RunID, id, c.CollegeID, c.Method, c.Score, detail, now); err != nil {
			return fmt.Errorf("writing audit row for %s: %w", id, err)
		}
	}
	return nil
}

// LogRejection records a vetoed proposal with its structured reason.
func (a *Auditor) LogRejection(ctx context.Context, recordID, collegeID string, rej *Rejection) error {
	q := a.db.Rebind(`
		INSERT INTO match_audit (run_id, record_id, college_id, method, score, detail, created_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?)`)
	method := "rejected"
	if rej.Flag != "" {
		method = rej.Flag
	}
	_, err := a.db.Seat.ExecContext(ctx, q, a.RunID, recordID, collegeID, method, rej.Reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing rejection audit row: %w", err)
	}
	return nil
}
