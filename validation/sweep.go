package validation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/db"
)

// Sweeper clears committed matches that violate the college-state link
// invariant. It is the safety net behind the per-decision guard: any match
// whose (college, state) pair is absent from state_college_link is a false
// match regardless of which stage produced it.
type Sweeper struct {
	db  *db.DB
	log *zap.SugaredLogger
}

// NewSweeper builds a reconciliation sweeper.
func NewSweeper(d *db.DB, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{db: d, log: log}
}

// Run clears every false match in the table and returns the cleared count.
// Running it again immediately is a no-op.
func (s *Sweeper) Run(ctx context.Context, table string) (int64, error) {
	q := fmt.Sprintf(`
		UPDATE %s
		SET master_college_id = NULL,
		    college_match_score = NULL,
		    college_match_method = NULL
		WHERE master_college_id IS NOT NULL
		  AND master_state_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM state_college_link scl
			WHERE scl.college_id = %s.master_college_id
			  AND scl.state_id = %s.master_state_id
		  )`, table, table, table)

	res, err := s.db.Seat.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("reconciliation sweep: %w", err)
	}
	cleared, _ := res.RowsAffected()
	if cleared > 0 {
		s.log.Warnw("cleared false matches", "table", table, "count", cleared)
	}
	return cleared, nil
}
