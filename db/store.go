package db

import (
	"context"
	"fmt"

	"github.com/seatmatrix/matchlink/models"
)

// Commit is one accepted match ready to be written. IDs may cover several
// seat rows when upstream grouped identical records.
type Commit struct {
	IDs       []string
	CollegeID string
	Score     float64
	Method    string
}

// seatColumns is the full working-row projection the stages operate on.
var seatColumns = []string{
	"id", "state", "course_name", "college_name", "address",
	"normalized_state", "normalized_course_name",
	"normalized_college_name", "normalized_address",
	"course_type", "master_state_id", "master_course_id",
	"master_college_id", "college_match_score", "college_match_method",
}

// flaggedMethods are the match_method markers that exclude a row from
// further stage 3 rounds.
var flaggedMethods = []interface{}{
	"unmatchable_by_agentic", "no_match_by_agentic", "quality_filter",
	"stream_blocked", "state_blocked", "multi_campus_blocked",
}

// CountUnresolved returns the number of rows still awaiting a college match.
func (d *DB) CountUnresolved(ctx context.Context, table string) (int64, error) {
	sb := d.NewSelect()
	sb.Select("COUNT(*)").From(table).Where(sb.IsNull("master_college_id"))
	q, args := sb.Build()

	var n int64
	if err := d.Seat.GetContext(ctx, &n, q, args...); err != nil {
		return 0, fmt.Errorf("counting unresolved rows: %w", err)
	}
	return n, nil
}

// FetchUnresolved pages through unresolved rows in id order.
func (d *DB) FetchUnresolved(ctx context.Context, table string, limit, offset int) ([]models.SeatRecord, error) {
	sb := d.NewSelect()
	sb.Select(seatColumns...).From(table).
		Where(sb.IsNull("master_college_id")).
		OrderBy("id").Limit(limit).Offset(offset)
	q, args := sb.Build()

	var rows []models.SeatRecord
	if err := d.Seat.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("fetching unresolved rows: %w", err)
	}
	return rows, nil
}

// FetchUnresolvedEligible returns unresolved rows that have not been flagged
// by a previous run (unmatchable or blocked markers stay out of stage 3).
func (d *DB) FetchUnresolvedEligible(ctx context.Context, table string) ([]models.SeatRecord, error) {
	sb := d.NewSelect()
	sb.Select(seatColumns...).From(table).
		Where(
			sb.IsNull("master_college_id"),
			sb.Or(
				sb.IsNull("college_match_method"),
				sb.NotIn("college_match_method", flaggedMethods...),
			),
		).
		OrderBy("id")
	q, args := sb.Build()

	var rows []models.SeatRecord
	if err := d.Seat.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("fetching eligible rows: %w", err)
	}
	return rows, nil
}

// ApplyCommits writes a batch of accepted matches in one short transaction.
// Only still-unresolved rows are touched, preserving stage monotonicity.
func (d *DB) ApplyCommits(ctx context.Context, table string, commits []Commit) (int64, error) {
	if len(commits) == 0 {
		return 0, nil
	}
	tx, err := d.Seat.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning commit transaction: %w", err)
	}
	defer tx.Rollback()

	var updated int64
	for _, c := range commits {
		for _, id := range c.IDs {
			ub := d.NewUpdate()
			ub.Update(table).
				Set(
					ub.Assign("master_college_id", c.CollegeID),
					ub.Assign("college_match_score", c.Score),
					ub.Assign("college_match_method", c.Method),
				).
				Where(ub.Equal("id", id), ub.IsNull("master_college_id"))
			q, args := ub.Build()

			res, err := tx.ExecContext(ctx, q, args...)
			if err != nil {
				return 0, fmt.Errorf("applying match for record %s: %w", id, err)
			}
			n, _ := res.RowsAffected()
			updated += n
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing matches: %w", err)
	}
	return updated, nil
}

// FlagRecords stamps a match_method marker on unresolved rows so later runs
// skip them (unmatchable_by_agentic, stream_blocked, ...).
func (d *DB) FlagRecords(ctx context.Context, table string, ids []string, method string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var flagged int64
	for _, id := range ids {
		ub := d.NewUpdate()
		ub.Update(table).
			Set(ub.Assign("college_match_method", method)).
			Where(ub.Equal("id", id), ub.IsNull("master_college_id"))
		q, args := ub.Build()

		res, err := d.Seat.ExecContext(ctx, q, args...)
		if err != nil {
			return flagged, fmt.Errorf("flagging record %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		flagged += n
	}
	return flagged, nil
}

// MatchStats summarizes the working table for reports.
type MatchStats struct {
	Total    int64
	Matched  int64
	ByMethod map[string]int64
}

// Stats computes match statistics for a table.
func (d *DB) Stats(ctx context.Context, table string) (MatchStats, error) {
	st := MatchStats{ByMethod: make(map[string]int64)}

	sb := d.NewSelect()
	sb.Select("COUNT(*) AS total", "COUNT(master_college_id) AS matched").From(table)
	q, args := sb.Build()
	row := d.Seat.QueryRowxContext(ctx, q, args...)
	if err := row.Scan(&st.Total, &st.Matched); err != nil {
		return st, fmt.Errorf("reading match stats: %w", err)
	}

	mb := d.NewSelect()
	mb.Select("college_match_method", "COUNT(*)").From(table).
		Where(mb.IsNotNull("college_match_method")).
		GroupBy("college_match_method")
	mq, margs := mb.Build()
	rows, err := d.Seat.QueryxContext(ctx, mq, margs...)
	if err != nil {
		return st, fmt.Errorf("reading method stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var method string
		var n int64
		if err := rows.Scan(&method, &n); err != nil {
			return st, err
		}
		st.ByMethod[method] = n
	}
	return st, rows.Err()
}
