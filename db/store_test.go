package db_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/internal/testdb"
)

func seedSeats(t *testing.T, d *db.DB, n int) []int64 {
	t.Helper()
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCourse(t, d, 10, "MBBS")
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, testdb.AddSeat(t, d, testdb.Seat{
			State: "KARNATAKA", Course: "MBBS",
			College: "ABC MEDICAL COLLEGE", Address: "BANGALORE",
			CourseType: "MBBS",
		}))
	}
	return ids
}

func TestFetchUnresolvedPaging(t *testing.T) {
	d := testdb.New(t)
	ids := seedSeats(t, d, 5)

	rows, err := d.FetchUnresolved(context.Background(), "seat_data", 2, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ids[0], rows[0].ID)
	assert.Equal(t, ids[1], rows[1].ID)

	rows, err = d.FetchUnresolved(context.Background(), "seat_data", 2, 4)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ids[4], rows[0].ID)
}

func TestApplyCommitsIsMonotonic(t *testing.T) {
	d := testdb.New(t)
	ids := seedSeats(t, d, 2)
	ctx := context.Background()

	first := []db.Commit{{
		IDs:       []string{strconv.FormatInt(ids[0], 10)},
		CollegeID: "MED00001", Score: 0.95, Method: "agentic_llm",
	}}
	n, err := d.ApplyCommits(ctx, "seat_data", first)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// A second commit for an already-resolved row must not overwrite it.
	second := []db.Commit{{
		IDs:       []string{strconv.FormatInt(ids[0], 10)},
		CollegeID: "MED00099", Score: 0.50, Method: "stage2_fuzzy",
	}}
	n, err = d.ApplyCommits(ctx, "seat_data", second)
	require.NoError(t, err)
	assert.Zero(t, n)

	var college string
	require.NoError(t, d.Seat.QueryRow(
		`SELECT master_college_id FROM seat_data WHERE id = ?`, ids[0]).Scan(&college))
	assert.Equal(t, "MED00001", college)

	count, err := d.CountUnresolved(ctx, "seat_data")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestFetchUnresolvedEligibleSkipsFlaggedRows(t *testing.T) {
	d := testdb.New(t)
	ids := seedSeats(t, d, 3)
	ctx := context.Background()

	n, err := d.FlagRecords(ctx, "seat_data",
		[]string{strconv.FormatInt(ids[0], 10)}, "quality_filter")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = d.FlagRecords(ctx, "seat_data",
		[]string{strconv.FormatInt(ids[1], 10)}, "state_blocked")
	require.NoError(t, err)

	rows, err := d.FetchUnresolvedEligible(ctx, "seat_data")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ids[2], rows[0].ID)
}

func TestStatsCountsByMethod(t *testing.T) {
	d := testdb.New(t)
	ids := seedSeats(t, d, 3)
	ctx := context.Background()

	_, err := d.ApplyCommits(ctx, "seat_data", []db.Commit{{
		IDs:       []string{strconv.FormatInt(ids[0], 10)},
		CollegeID: "MED00001", Score: 1.0, Method: "stage1_exact",
	}})
	require.NoError(t, err)
	_, err = d.FlagRecords(ctx, "seat_data",
		[]string{strconv.FormatInt(ids[1], 10)}, "no_match_by_agentic")
	require.NoError(t, err)

	st, err := d.Stats(ctx, "seat_data")
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Total)
	assert.EqualValues(t, 1, st.Matched)
	assert.EqualValues(t, 1, st.ByMethod["stage1_exact"])
	assert.EqualValues(t, 1, st.ByMethod["no_match_by_agentic"])
}
