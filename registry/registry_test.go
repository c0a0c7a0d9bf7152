package registry

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatmatrix/matchlink/internal/testdb"
	"github.com/seatmatrix/matchlink/models"
)

func TestNameLookups(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCourse(t, d, 10, "MBBS")
	reg := New(d)

	id, ok, err := reg.StateIDByName(context.Background(), " karnataka ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, id)

	_, ok, err = reg.StateIDByName(context.Background(), "GOA")
	require.NoError(t, err)
	assert.False(t, ok)

	id, ok, err = reg.CourseIDByName(context.Background(), "MBBS")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 10, id)
}

func TestCollegeByID(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCollege(t, d, "MED00001", "ABC MEDICAL COLLEGE", "BANGALORE", 1, "MEDICAL")
	reg := New(d)

	c, err := reg.CollegeByID(context.Background(), "MED00001")
	require.NoError(t, err)
	assert.Equal(t, "KARNATAKA", c.State)
	assert.Equal(t, "BANGALORE", c.Address)
	assert.Equal(t, models.StreamMedical, c.Stream())

	_, err = reg.CollegeByID(context.Background(), "MED99999")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCandidatesByStateCourseFiltersStream(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCourse(t, d, 10, "MBBS")
	testdb.AddCollege(t, d, "MED00001", "ABC MEDICAL COLLEGE", "BANGALORE", 1, "MEDICAL", 10)
	testdb.AddCollege(t, d, "DNB00001", "CITY HOSPITAL", "BANGALORE", 1, "DNB", 10)
	reg := New(d)

	out, err := reg.CandidatesByStateCourse(context.Background(), 1, 10, []string{"MEDICAL"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "MED00001", out[0].ID)

	out, err = reg.CandidatesByStateCourse(context.Background(), 1, 10, []string{"MEDICAL", "DNB"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestCampusCount(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddCollege(t, d, "MED00001", "KIMS HOSPITAL", "HUBLI", 1, "MEDICAL")
	testdb.AddCollege(t, d, "MED00002", "KIMS HOSPITAL", "BANGALORE", 1, "MEDICAL")
	testdb.AddCollege(t, d, "MED00003", "LONE COLLEGE", "MYSORE", 1, "MEDICAL")
	reg := New(d)

	n, err := reg.CampusCount(context.Background(), "KIMS HOSPITAL", "KARNATAKA")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = reg.CampusCount(context.Background(), "LONE COLLEGE", "KARNATAKA")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLinkedStateExists(t *testing.T) {
	d := testdb.New(t)
	testdb.AddState(t, d, 1, "KARNATAKA")
	testdb.AddState(t, d, 2, "KERALA")
	testdb.AddCollege(t, d, "MED00001", "ABC MEDICAL COLLEGE", "BANGALORE", 1, "MEDICAL")
	reg := New(d)

	ok, err := reg.LinkedStateExists(context.Background(), "MED00001", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.LinkedStateExists(context.Background(), "MED00001", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchFTS(t *testing.T) {
	d := testdb.New(t)
	_, err := d.Master.Exec(`
		CREATE VIRTUAL TABLE medical_colleges_fts USING fts5(id, name, state, address)`)
	if err != nil {
		t.Skipf("sqlite build lacks FTS5: %v", err)
	}
	_, err = d.Master.Exec(`
		INSERT INTO medical_colleges_fts (id, name, state, address) VALUES
		('MED00001', 'VYDEHI INSTITUTE OF MEDICAL SCIENCES', 'KARNATAKA', 'WHITEFIELD BANGALORE'),
		('MED00002', 'KEMPEGOWDA INSTITUTE OF MEDICAL SCIENCES', 'KARNATAKA', 'BANGALORE'),
		('MED00003', 'VYDEHI INSTITUTE OF MEDICAL SCIENCES', 'KERALA', 'KOCHI')`)
	require.NoError(t, err)

	reg := New(d)
	require.True(t, reg.HasFTS(models.StreamMedical))

	hits, err := reg.SearchFTS(context.Background(), models.StreamMedical,
		"VYDEHI INSTITUTE", "KARNATAKA", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "MED00001", hits[0].College.ID, "the VYDEHI row outranks the shared-token one")
	for _, h := range hits {
		assert.NotEqual(t, "MED00003", h.College.ID, "state filter must hold")
	}
}

func TestFTSQueryDropsShortTokens(t *testing.T) {
	assert.Equal(t, `"KIMS" OR "HUBLI"`, ftsQuery("KIMS of HUBLI"))
	assert.Empty(t, ftsQuery("A B"))
}
