// Package registry provides read-only, cached access to the master college
// reference data: colleges, state links, course links, and the optional
// per-stream full-text indexes.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/models"
)

// Registry wraps the master connection. Lookup maps are built lazily and
// cached for the run; the reference data is immutable within a run's scope.
type Registry struct {
	db *db.DB

	stateOnce sync.Once
	stateErr  error
	states    map[string]int64

	courseOnce sync.Once
	courseErr  error
	courses    map[string]int64

	campusMu     sync.Mutex
	campusCounts map[string]int
}

// New builds a Registry over the master side of the database pair.
func New(d *db.DB) *Registry {
	return &Registry{db: d, campusCounts: make(map[string]int)}
}

// StateIDByName resolves a normalized state name to its id.
func (r *Registry) StateIDByName(ctx context.Context, name string) (int64, bool, error) {
	r.stateOnce.Do(func() { r.states, r.stateErr = r.loadNames(ctx, "states") })
	if r.stateErr != nil {
		return 0, false, r.stateErr
	}
	id, ok := r.states[strings.ToUpper(strings.TrimSpace(name))]
	return id, ok, nil
}

// CourseIDByName resolves a normalized course name to its id.
func (r *Registry) CourseIDByName(ctx context.Context, name string) (int64, bool, error) {
	r.courseOnce.Do(func() { r.courses, r.courseErr = r.loadNames(ctx, "courses") })
	if r.courseErr != nil {
		return 0, false, r.courseErr
	}
	id, ok := r.courses[strings.ToUpper(strings.TrimSpace(name))]
	return id, ok, nil
}

func (r *Registry) loadNames(ctx context.Context, table string) (map[string]int64, error) {
	q := fmt.Sprintf(`SELECT id, COALESCE(normalized_name, name) FROM %s`, table)
	rows, err := r.db.Master.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading %s lookup: %w", table, err)
	}
	defer rows.Close()

	m := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		m[strings.ToUpper(strings.TrimSpace(name))] = id
	}
	return m, rows.Err()
}

const collegeColumns = `
	c.id, c.name, COALESCE(c.normalized_name, c.name) AS normalized_name,
	c.composite_key,
	COALESCE(s.normalized_name, s.name) AS state,
	COALESCE(scl.address, '') AS address`

// CollegeByID fetches one college with its linked state and campus address.
// Returns sql.ErrNoRows when the id is unknown.
func (r *Registry) CollegeByID(ctx context.Context, id string) (models.MasterCollege, error) {
	q := r.db.Master.Rebind(fmt.Sprintf(`
		SELECT %s
		FROM colleges c
		JOIN state_college_link scl ON scl.college_id = c.id
		JOIN states s ON s.id = scl.state_id
		WHERE c.id = ?`, collegeColumns))

	var c models.MasterCollege
	if err := r.db.Master.GetContext(ctx, &c, q, id); err != nil {
		if err == sql.ErrNoRows {
			return c, err
		}
		return c, fmt.Errorf("loading college %s: %w", id, err)
	}
	return c, nil
}

// CandidatesByStateCourse lists colleges in a state that offer the course in
// one of the given streams. This is the stage 2 candidate pool.
func (r *Registry) CandidatesByStateCourse(ctx context.Context, stateID, courseID int64, streams []string) ([]models.MasterCollege, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(streams)), ",")
	q := r.db.Master.Rebind(fmt.Sprintf(`
		SELECT DISTINCT %s
		FROM colleges c
		JOIN state_college_link scl ON scl.college_id = c.id
		JOIN states s ON s.id = scl.state_id
		JOIN state_course_college_link sccl
		  ON sccl.college_id = c.id AND sccl.state_id = scl.state_id
		WHERE scl.state_id = ? AND sccl.course_id = ? AND sccl.stream IN (%s)
		ORDER BY c.id`, collegeColumns, placeholders))

	args := make([]interface{}, 0, len(streams)+2)
	args = append(args, stateID, courseID)
	for _, s := range streams {
		args = append(args, s)
	}

	var out []models.MasterCollege
	if err := r.db.Master.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("loading state/course candidates: %w", err)
	}
	return out, nil
}

// CollegesByStateStream lists all colleges of the given streams in a state,
// the retrieval fallback pool when full-text search is unavailable.
func (r *Registry) CollegesByStateStream(ctx context.Context, state string, streams []models.Stream) ([]models.MasterCollege, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	prefixes := make([]string, 0, len(streams))
	for _, s := range streams {
		switch s {
		case models.StreamMedical:
			prefixes = append(prefixes, "MED%")
		case models.StreamDental:
			prefixes = append(prefixes, "DEN%")
		case models.StreamDNB:
			prefixes = append(prefixes, "DNB%")
		}
	}
	conds := make([]string, len(prefixes))
	args := []interface{}{strings.ToUpper(strings.TrimSpace(state))}
	for i, p := range prefixes {
		conds[i] = "c.id LIKE ?"
		args = append(args, p)
	}

	q := r.db.Master.Rebind(fmt.Sprintf(`
		SELECT %s
		FROM colleges c
		JOIN state_college_link scl ON scl.college_id = c.id
		JOIN states s ON s.id = scl.state_id
		WHERE UPPER(COALESCE(s.normalized_name, s.name)) = ? AND (%s)
		ORDER BY c.id`, collegeColumns, strings.Join(conds, " OR ")))

	var out []models.MasterCollege
	if err := r.db.Master.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("loading state/stream colleges: %w", err)
	}
	return out, nil
}

// CampusCount returns how many colleges share a normalized name within a
// state. Counts above 1 mark a multi-campus college, which tightens the
// address checks downstream. Results are memoized per run.
func (r *Registry) CampusCount(ctx context.Context, normalizedName, state string) (int, error) {
	key := strings.ToUpper(normalizedName) + "|" + strings.ToUpper(state)
	r.campusMu.Lock()
	if n, ok := r.campusCounts[key]; ok {
		r.campusMu.Unlock()
		return n, nil
	}
	r.campusMu.Unlock()

	q := r.db.Master.Rebind(`
		SELECT COUNT(*)
		FROM colleges c
		JOIN state_college_link scl ON scl.college_id = c.id
		JOIN states s ON s.id = scl.state_id
		WHERE UPPER(COALESCE(c.normalized_name, c.name)) = ?
		  AND UPPER(COALESCE(s.normalized_name, s.name)) = ?`)

	var n int
	err := r.db.Master.GetContext(ctx, &n, q, strings.ToUpper(normalizedName), strings.ToUpper(strings.TrimSpace(state)))
	if err != nil {
		return 0, fmt.Errorf("counting campuses: %w", err)
	}

	r.campusMu.Lock()
	r.campusCounts[key] = n
	r.campusMu.Unlock()
	return n, nil
}

// LinkedStateExists reports whether (college, state) appears in
// state_college_link. The reconciliation sweep treats a missing pair as a
// false match.
func (r *Registry) LinkedStateExists(ctx context.Context, collegeID string, stateID int64) (bool, error) {
	q := r.db.Master.Rebind(`
		SELECT COUNT(*) FROM state_college_link
		WHERE college_id = ? AND state_id = ?`)
	var n int
	if err := r.db.Master.GetContext(ctx, &n, q, collegeID, stateID); err != nil {
		return false, fmt.Errorf("checking state link: %w", err)
	}
	return n > 0, nil
}
