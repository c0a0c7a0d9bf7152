// Package matcher implements the deterministic and fuzzy resolution stages
// and the pipeline driver that cascades records through them.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/config"
	"github.com/seatmatrix/matchlink/db"
)

// Stage1 is the deterministic hierarchical matcher: state, course, then
// college, each resolved by exact relational joins. Highest precision,
// lowest recall; everything it commits is correct by construction.
type Stage1 struct {
	db  *db.DB
	cfg *config.Pipeline
	log *zap.SugaredLogger
}

// Stage1Stats counts what one run resolved.
type Stage1Stats struct {
	StatesResolved   int64
	CoursesResolved  int64
	CollegesResolved int64
}

// NewStage1 builds the deterministic matcher.
func NewStage1(d *db.DB, cfg *config.Pipeline, log *zap.SugaredLogger) *Stage1 {
	return &Stage1{db: d, cfg: cfg, log: log}
}

// Run executes the three hierarchical passes over a table.
func (s *Stage1) Run(ctx context.Context, table string) (Stage1Stats, error) {
	var st Stage1Stats
	var err error

	if st.StatesResolved, err = s.resolveStates(ctx, table); err != nil {
		return st, err
	}
	if st.CoursesResolved, err = s.resolveCourses(ctx, table); err != nil {
		return st, err
	}
	if st.CollegesResolved, err = s.resolveColleges(ctx, table); err != nil {
		return st, err
	}

	s.log.Infow("deterministic stage complete",
		"states", st.StatesResolved,
		"courses", st.CoursesResolved,
		"colleges", st.CollegesResolved)
	return st, nil
}

func (s *Stage1) resolveStates(ctx context.Context, table string) (int64, error) {
	q := fmt.Sprintf(`
		UPDATE %[1]s
		SET master_state_id = (
			SELECT st.id FROM states st
			WHERE UPPER(COALESCE(st.normalized_name, st.name)) = UPPER(%[1]s.normalized_state)
			LIMIT 1
		)
		WHERE master_state_id IS NULL
		  AND normalized_state IS NOT NULL
		  AND EXISTS (
			SELECT 1 FROM states st
			WHERE UPPER(COALESCE(st.normalized_name, st.name)) = UPPER(%[1]s.normalized_state)
		  )`, table)
	return s.exec(ctx, q, "resolving states")
}

func (s *Stage1) resolveCourses(ctx context.Context, table string) (int64, error) {
	q := fmt.Sprintf(`
		UPDATE %[1]s
		SET master_course_id = (
			SELECT co.id FROM courses co
			WHERE UPPER(COALESCE(co.normalized_name, co.name)) = UPPER(%[1]s.normalized_course_name)
			LIMIT 1
		)
		WHERE master_course_id IS NULL
		  AND normalized_course_name IS NOT NULL
		  AND EXISTS (
			SELECT 1 FROM courses co
			WHERE UPPER(COALESCE(co.normalized_name, co.name)) = UPPER(%[1]s.normalized_course_name)
		  )`, table)
	return s.exec(ctx, q, "resolving courses")
}

type collegePass struct {
	courseCond string
	streams    []string
}

// resolveColleges runs one UPDATE per stream predicate: the three plain
// course types, then the diploma sub-cases driven by configuration.
func (s *Stage1) resolveColleges(ctx context.Context, table string) (int64, error) {
	passes := []collegePass{
		{courseCond: "UPPER(course_type) LIKE '%MBBS%' OR UPPER(course_type) = 'MEDICAL'", streams: []string{"MEDICAL"}},
		{courseCond: "UPPER(course_type) LIKE '%DENTAL%' OR UPPER(course_type) LIKE '%BDS%' OR UPPER(course_type) LIKE '%MDS%'", streams: []string{"DENTAL"}},
		{courseCond: "UPPER(course_type) LIKE '%DNB%'", streams: []string{"DNB"}},
	}
	passes = append(passes, s.diplomaPasses()...)

	var total int64
	for _, p := range passes {
		n, err := s.runCollegePass(ctx, table, p.courseCond, p.streams)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Stage1) diplomaPasses() []collegePass {
	var out []collegePass

	diplomaBase := "UPPER(course_type) LIKE '%DIPLOMA%'"
	dnbOnly := courseNameCond(s.cfg.Diploma.DNBOnly)
	overlapping := courseNameCond(s.cfg.Diploma.Overlapping)
	if dnbOnly != "" {
		out = append(out, collegePass{diplomaBase + " AND (" + dnbOnly + ")", []string{"DNB"}})
	}
	if overlapping != "" {
		out = append(out, collegePass{diplomaBase + " AND (" + overlapping + ")", []string{"MEDICAL", "DNB"}})
	}
	// Only unlisted diplomas fall back to medical. Listed courses must not
	// reach this pass: a DNB-only row its own pass could not place would
	// otherwise cross streams into a medical college.
	fallback := diplomaBase
	for _, cond := range []string{dnbOnly, overlapping} {
		if cond != "" {
			fallback += " AND NOT (" + cond + ")"
		}
	}
	out = append(out, collegePass{fallback, []string{"MEDICAL"}})
	return out
}

// courseNameCond renders a LIKE disjunction over configured course names.
// The names come from the operator's YAML config, not from user input.
func courseNameCond(names []string) string {
	var conds []string
	for _, n := range names {
		n = strings.ToUpper(strings.ReplaceAll(n, " IN ", " "))
		n = strings.ReplaceAll(n, "'", "''")
		conds = append(conds, fmt.Sprintf(
			"REPLACE(UPPER(normalized_course_name), ' IN ', ' ') LIKE '%%%s%%'", n))
	}
	return strings.Join(conds, " OR ")
}

func (s *Stage1) runCollegePass(ctx context.Context, table, courseCond string, streams []string) (int64, error) {
	streamList := "'" + strings.Join(streams, "', '") + "'"

	match := fmt.Sprintf(`
		SELECT c.id FROM colleges c
		JOIN state_college_link scl
		  ON scl.college_id = c.id AND scl.state_id = %[1]s.master_state_id
		WHERE c.composite_key LIKE %[1]s.normalized_college_name || ',%%'
		  AND %[2]s
		  AND EXISTS (
			SELECT 1 FROM state_course_college_link sccl
			WHERE sccl.college_id = c.id
			  AND sccl.state_id = %[1]s.master_state_id
			  AND sccl.course_id = %[1]s.master_course_id
			  AND sccl.stream IN (%[3]s)
		  )`,
		table,
		s.db.ContainsExpr("scl.address", table+".normalized_address"),
		streamList)

	q := fmt.Sprintf(`
		UPDATE %[1]s
		SET master_college_id = (%[2]s LIMIT 1),
		    college_match_score = 1.0,
		    college_match_method = 'stage1_exact'
		WHERE master_college_id IS NULL
		  AND master_state_id IS NOT NULL
		  AND master_course_id IS NOT NULL
		  AND (%[3]s)
		  AND EXISTS (%[2]s)`, table, match, courseCond)

	return s.exec(ctx, q, "resolving colleges")
}

func (s *Stage1) exec(ctx context.Context, query, op string) (int64, error) {
	res, err := s.db.Seat.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
