package models

import (
	"database/sql"
	"strings"
)

// CourseType classifies a seat record's course stream.
type CourseType string

const (
	CourseMedical CourseType = "MEDICAL"
	CourseDental  CourseType = "DENTAL"
	CourseDNB     CourseType = "DNB"
	CourseDiploma CourseType = "DIPLOMA"
)

// ParseCourseType maps a raw course_type value onto the known streams.
// Unknown values default to MEDICAL, matching the upstream import behavior.
func ParseCourseType(raw string) CourseType {
	switch {
	case containsFold(raw, "DNB"):
		return CourseDNB
	case containsFold(raw, "DENTAL"), containsFold(raw, "BDS"), containsFold(raw, "MDS"):
		return CourseDental
	case containsFold(raw, "DIPLOMA"):
		return CourseDiploma
	default:
		return CourseMedical
	}
}

// SeatRecord represents one row of the seat_data working table.
type SeatRecord struct {
	ID                    int64           `db:"id" json:"id"`
	State                 string          `db:"state" json:"state"`
	CourseName            string          `db:"course_name" json:"course_name"`
	CollegeName           string          `db:"college_name" json:"college_name"`
	Address               string          `db:"address" json:"address"`
	NormalizedState       string          `db:"normalized_state" json:"normalized_state"`
	NormalizedCourseName  string          `db:"normalized_course_name" json:"normalized_course_name"`
	NormalizedCollegeName string          `db:"normalized_college_name" json:"normalized_college_name"`
	NormalizedAddress     string          `db:"normalized_address" json:"normalized_address"`
	CourseType            string          `db:"course_type" json:"course_type"`
	MasterStateID         sql.NullInt64   `db:"master_state_id" json:"master_state_id"`
	MasterCourseID        sql.NullInt64   `db:"master_course_id" json:"master_course_id"`
	MasterCollegeID       sql.NullString  `db:"master_college_id" json:"master_college_id"`
	CollegeMatchScore     sql.NullFloat64 `db:"college_match_score" json:"college_match_score"`
	CollegeMatchMethod    sql.NullString  `db:"college_match_method" json:"college_match_method"`
}

// BestCollegeName prefers the normalized name when the import stage filled it.
func (r *SeatRecord) BestCollegeName() string {
	if r.NormalizedCollegeName != "" {
		return r.NormalizedCollegeName
	}
	return r.CollegeName
}

// BestAddress prefers the normalized address when present.
func (r *SeatRecord) BestAddress() string {
	if r.NormalizedAddress != "" {
		return r.NormalizedAddress
	}
	return r.Address
}

// BestState prefers the normalized state when present.
func (r *SeatRecord) BestState() string {
	if r.NormalizedState != "" {
		return r.NormalizedState
	}
	return r.State
}

// Stream returns the parsed course stream for the record.
func (r *SeatRecord) Stream() CourseType {
	return ParseCourseType(r.CourseType)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToUpper(s), sub)
}
