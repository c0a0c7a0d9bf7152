package models

import "strings"

// Stream identifies which master table family a college id belongs to.
type Stream string

const (
	StreamMedical Stream = "MEDICAL"
	StreamDental  Stream = "DENTAL"
	StreamDNB     Stream = "DNB"
)

// MasterCollege represents one row of the colleges reference table.
type MasterCollege struct {
	ID             string `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	NormalizedName string `db:"normalized_name" json:"normalized_name"`
	CompositeKey   string `db:"composite_key" json:"composite_key"`
	State          string `db:"state" json:"state"`
	Address        string `db:"address" json:"address"`
}

// BestName prefers the normalized name when the registry carries one.
func (c *MasterCollege) BestName() string {
	if c.NormalizedName != "" {
		return c.NormalizedName
	}
	return c.Name
}

// Stream derives the college stream from its id prefix (MED/DEN/DNB).
func (c *MasterCollege) Stream() Stream {
	return StreamOfCollegeID(c.ID)
}

// StreamOfCollegeID maps a master college id prefix to its stream.
// Ids without a MED/DEN prefix are DNB, matching how the registry allocates ids.
func StreamOfCollegeID(id string) Stream {
	switch {
	case strings.HasPrefix(id, "MED"):
		return StreamMedical
	case strings.HasPrefix(id, "DEN"):
		return StreamDental
	default:
		return StreamDNB
	}
}

// StateCollegeLink asserts that a college is located in a state, with the
// campus address recorded on the link.
type StateCollegeLink struct {
	CollegeID string `db:"college_id" json:"college_id"`
	StateID   int64  `db:"state_id" json:"state_id"`
	Address   string `db:"address" json:"address"`
}

// StateCourseCollegeLink asserts that a college offers a course in a stream
// within a state.
type StateCourseCollegeLink struct {
	CollegeID string `db:"college_id" json:"college_id"`
	StateID   int64  `db:"state_id" json:"state_id"`
	CourseID  int64  `db:"course_id" json:"course_id"`
	Stream    string `db:"stream" json:"stream"`
}
