// Package testdb builds throwaway in-memory SQLite databases carrying the
// reference schema and a seat_data working table, for package tests.
package testdb

import (
	"testing"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/seatmatrix/matchlink/db"
)

const schema = `
CREATE TABLE colleges (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	normalized_name TEXT,
	composite_key  TEXT
);
CREATE TABLE states (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	normalized_name TEXT
);
CREATE TABLE courses (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	normalized_name TEXT
);
CREATE TABLE state_college_link (
	college_id TEXT NOT NULL,
	state_id   INTEGER NOT NULL,
	address    TEXT
);
CREATE TABLE state_course_college_link (
	college_id TEXT NOT NULL,
	state_id   INTEGER NOT NULL,
	course_id  INTEGER NOT NULL,
	stream     TEXT NOT NULL
);
CREATE TABLE seat_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	state TEXT DEFAULT '',
	course_name TEXT DEFAULT '',
	college_name TEXT DEFAULT '',
	address TEXT DEFAULT '',
	normalized_state TEXT DEFAULT '',
	normalized_course_name TEXT DEFAULT '',
	normalized_college_name TEXT DEFAULT '',
	normalized_address TEXT DEFAULT '',
	course_type TEXT DEFAULT 'MEDICAL',
	master_state_id INTEGER,
	master_course_id INTEGER,
	master_college_id TEXT,
	college_match_score REAL,
	college_match_method TEXT
);`

// New opens an in-memory database with the full schema. The handle is
// limited to one connection so every query sees the same memory store.
func New(t *testing.T) *db.DB {
	t.Helper()

	conn, err := sqlx.Connect("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return &db.DB{Seat: conn, Master: conn, Driver: "sqlite3", Flavor: sqlbuilder.SQLite}
}

// AddState inserts a state row.
func AddState(t *testing.T, d *db.DB, id int64, name string) {
	t.Helper()
	mustExec(t, d, `INSERT INTO states (id, name, normalized_name) VALUES (?, ?, ?)`, id, name, name)
}

// AddCourse inserts a course row.
func AddCourse(t *testing.T, d *db.DB, id int64, name string) {
	t.Helper()
	mustExec(t, d, `INSERT INTO courses (id, name, normalized_name) VALUES (?, ?, ?)`, id, name, name)
}

// AddCollege inserts a college, its state link with address, and one
// course link per course id.
func AddCollege(t *testing.T, d *db.DB, id, name, address string, stateID int64, stream string, courseIDs ...int64) {
	t.Helper()
	mustExec(t, d,
		`INSERT INTO colleges (id, name, normalized_name, composite_key) VALUES (?, ?, ?, ?)`,
		id, name, name, name+","+address)
	mustExec(t, d,
		`INSERT INTO state_college_link (college_id, state_id, address) VALUES (?, ?, ?)`,
		id, stateID, address)
	for _, courseID := range courseIDs {
		mustExec(t, d,
			`INSERT INTO state_course_college_link (college_id, state_id, course_id, stream) VALUES (?, ?, ?, ?)`,
			id, stateID, courseID, stream)
	}
}

// Seat describes one working-table row to insert.
type Seat struct {
	State      string
	Course     string
	College    string
	Address    string
	CourseType string
	StateID    int64
	CourseID   int64
	CollegeID  string
	Method     string
}

// AddSeat inserts a seat_data row and returns its id. Zero-value resolution
// fields stay NULL.
func AddSeat(t *testing.T, d *db.DB, s Seat) int64 {
	t.Helper()
	if s.CourseType == "" {
		s.CourseType = "MEDICAL"
	}
	res, err := d.Seat.Exec(`
		INSERT INTO seat_data (
			state, course_name, college_name, address,
			normalized_state, normalized_course_name,
			normalized_college_name, normalized_address,
			course_type, master_state_id, master_course_id,
			master_college_id, college_match_method
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.State, s.Course, s.College, s.Address,
		s.State, s.Course, s.College, s.Address,
		s.CourseType, nullInt(s.StateID), nullInt(s.CourseID),
		nullStr(s.CollegeID), nullStr(s.Method))
	if err != nil {
		t.Fatalf("inserting seat row: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("reading seat row id: %v", err)
	}
	return id
}

func nullInt(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullStr(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func mustExec(t *testing.T, d *db.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := d.Seat.Exec(query, args...); err != nil {
		t.Fatalf("seeding fixture: %v", err)
	}
}
