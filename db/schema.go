package db

import (
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
)

// referenceTables must exist before any stage runs. A missing table is
// fatal: the pipeline never continues with partial reference data.
var referenceTables = []string{
	"colleges",
	"states",
	"courses",
	"state_college_link",
	"state_course_college_link",
}

// VerifySchema checks that the working table and all reference tables
// exist. The per-stream FTS tables are optional and probed separately.
func (d *DB) VerifySchema(seatTable string) error {
	if err := d.requireTable(d.Seat, seatTable); err != nil {
		return err
	}
	for _, t := range referenceTables {
		if err := d.requireTable(d.Master, t); err != nil {
			return err
		}
	}
	return nil
}

// HasFTS reports whether the full-text table for a stream exists.
func (d *DB) HasFTS(stream string) bool {
	table := ftsTableFor(stream)
	if table == "" {
		return false
	}
	return d.tableExists(d.Master, table)
}

func ftsTableFor(stream string) string {
	switch stream {
	case "MEDICAL":
		return "medical_colleges_fts"
	case "DENTAL":
		return "dental_colleges_fts"
	case "DNB":
		return "dnb_colleges_fts"
	}
	return ""
}

func (d *DB) requireTable(conn *sqlx.DB, table string) error {
	if !d.tableExists(conn, table) {
		return fmt.Errorf("required table %s does not exist", table)
	}
	return nil
}

func (d *DB) tableExists(conn *sqlx.DB, table string) bool {
	var exists bool
	var query string
	if d.Flavor == sqlbuilder.PostgreSQL {
		query = `SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`
	} else {
		query = `SELECT EXISTS (
			SELECT 1 FROM sqlite_master
			WHERE type IN ('table', 'view') AND name = ?
		)`
	}
	if err := conn.QueryRow(query, table).Scan(&exists); err != nil {
		return false
	}
	return exists
}
