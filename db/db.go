// Package db owns database access for the matching pipeline. One store
// implementation runs against both PostgreSQL and SQLite; the dialect
// differences are isolated in the Flavor and the few expression helpers
// below.
package db

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/seatmatrix/matchlink/config"
)

// DB bundles the working (seat) and reference (master) connections.
// When the reference tables live in the same database, Master aliases Seat.
type DB struct {
	Seat   *sqlx.DB
	Master *sqlx.DB
	Driver string
	Flavor sqlbuilder.Flavor
}

// Open connects per the pipeline config and pings both handles.
// Stage 1 joins the reference tables directly, so they must be visible to
// the seat connection (same database, or ATTACHed for SQLite).
func Open(cfg *config.Pipeline) (*DB, error) {
	flavor, err := flavorFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	seat, err := sqlx.Connect(cfg.Driver, cfg.SeatDSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to seat database: %w", err)
	}

	master := seat
	if cfg.MasterDSN != "" && cfg.MasterDSN != cfg.SeatDSN {
		master, err = sqlx.Connect(cfg.Driver, cfg.MasterDSN)
		if err != nil {
			seat.Close()
			return nil, fmt.Errorf("connecting to master database: %w", err)
		}
	}

	return &DB{Seat: seat, Master: master, Driver: cfg.Driver, Flavor: flavor}, nil
}

// Close closes both handles.
func (d *DB) Close() error {
	if d.Master != nil && d.Master != d.Seat {
		d.Master.Close()
	}
	return d.Seat.Close()
}

func flavorFor(driver string) (sqlbuilder.Flavor, error) {
	switch driver {
	case "postgres":
		return sqlbuilder.PostgreSQL, nil
	case "sqlite3":
		return sqlbuilder.SQLite, nil
	default:
		return 0, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Rebind converts ? placeholders to the driver's form.
func (d *DB) Rebind(query string) string {
	return d.Seat.Rebind(query)
}

// ContainsExpr renders a case-insensitive "haystack contains needle"
// SQL expression for the active dialect.
func (d *DB) ContainsExpr(haystack, needle string) string {
	if d.Flavor == sqlbuilder.PostgreSQL {
		return fmt.Sprintf("POSITION(UPPER(%s) IN UPPER(%s)) > 0", needle, haystack)
	}
	return fmt.Sprintf("INSTR(UPPER(%s), UPPER(%s)) > 0", haystack, needle)
}

// ConcatExpr renders string concatenation for the active dialect.
func (d *DB) ConcatExpr(parts ...string) string {
	return strings.Join(parts, " || ")
}

// NewSelect returns a select builder bound to the active flavor.
func (d *DB) NewSelect() *sqlbuilder.SelectBuilder {
	return d.Flavor.NewSelectBuilder()
}

// NewUpdate returns an update builder bound to the active flavor.
func (d *DB) NewUpdate() *sqlbuilder.UpdateBuilder {
	return d.Flavor.NewUpdateBuilder()
}
