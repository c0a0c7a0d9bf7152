package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/models"
	"github.com/seatmatrix/matchlink/similarity"
)

const (
	defaultBatchSize = 500

	// Minimum fuzzy score for mapping a CSV header onto a known column.
	headerMatchFloor = 80.0
)

// requiredColumns are the source fields every import file must provide,
// directly or under a close-enough header name.
var requiredColumns = []string{"state", "course_name", "college_name", "address"}

// headerAliases maps common upstream header spellings straight to columns
// before fuzzy matching is attempted.
var headerAliases = map[string]string{
	"course":          "course_name",
	"college":         "college_name",
	"institute":       "college_name",
	"institute_name":  "college_name",
	"college_address": "address",
	"state_name":      "state",
}

// Config controls one import run.
type Config struct {
	Table      string
	BatchSize  int
	FailedPath string
}

// Result summarizes an import run.
type Result struct {
	Imported int
	Failed   int
}

// Importer loads raw admission CSV files into the working table, filling
// the normalized columns the matching stages key on.
type Importer struct {
	db  *db.DB
	cfg Config
	log *zap.SugaredLogger
}

// New builds an importer for the given table.
func New(d *db.DB, cfg Config, log *zap.SugaredLogger) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Importer{db: d, cfg: cfg, log: log}
}

// Run reads the whole CSV stream and inserts it in batched transactions.
// Rows that fail to insert are collected into cfg.FailedPath for review
// instead of aborting the run.
func (im *Importer) Run(ctx context.Context, r *csv.Reader) (Result, error) {
	var res Result

	headers, err := r.Read()
	if err != nil {
		return res, fmt.Errorf("reading headers: %w", err)
	}
	mapping, err := mapHeaders(headers)
	if err != nil {
		return res, err
	}

	var failed [][]string
	batch := make([][]string, 0, im.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		bad, err := im.insertBatch(ctx, batch, mapping)
		if err != nil {
			return err
		}
		res.Imported += len(batch) - len(bad)
		res.Failed += len(bad)
		failed = append(failed, bad...)
		batch = batch[:0]
		return nil
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed CSV line; keep it for the failure file.
			res.Failed++
			continue
		}
		batch = append(batch, row)
		if len(batch) >= im.cfg.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	if len(failed) > 0 && im.cfg.FailedPath != "" {
		if err := writeFailed(im.cfg.FailedPath, headers, failed); err != nil {
			im.log.Warnw("could not write failed-records file", "err", err)
		}
	}

	im.log.Infow("import complete", "table", im.cfg.Table,
		"imported", res.Imported, "failed", res.Failed)
	return res, nil
}

// mapHeaders resolves each required column to a CSV index, tolerating
// spelling drift in upstream files via fuzzy matching.
func mapHeaders(headers []string) (map[string]int, error) {
	norm := make([]string, len(headers))
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		// Upstream files mix "Institute Name" and "institute_name" styles.
		norm[i] = strings.ReplaceAll(h, " ", "_")
	}

	mapping := make(map[string]int, len(requiredColumns))
	for _, col := range requiredColumns {
		idx := -1
		for i, h := range norm {
			if h == col || headerAliases[h] == col {
				idx = i
				break
			}
		}
		if idx < 0 {
			best := headerMatchFloor
			for i, h := range norm {
				if score := similarity.Ratio(h, col); score >= best {
					best, idx = score, i
				}
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("import file has no column for %q (headers: %s)",
				col, strings.Join(headers, ", "))
		}
		mapping[col] = idx
	}
	return mapping, nil
}

func (im *Importer) insertBatch(ctx context.Context, rows [][]string, mapping map[string]int) ([][]string, error) {
	tx, err := im.db.Seat.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	q := im.db.Rebind(fmt.Sprintf(`
		INSERT INTO %s (
			state, course_name, college_name, address,
			normalized_state, normalized_course_name,
			normalized_college_name, normalized_address, course_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, im.cfg.Table))

	stmt, err := tx.PreparexContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("preparing import statement: %w", err)
	}
	defer stmt.Close()

	var failed [][]string
	for _, row := range rows {
		state := field(row, mapping["state"])
		course := field(row, mapping["course_name"])
		college := field(row, mapping["college_name"])
		address := field(row, mapping["address"])

		if college == "" {
			failed = append(failed, row)
			continue
		}

		_, err := stmt.ExecContext(ctx,
			state, course, college, address,
			Normalize(state), Normalize(course), Normalize(college), Normalize(address),
			string(models.ParseCourseType(course)),
		)
		if err != nil {
			im.log.Debugw("row rejected", "college", college, "err", err)
			failed = append(failed, row)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import batch: %w", err)
	}
	return failed, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

var junkRe = regexp.MustCompile(`[^A-Z0-9() ]+`)
var spaceRe = regexp.MustCompile(`\s+`)

// Normalize produces the canonical uppercase form the matching stages
// compare on. Brackets and digits survive because college codes and
// pincodes live inside addresses.
func Normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = junkRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func writeFailed(path string, headers []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
