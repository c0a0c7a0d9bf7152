package matcher

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/config"
	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/models"
	"github.com/seatmatrix/matchlink/registry"
	"github.com/seatmatrix/matchlink/similarity"
)

const (
	nameFloor     = 80.0
	addressFloor  = 75.0
	nameWeight    = 0.6
	addressWeight = 0.4

	minBatch = 1000
	maxBatch = 50000
)

// Stage2 scores state/course-filtered candidates with token-set similarity.
// Acceptance needs both the name and address floors; the committed score is
// the weighted combination.
type Stage2 struct {
	db  *db.DB
	reg *registry.Registry
	cfg *config.Pipeline
	log *zap.SugaredLogger
}

// NewStage2 builds the fuzzy matcher.
func NewStage2(d *db.DB, reg *registry.Registry, cfg *config.Pipeline, log *zap.SugaredLogger) *Stage2 {
	return &Stage2{db: d, reg: reg, cfg: cfg, log: log}
}

// BatchSize picks a batch size for a backlog: one batch for small tables,
// otherwise rows split across workers within the [1k, 50k] clamp.
func BatchSize(total int64, workers int) int {
	if total < minBatch {
		return int(total)
	}
	if workers < 1 {
		workers = 1
	}
	size := total / int64(workers)
	if size < minBatch {
		size = minBatch
	}
	if size > maxBatch {
		size = maxBatch
	}
	return int(size)
}

// Run processes all eligible unresolved rows and returns the match count.
func (s *Stage2) Run(ctx context.Context, table string) (int64, error) {
	total, err := s.db.CountUnresolved(ctx, table)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	batch := BatchSize(total, s.cfg.WorkerCount)
	if batch == 0 {
		return 0, nil
	}

	var matched int64
	offset := 0
	pools := make(map[string][]models.MasterCollege)

	for {
		rows, err := s.db.FetchUnresolved(ctx, table, batch, offset)
		if err != nil {
			return matched, err
		}
		if len(rows) == 0 {
			break
		}

		var commits []db.Commit
		for i := range rows {
			rec := &rows[i]
			if !rec.MasterStateID.Valid || !rec.MasterCourseID.Valid {
				continue
			}
			pool, err := s.poolFor(ctx, rec, pools)
			if err != nil {
				return matched, err
			}
			if c, ok := s.bestMatch(rec, pool); ok {
				commits = append(commits, c)
			}
		}

		n, err := s.db.ApplyCommits(ctx, table, commits)
		if err != nil {
			return matched, err
		}
		matched += n

		// Committed rows drop out of the unresolved set; advance the
		// cursor only past the rows that stayed behind.
		offset += len(rows) - len(commits)
		if len(rows) < batch {
			break
		}
	}

	s.log.Infow("fuzzy stage complete", "matched", matched)
	return matched, nil
}

func (s *Stage2) poolFor(ctx context.Context, rec *models.SeatRecord, cache map[string][]models.MasterCollege) ([]models.MasterCollege, error) {
	streams := StreamsForCourse(rec, s.cfg.Diploma)
	key := strconv.FormatInt(rec.MasterStateID.Int64, 10) + "|" +
		strconv.FormatInt(rec.MasterCourseID.Int64, 10)
	if pool, ok := cache[key]; ok {
		return pool, nil
	}
	pool, err := s.reg.CandidatesByStateCourse(ctx, rec.MasterStateID.Int64, rec.MasterCourseID.Int64, streams)
	if err != nil {
		return nil, fmt.Errorf("loading candidate pool: %w", err)
	}
	cache[key] = pool
	return pool, nil
}

// bestMatch returns the commit for the highest combined-scoring candidate
// meeting both floors, if any.
func (s *Stage2) bestMatch(rec *models.SeatRecord, pool []models.MasterCollege) (db.Commit, bool) {
	var best *models.MasterCollege
	var bestScore float64

	for i := range pool {
		c := &pool[i]
		nameScore := similarity.TokenSetRatio(rec.BestCollegeName(), compositeName(c))
		if nameScore < nameFloor {
			continue
		}
		addrScore := similarity.TokenSetRatio(rec.BestAddress(), c.Address)
		if addrScore < addressFloor {
			continue
		}
		combined := nameWeight*nameScore + addressWeight*addrScore
		if combined > bestScore {
			bestScore = combined
			best = c
		}
	}
	if best == nil {
		return db.Commit{}, false
	}
	return db.Commit{
		IDs:       []string{strconv.FormatInt(rec.ID, 10)},
		CollegeID: best.ID,
		Score:     bestScore / 100,
		Method:    "stage2_fuzzy",
	}, true
}

// compositeName is the college name portion of the composite key, falling
// back to the normalized name when no key is recorded.
func compositeName(c *models.MasterCollege) string {
	if c.CompositeKey != "" {
		for i := 0; i < len(c.CompositeKey); i++ {
			if c.CompositeKey[i] == ',' {
				return c.CompositeKey[:i]
			}
		}
		return c.CompositeKey
	}
	return c.BestName()
}

// StreamsForCourse maps a record's course type onto registry streams,
// consulting the diploma configuration for diploma courses.
func StreamsForCourse(rec *models.SeatRecord, diploma config.DiplomaConfig) []string {
	switch rec.Stream() {
	case models.CourseDental:
		return []string{"DENTAL"}
	case models.CourseDNB:
		return []string{"DNB"}
	case models.CourseDiploma:
		return diploma.Streams(rec.NormalizedCourseName)
	default:
		return []string{"MEDICAL"}
	}
}
