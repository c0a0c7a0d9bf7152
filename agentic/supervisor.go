package agentic

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seatmatrix/matchlink/config"
	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/llm"
	"github.com/seatmatrix/matchlink/models"
	"github.com/seatmatrix/matchlink/retrieval"
	"github.com/seatmatrix/matchlink/validation"
)

const (
	maxModelsPerBatch = 5
	zeroProgressLimit = 3

	// LLM decisions below this confidence are treated as no-match.
	confidenceFloor = 0.90

	FlagUnmatchable = "unmatchable_by_agentic"
	FlagNoMatch     = "no_match_by_agentic"
)

// ModelClient is the slice of the LLM client the supervisor depends on.
type ModelClient interface {
	Generate(ctx context.Context, model, system, user string) (string, error)
	Workers() int
}

// Stats summarizes one supervisor run.
type Stats struct {
	Rounds    int
	Matched   int64
	Rejected  int64
	Flagged   int64
	NoCands   int64
	Fallbacks int64
}

// Supervisor runs the multi-round consensus stage: retrieval, grouping,
// parallel dispatch with model fallback, validation and commit.
type Supervisor struct {
	db      *db.DB
	ret     *retrieval.Retriever
	guard   *validation.Guard
	auditor *validation.Auditor
	client  ModelClient
	cfg     *config.Pipeline
	log     *zap.SugaredLogger
}

// NewSupervisor wires the consensus stage.
func NewSupervisor(d *db.DB, ret *retrieval.Retriever, guard *validation.Guard, auditor *validation.Auditor, client ModelClient, cfg *config.Pipeline, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{db: d, ret: ret, guard: guard, auditor: auditor, client: client, cfg: cfg, log: log}
}

// batchResult carries one batch's raw decisions back to the collector.
type batchResult struct {
	batch     *Batch
	decisions []models.MatchDecision
	fallback  bool
}

// Run executes up to cfg.MaxRounds matching rounds and flags whatever is
// still unresolved afterwards. All commits happen on the collector side.
func (s *Supervisor) Run(ctx context.Context, table string) (Stats, error) {
	var stats Stats
	zeroRounds := 0

	for round := 1; round <= s.cfg.MaxRounds; round++ {
		stats.Rounds = round
		progress, err := s.runRound(ctx, table, round, &stats)
		if err != nil {
			return stats, err
		}
		if progress == 0 {
			zeroRounds++
			if zeroRounds >= zeroProgressLimit {
				s.log.Infow("circuit breaker: no progress", "rounds", zeroRounds)
				break
			}
		} else {
			zeroRounds = 0
		}
	}

	if err := s.flagRemaining(ctx, table, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Supervisor) runRound(ctx context.Context, table string, round int, stats *Stats) (int64, error) {
	records, err := s.db.FetchUnresolvedEligible(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	s.log.Infow("consensus round", "round", round, "unresolved", len(records))

	eligible, candidates, err := s.retrieveCandidates(ctx, table, records, stats)
	if err != nil {
		return 0, err
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	size := batchSizeFor(s.cfg.Models[0])
	batches := groupRecords(eligible, candidates, size)

	results := make(chan batchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.client.Workers())
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			res := s.dispatch(gctx, b, i, round)
			select {
			case results <- res:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return 0, err
	}
	close(results)

	var progress int64
	final := round == s.cfg.MaxRounds
	for res := range results {
		n, err := s.collect(ctx, table, res, final, stats)
		if err != nil {
			return progress, err
		}
		progress += n
	}
	return progress, nil
}

// retrieveCandidates builds per-record candidate lists and drops records
// with no qualifying candidate, flagging them so later rounds skip them.
func (s *Supervisor) retrieveCandidates(ctx context.Context, table string, records []models.SeatRecord, stats *Stats) ([]*models.SeatRecord, map[int64][]models.Candidate, error) {
	var eligible []*models.SeatRecord
	candidates := make(map[int64][]models.Candidate)
	var noCands []string

	for i := range records {
		rec := &records[i]
		set, err := s.ret.Candidates(ctx, rec)
		if err != nil {
			return nil, nil, err
		}
		quality := retrieval.Quality(set.Candidates)
		if len(quality) == 0 {
			noCands = append(noCands, strconv.FormatInt(rec.ID, 10))
			continue
		}
		eligible = append(eligible, rec)
		candidates[rec.ID] = quality
	}

	if len(noCands) > 0 && !s.cfg.DryRun {
		n, err := s.db.FlagRecords(ctx, table, noCands, "quality_filter")
		if err != nil {
			return nil, nil, err
		}
		stats.NoCands += n
	}
	return eligible, candidates, nil
}

// dispatch tries models for one batch until one yields decisions, rotating
// through the priority list from a round-dependent offset. When every model
// is exhausted the local fallback scorer takes over.
func (s *Supervisor) dispatch(ctx context.Context, batch *Batch, batchIdx, round int) batchResult {
	if s.cfg.Council {
		return s.dispatchCouncil(ctx, batch, batchIdx, round)
	}

	user := buildUserPrompt(batch)
	offset := (batchIdx + round - 1) % len(s.cfg.Models)
	tried := 0

	for i := 0; i < len(s.cfg.Models) && tried < maxModelsPerBatch; i++ {
		model := s.cfg.Models[(offset+i)%len(s.cfg.Models)]
		if batch.ModelsTried[model] {
			continue
		}
		batch.ModelsTried[model] = true
		tried++

		content, err := s.client.Generate(ctx, model, systemPrompt, user)
		if err != nil {
			if errors.Is(err, llm.ErrNoCredentials) {
				break
			}
			s.log.Warnw("model failed, re-dispatching", "model", model, "err", err)
			continue
		}
		decisions := llm.ParseDecisions(content, model)
		if len(decisions) == 0 {
			s.log.Warnw("unparseable model output", "model", model)
			continue
		}
		if allZeroConfidence(decisions) {
			s.log.Warnw("model returned only zero-confidence decisions, re-dispatching", "model", model)
			continue
		}
		return batchResult{batch: batch, decisions: decisions}
	}

	return batchResult{batch: batch, decisions: hybridFallback(batch), fallback: true}
}

// allZeroConfidence reports whether a response carries no usable signal.
// Such a batch counts as failed and goes to the next untried model.
func allZeroConfidence(decisions []models.MatchDecision) bool {
	for _, d := range decisions {
		if d.Confidence > 0 {
			return false
		}
	}
	return true
}

// dispatchCouncil fans the same batch out to N models and reduces their
// answers by per-record majority.
func (s *Supervisor) dispatchCouncil(ctx context.Context, batch *Batch, batchIdx, round int) batchResult {
	size := s.cfg.CouncilSize
	if size <= 0 || size > len(s.cfg.Models) {
		size = len(s.cfg.Models)
	}
	user := buildUserPrompt(batch)
	offset := (batchIdx + round - 1) % len(s.cfg.Models)

	var mu sync.Mutex
	var votes []models.CouncilVote
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		model := s.cfg.Models[(offset+i)%len(s.cfg.Models)]
		batch.ModelsTried[model] = true
		wg.Add(1)
		go func(model string) {
			defer wg.Done()
			content, err := s.client.Generate(ctx, model, systemPrompt, user)
			if err != nil {
				s.log.Warnw("council member failed", "model", model, "err", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, d := range llm.ParseDecisions(content, model) {
				votes = append(votes, models.CouncilVote{Model: model, Decision: d})
			}
		}(model)
	}
	wg.Wait()

	if len(votes) == 0 {
		return batchResult{batch: batch, decisions: hybridFallback(batch), fallback: true}
	}
	return batchResult{batch: batch, decisions: tallyCouncil(votes)}
}

// collect validates one batch's decisions and commits the survivors in a
// single short transaction.
func (s *Supervisor) collect(ctx context.Context, table string, res batchResult, final bool, stats *Stats) (int64, error) {
	known := make(map[int64]*models.SeatRecord, len(res.batch.Records))
	for _, rec := range res.batch.Records {
		known[rec.ID] = rec
	}

	method := "agentic_llm"
	if res.fallback {
		method = "hybrid_fallback"
		stats.Fallbacks += int64(len(res.decisions))
	}

	var commits []db.Commit
	flags := make(map[string][]string)
	for i := range res.decisions {
		d := &res.decisions[i]
		for _, idStr := range d.RecordIDs() {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				continue
			}
			rec, ok := known[id]
			if !ok {
				// Hallucinated record id; never trust it.
				continue
			}
			if !d.Matched() {
				// Declined with candidates in hand. Earlier rounds
				// leave the record for another model's opinion.
				if final {
					flags[FlagNoMatch] = append(flags[FlagNoMatch], idStr)
				}
				continue
			}
			if d.Confidence < confidenceFloor {
				continue
			}
			if !inCandidates(res.batch.Candidates[id], d.MatchedCollegeID) {
				s.log.Warnw("decision outside candidate list",
					"record", id, "college", d.MatchedCollegeID, "model", d.Model)
				continue
			}

			if s.cfg.Validate {
				rej, err := s.guard.Check(ctx, rec, d)
				if err != nil {
					return 0, err
				}
				if rej != nil {
					stats.Rejected++
					s.log.Infow("decision vetoed", "record", id, "reason", rej.Reason)
					if s.auditor != nil && !s.cfg.DryRun {
						if err := s.auditor.LogRejection(ctx, idStr, d.MatchedCollegeID, rej); err != nil {
							s.log.Warnw("audit write failed", "err", err)
						}
					}
					if rej.Flag != "" {
						flags[rej.Flag] = append(flags[rej.Flag], idStr)
					}
					continue
				}
			}

			commits = append(commits, db.Commit{
				IDs:       []string{idStr},
				CollegeID: d.MatchedCollegeID,
				Score:     d.Confidence,
				Method:    method,
			})
		}
	}

	if s.cfg.DryRun {
		for _, c := range commits {
			s.log.Infow("dry-run match", "record", c.IDs, "college", c.CollegeID, "score", c.Score)
		}
		return int64(len(commits)), nil
	}

	applied, err := s.db.ApplyCommits(ctx, table, commits)
	if err != nil {
		return 0, err
	}
	stats.Matched += applied

	if s.auditor != nil {
		for _, c := range commits {
			if err := s.auditor.LogCommit(ctx, c, method); err != nil {
				s.log.Warnw("audit write failed", "err", err)
			}
		}
	}
	for flag, ids := range flags {
		n, err := s.db.FlagRecords(ctx, table, ids, flag)
		if err != nil {
			return applied, err
		}
		stats.Flagged += n
	}
	return applied, nil
}

// flagRemaining marks records still unresolved after the final round so
// future runs do not re-query them.
func (s *Supervisor) flagRemaining(ctx context.Context, table string, stats *Stats) error {
	if s.cfg.DryRun {
		return nil
	}
	records, err := s.db.FetchUnresolvedEligible(ctx, table)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, 0, len(records))
	for i := range records {
		ids = append(ids, strconv.FormatInt(records[i].ID, 10))
	}
	n, err := s.db.FlagRecords(ctx, table, ids, FlagUnmatchable)
	if err != nil {
		return err
	}
	stats.Flagged += n
	return nil
}

func inCandidates(cands []models.Candidate, collegeID string) bool {
	for i := range cands {
		if cands[i].College.ID == collegeID {
			return true
		}
	}
	return false
}
