package matcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/seatmatrix/matchlink/agentic"
	"github.com/seatmatrix/matchlink/config"
	"github.com/seatmatrix/matchlink/db"
	"github.com/seatmatrix/matchlink/registry"
	"github.com/seatmatrix/matchlink/retrieval"
	"github.com/seatmatrix/matchlink/validation"
)

// Result aggregates what each stage contributed to one pipeline run.
type Result struct {
	Stage1  Stage1Stats
	Stage2  int64
	Agentic agentic.Stats
	Cleared int64
	Final   db.MatchStats
}

// Pipeline chains the resolution stages over one working table. Stages run
// strictly in sequence; each one only sees records the previous stages left
// unresolved, and the reconciliation sweep runs between every pair.
type Pipeline struct {
	db      *db.DB
	cfg     *config.Pipeline
	stage1  *Stage1
	stage2  *Stage2
	agentic *agentic.Supervisor
	sweeper *validation.Sweeper
	log     *zap.SugaredLogger
}

// NewPipeline wires the full cascade.
func NewPipeline(d *db.DB, reg *registry.Registry, ret *retrieval.Retriever, sup *agentic.Supervisor, cfg *config.Pipeline, log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		db:      d,
		cfg:     cfg,
		stage1:  NewStage1(d, cfg, log),
		stage2:  NewStage2(d, reg, cfg, log),
		agentic: sup,
		sweeper: validation.NewSweeper(d, log),
		log:     log,
	}
}

// Run executes the cascade and returns per-stage counts. It fails fast on
// schema problems and database errors; it never continues on partial state.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var res Result
	table := p.cfg.Table

	if err := p.db.VerifySchema(table); err != nil {
		return res, fmt.Errorf("schema verification: %w", err)
	}

	s1, err := p.stage1.Run(ctx, table)
	if err != nil {
		return res, fmt.Errorf("stage 1: %w", err)
	}
	res.Stage1 = s1
	if err := p.sweep(ctx, table, &res); err != nil {
		return res, err
	}

	s2, err := p.stage2.Run(ctx, table)
	if err != nil {
		return res, fmt.Errorf("stage 2: %w", err)
	}
	res.Stage2 = s2
	if err := p.sweep(ctx, table, &res); err != nil {
		return res, err
	}

	if p.agentic != nil {
		stats, err := p.agentic.Run(ctx, table)
		if err != nil {
			return res, fmt.Errorf("agentic stage: %w", err)
		}
		res.Agentic = stats
		if err := p.sweep(ctx, table, &res); err != nil {
			return res, err
		}
	}

	final, err := p.db.Stats(ctx, table)
	if err != nil {
		return res, err
	}
	res.Final = final
	return res, nil
}

func (p *Pipeline) sweep(ctx context.Context, table string, res *Result) error {
	if p.cfg.DryRun {
		return nil
	}
	cleared, err := p.sweeper.Run(ctx, table)
	if err != nil {
		return fmt.Errorf("reconciliation sweep: %w", err)
	}
	res.Cleared += cleared
	return nil
}
