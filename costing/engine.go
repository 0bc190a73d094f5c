package costing

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// DefaultWorkers bounds the per-stage sub-scheme pool.
const DefaultWorkers = 4

// DefaultStages returns the stages of a full calculation in declaration
// order.
func DefaultStages() []Stage {
	return []Stage{
		accountsStage{},
		metricsStage{},
		growthStage{},
		targetStage{},
		mandatoryStage{},
		payoutStage{},
		phasingStage{},
		bonusStage{},
		estimateStage{},
		finalStage{},
	}
}

// Engine runs the stage plan over one scheme and its sales.
type Engine struct {
	plan    *Plan
	workers int
	logger  *slog.Logger
	observe func(stage string, d time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the sub-scheme pool size. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStageObserver registers a callback invoked after every stage.
func WithStageObserver(fn func(stage string, d time.Duration)) Option {
	return func(e *Engine) { e.observe = fn }
}

// NewEngine builds an engine over DefaultStages.
func NewEngine(opts ...Option) (*Engine, error) {
	plan, err := NewPlan(DefaultStages()...)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		plan:    plan,
		workers: DefaultWorkers,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run calculates the result table. Rows outside the scheme's applicability
// filters are ignored. An empty row set yields a table with headers and no
// rows.
func (e *Engine) Run(ctx context.Context, s *scheme.Scheme, rows []sales.Row, strata map[string]float64) (*Table, error) {
	r := &Run{
		Scheme:  s,
		Sales:   sales.NewSelector(rows, s.ApplicableFilters()),
		Strata:  strata,
		Workers: e.workers,
		Logger:  e.logger,
	}
	if err := e.plan.execute(ctx, r, e.observe); err != nil {
		return nil, err
	}
	e.logger.Debug("calculation complete",
		slog.String("scheme_id", s.ID),
		slog.Int("accounts", r.Table.Len()),
		slog.Int("sub_schemes", len(s.SubSchemes)))
	return r.Table, nil
}
