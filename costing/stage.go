package costing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// =============================================================================
// STAGE GRAPH
// =============================================================================

// Output names a set of columns a stage makes available.
type Output string

const (
	OutputAccounts  Output = "accounts"
	OutputMetrics   Output = "metrics"
	OutputGrowth    Output = "growth"
	OutputTargets   Output = "targets"
	OutputMandatory Output = "mandatory"
	OutputPayouts   Output = "payouts"
	OutputPhasing   Output = "phasing"
	OutputBonus     Output = "bonus"
	OutputEstimates Output = "estimates"
	OutputFinal     Output = "final"
)

// Stage is one step of the calculation.
type Stage interface {
	Name() string
	Requires() []Output
	Provides() []Output
	Run(ctx context.Context, r *Run) error
}

// ErrStageDependency is returned when a plan cannot satisfy a stage input.
var ErrStageDependency = errors.New("unsatisfied stage dependency")

// StageError wraps any failure of a stage, including recovered panics.
type StageError struct {
	Stage    string
	SubIndex int
	Err      error
}

func (e *StageError) Error() string {
	if e.SubIndex >= 0 {
		return fmt.Sprintf("stage %s (sub-scheme %d): %v", e.Stage, e.SubIndex, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap exposes both the cause and the internal classification.
func (e *StageError) Unwrap() []error {
	return []error{e.Err, scheme.ErrInternal}
}

// Plan is a dependency-ordered list of stages.
type Plan struct {
	stages []Stage
}

// NewPlan orders stages so each runs after every stage providing one of its
// inputs. Ties keep declaration order. It fails when an input has no
// provider or the graph has a cycle.
func NewPlan(stages ...Stage) (*Plan, error) {
	provider := make(map[Output]int)
	for i, s := range stages {
		for _, o := range s.Provides() {
			if j, dup := provider[o]; dup {
				return nil, fmt.Errorf("%w: %q provided by both %s and %s", ErrStageDependency, o, stages[j].Name(), s.Name())
			}
			provider[o] = i
		}
	}

	deps := make([][]int, len(stages))
	indegree := make([]int, len(stages))
	for i, s := range stages {
		seen := make(map[int]bool)
		for _, in := range s.Requires() {
			j, ok := provider[in]
			if !ok {
				return nil, fmt.Errorf("%w: stage %s requires %q", ErrStageDependency, s.Name(), in)
			}
			if j == i {
				return nil, fmt.Errorf("%w: stage %s requires its own output %q", ErrStageDependency, s.Name(), in)
			}
			if !seen[j] {
				seen[j] = true
				deps[j] = append(deps[j], i)
				indegree[i]++
			}
		}
	}

	ordered := make([]Stage, 0, len(stages))
	done := make([]bool, len(stages))
	for len(ordered) < len(stages) {
		progressed := false
		for i := range stages {
			if done[i] || indegree[i] > 0 {
				continue
			}
			done[i] = true
			ordered = append(ordered, stages[i])
			for _, k := range deps[i] {
				indegree[k]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, fmt.Errorf("%w: cycle between stages", ErrStageDependency)
		}
	}
	return &Plan{stages: ordered}, nil
}

// Stages returns the execution order.
func (p *Plan) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// =============================================================================
// RUN - State shared by the stages of one calculation
// =============================================================================

// Run is the working state of one calculation. Scheme, Sales and Strata are
// read-only; each block of Table is written by one goroutine at a time.
type Run struct {
	Scheme  *scheme.Scheme
	Sales   *sales.Selector
	Strata  map[string]float64
	Table   *Table
	Workers int
	Logger  *slog.Logger

	provided map[Output]bool
}

// execute runs the plan. A failing stage aborts the run and no table is
// returned.
func (p *Plan) execute(ctx context.Context, r *Run, observe func(string, time.Duration)) error {
	r.provided = make(map[Output]bool)
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, in := range s.Requires() {
			if !r.provided[in] {
				return &StageError{Stage: s.Name(), SubIndex: -1, Err: fmt.Errorf("%w: %q not produced", ErrStageDependency, in)}
			}
		}
		start := time.Now()
		if err := runStage(ctx, s, r); err != nil {
			return err
		}
		elapsed := time.Since(start)
		r.Logger.Debug("stage complete",
			slog.String("stage", s.Name()),
			slog.String("scheme_id", r.Scheme.ID),
			slog.Duration("duration", elapsed))
		if observe != nil {
			observe(s.Name(), elapsed)
		}
		for _, o := range s.Provides() {
			r.provided[o] = true
		}
	}
	return nil
}

func runStage(ctx context.Context, s Stage, r *Run) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Logger.Error("stage panic",
				slog.String("stage", s.Name()),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			err = &StageError{Stage: s.Name(), SubIndex: -1, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	if err := s.Run(ctx, r); err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return err
		}
		return &StageError{Stage: s.Name(), SubIndex: -1, Err: err}
	}
	return nil
}

// eachSubScheme runs fn for every sub-scheme on a bounded pool. fn must only
// write to the block it is given.
func (r *Run) eachSubScheme(ctx context.Context, stage string, fn func(sub *scheme.SubScheme, b *Block) error) error {
	g, _ := errgroup.WithContext(ctx)
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i := range r.Scheme.SubSchemes {
		sub := &r.Scheme.SubSchemes[i]
		blk := r.Table.Blocks[i]
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					r.Logger.Error("stage panic",
						slog.String("stage", stage),
						slog.Int("sub_scheme", sub.Index),
						slog.Any("panic", rec))
					err = &StageError{Stage: stage, SubIndex: sub.Index, Err: fmt.Errorf("panic: %v", rec)}
				}
			}()
			if err := fn(sub, blk); err != nil {
				return &StageError{Stage: stage, SubIndex: sub.Index, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}
