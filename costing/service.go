package costing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/costing-engine/factory"
	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// Source supplies the inputs of a calculation.
type Source interface {
	// Scheme returns the raw scheme definition document. It returns an
	// error wrapping scheme.ErrSchemeMissing when the id is unknown.
	Scheme(ctx context.Context, schemeID string) ([]byte, error)
	// Sales returns every row with a sale date inside window.
	Sales(ctx context.Context, window scheme.Period) ([]sales.Row, error)
	MaterialMaster(ctx context.Context) (sales.MaterialMaster, error)
	// StrataGrowth maps credit account to growth percent. It may be empty.
	StrataGrowth(ctx context.Context, schemeID string) (map[string]float64, error)
}

// Result is one completed calculation.
type Result struct {
	Scheme        *scheme.Scheme
	Table         *Table
	CalculationID string
	CalculatedAt  time.Time
}

// Service fetches inputs from a Source and runs the engine.
type Service struct {
	src     Source
	engine  *Engine
	factory *factory.SchemeFactory
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires a service. A nil logger discards.
func NewService(src Source, engine *Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = engine.logger
	}
	return &Service{
		src:     src,
		engine:  engine,
		factory: factory.NewSchemeFactory(),
		logger:  logger,
		now:     time.Now,
	}
}

// Load fetches and parses a scheme definition.
func (s *Service) Load(ctx context.Context, schemeID string) (*scheme.Scheme, error) {
	raw, err := s.src.Scheme(ctx, schemeID)
	if err != nil {
		return nil, fmt.Errorf("fetch scheme %s: %w", schemeID, err)
	}
	sch, err := s.factory.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("load scheme %s: %w", schemeID, err)
	}
	return sch, nil
}

// Validate loads a scheme without calculating.
func (s *Service) Validate(ctx context.Context, schemeID string) (*scheme.Scheme, error) {
	return s.Load(ctx, schemeID)
}

// Calculate runs a full calculation for schemeID.
func (s *Service) Calculate(ctx context.Context, schemeID string) (*Result, error) {
	sch, err := s.Load(ctx, schemeID)
	if err != nil {
		return nil, err
	}

	var (
		rows   []sales.Row
		master sales.MaterialMaster
		strata map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if rows, err = s.src.Sales(gctx, sch.SalesWindow()); err != nil {
			return fmt.Errorf("fetch sales: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if master, err = s.src.MaterialMaster(gctx); err != nil {
			return fmt.Errorf("fetch material master: %w", err)
		}
		return nil
	})
	if usesStrata(sch) {
		g.Go(func() error {
			var err error
			if strata, err = s.src.StrataGrowth(gctx, sch.ID); err != nil {
				return fmt.Errorf("fetch strata growth: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	master.Enrich(rows)
	table, err := s.engine.Run(ctx, sch, rows, strata)
	if err != nil {
		return nil, fmt.Errorf("calculate scheme %s: %w", schemeID, err)
	}

	res := &Result{
		Scheme:        sch,
		Table:         table,
		CalculationID: uuid.NewString(),
		CalculatedAt:  s.now().UTC(),
	}
	s.logger.Info("calculation finished",
		slog.String("scheme_id", sch.ID),
		slog.String("calculation_id", res.CalculationID),
		slog.Int("accounts", table.Len()))
	return res, nil
}

func usesStrata(s *scheme.Scheme) bool {
	for i := range s.SubSchemes {
		if s.SubSchemes[i].Features.EnableStrataGrowth {
			return true
		}
	}
	return false
}
