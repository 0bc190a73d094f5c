// Package postgres provides a read-only costing.Source backed by a
// PostgreSQL sales warehouse. It expects the same tables the sqlite store
// migrates: schemes, sales, material_master and strata_growth.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// Open creates a connection pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store/postgres: ping: %w", err)
	}

	return pool, nil
}

// Querier is the subset of *pgxpool.Pool the store uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements costing.Source on PostgreSQL.
type Store struct {
	db Querier
}

func New(db Querier) *Store {
	return &Store{db: db}
}

// Scheme returns the stored definition document.
func (s *Store) Scheme(ctx context.Context, schemeID string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT document FROM schemes WHERE id = $1`, schemeID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &scheme.MissingError{SchemeID: schemeID}
	}
	if err != nil {
		return nil, fmt.Errorf("store/postgres: load scheme: %w", err)
	}
	return doc, nil
}

// Sales returns the rows inside window ordered by sale date.
func (s *Store) Sales(ctx context.Context, window scheme.Period) ([]sales.Row, error) {
	rows, err := s.db.Query(ctx, `
		SELECT credit_account, customer_name, material, category, grp, wanda_group, thinner_group,
		       sale_date, volume, value, state_name, region_name, area_head_name, division,
		       dealer_type, distributor
		FROM sales
		WHERE sale_date BETWEEN $1 AND $2
		ORDER BY sale_date, id`,
		window.From.Time(), window.To.Time(),
	)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: query sales: %w", err)
	}
	defer rows.Close()

	out := make([]sales.Row, 0)
	for rows.Next() {
		var (
			r        sales.Row
			saleDate time.Time
		)
		if err := rows.Scan(
			&r.CreditAccount, &r.CustomerName, &r.Material, &r.Category, &r.Grp, &r.WandaGroup, &r.ThinnerGroup,
			&saleDate, &r.Volume, &r.Value, &r.State, &r.Region, &r.Area, &r.Division,
			&r.DealerType, &r.Distributor,
		); err != nil {
			return nil, fmt.Errorf("store/postgres: scan sale: %w", err)
		}
		r.SaleDate = scheme.DateOf(saleDate)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/postgres: iterate sales: %w", err)
	}
	return out, nil
}

func (s *Store) MaterialMaster(ctx context.Context) (sales.MaterialMaster, error) {
	rows, err := s.db.Query(ctx, `SELECT material, category, grp, wanda_group, thinner_group FROM material_master`)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: query material master: %w", err)
	}
	defer rows.Close()

	master := make(sales.MaterialMaster)
	for rows.Next() {
		var material string
		var info sales.MaterialInfo
		if err := rows.Scan(&material, &info.Category, &info.Grp, &info.WandaGroup, &info.ThinnerGroup); err != nil {
			return nil, fmt.Errorf("store/postgres: scan material: %w", err)
		}
		master[material] = info
	}
	return master, rows.Err()
}

func (s *Store) StrataGrowth(ctx context.Context, schemeID string) (map[string]float64, error) {
	rows, err := s.db.Query(ctx, `SELECT credit_account, growth_pct FROM strata_growth WHERE scheme_id = $1`, schemeID)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: query strata growth: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var account string
		var pct float64
		if err := rows.Scan(&account, &pct); err != nil {
			return nil, fmt.Errorf("store/postgres: scan strata growth: %w", err)
		}
		out[account] = pct
	}
	return out, rows.Err()
}
