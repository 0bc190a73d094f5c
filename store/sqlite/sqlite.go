/*
Package sqlite provides a SQLite-backed costing.Source.

PURPOSE:
  Persists scheme definitions, sales rows, the material master and
  per-account strata growth so the engine can run against a local file in
  development and small deployments.

KEY TABLES:
  schemes:         Raw scheme definition documents keyed by scheme id
  sales:           One row per invoice line, sale_date stored as YYYY-MM-DD
  material_master: Material classification used to enrich sales rows
  strata_growth:   Growth override per (scheme, credit account)

INDEXES:
  - idx_sales_date: Window scans for Sales (hot path)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The PostgreSQL store relies on the
  database instead.

USAGE:
  store, err := sqlite.New("./data/costing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := costing.NewService(store, engine, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - costing/service.go: Source interface
  - store/memory: In-memory implementation for testing
  - store/postgres: Read-only PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

const dateLayout = "2006-01-02"

// Store implements costing.Source using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schemes (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		credit_account TEXT NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		material TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		grp TEXT NOT NULL DEFAULT '',
		wanda_group TEXT NOT NULL DEFAULT '',
		thinner_group TEXT NOT NULL DEFAULT '',
		sale_date TEXT NOT NULL,
		volume REAL NOT NULL DEFAULT 0,
		value REAL NOT NULL DEFAULT 0,
		state_name TEXT NOT NULL DEFAULT '',
		region_name TEXT NOT NULL DEFAULT '',
		area_head_name TEXT NOT NULL DEFAULT '',
		division TEXT NOT NULL DEFAULT '',
		dealer_type TEXT NOT NULL DEFAULT '',
		distributor TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date);

	CREATE TABLE IF NOT EXISTS material_master (
		material TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		grp TEXT NOT NULL DEFAULT '',
		wanda_group TEXT NOT NULL DEFAULT '',
		thinner_group TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS strata_growth (
		scheme_id TEXT NOT NULL,
		credit_account TEXT NOT NULL,
		growth_pct REAL NOT NULL,
		PRIMARY KEY (scheme_id, credit_account)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SOURCE (costing.Source interface)
// =============================================================================

// Scheme returns the stored definition document.
func (s *Store) Scheme(ctx context.Context, schemeID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM schemes WHERE id = ?", schemeID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &scheme.MissingError{SchemeID: schemeID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scheme: %w", err)
	}
	return []byte(doc), nil
}

// Sales returns the rows inside window ordered by sale date.
func (s *Store) Sales(ctx context.Context, window scheme.Period) ([]sales.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT credit_account, customer_name, material, category, grp, wanda_group, thinner_group,
		       sale_date, volume, value, state_name, region_name, area_head_name, division,
		       dealer_type, distributor
		FROM sales
		WHERE sale_date >= ? AND sale_date <= ?
		ORDER BY sale_date, id`,
		window.From.Time().Format(dateLayout), window.To.Time().Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var out []sales.Row
	for rows.Next() {
		r, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSale(rows *sql.Rows) (sales.Row, error) {
	var (
		r        sales.Row
		saleDate string
	)
	err := rows.Scan(
		&r.CreditAccount, &r.CustomerName, &r.Material, &r.Category, &r.Grp, &r.WandaGroup, &r.ThinnerGroup,
		&saleDate, &r.Volume, &r.Value, &r.State, &r.Region, &r.Area, &r.Division,
		&r.DealerType, &r.Distributor,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan sale: %w", err)
	}
	if r.SaleDate, err = scheme.ParseDate(saleDate); err != nil {
		return r, fmt.Errorf("failed to parse sale_date %q: %w", saleDate, err)
	}
	return r, nil
}

// MaterialMaster returns the whole master.
func (s *Store) MaterialMaster(ctx context.Context) (sales.MaterialMaster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT material, category, grp, wanda_group, thinner_group FROM material_master")
	if err != nil {
		return nil, fmt.Errorf("failed to query material master: %w", err)
	}
	defer rows.Close()

	master := make(sales.MaterialMaster)
	for rows.Next() {
		var material string
		var info sales.MaterialInfo
		if err := rows.Scan(&material, &info.Category, &info.Grp, &info.WandaGroup, &info.ThinnerGroup); err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		master[material] = info
	}
	return master, rows.Err()
}

// StrataGrowth returns the growth overrides of one scheme.
func (s *Store) StrataGrowth(ctx context.Context, schemeID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT credit_account, growth_pct FROM strata_growth WHERE scheme_id = ?", schemeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query strata growth: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var account string
		var pct float64
		if err := rows.Scan(&account, &pct); err != nil {
			return nil, fmt.Errorf("failed to scan strata growth: %w", err)
		}
		out[account] = pct
	}
	return out, rows.Err()
}

// =============================================================================
// SEEDING
// =============================================================================

// SaveScheme stores or replaces a definition document.
func (s *Store) SaveScheme(ctx context.Context, schemeID string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO schemes (id, document, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query, schemeID, string(raw), now, now)
	return err
}

// SaveSales appends rows in a single transaction.
func (s *Store) SaveSales(ctx context.Context, rows []sales.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sales
		(credit_account, customer_name, material, category, grp, wanda_group, thinner_group,
		 sale_date, volume, value, state_name, region_name, area_head_name, division,
		 dealer_type, distributor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if r.SaleDate.IsZero() {
			return fmt.Errorf("sale for %s has no sale_date", r.CreditAccount)
		}
		_, err := stmt.ExecContext(ctx,
			r.CreditAccount, r.CustomerName, r.Material, r.Category, r.Grp, r.WandaGroup, r.ThinnerGroup,
			r.SaleDate.Time().Format(dateLayout), r.Volume, r.Value, r.State, r.Region, r.Area, r.Division,
			r.DealerType, r.Distributor,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sale: %w", err)
		}
	}
	return tx.Commit()
}

// SaveMaterials upserts master entries.
func (s *Store) SaveMaterials(ctx context.Context, master sales.MaterialMaster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for material, info := range master {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO material_master (material, category, grp, wanda_group, thinner_group)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(material) DO UPDATE SET
				category = excluded.category,
				grp = excluded.grp,
				wanda_group = excluded.wanda_group,
				thinner_group = excluded.thinner_group`,
			material, info.Category, info.Grp, info.WandaGroup, info.ThinnerGroup,
		)
		if err != nil {
			return fmt.Errorf("failed to save material %s: %w", material, err)
		}
	}
	return tx.Commit()
}

// SaveStrataGrowth upserts growth overrides for one scheme.
func (s *Store) SaveStrataGrowth(ctx context.Context, schemeID string, growth map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for account, pct := range growth {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO strata_growth (scheme_id, credit_account, growth_pct)
			VALUES (?, ?, ?)
			ON CONFLICT(scheme_id, credit_account) DO UPDATE SET growth_pct = excluded.growth_pct`,
			schemeID, account, pct,
		)
		if err != nil {
			return fmt.Errorf("failed to save strata growth: %w", err)
		}
	}
	return tx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"sales", "strata_growth", "material_master", "schemes"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
