// Package memory provides an in-memory costing.Source for tests and
// development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu        sync.RWMutex
	schemes   map[string][]byte
	sales     []sales.Row
	materials sales.MaterialMaster
	strata    map[string]map[string]float64
}

func New() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.schemes = make(map[string][]byte)
	s.sales = nil
	s.materials = make(sales.MaterialMaster)
	s.strata = make(map[string]map[string]float64)
}

// Scheme returns the stored definition document.
func (s *Store) Scheme(_ context.Context, schemeID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.schemes[schemeID]
	if !ok {
		return nil, &scheme.MissingError{SchemeID: schemeID}
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Sales returns copies of the rows inside window, ordered by sale date.
func (s *Store) Sales(_ context.Context, window scheme.Period) ([]sales.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := sort.Search(len(s.sales), func(i int) bool {
		return s.sales[i].SaleDate.AfterOrEqual(window.From)
	})
	var out []sales.Row
	for i := lo; i < len(s.sales); i++ {
		if s.sales[i].SaleDate.After(window.To) {
			break
		}
		out = append(out, s.sales[i])
	}
	return out, nil
}

func (s *Store) MaterialMaster(_ context.Context) (sales.MaterialMaster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(sales.MaterialMaster, len(s.materials))
	for k, v := range s.materials {
		out[k] = v
	}
	return out, nil
}

func (s *Store) StrataGrowth(_ context.Context, schemeID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.strata[schemeID]))
	for k, v := range s.strata[schemeID] {
		out[k] = v
	}
	return out, nil
}

// =============================================================================
// SEEDING
// =============================================================================

// Reset drops everything.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return nil
}

// SaveScheme stores or replaces a definition document.
func (s *Store) SaveScheme(_ context.Context, schemeID string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make([]byte, len(raw))
	copy(doc, raw)
	s.schemes[schemeID] = doc
	return nil
}

// SaveSales appends rows, keeping the store ordered by sale date.
func (s *Store) SaveSales(_ context.Context, rows []sales.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, rows...)
	sort.SliceStable(s.sales, func(i, j int) bool {
		return s.sales[i].SaleDate.Before(s.sales[j].SaleDate)
	})
	return nil
}

func (s *Store) SaveMaterials(_ context.Context, master sales.MaterialMaster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range master {
		s.materials[k] = v
	}
	return nil
}

func (s *Store) SaveStrataGrowth(_ context.Context, schemeID string, growth map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.strata[schemeID]
	if m == nil {
		m = make(map[string]float64, len(growth))
		s.strata[schemeID] = m
	}
	for k, v := range growth {
		m[k] = v
	}
	return nil
}
