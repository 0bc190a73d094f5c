/*
Package sales holds sales rows and the selector that feeds the engine.

PURPOSE:
  A Row is one invoice line as extracted from the sales warehouse. The
  Selector applies the scheme's applicability filters once and then serves
  date windows restricted by a product predicate. Aggregation is left to
  callers.

POLICY:
  - sale_date windows are inclusive at both ends
  - every configured applicability filter must match (AND); empty filters
    place no constraint
  - the credit_account filter is never applied
  - negative and zero volumes/values are kept; sums include them

SEE ALSO:
  - scheme/products.go: ProductSet and Applicability
  - costing/metrics.go: First consumer of the selector
*/
package sales

import (
	"sort"
	"strings"

	"github.com/warp/costing-engine/scheme"
)

// Row is one sales record.
type Row struct {
	CreditAccount string      `json:"credit_account"`
	CustomerName  string      `json:"customer_name"`
	Material      string      `json:"material"`
	Category      string      `json:"category"`
	Grp           string      `json:"grp"`
	WandaGroup    string      `json:"wanda_group"`
	ThinnerGroup  string      `json:"thinner_group"`
	SaleDate      scheme.Date `json:"sale_date"`
	Volume        float64     `json:"volume"`
	Value         float64     `json:"value"`
	State         string      `json:"state_name"`
	Region        string      `json:"region_name"`
	Area          string      `json:"area_head_name"`
	Division      string      `json:"division"`
	DealerType    string      `json:"dealer_type"`
	Distributor   string      `json:"distributor"`
}

// Product returns the product identity used for set membership.
func (r *Row) Product() scheme.ProductAttrs {
	return scheme.ProductAttrs{
		Material:     r.Material,
		Category:     r.Category,
		Grp:          r.Grp,
		WandaGroup:   r.WandaGroup,
		ThinnerGroup: r.ThinnerGroup,
	}
}

// Account returns the metadata used by applicability filters.
func (r *Row) Account() scheme.AccountAttrs {
	return scheme.AccountAttrs{
		State:       r.State,
		Region:      r.Region,
		Area:        r.Area,
		Division:    r.Division,
		DealerType:  r.DealerType,
		Distributor: r.Distributor,
	}
}

// =============================================================================
// MATERIAL MASTER
// =============================================================================

// MaterialInfo is the classification of one material.
type MaterialInfo struct {
	Category     string `json:"category"`
	Grp          string `json:"grp"`
	WandaGroup   string `json:"wanda_group"`
	ThinnerGroup string `json:"thinner_group"`
}

// MaterialMaster maps a material code to its classification.
type MaterialMaster map[string]MaterialInfo

// Enrich fills blank classification fields of each row from the master.
// Material codes match after trimming and upper-casing. Rows are modified
// in place.
func (m MaterialMaster) Enrich(rows []Row) {
	if len(m) == 0 {
		return
	}
	index := make(map[string]MaterialInfo, len(m))
	for code, info := range m {
		if k := materialKey(code); k != "" {
			index[k] = info
		}
	}
	for i := range rows {
		r := &rows[i]
		info, ok := index[materialKey(r.Material)]
		if !ok {
			continue
		}
		if r.Category == "" {
			r.Category = info.Category
		}
		if r.Grp == "" {
			r.Grp = info.Grp
		}
		if r.WandaGroup == "" {
			r.WandaGroup = info.WandaGroup
		}
		if r.ThinnerGroup == "" {
			r.ThinnerGroup = info.ThinnerGroup
		}
	}
}

func materialKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// =============================================================================
// SELECTOR
// =============================================================================

// Predicate decides whether a row counts for a product set.
type Predicate func(r *Row) bool

// Any accepts every row.
func Any(*Row) bool { return true }

// Selector serves filtered sales windows. It is read-only after
// construction and safe for concurrent use.
type Selector struct {
	rows []Row
}

// NewSelector applies the applicability filters and keeps the surviving
// rows ordered by sale date. The input slice is not retained.
func NewSelector(rows []Row, filters scheme.Applicability) *Selector {
	kept := make([]Row, 0, len(rows))
	for i := range rows {
		if filters.Allows(rows[i].Account()) {
			kept = append(kept, rows[i])
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].SaleDate.Before(kept[j].SaleDate)
	})
	return &Selector{rows: kept}
}

// Len is the number of rows that passed the filters.
func (s *Selector) Len() int { return len(s.rows) }

// Select returns the rows inside period that satisfy pred.
func (s *Selector) Select(period scheme.Period, pred Predicate) []*Row {
	if !period.Valid() {
		return nil
	}
	lo := sort.Search(len(s.rows), func(i int) bool {
		return s.rows[i].SaleDate.AfterOrEqual(period.From)
	})
	var out []*Row
	for i := lo; i < len(s.rows); i++ {
		r := &s.rows[i]
		if r.SaleDate.After(period.To) {
			break
		}
		if pred == nil || pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Accounts returns, for every account with a row in any of the periods, the
// latest-dated row in those periods. Product sets are not consulted.
func (s *Selector) Accounts(periods ...scheme.Period) map[string]*Row {
	out := make(map[string]*Row)
	for _, p := range periods {
		for _, r := range s.Select(p, Any) {
			cur, ok := out[r.CreditAccount]
			if !ok || r.SaleDate.AfterOrEqual(cur.SaleDate) {
				out[r.CreditAccount] = r
			}
		}
	}
	return out
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Totals is a per-account volume and value sum.
type Totals struct {
	Volume float64
	Value  float64
}

// Sum groups rows by account.
func Sum(rows []*Row) map[string]Totals {
	out := make(map[string]Totals)
	for _, r := range rows {
		t := out[r.CreditAccount]
		t.Volume += r.Volume
		t.Value += r.Value
		out[r.CreditAccount] = t
	}
	return out
}

// DistinctPositive counts, per account, the distinct materials whose summed
// value over rows is positive.
func DistinctPositive(rows []*Row) map[string]int {
	byMaterial := make(map[string]map[string]float64)
	for _, r := range rows {
		m := byMaterial[r.CreditAccount]
		if m == nil {
			m = make(map[string]float64)
			byMaterial[r.CreditAccount] = m
		}
		m[strings.ToUpper(strings.TrimSpace(r.Material))] += r.Value
	}
	out := make(map[string]int, len(byMaterial))
	for account, m := range byMaterial {
		n := 0
		for _, v := range m {
			if v > 0 {
				n++
			}
		}
		out[account] = n
	}
	return out
}
