package costing

import (
	"sort"

	"github.com/warp/costing-engine/sales"
)

// =============================================================================
// TABLE - Record of column arrays, one block per sub-scheme
// =============================================================================

// Account is the identity of one result row.
type Account struct {
	CreditAccount string
	CustomerName  string
	State         string
	Region        string
	Area          string
	Division      string
	DealerType    string
	Distributor   string
}

func (a Account) text(f Field) string {
	switch f {
	case FieldCreditAccount:
		return a.CreditAccount
	case FieldCustomerName:
		return a.CustomerName
	case FieldStateName:
		return a.State
	case FieldRegionName:
		return a.Region
	case FieldAreaHeadName:
		return a.Area
	case FieldDivision:
		return a.Division
	case FieldDealerType:
		return a.DealerType
	case FieldDistributor:
		return a.Distributor
	}
	return ""
}

// Table is the result of one calculation. Rows are accounts in ascending
// credit_account order. Each sub-scheme owns one Block; only the stage
// working on that sub-scheme writes to it.
type Table struct {
	SchemeID string
	Accounts []Account
	Blocks   []*Block

	// Terminal columns.
	FinalPayout []float64
	Rewards     []string

	suffixes []string
	index    map[string]int
}

func newTable(schemeID string, latest map[string]*sales.Row, blocks int) *Table {
	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := &Table{
		SchemeID: schemeID,
		Accounts: make([]Account, len(keys)),
		index:    make(map[string]int, len(keys)),
	}
	for i, k := range keys {
		r := latest[k]
		t.Accounts[i] = Account{
			CreditAccount: k,
			CustomerName:  r.CustomerName,
			State:         r.State,
			Region:        r.Region,
			Area:          r.Area,
			Division:      r.Division,
			DealerType:    r.DealerType,
			Distributor:   r.Distributor,
		}
		t.index[k] = i
	}
	for i := 0; i < blocks; i++ {
		t.Blocks = append(t.Blocks, newBlock(i, len(keys)))
	}
	return t
}

// Len is the number of rows.
func (t *Table) Len() int { return len(t.Accounts) }

// Row returns the row index of an account.
func (t *Table) Row(account string) (int, bool) {
	i, ok := t.index[account]
	return i, ok
}

// Value reads one cell. Missing columns or accounts read as 0.
func (t *Table) Value(block int, f Field, slot int, account string) float64 {
	i, ok := t.index[account]
	if !ok || block < 0 || block >= len(t.Blocks) {
		return 0
	}
	col := t.Blocks[block].Values(f, slot)
	if col == nil {
		return 0
	}
	return col[i]
}

// Final returns the terminal payout and reward text of an account.
func (t *Table) Final(account string) (float64, string) {
	i, ok := t.index[account]
	if !ok || len(t.FinalPayout) == 0 {
		return 0, ""
	}
	return t.FinalPayout[i], t.Rewards[i]
}

// vectors spreads per-account totals onto row order.
func (t *Table) vectors(totals map[string]sales.Totals) (vol, val []float64) {
	vol = make([]float64, len(t.Accounts))
	val = make([]float64, len(t.Accounts))
	for k, s := range totals {
		if i, ok := t.index[k]; ok {
			vol[i] = s.Volume
			val[i] = s.Value
		}
	}
	return vol, val
}

func (t *Table) zeros() []float64 {
	return make([]float64, len(t.Accounts))
}

// =============================================================================
// BLOCK - Columns of one sub-scheme
// =============================================================================

// Block holds the columns of one sub-scheme in insertion order.
type Block struct {
	Index int

	rows  int
	order []Column
	nums  map[Column][]float64
	texts map[Column][]string

	// bucket is the slab index per row, chosen once from the basis total.
	bucket []int
}

func newBlock(index, rows int) *Block {
	return &Block{
		Index: index,
		rows:  rows,
		nums:  make(map[Column][]float64),
		texts: make(map[Column][]string),
	}
}

// Set stores a numeric column. Setting an existing column replaces it in
// place and keeps its position.
func (b *Block) Set(f Field, slot int, v []float64) {
	c := Column{Field: f, Slot: slot}
	if _, ok := b.nums[c]; !ok {
		b.order = append(b.order, c)
	}
	b.nums[c] = v
}

// SetText stores a text column.
func (b *Block) SetText(f Field, v []string) {
	c := Column{Field: f}
	if _, ok := b.texts[c]; !ok {
		b.order = append(b.order, c)
	}
	b.texts[c] = v
}

// Values returns a numeric column or nil.
func (b *Block) Values(f Field, slot int) []float64 {
	return b.nums[Column{Field: f, Slot: slot}]
}

// Text returns a text column or nil.
func (b *Block) Text(f Field) []string {
	return b.texts[Column{Field: f}]
}

// Has reports whether a column was written.
func (b *Block) Has(f Field, slot int) bool {
	c := Column{Field: f, Slot: slot}
	_, num := b.nums[c]
	_, txt := b.texts[c]
	return num || txt
}

// Columns lists the block's columns in insertion order.
func (b *Block) Columns() []Column {
	out := make([]Column, len(b.order))
	copy(out, b.order)
	return out
}

// must returns a column a later stage depends on. Stage ordering guarantees
// presence; a missing column is a programming error.
func (b *Block) must(f Field, slot int) []float64 {
	v, ok := b.nums[Column{Field: f, Slot: slot}]
	if !ok {
		panic("costing: column " + Column{Field: f, Slot: slot}.Header("") + " not computed")
	}
	return v
}
