package scheme

import "strings"

// =============================================================================
// PRODUCT SETS - Category-aware membership
// =============================================================================

// ProductAttrs is the product identity of one sales row after enrichment
// from the material master.
type ProductAttrs struct {
	Material     string
	Category     string
	Grp          string
	WandaGroup   string
	ThinnerGroup string
}

// ProductSet is a set of products given along five dimensions. A row is a
// member if any one of its dimensions matches.
type ProductSet struct {
	Materials     Set
	Categories    Set
	Grps          Set
	WandaGroups   Set
	ThinnerGroups Set
}

// Empty reports a set with no configured dimension.
func (p ProductSet) Empty() bool {
	return p.Materials.Len() == 0 &&
		p.Categories.Len() == 0 &&
		p.Grps.Len() == 0 &&
		p.WandaGroups.Len() == 0 &&
		p.ThinnerGroups.Len() == 0
}

// Contains reports membership. An empty set contains nothing.
func (p ProductSet) Contains(a ProductAttrs) bool {
	return p.Materials.Has(a.Material) ||
		p.Categories.Has(a.Category) ||
		p.Grps.Has(a.Grp) ||
		p.WandaGroups.Has(a.WandaGroup) ||
		p.ThinnerGroups.Has(a.ThinnerGroup)
}

// ProductSets holds the three predicates of one sub-scheme.
type ProductSets struct {
	Products  ProductSet
	Mandatory ProductSet
	Payout    ProductSet
}

// InProducts: an unconfigured product list places no restriction.
func (p ProductSets) InProducts(a ProductAttrs) bool {
	return p.Products.Empty() || p.Products.Contains(a)
}

func (p ProductSets) InMandatory(a ProductAttrs) bool {
	return p.Mandatory.Contains(a)
}

func (p ProductSets) InPayout(a ProductAttrs) bool {
	return p.Payout.Contains(a)
}

// =============================================================================
// SET - Case-insensitive string set
// =============================================================================

// Set is a string set compared after trimming and upper-casing.
type Set map[string]struct{}

// NewSet builds a set, skipping blanks.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		if k := normalize(v); k != "" {
			s[k] = struct{}{}
		}
	}
	return s
}

// Has reports membership. Blank values are never members.
func (s Set) Has(v string) bool {
	if len(s) == 0 {
		return false
	}
	k := normalize(v)
	if k == "" {
		return false
	}
	_, ok := s[k]
	return ok
}

func (s Set) Len() int { return len(s) }

func normalize(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// =============================================================================
// APPLICABILITY - Geographic and dealer filters
// =============================================================================

// Applicability filters sales rows by the account's metadata. Empty sets
// place no constraint.
type Applicability struct {
	States         Set
	Regions        Set
	Areas          Set
	Divisions      Set
	DealerTypes    Set
	Distributors   Set
	// CreditAccounts is parsed but never applied: every account with
	// matching sales enters the tracker.
	CreditAccounts Set
}

// AccountAttrs is the metadata a row is filtered on.
type AccountAttrs struct {
	State       string
	Region      string
	Area        string
	Division    string
	DealerType  string
	Distributor string
}

// Allows ANDs every configured filter.
func (f Applicability) Allows(a AccountAttrs) bool {
	return allow(f.States, a.State) &&
		allow(f.Regions, a.Region) &&
		allow(f.Areas, a.Area) &&
		allow(f.Divisions, a.Division) &&
		allow(f.DealerTypes, a.DealerType) &&
		allow(f.Distributors, a.Distributor)
}

func allow(s Set, v string) bool {
	return s.Len() == 0 || s.Has(v)
}
