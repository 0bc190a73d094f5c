/*
Package scheme holds the typed, immutable model of a trade-promotion scheme.

PURPOSE:
  A Scheme is built once by the factory package from the raw scheme
  definition and then only read. Every calculation stage receives the same
  *Scheme; nothing in the engine mutates it.

KEY CONCEPTS:
  Scheme:     Periods, filters, category and an ordered list of sub-schemes
  SubScheme:  The main scheme (index 0) or the N-th additional scheme
  Slab:       A band of the account's basis total carrying coefficients
  Basis:      Whether targets and payouts are driven by volume or value

SUB-SCHEME INDEXING:
  Index 0 is the main scheme. Index N >= 1 is the N-th additional scheme in
  definition order and renders its columns with the suffix "_pN".

SEE ALSO:
  - factory/scheme.go: Builds a Scheme from JSON
  - costing/engine.go: Consumes a Scheme
*/
package scheme

import (
	"fmt"
	"strings"
)

// =============================================================================
// ENUMS
// =============================================================================

// Basis selects the axis targets and payouts are computed on.
type Basis string

const (
	BasisVolume Basis = "volume"
	BasisValue  Basis = "value"
)

// ParseBasis accepts "volume"/"value" in any case.
func ParseBasis(s string) (Basis, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "volume":
		return BasisVolume, true
	case "value":
		return BasisValue, true
	}
	return "", false
}

func (b Basis) IsVolume() bool { return b == BasisVolume }

// Aggregation is how a base period is reduced per account.
type Aggregation string

const (
	AggregateSum     Aggregation = "sum"
	AggregateAverage Aggregation = "average"
)

// Category of a scheme. Only HO and inbuilt change behaviour.
type Category string

const (
	CategoryHO      Category = "HO"
	CategoryInbuilt Category = "Inbuilt"
)

// =============================================================================
// FEATURES - Per sub-scheme gates, all disabled by default
// =============================================================================

// Features are the boolean gates of a sub-scheme.
type Features struct {
	PayoutProducts       bool `json:"payout_products"`
	MandatoryProducts    bool `json:"mandatory_products"`
	BonusSchemes         bool `json:"bonus_schemes"`
	RewardSlabs          bool `json:"reward_slabs"`
	SchemeApplicable     bool `json:"scheme_applicable"`
	EnableStrataGrowth   bool `json:"enable_strata_growth"`
	ShowMandatoryProduct bool `json:"show_mandatory_product"`
}

// =============================================================================
// PERIOD-LEVEL RECORDS
// =============================================================================

// BasePeriod is a historical window and its per-account aggregation.
type BasePeriod struct {
	Period      Period
	Aggregation Aggregation
}

// Divisor is the month count for average aggregation and 1 for sum.
func (b BasePeriod) Divisor() float64 {
	if b.Aggregation == AggregateAverage {
		if m := b.Period.Months(); m > 0 {
			return float64(m)
		}
	}
	return 1
}

// PhasingPeriod is a sub-window of the scheme period with its own target
// and rebate, plus an optional bonus leg over separate windows.
type PhasingPeriod struct {
	ID           int
	Phasing      Period
	Payout       Period
	RebateValue  float64
	RebatePct    float64
	TargetPct    float64
	IsBonus      bool
	BonusPhasing Period
	BonusPayout  Period
	BonusRebate  float64
	BonusPct     float64
	BonusTarget  float64
}

// BonusScheme is a parallel target-and-reward scheme on the main scheme.
type BonusScheme struct {
	ID                     int
	Name                   string
	MainTargetPct          float64
	MinimumTarget          float64
	MandatoryTargetPct     float64
	MinimumMandatoryTarget float64
	RewardOnTotalPct       float64
	RewardOnMandatoryPct   float64
	Period                 Period
	PayoutPeriod           Period
}

// RewardSlab maps a payout band [From, To] to a prize.
type RewardSlab struct {
	From   float64
	To     float64
	Reward string
}

// Covers reports whether payout falls in [From, To].
func (r RewardSlab) Covers(payout float64) bool {
	return payout >= r.From && payout <= r.To
}

// =============================================================================
// SUB-SCHEME
// =============================================================================

// SubScheme is the main scheme or one additional scheme.
type SubScheme struct {
	Index            int
	Number           string
	Name             string
	Basis            Basis
	MandatoryQualify bool
	Features         Features
	Products         ProductSets
	Slabs            SlabTable
	Phasing          []PhasingPeriod
	Bonuses          []BonusScheme
	Rewards          []RewardSlab
}

// IsMain reports the main scheme.
func (s *SubScheme) IsMain() bool { return s.Index == 0 }

// Suffix is "" for the main scheme and "_pN" for the N-th additional one.
func (s *SubScheme) Suffix() string {
	if s.Index == 0 {
		return ""
	}
	return fmt.Sprintf("_p%d", s.Index)
}

// Label is a human name used in logs and validation reports.
func (s *SubScheme) Label() string {
	if s.Index == 0 {
		return "main"
	}
	return fmt.Sprintf("additional_%d", s.Index)
}

// MandatoryQualifyText renders the flag the way the sheet shows it.
func (s *SubScheme) MandatoryQualifyText() string {
	if s.MandatoryQualify {
		return "yes"
	}
	return "no"
}

// =============================================================================
// SCHEME
// =============================================================================

// Scheme is the complete, validated model of one scheme definition.
type Scheme struct {
	ID              string
	Title           string
	Category        Category
	Type            string
	CalculationMode Basis
	Period          Period
	BasePeriods     []BasePeriod
	Filters         Applicability
	// FiltersEnabled is the main scheme's scheme_applicable gate.
	FiltersEnabled bool
	SubSchemes     []SubScheme
}

// Main returns the main sub-scheme.
func (s *Scheme) Main() *SubScheme {
	return &s.SubSchemes[0]
}

// IsHO reports an HO-category scheme.
func (s *Scheme) IsHO() bool {
	return strings.EqualFold(string(s.Category), string(CategoryHO))
}

// IsInbuilt reports an inbuilt-category scheme.
func (s *Scheme) IsInbuilt() bool {
	return strings.EqualFold(string(s.Category), string(CategoryInbuilt))
}

// ApplicableFilters returns the filters in force. A disabled gate yields
// the empty filter.
func (s *Scheme) ApplicableFilters() Applicability {
	if !s.FiltersEnabled {
		return Applicability{}
	}
	return s.Filters
}

// SalesWindow returns the smallest period covering every window the engine
// reads, so a collaborator can fetch the sales once.
func (s *Scheme) SalesWindow() Period {
	w := s.Period
	for _, b := range s.BasePeriods {
		w = w.Union(b.Period)
	}
	for i := range s.SubSchemes {
		sub := &s.SubSchemes[i]
		for _, p := range sub.Phasing {
			w = w.Union(p.Phasing).Union(p.Payout)
			if p.IsBonus {
				w = w.Union(p.BonusPhasing).Union(p.BonusPayout)
			}
		}
		for _, b := range sub.Bonuses {
			w = w.Union(b.Period).Union(b.PayoutPeriod)
		}
	}
	return w
}
