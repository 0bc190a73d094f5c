package costing

import (
	"context"
	"log/slog"
	"math"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// =============================================================================
// ACCOUNTS - Row universe
// =============================================================================

// accountsStage creates one row per account with any sales in a base or the
// scheme period, whatever the product.
type accountsStage struct{}

func (accountsStage) Name() string       { return "accounts" }
func (accountsStage) Requires() []Output { return nil }
func (accountsStage) Provides() []Output { return []Output{OutputAccounts} }

func (accountsStage) Run(_ context.Context, r *Run) error {
	windows := []scheme.Period{r.Scheme.Period}
	for _, b := range r.Scheme.BasePeriods {
		windows = append(windows, b.Period)
	}
	latest := r.Sales.Accounts(windows...)
	r.Table = newTable(r.Scheme.ID, latest, len(r.Scheme.SubSchemes))

	for i := range r.Scheme.SubSchemes {
		sub := &r.Scheme.SubSchemes[i]
		blk := r.Table.Blocks[i]
		r.Table.suffixes = append(r.Table.suffixes, sub.Suffix())
		blk.SetText(FieldSchemeType, fill(r.Table.Len(), string(sub.Basis)))
		blk.SetText(FieldMandatoryQualify, fill(r.Table.Len(), sub.MandatoryQualifyText()))
	}
	return nil
}

// =============================================================================
// METRICS - Base periods and totals
// =============================================================================

// metricsStage aggregates base-period sales per account and picks each
// account's slab from its basis total.
type metricsStage struct{}

func (metricsStage) Name() string       { return "metrics" }
func (metricsStage) Requires() []Output { return []Output{OutputAccounts} }
func (metricsStage) Provides() []Output { return []Output{OutputMetrics} }

func (s metricsStage) Run(ctx context.Context, r *Run) error {
	return r.eachSubScheme(ctx, s.Name(), func(sub *scheme.SubScheme, b *Block) error {
		t := r.Table
		inProducts := productPredicate(sub.Products.InProducts)

		baseVol := [2][]float64{t.zeros(), t.zeros()}
		baseVal := [2][]float64{t.zeros(), t.zeros()}
		for i, bp := range r.Scheme.BasePeriods {
			if i > 1 {
				break
			}
			vol, val := t.vectors(sales.Sum(r.Sales.Select(bp.Period, inProducts)))
			div := bp.Divisor()
			for k := range vol {
				vol[k] /= div
				val[k] /= div
			}
			baseVol[i], baseVal[i] = vol, val
		}
		b.Set(FieldBase1Volume, 0, baseVol[0])
		b.Set(FieldBase1Value, 0, baseVal[0])
		b.Set(FieldBase2Volume, 0, baseVol[1])
		b.Set(FieldBase2Value, 0, baseVal[1])

		// Totals equal base 1 for one or two base periods.
		b.Set(FieldTotalVolume, 0, clone(baseVol[0]))
		b.Set(FieldTotalValue, 0, clone(baseVal[0]))

		key := basisAxis(sub.Basis, baseVol[0], baseVal[0])
		b.bucket = make([]int, t.Len())
		for i, x := range key {
			b.bucket[i] = sub.Slabs.Bucket(x)
		}
		if len(sub.Slabs) == 0 {
			r.Logger.Warn("sub-scheme has no slabs; slab coefficients are 0",
				slog.String("scheme_id", r.Scheme.ID),
				slog.String("sub_scheme", sub.Label()))
		}
		return nil
	})
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func productPredicate(in func(scheme.ProductAttrs) bool) sales.Predicate {
	return func(row *sales.Row) bool { return in(row.Product()) }
}

// basisAxis picks the volume or value vector.
func basisAxis(basis scheme.Basis, vol, val []float64) []float64 {
	if basis.IsVolume() {
		return vol
	}
	return val
}

// coefficient resolves one slab coefficient per row using the block's
// buckets.
func coefficient(sub *scheme.SubScheme, b *Block, c scheme.Coefficient) []float64 {
	out := make([]float64, len(b.bucket))
	for i, k := range b.bucket {
		out[i], _ = sub.Slabs.At(c, k)
	}
	return out
}

// ratio divides with a zero guard. Non-finite results are 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return finite(num / den)
}

// targetTolerance is the float slack allowed below 100% achievement.
const targetTolerance = 1e-9

// meetsTarget reports an achievement ratio of at least 100%.
func meetsTarget(achieved float64) bool {
	return achieved >= 1-targetTolerance
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func fill(n int, s string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
