package costing

import (
	"context"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// =============================================================================
// GROWTH
// =============================================================================

// growthStage assigns growth_rate as a fraction: the strata override when
// enabled and present, else the slab growth_pct / 100.
type growthStage struct{}

func (growthStage) Name() string       { return "growth" }
func (growthStage) Requires() []Output { return []Output{OutputMetrics} }
func (growthStage) Provides() []Output { return []Output{OutputGrowth} }

func (s growthStage) Run(ctx context.Context, r *Run) error {
	return r.eachSubScheme(ctx, s.Name(), func(sub *scheme.SubScheme, b *Block) error {
		growth := coefficient(sub, b, scheme.CoefGrowthPct)
		for i := range growth {
			growth[i] /= 100
		}
		if sub.Features.EnableStrataGrowth && len(r.Strata) > 0 {
			for i, acc := range r.Table.Accounts {
				if pct, ok := r.Strata[acc.CreditAccount]; ok {
					growth[i] = finite(pct / 100)
				}
			}
		}
		b.Set(FieldGrowthRate, 0, growth)
		return nil
	})
}

// =============================================================================
// TARGETS
// =============================================================================

// targetStage computes the basis target floored to the first slab start,
// the scheme-period actuals and percentage_achieved.
type targetStage struct{}

func (targetStage) Name() string       { return "targets" }
func (targetStage) Requires() []Output { return []Output{OutputGrowth} }
func (targetStage) Provides() []Output { return []Output{OutputTargets} }

func (s targetStage) Run(ctx context.Context, r *Run) error {
	return r.eachSubScheme(ctx, s.Name(), func(sub *scheme.SubScheme, b *Block) error {
		t := r.Table
		total := basisAxis(sub.Basis, b.must(FieldTotalVolume, 0), b.must(FieldTotalValue, 0))
		growth := b.must(FieldGrowthRate, 0)

		target := make([]float64, t.Len())
		first, hasFirst := sub.Slabs.First()
		for i := range target {
			target[i] = finite(total[i] * (1 + growth[i]))
			if hasFirst && target[i] < first.Start {
				target[i] = first.Start
			}
		}
		if sub.Basis.IsVolume() {
			b.Set(FieldTargetVolume, 0, target)
			b.Set(FieldTargetValue, 0, t.zeros())
		} else {
			b.Set(FieldTargetVolume, 0, t.zeros())
			b.Set(FieldTargetValue, 0, target)
		}

		vol, val := t.vectors(sales.Sum(r.Sales.Select(r.Scheme.Period, productPredicate(sub.Products.InProducts))))
		b.Set(FieldActualVolume, 0, vol)
		b.Set(FieldActualValue, 0, val)

		actual := basisAxis(sub.Basis, vol, val)
		pct := make([]float64, t.Len())
		for i := range pct {
			pct[i] = ratio(actual[i], target[i])
		}
		b.Set(FieldPercentageAchieved, 0, pct)
		return nil
	})
}
