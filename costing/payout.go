package costing

import (
	"context"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// payoutStage computes basic and additional payouts.
//
//	basis   payout products   basic_payout
//	volume  on                Rebate_per_Litre x Payout_Products_Volume
//	volume  off               Rebate_per_Litre x actual_volume
//	value   on                pct >= 1: Rebate_percent x Payout_Products_Value / 100 / 100
//	value   off               pct >= 1: Rebate_percent x actual_value / 100 / 100
//
// additional_payout is volume-only and gated on pct >= 1.
type payoutStage struct{}

func (payoutStage) Name() string       { return "payouts" }
func (payoutStage) Requires() []Output { return []Output{OutputTargets} }
func (payoutStage) Provides() []Output { return []Output{OutputPayouts} }

func (s payoutStage) Run(ctx context.Context, r *Run) error {
	return r.eachSubScheme(ctx, s.Name(), func(sub *scheme.SubScheme, b *Block) error {
		t := r.Table
		n := t.Len()

		perLitre := coefficient(sub, b, scheme.CoefRebatePerLitre)
		rebatePct := coefficient(sub, b, scheme.CoefRebatePct)
		additional := coefficient(sub, b, scheme.CoefAdditionalRebateOnGrowth)
		fixed := coefficient(sub, b, scheme.CoefFixedRebate)

		ppVol, ppVal := t.zeros(), t.zeros()
		if sub.Features.PayoutProducts {
			ppVol, ppVal = t.vectors(sales.Sum(r.Sales.Select(r.Scheme.Period, productPredicate(sub.Products.InPayout))))
		}

		baseVol, baseVal := b.must(FieldActualVolume, 0), b.must(FieldActualValue, 0)
		if sub.Features.PayoutProducts {
			baseVol, baseVal = ppVol, ppVal
		}
		pct := b.must(FieldPercentageAchieved, 0)

		basic := make([]float64, n)
		extra := make([]float64, n)
		total := make([]float64, n)
		for i := range basic {
			achieved := meetsTarget(pct[i])
			if sub.Basis.IsVolume() {
				basic[i] = perLitre[i] * baseVol[i]
				if achieved {
					extra[i] = additional[i] * baseVol[i]
				}
			} else if achieved {
				basic[i] = rebatePct[i] * baseVal[i] / 100 / 100
			}
			total[i] = basic[i] + extra[i]
		}

		b.Set(FieldRebatePerLitre, 0, perLitre)
		b.Set(FieldRebatePct, 0, rebatePct)
		b.Set(FieldAdditionalRebate, 0, additional)
		b.Set(FieldFixedRebate, 0, fixed)
		b.Set(FieldPayoutProductsVolume, 0, ppVol)
		b.Set(FieldPayoutProductsValue, 0, ppVal)
		b.Set(FieldBasicPayout, 0, basic)
		b.Set(FieldAdditionalPayout, 0, extra)
		b.Set(FieldTotalPayout, 0, total)
		return nil
	})
}
