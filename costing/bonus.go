package costing

import (
	"context"
	"math"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

var bonusSchemeFields = []Field{
	FieldBonusSchemeNo,
	FieldBonusMainTargetPct,
	FieldBonusMinimumTarget,
	FieldBonusMPTargetPct,
	FieldBonusMinimumMPTarget,
	FieldBonusRewardTotalPct,
	FieldBonusRewardMPPct,
	FieldBonusMainTargetVolume,
	FieldBonusMainTargetValue,
	FieldBonusActualVolume,
	FieldBonusActualValue,
	FieldBonusSchemeAchieved,
	FieldBonusMPTargetVolume,
	FieldBonusMPTargetValue,
	FieldBonusActualMPVolume,
	FieldBonusActualMPValue,
	FieldBonusMPAchieved,
	FieldBonusPayoutActualVolume,
	FieldBonusPayoutActualValue,
	FieldBonusPayoutMPVolume,
	FieldBonusPayoutMPValue,
	FieldBonusSchemePayout,
	FieldBonusSchemeMPPayout,
}

// bonusStage computes the bonus sub-schemes of the main scheme. Additional
// schemes carry no bonus columns.
type bonusStage struct{}

func (bonusStage) Name() string       { return "bonus" }
func (bonusStage) Requires() []Output { return []Output{OutputTargets, OutputMandatory} }
func (bonusStage) Provides() []Output { return []Output{OutputBonus} }

func (s bonusStage) Run(_ context.Context, r *Run) error {
	sub := r.Scheme.Main()
	b := r.Table.Blocks[0]
	for k := range sub.Bonuses {
		slot := k + 1
		if !sub.Features.BonusSchemes {
			for _, f := range bonusSchemeFields {
				b.Set(f, slot, r.Table.zeros())
			}
			continue
		}
		bonusScheme(r, sub, b, slot, &sub.Bonuses[k])
	}
	return nil
}

func bonusScheme(r *Run, sub *scheme.SubScheme, b *Block, slot int, bs *scheme.BonusScheme) {
	t := r.Table
	n := t.Len()
	inProducts := productPredicate(sub.Products.InProducts)
	inMP := productPredicate(sub.Products.InMandatory)
	volume := sub.Basis.IsVolume()

	schemeTarget := basisAxis(sub.Basis, b.must(FieldTargetVolume, 0), b.must(FieldTargetValue, 0))
	target := make([]float64, n)
	for i := range target {
		target[i] = math.Max(bs.MinimumTarget, bs.MainTargetPct/100*schemeTarget[i])
	}
	actVol, actVal := t.vectors(sales.Sum(r.Sales.Select(bs.Period, inProducts)))
	payVol, payVal := t.vectors(sales.Sum(r.Sales.Select(bs.PayoutPeriod, inProducts)))
	actual := basisAxis(sub.Basis, actVol, actVal)
	paid := basisAxis(sub.Basis, payVol, payVal)

	achieved := make([]float64, n)
	payout := make([]float64, n)
	for i := range achieved {
		achieved[i] = ratio(actual[i], target[i])
		if meetsTarget(achieved[i]) {
			payout[i] = bs.RewardOnTotalPct / 100 * paid[i]
		}
	}

	mpTarget := t.zeros()
	mpAchieved := t.zeros()
	mpPayout := t.zeros()
	mpActVol, mpActVal := t.zeros(), t.zeros()
	mpPayVol, mpPayVal := t.zeros(), t.zeros()
	if sub.Features.MandatoryProducts {
		finalTarget := b.must(FieldMPFinalTarget, 0)
		mpActVol, mpActVal = t.vectors(sales.Sum(r.Sales.Select(bs.Period, inMP)))
		mpPayVol, mpPayVal = t.vectors(sales.Sum(r.Sales.Select(bs.PayoutPeriod, inMP)))
		mpActual := basisAxis(sub.Basis, mpActVol, mpActVal)
		mpPaid := basisAxis(sub.Basis, mpPayVol, mpPayVal)
		for i := range mpTarget {
			mpTarget[i] = math.Max(bs.MinimumMandatoryTarget, bs.MandatoryTargetPct/100*finalTarget[i])
			mpAchieved[i] = ratio(mpActual[i], mpTarget[i])
			if meetsTarget(mpAchieved[i]) {
				mpPayout[i] = bs.RewardOnMandatoryPct / 100 * mpPaid[i]
			}
		}
	}

	targetVol, targetVal := t.zeros(), t.zeros()
	mpTargetVol, mpTargetVal := t.zeros(), t.zeros()
	if volume {
		targetVol, mpTargetVol = target, mpTarget
	} else {
		targetVal, mpTargetVal = target, mpTarget
	}

	b.Set(FieldBonusSchemeNo, slot, constant(n, float64(bs.ID)))
	b.Set(FieldBonusMainTargetPct, slot, constant(n, bs.MainTargetPct/100))
	b.Set(FieldBonusMinimumTarget, slot, constant(n, bs.MinimumTarget))
	b.Set(FieldBonusMPTargetPct, slot, constant(n, bs.MandatoryTargetPct/100))
	b.Set(FieldBonusMinimumMPTarget, slot, constant(n, bs.MinimumMandatoryTarget))
	b.Set(FieldBonusRewardTotalPct, slot, constant(n, bs.RewardOnTotalPct))
	b.Set(FieldBonusRewardMPPct, slot, constant(n, bs.RewardOnMandatoryPct))
	b.Set(FieldBonusMainTargetVolume, slot, targetVol)
	b.Set(FieldBonusMainTargetValue, slot, targetVal)
	b.Set(FieldBonusActualVolume, slot, actVol)
	b.Set(FieldBonusActualValue, slot, actVal)
	b.Set(FieldBonusSchemeAchieved, slot, achieved)
	b.Set(FieldBonusMPTargetVolume, slot, mpTargetVol)
	b.Set(FieldBonusMPTargetValue, slot, mpTargetVal)
	b.Set(FieldBonusActualMPVolume, slot, mpActVol)
	b.Set(FieldBonusActualMPValue, slot, mpActVal)
	b.Set(FieldBonusMPAchieved, slot, mpAchieved)
	b.Set(FieldBonusPayoutActualVolume, slot, payVol)
	b.Set(FieldBonusPayoutActualValue, slot, payVal)
	b.Set(FieldBonusPayoutMPVolume, slot, mpPayVol)
	b.Set(FieldBonusPayoutMPValue, slot, mpPayVal)
	b.Set(FieldBonusSchemePayout, slot, payout)
	b.Set(FieldBonusSchemeMPPayout, slot, mpPayout)
}
