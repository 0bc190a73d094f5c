package costing

import (
	"context"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// minPhasingSlots is the number of period blocks always emitted.
const minPhasingSlots = 3

var phasingFields = []Field{
	FieldPhasingPeriodNo,
	FieldPhasingTargetPct,
	FieldPhasingTargetVolume,
	FieldPhasingTargetValue,
	FieldPhasingPeriodVolume,
	FieldPhasingPeriodValue,
	FieldPhasingPayoutPeriodVolume,
	FieldPhasingPayoutPeriodValue,
	FieldPhasingPayoutProductVolume,
	FieldPhasingPayoutProductValue,
	FieldPhasingRebateValue,
	FieldPhasingRebatePct,
	FieldPhasingAchieved,
	FieldPhasingPayout,
	FieldIsBonus,
	FieldBonusTargetPct,
	FieldBonusTargetVolume,
	FieldBonusTargetValue,
	FieldBonusPhasingVolume,
	FieldBonusPhasingValue,
	FieldBonusPayoutPeriodVolume,
	FieldBonusPayoutPeriodValue,
	FieldBonusPayoutProductVolume,
	FieldBonusPayoutProductValue,
	FieldBonusRebateValue,
	FieldBonusRebatePct,
	FieldBonusAchieved,
	FieldBonusPayout,
}

// phasingStage computes per-period phasing targets and payouts, the bonus
// leg of each period, and FINAL_PHASING_PAYOUT. It is gated by the bonus
// schemes feature.
type phasingStage struct{}

func (phasingStage) Name() string       { return "phasing" }
func (phasingStage) Requires() []Output { return []Output{OutputTargets} }
func (phasingStage) Provides() []Output { return []Output{OutputPhasing} }

func phasingSlots(sub *scheme.SubScheme) int {
	if len(sub.Phasing) > minPhasingSlots {
		return len(sub.Phasing)
	}
	return minPhasingSlots
}

func (s phasingStage) Run(ctx context.Context, r *Run) error {
	return r.eachSubScheme(ctx, s.Name(), func(sub *scheme.SubScheme, b *Block) error {
		slots := phasingSlots(sub)
		if !sub.Features.BonusSchemes {
			for k := 1; k <= slots; k++ {
				for _, f := range phasingFields {
					b.Set(f, k, r.Table.zeros())
				}
			}
			b.Set(FieldFinalPhasingPayout, 0, r.Table.zeros())
			return nil
		}
		for k := 1; k <= slots; k++ {
			var p *scheme.PhasingPeriod
			if k <= len(sub.Phasing) {
				p = &sub.Phasing[k-1]
			}
			phasingSlot(r, sub, b, k, p)
		}
		b.Set(FieldFinalPhasingPayout, 0, finalPhasingPayout(b, slots, r.Table.Len()))
		return nil
	})
}

// phasingSlot fills slot k from period p. A nil p yields zero columns.
func phasingSlot(r *Run, sub *scheme.SubScheme, b *Block, k int, p *scheme.PhasingPeriod) {
	t := r.Table
	if p == nil {
		for _, f := range phasingFields {
			b.Set(f, k, t.zeros())
		}
		return
	}

	targetVol, targetVal := b.must(FieldTargetVolume, 0), b.must(FieldTargetValue, 0)
	inProducts := productPredicate(sub.Products.InProducts)
	inPayout := productPredicate(sub.Products.InPayout)

	leg := func(targetPct float64, window, payoutWindow scheme.Period, rebateValue, rebatePct float64) phasingLeg {
		l := phasingLeg{
			targetVol: scale(targetVol, targetPct/100),
			targetVal: scale(targetVal, targetPct/100),
		}
		l.periodVol, l.periodVal = t.vectors(sales.Sum(r.Sales.Select(window, inProducts)))
		l.payoutVol, l.payoutVal = t.vectors(sales.Sum(r.Sales.Select(payoutWindow, inProducts)))
		l.productVol, l.productVal = t.vectors(sales.Sum(r.Sales.Select(payoutWindow, inPayout)))

		target := basisAxis(sub.Basis, l.targetVol, l.targetVal)
		period := basisAxis(sub.Basis, l.periodVol, l.periodVal)
		l.achieved = make([]float64, t.Len())
		l.payout = make([]float64, t.Len())
		for i := range l.achieved {
			l.achieved[i] = ratio(period[i], target[i])
			if !meetsTarget(l.achieved[i]) {
				continue
			}
			switch {
			case sub.Basis.IsVolume() && sub.Features.PayoutProducts:
				l.payout[i] = rebateValue * l.productVol[i]
			case sub.Basis.IsVolume():
				l.payout[i] = rebateValue * l.payoutVol[i]
			case sub.Features.PayoutProducts:
				l.payout[i] = rebatePct * l.productVal[i] / 100
			default:
				l.payout[i] = rebatePct * l.payoutVal[i] / 100
			}
		}
		return l
	}

	regular := leg(p.TargetPct, p.Phasing, p.Payout, p.RebateValue, p.RebatePct)
	b.Set(FieldPhasingPeriodNo, k, constant(t.Len(), float64(p.ID)))
	b.Set(FieldPhasingTargetPct, k, constant(t.Len(), p.TargetPct))
	b.Set(FieldPhasingTargetVolume, k, regular.targetVol)
	b.Set(FieldPhasingTargetValue, k, regular.targetVal)
	b.Set(FieldPhasingPeriodVolume, k, regular.periodVol)
	b.Set(FieldPhasingPeriodValue, k, regular.periodVal)
	b.Set(FieldPhasingPayoutPeriodVolume, k, regular.payoutVol)
	b.Set(FieldPhasingPayoutPeriodValue, k, regular.payoutVal)
	b.Set(FieldPhasingPayoutProductVolume, k, regular.productVol)
	b.Set(FieldPhasingPayoutProductValue, k, regular.productVal)
	b.Set(FieldPhasingRebateValue, k, constant(t.Len(), p.RebateValue))
	b.Set(FieldPhasingRebatePct, k, constant(t.Len(), p.RebatePct))
	b.Set(FieldPhasingAchieved, k, regular.achieved)
	b.Set(FieldPhasingPayout, k, regular.payout)

	bonus := phasingLeg{}.zero(t.Len())
	if p.IsBonus {
		bonus = leg(p.BonusTarget, p.BonusPhasing, p.BonusPayout, p.BonusRebate, p.BonusPct)
	}
	b.Set(FieldIsBonus, k, constant(t.Len(), boolf(p.IsBonus)))
	b.Set(FieldBonusTargetPct, k, constant(t.Len(), p.BonusTarget))
	b.Set(FieldBonusTargetVolume, k, bonus.targetVol)
	b.Set(FieldBonusTargetValue, k, bonus.targetVal)
	b.Set(FieldBonusPhasingVolume, k, bonus.periodVol)
	b.Set(FieldBonusPhasingValue, k, bonus.periodVal)
	b.Set(FieldBonusPayoutPeriodVolume, k, bonus.payoutVol)
	b.Set(FieldBonusPayoutPeriodValue, k, bonus.payoutVal)
	b.Set(FieldBonusPayoutProductVolume, k, bonus.productVol)
	b.Set(FieldBonusPayoutProductValue, k, bonus.productVal)
	b.Set(FieldBonusRebateValue, k, constant(t.Len(), p.BonusRebate))
	b.Set(FieldBonusRebatePct, k, constant(t.Len(), p.BonusPct))
	b.Set(FieldBonusAchieved, k, bonus.achieved)
	b.Set(FieldBonusPayout, k, bonus.payout)
}

// finalPhasingPayout takes, per row, the payout of the first bonus leg that
// reached its target, or else the sum of all phasing payouts.
func finalPhasingPayout(b *Block, slots, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		selected := false
		for k := 1; k <= slots; k++ {
			if meetsTarget(b.must(FieldBonusAchieved, k)[i]) {
				out[i] = b.must(FieldBonusPayout, k)[i]
				selected = true
				break
			}
		}
		if selected {
			continue
		}
		for k := 1; k <= slots; k++ {
			out[i] += b.must(FieldPhasingPayout, k)[i]
		}
	}
	return out
}

type phasingLeg struct {
	targetVol, targetVal   []float64
	periodVol, periodVal   []float64
	payoutVol, payoutVal   []float64
	productVol, productVal []float64
	achieved, payout       []float64
}

func (phasingLeg) zero(n int) phasingLeg {
	z := func() []float64 { return make([]float64, n) }
	return phasingLeg{
		targetVol: z(), targetVal: z(),
		periodVol: z(), periodVal: z(),
		payoutVol: z(), payoutVal: z(),
		productVol: z(), productVal: z(),
		achieved: z(), payout: z(),
	}
}

func scale(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * k
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
