package costing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/costing-engine/scheme"
)

// defaultQualificationRate applies when the first slab carries none.
const defaultQualificationRate = 0.7

// =============================================================================
// ESTIMATES - Expected payouts assuming the qualification rate
// =============================================================================

type estimateStage struct{}

func (estimateStage) Name() string { return "estimates" }
func (estimateStage) Requires() []Output {
	return []Output{OutputPayouts, OutputMandatory, OutputPhasing}
}
func (estimateStage) Provides() []Output { return []Output{OutputEstimates} }

func (s estimateStage) Run(ctx context.Context, r *Run) error {
	return r.eachSubScheme(ctx, s.Name(), func(sub *scheme.SubScheme, b *Block) error {
		n := r.Table.Len()
		q := qualificationRate(sub)

		totalVol, totalVal := b.must(FieldTotalVolume, 0), b.must(FieldTotalValue, 0)
		perLitre := b.must(FieldRebatePerLitre, 0)
		rebatePct := b.must(FieldRebatePct, 0)
		additional := b.must(FieldAdditionalRebate, 0)
		mpFinal := b.must(FieldMPFinalTarget, 0)
		mpRebate := b.must(FieldMPRebate, 0)
		mpRebatePct := b.must(FieldMPRebatePct, 0)
		slots := phasingSlots(sub)

		asp := make([]float64, n)
		estVol := make([]float64, n)
		estVal := make([]float64, n)
		basic := make([]float64, n)
		extra := make([]float64, n)
		total := make([]float64, n)
		mp := make([]float64, n)
		phasing := make([]float64, n)
		overall := make([]float64, n)

		volume := sub.Basis.IsVolume()
		var target []float64
		if volume {
			target = b.must(FieldTargetVolume, 0)
		} else {
			target = b.must(FieldTargetValue, 0)
		}

		for i := 0; i < n; i++ {
			if totalVol[i] > 0 {
				asp[i] = finite(totalVal[i] / totalVol[i])
			}
			if volume {
				estVol[i] = target[i] * q
				estVal[i] = asp[i] * estVol[i]
				basic[i] = perLitre[i] * estVol[i]
				extra[i] = additional[i] * estVol[i]
				mp[i] = mpRebate[i] * mpFinal[i] * q
				for k := 1; k <= slots; k++ {
					phasing[i] += b.must(FieldPhasingRebateValue, k)[i] * b.must(FieldPhasingTargetVolume, k)[i] * q
				}
			} else {
				estVal[i] = target[i] * q
				estVol[i] = finite(estVal[i] / asp[i])
				basic[i] = rebatePct[i] * estVal[i] / 100
				mp[i] = mpRebatePct[i] * mpFinal[i] * q / 100
				for k := 1; k <= slots; k++ {
					phasing[i] += b.must(FieldPhasingRebatePct, k)[i] * b.must(FieldPhasingTargetValue, k)[i] * q / 100
				}
				basic[i] /= 100
				mp[i] /= 100
				phasing[i] /= 100
			}
			total[i] = basic[i] + extra[i]
			overall[i] = total[i] + mp[i] + phasing[i]
		}

		b.Set(FieldQualificationRate, 0, constant(n, q))
		b.Set(FieldASP, 0, asp)
		b.Set(FieldEstimatedVolume, 0, estVol)
		b.Set(FieldEstimatedValue, 0, estVal)
		b.Set(FieldEstBasicPayout, 0, basic)
		b.Set(FieldEstAdditionalPayout, 0, extra)
		b.Set(FieldEstTotalPayout, 0, total)
		b.Set(FieldEstMPPayout, 0, mp)
		b.Set(FieldEstPhasingPayout, 0, phasing)
		b.Set(FieldEstSchemePayout, 0, overall)
		return nil
	})
}

func qualificationRate(sub *scheme.SubScheme) float64 {
	first, ok := sub.Slabs.First()
	if !ok || first.Coef(scheme.CoefQualificationPct) <= 0 {
		return defaultQualificationRate
	}
	return first.Coef(scheme.CoefQualificationPct) / 100
}

// =============================================================================
// FINAL - Scheme Final Payout and Rewards
// =============================================================================

type finalStage struct{}

func (finalStage) Name() string { return "final" }
func (finalStage) Requires() []Output {
	return []Output{OutputEstimates, OutputBonus, OutputPayouts, OutputMandatory, OutputPhasing}
}
func (finalStage) Provides() []Output { return []Output{OutputFinal} }

func (finalStage) Run(_ context.Context, r *Run) error {
	t := r.Table
	n := t.Len()
	s := r.Scheme
	main := s.Main()

	t.FinalPayout = make([]float64, n)
	t.Rewards = make([]string, n)

	for i := 0; i < n; i++ {
		if s.IsInbuilt() || !qualified(s, t, i) {
			continue
		}
		sum := 0.0
		for _, b := range t.Blocks {
			sum += b.must(FieldTotalPayout, 0)[i] + b.must(FieldMPFinalPayout, 0)[i] + b.must(FieldFinalPhasingPayout, 0)[i]
		}
		if s.IsHO() {
			head := t.Blocks[0]
			for k := range main.Bonuses {
				sum += head.must(FieldBonusSchemePayout, k+1)[i] + head.must(FieldBonusSchemeMPPayout, k+1)[i]
			}
		}
		payout := decimal.NewFromFloat(finite(sum)).Round(6).Ceil()
		if payout.IsNegative() {
			payout = decimal.Zero
		}
		t.FinalPayout[i] = payout.InexactFloat64()
		if payout.IsPositive() {
			t.Rewards[i] = reward(s, main, payout)
		}
	}
	return nil
}

// qualified is false when any mandatory-qualify sub-scheme missed its target.
func qualified(s *scheme.Scheme, t *Table, row int) bool {
	for i := range s.SubSchemes {
		if !s.SubSchemes[i].MandatoryQualify {
			continue
		}
		if !meetsTarget(t.Blocks[i].must(FieldPercentageAchieved, 0)[row]) {
			return false
		}
	}
	return true
}

func reward(s *scheme.Scheme, main *scheme.SubScheme, payout decimal.Decimal) string {
	if !s.IsHO() {
		return "Credit Note Rs. " + payout.String()
	}
	if !main.Features.RewardSlabs {
		return ""
	}
	v := payout.InexactFloat64()
	for _, rs := range main.Rewards {
		if rs.Covers(v) {
			return rs.Reward
		}
	}
	return ""
}
