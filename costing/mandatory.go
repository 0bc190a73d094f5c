package costing

import (
	"context"
	"math"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// defaultMinShadesPPI applies when neither the account's slab nor the first
// slab sets a minimum.
const defaultMinShadesPPI = 5

var mandatoryFields = []Field{
	FieldMPBaseVolume,
	FieldMPBaseValue,
	FieldMPActualVolume,
	FieldMPActualValue,
	FieldMPActualPPI,
	FieldMPGrowth,
	FieldMPGrowthTargetVolume,
	FieldMPGrowthTargetValue,
	FieldMPPctTargetToActual,
	FieldMPPctToActualTargetVolume,
	FieldMPPctToActualTargetValue,
	FieldMPFixedTarget,
	FieldMPMinShadesPPI,
	FieldMPFinalTarget,
	FieldMPFinalAchievement,
	FieldMPRebate,
	FieldMPRebatePct,
	FieldMPFinalPayout,
}

// mandatoryStage computes the mandatory-product target, achievement and
// payout. With the gate off every column is 0.
type mandatoryStage struct{}

func (mandatoryStage) Name() string       { return "mandatory" }
func (mandatoryStage) Requires() []Output { return []Output{OutputTargets} }
func (mandatoryStage) Provides() []Output { return []Output{OutputMandatory} }

func (s mandatoryStage) Run(ctx context.Context, r *Run) error {
	return r.eachSubScheme(ctx, s.Name(), func(sub *scheme.SubScheme, b *Block) error {
		if !sub.Features.MandatoryProducts {
			for _, f := range mandatoryFields {
				b.Set(f, 0, r.Table.zeros())
			}
			return nil
		}
		computeMandatory(r, sub, b)
		return nil
	})
}

func computeMandatory(r *Run, sub *scheme.SubScheme, b *Block) {
	t := r.Table
	n := t.Len()
	inMP := productPredicate(sub.Products.InMandatory)

	baseVol, baseVal := t.zeros(), t.zeros()
	if len(r.Scheme.BasePeriods) > 0 {
		bp := r.Scheme.BasePeriods[0]
		baseVol, baseVal = t.vectors(sales.Sum(r.Sales.Select(bp.Period, inMP)))
		div := bp.Divisor()
		for i := range baseVol {
			baseVol[i] /= div
			baseVal[i] /= div
		}
	}

	schemeRows := r.Sales.Select(r.Scheme.Period, inMP)
	actVol, actVal := t.vectors(sales.Sum(schemeRows))

	ppi := t.zeros()
	for acc, count := range sales.DistinctPositive(schemeRows) {
		if i, ok := t.Row(acc); ok && actVal[i] != 0 {
			ppi[i] = float64(count)
		}
	}

	growth := coefficient(sub, b, scheme.CoefMandatoryGrowthPct)
	growthVol, growthVal := t.zeros(), t.zeros()
	for i := range growth {
		growth[i] /= 100
		if growth[i] > 0 {
			growthVol[i] = (1 + growth[i]) * baseVol[i]
			growthVal[i] = (1 + growth[i]) * baseVal[i]
		}
	}

	pctToActual := coefficient(sub, b, scheme.CoefMandatoryTargetToActualPct)
	schemeActVol, schemeActVal := b.must(FieldActualVolume, 0), b.must(FieldActualValue, 0)
	pctTargetVol, pctTargetVal := t.zeros(), t.zeros()
	for i := range pctToActual {
		pctTargetVol[i] = pctToActual[i] / 100 * schemeActVol[i]
		pctTargetVal[i] = pctToActual[i] / 100 * schemeActVal[i]
	}

	fixed := coefficient(sub, b, scheme.CoefMandatoryTarget)
	minShades := minShadesPPI(sub, b)

	pctTarget := basisAxis(sub.Basis, pctTargetVol, pctTargetVal)
	growthTarget := basisAxis(sub.Basis, growthVol, growthVal)
	mpActual := basisAxis(sub.Basis, actVol, actVal)

	finalTarget := make([]float64, n)
	achievement := make([]float64, n)
	for i := range finalTarget {
		finalTarget[i] = math.Max(fixed[i], pctTarget[i]+growthTarget[i])
		achievement[i] = ratio(mpActual[i], finalTarget[i])
	}

	rebate, rebatePct := t.zeros(), t.zeros()
	if sub.Basis.IsVolume() {
		rebate = coefficient(sub, b, scheme.CoefMandatoryRebate)
	} else {
		rebatePct = coefficient(sub, b, scheme.CoefMandatoryRebatePct)
	}

	payout := make([]float64, n)
	for i := range payout {
		if !meetsTarget(achievement[i]) {
			continue
		}
		if sub.Basis.IsVolume() {
			payout[i] = actVol[i] * rebate[i]
		} else {
			payout[i] = actVal[i] * rebatePct[i] / 100
		}
	}

	b.Set(FieldMPBaseVolume, 0, baseVol)
	b.Set(FieldMPBaseValue, 0, baseVal)
	b.Set(FieldMPActualVolume, 0, actVol)
	b.Set(FieldMPActualValue, 0, actVal)
	b.Set(FieldMPActualPPI, 0, ppi)
	b.Set(FieldMPGrowth, 0, growth)
	b.Set(FieldMPGrowthTargetVolume, 0, growthVol)
	b.Set(FieldMPGrowthTargetValue, 0, growthVal)
	b.Set(FieldMPPctTargetToActual, 0, pctToActual)
	b.Set(FieldMPPctToActualTargetVolume, 0, pctTargetVol)
	b.Set(FieldMPPctToActualTargetValue, 0, pctTargetVal)
	b.Set(FieldMPFixedTarget, 0, fixed)
	b.Set(FieldMPMinShadesPPI, 0, minShades)
	b.Set(FieldMPFinalTarget, 0, finalTarget)
	b.Set(FieldMPFinalAchievement, 0, achievement)
	b.Set(FieldMPRebate, 0, rebate)
	b.Set(FieldMPRebatePct, 0, rebatePct)
	b.Set(FieldMPFinalPayout, 0, payout)
}

// minShadesPPI falls back from the account's slab to the first slab and
// then to defaultMinShadesPPI.
func minShadesPPI(sub *scheme.SubScheme, b *Block) []float64 {
	out := coefficient(sub, b, scheme.CoefMandatoryMinShadesPPI)
	fallback := float64(defaultMinShadesPPI)
	if first, ok := sub.Slabs.First(); ok && first.Coef(scheme.CoefMandatoryMinShadesPPI) > 0 {
		fallback = first.Coef(scheme.CoefMandatoryMinShadesPPI)
	}
	for i := range out {
		if out[i] <= 0 {
			out[i] = fallback
		}
	}
	return out
}
