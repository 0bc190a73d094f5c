package costing_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// =============================================================================
// FIXTURES
// =============================================================================

func date(t *testing.T, s string) scheme.Date {
	t.Helper()
	d, err := scheme.ParseDate(s)
	require.NoError(t, err)
	return d
}

func period(t *testing.T, from, to string) scheme.Period {
	return scheme.Period{From: date(t, from), To: date(t, to)}
}

func sale(t *testing.T, account, material, day string, volume, value float64) sales.Row {
	return sales.Row{
		CreditAccount: account,
		CustomerName:  "Customer " + account,
		Material:      material,
		SaleDate:      date(t, day),
		Volume:        volume,
		Value:         value,
		State:         "MH",
	}
}

// newScheme returns a scheme with an April-June 2024 scheme period and a
// single summed base period over April-June 2023.
func newScheme(t *testing.T, basis scheme.Basis, slabs ...scheme.Slab) *scheme.Scheme {
	return &scheme.Scheme{
		ID:              "SCH-1",
		Category:        "Regular",
		CalculationMode: basis,
		Period:          period(t, "2024-04-01", "2024-06-30"),
		BasePeriods: []scheme.BasePeriod{
			{Period: period(t, "2023-04-01", "2023-06-30"), Aggregation: scheme.AggregateSum},
		},
		SubSchemes: []scheme.SubScheme{
			{Index: 0, Number: "SCH-1", Basis: basis, Slabs: slabs},
		},
	}
}

func run(t *testing.T, s *scheme.Scheme, rows []sales.Row) *costing.Table {
	t.Helper()
	engine, err := costing.NewEngine(costing.WithWorkers(2))
	require.NoError(t, err)
	table, err := engine.Run(context.Background(), s, rows, nil)
	require.NoError(t, err)
	return table
}

func value(table *costing.Table, f costing.Field, account string) float64 {
	return table.Value(0, f, 0, account)
}

// =============================================================================
// BOUNDARY SCENARIOS
// =============================================================================

func TestEngine_EmptySalesYieldsEmptyTableWithHeaders(t *testing.T) {
	// GIVEN a scheme and no sales at all
	s := newScheme(t, scheme.BasisVolume, scheme.Slab{Start: 0, End: 2000})

	// WHEN the engine runs
	table := run(t, s, nil)

	// THEN no rows are produced but every column is named
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.Rows())
	headers := table.Headers()
	assert.Equal(t, "credit_account", headers[0])
	assert.Contains(t, headers, "target_volume")
	assert.Contains(t, headers, "FINAL_PHASING_PAYOUT")
	assert.Equal(t, []string{"Scheme Final Payout", "Rewards"}, headers[len(headers)-2:])
}

func TestEngine_VolumeSchemeSingleBasePeriod(t *testing.T) {
	// GIVEN base volume 1000 and 1100 litres sold in the scheme period
	slab := scheme.Slab{Start: 0, End: 2000}.
		With(scheme.CoefGrowthPct, 10).
		With(scheme.CoefRebatePerLitre, 5)
	s := newScheme(t, scheme.BasisVolume, slab)
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-05-10", 1000, 50000),
		sale(t, "A1", "M1", "2024-05-10", 800, 40000),
		sale(t, "A1", "M2", "2024-06-10", 300, 15000),
	}

	// WHEN the engine runs with payout products off
	table := run(t, s, rows)

	// THEN target and payout follow the slab
	require.Equal(t, 1, table.Len())
	assert.Equal(t, 1000.0, value(table, costing.FieldTotalVolume, "A1"))
	assert.InDelta(t, 0.10, value(table, costing.FieldGrowthRate, "A1"), 1e-12)
	assert.InDelta(t, 1100.0, value(table, costing.FieldTargetVolume, "A1"), 1e-9)
	assert.Equal(t, 0.0, value(table, costing.FieldTargetValue, "A1"))
	assert.InDelta(t, 1.0, value(table, costing.FieldPercentageAchieved, "A1"), 1e-12)
	assert.InDelta(t, 5500.0, value(table, costing.FieldBasicPayout, "A1"), 1e-9)

	final, reward := table.Final("A1")
	assert.Equal(t, 5500.0, final)
	assert.Equal(t, "Credit Note Rs. 5500", reward)

	// WHEN payout products restrict the rebate to M2
	s.SubSchemes[0].Features.PayoutProducts = true
	s.SubSchemes[0].Products.Payout = scheme.ProductSet{Materials: scheme.NewSet("M2")}
	table = run(t, s, rows)

	// THEN the rebate is paid on M2 volume only
	assert.Equal(t, 300.0, value(table, costing.FieldPayoutProductsVolume, "A1"))
	assert.InDelta(t, 1500.0, value(table, costing.FieldBasicPayout, "A1"), 1e-9)
}

func TestEngine_ValueSchemeBelowTarget(t *testing.T) {
	// GIVEN a value target of 10000 and 8000 achieved
	slab := scheme.Slab{Start: 0}.With(scheme.CoefRebatePct, 3)
	s := newScheme(t, scheme.BasisValue, slab)
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 10000),
		sale(t, "A1", "M1", "2024-04-15", 90, 8000),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN nothing is paid
	assert.Equal(t, 10000.0, value(table, costing.FieldTargetValue, "A1"))
	assert.Equal(t, 0.0, value(table, costing.FieldTargetVolume, "A1"))
	assert.InDelta(t, 0.8, value(table, costing.FieldPercentageAchieved, "A1"), 1e-12)
	assert.Equal(t, 0.0, value(table, costing.FieldBasicPayout, "A1"))
	assert.Equal(t, 0.0, value(table, costing.FieldAdditionalPayout, "A1"))
	assert.Equal(t, 0.0, value(table, costing.FieldTotalPayout, "A1"))
	final, reward := table.Final("A1")
	assert.Equal(t, 0.0, final)
	assert.Empty(t, reward)
}

func TestEngine_ValueSchemeAboveTargetDividesTwice(t *testing.T) {
	// GIVEN a value scheme achieving 120% with a 3% rebate
	slab := scheme.Slab{Start: 0}.With(scheme.CoefRebatePct, 3)
	s := newScheme(t, scheme.BasisValue, slab)
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 10000),
		sale(t, "A1", "M1", "2024-04-15", 100, 12000),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN basic payout is 3 x 12000 / 100 / 100
	assert.InDelta(t, 3.6, value(table, costing.FieldBasicPayout, "A1"), 1e-9)
}

func TestEngine_NewAccountIsFlooredToFirstSlab(t *testing.T) {
	// GIVEN an account with no base-period sales
	first := scheme.Slab{Start: 500, End: 1000}.With(scheme.CoefGrowthPct, 20)
	second := scheme.Slab{Start: 1001, End: 5000}.With(scheme.CoefGrowthPct, 5)
	s := newScheme(t, scheme.BasisVolume, first, second)
	rows := []sales.Row{
		sale(t, "OLD", "M1", "2023-04-15", 2000, 0),
		sale(t, "NEW", "M1", "2024-04-15", 100, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the new account takes first-slab growth and the floored target
	require.Equal(t, 2, table.Len())
	_, ok := table.Row("NEW")
	assert.True(t, ok)
	assert.InDelta(t, 0.20, value(table, costing.FieldGrowthRate, "NEW"), 1e-12)
	assert.Equal(t, 500.0, value(table, costing.FieldTargetVolume, "NEW"))
	assert.InDelta(t, 0.05, value(table, costing.FieldGrowthRate, "OLD"), 1e-12)
	assert.InDelta(t, 2100.0, value(table, costing.FieldTargetVolume, "OLD"), 1e-9)
}

func TestEngine_MandatoryQualifyGate(t *testing.T) {
	// GIVEN a mandatory-qualify scheme achieved at 90% with a per-litre rebate
	slab := scheme.Slab{Start: 0}.With(scheme.CoefRebatePerLitre, 2)
	s := newScheme(t, scheme.BasisVolume, slab)
	s.SubSchemes[0].MandatoryQualify = true
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 1000, 0),
		sale(t, "A1", "M1", "2024-04-15", 900, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the basic payout is computed but the final payout is withheld
	assert.InDelta(t, 0.9, value(table, costing.FieldPercentageAchieved, "A1"), 1e-12)
	assert.Equal(t, 1800.0, value(table, costing.FieldBasicPayout, "A1"))
	final, reward := table.Final("A1")
	assert.Equal(t, 0.0, final)
	assert.Empty(t, reward)
}

func TestEngine_BonusPhasingOverridesPhasingSum(t *testing.T) {
	// GIVEN three phasing periods each paying 100 and a bonus leg on period 2
	// achieving 120% with a 500 payout
	s := newScheme(t, scheme.BasisVolume, scheme.Slab{Start: 0})
	s.SubSchemes[0].Features.BonusSchemes = true
	months := [][2]string{
		{"2024-04-01", "2024-04-30"},
		{"2024-05-01", "2024-05-31"},
		{"2024-06-01", "2024-06-30"},
	}
	for i, m := range months {
		s.SubSchemes[0].Phasing = append(s.SubSchemes[0].Phasing, scheme.PhasingPeriod{
			ID:          i + 1,
			Phasing:     period(t, m[0], m[1]),
			Payout:      period(t, m[0], m[1]),
			RebateValue: 1,
			TargetPct:   10,
		})
	}
	bonus := &s.SubSchemes[0].Phasing[1]
	bonus.IsBonus = true
	bonus.BonusTarget = 25
	bonus.BonusPhasing = period(t, "2024-04-01", "2024-06-30")
	bonus.BonusPayout = period(t, "2024-04-01", "2024-04-30")
	bonus.BonusRebate = 5

	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 1000, 0),
		sale(t, "A1", "M1", "2024-04-15", 100, 0),
		sale(t, "A1", "M1", "2024-05-15", 100, 0),
		sale(t, "A1", "M1", "2024-06-15", 100, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the bonus payout replaces the phasing sum
	for k := 1; k <= 3; k++ {
		assert.Equal(t, 100.0, table.Value(0, costing.FieldPhasingPayout, k, "A1"), "slot %d", k)
	}
	assert.Equal(t, 0.0, table.Value(0, costing.FieldBonusAchieved, 1, "A1"))
	assert.InDelta(t, 1.2, table.Value(0, costing.FieldBonusAchieved, 2, "A1"), 1e-12)
	assert.Equal(t, 500.0, table.Value(0, costing.FieldBonusPayout, 2, "A1"))
	assert.Equal(t, 500.0, value(table, costing.FieldFinalPhasingPayout, "A1"))

	final, _ := table.Final("A1")
	assert.Equal(t, 500.0, final)
}

func TestEngine_PhasingSumWithoutBonus(t *testing.T) {
	// GIVEN phasing periods with the bonus gate off
	s := newScheme(t, scheme.BasisVolume, scheme.Slab{Start: 0})
	s.SubSchemes[0].Phasing = []scheme.PhasingPeriod{
		{ID: 1, Phasing: period(t, "2024-04-01", "2024-04-30"), Payout: period(t, "2024-04-01", "2024-04-30"), RebateValue: 1, TargetPct: 10},
	}
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 1000, 0),
		sale(t, "A1", "M1", "2024-04-15", 100, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the phasing columns exist but carry zeros
	assert.True(t, table.Blocks[0].Has(costing.FieldPhasingPayout, 3))
	assert.Equal(t, 0.0, table.Value(0, costing.FieldPhasingPayout, 1, "A1"))
	assert.Equal(t, 0.0, value(table, costing.FieldFinalPhasingPayout, "A1"))

	// WHEN the gate is on
	s.SubSchemes[0].Features.BonusSchemes = true
	table = run(t, s, rows)

	// THEN the single period pays
	assert.Equal(t, 100.0, value(table, costing.FieldFinalPhasingPayout, "A1"))
}

func TestEngine_RewardLookup(t *testing.T) {
	// GIVEN a payout of 12345 and an HO reward slab covering it
	slab := scheme.Slab{Start: 0}.With(scheme.CoefRebatePerLitre, 5)
	s := newScheme(t, scheme.BasisVolume, slab)
	s.Category = scheme.CategoryHO
	s.SubSchemes[0].Features.RewardSlabs = true
	s.SubSchemes[0].Rewards = []scheme.RewardSlab{
		{From: 1, To: 9999, Reward: "Bag"},
		{From: 10000, To: 15000, Reward: "Gift Voucher A"},
	}
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 1000, 0),
		sale(t, "A1", "M1", "2024-04-15", 2469, 0),
	}

	// WHEN the engine runs for an HO scheme
	table := run(t, s, rows)

	// THEN the reward text comes from the slab
	final, reward := table.Final("A1")
	assert.Equal(t, 12345.0, final)
	assert.Equal(t, "Gift Voucher A", reward)

	// WHEN the same scheme is not HO
	s.Category = "Regular"
	table = run(t, s, rows)

	// THEN a credit note is issued
	_, reward = table.Final("A1")
	assert.Equal(t, "Credit Note Rs. 12345", reward)

	// WHEN the scheme is inbuilt
	s.Category = scheme.CategoryInbuilt
	table = run(t, s, rows)

	// THEN nothing is paid
	final, reward = table.Final("A1")
	assert.Equal(t, 0.0, final)
	assert.Empty(t, reward)
}

func TestEngine_FinalPayoutRoundsUp(t *testing.T) {
	// GIVEN a payout of 2 x 100.2 litres
	slab := scheme.Slab{Start: 0}.With(scheme.CoefRebatePerLitre, 2)
	s := newScheme(t, scheme.BasisVolume, slab)
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 0),
		sale(t, "A1", "M1", "2024-04-15", 100.2, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN 200.4 is rounded up
	final, reward := table.Final("A1")
	assert.Equal(t, 201.0, final)
	assert.Equal(t, "Credit Note Rs. 201", reward)
}

func TestEngine_ExactTargetCountsAsAchieved(t *testing.T) {
	// GIVEN a 14% growth target on a base of 100 and exactly 114 litres sold
	// in the scheme period of a mandatory-qualify scheme
	slab := scheme.Slab{Start: 0}.
		With(scheme.CoefGrowthPct, 14).
		With(scheme.CoefRebatePerLitre, 1).
		With(scheme.CoefAdditionalRebateOnGrowth, 1)
	s := newScheme(t, scheme.BasisVolume, slab)
	s.SubSchemes[0].MandatoryQualify = true
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 0),
		sale(t, "A1", "M1", "2024-04-15", 114, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the account counts as achieved despite float error in the target
	assert.InDelta(t, 114.0, value(table, costing.FieldTargetVolume, "A1"), 1e-9)
	assert.InDelta(t, 1.0, value(table, costing.FieldPercentageAchieved, "A1"), 1e-12)
	assert.Equal(t, 114.0, value(table, costing.FieldBasicPayout, "A1"))
	assert.Equal(t, 114.0, value(table, costing.FieldAdditionalPayout, "A1"))
	final, reward := table.Final("A1")
	assert.Equal(t, 228.0, final)
	assert.Equal(t, "Credit Note Rs. 228", reward)
}

func TestEngine_ShortOfTargetIsNotAchieved(t *testing.T) {
	// GIVEN a target of 114 and 113.9 litres sold
	slab := scheme.Slab{Start: 0}.
		With(scheme.CoefGrowthPct, 14).
		With(scheme.CoefAdditionalRebateOnGrowth, 1)
	s := newScheme(t, scheme.BasisVolume, slab)
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 0),
		sale(t, "A1", "M1", "2024-04-15", 113.9, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN no additional payout is made
	assert.Equal(t, 0.0, value(table, costing.FieldAdditionalPayout, "A1"))
}

// =============================================================================
// BASE PERIODS
// =============================================================================

func TestEngine_AverageBaseAggregation(t *testing.T) {
	// GIVEN a three-month base period averaged rather than summed
	slab := scheme.Slab{Start: 0}.With(scheme.CoefGrowthPct, 10)
	s := newScheme(t, scheme.BasisVolume, slab)
	s.BasePeriods[0].Aggregation = scheme.AggregateAverage
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 300, 3000),
		sale(t, "A1", "M1", "2023-05-15", 600, 6000),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the base is the monthly average and the target grows from it
	assert.InDelta(t, 300.0, value(table, costing.FieldBase1Volume, "A1"), 1e-9)
	assert.InDelta(t, 3000.0, value(table, costing.FieldBase1Value, "A1"), 1e-9)
	assert.InDelta(t, 300.0, value(table, costing.FieldTotalVolume, "A1"), 1e-9)
	assert.InDelta(t, 330.0, value(table, costing.FieldTargetVolume, "A1"), 1e-9)
}

func TestEngine_SecondBasePeriodIsReportedOnly(t *testing.T) {
	// GIVEN two base periods with different sales
	s := newScheme(t, scheme.BasisVolume, scheme.Slab{Start: 0})
	s.BasePeriods = append(s.BasePeriods, scheme.BasePeriod{
		Period:      period(t, "2023-01-01", "2023-03-31"),
		Aggregation: scheme.AggregateSum,
	})
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 1000),
		sale(t, "A1", "M1", "2023-02-15", 250, 2500),
		sale(t, "A2", "M1", "2023-02-15", 40, 400),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN base 2 columns carry the second period and totals equal base 1
	require.Equal(t, 2, table.Len())
	assert.Equal(t, 100.0, value(table, costing.FieldBase1Volume, "A1"))
	assert.Equal(t, 250.0, value(table, costing.FieldBase2Volume, "A1"))
	assert.Equal(t, 2500.0, value(table, costing.FieldBase2Value, "A1"))
	assert.Equal(t, 100.0, value(table, costing.FieldTotalVolume, "A1"))
	assert.Equal(t, 1000.0, value(table, costing.FieldTotalValue, "A1"))
	assert.Contains(t, table.Headers(), "Base 2 Volume Final")

	// AND an account with base 2 sales only has a zero total
	assert.Equal(t, 40.0, value(table, costing.FieldBase2Volume, "A2"))
	assert.Equal(t, 0.0, value(table, costing.FieldTotalVolume, "A2"))
}

// =============================================================================
// VALUE AND PAYOUT-PRODUCT BRANCHES
// =============================================================================

func TestEngine_ValueMandatoryProductPayout(t *testing.T) {
	// GIVEN a value scheme with a fixed MP target of 500 and a 3% MP rebate
	slab := scheme.Slab{Start: 0}.
		With(scheme.CoefMandatoryTarget, 500).
		With(scheme.CoefMandatoryRebatePct, 3)
	s := newScheme(t, scheme.BasisValue, slab)
	s.SubSchemes[0].Features.MandatoryProducts = true
	s.SubSchemes[0].Products.Mandatory = scheme.ProductSet{Materials: scheme.NewSet("MP1")}
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 10000),
		sale(t, "A1", "MP1", "2024-04-15", 60, 600),
		sale(t, "A1", "M1", "2024-04-20", 100, 1000),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the MP payout is actual value times the rebate percent
	assert.Equal(t, 600.0, value(table, costing.FieldMPActualValue, "A1"))
	assert.Equal(t, 500.0, value(table, costing.FieldMPFinalTarget, "A1"))
	assert.InDelta(t, 1.2, value(table, costing.FieldMPFinalAchievement, "A1"), 1e-12)
	assert.Equal(t, 0.0, value(table, costing.FieldMPRebate, "A1"))
	assert.Equal(t, 3.0, value(table, costing.FieldMPRebatePct, "A1"))
	assert.InDelta(t, 18.0, value(table, costing.FieldMPFinalPayout, "A1"), 1e-9)
	final, _ := table.Final("A1")
	assert.Equal(t, 18.0, final)
}

func TestEngine_ValuePhasingPayout(t *testing.T) {
	// GIVEN a value scheme with one April phasing period at 10% of target
	// and a 2% rebate
	s := newScheme(t, scheme.BasisValue, scheme.Slab{Start: 0})
	s.SubSchemes[0].Features.BonusSchemes = true
	s.SubSchemes[0].Phasing = []scheme.PhasingPeriod{{
		ID:        1,
		Phasing:   period(t, "2024-04-01", "2024-04-30"),
		Payout:    period(t, "2024-04-01", "2024-04-30"),
		RebatePct: 2,
		TargetPct: 10,
	}}
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 10000),
		sale(t, "A1", "M1", "2024-04-15", 15, 1500),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the period pays its rebate percent on the payout-period value
	assert.InDelta(t, 1000.0, table.Value(0, costing.FieldPhasingTargetValue, 1, "A1"), 1e-9)
	assert.Equal(t, 0.0, table.Value(0, costing.FieldPhasingTargetVolume, 1, "A1"))
	assert.Equal(t, 1500.0, table.Value(0, costing.FieldPhasingPeriodValue, 1, "A1"))
	assert.InDelta(t, 1.5, table.Value(0, costing.FieldPhasingAchieved, 1, "A1"), 1e-12)
	assert.InDelta(t, 30.0, table.Value(0, costing.FieldPhasingPayout, 1, "A1"), 1e-9)
	assert.InDelta(t, 30.0, value(table, costing.FieldFinalPhasingPayout, "A1"), 1e-9)
	final, _ := table.Final("A1")
	assert.Equal(t, 30.0, final)
}

func TestEngine_PhasingPaysOnPayoutProducts(t *testing.T) {
	// GIVEN a volume phasing period with payout products limited to M2
	s := newScheme(t, scheme.BasisVolume, scheme.Slab{Start: 0})
	s.SubSchemes[0].Features.BonusSchemes = true
	s.SubSchemes[0].Features.PayoutProducts = true
	s.SubSchemes[0].Products.Payout = scheme.ProductSet{Materials: scheme.NewSet("M2")}
	s.SubSchemes[0].Phasing = []scheme.PhasingPeriod{{
		ID:          1,
		Phasing:     period(t, "2024-04-01", "2024-04-30"),
		Payout:      period(t, "2024-04-01", "2024-04-30"),
		RebateValue: 3,
		TargetPct:   10,
	}}
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 1000, 0),
		sale(t, "A1", "M1", "2024-04-15", 80, 0),
		sale(t, "A1", "M2", "2024-04-20", 40, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN achievement counts all products and the payout only M2
	assert.InDelta(t, 100.0, table.Value(0, costing.FieldPhasingTargetVolume, 1, "A1"), 1e-9)
	assert.Equal(t, 120.0, table.Value(0, costing.FieldPhasingPayoutPeriodVolume, 1, "A1"))
	assert.Equal(t, 40.0, table.Value(0, costing.FieldPhasingPayoutProductVolume, 1, "A1"))
	assert.InDelta(t, 1.2, table.Value(0, costing.FieldPhasingAchieved, 1, "A1"), 1e-12)
	assert.Equal(t, 120.0, table.Value(0, costing.FieldPhasingPayout, 1, "A1"))

	// WHEN payout products are off
	s.SubSchemes[0].Features.PayoutProducts = false
	table = run(t, s, rows)

	// THEN the payout uses the payout-period volume
	assert.Equal(t, 360.0, table.Value(0, costing.FieldPhasingPayout, 1, "A1"))
}

// =============================================================================
// MANDATORY PRODUCTS AND BONUS SCHEMES
// =============================================================================

func TestEngine_MandatoryProductPayout(t *testing.T) {
	// GIVEN a fixed mandatory target of 50 and 60 litres of MP1 sold
	slab := scheme.Slab{Start: 0}.
		With(scheme.CoefMandatoryTarget, 50).
		With(scheme.CoefMandatoryRebate, 2)
	s := newScheme(t, scheme.BasisVolume, slab)
	s.SubSchemes[0].Features.MandatoryProducts = true
	s.SubSchemes[0].Products.Mandatory = scheme.ProductSet{Materials: scheme.NewSet("MP1")}
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 1000),
		sale(t, "A1", "MP1", "2024-04-15", 60, 600),
		sale(t, "A1", "M1", "2024-04-20", 100, 1000),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the MP leg pays on MP actuals
	assert.Equal(t, 60.0, value(table, costing.FieldMPActualVolume, "A1"))
	assert.Equal(t, 1.0, value(table, costing.FieldMPActualPPI, "A1"))
	assert.Equal(t, 5.0, value(table, costing.FieldMPMinShadesPPI, "A1"))
	assert.Equal(t, 50.0, value(table, costing.FieldMPFinalTarget, "A1"))
	assert.InDelta(t, 1.2, value(table, costing.FieldMPFinalAchievement, "A1"), 1e-12)
	assert.Equal(t, 120.0, value(table, costing.FieldMPFinalPayout, "A1"))
	final, _ := table.Final("A1")
	assert.Equal(t, 120.0, final)
}

func TestEngine_BonusSchemeCountsForHOOnly(t *testing.T) {
	// GIVEN a bonus scheme at 50% of a 1000 litre target and 600 litres sold
	s := newScheme(t, scheme.BasisVolume, scheme.Slab{Start: 0})
	s.Category = scheme.CategoryHO
	s.SubSchemes[0].Features.BonusSchemes = true
	s.SubSchemes[0].Bonuses = []scheme.BonusScheme{{
		ID:               7,
		MainTargetPct:    50,
		RewardOnTotalPct: 10,
		Period:           period(t, "2024-04-01", "2024-06-30"),
		PayoutPeriod:     period(t, "2024-04-01", "2024-06-30"),
	}}
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 1000, 0),
		sale(t, "A1", "M1", "2024-04-15", 600, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the bonus pays 10% of the payout-period volume
	assert.Equal(t, 7.0, table.Value(0, costing.FieldBonusSchemeNo, 1, "A1"))
	assert.Equal(t, 500.0, table.Value(0, costing.FieldBonusMainTargetVolume, 1, "A1"))
	assert.InDelta(t, 1.2, table.Value(0, costing.FieldBonusSchemeAchieved, 1, "A1"), 1e-12)
	assert.InDelta(t, 60.0, table.Value(0, costing.FieldBonusSchemePayout, 1, "A1"), 1e-9)
	final, _ := table.Final("A1")
	assert.Equal(t, 60.0, final)

	// WHEN the scheme is not HO
	s.Category = "Regular"
	table = run(t, s, rows)

	// THEN the bonus is reported but not paid
	assert.InDelta(t, 60.0, table.Value(0, costing.FieldBonusSchemePayout, 1, "A1"), 1e-9)
	final, _ = table.Final("A1")
	assert.Equal(t, 0.0, final)
}

func TestEngine_BonusSchemeMandatoryLeg(t *testing.T) {
	// GIVEN an HO bonus scheme rewarding 20% of MP volume once 80% of the
	// MP target of 50 is reached, with 60 litres of MP1 sold
	slab := scheme.Slab{Start: 0}.With(scheme.CoefMandatoryTarget, 50)
	s := newScheme(t, scheme.BasisVolume, slab)
	s.Category = scheme.CategoryHO
	s.SubSchemes[0].Features.BonusSchemes = true
	s.SubSchemes[0].Features.MandatoryProducts = true
	s.SubSchemes[0].Products.Mandatory = scheme.ProductSet{Materials: scheme.NewSet("MP1")}
	s.SubSchemes[0].Bonuses = []scheme.BonusScheme{{
		ID:                   3,
		MainTargetPct:        50,
		MandatoryTargetPct:   80,
		RewardOnMandatoryPct: 20,
		Period:               period(t, "2024-04-01", "2024-06-30"),
		PayoutPeriod:         period(t, "2024-04-01", "2024-06-30"),
	}}
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 1000, 0),
		sale(t, "A1", "M1", "2024-04-15", 600, 0),
		sale(t, "A1", "MP1", "2024-05-15", 60, 0),
	}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN the MP leg derives its target from MP_Final_Target and pays
	assert.Equal(t, 50.0, value(table, costing.FieldMPFinalTarget, "A1"))
	assert.InDelta(t, 40.0, table.Value(0, costing.FieldBonusMPTargetVolume, 1, "A1"), 1e-9)
	assert.Equal(t, 0.0, table.Value(0, costing.FieldBonusMPTargetValue, 1, "A1"))
	assert.Equal(t, 60.0, table.Value(0, costing.FieldBonusActualMPVolume, 1, "A1"))
	assert.InDelta(t, 1.5, table.Value(0, costing.FieldBonusMPAchieved, 1, "A1"), 1e-12)
	assert.InDelta(t, 12.0, table.Value(0, costing.FieldBonusSchemeMPPayout, 1, "A1"), 1e-9)
	assert.Equal(t, 0.0, table.Value(0, costing.FieldBonusSchemePayout, 1, "A1"))
	assert.Contains(t, table.Headers(), "Mandatory_Product_Bonus_Target_Volume_1")
	assert.Contains(t, table.Headers(), "Bonus_Scheme_1_MP_Payout")
	final, _ := table.Final("A1")
	assert.Equal(t, 12.0, final)

	// WHEN the MP minimum exceeds the sold volume
	s.SubSchemes[0].Bonuses[0].MinimumMandatoryTarget = 100
	table = run(t, s, rows)

	// THEN the MP leg misses and pays nothing
	assert.Equal(t, 100.0, table.Value(0, costing.FieldBonusMPTargetVolume, 1, "A1"))
	assert.Equal(t, 0.0, table.Value(0, costing.FieldBonusSchemeMPPayout, 1, "A1"))
}

func TestEngine_StrataGrowthOverridesSlab(t *testing.T) {
	// GIVEN a strata override of 50% for one account
	slab := scheme.Slab{Start: 0}.With(scheme.CoefGrowthPct, 10)
	s := newScheme(t, scheme.BasisVolume, slab)
	s.SubSchemes[0].Features.EnableStrataGrowth = true
	rows := []sales.Row{
		sale(t, "A1", "M1", "2023-04-15", 100, 0),
		sale(t, "A2", "M1", "2023-04-15", 100, 0),
	}
	engine, err := costing.NewEngine()
	require.NoError(t, err)

	// WHEN the engine runs
	table, err := engine.Run(context.Background(), s, rows, map[string]float64{"A1": 50})
	require.NoError(t, err)

	// THEN only that account takes the override
	assert.InDelta(t, 150.0, table.Value(0, costing.FieldTargetVolume, 0, "A1"), 1e-9)
	assert.InDelta(t, 110.0, table.Value(0, costing.FieldTargetVolume, 0, "A2"), 1e-9)
}

func TestEngine_EstimatesUseQualificationRate(t *testing.T) {
	// GIVEN a volume target of 1000, qualification 80% and ASP 50
	slab := scheme.Slab{Start: 0}.
		With(scheme.CoefQualificationPct, 80).
		With(scheme.CoefRebatePerLitre, 2).
		With(scheme.CoefAdditionalRebateOnGrowth, 1)
	s := newScheme(t, scheme.BasisVolume, slab)
	rows := []sales.Row{sale(t, "A1", "M1", "2023-04-15", 1000, 50000)}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN estimates are derived from the target
	assert.InDelta(t, 0.8, value(table, costing.FieldQualificationRate, "A1"), 1e-12)
	assert.InDelta(t, 50.0, value(table, costing.FieldASP, "A1"), 1e-9)
	assert.InDelta(t, 800.0, value(table, costing.FieldEstimatedVolume, "A1"), 1e-9)
	assert.InDelta(t, 40000.0, value(table, costing.FieldEstimatedValue, "A1"), 1e-9)
	assert.InDelta(t, 1600.0, value(table, costing.FieldEstBasicPayout, "A1"), 1e-9)
	assert.InDelta(t, 800.0, value(table, costing.FieldEstAdditionalPayout, "A1"), 1e-9)
	assert.InDelta(t, 2400.0, value(table, costing.FieldEstSchemePayout, "A1"), 1e-9)
}

func TestEngine_ValueEstimateWithoutVolumeIsZero(t *testing.T) {
	// GIVEN a value scheme whose account has value but no volume
	s := newScheme(t, scheme.BasisValue, scheme.Slab{Start: 0})
	rows := []sales.Row{sale(t, "A1", "M1", "2023-04-15", 0, 1000)}

	// WHEN the engine runs
	table := run(t, s, rows)

	// THEN ASP and estimated volume are 0, not Inf
	assert.Equal(t, 0.0, value(table, costing.FieldASP, "A1"))
	assert.Equal(t, 0.0, value(table, costing.FieldEstimatedVolume, "A1"))
	assert.InDelta(t, 700.0, value(table, costing.FieldEstimatedValue, "A1"), 1e-9)
}

// =============================================================================
// PROPERTIES
// =============================================================================

// multiScheme has a main volume scheme and two additional schemes with
// different product restrictions.
func multiScheme(t *testing.T) *scheme.Scheme {
	s := newScheme(t, scheme.BasisVolume,
		scheme.Slab{Start: 100, End: 1000}.With(scheme.CoefGrowthPct, 10).With(scheme.CoefRebatePerLitre, 1).
			With(scheme.CoefMandatoryTarget, 20).With(scheme.CoefMandatoryRebate, 1),
		scheme.Slab{Start: 1001}.With(scheme.CoefGrowthPct, 5).With(scheme.CoefRebatePerLitre, 2),
	)
	s.SubSchemes[0].Features = scheme.Features{MandatoryProducts: true, BonusSchemes: true}
	s.SubSchemes[0].Products.Mandatory = scheme.ProductSet{Materials: scheme.NewSet("M2")}
	s.SubSchemes[0].Phasing = []scheme.PhasingPeriod{
		{ID: 1, Phasing: period(t, "2024-04-01", "2024-04-30"), Payout: period(t, "2024-04-01", "2024-05-31"), RebateValue: 1, TargetPct: 30},
	}
	s.SubSchemes[0].Bonuses = []scheme.BonusScheme{{
		ID:               1,
		MainTargetPct:    80,
		RewardOnTotalPct: 5,
		Period:           s.Period,
		PayoutPeriod:     s.Period,
	}}
	s.SubSchemes = append(s.SubSchemes,
		scheme.SubScheme{
			Index: 1, Name: "thinners", Basis: scheme.BasisValue,
			Products: scheme.ProductSets{Products: scheme.ProductSet{Materials: scheme.NewSet("M2")}},
			Slabs:    scheme.SlabTable{scheme.Slab{Start: 100}.With(scheme.CoefRebatePct, 4)},
		},
		scheme.SubScheme{
			Index: 2, Name: "emulsions", Basis: scheme.BasisVolume,
			Products: scheme.ProductSets{Products: scheme.ProductSet{Materials: scheme.NewSet("M3")}},
			Slabs:    scheme.SlabTable{scheme.Slab{Start: 10}.With(scheme.CoefRebatePerLitre, 3)},
		},
	)
	return s
}

func multiRows(t *testing.T) []sales.Row {
	return []sales.Row{
		sale(t, "C3", "M1", "2023-05-01", 1500, 90000),
		sale(t, "A1", "M1", "2023-04-10", 400, 20000),
		sale(t, "A1", "M2", "2023-04-11", 40, 4000),
		sale(t, "A1", "M1", "2024-04-10", 300, 15000),
		sale(t, "A1", "M2", "2024-04-20", 50, 5200),
		sale(t, "A1", "M3", "2024-05-20", 30, 900),
		sale(t, "B2", "M3", "2024-06-01", 5, 150),
		sale(t, "C3", "M1", "2024-06-05", 1700, 100000),
	}
}

func TestEngine_Invariants(t *testing.T) {
	s := multiScheme(t)
	table := run(t, s, multiRows(t))
	require.Equal(t, 3, table.Len())
	assert.Equal(t, "A1", table.Accounts[0].CreditAccount)
	assert.Equal(t, "C3", table.Accounts[2].CreditAccount)

	for _, acct := range table.Accounts {
		id := acct.CreditAccount
		for i, sub := range s.SubSchemes {
			vol := table.Value(i, costing.FieldTargetVolume, 0, id)
			val := table.Value(i, costing.FieldTargetValue, 0, id)
			assert.True(t, (vol == 0) != (val == 0), "%s block %d: exactly one target axis", id, i)
			if sub.Basis.IsVolume() {
				first, _ := sub.Slabs.First()
				assert.GreaterOrEqual(t, vol, first.Start)
			}
			assert.GreaterOrEqual(t,
				table.Value(i, costing.FieldMPFinalTarget, 0, id),
				table.Value(i, costing.FieldMPFixedTarget, 0, id))
		}
		final, reward := table.Final(id)
		assert.GreaterOrEqual(t, final, 0.0)
		assert.Equal(t, math.Ceil(final), final)
		assert.Equal(t, final > 0, reward != "")
	}

	for _, row := range table.Rows() {
		for _, cell := range row {
			n, ok := cell.(json.Number)
			if !ok {
				continue
			}
			f, err := n.Float64()
			require.NoError(t, err)
			assert.False(t, math.IsInf(f, 0) || math.IsNaN(f))
		}
	}
}

func TestEngine_AdditionalSchemeColumnsAreSuffixed(t *testing.T) {
	table := run(t, multiScheme(t), multiRows(t))
	headers := table.Headers()

	assert.Contains(t, headers, "target_value_p1")
	assert.Contains(t, headers, "Phasing_Payout_3_p2")
	assert.Contains(t, headers, "Bonus_Scheme_1_Bonus_Payout")
	assert.NotContains(t, headers, "Bonus_Scheme_1_Bonus_Payout_p1")
	assert.Len(t, table.Rows()[0], len(headers))
}

func TestEngine_IsIdempotent(t *testing.T) {
	first := run(t, multiScheme(t), multiRows(t))
	second := run(t, multiScheme(t), multiRows(t))

	assert.Equal(t, first.Headers(), second.Headers())
	assert.Equal(t, first.Rows(), second.Rows())
}

func TestEngine_AdditionalSchemeOrderPermutesBlocks(t *testing.T) {
	s := multiScheme(t)
	swapped := multiScheme(t)
	swapped.SubSchemes[1], swapped.SubSchemes[2] = swapped.SubSchemes[2], swapped.SubSchemes[1]
	swapped.SubSchemes[1].Index, swapped.SubSchemes[2].Index = 1, 2

	a := run(t, s, multiRows(t))
	b := run(t, swapped, multiRows(t))

	fields := []costing.Field{
		costing.FieldTargetVolume,
		costing.FieldTargetValue,
		costing.FieldPercentageAchieved,
		costing.FieldTotalPayout,
	}
	for _, acct := range a.Accounts {
		id := acct.CreditAccount
		for _, f := range fields {
			assert.Equal(t, a.Value(0, f, 0, id), b.Value(0, f, 0, id), "main %s", f)
			assert.Equal(t, a.Value(1, f, 0, id), b.Value(2, f, 0, id), "p1 -> p2 %s", f)
			assert.Equal(t, a.Value(2, f, 0, id), b.Value(1, f, 0, id), "p2 -> p1 %s", f)
		}
		fa, _ := a.Final(id)
		fb, _ := b.Final(id)
		assert.Equal(t, fa, fb)
	}
}

func TestEngine_ApplicabilityFilters(t *testing.T) {
	// GIVEN a state filter that is only applied when the gate is on
	s := newScheme(t, scheme.BasisVolume, scheme.Slab{Start: 0})
	s.Filters = scheme.Applicability{States: scheme.NewSet("KA")}
	ka := sale(t, "K1", "M1", "2024-04-10", 10, 0)
	ka.State = "KA"
	rows := []sales.Row{ka, sale(t, "A1", "M1", "2024-04-10", 10, 0)}

	assert.Equal(t, 2, run(t, s, rows).Len())

	s.FiltersEnabled = true
	table := run(t, s, rows)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "K1", table.Accounts[0].CreditAccount)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, json.Number("12.50"), costing.FormatNumber(costing.UnitRatio, 0.125))
	assert.Equal(t, json.Number("3.00"), costing.FormatNumber(costing.UnitPercent, 3))
	assert.Equal(t, json.Number("2"), costing.FormatNumber(costing.UnitOrdinal, 2))
	assert.Equal(t, json.Number("12345"), costing.FormatNumber(costing.UnitInteger, 12345))
	assert.Equal(t, json.Number("0.00"), costing.FormatNumber(costing.UnitAmount, math.Inf(1)))
	assert.Equal(t, json.Number("1.23"), costing.FormatNumber(costing.UnitAmount, 1.234))
}
