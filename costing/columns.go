package costing

import "fmt"

// =============================================================================
// UNITS - How a stored number is rendered
// =============================================================================

// Unit tags every column with its representation. Numbers are stored in the
// unit's internal form and converted only when the table is rendered.
type Unit int

const (
	// UnitAmount is a volume, value or currency amount. Two decimals.
	UnitAmount Unit = iota
	// UnitRatio is stored as a fraction (1.0 = 100%) and rendered x100.
	UnitRatio
	// UnitPercent is a slab-native percentage, rendered as stored.
	UnitPercent
	// UnitDecimal is a percentage field stored and rendered as a fraction.
	UnitDecimal
	// UnitCount is a tally such as PPI. Two decimals.
	UnitCount
	// UnitOrdinal is a period or bonus number. No decimals.
	UnitOrdinal
	// UnitInteger is a rounded-up payout. No decimals.
	UnitInteger
	// UnitText is a string column.
	UnitText
)

// =============================================================================
// FIELDS - Stable enum of every column the engine can produce
// =============================================================================

// Field identifies a column independent of the sub-scheme it belongs to.
type Field int

const (
	// Identity
	FieldCreditAccount Field = iota
	FieldCustomerName
	FieldStateName
	FieldRegionName
	FieldAreaHeadName
	FieldDivision
	FieldDealerType
	FieldDistributor

	// Block header
	FieldSchemeType
	FieldMandatoryQualify

	// Base & scheme metrics
	FieldBase1Volume
	FieldBase1Value
	FieldBase2Volume
	FieldBase2Value
	FieldTotalVolume
	FieldTotalValue

	// Growth and targets
	FieldGrowthRate
	FieldTargetVolume
	FieldTargetValue
	FieldActualVolume
	FieldActualValue
	FieldPercentageAchieved

	// Mandatory products
	FieldMPBaseVolume
	FieldMPBaseValue
	FieldMPActualVolume
	FieldMPActualValue
	FieldMPActualPPI
	FieldMPGrowth
	FieldMPGrowthTargetVolume
	FieldMPGrowthTargetValue
	FieldMPPctTargetToActual
	FieldMPPctToActualTargetVolume
	FieldMPPctToActualTargetValue
	FieldMPFixedTarget
	FieldMPMinShadesPPI
	FieldMPFinalTarget
	FieldMPFinalAchievement
	FieldMPRebate
	FieldMPRebatePct
	FieldMPFinalPayout

	// Payouts
	FieldRebatePerLitre
	FieldRebatePct
	FieldAdditionalRebate
	FieldFixedRebate
	FieldPayoutProductsVolume
	FieldPayoutProductsValue
	FieldBasicPayout
	FieldAdditionalPayout
	FieldTotalPayout

	// Phasing, one slot per period
	FieldPhasingPeriodNo
	FieldPhasingTargetPct
	FieldPhasingTargetVolume
	FieldPhasingTargetValue
	FieldPhasingPeriodVolume
	FieldPhasingPeriodValue
	FieldPhasingPayoutPeriodVolume
	FieldPhasingPayoutPeriodValue
	FieldPhasingPayoutProductVolume
	FieldPhasingPayoutProductValue
	FieldPhasingRebateValue
	FieldPhasingRebatePct
	FieldPhasingAchieved
	FieldPhasingPayout
	FieldIsBonus
	FieldBonusTargetPct
	FieldBonusTargetVolume
	FieldBonusTargetValue
	FieldBonusPhasingVolume
	FieldBonusPhasingValue
	FieldBonusPayoutPeriodVolume
	FieldBonusPayoutPeriodValue
	FieldBonusPayoutProductVolume
	FieldBonusPayoutProductValue
	FieldBonusRebateValue
	FieldBonusRebatePct
	FieldBonusAchieved
	FieldBonusPayout
	FieldFinalPhasingPayout

	// Bonus sub-schemes, one slot per bonus scheme (main block only)
	FieldBonusSchemeNo
	FieldBonusMainTargetPct
	FieldBonusMinimumTarget
	FieldBonusMPTargetPct
	FieldBonusMinimumMPTarget
	FieldBonusRewardTotalPct
	FieldBonusRewardMPPct
	FieldBonusMainTargetVolume
	FieldBonusMainTargetValue
	FieldBonusActualVolume
	FieldBonusActualValue
	FieldBonusSchemeAchieved
	FieldBonusMPTargetVolume
	FieldBonusMPTargetValue
	FieldBonusActualMPVolume
	FieldBonusActualMPValue
	FieldBonusMPAchieved
	FieldBonusPayoutActualVolume
	FieldBonusPayoutActualValue
	FieldBonusPayoutMPVolume
	FieldBonusPayoutMPValue
	FieldBonusSchemePayout
	FieldBonusSchemeMPPayout

	// Estimation
	FieldQualificationRate
	FieldASP
	FieldEstimatedVolume
	FieldEstimatedValue
	FieldEstBasicPayout
	FieldEstAdditionalPayout
	FieldEstTotalPayout
	FieldEstMPPayout
	FieldEstPhasingPayout
	FieldEstSchemePayout

	// Terminal
	FieldSchemeFinalPayout
	FieldRewards

	numFields
)

type fieldSpec struct {
	name    string
	unit    Unit
	slotted bool
}

func plain(name string, unit Unit) fieldSpec   { return fieldSpec{name: name, unit: unit} }
func slotted(name string, unit Unit) fieldSpec { return fieldSpec{name: name, unit: unit, slotted: true} }

var fieldSpecs = [numFields]fieldSpec{
	FieldCreditAccount: plain("credit_account", UnitText),
	FieldCustomerName:  plain("customer_name", UnitText),
	FieldStateName:     plain("state_name", UnitText),
	FieldRegionName:    plain("region_name", UnitText),
	FieldAreaHeadName:  plain("area_head_name", UnitText),
	FieldDivision:      plain("division", UnitText),
	FieldDealerType:    plain("dealer_type", UnitText),
	FieldDistributor:   plain("distributor", UnitText),

	FieldSchemeType:       plain("Scheme Type", UnitText),
	FieldMandatoryQualify: plain("Mandatory Qualify", UnitText),

	FieldBase1Volume: plain("Base 1 Volume Final", UnitAmount),
	FieldBase1Value:  plain("Base 1 Value Final", UnitAmount),
	FieldBase2Volume: plain("Base 2 Volume Final", UnitAmount),
	FieldBase2Value:  plain("Base 2 Value Final", UnitAmount),
	FieldTotalVolume: plain("total_volume", UnitAmount),
	FieldTotalValue:  plain("total_value", UnitAmount),

	FieldGrowthRate:         plain("growth_rate", UnitRatio),
	FieldTargetVolume:       plain("target_volume", UnitAmount),
	FieldTargetValue:        plain("target_value", UnitAmount),
	FieldActualVolume:       plain("actual_volume", UnitAmount),
	FieldActualValue:        plain("actual_value", UnitAmount),
	FieldPercentageAchieved: plain("percentage_achieved", UnitRatio),

	FieldMPBaseVolume:              plain("Mandatory_Product_Base_Volume", UnitAmount),
	FieldMPBaseValue:               plain("Mandatory_Product_Base_Value", UnitAmount),
	FieldMPActualVolume:            plain("Mandatory_Product_Actual_Volume", UnitAmount),
	FieldMPActualValue:             plain("Mandatory_Product_Actual_Value", UnitAmount),
	FieldMPActualPPI:               plain("Mandatory_product_actual_PPI", UnitCount),
	FieldMPGrowth:                  plain("Mandatory_Product_Growth", UnitRatio),
	FieldMPGrowthTargetVolume:      plain("Mandatory_Product_Growth_Target_Volume", UnitAmount),
	FieldMPGrowthTargetValue:       plain("Mandatory_Product_Growth_Target_Value", UnitAmount),
	FieldMPPctTargetToActual:       plain("Mandatory_Product_pct_Target_to_Actual_Sales", UnitPercent),
	FieldMPPctToActualTargetVolume: plain("Mandatory_Product_pct_to_Actual_Target_Volume", UnitAmount),
	FieldMPPctToActualTargetValue:  plain("Mandatory_Product_pct_to_Actual_Target_Value", UnitAmount),
	FieldMPFixedTarget:             plain("Mandatory_Product_Fixed_Target", UnitAmount),
	FieldMPMinShadesPPI:            plain("Mandatory_Min_Shades_PPI", UnitCount),
	FieldMPFinalTarget:             plain("MP_FINAL_TARGET", UnitAmount),
	FieldMPFinalAchievement:        plain("MP_FINAL_ACHIEVEMENT_pct", UnitRatio),
	FieldMPRebate:                  plain("Mandatory_Product_Rebate", UnitAmount),
	FieldMPRebatePct:               plain("MP_Rebate_percent", UnitPercent),
	FieldMPFinalPayout:             plain("MP_Final_Payout", UnitAmount),

	FieldRebatePerLitre:       plain("Rebate_per_Litre", UnitAmount),
	FieldRebatePct:            plain("Rebate_percent", UnitPercent),
	FieldAdditionalRebate:     plain("Additional_Rebate_on_Growth_per_Litre", UnitAmount),
	FieldFixedRebate:          plain("Fixed_Rebate", UnitAmount),
	FieldPayoutProductsVolume: plain("Payout_Products_Volume", UnitAmount),
	FieldPayoutProductsValue:  plain("Payout_Products_Value", UnitAmount),
	FieldBasicPayout:          plain("basic_payout", UnitAmount),
	FieldAdditionalPayout:     plain("additional_payout", UnitAmount),
	FieldTotalPayout:          plain("Total_Payout", UnitAmount),

	FieldPhasingPeriodNo:            slotted("Phasing_Period_No_%d", UnitOrdinal),
	FieldPhasingTargetPct:           slotted("Phasing_Target_Percent_%d", UnitPercent),
	FieldPhasingTargetVolume:        slotted("Phasing_Target_Volume_%d", UnitAmount),
	FieldPhasingTargetValue:         slotted("Phasing_Target_Value_%d", UnitAmount),
	FieldPhasingPeriodVolume:        slotted("Phasing_Period_Volume_%d", UnitAmount),
	FieldPhasingPeriodValue:         slotted("Phasing_Period_Value_%d", UnitAmount),
	FieldPhasingPayoutPeriodVolume:  slotted("Phasing_Payout_Period_Volume_%d", UnitAmount),
	FieldPhasingPayoutPeriodValue:   slotted("Phasing_Payout_Period_Value_%d", UnitAmount),
	FieldPhasingPayoutProductVolume: slotted("Phasing_Period_Payout_Product_Volume_%d", UnitAmount),
	FieldPhasingPayoutProductValue:  slotted("Phasing_Period_Payout_Product_Value_%d", UnitAmount),
	FieldPhasingRebateValue:         slotted("Phasing_Period_Rebate_%d", UnitAmount),
	FieldPhasingRebatePct:           slotted("Phasing_Period_Rebate_Percent_%d", UnitPercent),
	FieldPhasingAchieved:            slotted("Percent_Phasing_Achieved_%d", UnitRatio),
	FieldPhasingPayout:              slotted("Phasing_Payout_%d", UnitAmount),
	FieldIsBonus:                    slotted("Is_Bonus_%d", UnitOrdinal),
	FieldBonusTargetPct:             slotted("Bonus_Phasing_Target_Percent_%d", UnitPercent),
	FieldBonusTargetVolume:          slotted("Bonus_Target_Volume_%d", UnitAmount),
	FieldBonusTargetValue:           slotted("Bonus_Target_Value_%d", UnitAmount),
	FieldBonusPhasingVolume:         slotted("Bonus_Phasing_Period_Volume_%d", UnitAmount),
	FieldBonusPhasingValue:          slotted("Bonus_Phasing_Period_Value_%d", UnitAmount),
	FieldBonusPayoutPeriodVolume:    slotted("Bonus_Payout_Period_Volume_%d", UnitAmount),
	FieldBonusPayoutPeriodValue:     slotted("Bonus_Payout_Period_Value_%d", UnitAmount),
	FieldBonusPayoutProductVolume:   slotted("Bonus_Payout_Period_Payout_Product_Volume_%d", UnitAmount),
	FieldBonusPayoutProductValue:    slotted("Bonus_Payout_Period_Payout_Product_Value_%d", UnitAmount),
	FieldBonusRebateValue:           slotted("Bonus_Rebate_Value_%d", UnitAmount),
	FieldBonusRebatePct:             slotted("Bonus_Rebate_Percent_%d", UnitPercent),
	FieldBonusAchieved:              slotted("Percent_Bonus_Achieved_%d", UnitRatio),
	FieldBonusPayout:                slotted("Bonus_Payout_%d", UnitAmount),
	FieldFinalPhasingPayout:         plain("FINAL_PHASING_PAYOUT", UnitAmount),

	FieldBonusSchemeNo:           slotted("Bonus_Scheme_No_%d", UnitOrdinal),
	FieldBonusMainTargetPct:      slotted("Main_Scheme_Target_Percent_%d", UnitDecimal),
	FieldBonusMinimumTarget:      slotted("Minimum_Target_%d", UnitAmount),
	FieldBonusMPTargetPct:        slotted("Mandatory_Product_Target_Percent_%d", UnitDecimal),
	FieldBonusMinimumMPTarget:    slotted("Minimum_Mandatory_Product_Target_%d", UnitAmount),
	FieldBonusRewardTotalPct:     slotted("Reward_on_Total_Percent_%d", UnitPercent),
	FieldBonusRewardMPPct:        slotted("Reward_on_Mandatory_Product_Percent_%d", UnitPercent),
	FieldBonusMainTargetVolume:   slotted("Main_Scheme_Bonus_Target_Volume_%d", UnitAmount),
	FieldBonusMainTargetValue:    slotted("Main_Scheme_Bonus_Target_Value_%d", UnitAmount),
	FieldBonusActualVolume:       slotted("Actual_Bonus_Volume_%d", UnitAmount),
	FieldBonusActualValue:        slotted("Actual_Bonus_Value_%d", UnitAmount),
	FieldBonusSchemeAchieved:     slotted("Bonus_Scheme_%%_Achieved_%d", UnitRatio),
	FieldBonusMPTargetVolume:     slotted("Mandatory_Product_Bonus_Target_Volume_%d", UnitAmount),
	FieldBonusMPTargetValue:      slotted("Mandatory_Product_Bonus_Target_Value_%d", UnitAmount),
	FieldBonusActualMPVolume:     slotted("Actual_Bonus_MP_Volume_%d", UnitAmount),
	FieldBonusActualMPValue:      slotted("Actual_Bonus_MP_Value_%d", UnitAmount),
	FieldBonusMPAchieved:         slotted("Bonus_Scheme_%%_MP_Achieved_%d", UnitRatio),
	FieldBonusPayoutActualVolume: slotted("Actual_Bonus_Payout_Period_Volume_%d", UnitAmount),
	FieldBonusPayoutActualValue:  slotted("Actual_Bonus_Payout_Period_Value_%d", UnitAmount),
	FieldBonusPayoutMPVolume:     slotted("Actual_Bonus_Payout_Period_MP_Volume_%d", UnitAmount),
	FieldBonusPayoutMPValue:      slotted("Actual_Bonus_Payout_Period_MP_Value_%d", UnitAmount),
	FieldBonusSchemePayout:       slotted("Bonus_Scheme_%d_Bonus_Payout", UnitAmount),
	FieldBonusSchemeMPPayout:     slotted("Bonus_Scheme_%d_MP_Payout", UnitAmount),

	FieldQualificationRate:   plain("Qualification_Rate", UnitRatio),
	FieldASP:                 plain("ASP", UnitAmount),
	FieldEstimatedVolume:     plain("Estimated_Volume", UnitAmount),
	FieldEstimatedValue:      plain("Estimated_Value", UnitAmount),
	FieldEstBasicPayout:      plain("Est.basic_payout", UnitAmount),
	FieldEstAdditionalPayout: plain("Est.additional_payout", UnitAmount),
	FieldEstTotalPayout:      plain("Est.Total_Payout", UnitAmount),
	FieldEstMPPayout:         plain("Est.MP_Final_Payout", UnitAmount),
	FieldEstPhasingPayout:    plain("Est.Phasing_Payout", UnitAmount),
	FieldEstSchemePayout:     plain("Est.Scheme_Payout", UnitAmount),

	FieldSchemeFinalPayout: plain("Scheme Final Payout", UnitInteger),
	FieldRewards:           plain("Rewards", UnitText),
}

// Unit returns the field's representation tag.
func (f Field) Unit() Unit {
	if f < 0 || f >= numFields {
		return UnitText
	}
	return fieldSpecs[f].unit
}

// Slotted reports a field repeated per phasing period or bonus scheme.
func (f Field) Slotted() bool {
	return f >= 0 && f < numFields && fieldSpecs[f].slotted
}

// Name renders the base header. Slotted fields take their 1-based slot.
func (f Field) Name(slot int) string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("field_%d", int(f))
	}
	spec := fieldSpecs[f]
	if spec.slotted {
		return fmt.Sprintf(spec.name, slot)
	}
	return spec.name
}

func (f Field) String() string { return f.Name(0) }

// Column is a field within one block. Slot is 0 for unslotted fields.
type Column struct {
	Field Field
	Slot  int
}

// Header renders the column name with the block suffix.
func (c Column) Header(suffix string) string {
	return c.Field.Name(c.Slot) + suffix
}

// identityFields are emitted once, before any block.
var identityFields = []Field{
	FieldCreditAccount,
	FieldCustomerName,
	FieldStateName,
	FieldRegionName,
	FieldAreaHeadName,
	FieldDivision,
	FieldDealerType,
	FieldDistributor,
}
