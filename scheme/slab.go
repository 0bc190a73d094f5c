package scheme

// =============================================================================
// COEFFICIENTS - Per-slab numbers consumed by the engines
// =============================================================================

// Coefficient names one number carried by every slab.
type Coefficient int

const (
	CoefGrowthPct Coefficient = iota
	CoefQualificationPct
	CoefRebatePerLitre
	CoefRebatePct
	CoefAdditionalRebateOnGrowth
	CoefFixedRebate
	CoefMandatoryTarget
	CoefMandatoryGrowthPct
	CoefMandatoryTargetToActualPct
	CoefMandatoryRebate
	CoefMandatoryRebatePct
	CoefMandatoryMinShadesPPI

	numCoefficients
)

var coefficientNames = [numCoefficients]string{
	CoefGrowthPct:                  "growth_pct",
	CoefQualificationPct:           "qualification_pct",
	CoefRebatePerLitre:             "rebate_per_litre",
	CoefRebatePct:                  "rebate_pct",
	CoefAdditionalRebateOnGrowth:   "additional_rebate_on_growth",
	CoefFixedRebate:                "fixed_rebate",
	CoefMandatoryTarget:            "mandatory_product_target",
	CoefMandatoryGrowthPct:         "mandatory_product_growth_pct",
	CoefMandatoryTargetToActualPct: "mandatory_product_target_to_actual_pct",
	CoefMandatoryRebate:            "mandatory_product_rebate",
	CoefMandatoryRebatePct:         "mandatory_product_rebate_pct",
	CoefMandatoryMinShadesPPI:      "mandatory_min_shades_ppi",
}

func (c Coefficient) String() string {
	if c < 0 || c >= numCoefficients {
		return "unknown"
	}
	return coefficientNames[c]
}

// =============================================================================
// SLAB
// =============================================================================

// Slab is the band [Start, End], inclusive at both ends. An End of 0 on the
// last slab of a table leaves it open above.
type Slab struct {
	Start  float64
	End    float64
	Values [numCoefficients]float64
}

// Coef returns one coefficient of the slab.
func (s Slab) Coef(c Coefficient) float64 {
	if c < 0 || c >= numCoefficients {
		return 0
	}
	return s.Values[c]
}

// With returns a copy of the slab with c set to v.
func (s Slab) With(c Coefficient, v float64) Slab {
	s.Values[c] = v
	return s
}

// =============================================================================
// SLAB TABLE - Single lookup discipline for every coefficient
// =============================================================================

// SlabTable is an ascending, disjoint list of slabs.
type SlabTable []Slab

// NoSlab is the bucket index of a value that maps to no slab.
const NoSlab = -1

// First returns the lowest slab.
func (t SlabTable) First() (Slab, bool) {
	if len(t) == 0 {
		return Slab{}, false
	}
	return t[0], true
}

// Bucket returns the index of the slab used for x:
//   - the slab covering x
//   - the first slab when x is below the first start or falls in a gap
//   - NoSlab when x is above a bounded last slab, or the table is empty
func (t SlabTable) Bucket(x float64) int {
	if len(t) == 0 {
		return NoSlab
	}
	last := len(t) - 1
	for i, s := range t {
		if x < s.Start {
			continue
		}
		if x <= s.End || (i == last && s.End == 0) {
			return i
		}
	}
	if t[last].End != 0 && x > t[last].End {
		return NoSlab
	}
	return 0
}

// Lookup returns coefficient c for key x. The boolean is false when no slab
// applies and the coefficient defaulted to 0.
func (t SlabTable) Lookup(c Coefficient, x float64) (float64, bool) {
	return t.At(c, t.Bucket(x))
}

// At returns coefficient c of the slab at a bucket index from Bucket.
func (t SlabTable) At(c Coefficient, bucket int) (float64, bool) {
	if bucket < 0 || bucket >= len(t) {
		return 0, false
	}
	return t[bucket].Coef(c), true
}
