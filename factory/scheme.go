/*
Package factory provides JSON to Go scheme conversion.

PURPOSE:
  Converts a raw scheme definition, as saved by the scheme editor, into an
  immutable scheme.Scheme. Everything downstream works on the typed model;
  no engine reads the JSON.

JSON SCHEMA (abridged):
  {
    "basicInfo": {"schemeId": "S-1", "schemeCategory": "HO", "volumeValueBased": "volume"},
    "configuration": {"enabledSections": {"payoutProducts": true, "bonusSchemes": false}},
    "mainScheme": {
      "schemePeriod": {"fromDate": "2024-04-01", "toDate": "2024-06-30"},
      "baseVolSections": [{"fromDate": "2023-04-01", "toDate": "2023-06-30", "sumAvg": "sum"}],
      "productData": {"materials": ["M1"], "payoutProducts": {"materials": ["M1"]}},
      "slabData": {"slabs": [{"slabStart": 0, "slabEnd": 2000, "growthPercent": 10}]},
      "phasingPeriods": [...],
      "bonusSchemeData": {"bonusSchemes": [...]},
      "rewardSlabData": [{"slabFrom": 10000, "slabTo": 15000, "schemeReward": "Gift Voucher A"}]
    },
    "additionalSchemes": [ { "productData": {...}, "slabData": {...} } ]
  }

KEY FEATURES:
  - Structural validation with go-playground/validator
  - Numbers accepted as JSON numbers or numeric strings ("" is 0)
  - Feature gates default to disabled; an additional scheme without its own
    enabledSections inherits the scheme-wide ones
  - Phasing periods ordered by id

ERRORS:
  Every rejection is a *scheme.MalformedError (errors.Is ErrSchemeMalformed).

USAGE:
  f := factory.NewSchemeFactory()
  s, err := f.Parse(raw)

SEE ALSO:
  - scheme/scheme.go: Model definition
  - costing/service.go: Calls Parse per request
*/
package factory

import (
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/costing-engine/scheme"
)

// SchemeFactory converts scheme JSON into scheme.Scheme.
type SchemeFactory struct {
	validate *validator.Validate
}

// NewSchemeFactory creates a new scheme factory.
func NewSchemeFactory() *SchemeFactory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &SchemeFactory{validate: v}
}

// Parse decodes and converts one scheme definition.
func (f *SchemeFactory) Parse(data []byte) (*scheme.Scheme, error) {
	var doc SchemeJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, scheme.Malformed("document", "invalid JSON: %v", err)
	}
	return f.FromJSON(doc)
}

// FromJSON converts an already decoded definition.
func (f *SchemeFactory) FromJSON(doc SchemeJSON) (*scheme.Scheme, error) {
	if err := f.validate.Struct(doc); err != nil {
		return nil, validationError(err)
	}

	mode, ok := scheme.ParseBasis(firstNonEmpty(doc.BasicInfo.VolumeValueBased, doc.MainScheme.VolumeValueBased))
	if !ok {
		return nil, scheme.Malformed("basicInfo.volumeValueBased", "must be volume or value")
	}

	period, err := parsePeriod("mainScheme.schemePeriod", doc.MainScheme.SchemePeriod.FromDate, doc.MainScheme.SchemePeriod.ToDate)
	if err != nil {
		return nil, err
	}
	if !period.Valid() {
		return nil, scheme.Malformed("mainScheme.schemePeriod", "dates are required")
	}

	bases, err := parseBasePeriods(doc.MainScheme.BaseVolSections, period)
	if err != nil {
		return nil, err
	}

	defaults := features(doc.Configuration.EnabledSections)

	mainFeatures := defaults
	if doc.MainScheme.EnabledSections != nil {
		mainFeatures = features(doc.MainScheme.EnabledSections)
	}
	mainBasis := mode
	if b, ok := scheme.ParseBasis(doc.MainScheme.VolumeValueBased); ok {
		mainBasis = b
	}

	main := scheme.SubScheme{
		Index:            0,
		Number:           string(doc.BasicInfo.SchemeID),
		Name:             doc.BasicInfo.SchemeTitle,
		Basis:            mainBasis,
		MandatoryQualify: isYes(doc.MainScheme.MandatoryQualify),
		Features:         mainFeatures,
		Products:         productSets(doc.MainScheme.ProductData),
		Slabs:            slabTable(doc.MainScheme.SlabData),
		Rewards:          rewardSlabs(doc.MainScheme.RewardSlabData),
	}
	if main.Phasing, err = phasingPeriods("mainScheme.phasingPeriods", doc.MainScheme.PhasingPeriods); err != nil {
		return nil, err
	}
	if main.Bonuses, err = bonusSchemes(doc.MainScheme.BonusSchemeData.BonusSchemes); err != nil {
		return nil, err
	}

	out := &scheme.Scheme{
		ID:              string(doc.BasicInfo.SchemeID),
		Title:           doc.BasicInfo.SchemeTitle,
		Category:        scheme.Category(strings.TrimSpace(doc.BasicInfo.SchemeCategory)),
		Type:            doc.BasicInfo.SchemeType,
		CalculationMode: mode,
		Period:          period,
		BasePeriods:     bases,
		Filters:         applicability(doc.MainScheme.SchemeApplicable),
		FiltersEnabled:  mainFeatures.SchemeApplicable,
		SubSchemes:      []scheme.SubScheme{main},
	}

	for i, add := range doc.AdditionalSchemes {
		sub, err := additionalScheme(i+1, add, mode, defaults)
		if err != nil {
			return nil, err
		}
		out.SubSchemes = append(out.SubSchemes, sub)
	}
	return out, nil
}

func additionalScheme(index int, add AdditionalSchemeJSON, mode scheme.Basis, defaults scheme.Features) (scheme.SubScheme, error) {
	field := "additionalSchemes[" + strconv.Itoa(index-1) + "]"
	basis := mode
	if strings.TrimSpace(add.VolumeValueBased) != "" {
		b, ok := scheme.ParseBasis(add.VolumeValueBased)
		if !ok {
			return scheme.SubScheme{}, scheme.Malformed(field+".volumeValueBased", "must be volume or value")
		}
		basis = b
	}
	feats := defaults
	if add.EnabledSections != nil {
		feats = features(add.EnabledSections)
	}
	sub := scheme.SubScheme{
		Index:            index,
		Number:           string(add.SchemeNumber),
		Name:             add.SchemeTitle,
		Basis:            basis,
		MandatoryQualify: isYes(add.MandatoryQualify),
		Features:         feats,
		Products:         productSets(add.ProductData),
		Slabs:            slabTable(add.SlabData),
		Rewards:          rewardSlabs(add.RewardSlabData),
	}
	var err error
	if sub.Phasing, err = phasingPeriods(field+".phasingPeriods", add.PhasingPeriods); err != nil {
		return scheme.SubScheme{}, err
	}
	return sub, nil
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func parseBasePeriods(in []BasePeriodJSON, schemePeriod scheme.Period) ([]scheme.BasePeriod, error) {
	out := make([]scheme.BasePeriod, 0, len(in))
	for i, b := range in {
		field := "mainScheme.baseVolSections[" + strconv.Itoa(i) + "]"
		p, err := parsePeriod(field, b.FromDate, b.ToDate)
		if err != nil {
			return nil, err
		}
		if !p.Valid() {
			return nil, scheme.Malformed(field, "dates are required")
		}
		if p.Overlaps(schemePeriod) {
			return nil, scheme.Malformed(field, "base period %s overlaps scheme period %s", p, schemePeriod)
		}
		agg := scheme.AggregateSum
		switch strings.ToLower(strings.TrimSpace(b.SumAvg)) {
		case "average", "avg", "mean":
			agg = scheme.AggregateAverage
		}
		out = append(out, scheme.BasePeriod{Period: p, Aggregation: agg})
	}
	return out, nil
}

// parsePeriod returns a zero period when both dates are blank, and an error
// when only one is given, one does not parse, or from is after to.
func parsePeriod(field, from, to string) (scheme.Period, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" && to == "" {
		return scheme.Period{}, nil
	}
	if from == "" || to == "" {
		return scheme.Period{}, scheme.Malformed(field, "both fromDate and toDate are required")
	}
	f, err := scheme.ParseDate(from)
	if err != nil {
		return scheme.Period{}, scheme.Malformed(field+".fromDate", "%v", err)
	}
	t, err := scheme.ParseDate(to)
	if err != nil {
		return scheme.Period{}, scheme.Malformed(field+".toDate", "%v", err)
	}
	if f.After(t) {
		return scheme.Period{}, scheme.Malformed(field, "fromDate %s is after toDate %s", f, t)
	}
	return scheme.Period{From: f, To: t}, nil
}

func features(in *EnabledSectionsJSON) scheme.Features {
	if in == nil {
		return scheme.Features{}
	}
	return scheme.Features{
		PayoutProducts:       bool(in.PayoutProducts),
		MandatoryProducts:    bool(in.MandatoryProducts),
		BonusSchemes:         bool(in.BonusSchemes),
		RewardSlabs:          bool(in.RewardSlabs),
		SchemeApplicable:     bool(in.SchemeApplicable),
		EnableStrataGrowth:   bool(in.EnableStrataGrowth),
		ShowMandatoryProduct: bool(in.ShowMandatoryProduct),
	}
}

func productSet(in ProductListJSON) scheme.ProductSet {
	return scheme.ProductSet{
		Materials:     scheme.NewSet(stringsOf(in.Materials)...),
		Categories:    scheme.NewSet(stringsOf(in.Categories)...),
		Grps:          scheme.NewSet(stringsOf(in.Grps)...),
		WandaGroups:   scheme.NewSet(stringsOf(in.WandaGroups)...),
		ThinnerGroups: scheme.NewSet(stringsOf(in.ThinnerGroups)...),
	}
}

func productSets(in ProductDataJSON) scheme.ProductSets {
	return scheme.ProductSets{
		Products:  productSet(in.ProductListJSON),
		Mandatory: productSet(in.MandatoryProducts),
		Payout:    productSet(in.PayoutProducts),
	}
}

func slabTable(in SlabDataJSON) scheme.SlabTable {
	out := make(scheme.SlabTable, 0, len(in.Slabs))
	for _, s := range in.Slabs {
		slab := scheme.Slab{Start: float64(s.SlabStart), End: float64(s.SlabEnd)}
		slab.Values[scheme.CoefGrowthPct] = float64(s.GrowthPercent)
		slab.Values[scheme.CoefQualificationPct] = float64(s.QualificationRate)
		slab.Values[scheme.CoefRebatePerLitre] = float64(s.RebatePerLitre)
		slab.Values[scheme.CoefRebatePct] = float64(s.RebatePercent)
		slab.Values[scheme.CoefAdditionalRebateOnGrowth] = float64(s.AdditionalRebateOnGrowth)
		slab.Values[scheme.CoefFixedRebate] = float64(s.FixedRebate)
		slab.Values[scheme.CoefMandatoryTarget] = float64(s.MandatoryProductTarget)
		slab.Values[scheme.CoefMandatoryGrowthPct] = float64(s.MandatoryProductGrowthPercent)
		slab.Values[scheme.CoefMandatoryTargetToActualPct] = float64(s.MandatoryProductTargetToActual)
		slab.Values[scheme.CoefMandatoryRebate] = float64(s.MandatoryProductRebate)
		slab.Values[scheme.CoefMandatoryRebatePct] = float64(s.MandatoryProductRebatePercent)
		slab.Values[scheme.CoefMandatoryMinShadesPPI] = float64(s.MandatoryMinShadesPPI)
		out = append(out, slab)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func phasingPeriods(field string, in []PhasingJSON) ([]scheme.PhasingPeriod, error) {
	out := make([]scheme.PhasingPeriod, 0, len(in))
	for i, p := range in {
		f := field + "[" + strconv.Itoa(i) + "]"
		phasing, err := parsePeriod(f+".phasing", p.PhasingFromDate, p.PhasingToDate)
		if err != nil {
			return nil, err
		}
		payout, err := parsePeriod(f+".payout", p.PayoutFromDate, p.PayoutToDate)
		if err != nil {
			return nil, err
		}
		bonusPhasing, err := parsePeriod(f+".bonusPhasing", p.BonusPhasingFromDate, p.BonusPhasingToDate)
		if err != nil {
			return nil, err
		}
		bonusPayout, err := parsePeriod(f+".bonusPayout", p.BonusPayoutFromDate, p.BonusPayoutToDate)
		if err != nil {
			return nil, err
		}
		id := int(p.ID)
		if id <= 0 {
			id = i + 1
		}
		out = append(out, scheme.PhasingPeriod{
			ID:           id,
			Phasing:      phasing,
			Payout:       payout,
			RebateValue:  float64(p.RebateValue),
			RebatePct:    float64(p.RebatePercentage),
			TargetPct:    float64(p.PhasingTargetPercent),
			IsBonus:      bool(p.IsBonus),
			BonusPhasing: bonusPhasing,
			BonusPayout:  bonusPayout,
			BonusRebate:  float64(p.BonusRebateValue),
			BonusPct:     float64(p.BonusRebatePercentage),
			BonusTarget:  float64(p.BonusPhasingTargetPercent),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func bonusSchemes(in []BonusSchemeJSON) ([]scheme.BonusScheme, error) {
	out := make([]scheme.BonusScheme, 0, len(in))
	for i, b := range in {
		f := "mainScheme.bonusSchemeData.bonusSchemes[" + strconv.Itoa(i) + "]"
		period, err := parsePeriod(f+".bonusPeriod", b.BonusPeriodFromDate, b.BonusPeriodToDate)
		if err != nil {
			return nil, err
		}
		payout, err := parsePeriod(f+".bonusPayout", b.BonusPayoutFromDate, b.BonusPayoutToDate)
		if err != nil {
			return nil, err
		}
		id := int(b.ID)
		if id <= 0 {
			id = i + 1
		}
		out = append(out, scheme.BonusScheme{
			ID:                     id,
			Name:                   b.Name,
			MainTargetPct:          float64(b.MainSchemeTargetPercent),
			MinimumTarget:          float64(b.MinimumTarget),
			MandatoryTargetPct:     float64(b.MandatoryProductTargetPercent),
			MinimumMandatoryTarget: float64(b.MinimumMandatoryProductTarget),
			RewardOnTotalPct:       float64(b.RewardOnTotalPercent),
			RewardOnMandatoryPct:   float64(b.RewardOnMandatoryProductPercent),
			Period:                 period,
			PayoutPeriod:           payout,
		})
	}
	return out, nil
}

func rewardSlabs(in []RewardSlabJSON) []scheme.RewardSlab {
	out := make([]scheme.RewardSlab, 0, len(in))
	for _, r := range in {
		out = append(out, scheme.RewardSlab{
			From:   float64(r.SlabFrom),
			To:     float64(r.SlabTo),
			Reward: strings.TrimSpace(r.SchemeReward),
		})
	}
	return out
}

func applicability(in ApplicableJSON) scheme.Applicability {
	return scheme.Applicability{
		States:         scheme.NewSet(in.SelectedStates...),
		Regions:        scheme.NewSet(in.SelectedRegions...),
		Areas:          scheme.NewSet(in.SelectedAreas...),
		Divisions:      scheme.NewSet(in.SelectedDivisions...),
		DealerTypes:    scheme.NewSet(in.SelectedDealerTypes...),
		Distributors:   scheme.NewSet(in.SelectedDistributors...),
		CreditAccounts: scheme.NewSet(in.SelectedCreditAccounts...),
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return scheme.Malformed(field, "failed %q validation", fe.Tag())
	}
	return scheme.Malformed("document", "%v", err)
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
