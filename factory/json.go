package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SchemeJSON is the JSON representation of a scheme definition.
type SchemeJSON struct {
	BasicInfo         BasicInfoJSON          `json:"basicInfo"`
	Configuration     ConfigurationJSON      `json:"configuration"`
	MainScheme        MainSchemeJSON         `json:"mainScheme"`
	AdditionalSchemes []AdditionalSchemeJSON `json:"additionalSchemes"`
}

// BasicInfoJSON identifies the scheme.
type BasicInfoJSON struct {
	SchemeID         flexString `json:"schemeId" validate:"required"`
	SchemeTitle      string     `json:"schemeTitle"`
	SchemeCategory   string     `json:"schemeCategory"`
	VolumeValueBased string     `json:"volumeValueBased"`
	SchemeType       string     `json:"schemeType"`
}

// ConfigurationJSON carries the scheme-wide feature gates.
type ConfigurationJSON struct {
	EnabledSections *EnabledSectionsJSON `json:"enabledSections"`
}

// EnabledSectionsJSON lists the feature gates. Missing keys are disabled.
type EnabledSectionsJSON struct {
	PayoutProducts       flexBool `json:"payoutProducts"`
	MandatoryProducts    flexBool `json:"mandatoryProducts"`
	BonusSchemes         flexBool `json:"bonusSchemes"`
	RewardSlabs          flexBool `json:"rewardSlabs"`
	SchemeApplicable     flexBool `json:"schemeApplicable"`
	EnableStrataGrowth   flexBool `json:"enableStrataGrowth"`
	ShowMandatoryProduct flexBool `json:"showMandatoryProduct"`
}

// PeriodJSON is a window with string dates.
type PeriodJSON struct {
	FromDate string `json:"fromDate" validate:"required"`
	ToDate   string `json:"toDate" validate:"required"`
}

// BasePeriodJSON is one base volume section.
type BasePeriodJSON struct {
	FromDate string `json:"fromDate" validate:"required"`
	ToDate   string `json:"toDate" validate:"required"`
	SumAvg   string `json:"sumAvg"`
}

// ApplicableJSON lists the applicability filters.
type ApplicableJSON struct {
	SelectedStates         []string `json:"selectedStates"`
	SelectedRegions        []string `json:"selectedRegions"`
	SelectedAreas          []string `json:"selectedAreas"`
	SelectedDivisions      []string `json:"selectedDivisions"`
	SelectedDealerTypes    []string `json:"selectedDealerTypes"`
	SelectedDistributors   []string `json:"selectedDistributors"`
	SelectedCreditAccounts []string `json:"selectedCreditAccounts"`
}

// ProductListJSON is a product set along its five dimensions.
type ProductListJSON struct {
	Materials     []flexString `json:"materials"`
	Categories    []flexString `json:"categories"`
	Grps          []flexString `json:"grps"`
	WandaGroups   []flexString `json:"wandaGroups"`
	ThinnerGroups []flexString `json:"thinnerGroups"`
}

// ProductDataJSON holds the three product sets of a sub-scheme.
type ProductDataJSON struct {
	ProductListJSON
	MandatoryProducts ProductListJSON `json:"mandatoryProducts"`
	PayoutProducts    ProductListJSON `json:"payoutProducts"`
}

// SlabJSON is one slab row.
type SlabJSON struct {
	SlabStart                      flexFloat `json:"slabStart"`
	SlabEnd                        flexFloat `json:"slabEnd"`
	GrowthPercent                  flexFloat `json:"growthPercent"`
	QualificationRate              flexFloat `json:"qualificationRate"`
	RebatePerLitre                 flexFloat `json:"rebatePerLitre"`
	RebatePercent                  flexFloat `json:"rebatePercent"`
	AdditionalRebateOnGrowth       flexFloat `json:"additionalRebateOnGrowth"`
	FixedRebate                    flexFloat `json:"fixedRebate"`
	MandatoryProductTarget         flexFloat `json:"mandatoryProductTarget"`
	MandatoryProductGrowthPercent  flexFloat `json:"mandatoryProductGrowthPercent"`
	MandatoryProductTargetToActual flexFloat `json:"mandatoryProductTargetToActual"`
	MandatoryProductRebate         flexFloat `json:"mandatoryProductRebate"`
	MandatoryProductRebatePercent  flexFloat `json:"mandatoryProductRebatePercent"`
	MandatoryMinShadesPPI          flexFloat `json:"mandatoryMinShadesPPI"`
}

// SlabDataJSON wraps the slab rows.
type SlabDataJSON struct {
	Slabs []SlabJSON `json:"slabs"`
}

// PhasingJSON is one phasing period.
type PhasingJSON struct {
	ID                        flexFloat `json:"id"`
	PhasingFromDate           string    `json:"phasingFromDate"`
	PhasingToDate             string    `json:"phasingToDate"`
	PayoutFromDate            string    `json:"payoutFromDate"`
	PayoutToDate              string    `json:"payoutToDate"`
	RebateValue               flexFloat `json:"rebateValue"`
	RebatePercentage          flexFloat `json:"rebatePercentage"`
	PhasingTargetPercent      flexFloat `json:"phasingTargetPercent"`
	IsBonus                   flexBool  `json:"isBonus"`
	BonusPhasingFromDate      string    `json:"bonusPhasingFromDate"`
	BonusPhasingToDate        string    `json:"bonusPhasingToDate"`
	BonusPayoutFromDate       string    `json:"bonusPayoutFromDate"`
	BonusPayoutToDate         string    `json:"bonusPayoutToDate"`
	BonusRebateValue          flexFloat `json:"bonusRebateValue"`
	BonusRebatePercentage     flexFloat `json:"bonusRebatePercentage"`
	BonusPhasingTargetPercent flexFloat `json:"bonusPhasingTargetPercent"`
}

// BonusSchemeJSON is one bonus sub-scheme of the main scheme.
type BonusSchemeJSON struct {
	ID                              flexFloat `json:"id"`
	Name                            string    `json:"name"`
	MainSchemeTargetPercent         flexFloat `json:"mainSchemeTargetPercent"`
	MinimumTarget                   flexFloat `json:"minimumTarget"`
	MandatoryProductTargetPercent   flexFloat `json:"mandatoryProductTargetPercent"`
	MinimumMandatoryProductTarget   flexFloat `json:"minimumMandatoryProductTarget"`
	RewardOnTotalPercent            flexFloat `json:"rewardOnTotalPercent"`
	RewardOnMandatoryProductPercent flexFloat `json:"rewardOnMandatoryProductPercent"`
	BonusPeriodFromDate             string    `json:"bonusPeriodFromDate"`
	BonusPeriodToDate               string    `json:"bonusPeriodToDate"`
	BonusPayoutFromDate             string    `json:"bonusPayoutFromDate"`
	BonusPayoutToDate               string    `json:"bonusPayoutToDate"`
}

// BonusSchemeDataJSON wraps the bonus sub-schemes.
type BonusSchemeDataJSON struct {
	BonusSchemes []BonusSchemeJSON `json:"bonusSchemes"`
}

// RewardSlabJSON is one HO reward band.
type RewardSlabJSON struct {
	SlabFrom     flexFloat `json:"slabFrom"`
	SlabTo       flexFloat `json:"slabTo"`
	SchemeReward string    `json:"schemeReward"`
}

// MainSchemeJSON is the main scheme section.
type MainSchemeJSON struct {
	SchemePeriod     *PeriodJSON          `json:"schemePeriod" validate:"required"`
	BaseVolSections  []BasePeriodJSON     `json:"baseVolSections" validate:"required,min=1,max=2,dive"`
	SchemeApplicable ApplicableJSON       `json:"schemeApplicable"`
	VolumeValueBased string               `json:"volumeValueBased"`
	MandatoryQualify string               `json:"mandatoryQualify"`
	ProductData      ProductDataJSON      `json:"productData"`
	SlabData         SlabDataJSON         `json:"slabData"`
	PhasingPeriods   []PhasingJSON        `json:"phasingPeriods"`
	BonusSchemeData  BonusSchemeDataJSON  `json:"bonusSchemeData"`
	RewardSlabData   []RewardSlabJSON     `json:"rewardSlabData"`
	EnabledSections  *EnabledSectionsJSON `json:"enabledSections"`
}

// AdditionalSchemeJSON is one entry of additionalSchemes.
type AdditionalSchemeJSON struct {
	SchemeNumber     flexString           `json:"schemeNumber"`
	SchemeTitle      string               `json:"schemeTitle"`
	VolumeValueBased string               `json:"volumeValueBased"`
	MandatoryQualify string               `json:"mandatoryQualify"`
	EnabledSections  *EnabledSectionsJSON `json:"enabledSections"`
	ProductData      ProductDataJSON      `json:"productData"`
	SlabData         SlabDataJSON         `json:"slabData"`
	PhasingPeriods   []PhasingJSON        `json:"phasingPeriods"`
	RewardSlabData   []RewardSlabJSON     `json:"rewardSlabData"`
}

// =============================================================================
// TOLERANT SCALARS - The editor emits numbers, numeric strings and ""
// =============================================================================

// flexFloat decodes a JSON number, a numeric string, "" or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexBool decodes true/false, "yes"/"no", "true"/"false", 1/0 or null.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "true", "yes", "y", "1", "on":
		*f = true
	case "false", "no", "n", "0", "off", "", "null":
		*f = false
	default:
		return fmt.Errorf("not a boolean: %s", b)
	}
	return nil
}

// flexString decodes a string or a number into its decimal text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func stringsOf(in []flexString) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
