/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines request/response structures for JSON serialization.
  DTOs decouple the API contract from the engine's internal types.

DESIGN:
  - Result cells are already rendered by costing.Table.Rows (strings and
    json.Number), so CalculateResponse carries them through untouched
  - Timestamps are RFC 3339 in UTC
  - Validation reports flatten each sub-scheme's feature gates to a list
    of enabled names

SEE ALSO:
  - handlers.go: Uses these DTOs
  - costing/format.go: Header and cell rendering
*/
package api

import (
	"time"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/scheme"
)

// =============================================================================
// CALCULATION DTOs
// =============================================================================

// CalculateRequest is the body of POST /calculate.
type CalculateRequest struct {
	SchemeID string `json:"scheme_id" validate:"required,max=128"`
}

// CalculateResponse is the result envelope.
type CalculateResponse struct {
	SchemeID string             `json:"scheme_id"`
	Headers  []string           `json:"headers"`
	Data     [][]any            `json:"data"`
	Summary  CalculationSummary `json:"summary"`
}

// CalculationSummary describes the table shape and the run.
type CalculationSummary struct {
	TotalRecords         int    `json:"total_records"`
	TotalColumns         int    `json:"total_columns"`
	CalculationTimestamp string `json:"calculation_timestamp"`
	CalculationID        string `json:"calculation_id"`
}

func toCalculateResponse(res *costing.Result) CalculateResponse {
	headers := res.Table.Headers()
	return CalculateResponse{
		SchemeID: res.Scheme.ID,
		Headers:  headers,
		Data:     res.Table.Rows(),
		Summary: CalculationSummary{
			TotalRecords:         res.Table.Len(),
			TotalColumns:         len(headers),
			CalculationTimestamp: res.CalculatedAt.Format(time.RFC3339),
			CalculationID:        res.CalculationID,
		},
	}
}

// =============================================================================
// VALIDATION DTOs
// =============================================================================

// ValidateResponse reports whether a scheme definition loads.
type ValidateResponse struct {
	SchemeID        string         `json:"scheme_id"`
	Valid           bool           `json:"valid"`
	SchemeCategory  string         `json:"scheme_category,omitempty"`
	CalculationMode string         `json:"calculation_mode,omitempty"`
	SubSchemes      []SubSchemeDTO `json:"sub_schemes,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// SubSchemeDTO summarises one sub-scheme of a loaded definition.
type SubSchemeDTO struct {
	Index            int      `json:"index"`
	Name             string   `json:"name"`
	Basis            string   `json:"basis"`
	MandatoryQualify string   `json:"mandatory_qualify"`
	Slabs            int      `json:"slabs"`
	PhasingPeriods   int      `json:"phasing_periods"`
	BonusSchemes     int      `json:"bonus_schemes"`
	Features         []string `json:"features"`
}

func toValidateResponse(s *scheme.Scheme) ValidateResponse {
	resp := ValidateResponse{
		SchemeID:        s.ID,
		Valid:           true,
		SchemeCategory:  string(s.Category),
		CalculationMode: string(s.CalculationMode),
		SubSchemes:      make([]SubSchemeDTO, 0, len(s.SubSchemes)),
	}
	for i := range s.SubSchemes {
		sub := &s.SubSchemes[i]
		name := sub.Name
		if name == "" {
			name = sub.Label()
		}
		resp.SubSchemes = append(resp.SubSchemes, SubSchemeDTO{
			Index:            sub.Index,
			Name:             name,
			Basis:            string(sub.Basis),
			MandatoryQualify: sub.MandatoryQualifyText(),
			Slabs:            len(sub.Slabs),
			PhasingPeriods:   len(sub.Phasing),
			BonusSchemes:     len(sub.Bonuses),
			Features:         enabledFeatures(sub.Features),
		})
	}
	return resp
}

func enabledFeatures(f scheme.Features) []string {
	out := []string{}
	gates := []struct {
		name string
		on   bool
	}{
		{"payout_products", f.PayoutProducts},
		{"mandatory_products", f.MandatoryProducts},
		{"bonus_schemes", f.BonusSchemes},
		{"reward_slabs", f.RewardSlabs},
		{"scheme_applicable", f.SchemeApplicable},
		{"enable_strata_growth", f.EnableStrataGrowth},
		{"show_mandatory_product", f.ShowMandatoryProduct},
	}
	for _, g := range gates {
		if g.on {
			out = append(out, g.name)
		}
	}
	return out
}

// =============================================================================
// SCENARIO DTOs
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SchemeID    string `json:"scheme_id"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	Scenario string `json:"scenario" validate:"required"`
}

// LoadScenarioResponse reports a seeded scenario.
type LoadScenarioResponse struct {
	Status   string `json:"status"`
	Scenario string `json:"scenario"`
	SchemeID string `json:"scheme_id"`
	Accounts int    `json:"accounts"`
	Rows     int    `json:"rows"`
}

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
