/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a scheme
	definition, a material master and a synthetic sales history, so the
	calculation endpoints can be exercised end to end.

AVAILABLE SCENARIOS:

	volume-growth:  Volume scheme, two slabs, mandatory products, phasing
	value-ho:       HO value scheme with a bonus scheme and reward slabs
	multi-scheme:   Volume main scheme plus a value additional scheme

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Save the material master
 3. Save the scheme definition
 4. Generate monthly sales for every demo account
 5. Bump the scheme cache, when one is configured

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario": "volume-growth"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Calculate, Validate handlers
  - factory/scheme.go: Scheme definition document
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	definition string
	accounts   []demoAccount
	materials  []string
	strata     map[string]float64
}

// demoAccount drives the synthetic sales of one credit account. Growth is
// the scheme-period uplift over the base period, as a fraction.
type demoAccount struct {
	id      string
	name    string
	state   string
	region  string
	monthly float64
	growth  float64
}

var demoMaterials = sales.MaterialMaster{
	"EM-100": {Category: "EMULSION", Grp: "G-INT", WandaGroup: "W-1"},
	"EM-110": {Category: "EMULSION", Grp: "G-EXT", WandaGroup: "W-1"},
	"PR-200": {Category: "PRIMER", Grp: "G-PRM", WandaGroup: "W-2"},
	"EN-300": {Category: "ENAMEL", Grp: "G-ENM", ThinnerGroup: "T-1"},
}

// materialPrice is the per-litre value used for generated rows.
var materialPrice = map[string]float64{
	"EM-100": 250,
	"EM-110": 310,
	"PR-200": 180,
	"EN-300": 420,
}

var demoAccounts = []demoAccount{
	{id: "CA-1001", name: "Shree Paints", state: "Maharashtra", region: "West", monthly: 400, growth: 0.25},
	{id: "CA-1002", name: "Colour House", state: "Maharashtra", region: "West", monthly: 1500, growth: 0.05},
	{id: "CA-1003", name: "Deccan Traders", state: "Karnataka", region: "South", monthly: 900, growth: 0.15},
	{id: "CA-1004", name: "Coastal Hardware", state: "Kerala", region: "South", monthly: 250, growth: -0.10},
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "volume-growth",
			Name:        "Volume Growth",
			Description: "Volume scheme with two slabs, mandatory primer and one phasing period",
			SchemeID:    "DEMO-VOL",
		},
		definition: volumeGrowthScheme,
		accounts:   demoAccounts,
		materials:  []string{"EM-100", "EM-110", "PR-200"},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "value-ho",
			Name:        "HO Value Scheme",
			Description: "HO value scheme with a bonus scheme, reward slabs and strata growth",
			SchemeID:    "DEMO-HO",
		},
		definition: valueHOScheme,
		accounts:   demoAccounts,
		materials:  []string{"EM-100", "EN-300"},
		strata:     map[string]float64{"CA-1002": 12},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "multi-scheme",
			Name:        "Main And Additional Scheme",
			Description: "Volume main scheme on emulsions plus a value additional scheme on enamels",
			SchemeID:    "DEMO-MULTI",
		},
		definition: multiScheme,
		accounts:   demoAccounts,
		materials:  []string{"EM-100", "EM-110", "EN-300"},
	},
}

const volumeGrowthScheme = `{
  "basicInfo": {"schemeId": "DEMO-VOL", "schemeTitle": "Monsoon Volume Push", "schemeCategory": "Regular", "volumeValueBased": "volume"},
  "configuration": {"enabledSections": {"mandatoryProducts": true, "bonusSchemes": true}},
  "mainScheme": {
    "schemePeriod": {"fromDate": "2024-07-01", "toDate": "2024-09-30"},
    "baseVolSections": [{"fromDate": "2023-07-01", "toDate": "2023-09-30", "sumAvg": "sum"}],
    "mandatoryQualify": "no",
    "productData": {
      "categories": ["EMULSION", "PRIMER"],
      "mandatoryProducts": {"categories": ["PRIMER"]}
    },
    "slabData": {"slabs": [
      {"slabStart": 0, "slabEnd": 3000, "growthPercent": 12, "qualificationRate": 70, "rebatePerLitre": 2,
       "additionalRebateOnGrowth": 0.5, "mandatoryProductGrowthPercent": 5, "mandatoryProductRebate": 1},
      {"slabStart": 3001, "slabEnd": "", "growthPercent": 8, "qualificationRate": 75, "rebatePerLitre": 3,
       "additionalRebateOnGrowth": 0.75, "mandatoryProductGrowthPercent": 5, "mandatoryProductRebate": 1.5}
    ]},
    "phasingPeriods": [
      {"id": 1, "phasingFromDate": "2024-07-01", "phasingToDate": "2024-07-31",
       "payoutFromDate": "2024-07-01", "payoutToDate": "2024-07-31", "rebateValue": 1, "phasingTargetPercent": 30}
    ]
  }
}`

const valueHOScheme = `{
  "basicInfo": {"schemeId": "DEMO-HO", "schemeTitle": "Festive Value Drive", "schemeCategory": "HO", "volumeValueBased": "value"},
  "configuration": {"enabledSections": {"bonusSchemes": true, "rewardSlabs": true, "enableStrataGrowth": true}},
  "mainScheme": {
    "schemePeriod": {"fromDate": "2024-07-01", "toDate": "2024-09-30"},
    "baseVolSections": [
      {"fromDate": "2023-07-01", "toDate": "2023-09-30", "sumAvg": "sum"},
      {"fromDate": "2024-01-01", "toDate": "2024-03-31", "sumAvg": "average"}
    ],
    "productData": {"categories": ["EMULSION", "ENAMEL"]},
    "slabData": {"slabs": [
      {"slabStart": 0, "slabEnd": "", "growthPercent": 10, "qualificationRate": 80, "rebatePercent": 2}
    ]},
    "bonusSchemeData": {"bonusSchemes": [
      {"id": 1, "name": "Early Bird", "mainSchemeTargetPercent": 40, "minimumTarget": 50000, "rewardOnTotalPercent": 1,
       "bonusPeriodFromDate": "2024-07-01", "bonusPeriodToDate": "2024-07-31",
       "bonusPayoutFromDate": "2024-07-01", "bonusPayoutToDate": "2024-08-31"}
    ]},
    "rewardSlabData": [
      {"slabFrom": 1, "slabTo": 5000, "schemeReward": "Dinner Voucher"},
      {"slabFrom": 5001, "slabTo": 1000000, "schemeReward": "Goa Trip"}
    ]
  }
}`

const multiScheme = `{
  "basicInfo": {"schemeId": "DEMO-MULTI", "schemeTitle": "Combined Drive", "schemeCategory": "Regular", "volumeValueBased": "volume"},
  "configuration": {"enabledSections": {"payoutProducts": true}},
  "mainScheme": {
    "schemePeriod": {"fromDate": "2024-07-01", "toDate": "2024-09-30"},
    "baseVolSections": [{"fromDate": "2023-07-01", "toDate": "2023-09-30", "sumAvg": "sum"}],
    "productData": {"categories": ["EMULSION"], "payoutProducts": {"materials": ["EM-110"]}},
    "slabData": {"slabs": [{"slabStart": 0, "slabEnd": "", "growthPercent": 10, "rebatePerLitre": 4}]}
  },
  "additionalSchemes": [
    {"schemeNumber": "A1", "schemeTitle": "Enamel Value", "volumeValueBased": "value",
     "enabledSections": {},
     "productData": {"categories": ["ENAMEL"]},
     "slabData": {"slabs": [{"slabStart": 0, "slabEnd": "", "growthPercent": 5, "rebatePercent": 3}]}}
  ]
}`

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s.ScenarioDTO)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and seeds a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.seeder == nil {
		writeError(w, http.StatusNotImplemented, "Store is read-only", nil)
		return
	}
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	s, ok := findScenario(req.Scenario)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	resp, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.currentScenario = ""
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = s.ID
	h.logger.Info("scenario loaded",
		slog.String("scenario", s.ID),
		slog.Int("rows", resp.Rows))
	writeJSON(w, http.StatusOK, resp)
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, s scenario) (LoadScenarioResponse, error) {
	if err := h.seeder.Reset(ctx); err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("reset store: %w", err)
	}
	if err := h.seeder.SaveMaterials(ctx, demoMaterials); err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("save materials: %w", err)
	}
	if err := h.seeder.SaveScheme(ctx, s.SchemeID, []byte(s.definition)); err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("save scheme: %w", err)
	}
	rows := generateSales(s.accounts, s.materials)
	if err := h.seeder.SaveSales(ctx, rows); err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("save sales: %w", err)
	}
	if len(s.strata) > 0 {
		if err := h.seeder.SaveStrataGrowth(ctx, s.SchemeID, s.strata); err != nil {
			return LoadScenarioResponse{}, fmt.Errorf("save strata growth: %w", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.Bump(ctx); err != nil {
			return LoadScenarioResponse{}, fmt.Errorf("bump cache: %w", err)
		}
	}
	return LoadScenarioResponse{
		Status:   "loaded",
		Scenario: s.ID,
		SchemeID: s.SchemeID,
		Accounts: len(s.accounts),
		Rows:     len(rows),
	}, nil
}

// Sales history spans the base quarter, the average window of the HO demo
// and the scheme quarter.
var (
	historyFrom  = scheme.NewDate(2023, time.July, 1)
	historyTo    = scheme.NewDate(2024, time.September, 30)
	schemeStarts = scheme.NewDate(2024, time.July, 1)
)

// generateSales emits one row per account, material and month on the 10th
// and a smaller top-up on the 25th. Materials split the monthly volume
// evenly. Months inside the scheme quarter carry the account's growth.
func generateSales(accounts []demoAccount, materials []string) []sales.Row {
	var rows []sales.Row
	for month := historyFrom; !month.After(historyTo); month = nextMonth(month) {
		for _, acct := range accounts {
			monthly := acct.monthly
			if !month.Before(schemeStarts) {
				monthly *= 1 + acct.growth
			}
			share := monthly / float64(len(materials))
			for _, material := range materials {
				for _, part := range []struct {
					day    int
					weight float64
				}{{10, 0.8}, {25, 0.2}} {
					volume := round2(share * part.weight)
					rows = append(rows, sales.Row{
						CreditAccount: acct.id,
						CustomerName:  acct.name,
						Material:      material,
						SaleDate:      scheme.NewDate(month.Year(), month.Month(), part.day),
						Volume:        volume,
						Value:         round2(volume * materialPrice[material]),
						State:         acct.state,
						Region:        acct.region,
						Division:      "Decorative",
						DealerType:    "Retail",
					})
				}
			}
		}
	}
	return rows
}

func nextMonth(d scheme.Date) scheme.Date {
	return scheme.NewDate(d.Year(), d.Month()+1, 1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
