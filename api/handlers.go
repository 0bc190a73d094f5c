/*
handlers.go - HTTP API handlers for the costing engine

PURPOSE:
  Exposes costing.Service over REST. Handles HTTP request/response, JSON
  serialization and error mapping, and delegates every calculation to the
  service.

ENDPOINTS:
  POST   /calculate                  Run a scheme, return the result table
  GET    /validate/{scheme_id}       Load a scheme definition only
  GET    /export/{scheme_id}         Download the result table (csv|xlsx)
  GET    /health                     Liveness
  GET    /metrics                    Prometheus

  Scenarios:
    GET    /api/scenarios            List demo scenarios
    POST   /api/scenarios/load       Seed the store with a demo scenario

REQUEST FLOW:
  1. Parse and validate the request
  2. Collapse concurrent runs of the same scheme (singleflight)
  3. Run the calculation under the request timeout
  4. Serialize the table

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid body, unknown export format or scenario
  - 404: Scheme not found
  - 422: Scheme definition malformed
  - 500: Everything else, including stage failures

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/export"
	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

// DefaultRequestTimeout bounds one calculation when no timeout is set.
const DefaultRequestTimeout = 60 * time.Second

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Seeder is a writable store. Scenario loading needs one.
type Seeder interface {
	Reset(ctx context.Context) error
	SaveScheme(ctx context.Context, schemeID string, raw []byte) error
	SaveSales(ctx context.Context, rows []sales.Row) error
	SaveMaterials(ctx context.Context, master sales.MaterialMaster) error
	SaveStrataGrowth(ctx context.Context, schemeID string, growth map[string]float64) error
}

// Invalidator drops cached inputs after the store changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Options are the optional collaborators of a Handler.
type Options struct {
	// Seeder enables the scenario endpoints. Nil disables them.
	Seeder Seeder
	// Cache is bumped after a scenario is loaded.
	Cache   Invalidator
	Logger  *slog.Logger
	Metrics *Metrics
	// Timeout bounds each calculation. Zero uses DefaultRequestTimeout.
	Timeout time.Duration
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	service  *costing.Service
	seeder   Seeder
	cache    Invalidator
	logger   *slog.Logger
	metrics  *Metrics
	timeout  time.Duration
	validate *validator.Validate
	group    singleflight.Group

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over svc.
func NewHandler(svc *costing.Service, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Handler{
		service:  svc,
		seeder:   opts.Seeder,
		cache:    opts.Cache,
		logger:   logger,
		metrics:  opts.Metrics,
		timeout:  timeout,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// CALCULATION ENDPOINTS
// =============================================================================

// Calculate runs a scheme and returns the result envelope.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.calculate(r.Context(), req.SchemeID)
	if err != nil {
		h.writeCalculationError(w, req.SchemeID, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculateResponse(res))
}

// Validate loads a scheme definition and reports its sub-schemes.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	schemeID := chi.URLParam(r, "scheme_id")

	sch, err := h.service.Validate(r.Context(), schemeID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toValidateResponse(sch))
	case errors.Is(err, scheme.ErrSchemeMalformed):
		writeJSON(w, http.StatusUnprocessableEntity, ValidateResponse{
			SchemeID: schemeID,
			Valid:    false,
			Error:    err.Error(),
		})
	default:
		h.writeCalculationError(w, schemeID, err)
	}
}

// Export runs a scheme and streams the table as a file.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	schemeID := chi.URLParam(r, "scheme_id")
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid export format", err)
		return
	}

	res, err := h.calculate(r.Context(), schemeID)
	if err != nil {
		h.writeCalculationError(w, schemeID, err)
		return
	}

	// Render fully before writing headers so a failure still maps to 500.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, "Results", res.Table); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render export", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s.%s"`, fileName(schemeID), format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("export write failed", slog.String("scheme_id", schemeID), slog.Any("error", err))
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// calculate collapses concurrent runs of one scheme into a single engine
// call. The shared run is detached from the first caller's cancellation and
// bounded by the handler timeout; each caller still stops waiting when its
// own context ends.
func (h *Handler) calculate(ctx context.Context, schemeID string) (*costing.Result, error) {
	ch := h.group.DoChan(schemeID, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()
		return h.service.Calculate(runCtx, schemeID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			h.metrics.countCalculation("error")
			return nil, res.Err
		}
		if res.Shared {
			h.metrics.countCalculation("shared")
		} else {
			h.metrics.countCalculation("ok")
		}
		return res.Val.(*costing.Result), nil
	}
}

func (h *Handler) writeCalculationError(w http.ResponseWriter, schemeID string, err error) {
	switch {
	case scheme.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Scheme not found", err)
	case errors.Is(err, scheme.ErrSchemeMalformed):
		writeError(w, http.StatusUnprocessableEntity, "Scheme definition malformed", err)
	default:
		h.logger.Error("calculation failed",
			slog.String("scheme_id", schemeID),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Calculation failed", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return err
	}
	return h.validate.Struct(dest)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileName(schemeID string) string {
	name := unsafeFileChars.ReplaceAllString(schemeID, "_")
	if name == "" {
		return "scheme"
	}
	return "scheme_" + name
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
