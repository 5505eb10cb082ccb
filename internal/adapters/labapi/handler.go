// Package labapi exposes the lab service over HTTP.
package labapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"labcore/internal/catalog"
	"labcore/internal/core"
	"labcore/internal/indicators"
	"labcore/internal/labdoc"
	"labcore/pkg/domain"
)

// Handler routes /api/v1 requests to a core.Service.
type Handler struct {
	svc     *core.Service
	archive *labdoc.Archive
	metrics http.Handler
	logger  *slog.Logger
	router  chi.Router
}

// Option customises a Handler.
type Option func(*Handler)

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(handler *Handler) { handler.metrics = h }
}

// WithLogger logs one line per request.
func WithLogger(l *slog.Logger) Option {
	return func(handler *Handler) { handler.logger = l }
}

// WithArchive enables the /api/v1/archive routes.
func WithArchive(a *labdoc.Archive) Option {
	return func(handler *Handler) { handler.archive = a }
}

// NewHandler builds the router.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.logger != nil {
		r.Use(requestLogger(h.logger))
	}
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/reagents", h.listReagents)
		r.Post("/reagents", h.registerReagent)
		r.Get("/reagents/{name}", h.getReagent)
		r.Post("/reagents/{name}/consume", h.consumeReagent)
		r.Post("/reagents/{name}/replenish", h.replenishReagent)
		r.Post("/reagents/{name}/orders", h.placeOrder)
		r.Post("/orders/{id}/receive", h.receiveOrder)

		r.Get("/inventory/below-threshold", h.belowThreshold)
		r.Get("/inventory/expired", h.expired)
		r.Get("/inventory/alerts", h.alerts)
		r.Get("/inventory/report", h.inventoryReport)
		r.Get("/inventory/usage", h.usage)

		r.Get("/recipes", h.listRecipes)
		r.Post("/recipes", h.createRecipe)
		r.Get("/recipes/{name}", h.getRecipe)
		r.Get("/recipes/{name}/cost", h.recipeCost)
		r.Get("/recipes/{name}/feasibility", h.recipeFeasibility)

		r.Post("/experiments", h.executeExperiment)
		r.Get("/experiments", h.listExperiments)
		r.Get("/experiments/{id}", h.getExperiment)

		r.Get("/indicators", h.indicators)

		r.Get("/snapshot", h.exportSnapshot)
		r.Put("/snapshot", h.importSnapshot)
		if h.archive != nil {
			r.Get("/archive", h.listArchive)
			r.Post("/archive", h.saveArchive)
		}
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) listReagents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"reagents": h.svc.ListReagents()})
}

func (h *Handler) registerReagent(w http.ResponseWriter, r *http.Request) {
	var spec catalog.ReagentSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	reagent, err := spec.Reagent(h.svc.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	created, res, err := h.svc.RegisterReagent(r.Context(), reagent)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reagent": created, "warnings": warnings(res)})
}

func (h *Handler) getReagent(w http.ResponseWriter, r *http.Request) {
	reagent, err := h.svc.GetReagent(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reagent": reagent})
}

type quantityRequest struct {
	Quantity json.Number `json:"quantity"`
	Reason   string      `json:"reason"`
	Supplier string      `json:"supplier"`
}

func (q quantityRequest) quantity() (decimal.Decimal, error) {
	return domain.ValidatePositiveNumber("quantity", q.Quantity.String())
}

func (h *Handler) consumeReagent(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	qty, err := req.quantity()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reagent, res, err := h.svc.ConsumeReagent(r.Context(), chi.URLParam(r, "name"), qty, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reagent": reagent, "warnings": warnings(res)})
}

func (h *Handler) replenishReagent(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	qty, err := req.quantity()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reagent, _, err := h.svc.ReplenishReagent(r.Context(), chi.URLParam(r, "name"), qty, domain.PurchaseInfo{Supplier: req.Supplier, Reason: req.Reason})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reagent": reagent})
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	qty, err := req.quantity()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	order, _, err := h.svc.PlaceOrder(r.Context(), chi.URLParam(r, "name"), qty, req.Supplier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *Handler) receiveOrder(w http.ResponseWriter, r *http.Request) {
	reagent, _, err := h.svc.ReceiveOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reagent": reagent})
}

func (h *Handler) belowThreshold(w http.ResponseWriter, _ *http.Request) {
	out := []core.Reagent{}
	for r := range h.svc.BelowThreshold() {
		out = append(out, r)
	}
	writeJSON(w, http.StatusOK, map[string]any{"reagents": out})
}

func (h *Handler) expired(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	out := []core.Reagent{}
	for reagent := range h.svc.Expired(asOf) {
		out = append(out, reagent)
	}
	writeJSON(w, http.StatusOK, map[string]any{"as_of": asOf.Format(domain.DateLayout), "reagents": out})
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	alerts := h.svc.Alerts(asOf)
	if alerts == nil {
		alerts = []core.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) inventoryReport(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": h.svc.InventoryReport(asOf)})
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	stats := h.svc.UsageStatistics(limit)
	if stats == nil {
		stats = []core.UsageStat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": stats})
}

func (h *Handler) listRecipes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"recipes": h.svc.ListRecipes()})
}

func (h *Handler) createRecipe(w http.ResponseWriter, r *http.Request) {
	var spec catalog.RecipeSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	recipe, err := spec.Recipe()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	created, _, err := h.svc.CreateRecipe(r.Context(), recipe)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"recipe": created})
}

func (h *Handler) getRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.svc.GetRecipe(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipe": recipe})
}

func (h *Handler) recipeCost(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cost, err := h.svc.EstimateRecipeCost(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipe": name, "cost": cost})
}

func (h *Handler) recipeFeasibility(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	blocking, err := h.svc.CheckRecipeFeasibility(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if blocking == nil {
		blocking = []core.BlockingReagent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipe": name, "feasible": len(blocking) == 0, "blocking": blocking})
}

func (h *Handler) executeExperiment(w http.ResponseWriter, r *http.Request) {
	var req core.ExecutionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	summary, res, err := h.svc.ExecuteExperiment(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     summary.Success,
		"validations": summary.Validations,
		"cost":        summary.Cost,
		"record_id":   summary.RecordID,
		"record":      summary.Record,
		"warnings":    warnings(res),
	})
}

func (h *Handler) listExperiments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.ExperimentFilter{Recipe: q.Get("recipe"), Researcher: q.Get("researcher")}
	if raw := q.Get("from"); raw != "" {
		from, err := domain.ValidateDateFormat("from", raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := domain.ValidateDateFormat("to", raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		// to names a whole day
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": h.svc.ListExperiments(filter)})
}

func (h *Handler) getExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := h.svc.GetExperiment(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiment": exp})
}

func (h *Handler) indicators(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indicators": indicators.New(h.svc.Store()).Report(asOf)})
}

func (h *Handler) exportSnapshot(w http.ResponseWriter, _ *http.Request) {
	doc := labdoc.FromSnapshot(h.svc.ExportSnapshot(), h.svc.Now())
	w.Header().Set("Content-Type", labdoc.ContentType)
	w.WriteHeader(http.StatusOK)
	_ = labdoc.Encode(w, doc)
}

func (h *Handler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	doc, err := labdoc.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := doc.Snapshot()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ImportSnapshot(r.Context(), snap); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reagents":    len(snap.Reagents),
		"recipes":     len(snap.Recipes),
		"experiments": len(snap.Experiments),
	})
}

func (h *Handler) listArchive(w http.ResponseWriter, r *http.Request) {
	infos, err := h.archive.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": infos})
}

func (h *Handler) saveArchive(w http.ResponseWriter, r *http.Request) {
	info, err := h.archive.Save(r.Context(), labdoc.FromSnapshot(h.svc.ExportSnapshot(), h.svc.Now()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": info})
}

// asOf reads the optional as_of=YYYY-MM-DD query parameter, defaulting to the
// service clock.
func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return h.svc.Now(), true
	}
	t, err := domain.ValidateDateFormat("as_of", raw)
	if err != nil {
		writeDomainError(w, err)
		return time.Time{}, false
	}
	return t, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload: "+strings.TrimPrefix(err.Error(), "json: "))
		return false
	}
	return true
}

type warning struct {
	Rule     string `json:"rule"`
	EntityID string `json:"entity_id"`
	Message  string `json:"message"`
}

func warnings(res core.Result) []warning {
	out := []warning{}
	for _, v := range res.Warnings() {
		out = append(out, warning{Rule: v.Rule, EntityID: v.EntityID, Message: v.Message})
	}
	return out
}

func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation   domain.ValidationError
		duplicate    domain.DuplicateNameError
		reagent      domain.UnknownReagentError
		recipe       domain.UnknownRecipeError
		order        domain.UnknownOrderError
		experiment   domain.UnknownExperimentError
		stock        domain.InsufficientStockError
		inventory    domain.InsufficientInventoryError
		ruleViolated domain.RuleViolationError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &reagent), errors.As(err, &recipe), errors.As(err, &order), errors.As(err, &experiment):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &duplicate), errors.As(err, &stock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &inventory):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "blocking": inventory.Blocking})
	case errors.As(err, &ruleViolated):
		violations := make([]map[string]string, 0, len(ruleViolated.Result.Violations))
		for _, v := range ruleViolated.Result.Violations {
			violations = append(violations, map[string]string{"rule": v.Rule, "severity": string(v.Severity), "entity_id": v.EntityID, "message": v.Message})
		}
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "violations": violations})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(started),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
