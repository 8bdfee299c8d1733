package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/sunelia/solar-funnel/internal/kits"
	"github.com/sunelia/solar-funnel/internal/observability/metrics"
	"github.com/sunelia/solar-funnel/internal/pvgis"
	"github.com/sunelia/solar-funnel/pkg/logging"
)

// CalculationStarter launches the background orchestration when a session
// enters the calculation step.
type CalculationStarter interface {
	Start(session *Session)
	Forget(sessionID string)
}

// ConfigFetcher proxies the backend's read-only configuration endpoints.
type ConfigFetcher interface {
	GetRegionConfig(ctx context.Context, region string) (*pvgis.RegionConfig, error)
	GetCalculationModes(ctx context.Context) ([]pvgis.CalculationMode, error)
}

// KnownRegions are the region codes the funnel accepts.
var KnownRegions = []string{pvgis.RegionFrance, pvgis.RegionMartinique}

// Handler handles HTTP requests for funnel sessions.
type Handler struct {
	store   Store
	catalog *kits.Catalog
	starter CalculationStarter
	configs ConfigFetcher

	defaultRegion string
	defaultMode   string

	metrics *metrics.FunnelMetrics
	logger  *logging.Logger

	locks sync.Map // session id -> *sync.Mutex
}

// NewHandler creates a funnel handler.
func NewHandler(store Store, catalog *kits.Catalog, starter CalculationStarter, configs ConfigFetcher, defaultRegion, defaultMode string, m *metrics.FunnelMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:         store,
		catalog:       catalog,
		starter:       starter,
		configs:       configs,
		defaultRegion: defaultRegion,
		defaultMode:   defaultMode,
		metrics:       m,
		logger:        logger,
	}
}

// lockSession serializes mutations per session: only one request at a time
// may mutate the wizard container.
func (h *Handler) lockSession(id string) func() {
	mu, _ := h.locks.LoadOrStore(id, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// CreateSession handles POST /funnel/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region          string `json:"region"`
		CalculationMode string `json:"calculation_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Region == "" {
		req.Region = h.defaultRegion
	}
	if req.CalculationMode == "" {
		req.CalculationMode = h.defaultMode
	}
	if !validRegion(req.Region) {
		http.Error(w, ErrInvalidRegion.Error(), http.StatusBadRequest)
		return
	}

	session := NewSession(req.Region, req.CalculationMode)
	if err := h.store.Create(r.Context(), session); err != nil {
		h.logger.Error("failed to create session", "error", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveSessionCreated()
	h.logger.Info("funnel session created", "session_id", session.ID, "region", session.Region)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// GetSession handles GET /funnel/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.load(w, r)
	if !ok {
		return
	}
	if !session.Step.Valid() {
		// Unrecognized step: generic error screen offering a full reset.
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":           ErrUnknownStep.Error(),
			"reset_available": true,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// Next handles POST /funnel/sessions/{sessionID}/next. The body carries the
// active step's form fields; other steps' fields are ignored.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload stepPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	unlock := h.lockSession(sessionID)
	defer unlock()

	session, ok := h.loadByID(w, r, sessionID)
	if !ok {
		return
	}

	step := session.Step
	payload.apply(step, &session.FormData)

	fieldErrs, err := session.Advance()
	switch {
	case errors.Is(err, ErrUnknownStep):
		h.metrics.ObserveStepAdvance(string(step), "unknown_step")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":           ErrUnknownStep.Error(),
			"reset_available": true,
		})
		return
	case errors.Is(err, ErrCalculationPending):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": ErrCalculationPending.Error()})
		return
	case err != nil:
		h.metrics.ObserveStepAdvance(string(step), "rejected")
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case len(fieldErrs) > 0:
		// Form edits stick, the step does not move.
		if err := h.store.Save(r.Context(), session); err != nil {
			h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		}
		h.metrics.ObserveStepAdvance(string(step), "invalid")
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": fieldErrs})
		return
	}

	if session.Step == StepCalculation {
		// Per the decoupled design the request starts now, in the
		// background; the countdown only paces the reveal.
		session.BeginCalculation()
	}

	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}

	if session.Step == StepCalculation && h.starter != nil {
		h.starter.Start(session)
	}

	h.metrics.ObserveStepAdvance(string(step), "ok")
	h.writeJSON(w, http.StatusOK, session)
}

// Previous handles POST /funnel/sessions/{sessionID}/previous. Navigation
// backwards never validates.
func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	unlock := h.lockSession(sessionID)
	defer unlock()

	session, ok := h.loadByID(w, r, sessionID)
	if !ok {
		return
	}

	if err := session.Back(); err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrUnknownStep) {
			status = http.StatusInternalServerError
		}
		h.writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// GoTo handles POST /funnel/sessions/{sessionID}/goto for the two side steps.
func (h *Handler) GoTo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Step Step `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	unlock := h.lockSession(sessionID)
	defer unlock()

	session, ok := h.loadByID(w, r, sessionID)
	if !ok {
		return
	}

	if err := session.GoTo(req.Step); err != nil {
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// SetRegion handles PUT /funnel/sessions/{sessionID}/region.
func (h *Handler) SetRegion(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Region string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !validRegion(req.Region) {
		http.Error(w, ErrInvalidRegion.Error(), http.StatusBadRequest)
		return
	}

	unlock := h.lockSession(sessionID)
	defer unlock()

	session, ok := h.loadByID(w, r, sessionID)
	if !ok {
		return
	}

	if req.Region != session.Region {
		session.SetRegion(req.Region)
		// The previous region's catalog is stale either way.
		h.catalog.Invalidate()
	}

	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// SetMode handles PUT /funnel/sessions/{sessionID}/mode.
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		CalculationMode string `json:"calculation_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CalculationMode == "" {
		http.Error(w, "calculation_mode is required", http.StatusBadRequest)
		return
	}

	unlock := h.lockSession(sessionID)
	defer unlock()

	session, ok := h.loadByID(w, r, sessionID)
	if !ok {
		return
	}

	session.SetCalculationMode(req.CalculationMode)

	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// ListKits handles GET /funnel/sessions/{sessionID}/kits.
func (h *Handler) ListKits(w http.ResponseWriter, r *http.Request) {
	session, ok := h.load(w, r)
	if !ok {
		return
	}

	catalog, err := h.catalog.Kits(r.Context(), session.Region)
	if err != nil {
		h.logger.Error("kit catalog fetch failed", "region", session.Region, "error", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "Le catalogue de kits est momentanément indisponible.",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"kits": catalog})
}

// SelectKit handles PUT /funnel/sessions/{sessionID}/kit.
func (h *Handler) SelectKit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Power FlexFloat `json:"power"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	unlock := h.lockSession(sessionID)
	defer unlock()

	session, ok := h.loadByID(w, r, sessionID)
	if !ok {
		return
	}

	catalog, err := h.catalog.Kits(r.Context(), session.Region)
	if err != nil {
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "Le catalogue de kits est momentanément indisponible.",
		})
		return
	}

	var selected *kits.Kit
	for i := range catalog {
		if catalog[i].Power == float64(req.Power) {
			selected = &catalog[i]
			break
		}
	}
	if selected == nil {
		http.Error(w, "no kit with that power in the catalog", http.StatusNotFound)
		return
	}

	session.SelectManualKit(*selected)
	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// ClearKit handles DELETE /funnel/sessions/{sessionID}/kit, restoring the
// automatic recommendation path.
func (h *Handler) ClearKit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	unlock := h.lockSession(sessionID)
	defer unlock()

	session, ok := h.loadByID(w, r, sessionID)
	if !ok {
		return
	}

	session.ClearManualKit()
	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// Reset handles POST /funnel/sessions/{sessionID}/reset ("new calculation").
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	unlock := h.lockSession(sessionID)
	defer unlock()

	session, ok := h.loadByID(w, r, sessionID)
	if !ok {
		return
	}

	session.Reset()
	if h.starter != nil {
		h.starter.Forget(session.ID)
	}
	if err := h.store.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "session_id", sessionID, "error", err)
		http.Error(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// GetRegionConfig handles GET /regions/{region}: read-only proxy of the
// backend's region configuration.
func (h *Handler) GetRegionConfig(w http.ResponseWriter, r *http.Request) {
	region := chi.URLParam(r, "region")
	if !validRegion(region) {
		http.Error(w, ErrInvalidRegion.Error(), http.StatusNotFound)
		return
	}
	cfg, err := h.configs.GetRegionConfig(r.Context(), region)
	if err != nil {
		h.logger.Error("region config fetch failed", "region", region, "error", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "La configuration régionale est momentanément indisponible.",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// GetCalculationModes handles GET /calculation-modes.
func (h *Handler) GetCalculationModes(w http.ResponseWriter, r *http.Request) {
	modes, err := h.configs.GetCalculationModes(r.Context())
	if err != nil {
		h.logger.Error("calculation modes fetch failed", "error", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "Les modes de calcul sont momentanément indisponibles.",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"modes": modes})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	return h.loadByID(w, r, chi.URLParam(r, "sessionID"))
}

func (h *Handler) loadByID(w http.ResponseWriter, r *http.Request, sessionID string) (*Session, bool) {
	session, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, ErrSessionNotFound.Error(), http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func validRegion(region string) bool {
	for _, known := range KnownRegions {
		if known == region {
			return true
		}
	}
	return false
}
