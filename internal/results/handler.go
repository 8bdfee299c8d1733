package results

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sunelia/solar-funnel/internal/funnel"
	"github.com/sunelia/solar-funnel/internal/observability/metrics"
	"github.com/sunelia/solar-funnel/pkg/logging"
)

// Downloader is the slice of the PVGIS client the results screen needs.
type Downloader interface {
	DownloadReport(ctx context.Context, clientID string) ([]byte, error)
	DownloadDevis(ctx context.Context, clientID, region string) ([]byte, error)
}

// Notification mirrors the transient on-screen notifications of the results
// view. Dismissal is data the client applies; the server schedules nothing.
type Notification struct {
	State          string `json:"state"` // "success" or "failure"
	Message        string `json:"message"`
	DismissAfterMS int64  `json:"dismiss_after_ms"`
}

// Handler serves the results tabs, the PDF/devis downloads and the
// contact-expert action for a session.
type Handler struct {
	sessions     funnel.Store
	downloader   Downloader
	expertEmail  string
	dismissAfter time.Duration
	metrics      *metrics.FunnelMetrics
	logger       *logging.Logger
}

// NewHandler creates a results handler.
func NewHandler(sessions funnel.Store, downloader Downloader, expertEmail string, dismissAfter time.Duration, m *metrics.FunnelMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		sessions:     sessions,
		downloader:   downloader,
		expertEmail:  expertEmail,
		dismissAfter: dismissAfter,
		metrics:      m,
		logger:       logger,
	}
}

// GetTab handles GET /funnel/sessions/{sessionID}/results/{tab}.
func (h *Handler) GetTab(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionWithResult(w, r)
	if !ok {
		return
	}

	tab := chi.URLParam(r, "tab")
	view, ok := BuildView(tab, session.Result)
	if !ok {
		http.Error(w, "unknown results tab", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// DownloadReport handles GET /funnel/sessions/{sessionID}/report.
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionWithResult(w, r)
	if !ok {
		return
	}

	data, err := h.downloader.DownloadReport(r.Context(), session.ClientID)
	if err != nil {
		h.metrics.ObserveDownload("report", "failure")
		h.logger.Error("report download failed", "session_id", session.ID, "error", err)
		h.writeNotification(w, http.StatusBadGateway, "Le rapport PDF n'a pas pu être généré. Veuillez réessayer.")
		return
	}

	h.metrics.ObserveDownload("report", "success")
	h.writePDF(w, fmt.Sprintf("etude-solaire-%s.pdf", session.ClientID), data)
}

// DownloadDevis handles GET /funnel/sessions/{sessionID}/devis.
func (h *Handler) DownloadDevis(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionWithResult(w, r)
	if !ok {
		return
	}

	data, err := h.downloader.DownloadDevis(r.Context(), session.ClientID, session.Region)
	if err != nil {
		h.metrics.ObserveDownload("devis", "failure")
		h.logger.Error("devis download failed", "session_id", session.ID, "error", err)
		h.writeNotification(w, http.StatusBadGateway, "Le devis n'a pas pu être généré. Veuillez réessayer.")
		return
	}

	h.metrics.ObserveDownload("devis", "success")
	h.writePDF(w, fmt.Sprintf("devis-%s.pdf", session.ClientID), data)
}

// ContactExpert handles GET /funnel/sessions/{sessionID}/contact-expert.
func (h *Handler) ContactExpert(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionWithResult(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"mailto": ComposeExpertMailto(h.expertEmail, session),
	})
}

func (h *Handler) sessionWithResult(w http.ResponseWriter, r *http.Request) (*funnel.Session, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	if session.Result == nil {
		http.Error(w, "no calculation result available", http.StatusConflict)
		return nil, false
	}
	return session, true
}

func (h *Handler) writePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	_, _ = w.Write(data)
}

func (h *Handler) writeNotification(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]Notification{
		"notification": {
			State:          "failure",
			Message:        message,
			DismissAfterMS: h.dismissAfter.Milliseconds(),
		},
	})
}
