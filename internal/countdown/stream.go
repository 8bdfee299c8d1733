package countdown

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sunelia/solar-funnel/internal/calculation"
	"github.com/sunelia/solar-funnel/internal/funnel"
	"github.com/sunelia/solar-funnel/pkg/logging"
)

// Awaiter exposes the orchestrator runs the stream waits on.
type Awaiter interface {
	Await(sessionID string, generation int) (<-chan struct{}, bool)
	Outcome(sessionID string, generation int) (calculation.Outcome, bool)
}

// streamMessage is the wire envelope pushed over the websocket.
type streamMessage struct {
	Type    string `json:"type"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message,omitempty"`
	Event   *Event `json:"event,omitempty"`
}

// StreamHandler streams countdown events for a session over a websocket and
// paces the reveal of the calculation result. The calculation itself starts
// when the session enters the calculation step; this stream only decides when
// the outcome becomes visible.
type StreamHandler struct {
	sessions     funnel.Store
	runs         Awaiter
	presenter    *Presenter
	successDelay time.Duration
	logger       *logging.Logger
	upgrader     websocket.Upgrader
}

// NewStreamHandler creates the websocket handler.
func NewStreamHandler(sessions funnel.Store, runs Awaiter, presenter *Presenter, successDelay time.Duration, logger *logging.Logger) *StreamHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StreamHandler{
		sessions:     sessions,
		runs:         runs,
		presenter:    presenter,
		successDelay: successDelay,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The funnel front end is served from another origin; access
			// control happens at the CORS layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle serves GET /funnel/sessions/{sessionID}/countdown.
func (h *StreamHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if session.Step != funnel.StepCalculation {
		http.Error(w, "session is not on the calculation step", http.StatusConflict)
		return
	}

	demo := r.URL.Query().Get("demo") == "true" || r.URL.Query().Get("demo") == "1"

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	// The socket's lifetime is the countdown's lifetime: when the client
	// disconnects (unmount, previous), every pending timer below is released
	// through this context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	values := TipValues{
		Orientation:       session.FormData.RoofOrientation,
		AnnualConsumption: session.FormData.AnnualConsumption,
		HeatingSystem:     session.FormData.HeatingSystem,
		MonthlyPayment:    session.FormData.MonthlyEDFPayment,
	}

	run := h.presenter.NewRun(values, demo)
	go run.Start(ctx)

	for evt := range run.Events() {
		evt := evt
		if err := conn.WriteJSON(streamMessage{Type: evt.Type, Event: &evt}); err != nil {
			cancel()
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	if !h.awaitOutcome(ctx, conn, sessionID) {
		return
	}
	h.successScreen(ctx, conn, sessionID)
}

// awaitOutcome blocks until the orchestration finishes, then reveals the
// result or reports the generic failure. The session is re-read here instead
// of trusted from upgrade time: a retry during the countdown starts a newer
// generation, and that newer run is the one whose outcome matters. Returns
// false when the stream ends without a reveal.
func (h *StreamHandler) awaitOutcome(ctx context.Context, conn *websocket.Conn, sessionID string) bool {
	session, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return false
	}
	if session.Step != funnel.StepCalculation {
		// The visitor moved on while we were counting down.
		return false
	}
	generation := session.Generation

	done, ok := h.runs.Await(sessionID, generation)
	if !ok {
		_ = conn.WriteJSON(streamMessage{Type: "error", Message: calculation.UserErrorMessage})
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-done:
	}

	outcome, ok := h.runs.Outcome(sessionID, generation)
	if !ok || outcome.Err != nil {
		// Session stays on the calculation step; retry is user-initiated.
		_ = conn.WriteJSON(streamMessage{Type: "error", Message: calculation.UserErrorMessage})
		return false
	}

	session, err = h.sessions.Get(ctx, sessionID)
	if err != nil {
		return false
	}
	if session.Generation != generation {
		// Disowned while we waited on the run.
		return false
	}
	if session.Result == nil {
		// Outcome is final but the apply has not landed yet; store it now.
		session.ApplyResult(generation, outcome.ClientID, outcome.Result)
	}
	if err := session.RevealResults(); err != nil {
		h.logger.Warn("could not reveal results", "session_id", sessionID, "error", err)
		return false
	}
	if err := h.sessions.Save(ctx, session); err != nil {
		if !errors.Is(err, funnel.ErrStaleSession) {
			h.logger.Error("failed to save revealed session", "session_id", sessionID, "error", err)
		}
		return false
	}

	return conn.WriteJSON(streamMessage{Type: "reveal", Step: string(funnel.StepResults)}) == nil
}

// successScreen holds the success view for the configured delay, then
// advances the wizard to the animation side step.
func (h *StreamHandler) successScreen(ctx context.Context, conn *websocket.Conn, sessionID string) {
	timer := time.NewTimer(h.successDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	session, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return
	}
	if session.Step != funnel.StepResults {
		return
	}
	if err := session.GoTo(funnel.StepAnimation); err != nil {
		return
	}
	if err := h.sessions.Save(ctx, session); err != nil {
		if !errors.Is(err, funnel.ErrStaleSession) {
			h.logger.Error("failed to save auto-advanced session", "session_id", sessionID, "error", err)
		}
		return
	}
	_ = conn.WriteJSON(streamMessage{Type: "advanced", Step: string(funnel.StepAnimation)})
}
