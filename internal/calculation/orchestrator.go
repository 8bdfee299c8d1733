package calculation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sunelia/solar-funnel/internal/funnel"
	"github.com/sunelia/solar-funnel/internal/observability/metrics"
	"github.com/sunelia/solar-funnel/internal/pvgis"
	"github.com/sunelia/solar-funnel/pkg/logging"
)

var tracer = otel.Tracer("solarfunnel.internal.calculation")

// ErrCalculationFailed is the single error exposed for any orchestration
// failure; the user retries manually.
var ErrCalculationFailed = errors.New("calculation failed")

// UserErrorMessage is the generic copy shown for any orchestration failure.
const UserErrorMessage = "Impossible de finaliser votre étude. Merci de vérifier votre adresse puis de réessayer."

const runTimeout = 2 * time.Minute

// Backend is the slice of the PVGIS client the orchestrator needs.
type Backend interface {
	CreateClient(ctx context.Context, payload pvgis.ClientPayload) (string, error)
	Calculate(ctx context.Context, clientID, region, mode string) (*pvgis.CalculationResult, error)
}

// Outcome is the terminal state of one orchestration run.
type Outcome struct {
	ClientID string
	Result   *pvgis.CalculationResult
	Err      error
}

type run struct {
	done    chan struct{}
	outcome Outcome
}

// Orchestrator drives the two-step backend transaction: create a client
// record, then trigger the calculation. From the caller's point of view it is
// one logical transaction: if client creation fails the calculation is never
// attempted, and either failure surfaces as the same generic error.
type Orchestrator struct {
	backend  Backend
	sessions funnel.Store
	logger   *logging.Logger
	metrics  *metrics.FunnelMetrics

	mu   sync.Mutex
	runs map[string]map[int]*run
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(backend Backend, sessions funnel.Store, m *metrics.FunnelMetrics, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		backend:  backend,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
		runs:     make(map[string]map[int]*run),
	}
}

// Start launches the background orchestration for the session's current
// generation. Calling Start again with the same session/generation is a no-op:
// the submission happens exactly once no matter how many timers fire.
func (o *Orchestrator) Start(session *funnel.Session) {
	generation := session.Generation
	payload := BuildClientPayload(session)

	o.mu.Lock()
	byGen, ok := o.runs[session.ID]
	if !ok {
		byGen = make(map[int]*run)
		o.runs[session.ID] = byGen
	}
	if _, started := byGen[generation]; started {
		o.mu.Unlock()
		return
	}
	// Older generations are disowned; their late outcomes are already
	// rejected by the session's generation check.
	for gen := range byGen {
		if gen < generation {
			delete(byGen, gen)
		}
	}
	r := &run{done: make(chan struct{})}
	byGen[generation] = r
	o.mu.Unlock()

	go o.execute(session.ID, generation, session.Region, session.CalculationMode, payload, r)
}

// Await returns the run for the given session/generation, or false if no run
// was ever started. The returned channel closes when the outcome is final.
func (o *Orchestrator) Await(sessionID string, generation int) (<-chan struct{}, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	byGen, ok := o.runs[sessionID]
	if !ok {
		return nil, false
	}
	r, ok := byGen[generation]
	if !ok {
		return nil, false
	}
	return r.done, true
}

// Outcome returns the terminal outcome for a finished run.
func (o *Orchestrator) Outcome(sessionID string, generation int) (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	byGen, ok := o.runs[sessionID]
	if !ok {
		return Outcome{}, false
	}
	r, ok := byGen[generation]
	if !ok {
		return Outcome{}, false
	}
	select {
	case <-r.done:
		return r.outcome, true
	default:
		return Outcome{}, false
	}
}

// Forget drops run bookkeeping for a session (reset or deletion).
func (o *Orchestrator) Forget(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runs, sessionID)
}

// execute performs the two backend calls. It deliberately runs on a detached
// context: navigating away does not abort the request, and a late response is
// discarded by the session's generation check rather than crashing or
// overwriting newer state.
func (o *Orchestrator) execute(sessionID string, generation int, region, mode string, payload pvgis.ClientPayload, r *run) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "calculation.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("generation", generation),
		attribute.String("region", region),
	)

	outcome := o.callBackend(ctx, region, mode, payload)

	r.outcome = outcome
	close(r.done)

	if outcome.Err != nil {
		o.metrics.ObserveCalculation("failure")
		o.logger.Error("calculation failed",
			"session_id", sessionID,
			"generation", generation,
			"error", outcome.Err,
		)
		return
	}
	o.metrics.ObserveCalculation("success")

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		o.logger.Warn("calculation finished for missing session", "session_id", sessionID)
		return
	}
	if !session.ApplyResult(generation, outcome.ClientID, outcome.Result) {
		o.logger.Info("late calculation result discarded",
			"session_id", sessionID,
			"generation", generation,
			"current_generation", session.Generation,
		)
		return
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		if errors.Is(err, funnel.ErrStaleSession) {
			// The visitor navigated away between our read and our write; the
			// store refused the stale snapshot.
			o.logger.Info("late calculation result discarded",
				"session_id", sessionID,
				"generation", generation,
			)
			return
		}
		o.logger.Error("failed to save calculation result", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) callBackend(ctx context.Context, region, mode string, payload pvgis.ClientPayload) Outcome {
	start := time.Now()
	clientID, err := o.backend.CreateClient(ctx, payload)
	o.metrics.ObserveBackendLatency("create_client", time.Since(start).Seconds())
	if err != nil {
		o.logger.Error("client creation failed", "error", err)
		return Outcome{Err: ErrCalculationFailed}
	}

	start = time.Now()
	result, err := o.backend.Calculate(ctx, clientID, region, mode)
	o.metrics.ObserveBackendLatency("calculate", time.Since(start).Seconds())
	if err != nil {
		o.logger.Error("calculation trigger failed", "client_id", clientID, "error", err)
		// No partial result is ever exposed.
		return Outcome{Err: ErrCalculationFailed}
	}

	return Outcome{ClientID: clientID, Result: result}
}

// BuildClientPayload flattens the session's form data into the backend client
// payload. The annual payment is always the derived monthly×12 value.
func BuildClientPayload(session *funnel.Session) pvgis.ClientPayload {
	form := session.FormData

	payload := pvgis.ClientPayload{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Address:   form.Address,
		Phone:     form.Phone,
		Email:     form.Email,

		RoofSurface:     form.RoofSurface,
		RoofOrientation: form.RoofOrientation,
		SkylightCount:   form.SkylightCount,

		HeatingSystem:      form.HeatingSystem,
		SecondaryHeating:   form.SecondaryHeating,
		WaterHeatingSystem: form.WaterHeatingSystem,
		WaterTankLiters:    form.WaterTankLiters,

		HasWasher:      form.HasWasher,
		HasDryer:       form.HasDryer,
		HasDishwasher:  form.HasDishwasher,
		FridgeCount:    form.FridgeCount,
		HasOven:        form.HasOven,
		HasCooktop:     form.HasCooktop,
		HasHood:        form.HasHood,
		HasVentilation: form.HasVentilation,

		MeterType:  form.MeterType,
		MeterPower: form.MeterPower,
		MeterPhase: form.MeterPhase,

		AnnualConsumption: form.AnnualConsumption,
		MonthlyEDFPayment: form.MonthlyEDFPayment,
		AnnualEDFPayment:  form.MonthlyEDFPayment * 12,
	}
	if form.SecondaryHeating == nil {
		payload.SecondaryHeating = []string{}
	}
	if session.UseManualKit && session.ManualKit != nil {
		power := session.ManualKit.Power
		payload.ManualKitPower = &power
	}
	return payload
}
