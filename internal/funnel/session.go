package funnel

import (
	"time"

	"github.com/google/uuid"

	"github.com/sunelia/solar-funnel/internal/kits"
	"github.com/sunelia/solar-funnel/internal/pvgis"
)

// Session is the top-level wizard container: one funnel visitor, one form
// record, one optional calculation result. Only the handler owning the current
// step mutates it, under the store's per-session lock.
type Session struct {
	ID              string `json:"id"`
	Region          string `json:"region"`
	CalculationMode string `json:"calculation_mode"`

	Step     Step     `json:"step"`
	FormData FormData `json:"form_data"`

	UseManualKit bool      `json:"use_manual_kit"`
	ManualKit    *kits.Kit `json:"manual_kit,omitempty"`

	ClientID string                   `json:"client_id,omitempty"`
	Result   *pvgis.CalculationResult `json:"result,omitempty"`

	// Generation increments whenever an in-flight calculation must be
	// disowned (region/mode change, navigating back, reset). A late backend
	// response carrying a stale generation is dropped.
	Generation int `json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session positioned on the start step.
func NewSession(region, calculationMode string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:              uuid.NewString(),
		Region:          region,
		CalculationMode: calculationMode,
		Step:            StepStart,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Advance moves to the next linear step if the current step validates.
// Field errors leave the step unchanged. Leaving the calculation step is only
// possible once a result has arrived.
func (s *Session) Advance() (FieldErrors, error) {
	if !s.Step.Valid() {
		return nil, ErrUnknownStep
	}
	if s.Step.Side() {
		return nil, ErrInvalidTransition
	}
	if s.Step == StepCalculation && s.Result == nil {
		return nil, ErrCalculationPending
	}

	if errs := ValidateStep(s.Step, &s.FormData); len(errs) > 0 {
		return errs, nil
	}

	next, ok := s.Step.next()
	if !ok {
		return nil, ErrLastStep
	}
	s.Step = next
	s.touch()
	return nil, nil
}

// Back moves to the previous step unconditionally. Backing out of the
// calculation step disowns any in-flight request.
func (s *Session) Back() error {
	if !s.Step.Valid() {
		return ErrUnknownStep
	}
	if s.Step == StepCalculation {
		s.Generation++
	}
	prev, ok := s.Step.previous()
	if !ok {
		return ErrFirstStep
	}
	s.Step = prev
	s.touch()
	return nil
}

// GoTo jumps to a side step. Permitted only from calculation or results.
func (s *Session) GoTo(target Step) error {
	if !s.Step.Valid() {
		return ErrUnknownStep
	}
	if !target.Side() {
		return ErrInvalidTransition
	}
	if s.Step != StepCalculation && s.Step != StepResults && !s.Step.Side() {
		return ErrInvalidTransition
	}
	s.Step = target
	s.touch()
	return nil
}

// SetRegion switches the region. Off the start step this discards any
// calculation result (forcing recomputation) but never the form data.
func (s *Session) SetRegion(region string) {
	if region == s.Region {
		return
	}
	s.Region = region
	s.invalidateResult()
}

// SetCalculationMode switches the calculation mode with the same
// invalidation semantics as SetRegion.
func (s *Session) SetCalculationMode(mode string) {
	if mode == s.CalculationMode {
		return
	}
	s.CalculationMode = mode
	s.invalidateResult()
}

// SelectManualKit overrides the automatic kit recommendation.
func (s *Session) SelectManualKit(kit kits.Kit) {
	s.UseManualKit = true
	s.ManualKit = &kit
	s.touch()
}

// ClearManualKit cancels the manual selection, restoring the automatic path.
func (s *Session) ClearManualKit() {
	s.UseManualKit = false
	s.ManualKit = nil
	s.touch()
}

// BeginCalculation marks a new submission attempt and returns its generation
// token. The orchestrator tags its background work with this token.
func (s *Session) BeginCalculation() int {
	s.Generation++
	s.ClientID = ""
	s.Result = nil
	s.touch()
	return s.Generation
}

// ApplyResult stores a calculation outcome if the session is still waiting
// for that generation on the calculation step. A stale or off-step result is
// ignored and false is returned.
func (s *Session) ApplyResult(generation int, clientID string, result *pvgis.CalculationResult) bool {
	if generation != s.Generation || s.Step != StepCalculation {
		return false
	}
	s.ClientID = clientID
	s.Result = result
	s.touch()
	return true
}

// RevealResults advances from the calculation step once a result is present.
func (s *Session) RevealResults() error {
	if s.Step != StepCalculation {
		return ErrInvalidTransition
	}
	if s.Result == nil {
		return ErrCalculationPending
	}
	s.Step = StepResults
	s.touch()
	return nil
}

// Reset discards everything and returns to the start step. Used by the
// generic error screen and the "new calculation" action.
func (s *Session) Reset() {
	s.Generation++
	s.FormData = FormData{}
	s.UseManualKit = false
	s.ManualKit = nil
	s.ClientID = ""
	s.Result = nil
	s.Step = StepStart
	s.touch()
}

func (s *Session) invalidateResult() {
	s.Generation++
	s.ClientID = ""
	s.Result = nil
	s.touch()
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
