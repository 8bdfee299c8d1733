package countdown

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Phase is one named slice of the countdown with its informational copy.
// Tips may reference {orientation}, {consommation}, {chauffage} and
// {mensualite}, interpolated from the live form values.
type Phase struct {
	Name     string
	Duration time.Duration
	Tip      string
}

// Config parameterizes a countdown run. The source funnel shipped two
// near-identical screens (120s and 240s cycles); both are expressed here as
// configurations of the same presenter.
type Config struct {
	Phases           []Phase
	TickInterval     time.Duration
	DemoTickInterval time.Duration
}

// Total is the sum of all phase durations.
func (c Config) Total() time.Duration {
	var total time.Duration
	for _, p := range c.Phases {
		total += p.Duration
	}
	return total
}

// DefaultConfig is the production 120-second countdown: four 30-second
// phases. Demo mode shortens the real tick interval, never the phase
// durations.
func DefaultConfig() Config {
	return Config{
		TickInterval:     time.Second,
		DemoTickInterval: 50 * time.Millisecond,
		Phases: []Phase{
			{
				Name:     "analyse",
				Duration: 30 * time.Second,
				Tip:      "Analyse de votre toiture orientée {orientation} et de son potentiel solaire...",
			},
			{
				Name:     "ensoleillement",
				Duration: 30 * time.Second,
				Tip:      "Interrogation des données d'ensoleillement PVGIS pour votre consommation de {consommation} kWh/an...",
			},
			{
				Name:     "dimensionnement",
				Duration: 30 * time.Second,
				Tip:      "Dimensionnement de votre installation en tenant compte de votre chauffage {chauffage}...",
			},
			{
				Name:     "finalisation",
				Duration: 30 * time.Second,
				Tip:      "Calcul de vos économies sur la base d'une mensualité EDF de {mensualite} €...",
			},
		},
	}
}

// TipValues carries the form values interpolated into phase copy.
type TipValues struct {
	Orientation       string
	AnnualConsumption float64
	HeatingSystem     string
	MonthlyPayment    float64
}

func (v TipValues) render(tip string) string {
	r := strings.NewReplacer(
		"{orientation}", v.Orientation,
		"{consommation}", strconv.FormatFloat(v.AnnualConsumption, 'f', -1, 64),
		"{chauffage}", v.HeatingSystem,
		"{mensualite}", strconv.FormatFloat(v.MonthlyPayment, 'f', -1, 64),
	)
	return r.Replace(tip)
}

// Event types emitted by a run.
const (
	EventTick  = "tick"
	EventPhase = "phase"
	EventDone  = "done"
)

// Event is one countdown update.
type Event struct {
	Type      string `json:"type"`
	Remaining int    `json:"remaining_seconds"`
	Phase     string `json:"phase"`
	Tip       string `json:"tip,omitempty"`
}

// Presenter builds countdown runs from one shared configuration.
type Presenter struct {
	cfg Config
}

// NewPresenter creates a presenter.
func NewPresenter(cfg Config) *Presenter {
	if len(cfg.Phases) == 0 {
		cfg = DefaultConfig()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.DemoTickInterval <= 0 {
		cfg.DemoTickInterval = 50 * time.Millisecond
	}
	return &Presenter{cfg: cfg}
}

// Run is one countdown in progress. The run owns every timer it starts;
// cancelling the context passed to Start releases them all, so no callback
// can fire after the owning view is gone.
type Run struct {
	cfg    Config
	values TipValues
	demo   bool
	events chan Event
}

// NewRun prepares a countdown run. The countdown is purely cosmetic: it never
// gates the calculation request itself.
func (p *Presenter) NewRun(values TipValues, demo bool) *Run {
	return &Run{
		cfg:    p.cfg,
		values: values,
		demo:   demo,
		events: make(chan Event, 16),
	}
}

// Events is the stream of countdown updates. The channel closes when the run
// finishes or is cancelled.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Start drives the countdown until zero or cancellation. One tick of the
// ticker advances one virtual second regardless of the real interval, which
// is how demo mode fast-forwards without touching phase durations.
func (r *Run) Start(ctx context.Context) {
	defer close(r.events)

	interval := r.cfg.TickInterval
	if r.demo {
		interval = r.cfg.DemoTickInterval
	}

	total := int(r.cfg.Total() / time.Second)
	elapsed := 0

	phase := r.phaseAt(0)
	if !r.emit(ctx, Event{Type: EventPhase, Remaining: total, Phase: phase.Name, Tip: r.values.render(phase.Tip)}) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for elapsed < total {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed++
		}

		current := r.phaseAt(elapsed)
		if current.Name != phase.Name {
			phase = current
			if !r.emit(ctx, Event{Type: EventPhase, Remaining: total - elapsed, Phase: phase.Name, Tip: r.values.render(phase.Tip)}) {
				return
			}
		}
		if !r.emit(ctx, Event{Type: EventTick, Remaining: total - elapsed, Phase: phase.Name}) {
			return
		}
	}

	r.emit(ctx, Event{Type: EventDone, Remaining: 0, Phase: phase.Name})
}

func (r *Run) phaseAt(elapsed int) Phase {
	cumulative := 0
	for _, p := range r.cfg.Phases {
		cumulative += int(p.Duration / time.Second)
		if elapsed < cumulative {
			return p
		}
	}
	return r.cfg.Phases[len(r.cfg.Phases)-1]
}

func (r *Run) emit(ctx context.Context, evt Event) bool {
	select {
	case <-ctx.Done():
		return false
	case r.events <- evt:
		return true
	}
}
