package funnel

// Step identifies one screen of the intake wizard.
type Step string

const (
	StepStart       Step = "start"
	StepPersonal    Step = "personal"
	StepTechnical   Step = "technical"
	StepHeating     Step = "heating"
	StepConsumption Step = "consumption"
	StepCalculation Step = "calculation"
	StepResults     Step = "results"

	// Side steps, reachable only from calculation/results by explicit action.
	StepAnimation Step = "animation"
	StepSynthesis Step = "synthesis"
)

// stepOrder is the linear wizard sequence. Side steps are not part of it.
var stepOrder = []Step{
	StepStart,
	StepPersonal,
	StepTechnical,
	StepHeating,
	StepConsumption,
	StepCalculation,
	StepResults,
}

// Valid reports whether s is a known step, linear or side.
func (s Step) Valid() bool {
	if s == StepAnimation || s == StepSynthesis {
		return true
	}
	return s.linearIndex() >= 0
}

// Side reports whether s is one of the two side steps.
func (s Step) Side() bool {
	return s == StepAnimation || s == StepSynthesis
}

func (s Step) linearIndex() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// next returns the following linear step.
func (s Step) next() (Step, bool) {
	i := s.linearIndex()
	if i < 0 || i >= len(stepOrder)-1 {
		return s, false
	}
	return stepOrder[i+1], true
}

// previous returns the preceding linear step. Side steps return to results.
func (s Step) previous() (Step, bool) {
	if s.Side() {
		return StepResults, true
	}
	i := s.linearIndex()
	if i <= 0 {
		return s, false
	}
	return stepOrder[i-1], true
}
