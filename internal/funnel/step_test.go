package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStep_LinearOrder(t *testing.T) {
	step := StepStart
	var visited []Step
	for {
		visited = append(visited, step)
		next, ok := step.next()
		if !ok {
			break
		}
		step = next
	}
	assert.Equal(t, []Step{
		StepStart, StepPersonal, StepTechnical, StepHeating,
		StepConsumption, StepCalculation, StepResults,
	}, visited)
}

func TestStep_PreviousFromSideStepsReturnsToResults(t *testing.T) {
	for _, side := range []Step{StepAnimation, StepSynthesis} {
		prev, ok := side.previous()
		assert.True(t, ok)
		assert.Equal(t, StepResults, prev, side)
	}
}

func TestStep_Boundaries(t *testing.T) {
	_, ok := StepStart.previous()
	assert.False(t, ok)

	_, ok = StepResults.next()
	assert.False(t, ok)
}

func TestStep_Valid(t *testing.T) {
	assert.True(t, StepCalculation.Valid())
	assert.True(t, StepAnimation.Valid())
	assert.False(t, Step("checkout").Valid())
	assert.False(t, Step("").Valid())
}
