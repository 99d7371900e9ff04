package loop

import (
	"context"

	"github.com/nextlevelbuilder/runloop/internal/state"
)

// Controller evaluates the transition rule after each iteration's
// write-back. It is the only component that moves a run out of
// Running.
type Controller struct {
	maxIterations int
	stop          *StopCondition
}

func NewController(maxIterations int, stop *StopCondition) *Controller {
	if stop == nil {
		stop = &StopCondition{}
	}
	return &Controller{maxIterations: maxIterations, stop: stop}
}

// Evaluate applies the transition rules in order: stop predicate,
// iteration limit, operator cancellation, unrecoverable error.
// escalated marks an iteration whose capability call failed beyond
// its retry budget.
func (c *Controller) Evaluate(ctx context.Context, s *state.Context, iteration int, escalated bool) Status {
	if last, ok := s.Last(); ok && c.stop.Satisfied(last) {
		return StatusSucceeded
	}
	if iteration >= c.maxIterations {
		return StatusStoppedByLimit
	}
	if ctx.Err() != nil {
		return StatusStoppedByCondition
	}
	if escalated {
		return StatusFailed
	}
	return StatusRunning
}
