package testutil

import "sync/atomic"

// StepClock numbers harness steps. The first Next returns 1. Reset starts
// the numbering over so a rerun scenario produces the same trace.
type StepClock struct {
	seq atomic.Int64
}

// NewStepClock returns a clock at 0.
func NewStepClock() *StepClock {
	return &StepClock{}
}

// Next advances the clock and returns the new step number.
func (c *StepClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last step number handed out.
func (c *StepClock) Current() int64 {
	return c.seq.Load()
}

// Reset sets the clock back to 0.
func (c *StepClock) Reset() {
	c.seq.Store(0)
}
