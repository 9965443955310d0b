package training

import (
	"math"
)

// StepLR decays the learning rate by a fixed factor every StepSize
// steps. It is stateful: Step is called once per completed epoch, and
// resuming a run advances it synthetically so the decay history matches
// a continuous run.
type StepLR struct {
	BaseLR   float64
	StepSize int
	Gamma    float64

	steps int
}

// NewStepLR creates a step-decay schedule.
func NewStepLR(baseLR float64, stepSize int, gamma float64) *StepLR {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLR{
		BaseLR:   baseLR,
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

// Step records one completed epoch.
func (s *StepLR) Step() {
	s.steps++
}

// Advance applies n synthetic steps, as resume does for epochs already
// completed before the restart.
func (s *StepLR) Advance(n int) {
	if n > 0 {
		s.steps += n
	}
}

// LR returns the learning rate for the current step count.
func (s *StepLR) LR() float64 {
	decays := s.steps / s.StepSize
	return s.BaseLR * math.Pow(s.Gamma, float64(decays))
}

// StepCount reports how many steps have been recorded.
func (s *StepLR) StepCount() int {
	return s.steps
}
