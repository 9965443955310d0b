package training

import (
	"math"
	"testing"
)

func TestStepLRDecay(t *testing.T) {
	sched := NewStepLR(0.01, 2, 0.1)

	if got := sched.LR(); got != 0.01 {
		t.Errorf("Expected base LR 0.01 before any step, got %f", got)
	}

	sched.Step()
	if got := sched.LR(); got != 0.01 {
		t.Errorf("Expected LR unchanged after 1 step, got %f", got)
	}

	sched.Step()
	if got := sched.LR(); math.Abs(got-0.001) > 1e-12 {
		t.Errorf("Expected LR 0.001 after 2 steps, got %f", got)
	}
}

func TestStepLRAdvanceMatchesStepping(t *testing.T) {
	stepped := NewStepLR(0.0001, 2, 0.1)
	for i := 0; i < 3; i++ {
		stepped.Step()
	}

	advanced := NewStepLR(0.0001, 2, 0.1)
	advanced.Advance(3)

	if stepped.LR() != advanced.LR() {
		t.Errorf("Advance(3) LR %g does not match 3 Step calls %g", advanced.LR(), stepped.LR())
	}
	if stepped.StepCount() != advanced.StepCount() {
		t.Errorf("Step counts diverge: %d vs %d", stepped.StepCount(), advanced.StepCount())
	}
}

func TestStepLRResumeFromThirdEpoch(t *testing.T) {
	// Resuming at epoch 3 with step size 2 lands past one decay
	// boundary, so the run restarts at a tenth of the base rate.
	sched := NewStepLR(0.0001, 2, 0.1)
	sched.Advance(3)

	want := 0.0001 * 0.1
	if got := sched.LR(); math.Abs(got-want) > 1e-15 {
		t.Errorf("Expected resumed LR %g, got %g", want, got)
	}
}

func TestStepLRDefaults(t *testing.T) {
	sched := NewStepLR(0.01, 0, 0)
	if sched.StepSize != 30 {
		t.Errorf("Expected default step size 30, got %d", sched.StepSize)
	}
	if sched.Gamma != 0.1 {
		t.Errorf("Expected default gamma 0.1, got %f", sched.Gamma)
	}
}
