package optimizer

import (
	"math"
	"testing"

	"monodepth/tensor"
)

func paramWithGrad(t *testing.T, data, grad []float32) *tensor.Tensor {
	t.Helper()
	p, err := tensor.NewTensor([]int{len(data)}, tensor.Float32, tensor.CPU, data)
	if err != nil {
		t.Fatalf("failed to create parameter: %v", err)
	}
	p.SetRequiresGrad(true)

	// Route a gradient onto the parameter through the graph.
	g, err := tensor.NewTensor([]int{len(grad)}, tensor.Float32, tensor.CPU, grad)
	if err != nil {
		t.Fatalf("failed to create gradient source: %v", err)
	}
	loss := tensor.MulAutograd(p, g)
	s := tensor.FromScalar(float64(len(data)), tensor.Float32, tensor.CPU)
	if err := tensor.MeanAutograd(tensor.MulAutograd(loss, s)).Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}
	return p
}

func TestAdamFirstStep(t *testing.T) {
	p := paramWithGrad(t, []float32{1, 2}, []float32{0.5, -0.5})

	config := DefaultAdamConfig()
	config.LR = 0.1
	adam, err := NewAdam(config, []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	if err := adam.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// With bias correction the first update moves each weight by
	// almost exactly lr in the gradient direction.
	w, _ := p.GetFloat32Data()
	if math.Abs(float64(w[0])-(1-0.1)) > 1e-3 {
		t.Errorf("w[0] = %f, want ~0.9", w[0])
	}
	if math.Abs(float64(w[1])-(2+0.1)) > 1e-3 {
		t.Errorf("w[1] = %f, want ~2.1", w[1])
	}
	if adam.StepCount() != 1 {
		t.Errorf("StepCount = %d, want 1", adam.StepCount())
	}
}

func TestAdamSkipsNilGradients(t *testing.T) {
	p, _ := tensor.NewTensor([]int{2}, tensor.Float32, tensor.CPU, []float32{1, 2})
	p.SetRequiresGrad(true)

	adam, err := NewAdam(DefaultAdamConfig(), []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	if err := adam.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	w, _ := p.GetFloat32Data()
	if w[0] != 1 || w[1] != 2 {
		t.Error("parameters without gradients must not move")
	}
}

func TestAdamLRAccessors(t *testing.T) {
	p := paramWithGrad(t, []float32{1}, []float32{1})
	adam, _ := NewAdam(DefaultAdamConfig(), []*tensor.Tensor{p})

	adam.SetLR(0.5)
	if adam.GetLR() != 0.5 {
		t.Errorf("GetLR = %f, want 0.5", adam.GetLR())
	}
}

func TestAdamStateRoundTrip(t *testing.T) {
	p := paramWithGrad(t, []float32{1, 2, 3}, []float32{0.1, 0.2, 0.3})

	config := DefaultAdamConfig()
	adam, _ := NewAdam(config, []*tensor.Tensor{p})
	if err := adam.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	state, err := adam.GetState()
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Type != "adam" || state.Steps != 1 {
		t.Fatalf("unexpected state header: type=%q steps=%d", state.Type, state.Steps)
	}

	// Fresh optimizer over an identically shaped parameter.
	q := paramWithGrad(t, []float32{1, 2, 3}, []float32{0.1, 0.2, 0.3})
	restored, _ := NewAdam(config, []*tensor.Tensor{q})
	if err := restored.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	restoredState, _ := restored.GetState()
	for i := range state.Parameters {
		for j := range state.Parameters[i].Moments {
			a := state.Parameters[i].Moments[j].Data
			b := restoredState.Parameters[i].Moments[j].Data
			for k := range a {
				if a[k] != b[k] {
					t.Fatalf("moment %d/%d element %d differs after round trip: %f vs %f", i, j, k, a[k], b[k])
				}
			}
		}
	}
	if restored.StepCount() != 1 {
		t.Errorf("restored StepCount = %d, want 1", restored.StepCount())
	}
}

func TestAdamLoadStateShapeMismatch(t *testing.T) {
	p := paramWithGrad(t, []float32{1, 2, 3}, []float32{1, 1, 1})
	adam, _ := NewAdam(DefaultAdamConfig(), []*tensor.Tensor{p})
	state, _ := adam.GetState()

	q := paramWithGrad(t, []float32{1, 2}, []float32{1, 1})
	other, _ := NewAdam(DefaultAdamConfig(), []*tensor.Tensor{q})
	if err := other.LoadState(state); err == nil {
		t.Error("expected shape mismatch error")
	}

	sgd, _ := NewSGD(DefaultSGDConfig(), []*tensor.Tensor{p})
	sgdState, _ := sgd.GetState()
	if err := adam.LoadState(sgdState); err == nil {
		t.Error("expected optimizer type mismatch error")
	}
}

func TestAdamZeroGrad(t *testing.T) {
	p := paramWithGrad(t, []float32{1, 2}, []float32{1, 1})
	adam, _ := NewAdam(DefaultAdamConfig(), []*tensor.Tensor{p})

	adam.ZeroGrad()
	g := p.Grad().Data.([]float32)
	for i, v := range g {
		if v != 0 {
			t.Errorf("grad[%d] = %f after ZeroGrad, want 0", i, v)
		}
	}
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	// Minimize f(w) = mean((w - target)^2) from a distance.
	target, _ := tensor.NewTensor([]int{2}, tensor.Float32, tensor.CPU, []float32{3, -2})
	w, _ := tensor.NewTensor([]int{2}, tensor.Float32, tensor.CPU, []float32{0, 0})
	w.SetRequiresGrad(true)

	config := DefaultAdamConfig()
	config.LR = 0.1
	adam, _ := NewAdam(config, []*tensor.Tensor{w})

	for i := 0; i < 300; i++ {
		adam.ZeroGrad()
		diff := tensor.SubAutograd(w, target)
		loss := tensor.MeanAutograd(tensor.MulAutograd(diff, diff))
		if err := loss.Backward(); err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
		if err := adam.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	data, _ := w.GetFloat32Data()
	if math.Abs(float64(data[0])-3) > 0.1 || math.Abs(float64(data[1])+2) > 0.1 {
		t.Errorf("w = %v after optimization, want ~[3 -2]", data)
	}
}

func TestAdamRejectsBadConfig(t *testing.T) {
	p := paramWithGrad(t, []float32{1}, []float32{1})

	bad := DefaultAdamConfig()
	bad.LR = 0
	if _, err := NewAdam(bad, []*tensor.Tensor{p}); err == nil {
		t.Error("expected error for zero learning rate")
	}

	bad = DefaultAdamConfig()
	bad.Beta1 = 1
	if _, err := NewAdam(bad, []*tensor.Tensor{p}); err == nil {
		t.Error("expected error for beta1 out of range")
	}

	if _, err := NewAdam(DefaultAdamConfig(), nil); err == nil {
		t.Error("expected error for empty parameter list")
	}
}
