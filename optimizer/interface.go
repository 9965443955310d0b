package optimizer

import (
	"fmt"

	"monodepth/tensor"
)

// Optimizer updates a fixed set of parameter tensors in place from the
// gradients accumulated on them. Implementations address parameters
// positionally, in the order they were handed to the constructor; the
// same order is used by GetState/LoadState.
type Optimizer interface {
	// Step applies one update from the current gradients.
	Step() error
	// ZeroGrad clears the gradients of all managed parameters.
	ZeroGrad()
	// GetLR returns the current learning rate.
	GetLR() float64
	// SetLR replaces the learning rate, as schedules do between epochs.
	SetLR(lr float64)
	// StepCount reports how many updates have been applied.
	StepCount() int
	// GetState snapshots the optimizer internals for checkpointing.
	GetState() (*State, error)
	// LoadState restores internals from a snapshot. Shapes must match
	// the managed parameters exactly.
	LoadState(state *State) error
}

// MomentTensor is one serialized per-parameter state buffer.
type MomentTensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// ParameterState carries the per-parameter moment buffers of one
// parameter tensor.
type ParameterState struct {
	Shape   []int          `json:"shape"`
	Moments []MomentTensor `json:"moments"`
}

// State is a serializable snapshot of an optimizer's internals.
type State struct {
	Type       string           `json:"type"`
	LR         float64          `json:"lr"`
	Steps      int              `json:"steps"`
	Parameters []ParameterState `json:"parameters"`
}

func validateParams(params []*tensor.Tensor) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameters provided")
	}
	for i, p := range params {
		if p == nil {
			return fmt.Errorf("parameter %d is nil", i)
		}
		if p.DType != tensor.Float32 {
			return fmt.Errorf("parameter %d has dtype %s, only Float32 is supported", i, p.DType)
		}
	}
	return nil
}

// checkStateShapes verifies a snapshot lines up with the managed
// parameters before any buffer is touched, so a failed load leaves the
// optimizer unchanged.
func checkStateShapes(state *State, wantType string, params []*tensor.Tensor, momentsPerParam int) error {
	if state == nil {
		return fmt.Errorf("state is nil")
	}
	if state.Type != wantType {
		return fmt.Errorf("state type %q does not match optimizer type %q", state.Type, wantType)
	}
	if len(state.Parameters) != len(params) {
		return fmt.Errorf("state has %d parameters, optimizer manages %d", len(state.Parameters), len(params))
	}
	for i, ps := range state.Parameters {
		if !shapeEqual(ps.Shape, params[i].Shape) {
			return fmt.Errorf("parameter %d shape mismatch: state %v, model %v", i, ps.Shape, params[i].Shape)
		}
		if len(ps.Moments) != momentsPerParam {
			return fmt.Errorf("parameter %d has %d moment buffers, expected %d", i, len(ps.Moments), momentsPerParam)
		}
		for j, m := range ps.Moments {
			if len(m.Data) != params[i].NumElems {
				return fmt.Errorf("parameter %d moment %d has %d elements, expected %d", i, j, len(m.Data), params[i].NumElems)
			}
		}
	}
	return nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func momentSnapshot(shape []int, data []float32) MomentTensor {
	return MomentTensor{
		Shape: append([]int(nil), shape...),
		Data:  append([]float32(nil), data...),
	}
}
