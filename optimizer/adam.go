package optimizer

import (
	"fmt"
	"math"

	"monodepth/tensor"
)

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// DefaultAdamConfig returns the standard Adam hyperparameters.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LR:      0.001,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
	}
}

// Adam implements the Adam update rule with bias-corrected first and
// second moment estimates.
type Adam struct {
	config AdamConfig
	params []*tensor.Tensor
	m      [][]float32
	v      [][]float32
	steps  int
}

// NewAdam creates an Adam optimizer over the given parameter tensors.
func NewAdam(config AdamConfig, params []*tensor.Tensor) (*Adam, error) {
	if err := validateParams(params); err != nil {
		return nil, fmt.Errorf("adam: %v", err)
	}
	if config.LR <= 0 {
		return nil, fmt.Errorf("adam: learning rate must be positive, got %f", config.LR)
	}
	if config.Beta1 < 0 || config.Beta1 >= 1 || config.Beta2 < 0 || config.Beta2 >= 1 {
		return nil, fmt.Errorf("adam: betas must be in [0, 1), got (%f, %f)", config.Beta1, config.Beta2)
	}

	a := &Adam{
		config: config,
		params: params,
		m:      make([][]float32, len(params)),
		v:      make([][]float32, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float32, p.NumElems)
		a.v[i] = make([]float32, p.NumElems)
	}
	return a, nil
}

func (a *Adam) Step() error {
	a.steps++

	bc1 := 1.0 - math.Pow(a.config.Beta1, float64(a.steps))
	bc2 := 1.0 - math.Pow(a.config.Beta2, float64(a.steps))
	beta1 := float32(a.config.Beta1)
	beta2 := float32(a.config.Beta2)

	for i, p := range a.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		g, err := grad.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("adam: parameter %d gradient: %v", i, err)
		}
		w, err := p.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("adam: parameter %d: %v", i, err)
		}

		m, v := a.m[i], a.v[i]
		for j := range w {
			m[j] = beta1*m[j] + (1-beta1)*g[j]
			v[j] = beta2*v[j] + (1-beta2)*g[j]*g[j]

			mHat := float64(m[j]) / bc1
			vHat := float64(v[j]) / bc2
			w[j] -= float32(a.config.LR * mHat / (math.Sqrt(vHat) + a.config.Epsilon))
		}
	}
	return nil
}

func (a *Adam) ZeroGrad() {
	tensor.ZeroGrad(a.params)
}

func (a *Adam) GetLR() float64 {
	return a.config.LR
}

func (a *Adam) SetLR(lr float64) {
	a.config.LR = lr
}

func (a *Adam) StepCount() int {
	return a.steps
}

func (a *Adam) GetState() (*State, error) {
	state := &State{
		Type:       "adam",
		LR:         a.config.LR,
		Steps:      a.steps,
		Parameters: make([]ParameterState, len(a.params)),
	}
	for i, p := range a.params {
		state.Parameters[i] = ParameterState{
			Shape: append([]int(nil), p.Shape...),
			Moments: []MomentTensor{
				momentSnapshot(p.Shape, a.m[i]),
				momentSnapshot(p.Shape, a.v[i]),
			},
		}
	}
	return state, nil
}

func (a *Adam) LoadState(state *State) error {
	if err := checkStateShapes(state, "adam", a.params, 2); err != nil {
		return fmt.Errorf("adam: %v", err)
	}
	for i, ps := range state.Parameters {
		copy(a.m[i], ps.Moments[0].Data)
		copy(a.v[i], ps.Moments[1].Data)
	}
	a.config.LR = state.LR
	a.steps = state.Steps
	return nil
}
