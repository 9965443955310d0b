package optimizer

import (
	"fmt"

	"monodepth/tensor"
)

// SGDConfig holds configuration for stochastic gradient descent.
type SGDConfig struct {
	LR       float64
	Momentum float64
}

// DefaultSGDConfig returns plain SGD with a conservative momentum.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LR:       0.01,
		Momentum: 0.9,
	}
}

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	config   SGDConfig
	params   []*tensor.Tensor
	velocity [][]float32
	steps    int
}

// NewSGD creates an SGD optimizer over the given parameter tensors.
func NewSGD(config SGDConfig, params []*tensor.Tensor) (*SGD, error) {
	if err := validateParams(params); err != nil {
		return nil, fmt.Errorf("sgd: %v", err)
	}
	if config.LR <= 0 {
		return nil, fmt.Errorf("sgd: learning rate must be positive, got %f", config.LR)
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, fmt.Errorf("sgd: momentum must be in [0, 1), got %f", config.Momentum)
	}

	s := &SGD{
		config:   config,
		params:   params,
		velocity: make([][]float32, len(params)),
	}
	for i, p := range params {
		s.velocity[i] = make([]float32, p.NumElems)
	}
	return s, nil
}

func (s *SGD) Step() error {
	s.steps++
	lr := float32(s.config.LR)
	momentum := float32(s.config.Momentum)

	for i, p := range s.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		g, err := grad.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("sgd: parameter %d gradient: %v", i, err)
		}
		w, err := p.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("sgd: parameter %d: %v", i, err)
		}

		vel := s.velocity[i]
		for j := range w {
			vel[j] = momentum*vel[j] + g[j]
			w[j] -= lr * vel[j]
		}
	}
	return nil
}

func (s *SGD) ZeroGrad() {
	tensor.ZeroGrad(s.params)
}

func (s *SGD) GetLR() float64 {
	return s.config.LR
}

func (s *SGD) SetLR(lr float64) {
	s.config.LR = lr
}

func (s *SGD) StepCount() int {
	return s.steps
}

func (s *SGD) GetState() (*State, error) {
	state := &State{
		Type:       "sgd",
		LR:         s.config.LR,
		Steps:      s.steps,
		Parameters: make([]ParameterState, len(s.params)),
	}
	for i, p := range s.params {
		state.Parameters[i] = ParameterState{
			Shape:   append([]int(nil), p.Shape...),
			Moments: []MomentTensor{momentSnapshot(p.Shape, s.velocity[i])},
		}
	}
	return state, nil
}

func (s *SGD) LoadState(state *State) error {
	if err := checkStateShapes(state, "sgd", s.params, 1); err != nil {
		return fmt.Errorf("sgd: %v", err)
	}
	for i, ps := range state.Parameters {
		copy(s.velocity[i], ps.Moments[0].Data)
	}
	s.config.LR = state.LR
	s.steps = state.Steps
	return nil
}
