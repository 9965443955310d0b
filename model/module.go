package model

import (
	"fmt"

	"monodepth/tensor"
)

// Module is a composable network component. Forward maps a batch to a
// batch; Parameters enumerates the learnable tensors in a stable order
// so optimizers and checkpoints can address them positionally.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	Train()
	Eval()
	IsTraining() bool
}

// ParameterCount returns the total number of scalar parameters of a
// module.
func ParameterCount(m Module) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.NumElems
	}
	return total
}

// TrainableParameters filters a module's parameters down to those that
// require gradients.
func TrainableParameters(m Module) []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, p := range m.Parameters() {
		if p.RequiresGrad() {
			params = append(params, p)
		}
	}
	return params
}

type baseModule struct {
	training bool
}

func (b *baseModule) Train()           { b.training = true }
func (b *baseModule) Eval()            { b.training = false }
func (b *baseModule) IsTraining() bool { return b.training }

// Conv2d is a 2D convolution layer over NCHW batches.
type Conv2d struct {
	baseModule
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
	Stride int
	Pad    int
}

// NewConv2d creates a convolution layer with Xavier-initialized weights
// and zero bias.
func NewConv2d(inChannels, outChannels, kernel, stride, pad int) (*Conv2d, error) {
	if inChannels <= 0 || outChannels <= 0 || kernel <= 0 {
		return nil, fmt.Errorf("invalid conv2d dimensions: in=%d out=%d kernel=%d", inChannels, outChannels, kernel)
	}

	fanIn := inChannels * kernel * kernel
	fanOut := outChannels * kernel * kernel
	weight, err := tensor.XavierUniform([]int{outChannels, inChannels, kernel, kernel}, fanIn, fanOut, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize conv2d weight: %v", err)
	}
	weight.SetRequiresGrad(true)

	bias, err := tensor.Zeros([]int{outChannels}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize conv2d bias: %v", err)
	}
	bias.SetRequiresGrad(true)

	return &Conv2d{
		Weight: weight,
		Bias:   bias,
		Stride: stride,
		Pad:    pad,
	}, nil
}

func (c *Conv2d) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("conv2d expects 4D input [N, C, H, W], got %v", input.Shape)
	}
	if input.Shape[1] != c.Weight.Shape[1] {
		return nil, fmt.Errorf("conv2d expects %d input channels, got %d", c.Weight.Shape[1], input.Shape[1])
	}
	return tensor.Conv2DAutograd(input, c.Weight, c.Bias, c.Stride, c.Pad), nil
}

func (c *Conv2d) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{c.Weight, c.Bias}
}

// ReLU is a parameter-free rectified linear activation layer.
type ReLU struct {
	baseModule
}

func NewReLU() *ReLU {
	return &ReLU{}
}

func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReLUAutograd(input), nil
}

func (r *ReLU) Parameters() []*tensor.Tensor {
	return nil
}

// Upsample scales spatial dimensions by an integer factor using
// nearest-neighbor interpolation.
type Upsample struct {
	baseModule
	Scale int
}

func NewUpsample(scale int) *Upsample {
	return &Upsample{Scale: scale}
}

func (u *Upsample) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("upsample expects 4D input [N, C, H, W], got %v", input.Shape)
	}
	return tensor.UpsampleNearestAutograd(input, u.Scale), nil
}

func (u *Upsample) Parameters() []*tensor.Tensor {
	return nil
}

// AvgPool2d performs non-overlapping average pooling with a square
// kernel.
type AvgPool2d struct {
	baseModule
	Kernel int
}

func NewAvgPool2d(kernel int) *AvgPool2d {
	return &AvgPool2d{Kernel: kernel}
}

func (a *AvgPool2d) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("avgpool2d expects 4D input [N, C, H, W], got %v", input.Shape)
	}
	return tensor.AvgPool2DAutograd(input, a.Kernel), nil
}

func (a *AvgPool2d) Parameters() []*tensor.Tensor {
	return nil
}

// Sequential chains modules, feeding each module's output to the next.
type Sequential struct {
	baseModule
	modules []Module
}

func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := input
	var err error
	for i, m := range s.modules {
		out, err = m.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("sequential module %d failed: %v", i, err)
		}
	}
	return out, nil
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

func (s *Sequential) Train() {
	s.baseModule.Train()
	for _, m := range s.modules {
		m.Train()
	}
}

func (s *Sequential) Eval() {
	s.baseModule.Eval()
	for _, m := range s.modules {
		m.Eval()
	}
}
