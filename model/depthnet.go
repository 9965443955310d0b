package model

import (
	"fmt"

	"monodepth/tensor"
)

// DepthNet is a small convolutional encoder-decoder mapping an RGB
// batch [N, 3, H, W] to a depth batch [N, 1, H/2, W/2]. The encoder
// downsamples twice with strided convolutions, the decoder upsamples
// once, so predictions come out at half the input resolution. Training
// on pre-resized data uses DepthNet directly; full-resolution runs wrap
// it in UpsamplingDepthNet.
type DepthNet struct {
	baseModule
	net *Sequential
}

// NewDepthNet builds the encoder-decoder with freshly initialized
// weights.
func NewDepthNet() (*DepthNet, error) {
	enc1, err := NewConv2d(3, 8, 3, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build encoder stage 1: %v", err)
	}
	enc2, err := NewConv2d(8, 16, 3, 2, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build encoder stage 2: %v", err)
	}
	enc3, err := NewConv2d(16, 16, 3, 2, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build encoder stage 3: %v", err)
	}
	dec, err := NewConv2d(16, 8, 3, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder: %v", err)
	}
	head, err := NewConv2d(8, 1, 3, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build output head: %v", err)
	}

	net := NewSequential(
		enc1, NewReLU(),
		enc2, NewReLU(),
		enc3, NewReLU(),
		NewUpsample(2),
		dec, NewReLU(),
		head, NewReLU(),
	)
	return &DepthNet{net: net}, nil
}

func (d *DepthNet) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 || input.Shape[1] != 3 {
		return nil, fmt.Errorf("depthnet expects [N, 3, H, W] input, got %v", input.Shape)
	}
	return d.net.Forward(input)
}

func (d *DepthNet) Parameters() []*tensor.Tensor {
	return d.net.Parameters()
}

func (d *DepthNet) Train() { d.net.Train() }
func (d *DepthNet) Eval()  { d.net.Eval() }

func (d *DepthNet) IsTraining() bool { return d.net.IsTraining() }

// UpsamplingDepthNet decorates a base depth network with a learned
// upsampling head that doubles the spatial resolution of its output.
// It restores full-resolution predictions when the base network emits
// half-resolution maps.
type UpsamplingDepthNet struct {
	baseModule
	base Module
	up   *Upsample
	head *Conv2d
}

// NewUpsamplingDepthNet wraps base with an upsample stage and a 1-channel
// refinement convolution.
func NewUpsamplingDepthNet(base Module) (*UpsamplingDepthNet, error) {
	head, err := NewConv2d(1, 1, 3, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build upsampling head: %v", err)
	}
	return &UpsamplingDepthNet{
		base: base,
		up:   NewUpsample(2),
		head: head,
	}, nil
}

func (u *UpsamplingDepthNet) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := u.base.Forward(input)
	if err != nil {
		return nil, err
	}
	out, err = u.up.Forward(out)
	if err != nil {
		return nil, err
	}
	out, err = u.head.Forward(out)
	if err != nil {
		return nil, err
	}
	return tensor.ReLUAutograd(out), nil
}

func (u *UpsamplingDepthNet) Parameters() []*tensor.Tensor {
	return append(u.base.Parameters(), u.head.Parameters()...)
}

func (u *UpsamplingDepthNet) Train() {
	u.baseModule.Train()
	u.base.Train()
	u.head.Train()
}

func (u *UpsamplingDepthNet) Eval() {
	u.baseModule.Eval()
	u.base.Eval()
	u.head.Eval()
}
