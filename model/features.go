package model

import (
	"fmt"

	"monodepth/tensor"
)

// FeatureNet is a frozen VGG-style convolutional stack used as a
// perceptual feature extractor. Its parameters never require gradients,
// so the autograd graph flows through it without touching its weights.
// Relu2_2 exposes the activation after the second convolution block,
// the mid-level feature the perceptual loss compares.
type FeatureNet struct {
	baseModule
	conv1 *Conv2d
	conv2 *Conv2d
	conv3 *Conv2d
}

// NewFeatureNet builds a frozen extractor for the given number of input
// channels. Weights come from the global seeded source; call
// tensor.SetRandomSeed beforehand for reproducible features.
func NewFeatureNet(inChannels int) (*FeatureNet, error) {
	conv1, err := NewConv2d(inChannels, 8, 3, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build feature conv1: %v", err)
	}
	conv2, err := NewConv2d(8, 8, 3, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build feature conv2: %v", err)
	}
	conv3, err := NewConv2d(8, 16, 3, 2, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to build feature conv3: %v", err)
	}

	f := &FeatureNet{conv1: conv1, conv2: conv2, conv3: conv3}
	for _, p := range f.Parameters() {
		p.SetRequiresGrad(false)
	}
	return f, nil
}

// Relu2_2 returns the activation after the second convolution block.
func (f *FeatureNet) Relu2_2(input *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := f.conv1.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("feature conv1 failed: %v", err)
	}
	out = tensor.ReLUAutograd(out)

	out, err = f.conv2.Forward(out)
	if err != nil {
		return nil, fmt.Errorf("feature conv2 failed: %v", err)
	}
	return tensor.ReLUAutograd(out), nil
}

// Forward runs the full stack, one block past Relu2_2.
func (f *FeatureNet) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := f.Relu2_2(input)
	if err != nil {
		return nil, err
	}
	out, err = f.conv3.Forward(out)
	if err != nil {
		return nil, fmt.Errorf("feature conv3 failed: %v", err)
	}
	return tensor.ReLUAutograd(out), nil
}

func (f *FeatureNet) Parameters() []*tensor.Tensor {
	params := f.conv1.Parameters()
	params = append(params, f.conv2.Parameters()...)
	return append(params, f.conv3.Parameters()...)
}
