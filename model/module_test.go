package model

import (
	"testing"

	"monodepth/tensor"
)

func TestConv2dForwardShape(t *testing.T) {
	tensor.SetRandomSeed(1)
	conv, err := NewConv2d(3, 8, 3, 2, 1)
	if err != nil {
		t.Fatalf("NewConv2d failed: %v", err)
	}

	input, _ := tensor.Zeros([]int{2, 3, 8, 8}, tensor.Float32, tensor.CPU)
	out, err := conv.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	want := []int{2, 8, 4, 4}
	for i, d := range want {
		if out.Shape[i] != d {
			t.Fatalf("output shape %v, want %v", out.Shape, want)
		}
	}
}

func TestConv2dParameters(t *testing.T) {
	tensor.SetRandomSeed(1)
	conv, err := NewConv2d(3, 4, 3, 1, 1)
	if err != nil {
		t.Fatalf("NewConv2d failed: %v", err)
	}

	params := conv.Parameters()
	if len(params) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(params))
	}
	if !params[0].RequiresGrad() || !params[1].RequiresGrad() {
		t.Error("conv parameters should require gradients")
	}
	if params[0].NumElems != 4*3*3*3 {
		t.Errorf("weight has %d elements, want %d", params[0].NumElems, 4*3*3*3)
	}
	if params[1].NumElems != 4 {
		t.Errorf("bias has %d elements, want 4", params[1].NumElems)
	}
}

func TestConv2dChannelMismatch(t *testing.T) {
	tensor.SetRandomSeed(1)
	conv, _ := NewConv2d(3, 4, 3, 1, 1)
	input, _ := tensor.Zeros([]int{1, 5, 4, 4}, tensor.Float32, tensor.CPU)
	if _, err := conv.Forward(input); err == nil {
		t.Error("expected channel mismatch error")
	}
}

func TestSequentialComposition(t *testing.T) {
	tensor.SetRandomSeed(1)
	conv, _ := NewConv2d(1, 2, 3, 1, 1)
	net := NewSequential(conv, NewReLU(), NewAvgPool2d(2))

	input, _ := tensor.Ones([]int{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	out, err := net.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	want := []int{1, 2, 2, 2}
	for i, d := range want {
		if out.Shape[i] != d {
			t.Fatalf("output shape %v, want %v", out.Shape, want)
		}
	}

	if len(net.Parameters()) != 2 {
		t.Errorf("expected 2 parameters from the conv layer, got %d", len(net.Parameters()))
	}
}

func TestTrainEvalPropagation(t *testing.T) {
	tensor.SetRandomSeed(1)
	conv, _ := NewConv2d(1, 1, 3, 1, 1)
	net := NewSequential(conv, NewReLU())

	net.Train()
	if !net.IsTraining() || !conv.IsTraining() {
		t.Error("Train should propagate to children")
	}
	net.Eval()
	if net.IsTraining() || conv.IsTraining() {
		t.Error("Eval should propagate to children")
	}
}

func TestUpsampleLayer(t *testing.T) {
	up := NewUpsample(2)
	input, _ := tensor.Ones([]int{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	out, err := up.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if out.Shape[2] != 4 || out.Shape[3] != 4 {
		t.Errorf("output shape %v, want [1 1 4 4]", out.Shape)
	}
	if len(up.Parameters()) != 0 {
		t.Error("upsample should have no parameters")
	}
}

func TestParameterCount(t *testing.T) {
	tensor.SetRandomSeed(1)
	conv, _ := NewConv2d(2, 3, 3, 1, 1)
	want := 3*2*3*3 + 3
	if got := ParameterCount(conv); got != want {
		t.Errorf("ParameterCount = %d, want %d", got, want)
	}
}

func TestTrainableParametersFiltersFrozen(t *testing.T) {
	tensor.SetRandomSeed(1)
	conv, _ := NewConv2d(1, 1, 3, 1, 1)
	conv.Bias.SetRequiresGrad(false)

	trainable := TrainableParameters(conv)
	if len(trainable) != 1 {
		t.Fatalf("expected 1 trainable parameter, got %d", len(trainable))
	}
	if trainable[0] != conv.Weight {
		t.Error("trainable parameter should be the weight")
	}
}
