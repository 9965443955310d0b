package model

import (
	"fmt"

	"monodepth/tensor"
)

func checkLossShapes(pred, target *tensor.Tensor) error {
	if len(pred.Shape) != len(target.Shape) {
		return fmt.Errorf("rank mismatch: %v vs %v", pred.Shape, target.Shape)
	}
	for i := range pred.Shape {
		if pred.Shape[i] != target.Shape[i] {
			return fmt.Errorf("shape mismatch: %v vs %v", pred.Shape, target.Shape)
		}
	}
	return nil
}

// CombinedLoss is the per-pixel training loss: the mean absolute error
// plus the mean squared error between prediction and target. The result
// is a scalar tensor that participates in the autograd graph.
func CombinedLoss(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(pred, target); err != nil {
		return nil, fmt.Errorf("combined loss: %v", err)
	}

	diff := tensor.SubAutograd(pred, target)
	l1 := tensor.MeanAutograd(tensor.AbsAutograd(diff))
	l2 := tensor.MeanAutograd(tensor.MulAutograd(diff, diff))
	return tensor.AddAutograd(l1, l2), nil
}

// MeanL2Loss is the mean squared error between two tensors, used as the
// perceptual feature loss over extractor activations.
func MeanL2Loss(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(a, b); err != nil {
		return nil, fmt.Errorf("mean l2 loss: %v", err)
	}

	diff := tensor.SubAutograd(a, b)
	return tensor.MeanAutograd(tensor.MulAutograd(diff, diff)), nil
}
