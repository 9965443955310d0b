package tensor

import (
	"fmt"
	"math"
)

// Elementwise binary operations accept tensors of identical shape, or
// one single-element tensor which is broadcast against the other
// operand. That covers everything the training path needs; general
// NumPy-style broadcasting is deliberately out of scope.

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("dtype mismatch: %s vs %s", t1.DType, t2.DType)
	}
	if t1.Device != t2.Device {
		return fmt.Errorf("device mismatch: %s vs %s", t1.Device, t2.Device)
	}
	if !sameShape(t1.Shape, t2.Shape) && t1.NumElems != 1 && t2.NumElems != 1 {
		return fmt.Errorf("shape mismatch: %v vs %v", t1.Shape, t2.Shape)
	}
	return nil
}

func elementwise(t1, t2 *Tensor, f func(a, b float32) float32) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	if t1.DType != Float32 {
		return nil, fmt.Errorf("elementwise ops only support Float32 tensors, got %s", t1.DType)
	}

	// Broadcast the single-element operand if present.
	outShape := t1.Shape
	if t1.NumElems == 1 && t2.NumElems != 1 {
		outShape = t2.Shape
	}

	out, err := Zeros(outShape, Float32, t1.Device)
	if err != nil {
		return nil, err
	}

	a := t1.Data.([]float32)
	b := t2.Data.([]float32)
	dst := out.Data.([]float32)

	switch {
	case t1.NumElems == 1 && t2.NumElems != 1:
		for i := range dst {
			dst[i] = f(a[0], b[i])
		}
	case t2.NumElems == 1 && t1.NumElems != 1:
		for i := range dst {
			dst[i] = f(a[i], b[0])
		}
	default:
		for i := range dst {
			dst[i] = f(a[i], b[i])
		}
	}

	return out, nil
}

// Add returns t1 + t2 elementwise.
func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a + b })
}

// Sub returns t1 - t2 elementwise.
func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a - b })
}

// Mul returns t1 * t2 elementwise.
func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a * b })
}

// Div returns t1 / t2 elementwise.
func Div(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a / b })
}

func unary(t *Tensor, f func(v float32) float32) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("unary ops only support Float32 tensors, got %s", t.DType)
	}
	out, err := Zeros(t.Shape, Float32, t.Device)
	if err != nil {
		return nil, err
	}
	src := t.Data.([]float32)
	dst := out.Data.([]float32)
	for i := range src {
		dst[i] = f(src[i])
	}
	return out, nil
}

// ReLU returns max(0, x) elementwise.
func ReLU(t *Tensor) (*Tensor, error) {
	return unary(t, func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	})
}

// Abs returns |x| elementwise.
func Abs(t *Tensor) (*Tensor, error) {
	return unary(t, func(v float32) float32 {
		if v < 0 {
			return -v
		}
		return v
	})
}

// Sqrt returns the elementwise square root; negative inputs map to NaN.
func Sqrt(t *Tensor) (*Tensor, error) {
	return unary(t, func(v float32) float32 {
		return float32(math.Sqrt(float64(v)))
	})
}

// Scale returns t * s for a plain scalar, without touching the
// autograd graph.
func Scale(t *Tensor, s float64) (*Tensor, error) {
	return unary(t, func(v float32) float32 { return v * float32(s) })
}
