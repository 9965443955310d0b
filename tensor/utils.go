package tensor

import (
	"fmt"
)

// Reshape returns a tensor sharing the same data with a different
// shape. One dimension may be -1 to infer its size.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	newNumElems := 1
	inferIdx := -1

	for i, dim := range newShape {
		switch {
		case dim == -1:
			if inferIdx >= 0 {
				return nil, fmt.Errorf("only one dimension can be -1")
			}
			inferIdx = i
		case dim <= 0:
			return nil, fmt.Errorf("invalid dimension %d at index %d", dim, i)
		default:
			newNumElems *= dim
		}
	}

	shape := append([]int(nil), newShape...)
	if inferIdx >= 0 {
		if t.NumElems%newNumElems != 0 {
			return nil, fmt.Errorf("cannot infer -1 dimension: %d elements not divisible by %d", t.NumElems, newNumElems)
		}
		shape[inferIdx] = t.NumElems / newNumElems
		newNumElems = t.NumElems
	}

	if newNumElems != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v", t.NumElems, newShape)
	}

	return &Tensor{
		Shape:        shape,
		Strides:      calculateStrides(shape),
		DType:        t.DType,
		Device:       t.Device,
		Data:         t.Data,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}, nil
}

// Clone returns a deep copy of the tensor's data. The clone carries no
// gradient and no autograd history.
func (t *Tensor) Clone() (*Tensor, error) {
	clone := &Tensor{
		Shape:        append([]int(nil), t.Shape...),
		Strides:      append([]int(nil), t.Strides...),
		DType:        t.DType,
		Device:       t.Device,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}

	switch t.DType {
	case Float32:
		data, ok := t.Data.([]float32)
		if !ok {
			return nil, fmt.Errorf("tensor has nil or mistyped data")
		}
		cloneData := make([]float32, len(data))
		copy(cloneData, data)
		clone.Data = cloneData
	case Int32:
		data, ok := t.Data.([]int32)
		if !ok {
			return nil, fmt.Errorf("tensor has nil or mistyped data")
		}
		cloneData := make([]int32, len(data))
		copy(cloneData, data)
		clone.Data = cloneData
	default:
		return nil, fmt.Errorf("unsupported dtype for Clone: %s", t.DType)
	}

	return clone, nil
}

// GetFloat32Data returns the backing float32 slice.
func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor dtype is %s, not Float32", t.DType)
	}
	return t.Data.([]float32), nil
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("Item can only be called on single-element tensors, got %d elements", t.NumElems)
	}
	switch t.DType {
	case Float32:
		return float64(t.Data.([]float32)[0]), nil
	case Int32:
		return float64(t.Data.([]int32)[0]), nil
	default:
		return 0, fmt.Errorf("unsupported dtype for Item: %s", t.DType)
	}
}

// At returns the element at the given coordinates of a Float32 tensor.
func (t *Tensor) At(indices ...int) (float32, error) {
	if t.DType != Float32 {
		return 0, fmt.Errorf("At only supports Float32 tensors")
	}
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}
	idx := 0
	for i, ix := range indices {
		if ix < 0 || ix >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of bounds for dimension %d (size %d)", ix, i, t.Shape[i])
		}
		idx += ix * t.Strides[i]
	}
	return t.Data.([]float32)[idx], nil
}

// Equal reports whether two tensors have identical shape, dtype and
// contents.
func (t *Tensor) Equal(other *Tensor) bool {
	if t.DType != other.DType || !sameShape(t.Shape, other.Shape) {
		return false
	}
	switch t.DType {
	case Float32:
		a := t.Data.([]float32)
		b := other.Data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case Int32:
		a := t.Data.([]int32)
		b := other.Data.([]int32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	default:
		return false
	}
	return true
}

// MinMax returns the smallest and largest values of a Float32 tensor.
func (t *Tensor) MinMax() (float32, float32, error) {
	data, err := t.GetFloat32Data()
	if err != nil {
		return 0, 0, err
	}
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("tensor has no elements")
	}
	mn, mx := data[0], data[0]
	for _, v := range data[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx, nil
}

// ZeroGrad zeroes the gradient buffers of the given tensors.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.requiresGrad && t.grad != nil {
			data := t.grad.Data.([]float32)
			for i := range data {
				data[i] = 0
			}
		}
	}
}

// SetData replaces the tensor's contents with the values from data,
// which must match the element count exactly.
func (t *Tensor) SetData(data []float32) error {
	if t.DType != Float32 {
		return fmt.Errorf("SetData only supports Float32 tensors")
	}
	dst := t.Data.([]float32)
	if len(data) != len(dst) {
		return fmt.Errorf("data length %d does not match tensor size %d", len(data), len(dst))
	}
	copy(dst, data)
	return nil
}
