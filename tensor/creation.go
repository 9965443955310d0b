package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Global random source for deterministic initialization
var globalRng = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight
// initialization.
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// NewTensor creates a tensor from existing data. The data slice must
// match the dtype and contain exactly the number of elements the shape
// implies. A nil data argument allocates zeroed storage.
func NewTensor(shape []int, dtype DType, device DeviceType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if device != CPU {
		return nil, fmt.Errorf("device %s is not available in this build", device)
	}

	numElems := calculateNumElements(shape)

	t := &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		Device:   device,
		NumElems: numElems,
	}

	if data == nil {
		switch dtype {
		case Float32:
			t.Data = make([]float32, numElems)
		case Int32:
			t.Data = make([]int32, numElems)
		default:
			return nil, fmt.Errorf("unsupported dtype: %s", dtype)
		}
		return t, nil
	}

	switch dtype {
	case Float32:
		d, ok := data.([]float32)
		if !ok {
			return nil, fmt.Errorf("expected []float32 data for Float32 tensor, got %T", data)
		}
		if len(d) != numElems {
			return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), shape, numElems)
		}
		t.Data = d
	case Int32:
		d, ok := data.([]int32)
		if !ok {
			return nil, fmt.Errorf("expected []int32 data for Int32 tensor, got %T", data)
		}
		if len(d) != numElems {
			return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), shape, numElems)
		}
		t.Data = d
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}

	return t, nil
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	return NewTensor(shape, dtype, device, nil)
}

// Ones creates a tensor filled with ones.
func Ones(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	t, err := NewTensor(shape, dtype, device, nil)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		data := t.Data.([]float32)
		for i := range data {
			data[i] = 1
		}
	case Int32:
		data := t.Data.([]int32)
		for i := range data {
			data[i] = 1
		}
	}
	return t, nil
}

// Full creates a tensor filled with a constant value.
func Full(shape []int, value float64, dtype DType, device DeviceType) (*Tensor, error) {
	t, err := NewTensor(shape, dtype, device, nil)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		data := t.Data.([]float32)
		for i := range data {
			data[i] = float32(value)
		}
	case Int32:
		data := t.Data.([]int32)
		for i := range data {
			data[i] = int32(value)
		}
	}
	return t, nil
}

// FromScalar creates a single-element tensor from a float64 value.
func FromScalar(value float64, dtype DType, device DeviceType) *Tensor {
	t, err := Full([]int{1}, value, dtype, device)
	if err != nil {
		panic(fmt.Sprintf("FromScalar failed: %v", err))
	}
	return t
}

// RandomNormal creates a Float32 tensor with normally distributed
// values drawn from the global seeded source.
func RandomNormal(shape []int, mean, std float32, device DeviceType) (*Tensor, error) {
	t, err := NewTensor(shape, Float32, device, nil)
	if err != nil {
		return nil, err
	}
	data := t.Data.([]float32)
	for i := range data {
		data[i] = mean + std*float32(globalRng.NormFloat64())
	}
	return t, nil
}

// RandomUniform creates a Float32 tensor with values drawn uniformly
// from [-bound, bound], the range used by Xavier initialization.
func RandomUniform(shape []int, bound float64, device DeviceType) (*Tensor, error) {
	t, err := NewTensor(shape, Float32, device, nil)
	if err != nil {
		return nil, err
	}
	data := t.Data.([]float32)
	for i := range data {
		data[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}
	return t, nil
}

// XavierUniform creates a weight tensor initialized with the
// Xavier/Glorot uniform scheme for the given fan-in and fan-out.
func XavierUniform(shape []int, fanIn, fanOut int, device DeviceType) (*Tensor, error) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return RandomUniform(shape, bound, device)
}
