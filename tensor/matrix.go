package tensor

import (
	"fmt"
)

// MatMul multiplies two 2D tensors: [m, k] @ [k, n] -> [m, n].
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if t1.DType != Float32 || t2.DType != Float32 {
		return nil, fmt.Errorf("MatMul only supports Float32 tensors")
	}
	if len(t1.Shape) != 2 || len(t2.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2D tensors, got %v and %v", t1.Shape, t2.Shape)
	}
	m, k := t1.Shape[0], t1.Shape[1]
	k2, n := t2.Shape[0], t2.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("inner dimension mismatch: %v @ %v", t1.Shape, t2.Shape)
	}

	out, err := Zeros([]int{m, n}, Float32, t1.Device)
	if err != nil {
		return nil, err
	}

	a := t1.Data.([]float32)
	b := t2.Data.([]float32)
	c := out.Data.([]float32)

	for i := 0; i < m; i++ {
		for l := 0; l < k; l++ {
			av := a[i*k+l]
			if av == 0 {
				continue
			}
			rowB := b[l*n : (l+1)*n]
			rowC := c[i*n : (i+1)*n]
			for j := range rowB {
				rowC[j] += av * rowB[j]
			}
		}
	}

	return out, nil
}

// Transpose swaps two dimensions of a tensor, copying the data.
func Transpose(t *Tensor, dim0, dim1 int) (*Tensor, error) {
	nd := len(t.Shape)
	if dim0 < 0 || dim0 >= nd || dim1 < 0 || dim1 >= nd {
		return nil, fmt.Errorf("transpose dims (%d, %d) out of range for %dD tensor", dim0, dim1, nd)
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("Transpose only supports Float32 tensors")
	}

	newShape := append([]int(nil), t.Shape...)
	newShape[dim0], newShape[dim1] = newShape[dim1], newShape[dim0]

	out, err := Zeros(newShape, Float32, t.Device)
	if err != nil {
		return nil, err
	}

	src := t.Data.([]float32)
	dst := out.Data.([]float32)
	coords := make([]int, nd)
	for i := 0; i < t.NumElems; i++ {
		rem := i
		for d := 0; d < nd; d++ {
			coords[d] = rem / t.Strides[d]
			rem %= t.Strides[d]
		}
		coords[dim0], coords[dim1] = coords[dim1], coords[dim0]
		j := 0
		for d := 0; d < nd; d++ {
			j += coords[d] * out.Strides[d]
		}
		dst[j] = src[i]
	}

	return out, nil
}

// Sum reduces all elements to a single-element tensor.
func Sum(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Sum only supports Float32 tensors")
	}
	data := t.Data.([]float32)
	var total float32
	for _, v := range data {
		total += v
	}
	return NewTensor([]int{1}, Float32, t.Device, []float32{total})
}

// Mean reduces all elements to their arithmetic mean.
func Mean(t *Tensor) (*Tensor, error) {
	s, err := Sum(t)
	if err != nil {
		return nil, err
	}
	return Scale(s, 1.0/float64(t.NumElems))
}
