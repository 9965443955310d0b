package tensor

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNewTensor(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	tensor, err := NewTensor([]int{2, 3}, Float32, CPU, data)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}

	if tensor.NumElems != 6 {
		t.Errorf("expected 6 elements, got %d", tensor.NumElems)
	}
	if tensor.Strides[0] != 3 || tensor.Strides[1] != 1 {
		t.Errorf("unexpected strides: %v", tensor.Strides)
	}

	if _, err := NewTensor([]int{2, 3}, Float32, CPU, []float32{1, 2}); err == nil {
		t.Error("expected error for mismatched data length")
	}
	if _, err := NewTensor([]int{2, -1}, Float32, CPU, nil); err == nil {
		t.Error("expected error for negative dimension")
	}
	if _, err := NewTensor([]int{2}, Float32, Accelerator, nil); err == nil {
		t.Error("expected error for unavailable device")
	}
}

func TestZerosAndOnes(t *testing.T) {
	z, err := Zeros([]int{3, 2}, Float32, CPU)
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}
	for i, v := range z.Data.([]float32) {
		if v != 0 {
			t.Fatalf("element %d = %f, want 0", i, v)
		}
	}

	o, err := Ones([]int{4}, Float32, CPU)
	if err != nil {
		t.Fatalf("Ones failed: %v", err)
	}
	for i, v := range o.Data.([]float32) {
		if v != 1 {
			t.Fatalf("element %d = %f, want 1", i, v)
		}
	}
}

func TestElementwiseOps(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2, 3, 4})
	b, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{5, 6, 7, 8})

	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	want := []float32{6, 8, 10, 12}
	for i, v := range sum.Data.([]float32) {
		if v != want[i] {
			t.Errorf("Add element %d = %f, want %f", i, v, want[i])
		}
	}

	prod, err := Mul(a, b)
	if err != nil {
		t.Fatalf("Mul failed: %v", err)
	}
	wantProd := []float32{5, 12, 21, 32}
	for i, v := range prod.Data.([]float32) {
		if v != wantProd[i] {
			t.Errorf("Mul element %d = %f, want %f", i, v, wantProd[i])
		}
	}
}

func TestScalarBroadcast(t *testing.T) {
	a, _ := NewTensor([]int{3}, Float32, CPU, []float32{1, 2, 3})
	s := FromScalar(10, Float32, CPU)

	out, err := Mul(a, s)
	if err != nil {
		t.Fatalf("scalar Mul failed: %v", err)
	}
	want := []float32{10, 20, 30}
	for i, v := range out.Data.([]float32) {
		if v != want[i] {
			t.Errorf("element %d = %f, want %f", i, v, want[i])
		}
	}

	// Scalar on the left as well.
	out2, err := Sub(s, a)
	if err != nil {
		t.Fatalf("scalar Sub failed: %v", err)
	}
	want2 := []float32{9, 8, 7}
	for i, v := range out2.Data.([]float32) {
		if v != want2[i] {
			t.Errorf("element %d = %f, want %f", i, v, want2[i])
		}
	}
}

func TestShapeMismatch(t *testing.T) {
	a, _ := Zeros([]int{2, 3}, Float32, CPU)
	b, _ := Zeros([]int{3, 2}, Float32, CPU)
	if _, err := Add(a, b); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestMatMul(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, Float32, CPU, []float32{1, 2, 3, 4, 5, 6})
	b, _ := NewTensor([]int{3, 2}, Float32, CPU, []float32{7, 8, 9, 10, 11, 12})

	c, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	want := []float32{58, 64, 139, 154}
	for i, v := range c.Data.([]float32) {
		if v != want[i] {
			t.Errorf("element %d = %f, want %f", i, v, want[i])
		}
	}

	if _, err := MatMul(a, a); err == nil {
		t.Error("expected inner dimension mismatch error")
	}
}

func TestTranspose(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, Float32, CPU, []float32{1, 2, 3, 4, 5, 6})
	aT, err := Transpose(a, 0, 1)
	if err != nil {
		t.Fatalf("Transpose failed: %v", err)
	}
	if aT.Shape[0] != 3 || aT.Shape[1] != 2 {
		t.Fatalf("unexpected transposed shape: %v", aT.Shape)
	}
	want := []float32{1, 4, 2, 5, 3, 6}
	for i, v := range aT.Data.([]float32) {
		if v != want[i] {
			t.Errorf("element %d = %f, want %f", i, v, want[i])
		}
	}
}

func TestSumAndMean(t *testing.T) {
	a, _ := NewTensor([]int{4}, Float32, CPU, []float32{1, 2, 3, 4})

	s, err := Sum(a)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if v, _ := s.Item(); v != 10 {
		t.Errorf("Sum = %f, want 10", v)
	}

	m, err := Mean(a)
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	if v, _ := m.Item(); v != 2.5 {
		t.Errorf("Mean = %f, want 2.5", v)
	}
}

func TestReshape(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, Float32, CPU, []float32{1, 2, 3, 4, 5, 6})
	r, err := a.Reshape([]int{3, -1})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if r.Shape[0] != 3 || r.Shape[1] != 2 {
		t.Errorf("unexpected shape: %v", r.Shape)
	}

	// Data is shared.
	r.Data.([]float32)[0] = 99
	if a.Data.([]float32)[0] != 99 {
		t.Error("reshaped tensor should share data")
	}

	if _, err := a.Reshape([]int{4, 2}); err == nil {
		t.Error("expected error for incompatible reshape")
	}
}

func TestCloneIndependence(t *testing.T) {
	a, _ := NewTensor([]int{2}, Float32, CPU, []float32{1, 2})
	c, err := a.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	c.Data.([]float32)[0] = 42
	if a.Data.([]float32)[0] != 1 {
		t.Error("clone should not share data")
	}
}

func TestMinMax(t *testing.T) {
	a, _ := NewTensor([]int{5}, Float32, CPU, []float32{3, -1, 4, 1, 5})
	mn, mx, err := a.MinMax()
	if err != nil {
		t.Fatalf("MinMax failed: %v", err)
	}
	if mn != -1 || mx != 5 {
		t.Errorf("MinMax = (%f, %f), want (-1, 5)", mn, mx)
	}
}

func TestItem(t *testing.T) {
	s := FromScalar(3.5, Float32, CPU)
	v, err := s.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if !almostEqual(v, 3.5, 1e-6) {
		t.Errorf("Item = %f, want 3.5", v)
	}

	a, _ := Zeros([]int{2}, Float32, CPU)
	if _, err := a.Item(); err == nil {
		t.Error("expected error for multi-element Item")
	}
}
