package tensor

import (
	"fmt"
)

// The autograd graph is define-by-run: each *Autograd function executes
// its forward pass immediately and records an Operation as the creator
// of the output. Backward walks creators in reverse topological order.
// Graph nodes are only recorded when an input requires gradients, so
// target-side computations stay graph-free.

type baseOp struct {
	inputs []*Tensor
}

func (b *baseOp) Inputs() []*Tensor {
	return b.inputs
}

func anyRequiresGrad(tensors []*Tensor) bool {
	for _, t := range tensors {
		if t.requiresGrad {
			return true
		}
	}
	return false
}

func attach(op Operation, result *Tensor, inputs []*Tensor) *Tensor {
	if anyRequiresGrad(inputs) {
		result.requiresGrad = true
		result.creator = op
	}
	return result
}

// reduceGradientToShape collapses a gradient to the shape of the
// original operand. Only the single-element broadcast case needs
// reduction.
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if sameShape(grad.Shape, targetShape) {
		return grad, nil
	}
	if calculateNumElements(targetShape) == 1 {
		s, err := Sum(grad)
		if err != nil {
			return nil, err
		}
		return s.Reshape(targetShape)
	}
	return nil, fmt.Errorf("cannot reduce gradient of shape %v to %v", grad.Shape, targetShape)
}

func (t *Tensor) accumulateGrad(g *Tensor) {
	if t.grad == nil {
		clone, err := g.Clone()
		if err != nil {
			panic(fmt.Sprintf("gradient clone failed: %v", err))
		}
		t.grad = clone
		return
	}
	dst := t.grad.Data.([]float32)
	src := g.Data.([]float32)
	for i := range dst {
		dst[i] += src[i]
	}
}

// Backward runs reverse-mode differentiation from t, accumulating
// gradients into every reachable tensor that requires them. The seed
// gradient is all ones, so t is normally a scalar loss.
func (t *Tensor) Backward() error {
	if t.DType != Float32 {
		return fmt.Errorf("backward only supports Float32 tensors, got %s", t.DType)
	}
	if !t.requiresGrad {
		return fmt.Errorf("tensor does not require gradients")
	}

	seed, err := Ones(t.Shape, Float32, t.Device)
	if err != nil {
		return fmt.Errorf("failed to create seed gradient: %v", err)
	}
	t.accumulateGrad(seed)

	// Post-order DFS gives a topological order of the graph.
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(node *Tensor)
	visit = func(node *Tensor) {
		if visited[node] {
			return
		}
		visited[node] = true
		if node.creator != nil {
			for _, in := range node.creator.Inputs() {
				if in.requiresGrad {
					visit(in)
				}
			}
		}
		order = append(order, node)
	}
	visit(t)

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		if node.creator == nil || node.grad == nil {
			continue
		}
		grads := node.creator.Backward(node.grad)
		inputs := node.creator.Inputs()
		if len(grads) != len(inputs) {
			return fmt.Errorf("operation returned %d gradients for %d inputs", len(grads), len(inputs))
		}
		for j, in := range inputs {
			if !in.requiresGrad || grads[j] == nil {
				continue
			}
			in.accumulateGrad(grads[j])
		}
	}

	return nil
}

// AddOp implements addition for the autograd graph.
type AddOp struct {
	baseOp
}

func (op *AddOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("AddOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := Add(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("AddOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("AddOp backward failed: %v", err))
	}
	gradB, err := reduceGradientToShape(gradOut, op.inputs[1].Shape)
	if err != nil {
		panic(fmt.Sprintf("AddOp backward failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// SubOp implements subtraction for the autograd graph.
type SubOp struct {
	baseOp
}

func (op *SubOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("SubOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := Sub(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("SubOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("SubOp backward failed: %v", err))
	}
	neg, err := Scale(gradOut, -1)
	if err != nil {
		panic(fmt.Sprintf("SubOp backward failed: %v", err))
	}
	gradB, err := reduceGradientToShape(neg, op.inputs[1].Shape)
	if err != nil {
		panic(fmt.Sprintf("SubOp backward failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// MulOp implements elementwise multiplication for the autograd graph.
type MulOp struct {
	baseOp
}

func (op *MulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MulOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := Mul(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("MulOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	gradAFull, err := Mul(gradOut, b)
	if err != nil {
		panic(fmt.Sprintf("MulOp backward failed: %v", err))
	}
	gradA, err := reduceGradientToShape(gradAFull, a.Shape)
	if err != nil {
		panic(fmt.Sprintf("MulOp backward failed: %v", err))
	}

	gradBFull, err := Mul(gradOut, a)
	if err != nil {
		panic(fmt.Sprintf("MulOp backward failed: %v", err))
	}
	gradB, err := reduceGradientToShape(gradBFull, b.Shape)
	if err != nil {
		panic(fmt.Sprintf("MulOp backward failed: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

// MatMulOp implements 2D matrix multiplication for the autograd graph.
type MatMulOp struct {
	baseOp
}

func (op *MatMulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MatMulOp requires exactly 2 inputs")
	}
	op.inputs = inputs
	result, err := MatMul(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("MatMulOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *MatMulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// d(A@B)/dA = gradOut @ B^T, d(A@B)/dB = A^T @ gradOut
	bT, err := Transpose(b, 0, 1)
	if err != nil {
		panic(fmt.Sprintf("MatMulOp backward failed: %v", err))
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		panic(fmt.Sprintf("MatMulOp backward failed: %v", err))
	}

	aT, err := Transpose(a, 0, 1)
	if err != nil {
		panic(fmt.Sprintf("MatMulOp backward failed: %v", err))
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		panic(fmt.Sprintf("MatMulOp backward failed: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

// ReLUOp implements the ReLU activation for the autograd graph.
type ReLUOp struct {
	baseOp
}

func (op *ReLUOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReLUOp requires exactly 1 input")
	}
	op.inputs = inputs
	result, err := ReLU(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("ReLUOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *ReLUOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0].Data.([]float32)
	gradData := gradOut.Data.([]float32)

	grad, err := Zeros(op.inputs[0].Shape, Float32, op.inputs[0].Device)
	if err != nil {
		panic(fmt.Sprintf("ReLUOp backward failed: %v", err))
	}
	dst := grad.Data.([]float32)
	for i := range dst {
		if input[i] > 0 {
			dst[i] = gradData[i]
		}
	}
	return []*Tensor{grad}
}

// AbsOp implements the absolute value for the autograd graph. The
// subgradient at zero is taken as zero.
type AbsOp struct {
	baseOp
}

func (op *AbsOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("AbsOp requires exactly 1 input")
	}
	op.inputs = inputs
	result, err := Abs(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("AbsOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *AbsOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0].Data.([]float32)
	gradData := gradOut.Data.([]float32)

	grad, err := Zeros(op.inputs[0].Shape, Float32, op.inputs[0].Device)
	if err != nil {
		panic(fmt.Sprintf("AbsOp backward failed: %v", err))
	}
	dst := grad.Data.([]float32)
	for i := range dst {
		switch {
		case input[i] > 0:
			dst[i] = gradData[i]
		case input[i] < 0:
			dst[i] = -gradData[i]
		}
	}
	return []*Tensor{grad}
}

// MeanOp reduces a tensor to the mean of its elements.
type MeanOp struct {
	baseOp
}

func (op *MeanOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("MeanOp requires exactly 1 input")
	}
	op.inputs = inputs
	result, err := Mean(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("MeanOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *MeanOp) Backward(gradOut *Tensor) []*Tensor {
	in := op.inputs[0]
	g := gradOut.Data.([]float32)[0] / float32(in.NumElems)
	grad, err := Full(in.Shape, float64(g), Float32, in.Device)
	if err != nil {
		panic(fmt.Sprintf("MeanOp backward failed: %v", err))
	}
	return []*Tensor{grad}
}

// High-level autograd entry points

// AddAutograd performs addition with automatic differentiation.
func AddAutograd(a, b *Tensor) *Tensor {
	op := &AddOp{}
	return op.Forward(a, b)
}

// SubAutograd performs subtraction with automatic differentiation.
func SubAutograd(a, b *Tensor) *Tensor {
	op := &SubOp{}
	return op.Forward(a, b)
}

// MulAutograd performs multiplication with automatic differentiation.
func MulAutograd(a, b *Tensor) *Tensor {
	op := &MulOp{}
	return op.Forward(a, b)
}

// MatMulAutograd performs matrix multiplication with automatic
// differentiation.
func MatMulAutograd(a, b *Tensor) *Tensor {
	op := &MatMulOp{}
	return op.Forward(a, b)
}

// ReLUAutograd performs ReLU activation with automatic differentiation.
func ReLUAutograd(a *Tensor) *Tensor {
	op := &ReLUOp{}
	return op.Forward(a)
}

// AbsAutograd performs absolute value with automatic differentiation.
func AbsAutograd(a *Tensor) *Tensor {
	op := &AbsOp{}
	return op.Forward(a)
}

// MeanAutograd reduces to the mean with automatic differentiation.
func MeanAutograd(a *Tensor) *Tensor {
	op := &MeanOp{}
	return op.Forward(a)
}
