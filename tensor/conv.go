package tensor

import (
	"fmt"
)

// Spatial operations over NCHW tensors. These are direct-loop CPU
// implementations; each one participates in the autograd graph.

func conv2dOutputSize(in, kernel, stride, pad int) int {
	return (in+2*pad-kernel)/stride + 1
}

// Conv2D performs a 2D convolution of input [N, C, H, W] with weight
// [F, C, KH, KW] and optional bias [F].
func Conv2D(input, weight, bias *Tensor, stride, pad int) (*Tensor, error) {
	if input.DType != Float32 || weight.DType != Float32 {
		return nil, fmt.Errorf("Conv2D only supports Float32 tensors")
	}
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("Conv2D input must be 4D [N, C, H, W], got %v", input.Shape)
	}
	if len(weight.Shape) != 4 {
		return nil, fmt.Errorf("Conv2D weight must be 4D [F, C, KH, KW], got %v", weight.Shape)
	}
	if input.Shape[1] != weight.Shape[1] {
		return nil, fmt.Errorf("channel mismatch: input has %d, weight expects %d", input.Shape[1], weight.Shape[1])
	}
	if stride <= 0 {
		return nil, fmt.Errorf("stride must be positive, got %d", stride)
	}

	n, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	f, kh, kw := weight.Shape[0], weight.Shape[2], weight.Shape[3]

	if bias != nil {
		if len(bias.Shape) != 1 || bias.Shape[0] != f {
			return nil, fmt.Errorf("bias must be [%d], got %v", f, bias.Shape)
		}
	}

	oh := conv2dOutputSize(h, kh, stride, pad)
	ow := conv2dOutputSize(w, kw, stride, pad)
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("convolution output would be empty for input %v, kernel %dx%d, stride %d, pad %d", input.Shape, kh, kw, stride, pad)
	}

	out, err := Zeros([]int{n, f, oh, ow}, Float32, input.Device)
	if err != nil {
		return nil, err
	}

	in := input.Data.([]float32)
	wt := weight.Data.([]float32)
	dst := out.Data.([]float32)
	var bs []float32
	if bias != nil {
		bs = bias.Data.([]float32)
	}

	for ni := 0; ni < n; ni++ {
		for fi := 0; fi < f; fi++ {
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					var sum float32
					if bs != nil {
						sum = bs[fi]
					}
					for ci := 0; ci < c; ci++ {
						for ky := 0; ky < kh; ky++ {
							iy := oy*stride - pad + ky
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*stride - pad + kx
								if ix < 0 || ix >= w {
									continue
								}
								sum += in[((ni*c+ci)*h+iy)*w+ix] * wt[((fi*c+ci)*kh+ky)*kw+kx]
							}
						}
					}
					dst[((ni*f+fi)*oh+oy)*ow+ox] = sum
				}
			}
		}
	}

	return out, nil
}

// Conv2DOp implements 2D convolution for the autograd graph.
type Conv2DOp struct {
	baseOp
	Stride int
	Pad    int
}

func (op *Conv2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 && len(inputs) != 3 {
		panic("Conv2DOp requires input and weight, with optional bias")
	}
	op.inputs = inputs

	var bias *Tensor
	if len(inputs) == 3 {
		bias = inputs[2]
	}
	result, err := Conv2D(inputs[0], inputs[1], bias, op.Stride, op.Pad)
	if err != nil {
		panic(fmt.Sprintf("Conv2DOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *Conv2DOp) Backward(gradOut *Tensor) []*Tensor {
	input, weight := op.inputs[0], op.inputs[1]
	stride, pad := op.Stride, op.Pad

	n, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	f, kh, kw := weight.Shape[0], weight.Shape[2], weight.Shape[3]
	oh, ow := gradOut.Shape[2], gradOut.Shape[3]

	gradInput, err := Zeros(input.Shape, Float32, input.Device)
	if err != nil {
		panic(fmt.Sprintf("Conv2DOp backward failed: %v", err))
	}
	gradWeight, err := Zeros(weight.Shape, Float32, weight.Device)
	if err != nil {
		panic(fmt.Sprintf("Conv2DOp backward failed: %v", err))
	}

	in := input.Data.([]float32)
	wt := weight.Data.([]float32)
	gOut := gradOut.Data.([]float32)
	gIn := gradInput.Data.([]float32)
	gWt := gradWeight.Data.([]float32)

	for ni := 0; ni < n; ni++ {
		for fi := 0; fi < f; fi++ {
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					g := gOut[((ni*f+fi)*oh+oy)*ow+ox]
					if g == 0 {
						continue
					}
					for ci := 0; ci < c; ci++ {
						for ky := 0; ky < kh; ky++ {
							iy := oy*stride - pad + ky
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*stride - pad + kx
								if ix < 0 || ix >= w {
									continue
								}
								inIdx := ((ni*c+ci)*h+iy)*w + ix
								wtIdx := ((fi*c+ci)*kh+ky)*kw + kx
								gIn[inIdx] += wt[wtIdx] * g
								gWt[wtIdx] += in[inIdx] * g
							}
						}
					}
				}
			}
		}
	}

	grads := []*Tensor{gradInput, gradWeight}

	if len(op.inputs) == 3 {
		gradBias, err := Zeros(op.inputs[2].Shape, Float32, op.inputs[2].Device)
		if err != nil {
			panic(fmt.Sprintf("Conv2DOp backward failed: %v", err))
		}
		gBs := gradBias.Data.([]float32)
		for ni := 0; ni < n; ni++ {
			for fi := 0; fi < f; fi++ {
				base := ((ni*f + fi) * oh) * ow
				for i := 0; i < oh*ow; i++ {
					gBs[fi] += gOut[base+i]
				}
			}
		}
		grads = append(grads, gradBias)
	}

	return grads
}

// Conv2DAutograd performs a 2D convolution with automatic
// differentiation. Pass a nil bias to skip it.
func Conv2DAutograd(input, weight, bias *Tensor, stride, pad int) *Tensor {
	op := &Conv2DOp{Stride: stride, Pad: pad}
	if bias == nil {
		return op.Forward(input, weight)
	}
	return op.Forward(input, weight, bias)
}

// UpsampleNearest scales the spatial dimensions of an NCHW tensor by an
// integer factor using nearest-neighbor interpolation.
func UpsampleNearest(input *Tensor, scale int) (*Tensor, error) {
	if input.DType != Float32 {
		return nil, fmt.Errorf("UpsampleNearest only supports Float32 tensors")
	}
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("UpsampleNearest input must be 4D [N, C, H, W], got %v", input.Shape)
	}
	if scale < 1 {
		return nil, fmt.Errorf("scale must be >= 1, got %d", scale)
	}

	n, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	oh, ow := h*scale, w*scale

	out, err := Zeros([]int{n, c, oh, ow}, Float32, input.Device)
	if err != nil {
		return nil, err
	}

	src := input.Data.([]float32)
	dst := out.Data.([]float32)

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			for oy := 0; oy < oh; oy++ {
				iy := oy / scale
				srcRow := ((ni*c+ci)*h + iy) * w
				dstRow := ((ni*c+ci)*oh + oy) * ow
				for ox := 0; ox < ow; ox++ {
					dst[dstRow+ox] = src[srcRow+ox/scale]
				}
			}
		}
	}

	return out, nil
}

// UpsampleOp implements nearest-neighbor upsampling for the autograd
// graph.
type UpsampleOp struct {
	baseOp
	Scale int
}

func (op *UpsampleOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("UpsampleOp requires exactly 1 input")
	}
	op.inputs = inputs
	result, err := UpsampleNearest(inputs[0], op.Scale)
	if err != nil {
		panic(fmt.Sprintf("UpsampleOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *UpsampleOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0]
	scale := op.Scale
	n, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	oh, ow := gradOut.Shape[2], gradOut.Shape[3]

	grad, err := Zeros(input.Shape, Float32, input.Device)
	if err != nil {
		panic(fmt.Sprintf("UpsampleOp backward failed: %v", err))
	}
	gOut := gradOut.Data.([]float32)
	gIn := grad.Data.([]float32)

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			for oy := 0; oy < oh; oy++ {
				iy := oy / scale
				srcRow := ((ni*c+ci)*oh + oy) * ow
				dstRow := ((ni*c+ci)*h + iy) * w
				for ox := 0; ox < ow; ox++ {
					gIn[dstRow+ox/scale] += gOut[srcRow+ox]
				}
			}
		}
	}

	return []*Tensor{grad}
}

// UpsampleNearestAutograd upsamples with automatic differentiation.
func UpsampleNearestAutograd(input *Tensor, scale int) *Tensor {
	op := &UpsampleOp{Scale: scale}
	return op.Forward(input)
}

// AvgPool2D performs non-overlapping average pooling with a square
// kernel over an NCHW tensor.
func AvgPool2D(input *Tensor, kernel int) (*Tensor, error) {
	if input.DType != Float32 {
		return nil, fmt.Errorf("AvgPool2D only supports Float32 tensors")
	}
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("AvgPool2D input must be 4D [N, C, H, W], got %v", input.Shape)
	}
	if kernel < 1 {
		return nil, fmt.Errorf("kernel must be >= 1, got %d", kernel)
	}

	n, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	oh, ow := h/kernel, w/kernel
	if oh == 0 || ow == 0 {
		return nil, fmt.Errorf("pooling kernel %d larger than input %dx%d", kernel, h, w)
	}

	out, err := Zeros([]int{n, c, oh, ow}, Float32, input.Device)
	if err != nil {
		return nil, err
	}

	src := input.Data.([]float32)
	dst := out.Data.([]float32)
	norm := 1.0 / float32(kernel*kernel)

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					var sum float32
					for ky := 0; ky < kernel; ky++ {
						row := ((ni*c+ci)*h + oy*kernel + ky) * w
						for kx := 0; kx < kernel; kx++ {
							sum += src[row+ox*kernel+kx]
						}
					}
					dst[((ni*c+ci)*oh+oy)*ow+ox] = sum * norm
				}
			}
		}
	}

	return out, nil
}

// AvgPool2DOp implements average pooling for the autograd graph.
type AvgPool2DOp struct {
	baseOp
	Kernel int
}

func (op *AvgPool2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("AvgPool2DOp requires exactly 1 input")
	}
	op.inputs = inputs
	result, err := AvgPool2D(inputs[0], op.Kernel)
	if err != nil {
		panic(fmt.Sprintf("AvgPool2DOp forward failed: %v", err))
	}
	return attach(op, result, inputs)
}

func (op *AvgPool2DOp) Backward(gradOut *Tensor) []*Tensor {
	input := op.inputs[0]
	kernel := op.Kernel
	n, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	oh, ow := gradOut.Shape[2], gradOut.Shape[3]

	grad, err := Zeros(input.Shape, Float32, input.Device)
	if err != nil {
		panic(fmt.Sprintf("AvgPool2DOp backward failed: %v", err))
	}
	gOut := gradOut.Data.([]float32)
	gIn := grad.Data.([]float32)
	norm := 1.0 / float32(kernel*kernel)

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					g := gOut[((ni*c+ci)*oh+oy)*ow+ox] * norm
					for ky := 0; ky < kernel; ky++ {
						row := ((ni*c+ci)*h + oy*kernel + ky) * w
						for kx := 0; kx < kernel; kx++ {
							gIn[row+ox*kernel+kx] += g
						}
					}
				}
			}
		}
	}

	return []*Tensor{grad}
}

// AvgPool2DAutograd pools with automatic differentiation.
func AvgPool2DAutograd(input *Tensor, kernel int) *Tensor {
	op := &AvgPool2DOp{Kernel: kernel}
	return op.Forward(input)
}
