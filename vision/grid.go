package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"gonum.org/v1/gonum/floats"

	"monodepth/tensor"
)

// gridCols picks a near-square column count for n tiles.
func gridCols(n int) int {
	return int(math.Ceil(math.Sqrt(float64(n))))
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 255
	}
	return uint8(v * 255)
}

// GridImage renders a batch [N, C, H, W] as a tiled image. 3-channel
// batches render as RGB; single-channel batches are min-max normalized
// over the whole batch and rendered with a heat colormap.
func GridImage(batch *tensor.Tensor) (image.Image, error) {
	if len(batch.Shape) != 4 {
		return nil, fmt.Errorf("grid expects 4D batch [N, C, H, W], got %v", batch.Shape)
	}
	n, c, h, w := batch.Shape[0], batch.Shape[1], batch.Shape[2], batch.Shape[3]
	if c != 1 && c != 3 {
		return nil, fmt.Errorf("grid supports 1 or 3 channels, got %d", c)
	}

	data, err := batch.GetFloat32Data()
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}

	// Single-channel tiles share one normalization range so depth
	// scales stay comparable across the batch.
	var lo, hi float64
	if c == 1 {
		d64 := make([]float64, len(data))
		for i, v := range data {
			d64[i] = float64(v)
		}
		lo, hi = floats.Min(d64), floats.Max(d64)
		if hi-lo < 1e-12 {
			hi = lo + 1
		}
	}

	cols := gridCols(n)
	rows := (n + cols - 1) / cols
	out := image.NewRGBA(image.Rect(0, 0, cols*w, rows*h))

	plane := h * w
	for i := 0; i < n; i++ {
		tileX := (i % cols) * w
		tileY := (i / cols) * h
		base := i * c * plane

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var col color.RGBA
				if c == 3 {
					col = color.RGBA{
						R: clampByte(float64(data[base+y*w+x])),
						G: clampByte(float64(data[base+plane+y*w+x])),
						B: clampByte(float64(data[base+2*plane+y*w+x])),
						A: 255,
					}
				} else {
					v := (float64(data[base+y*w+x]) - lo) / (hi - lo)
					col = heatColor(v)
				}
				out.Set(tileX+x, tileY+y, col)
			}
		}
	}
	return out, nil
}

// heatColor maps a normalized value to a blue-to-red heat ramp.
func heatColor(v float64) color.RGBA {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return color.RGBA{
		R: clampByte(v),
		G: clampByte(1 - 2*math.Abs(v-0.5)),
		B: clampByte(1 - v),
		A: 255,
	}
}

// GridPNG renders a batch as a PNG-encoded tile grid.
func GridPNG(batch *tensor.Tensor) ([]byte, error) {
	img, err := GridImage(batch)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode grid PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// AbsDiff returns |a - b| elementwise, outside the autograd graph.
func AbsDiff(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	diff, err := tensor.Sub(a.Detach(), b.Detach())
	if err != nil {
		return nil, fmt.Errorf("abs diff: %w", err)
	}
	return tensor.Abs(diff)
}
