package vision

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DecodeImage decodes a JPEG or PNG stream.
func DecodeImage(reader io.Reader) (image.Image, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// resizeNearest scales an image to the target size with nearest-neighbor
// sampling.
func resizeNearest(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA64(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		srcY := bounds.Min.Y + y*srcH/height
		for x := 0; x < width; x++ {
			srcX := bounds.Min.X + x*srcW/width
			out.Set(x, y, img.At(srcX, srcY))
		}
	}
	return out
}

// ImageToCHW converts an image to float32 RGB data in CHW layout,
// normalized to [0, 1], resized to the given dimensions.
func ImageToCHW(img image.Image, width, height int) []float32 {
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		img = resizeNearest(img, width, height)
	}

	data := make([]float32, 3*height*width)
	plane := height * width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			idx := y*width + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}
	return data
}

// DepthToCHW converts a depth image to a single-channel float32 plane
// in [0, 1], resized to the given dimensions. 16-bit grayscale PNGs
// keep their full precision.
func DepthToCHW(img image.Image, width, height int) []float32 {
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		img = resizeNearest(img, width, height)
	}

	data := make([]float32, height*width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch c := img.At(x, y).(type) {
			case color.Gray16:
				data[y*width+x] = float32(c.Y) / 65535.0
			default:
				r, g, b, _ := img.At(x, y).RGBA()
				// Luma approximation for non-grayscale sources.
				data[y*width+x] = float32(r/3+g/3+b/3) / 65535.0
			}
		}
	}
	return data
}

// LoadImageCHW decodes an image file into CHW float32 data.
func LoadImageCHW(path string, width, height int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, err := DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return ImageToCHW(img, width, height), nil
}

// LoadDepthCHW decodes a depth map file into a single-channel float32
// plane.
func LoadDepthCHW(path string, width, height int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open depth map %s: %w", path, err)
	}
	defer f.Close()

	img, err := DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode depth map %s: %w", path, err)
	}
	return DepthToCHW(img, width, height), nil
}

// listImageFiles returns the sorted image files directly under dir.
func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
