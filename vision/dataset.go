package vision

import (
	"fmt"
	"math"
	"path/filepath"
)

// Dataset supplies image/depth sample pairs as CHW float32 planes.
// Images are 3-channel, depths single-channel; dimensions are fixed for
// the dataset's lifetime.
type Dataset interface {
	Len() int
	// Sample returns the i-th image and depth pair.
	Sample(i int) (img, depth []float32, err error)
	// Dims reports (imageSize, depthSize); both planes are square.
	Dims() (imgSize, depthSize int)
}

// DepthPairDataset reads paired files from an images/ and a depths/
// directory under a common root. Pairs are matched positionally over
// the sorted file listings; decoded planes go through an LRU cache.
type DepthPairDataset struct {
	imageFiles []string
	depthFiles []string
	imgSize    int
	depthSize  int
	cache      *sampleCache
}

// NewDepthPairDataset scans root/images and root/depths.
func NewDepthPairDataset(root string, imgSize, depthSize, cacheSize int) (*DepthPairDataset, error) {
	imageFiles, err := listImageFiles(filepath.Join(root, "images"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan images: %w", err)
	}
	depthFiles, err := listImageFiles(filepath.Join(root, "depths"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan depths: %w", err)
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("no images found under %s", root)
	}
	if len(imageFiles) != len(depthFiles) {
		return nil, fmt.Errorf("%d images but %d depth maps under %s", len(imageFiles), len(depthFiles), root)
	}

	return &DepthPairDataset{
		imageFiles: imageFiles,
		depthFiles: depthFiles,
		imgSize:    imgSize,
		depthSize:  depthSize,
		cache:      newSampleCache(cacheSize),
	}, nil
}

func (d *DepthPairDataset) Len() int {
	return len(d.imageFiles)
}

func (d *DepthPairDataset) Dims() (int, int) {
	return d.imgSize, d.depthSize
}

func (d *DepthPairDataset) Sample(i int) ([]float32, []float32, error) {
	if i < 0 || i >= len(d.imageFiles) {
		return nil, nil, fmt.Errorf("sample index %d out of range [0, %d)", i, len(d.imageFiles))
	}

	img, ok := d.cache.get(d.imageFiles[i])
	if !ok {
		var err error
		img, err = LoadImageCHW(d.imageFiles[i], d.imgSize, d.imgSize)
		if err != nil {
			return nil, nil, err
		}
		d.cache.put(d.imageFiles[i], img)
	}

	depth, ok := d.cache.get(d.depthFiles[i])
	if !ok {
		var err error
		depth, err = LoadDepthCHW(d.depthFiles[i], d.depthSize, d.depthSize)
		if err != nil {
			return nil, nil, err
		}
		d.cache.put(d.depthFiles[i], depth)
	}

	return img, depth, nil
}

// CacheStats exposes the decode cache counters.
func (d *DepthPairDataset) CacheStats() CacheStats {
	return d.cache.stats()
}

// SyntheticDataset generates deterministic image/depth pairs in memory.
// Sample i is a gradient pattern parameterized by i, so tests get
// stable, distinguishable data without touching the filesystem.
type SyntheticDataset struct {
	count     int
	imgSize   int
	depthSize int
}

// NewSyntheticDataset creates an in-memory dataset of count samples.
func NewSyntheticDataset(count, imgSize, depthSize int) *SyntheticDataset {
	return &SyntheticDataset{count: count, imgSize: imgSize, depthSize: depthSize}
}

func (s *SyntheticDataset) Len() int {
	return s.count
}

func (s *SyntheticDataset) Dims() (int, int) {
	return s.imgSize, s.depthSize
}

func (s *SyntheticDataset) Sample(i int) ([]float32, []float32, error) {
	if i < 0 || i >= s.count {
		return nil, nil, fmt.Errorf("sample index %d out of range [0, %d)", i, s.count)
	}

	phase := float64(i+1) * 0.7
	img := make([]float32, 3*s.imgSize*s.imgSize)
	plane := s.imgSize * s.imgSize
	for c := 0; c < 3; c++ {
		for y := 0; y < s.imgSize; y++ {
			for x := 0; x < s.imgSize; x++ {
				v := 0.5 + 0.5*math.Sin(phase+float64(c)+float64(x+y)/float64(s.imgSize))
				img[c*plane+y*s.imgSize+x] = float32(v)
			}
		}
	}

	depth := make([]float32, s.depthSize*s.depthSize)
	for y := 0; y < s.depthSize; y++ {
		for x := 0; x < s.depthSize; x++ {
			v := 0.5 + 0.5*math.Cos(phase+float64(x-y)/float64(s.depthSize))
			depth[y*s.depthSize+x] = float32(v)
		}
	}

	return img, depth, nil
}
