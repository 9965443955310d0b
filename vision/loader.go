package vision

import (
	"fmt"
	"path/filepath"
	"sync"

	"monodepth/tensor"
)

const (
	fullImageSize    = 64
	resizedImageSize = 32
	defaultCacheSize = 512
)

// Batch is one training batch: images [N, 3, S, S] and depth targets
// [N, 1, D, D].
type Batch struct {
	Images *tensor.Tensor
	Depths *tensor.Tensor
}

// DataLoader iterates a dataset in fixed-size batches. One full pass is
// one epoch; the final batch may be smaller than the batch size.
type DataLoader struct {
	mu        sync.Mutex
	dataset   Dataset
	batchSize int
	cursor    int
}

// NewDataLoader creates a loader over dataset.
func NewDataLoader(dataset Dataset, batchSize int) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if dataset.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	return &DataLoader{dataset: dataset, batchSize: batchSize}, nil
}

// Len reports the number of batches in one epoch.
func (dl *DataLoader) Len() int {
	n := dl.dataset.Len()
	return (n + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader to the start of the dataset.
func (dl *DataLoader) Reset() {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.cursor = 0
}

// HasNext reports whether another batch remains in this pass.
func (dl *DataLoader) HasNext() bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return dl.cursor < dl.dataset.Len()
}

// Next assembles and returns the next batch.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	n := dl.dataset.Len()
	if dl.cursor >= n {
		return nil, fmt.Errorf("data loader exhausted, call Reset to start a new pass")
	}

	count := dl.batchSize
	if dl.cursor+count > n {
		count = n - dl.cursor
	}

	imgSize, depthSize := dl.dataset.Dims()
	imgPlane := 3 * imgSize * imgSize
	depthPlane := depthSize * depthSize

	images := make([]float32, count*imgPlane)
	depths := make([]float32, count*depthPlane)

	for i := 0; i < count; i++ {
		img, depth, err := dl.dataset.Sample(dl.cursor + i)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %w", dl.cursor+i, err)
		}
		if len(img) != imgPlane || len(depth) != depthPlane {
			return nil, fmt.Errorf("sample %d has unexpected dimensions", dl.cursor+i)
		}
		copy(images[i*imgPlane:], img)
		copy(depths[i*depthPlane:], depth)
	}
	dl.cursor += count

	imageTensor, err := tensor.NewTensor([]int{count, 3, imgSize, imgSize}, tensor.Float32, tensor.CPU, images)
	if err != nil {
		return nil, fmt.Errorf("failed to build image tensor: %w", err)
	}
	depthTensor, err := tensor.NewTensor([]int{count, 1, depthSize, depthSize}, tensor.Float32, tensor.CPU, depths)
	if err != nil {
		return nil, fmt.Errorf("failed to build depth tensor: %w", err)
	}

	return &Batch{Images: imageTensor, Depths: depthTensor}, nil
}

// DataLoaders provides fresh train and validation loaders over a data
// root. The resized flag selects pre-downsampled inputs with
// half-resolution targets; full-resolution data keeps targets at the
// input resolution for upsampling models.
type DataLoaders struct {
	train Dataset
	val   Dataset
}

// NewDataLoaders builds a provider over root/train and root/val, each
// holding images/ and depths/ subdirectories.
func NewDataLoaders(root string, resized bool) (*DataLoaders, error) {
	imgSize := fullImageSize
	depthSize := fullImageSize
	if resized {
		imgSize = resizedImageSize
		depthSize = resizedImageSize / 2
	}

	train, err := NewDepthPairDataset(filepath.Join(root, "train"), imgSize, depthSize, defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open training set: %w", err)
	}
	val, err := NewDepthPairDataset(filepath.Join(root, "val"), imgSize, depthSize, defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open validation set: %w", err)
	}

	return &DataLoaders{train: train, val: val}, nil
}

// NewDataLoadersFromDatasets wraps pre-built datasets, as tests do with
// synthetic data.
func NewDataLoadersFromDatasets(train, val Dataset) *DataLoaders {
	return &DataLoaders{train: train, val: val}
}

// GetTrainDataLoader returns a fresh loader over the training set.
func (p *DataLoaders) GetTrainDataLoader(batchSize int) (*DataLoader, error) {
	return NewDataLoader(p.train, batchSize)
}

// GetValDataLoader returns a fresh loader over the validation set.
func (p *DataLoaders) GetValDataLoader(batchSize int) (*DataLoader, error) {
	return NewDataLoader(p.val, batchSize)
}
