package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"monodepth/model"
	"monodepth/optimizer"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatBinary
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

func (cf CheckpointFormat) extension() string {
	if cf == FormatBinary {
		return ".bin"
	}
	return ".json"
}

// Checkpoint is a complete training snapshot: model weights, optimizer
// state and the position in the run they were taken at.
type Checkpoint struct {
	// Iteration is the monotonic step counter at save time; Epoch is
	// the epoch index for epoch-boundary snapshots.
	Iteration int `json:"iteration"`
	Epoch     int `json:"epoch"`

	Weights        []WeightTensor   `json:"weights"`
	OptimizerState *optimizer.State `json:"optimizer_state,omitempty"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor is one serialized model parameter.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// CheckpointMetadata describes where a checkpoint came from.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

func newMetadata(description string) CheckpointMetadata {
	return CheckpointMetadata{
		Version:     "1.0",
		Framework:   "monodepth",
		CreatedAt:   time.Now().UTC(),
		Description: description,
	}
}

// ExtractWeights snapshots a model's parameters in enumeration order.
func ExtractWeights(m model.Module) ([]WeightTensor, error) {
	params := m.Parameters()
	weights := make([]WeightTensor, len(params))
	for i, p := range params {
		data, err := p.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %v", i, err)
		}
		weights[i] = WeightTensor{
			Name:  fmt.Sprintf("param_%d", i),
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float32(nil), data...),
		}
	}
	return weights, nil
}

// New builds a checkpoint from live model and optimizer state.
func New(m model.Module, opt optimizer.Optimizer, iteration, epoch int, description string) (*Checkpoint, error) {
	weights, err := ExtractWeights(m)
	if err != nil {
		return nil, fmt.Errorf("failed to extract weights: %v", err)
	}

	var optState *optimizer.State
	if opt != nil {
		optState, err = opt.GetState()
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot optimizer: %v", err)
		}
	}

	return &Checkpoint{
		Iteration:      iteration,
		Epoch:          epoch,
		Weights:        weights,
		OptimizerState: optState,
		Metadata:       newMetadata(description),
	}, nil
}

// CheckpointSaver writes checkpoints in a fixed format.
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a saver for the specified format.
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{format: format}
}

// Save writes a checkpoint to an explicit path.
func (cs *CheckpointSaver) Save(checkpoint *Checkpoint, path string) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %v", err)
	}

	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatBinary:
		return cs.saveBinary(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format)
	}
}

// SaveCheckpoint persists the periodic "last" snapshot and, when isBest
// is set, the "best" snapshot alongside it. The train flag tags the
// files with the phase that produced them.
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, isBest bool, dir string, train bool) error {
	phase := "val"
	if train {
		phase = "train"
	}
	ext := cs.format.extension()

	last := filepath.Join(dir, fmt.Sprintf("%s_last%s", phase, ext))
	if err := cs.Save(checkpoint, last); err != nil {
		return fmt.Errorf("failed to save last checkpoint: %v", err)
	}

	if isBest {
		best := filepath.Join(dir, fmt.Sprintf("%s_best%s", phase, ext))
		if err := cs.Save(checkpoint, best); err != nil {
			return fmt.Errorf("failed to save best checkpoint: %v", err)
		}
	}
	return nil
}

// SaveEpoch persists the unconditional end-of-epoch snapshot, tagged by
// epoch index.
func (cs *CheckpointSaver) SaveEpoch(checkpoint *Checkpoint, dir string, epoch int) error {
	path := filepath.Join(dir, fmt.Sprintf("epoch_%d%s", epoch, cs.format.extension()))
	return cs.Save(checkpoint, path)
}

func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// Load reads a checkpoint, detecting the format from the file
// extension.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %v", err)
	}

	if strings.HasSuffix(path, FormatBinary.extension()) {
		return unmarshalBinary(data)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %v", err)
	}
	return &checkpoint, nil
}

// RestoreInto loads a checkpoint's weights into a model and its
// optimizer state into an optimizer. Parameters are matched
// positionally and every shape must agree exactly; on any mismatch the
// model is left untouched.
func RestoreInto(checkpoint *Checkpoint, m model.Module, opt optimizer.Optimizer) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	params := m.Parameters()
	if len(checkpoint.Weights) != len(params) {
		return fmt.Errorf("checkpoint has %d weight tensors, model has %d parameters", len(checkpoint.Weights), len(params))
	}
	for i, w := range checkpoint.Weights {
		if !shapeEqual(w.Shape, params[i].Shape) {
			return fmt.Errorf("parameter %d shape mismatch: checkpoint %v, model %v", i, w.Shape, params[i].Shape)
		}
		if len(w.Data) != params[i].NumElems {
			return fmt.Errorf("parameter %d has %d values, model expects %d", i, len(w.Data), params[i].NumElems)
		}
	}

	for i, w := range checkpoint.Weights {
		if err := params[i].SetData(w.Data); err != nil {
			return fmt.Errorf("failed to restore parameter %d: %v", i, err)
		}
	}

	if opt != nil && checkpoint.OptimizerState != nil {
		if err := opt.LoadState(checkpoint.OptimizerState); err != nil {
			return fmt.Errorf("failed to restore optimizer state: %v", err)
		}
	}
	return nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
