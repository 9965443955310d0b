package training

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"monodepth/checkpoints"
	"monodepth/tensor"
	"monodepth/vision"
)

type scalarEvent struct {
	name  string
	value float64
	step  int
}

type summaryEvent struct {
	key   string
	value float64
}

// recorderTracker captures everything the trainer logs so tests can
// assert on event counts, ordering and values.
type recorderTracker struct {
	scalars   []scalarEvent
	images    []string
	summaries []summaryEvent
}

func (r *recorderTracker) LogScalar(name string, value float64, step int) error {
	r.scalars = append(r.scalars, scalarEvent{name, value, step})
	return nil
}

func (r *recorderTracker) LogImage(name string, png []byte, step int) error {
	r.images = append(r.images, name)
	return nil
}

func (r *recorderTracker) SetSummary(key string, value float64) error {
	r.summaries = append(r.summaries, summaryEvent{key, value})
	return nil
}

func (r *recorderTracker) Close() error { return nil }

func (r *recorderTracker) scalarCount(name string) int {
	count := 0
	for _, e := range r.scalars {
		if e.name == name {
			count++
		}
	}
	return count
}

func (r *recorderTracker) summaryValues(key string) []float64 {
	var values []float64
	for _, e := range r.summaries {
		if e.key == key {
			values = append(values, e.value)
		}
	}
	return values
}

func syntheticTrainer(tracker *recorderTracker) *Trainer {
	train := vision.NewSyntheticDataset(4, 8, 4)
	val := vision.NewSyntheticDataset(2, 8, 4)
	provider := vision.NewDataLoadersFromDatasets(train, val)
	return NewTrainerWithLoaders(provider, true, zap.NewNop(), tracker)
}

func smallConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.TestBatchSize = 2
	cfg.Epochs = 1
	cfg.LR = 0.001
	cfg.LRStepSize = 1
	cfg.TrainingLossLogInterval = 1
	cfg.OtherMetricsLogInterval = 1
	cfg.CheckpointDir = dir
	return cfg
}

func TestTrainAndEvaluateSingleEpoch(t *testing.T) {
	tensor.SetRandomSeed(11)
	tracker := &recorderTracker{}
	trainer := syntheticTrainer(tracker)
	dir := t.TempDir()

	if err := trainer.TrainAndEvaluate(smallConfig(dir), "", false); err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	// 4 samples at batch size 2 is 2 iterations, so the epoch
	// checkpoint records 2 optimizer steps.
	ckpt, err := checkpoints.Load(filepath.Join(dir, "epoch_0.json"))
	if err != nil {
		t.Fatalf("Failed to load epoch checkpoint: %v", err)
	}
	if ckpt.OptimizerState == nil {
		t.Fatal("Epoch checkpoint has no optimizer state")
	}
	if ckpt.OptimizerState.Steps != 2 {
		t.Errorf("Expected 2 optimizer steps, got %d", ckpt.OptimizerState.Steps)
	}

	// The schedule decays once at the epoch boundary before the
	// checkpoint is written.
	want := 0.001 * 0.1
	if got := ckpt.OptimizerState.LR; got < want*0.99 || got > want*1.01 {
		t.Errorf("Expected decayed LR %g in checkpoint, got %g", want, got)
	}
	if ckpt.Epoch != 0 {
		t.Errorf("Expected epoch 0 in checkpoint, got %d", ckpt.Epoch)
	}
}

func TestTrainingLossLoggedEveryIteration(t *testing.T) {
	tensor.SetRandomSeed(11)
	tracker := &recorderTracker{}
	trainer := syntheticTrainer(tracker)

	if err := trainer.TrainAndEvaluate(smallConfig(t.TempDir()), "", false); err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	// Interval 1 over 2 iterations logs each running-average loss
	// twice.
	if got := tracker.scalarCount("Train Pixel Loss"); got != 2 {
		t.Errorf("Expected 2 pixel loss events, got %d", got)
	}
	if got := tracker.scalarCount("Train Feature Loss"); got != 2 {
		t.Errorf("Expected 2 feature loss events, got %d", got)
	}
	if got := tracker.scalarCount("Validation Loss"); got != 2 {
		t.Errorf("Expected 2 validation loss events, got %d", got)
	}
}

func TestMetricsCarryPhasePrefix(t *testing.T) {
	tensor.SetRandomSeed(11)
	tracker := &recorderTracker{}
	trainer := syntheticTrainer(tracker)

	if err := trainer.TrainAndEvaluate(smallConfig(t.TempDir()), "", false); err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	if tracker.scalarCount("Train rmse") == 0 {
		t.Error("Expected training rmse events")
	}
	if tracker.scalarCount("Validation rmse") == 0 {
		t.Error("Expected validation rmse events")
	}
}

func TestBestMetricTracking(t *testing.T) {
	tensor.SetRandomSeed(11)
	tracker := &recorderTracker{}
	trainer := syntheticTrainer(tracker)
	dir := t.TempDir()

	if err := trainer.TrainAndEvaluate(smallConfig(dir), "", false); err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	// Best values start at +Inf, so the first periodic evaluation
	// always records a summary for both metrics.
	trainBests := tracker.summaryValues("best_train_rmse")
	if len(trainBests) == 0 {
		t.Fatal("Expected at least one best_train_rmse summary")
	}
	for i := 1; i < len(trainBests); i++ {
		if trainBests[i] >= trainBests[i-1] {
			t.Errorf("best_train_rmse must strictly improve, got %v", trainBests)
		}
	}
	if len(tracker.summaryValues("best_test_rmse")) == 0 {
		t.Error("Expected at least one best_test_rmse summary")
	}

	if trainer.BestTrainRMSE() != trainBests[len(trainBests)-1] {
		t.Errorf("BestTrainRMSE %f does not match last summary %f",
			trainer.BestTrainRMSE(), trainBests[len(trainBests)-1])
	}

	// Every training-side improvement writes the best checkpoint; the
	// validation best never does.
	if _, err := os.Stat(filepath.Join(dir, "train_best.json")); err != nil {
		t.Errorf("Expected train_best checkpoint: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "val_best.json")); err == nil {
		t.Error("Validation best must not produce a checkpoint")
	}
}

func TestComparisonGridsLogged(t *testing.T) {
	tensor.SetRandomSeed(11)
	tracker := &recorderTracker{}
	trainer := syntheticTrainer(tracker)

	if err := trainer.TrainAndEvaluate(smallConfig(t.TempDir()), "", false); err != nil {
		t.Fatalf("TrainAndEvaluate failed: %v", err)
	}

	// 4 grids per periodic evaluation, 2 evaluations.
	if len(tracker.images) != 8 {
		t.Errorf("Expected 8 image events, got %d", len(tracker.images))
	}
	wantNames := map[string]bool{
		"Validation Inputs":      false,
		"Validation Depths":      false,
		"Validation Predictions": false,
		"Validation Differences": false,
	}
	for _, name := range tracker.images {
		if _, ok := wantNames[name]; !ok {
			t.Errorf("Unexpected image grid %q", name)
		}
		wantNames[name] = true
	}
	for name, seen := range wantNames {
		if !seen {
			t.Errorf("Missing image grid %q", name)
		}
	}
}

func TestResumeRestoresCheckpoint(t *testing.T) {
	tensor.SetRandomSeed(11)
	tracker := &recorderTracker{}
	trainer := syntheticTrainer(tracker)
	dir := t.TempDir()

	if err := trainer.TrainAndEvaluate(smallConfig(dir), "", false); err != nil {
		t.Fatalf("Initial run failed: %v", err)
	}

	resumed := syntheticTrainer(&recorderTracker{})
	cfg := smallConfig(dir)
	cfg.StartEpoch = 1
	cfg.Epochs = 2
	ckptPath := filepath.Join(dir, "epoch_0.json")

	if err := resumed.TrainAndEvaluate(cfg, ckptPath, true); err != nil {
		t.Fatalf("Resumed run failed: %v", err)
	}

	// The resumed epoch runs 2 more iterations on top of the restored
	// optimizer state.
	ckpt, err := checkpoints.Load(filepath.Join(dir, "epoch_1.json"))
	if err != nil {
		t.Fatalf("Failed to load resumed epoch checkpoint: %v", err)
	}
	if ckpt.OptimizerState.Steps != 4 {
		t.Errorf("Expected 4 optimizer steps after resume, got %d", ckpt.OptimizerState.Steps)
	}

	// Start epoch 1 with step size 1 means one synthetic decay before
	// training, plus one real decay at the epoch boundary.
	want := 0.001 * 0.01
	if got := ckpt.OptimizerState.LR; got < want*0.99 || got > want*1.01 {
		t.Errorf("Expected LR %g after resumed run, got %g", want, got)
	}
}

func TestTrainAndEvaluateRejectsBadConfig(t *testing.T) {
	trainer := syntheticTrainer(&recorderTracker{})
	cfg := smallConfig(t.TempDir())
	cfg.BatchSize = 0

	if err := trainer.TrainAndEvaluate(cfg, "", false); err == nil {
		t.Error("Expected config validation error")
	}
}

func TestTrainAndEvaluateMissingResumeFile(t *testing.T) {
	trainer := syntheticTrainer(&recorderTracker{})
	cfg := smallConfig(t.TempDir())

	err := trainer.TrainAndEvaluate(cfg, filepath.Join(t.TempDir(), "missing.json"), true)
	if err == nil {
		t.Error("Expected error for missing resume checkpoint")
	}
}
