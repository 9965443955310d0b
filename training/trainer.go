package training

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"monodepth/checkpoints"
	"monodepth/model"
	"monodepth/optimizer"
	"monodepth/tensor"
	"monodepth/tracking"
	"monodepth/vision"
)

// Trainer drives the depth-estimation training loop: epoch and
// iteration stepping, running-average bookkeeping, periodic validation,
// best-checkpoint selection and resumability. All run state lives on
// the Trainer instance; there are no package-level trackers.
type Trainer struct {
	provider *vision.DataLoaders
	resized  bool

	logger  *zap.Logger
	tracker tracking.Tracker
	saver   *checkpoints.CheckpointSaver

	bestTrainRMSE float64
	bestTestRMSE  float64
}

// NewTrainer builds a trainer over a data root laid out as root/train
// and root/val. The resized flag selects pre-downsampled inputs and
// the matching model variant.
func NewTrainer(dataRoot string, resized bool, logger *zap.Logger, tracker tracking.Tracker) (*Trainer, error) {
	provider, err := vision.NewDataLoaders(dataRoot, resized)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %v", err)
	}
	return NewTrainerWithLoaders(provider, resized, logger, tracker), nil
}

// NewTrainerWithLoaders builds a trainer over a pre-built data
// provider, as tests do with synthetic datasets.
func NewTrainerWithLoaders(provider *vision.DataLoaders, resized bool, logger *zap.Logger, tracker tracking.Tracker) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = tracking.NewNoop()
	}
	return &Trainer{
		provider:      provider,
		resized:       resized,
		logger:        logger,
		tracker:       tracker,
		saver:         checkpoints.NewCheckpointSaver(checkpoints.FormatJSON),
		bestTrainRMSE: math.Inf(1),
		bestTestRMSE:  math.Inf(1),
	}
}

// BestTrainRMSE returns the best training RMSE seen so far.
func (t *Trainer) BestTrainRMSE() float64 {
	return t.bestTrainRMSE
}

// BestTestRMSE returns the best validation RMSE seen so far.
func (t *Trainer) BestTestRMSE() float64 {
	return t.bestTestRMSE
}

// buildModel constructs the network variant matching the data layout:
// resized data trains the bare half-resolution DepthNet, full
// resolution wraps it in the learned upsampler.
func (t *Trainer) buildModel() (model.Module, error) {
	base, err := model.NewDepthNet()
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %v", err)
	}
	if t.resized {
		return base, nil
	}
	wrapped, err := model.NewUpsamplingDepthNet(base)
	if err != nil {
		return nil, fmt.Errorf("failed to build upsampling model: %v", err)
	}
	return wrapped, nil
}

// TrainAndEvaluate runs the full training loop under the given
// configuration. When resume is set, model and optimizer state are
// restored from checkpointFile and the LR schedule is advanced to match
// the epochs already completed.
func (t *Trainer) TrainAndEvaluate(cfg Config, checkpointFile string, resume bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}

	device := tensor.PreferredDevice()
	t.logger.Info("starting training run",
		zap.String("device", device.String()),
		zap.Int("start_epoch", cfg.StartEpoch),
		zap.Int("epochs", cfg.Epochs),
		zap.Float64("lr", cfg.LR),
	)

	m, err := t.buildModel()
	if err != nil {
		return err
	}
	m.Train()

	params := model.TrainableParameters(m)
	t.logger.Info("model constructed",
		zap.Int("trainable_parameters", model.ParameterCount(m)),
		zap.Bool("upsampling", !t.resized),
	)

	adamConfig := optimizer.DefaultAdamConfig()
	adamConfig.LR = cfg.LR
	opt, err := optimizer.NewAdam(adamConfig, params)
	if err != nil {
		return fmt.Errorf("failed to build optimizer: %v", err)
	}

	features, err := model.NewFeatureNet(1)
	if err != nil {
		return fmt.Errorf("failed to build feature extractor: %v", err)
	}

	if resume && checkpointFile != "" {
		ckpt, err := checkpoints.Load(checkpointFile)
		if err != nil {
			return fmt.Errorf("failed to load resume checkpoint: %v", err)
		}
		if err := checkpoints.RestoreInto(ckpt, m, opt); err != nil {
			return fmt.Errorf("failed to restore checkpoint: %v", err)
		}
		t.logger.Info("restored checkpoint",
			zap.String("file", checkpointFile),
			zap.Int("iteration", ckpt.Iteration),
			zap.Int("epoch", ckpt.Epoch),
		)
	}

	schedule := NewStepLR(cfg.LR, cfg.LRStepSize, 0.1)
	schedule.Advance(cfg.StartEpoch)
	opt.SetLR(schedule.LR())

	for epoch := cfg.StartEpoch; epoch < cfg.Epochs; epoch++ {
		if err := t.runEpoch(cfg, epoch, m, opt, features); err != nil {
			return fmt.Errorf("epoch %d failed: %v", epoch, err)
		}

		schedule.Step()
		opt.SetLR(schedule.LR())

		ckpt, err := checkpoints.New(m, opt, opt.StepCount(), epoch, "epoch checkpoint")
		if err != nil {
			return fmt.Errorf("failed to build epoch checkpoint: %v", err)
		}
		if err := t.saver.SaveEpoch(ckpt, cfg.CheckpointDir, epoch); err != nil {
			return fmt.Errorf("failed to save epoch checkpoint: %v", err)
		}
	}

	return nil
}

func (t *Trainer) runEpoch(cfg Config, epoch int, m model.Module, opt optimizer.Optimizer, features *model.FeatureNet) error {
	loader, err := t.provider.GetTrainDataLoader(cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to build training loader: %v", err)
	}
	numBatches := loader.Len()

	pixelAvg := NewRunningAverage()
	featureAvg := NewRunningAverage()
	iterTimeAvg := NewRunningAverage()

	epochStart := time.Now()

	for iteration := 0; loader.HasNext(); iteration++ {
		iterStart := time.Now()

		batch, err := loader.Next()
		if err != nil {
			return err
		}
		step := epoch*numBatches + iteration

		pred, pixelLoss, featLoss, err := t.trainStep(batch, m, opt, features)
		if err != nil {
			return err
		}

		weight := float64(batch.Images.Shape[0])
		pixelAvg.Update(pixelLoss, weight)
		featureAvg.Update(featLoss, weight)
		iterTimeAvg.Update(time.Since(iterStart).Seconds(), 1)

		if (iteration+1)%cfg.TrainingLossLogInterval == 0 {
			t.logTrainingLosses(epoch, iteration, numBatches, step, pixelAvg, featureAvg, iterTimeAvg)
		}

		if (iteration+1)%cfg.OtherMetricsLogInterval == 0 {
			if err := t.logPeriodicMetrics(cfg, epoch, step, batch, pred, m, opt, features); err != nil {
				return err
			}
		}

		// Drop batch references so the allocator can reclaim the
		// tensors before the next iteration.
		batch.Images = nil
		batch.Depths = nil
	}

	t.logger.Info("epoch complete",
		zap.Int("epoch", epoch),
		zap.Duration("duration", time.Since(epochStart)),
		zap.Float64("lr", opt.GetLR()),
	)
	return nil
}

// trainStep runs one forward/backward/update cycle and returns the
// detached prediction with both loss values.
func (t *Trainer) trainStep(batch *vision.Batch, m model.Module, opt optimizer.Optimizer, features *model.FeatureNet) (*tensor.Tensor, float64, float64, error) {
	imagesNorm, err := normalizeBatch(batch.Images)
	if err != nil {
		return nil, 0, 0, err
	}
	depthsNorm, err := normalizeBatch(batch.Depths)
	if err != nil {
		return nil, 0, 0, err
	}

	pred, err := m.Forward(imagesNorm)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("forward pass failed: %v", err)
	}

	pixelLoss, err := model.CombinedLoss(pred, depthsNorm)
	if err != nil {
		return nil, 0, 0, err
	}
	featLoss, err := featureObjective(pred, depthsNorm, features)
	if err != nil {
		return nil, 0, 0, err
	}
	total := tensor.AddAutograd(pixelLoss, featLoss)

	opt.ZeroGrad()
	if err := total.Backward(); err != nil {
		return nil, 0, 0, fmt.Errorf("backward pass failed: %v", err)
	}
	if err := opt.Step(); err != nil {
		return nil, 0, 0, fmt.Errorf("optimizer step failed: %v", err)
	}

	pixelValue, err := pixelLoss.Item()
	if err != nil {
		return nil, 0, 0, err
	}
	featValue, err := featLoss.Item()
	if err != nil {
		return nil, 0, 0, err
	}

	// Keep the normalized target on the batch for metric computation.
	batch.Depths = depthsNorm.Detach()
	return pred.Detach(), pixelValue, featValue, nil
}

func (t *Trainer) logTrainingLosses(epoch, iteration, numBatches, step int, pixelAvg, featureAvg, iterTimeAvg *RunningAverage) {
	pixel, err := pixelAvg.Average()
	if err != nil {
		return
	}
	feature, _ := featureAvg.Average()
	iterTime, _ := iterTimeAvg.Average()
	remaining := numBatches - iteration - 1
	eta := time.Duration(iterTime * float64(remaining) * float64(time.Second))

	t.logger.Info("training progress",
		zap.Int("epoch", epoch),
		zap.Int("iteration", iteration+1),
		zap.Int("batches", numBatches),
		zap.Float64("pixel_loss", pixel),
		zap.Float64("feature_loss", feature),
		zap.Float64("iter_time_s", iterTime),
		zap.Duration("eta", eta),
	)

	t.tracker.LogScalar("Train Pixel Loss", pixel, step)
	t.tracker.LogScalar("Train Feature Loss", feature, step)
}

// logPeriodicMetrics handles the slower logging tier: training-batch
// quality metrics, one-batch validation with visualizations, and
// best-metric tracking with its checkpoint side effects.
func (t *Trainer) logPeriodicMetrics(cfg Config, epoch, step int, batch *vision.Batch, pred *tensor.Tensor, m model.Module, opt optimizer.Optimizer, features *model.FeatureNet) error {
	trainMetrics, err := model.EvaluatePredictions(pred, batch.Depths)
	if err != nil {
		return fmt.Errorf("failed to compute training metrics: %v", err)
	}
	t.WriteMetrics(trainMetrics, step, true)

	valImages, valDepths, valPreds, valLoss, valMetrics, err := Evaluate(m, features, t.provider, cfg.TestBatchSize)
	if err != nil {
		return fmt.Errorf("validation failed: %v", err)
	}
	t.logger.Info("validation",
		zap.Int("step", step),
		zap.Float64("loss", valLoss),
		zap.Float64("rmse", valMetrics["rmse"]),
	)
	t.tracker.LogScalar("Validation Loss", valLoss, step)
	t.WriteMetrics(valMetrics, step, false)
	if err := t.ComparePredictions(valImages, valDepths, valPreds, step); err != nil {
		return err
	}

	if rmse, ok := trainMetrics["rmse"]; ok && rmse < t.bestTrainRMSE {
		t.bestTrainRMSE = rmse
		t.tracker.SetSummary("best_train_rmse", rmse)

		ckpt, err := checkpoints.New(m, opt, step, epoch, "best training rmse")
		if err != nil {
			return fmt.Errorf("failed to build best checkpoint: %v", err)
		}
		if err := t.saver.SaveCheckpoint(ckpt, true, cfg.CheckpointDir, true); err != nil {
			return fmt.Errorf("failed to save best checkpoint: %v", err)
		}
		t.logger.Info("new best training rmse",
			zap.Float64("rmse", rmse),
			zap.Int("step", step),
		)
	}

	// The validation best only updates the run summary; no checkpoint
	// is tied to it.
	if rmse, ok := valMetrics["rmse"]; ok && rmse < t.bestTestRMSE {
		t.bestTestRMSE = rmse
		t.tracker.SetSummary("best_test_rmse", rmse)
	}

	return nil
}

// WriteMetrics fans out named scalar metrics to the tracking backend,
// prefixed by the phase that produced them.
func (t *Trainer) WriteMetrics(metrics map[string]float64, step int, train bool) {
	prefix := "Validation "
	if train {
		prefix = "Train "
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t.tracker.LogScalar(prefix+name, metrics[name], step)
	}
}

// ComparePredictions renders input images, ground-truth depths,
// predictions and their absolute difference as image grids and logs
// them to the tracking backend.
func (t *Trainer) ComparePredictions(images, depths, preds *tensor.Tensor, step int) error {
	diff, err := vision.AbsDiff(preds, depths)
	if err != nil {
		return fmt.Errorf("failed to compute prediction difference: %v", err)
	}

	grids := []struct {
		name  string
		batch *tensor.Tensor
	}{
		{"Validation Inputs", images},
		{"Validation Depths", depths},
		{"Validation Predictions", preds},
		{"Validation Differences", diff},
	}
	for _, g := range grids {
		png, err := vision.GridPNG(g.batch)
		if err != nil {
			return fmt.Errorf("failed to render %s grid: %v", g.name, err)
		}
		if err := t.tracker.LogImage(g.name, png, step); err != nil {
			return fmt.Errorf("failed to log %s grid: %v", g.name, err)
		}
	}
	return nil
}
