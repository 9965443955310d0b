// Command train runs the depth-estimation training loop over an image
// and depth-map dataset, with optional live tracking through a local
// dashboard sidecar.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"monodepth/tracking"
	"monodepth/training"
)

func main() {
	defaults := training.DefaultConfig()

	dataRoot := flag.String("data", "data", "dataset root containing train/ and val/")
	resized := flag.Bool("resized", false, "use pre-downsampled inputs and the half-resolution model")
	batchSize := flag.Int("batch-size", defaults.BatchSize, "training batch size")
	testBatchSize := flag.Int("test-batch-size", defaults.TestBatchSize, "validation batch size")
	lr := flag.Float64("lr", defaults.LR, "base learning rate")
	lrStepSize := flag.Int("lr-step", defaults.LRStepSize, "epochs between learning rate decays")
	startEpoch := flag.Int("start-epoch", defaults.StartEpoch, "first epoch index, set when resuming")
	epochs := flag.Int("epochs", defaults.Epochs, "epoch index to stop before")
	lossInterval := flag.Int("loss-interval", defaults.TrainingLossLogInterval, "iterations between loss log lines")
	metricsInterval := flag.Int("metrics-interval", defaults.OtherMetricsLogInterval, "iterations between metric evaluations")
	checkpointDir := flag.String("checkpoint-dir", defaults.CheckpointDir, "directory for checkpoint files")
	resumeFrom := flag.String("resume", "", "checkpoint file to resume from")
	sidecarURL := flag.String("sidecar", "", "tracking sidecar base URL, empty disables tracking")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var tracker tracking.Tracker = tracking.NewNoop()
	if *sidecarURL != "" {
		sidecarConfig := tracking.DefaultSidecarConfig()
		sidecarConfig.BaseURL = *sidecarURL
		sidecar := tracking.NewSidecar(sidecarConfig)
		if err := sidecar.CheckHealth(); err != nil {
			logger.Warn("tracking sidecar unreachable, continuing without tracking",
				zap.String("url", *sidecarURL),
				zap.Error(err),
			)
		} else {
			sidecar.Enable()
			tracker = sidecar
		}
	}
	defer tracker.Close()

	cfg := training.Config{
		BatchSize:               *batchSize,
		TestBatchSize:           *testBatchSize,
		LR:                      *lr,
		LRStepSize:              *lrStepSize,
		StartEpoch:              *startEpoch,
		Epochs:                  *epochs,
		TrainingLossLogInterval: *lossInterval,
		OtherMetricsLogInterval: *metricsInterval,
		CheckpointDir:           *checkpointDir,
	}

	trainer, err := training.NewTrainer(*dataRoot, *resized, logger, tracker)
	if err != nil {
		logger.Fatal("failed to build trainer", zap.Error(err))
	}

	if err := trainer.TrainAndEvaluate(cfg, *resumeFrom, *resumeFrom != ""); err != nil {
		logger.Fatal("training run failed", zap.Error(err))
	}
}
