package training

import (
	"fmt"
)

// Config holds the hyperparameters of one training run. It is
// immutable for the run's duration.
type Config struct {
	BatchSize     int
	TestBatchSize int

	LR         float64
	LRStepSize int

	StartEpoch int
	Epochs     int

	TrainingLossLogInterval int
	OtherMetricsLogInterval int

	CheckpointDir string
}

// DefaultConfig returns a reasonable baseline configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:               8,
		TestBatchSize:           4,
		LR:                      0.0001,
		LRStepSize:              5,
		StartEpoch:              0,
		Epochs:                  20,
		TrainingLossLogInterval: 10,
		OtherMetricsLogInterval: 50,
		CheckpointDir:           "checkpoints",
	}
}

// Validate checks the configuration for values the loop cannot run
// with.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.TestBatchSize <= 0 {
		return fmt.Errorf("test batch size must be positive, got %d", c.TestBatchSize)
	}
	if c.LR <= 0 {
		return fmt.Errorf("learning rate must be positive, got %f", c.LR)
	}
	if c.Epochs < c.StartEpoch {
		return fmt.Errorf("epochs (%d) must be >= start epoch (%d)", c.Epochs, c.StartEpoch)
	}
	if c.StartEpoch < 0 {
		return fmt.Errorf("start epoch must be non-negative, got %d", c.StartEpoch)
	}
	if c.TrainingLossLogInterval <= 0 {
		return fmt.Errorf("training loss log interval must be positive, got %d", c.TrainingLossLogInterval)
	}
	if c.OtherMetricsLogInterval <= 0 {
		return fmt.Errorf("metrics log interval must be positive, got %d", c.OtherMetricsLogInterval)
	}
	if c.CheckpointDir == "" {
		return fmt.Errorf("checkpoint directory must be set")
	}
	return nil
}
