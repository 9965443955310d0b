package training

import (
	"fmt"

	"monodepth/model"
	"monodepth/tensor"
	"monodepth/vision"
)

const normalizeEps = 1e-8

// normalizeBatch rescales a batch to [0, 1] by its own min and max.
// The range is computed on detached data, so when the input carries
// gradients the rescale participates in the graph as a plain affine
// map.
func normalizeBatch(t *tensor.Tensor) (*tensor.Tensor, error) {
	mn, mx, err := t.MinMax()
	if err != nil {
		return nil, fmt.Errorf("normalize: %v", err)
	}

	shift := tensor.FromScalar(float64(mn), tensor.Float32, t.Device)
	scale := tensor.FromScalar(1.0/(float64(mx-mn)+normalizeEps), tensor.Float32, t.Device)
	return tensor.MulAutograd(tensor.SubAutograd(t, shift), scale), nil
}

// Evaluate runs the model on one batch from a fresh validation loader
// and returns the raw batch, the detached predictions, the combined
// loss and the prediction-quality metrics.
func Evaluate(m model.Module, features *model.FeatureNet, provider *vision.DataLoaders, batchSize int) (images, depths, preds *tensor.Tensor, loss float64, metrics map[string]float64, err error) {
	loader, err := provider.GetValDataLoader(batchSize)
	if err != nil {
		return nil, nil, nil, 0, nil, fmt.Errorf("failed to build validation loader: %v", err)
	}
	batch, err := loader.Next()
	if err != nil {
		return nil, nil, nil, 0, nil, fmt.Errorf("failed to load validation batch: %v", err)
	}

	m.Eval()
	defer m.Train()

	imagesNorm, err := normalizeBatch(batch.Images)
	if err != nil {
		return nil, nil, nil, 0, nil, err
	}
	depthsNorm, err := normalizeBatch(batch.Depths)
	if err != nil {
		return nil, nil, nil, 0, nil, err
	}

	pred, err := m.Forward(imagesNorm)
	if err != nil {
		return nil, nil, nil, 0, nil, fmt.Errorf("validation forward failed: %v", err)
	}

	total, err := combinedObjective(pred, depthsNorm, features)
	if err != nil {
		return nil, nil, nil, 0, nil, err
	}
	lossValue, err := total.Item()
	if err != nil {
		return nil, nil, nil, 0, nil, fmt.Errorf("failed to read validation loss: %v", err)
	}

	detached := pred.Detach()
	metrics, err = model.EvaluatePredictions(detached, depthsNorm)
	if err != nil {
		return nil, nil, nil, 0, nil, fmt.Errorf("failed to compute validation metrics: %v", err)
	}

	return batch.Images, depthsNorm, detached, lossValue, metrics, nil
}

// combinedObjective is the full training loss: per-pixel combined loss
// plus the perceptual feature loss over normalized prediction and
// target activations.
func combinedObjective(pred, target *tensor.Tensor, features *model.FeatureNet) (*tensor.Tensor, error) {
	pixelLoss, err := model.CombinedLoss(pred, target)
	if err != nil {
		return nil, fmt.Errorf("pixel loss: %v", err)
	}
	featLoss, err := featureObjective(pred, target, features)
	if err != nil {
		return nil, err
	}
	return tensor.AddAutograd(pixelLoss, featLoss), nil
}

func featureObjective(pred, target *tensor.Tensor, features *model.FeatureNet) (*tensor.Tensor, error) {
	predNorm, err := normalizeBatch(pred)
	if err != nil {
		return nil, fmt.Errorf("feature loss: %v", err)
	}
	targetNorm, err := normalizeBatch(target)
	if err != nil {
		return nil, fmt.Errorf("feature loss: %v", err)
	}

	actPred, err := features.Relu2_2(predNorm)
	if err != nil {
		return nil, fmt.Errorf("feature loss: %v", err)
	}
	actTarget, err := features.Relu2_2(targetNorm)
	if err != nil {
		return nil, fmt.Errorf("feature loss: %v", err)
	}
	return model.MeanL2Loss(actPred, actTarget)
}
