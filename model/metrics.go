package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"monodepth/tensor"
)

// Depth values at or below this are excluded from ratio-based metrics
// to keep divisions and logarithms defined.
const depthEps = 1e-6

// EvaluatePredictions computes standard depth-estimation quality
// metrics between a prediction batch and a target batch. The returned
// map always contains the keys rmse, mae, abs_rel, log10, delta1,
// delta2 and delta3.
func EvaluatePredictions(pred, target *tensor.Tensor) (map[string]float64, error) {
	if err := checkLossShapes(pred, target); err != nil {
		return nil, fmt.Errorf("evaluate predictions: %v", err)
	}

	p32, err := pred.GetFloat32Data()
	if err != nil {
		return nil, fmt.Errorf("evaluate predictions: %v", err)
	}
	t32, err := target.GetFloat32Data()
	if err != nil {
		return nil, fmt.Errorf("evaluate predictions: %v", err)
	}
	if len(p32) == 0 {
		return nil, fmt.Errorf("evaluate predictions: empty tensors")
	}

	p := make([]float64, len(p32))
	t := make([]float64, len(t32))
	for i := range p32 {
		p[i] = float64(p32[i])
		t[i] = float64(t32[i])
	}

	diff := make([]float64, len(p))
	floats.SubTo(diff, p, t)

	absDiff := make([]float64, len(diff))
	sqDiff := make([]float64, len(diff))
	for i, d := range diff {
		absDiff[i] = math.Abs(d)
		sqDiff[i] = d * d
	}

	metrics := map[string]float64{
		"rmse": math.Sqrt(stat.Mean(sqDiff, nil)),
		"mae":  stat.Mean(absDiff, nil),
	}

	// Ratio metrics only consider pixels with valid (positive) depth.
	var absRelSum, log10Sum float64
	var d1, d2, d3, valid int
	for i := range t {
		if t[i] <= depthEps {
			continue
		}
		valid++
		absRelSum += absDiff[i] / t[i]

		pi := math.Max(p[i], depthEps)
		log10Sum += math.Abs(math.Log10(pi) - math.Log10(t[i]))

		ratio := math.Max(pi/t[i], t[i]/pi)
		if ratio < 1.25 {
			d1++
		}
		if ratio < 1.25*1.25 {
			d2++
		}
		if ratio < 1.25*1.25*1.25 {
			d3++
		}
	}

	if valid > 0 {
		n := float64(valid)
		metrics["abs_rel"] = absRelSum / n
		metrics["log10"] = log10Sum / n
		metrics["delta1"] = float64(d1) / n
		metrics["delta2"] = float64(d2) / n
		metrics["delta3"] = float64(d3) / n
	} else {
		metrics["abs_rel"] = 0
		metrics["log10"] = 0
		metrics["delta1"] = 0
		metrics["delta2"] = 0
		metrics["delta3"] = 0
	}

	return metrics, nil
}
