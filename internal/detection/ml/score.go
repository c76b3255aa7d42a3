package ml

import (
	"fmt"
	"math"
)

// Severity tiers assigned to anomalous windows.
const (
	SeverityHigh   = "High"
	SeverityMedium = "Medium"
)

// severityMultiplier separates High from Medium relative to the threshold.
const severityMultiplier = 1.5

// ReconstructionError is the mean squared difference between a window and
// its reconstruction, averaged over every (timestep, feature) position.
func ReconstructionError(window, reconstruction [][]float64) float64 {
	var sum float64
	var n int
	for t := range window {
		for j := range window[t] {
			d := reconstruction[t][j] - window[t][j]
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Score reconstructs every window and returns the per-window error vector.
// Non-finite errors abort with a ComputeError rather than leaking NaNs into
// calibration or classification.
func Score(model *Autoencoder, windows [][][]float64) ([]float64, error) {
	errs := make([]float64, len(windows))
	for i, w := range windows {
		e := ReconstructionError(w, model.Reconstruct(w))
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return nil, &ComputeError{Op: "score", Msg: fmt.Sprintf("non-finite reconstruction error for window %d", i)}
		}
		errs[i] = e
	}
	return errs, nil
}

// Classify maps errors to binary predictions: 1 when error > threshold.
// Raising the threshold never increases the anomaly count.
func Classify(errors []float64, threshold float64) []int {
	preds := make([]int, len(errors))
	for i, e := range errors {
		if e > threshold {
			preds[i] = 1
		}
	}
	return preds
}

// Severity tiers an already-anomalous window by how far its error exceeds
// the threshold.
func Severity(err, threshold float64) string {
	if err > severityMultiplier*threshold {
		return SeverityHigh
	}
	return SeverityMedium
}

// Metrics holds confusion counts and the rates derived from them. Every
// rate with a zero denominator is defined as 0.
type Metrics struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalseNegatives int     `json:"false_negatives"`
	Accuracy       float64 `json:"accuracy"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1Score        float64 `json:"f1_score"`
	// DetectionRate equals recall on the anomalous class.
	DetectionRate     float64 `json:"detection_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// Evaluate computes classification metrics from aligned truth/prediction
// vectors. It never panics; mismatched or empty inputs produce all-zero
// metrics.
func Evaluate(yTrue, yPred []int) Metrics {
	var m Metrics
	if len(yTrue) != len(yPred) {
		return m
	}
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			m.TruePositives++
		case yTrue[i] == 0 && yPred[i] == 1:
			m.FalsePositives++
		case yTrue[i] == 0 && yPred[i] == 0:
			m.TrueNegatives++
		default:
			m.FalseNegatives++
		}
	}

	m.Accuracy = safeRatio(float64(m.TruePositives+m.TrueNegatives), float64(m.TruePositives+m.TrueNegatives+m.FalsePositives+m.FalseNegatives))
	m.Precision = safeRatio(float64(m.TruePositives), float64(m.TruePositives+m.FalsePositives))
	m.Recall = safeRatio(float64(m.TruePositives), float64(m.TruePositives+m.FalseNegatives))
	m.F1Score = safeRatio(2*m.Precision*m.Recall, m.Precision+m.Recall)
	m.DetectionRate = m.Recall
	m.FalsePositiveRate = safeRatio(float64(m.FalsePositives), float64(m.FalsePositives+m.TrueNegatives))
	return m
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
