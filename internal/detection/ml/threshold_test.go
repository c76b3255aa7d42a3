package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	xs := []float64{1, 2, 3, 4}

	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{25, 1.75},
		{50, 2.5},
		{75, 3.25},
		{95, 3.85},
		{100, 4},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, percentile(xs, tt.p), 1e-12, "p=%v", tt.p)
	}

	// Input order must not matter.
	assert.InDelta(t, 2.5, percentile([]float64{4, 1, 3, 2}, 50), 1e-12)
	assert.Equal(t, 0.0, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 95))
}

func TestBaselineThreshold(t *testing.T) {
	// {0, 2}: mean 1, population std 1.
	assert.InDelta(t, 4.0, BaselineThreshold([]float64{0, 2}), 1e-12)
}

func TestPhase1CandidateOrder(t *testing.T) {
	cands := phase1Candidates([]float64{0.1, 0.2, 0.3})
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	assert.Equal(t, []string{
		"mean + 3*std",
		"mean + 2*std",
		"mean + 1*std",
		"mean",
		"95th percentile",
		"90th percentile",
		"85th percentile",
		"80th percentile",
		"75th percentile",
	}, names)
}

func TestCalibratePicksFirstAmongTiedCandidates(t *testing.T) {
	// Training errors cluster tightly around 0.1; anomalous test windows
	// sit an order of magnitude above every candidate, so every candidate
	// reaches full detection with zero false positives and the first one
	// evaluated must win.
	trainErrors := []float64{0.09, 0.1, 0.11, 0.1, 0.1}
	testErrors := []float64{0.05, 0.06, 0.05, 1.0, 1.2}
	testLabels := []int{0, 0, 0, 1, 1}

	cal, err := Calibrate(trainErrors, testErrors, testLabels, DefaultTargetFPR)
	require.NoError(t, err)
	assert.Equal(t, "mean + 3*std", cal.Strategy)
	assert.Equal(t, 1.0, cal.Metrics.DetectionRate)
	assert.Equal(t, 0.0, cal.Metrics.FalsePositiveRate)
}

func TestCalibrateSkipsFailingCandidates(t *testing.T) {
	// Anomalies score 80, benign 10, training errors spread 1..100. The
	// mean+3*std and mean+2*std boundaries sit above 80 and miss every
	// anomaly; mean+1*std (~79.5) is the first candidate that qualifies.
	trainErrors := make([]float64, 100)
	for i := range trainErrors {
		trainErrors[i] = float64(i + 1)
	}
	testErrors := []float64{10, 10, 10, 80, 80}
	testLabels := []int{0, 0, 0, 1, 1}

	cal, err := Calibrate(trainErrors, testErrors, testLabels, DefaultTargetFPR)
	require.NoError(t, err)
	assert.Equal(t, "mean + 1*std", cal.Strategy)
	assert.Equal(t, 1.0, cal.Metrics.DetectionRate)
	assert.Equal(t, 0.0, cal.Metrics.FalsePositiveRate)
}

func TestCalibrateFallbackSweep(t *testing.T) {
	// Benign windows score above anomalous ones, so no candidate can meet
	// the detection floor and the percentile sweep takes over. Thresholds
	// below 95 score detection-2*fpr = -1, thresholds in [95,96) score -2,
	// and the first percentile at or above 96 scores 0 and wins.
	trainErrors := make([]float64, 100)
	for i := range trainErrors {
		trainErrors[i] = float64(i + 1)
	}
	testErrors := []float64{96, 96, 96, 95, 95}
	testLabels := []int{0, 0, 0, 1, 1}

	cal, err := Calibrate(trainErrors, testErrors, testLabels, DefaultTargetFPR)
	require.NoError(t, err)
	assert.Equal(t, "96th percentile", cal.Strategy)
	assert.Equal(t, 0.0, cal.Metrics.DetectionRate)
	assert.Equal(t, 0.0, cal.Metrics.FalsePositiveRate)
	assert.Greater(t, cal.Threshold, 96.0)
}

func TestCalibrateFallbackWorstCaseStillSelects(t *testing.T) {
	// Constant training errors collapse every candidate and percentile to
	// the same threshold, and an all-benign test split scoring above it
	// pins every sweep score at its floor of detection - 2*fpr = -2. Even
	// then Calibrate must hand back a usable calibration, never nil.
	trainErrors := make([]float64, 100)
	for i := range trainErrors {
		trainErrors[i] = 1.0
	}
	testErrors := make([]float64, 10)
	testLabels := make([]int, 10)
	for i := range testErrors {
		testErrors[i] = 2.0
	}

	cal, err := Calibrate(trainErrors, testErrors, testLabels, DefaultTargetFPR)
	require.NoError(t, err)
	require.NotNil(t, cal)
	assert.Equal(t, "50th percentile", cal.Strategy)
	assert.Equal(t, 1.0, cal.Threshold)
	assert.Equal(t, 0.0, cal.Metrics.DetectionRate)
	assert.Equal(t, 1.0, cal.Metrics.FalsePositiveRate)
}

func TestCalibrateDeterministic(t *testing.T) {
	trainErrors := []float64{0.3, 0.1, 0.5, 0.2, 0.4, 0.6, 0.15, 0.35}
	testErrors := []float64{0.1, 0.7, 0.2, 0.9, 0.25, 0.05}
	testLabels := []int{0, 1, 0, 1, 0, 0}

	a, err := Calibrate(trainErrors, testErrors, testLabels, DefaultTargetFPR)
	require.NoError(t, err)
	b, err := Calibrate(trainErrors, testErrors, testLabels, DefaultTargetFPR)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCalibrateInputValidation(t *testing.T) {
	_, err := Calibrate(nil, []float64{0.1}, []int{0}, DefaultTargetFPR)
	assert.Error(t, err)

	_, err = Calibrate([]float64{0.1}, []float64{0.1, 0.2}, []int{0}, DefaultTargetFPR)
	assert.Error(t, err)
}
