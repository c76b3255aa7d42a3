package ml

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// labeledFrame builds a labeled capture: benign rows with mild noise and a
// malicious burst of large transfers.
func labeledFrame(n int, maliciousFrom, maliciousTo int) *Frame {
	rng := rand.New(rand.NewSource(5))
	f := &Frame{Columns: append(append([]string{}, RequiredFeatures...), LabelColumn)}
	for i := 0; i < n; i++ {
		label := "benign"
		scale := 1.0
		if i >= maliciousFrom && i <= maliciousTo {
			label = "malicious"
			scale = 40.0
		}
		row := make([]string, 0, len(RequiredFeatures)+1)
		for range RequiredFeatures {
			row = append(row, fmt.Sprintf("%g", scale*(1+0.1*rng.Float64())))
		}
		f.Rows = append(f.Rows, append(row, label))
	}
	return f
}

func TestRunPipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := PipelineConfig{
		WindowLength: 5,
		TestFraction: 0.25,
		TargetFPR:    DefaultTargetFPR,
		ArtifactDir:  dir,
		Train:        TrainConfig{Epochs: 3, BatchSize: 8, LearningRate: 0.01, Patience: 3, Seed: 1},
	}

	report, err := RunPipeline(context.Background(), labeledFrame(60, 40, 45), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 60, report.Rows)
	assert.Equal(t, 0, report.DroppedRows)
	assert.Equal(t, 55, report.Windows)
	assert.Equal(t, report.Windows, report.TrainWindows+report.TestWindows)
	require.NotNil(t, report.Training)
	assert.NotEmpty(t, report.Training.History)
	require.NotNil(t, report.Calibration)
	assert.NotEmpty(t, report.Calibration.Strategy)
	assert.Greater(t, report.Baseline, 0.0)

	// All three artifacts are persisted.
	for _, name := range []string{ModelFileName, ThresholdFileName, OptimizedThresholdFileName} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	// The persisted baseline matches the report.
	baseline, err := LoadThreshold(filepath.Join(dir, ThresholdFileName))
	require.NoError(t, err)
	assert.Equal(t, report.Baseline, baseline)

	optimized, err := LoadThreshold(filepath.Join(dir, OptimizedThresholdFileName))
	require.NoError(t, err)
	assert.Equal(t, report.Calibration.Threshold, optimized)

	// A service can load the result straight away.
	svc := NewService(ServiceConfig{ArtifactDir: dir, DefaultThreshold: DefaultThreshold}, nil, zap.NewNop())
	require.NoError(t, svc.Load())
	assert.Equal(t, OptimizedThresholdFileName, svc.Snapshot().ThresholdSource)
}

func TestRunPipelineRequiresLabels(t *testing.T) {
	frame := trafficFrame(make([]float64, 30))
	_, err := RunPipeline(context.Background(), frame, DefaultPipelineConfig(t.TempDir()), zap.NewNop())
	assert.Error(t, err)
}

func TestRunPipelineInsufficientData(t *testing.T) {
	_, err := RunPipeline(context.Background(), labeledFrame(8, 4, 5), DefaultPipelineConfig(t.TempDir()), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}
