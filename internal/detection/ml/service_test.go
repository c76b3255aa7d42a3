package ml

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesms1246/home-iot-guard/internal/models"
)

// trafficFrame builds a frame with the required feature columns, every
// feature of row i set to values[i].
func trafficFrame(values []float64) *Frame {
	f := &Frame{Columns: append([]string{}, RequiredFeatures...)}
	for _, v := range values {
		cell := fmt.Sprintf("%g", v)
		f.Rows = append(f.Rows, []string{cell, cell, cell, cell})
	}
	return f
}

// writeTestArtifact persists an untrained seeded model with an identity
// scaler so scan behavior is deterministic.
func writeTestArtifact(t *testing.T, dir string, windowLength int) {
	t.Helper()
	artifact := &Artifact{
		TrainedAt:    time.Now().UTC(),
		WindowLength: windowLength,
		FeatureNames: RequiredFeatures,
		Scaler:       &Scaler{Mean: []float64{0, 0, 0, 0}, Std: []float64{1, 1, 1, 1}},
		Model:        NewAutoencoder(windowLength, len(RequiredFeatures), 42),
	}
	require.NoError(t, SaveArtifact(filepath.Join(dir, ModelFileName), artifact))
}

type captureNotifier struct {
	calls chan int
}

func (n *captureNotifier) Notify(anomalyCount int, details []models.AnomalyDetail, totalWindows int) error {
	n.calls <- anomalyCount
	return nil
}

func TestServiceScanFlagsSpikedWindows(t *testing.T) {
	dir := t.TempDir()
	writeTestArtifact(t, dir, 10)
	require.NoError(t, SaveThreshold(filepath.Join(dir, OptimizedThresholdFileName), 1.0))

	notifier := &captureNotifier{calls: make(chan int, 1)}
	svc := NewService(ServiceConfig{ArtifactDir: dir, DefaultThreshold: DefaultThreshold}, notifier, zap.NewNop())
	require.NoError(t, svc.Load())
	require.True(t, svc.Ready())

	snap := svc.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 1.0, snap.Threshold)
	assert.Equal(t, OptimizedThresholdFileName, snap.ThresholdSource)

	// 100 flat rows with a burst at rows 40-45. Reconstruction error on a
	// flat window stays small even untrained; any window overlapping the
	// burst is dominated by the squared spike magnitude.
	values := make([]float64, 100)
	for i := 40; i <= 45; i++ {
		values[i] = 49
	}

	summary, err := svc.Scan(context.Background(), trafficFrame(values))
	require.NoError(t, err)

	assert.Equal(t, 90, summary.TotalWindows)
	assert.Equal(t, 1.0, summary.Threshold)

	// Windows [31,45] are exactly those overlapping the burst.
	require.Equal(t, 15, summary.AnomalyCount)
	require.Len(t, summary.Details, 15)
	for i, d := range summary.Details {
		assert.Equal(t, 31+i, d.WindowIndex)
		assert.Equal(t, fmt.Sprintf("%d-%d", d.WindowIndex, d.WindowIndex+10), d.Rows)
		assert.Greater(t, d.Error, 1.0)
		assert.Equal(t, SeverityHigh, d.Severity)
	}
	assert.InDelta(t, 15.0/90.0*100, summary.Percentage, 1e-9)

	select {
	case count := <-notifier.calls:
		assert.Equal(t, 15, count)
	case <-time.After(time.Second):
		t.Fatal("notifier was not invoked")
	}

	m := svc.Metrics()
	assert.Equal(t, int64(1), m.TotalScans)
	assert.Equal(t, int64(15), m.AnomaliesDetected)
	assert.False(t, m.LastScanTime.IsZero())
}

func TestServiceScanWithoutModel(t *testing.T) {
	svc := NewService(ServiceConfig{ArtifactDir: t.TempDir()}, nil, zap.NewNop())
	require.Error(t, svc.Load())
	assert.False(t, svc.Ready())

	_, err := svc.Scan(context.Background(), trafficFrame(make([]float64, 20)))
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestServiceScanInsufficientRows(t *testing.T) {
	dir := t.TempDir()
	writeTestArtifact(t, dir, 10)

	svc := NewService(ServiceConfig{ArtifactDir: dir, DefaultThreshold: DefaultThreshold}, nil, zap.NewNop())
	require.NoError(t, svc.Load())

	_, err := svc.Scan(context.Background(), trafficFrame(make([]float64, 5)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 5, ide.Rows)
	assert.Equal(t, 10, ide.WindowLen)
}

func TestServiceScanMissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeTestArtifact(t, dir, 10)

	svc := NewService(ServiceConfig{ArtifactDir: dir, DefaultThreshold: DefaultThreshold}, nil, zap.NewNop())
	require.NoError(t, svc.Load())

	frame := &Frame{
		Columns: []string{"orig_pkts", "resp_pkts", "orig_bytes"},
		Rows:    [][]string{{"1", "1", "1"}},
	}
	_, err := svc.Scan(context.Background(), frame)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestServiceThresholdFallback(t *testing.T) {
	t.Run("baseline file", func(t *testing.T) {
		dir := t.TempDir()
		writeTestArtifact(t, dir, 10)
		require.NoError(t, SaveThreshold(filepath.Join(dir, ThresholdFileName), 0.4))

		svc := NewService(ServiceConfig{ArtifactDir: dir, DefaultThreshold: 0.12}, nil, zap.NewNop())
		require.NoError(t, svc.Load())
		assert.Equal(t, 0.4, svc.Snapshot().Threshold)
		assert.Equal(t, ThresholdFileName, svc.Snapshot().ThresholdSource)
	})

	t.Run("optimized preferred over baseline", func(t *testing.T) {
		dir := t.TempDir()
		writeTestArtifact(t, dir, 10)
		require.NoError(t, SaveThreshold(filepath.Join(dir, ThresholdFileName), 0.4))
		require.NoError(t, SaveThreshold(filepath.Join(dir, OptimizedThresholdFileName), 0.2))

		svc := NewService(ServiceConfig{ArtifactDir: dir, DefaultThreshold: 0.12}, nil, zap.NewNop())
		require.NoError(t, svc.Load())
		assert.Equal(t, 0.2, svc.Snapshot().Threshold)
	})

	t.Run("default when no files", func(t *testing.T) {
		dir := t.TempDir()
		writeTestArtifact(t, dir, 10)

		svc := NewService(ServiceConfig{ArtifactDir: dir, DefaultThreshold: 0.12}, nil, zap.NewNop())
		require.NoError(t, svc.Load())
		assert.Equal(t, 0.12, svc.Snapshot().Threshold)
		assert.Equal(t, "default", svc.Snapshot().ThresholdSource)
	})
}

func TestServiceReloadSwapsSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeTestArtifact(t, dir, 10)

	svc := NewService(ServiceConfig{ArtifactDir: dir, DefaultThreshold: 0.12}, nil, zap.NewNop())
	require.NoError(t, svc.Load())
	assert.Equal(t, "default", svc.Snapshot().ThresholdSource)

	require.NoError(t, SaveThreshold(filepath.Join(dir, OptimizedThresholdFileName), 0.3))
	require.NoError(t, svc.Reload())
	assert.Equal(t, 0.3, svc.Snapshot().Threshold)
	assert.Equal(t, OptimizedThresholdFileName, svc.Snapshot().ThresholdSource)
}
