package ml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/charlesms1246/home-iot-guard/internal/models"
)

// maxDetailEntries caps the per-scan anomaly detail list.
const maxDetailEntries = 100

// DefaultThreshold is the last-resort decision boundary when no threshold
// file exists at all.
const DefaultThreshold = 0.12

// Snapshot is one immutable generation of inference state. Concurrent scans
// each hold their own snapshot pointer; Reload publishes a new generation
// atomically and never mutates a published one.
type Snapshot struct {
	Model           *Autoencoder
	Scaler          *Scaler
	WindowLength    int
	Threshold       float64
	ThresholdSource string
	TrainedAt       time.Time
	LoadedAt        time.Time
}

// Notifier receives best-effort anomaly notifications. Implementations must
// tolerate being called from multiple goroutines.
type Notifier interface {
	Notify(anomalyCount int, details []models.AnomalyDetail, totalWindows int) error
}

// ServiceConfig configures the detection service.
type ServiceConfig struct {
	ArtifactDir      string
	DefaultThreshold float64
}

// ServiceMetrics tracks scan activity since process start.
type ServiceMetrics struct {
	TotalScans        int64     `json:"total_scans"`
	AnomaliesDetected int64     `json:"anomalies_detected"`
	LastScanTime      time.Time `json:"last_scan_time"`
	AverageLatency    float64   `json:"average_latency_seconds"`
	totalLatency      float64
}

// Service owns the inference lifecycle: loading persisted artifacts into an
// immutable snapshot, scanning uploaded batches against it, and swapping in
// new artifacts without interrupting concurrent callers.
type Service struct {
	cfg      ServiceConfig
	notifier Notifier
	logger   *zap.Logger

	snap atomic.Pointer[Snapshot]

	mu      sync.Mutex
	metrics ServiceMetrics
}

// NewService creates a detection service. Call Load (or Reload) before
// scanning; a service without a snapshot degrades to explicit
// model-unavailable results rather than crashing.
func NewService(cfg ServiceConfig, notifier Notifier, logger *zap.Logger) *Service {
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = DefaultThreshold
	}
	return &Service{cfg: cfg, notifier: notifier, logger: logger}
}

// Load reads the persisted model, scaler, and threshold and atomically
// publishes them as the current snapshot.
func (s *Service) Load() error {
	artifact, err := LoadArtifact(filepath.Join(s.cfg.ArtifactDir, ModelFileName))
	if err != nil {
		return err
	}

	threshold, source := s.resolveThreshold()

	snap := &Snapshot{
		Model:           artifact.Model,
		Scaler:          artifact.Scaler,
		WindowLength:    artifact.WindowLength,
		Threshold:       threshold,
		ThresholdSource: source,
		TrainedAt:       artifact.TrainedAt,
		LoadedAt:        time.Now(),
	}
	s.snap.Store(snap)

	s.logger.Info("model snapshot loaded",
		zap.String("artifact_dir", s.cfg.ArtifactDir),
		zap.Int("window_length", snap.WindowLength),
		zap.Float64("threshold", snap.Threshold),
		zap.String("threshold_source", snap.ThresholdSource))
	return nil
}

// Reload re-reads artifacts from disk and swaps the snapshot. In-flight
// scans keep the generation they started with.
func (s *Service) Reload() error { return s.Load() }

// resolveThreshold walks the fallback chain: optimized file, baseline file,
// fixed default. Every fallback step is logged.
func (s *Service) resolveThreshold() (float64, string) {
	optimized := filepath.Join(s.cfg.ArtifactDir, OptimizedThresholdFileName)
	if v, err := LoadThreshold(optimized); err == nil {
		return v, OptimizedThresholdFileName
	} else if !os.IsNotExist(err) {
		s.logger.Warn("unreadable optimized threshold file", zap.String("path", optimized), zap.Error(err))
	} else {
		s.logger.Info("optimized threshold not found, falling back", zap.String("path", optimized))
	}

	baseline := filepath.Join(s.cfg.ArtifactDir, ThresholdFileName)
	if v, err := LoadThreshold(baseline); err == nil {
		return v, ThresholdFileName
	} else if !os.IsNotExist(err) {
		s.logger.Warn("unreadable threshold file", zap.String("path", baseline), zap.Error(err))
	} else {
		s.logger.Info("baseline threshold not found, falling back", zap.String("path", baseline))
	}

	s.logger.Warn("no threshold file found, using default", zap.Float64("default", s.cfg.DefaultThreshold))
	return s.cfg.DefaultThreshold, "default"
}

// Ready reports whether a model snapshot is loaded.
func (s *Service) Ready() bool { return s.snap.Load() != nil }

// Snapshot returns the current inference snapshot, or nil when no model is
// loaded.
func (s *Service) Snapshot() *Snapshot { return s.snap.Load() }

// Metrics returns a copy of the scan counters.
func (s *Service) Metrics() ServiceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Scan runs anomaly detection over one uploaded batch: normalize with the
// persisted scaler, window, reconstruct, and classify each window against
// the loaded threshold. When anomalies are found the notifier is invoked in
// the background; notification failures never affect the returned result.
func (s *Service) Scan(ctx context.Context, frame *Frame) (*models.ScanSummary, error) {
	start := time.Now()

	snap := s.snap.Load()
	if snap == nil {
		return nil, &ModelUnavailableError{Path: s.cfg.ArtifactDir}
	}

	clean, err := Clean(frame)
	if err != nil {
		return nil, err
	}
	if len(clean.Features) <= snap.WindowLength {
		return nil, &InsufficientDataError{Rows: len(clean.Features), WindowLen: snap.WindowLength}
	}

	normalized := snap.Scaler.Transform(clean.Features)
	windows := Windows(normalized, snap.WindowLength)

	errs, err := Score(snap.Model, windows)
	if err != nil {
		return nil, err
	}
	preds := Classify(errs, snap.Threshold)

	summary := &models.ScanSummary{
		TotalWindows: len(windows),
		Threshold:    snap.Threshold,
	}
	for i, p := range preds {
		if p != 1 {
			continue
		}
		summary.AnomalyCount++
		if len(summary.Details) < maxDetailEntries {
			summary.Details = append(summary.Details, models.AnomalyDetail{
				WindowIndex: i,
				Rows:        fmt.Sprintf("%d-%d", i, i+snap.WindowLength),
				Error:       errs[i],
				Severity:    Severity(errs[i], snap.Threshold),
			})
		}
	}
	if summary.TotalWindows > 0 {
		summary.Percentage = float64(summary.AnomalyCount) / float64(summary.TotalWindows) * 100
	}

	s.recordScan(summary, time.Since(start))

	if summary.AnomalyCount > 0 && s.notifier != nil {
		details := summary.Details
		count := summary.AnomalyCount
		total := summary.TotalWindows
		go func() {
			if err := s.notifier.Notify(count, details, total); err != nil {
				s.logger.Warn("anomaly notification failed", zap.Error(err))
			}
		}()
	}

	return summary, nil
}

func (s *Service) recordScan(summary *models.ScanSummary, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.TotalScans++
	s.metrics.AnomaliesDetected += int64(summary.AnomalyCount)
	s.metrics.LastScanTime = time.Now()
	s.metrics.totalLatency += elapsed.Seconds()
	s.metrics.AverageLatency = s.metrics.totalLatency / float64(s.metrics.TotalScans)
}
