package ml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// PipelineConfig configures a full training run.
type PipelineConfig struct {
	WindowLength int         `yaml:"window_length"`
	TestFraction float64     `yaml:"test_fraction"`
	TargetFPR    float64     `yaml:"target_fpr"`
	ArtifactDir  string      `yaml:"artifact_dir"`
	Train        TrainConfig `yaml:"train"`
}

// DefaultPipelineConfig returns the standard training setup.
func DefaultPipelineConfig(artifactDir string) PipelineConfig {
	return PipelineConfig{
		WindowLength: DefaultWindowLength,
		TestFraction: 0.2,
		TargetFPR:    DefaultTargetFPR,
		ArtifactDir:  artifactDir,
		Train:        DefaultTrainConfig(),
	}
}

// PipelineReport summarizes a completed training run.
type PipelineReport struct {
	Rows         int          `json:"rows"`
	DroppedRows  int          `json:"dropped_rows"`
	Windows      int          `json:"windows"`
	TrainWindows int          `json:"train_windows"`
	TestWindows  int          `json:"test_windows"`
	Training     *TrainResult `json:"training"`
	Baseline     float64      `json:"baseline_threshold"`
	Calibration  *Calibration `json:"calibration"`
	TrainMetrics Metrics      `json:"train_metrics"`
	TestMetrics  Metrics      `json:"test_metrics"`
}

// RunPipeline executes the full training sequence on a labeled traffic
// table: preprocess and window the data, train the autoencoder, calibrate
// the decision threshold, evaluate both splits, and persist the artifacts.
// Phases run strictly in that order and the run is not resumable mid-phase.
func RunPipeline(ctx context.Context, frame *Frame, cfg PipelineConfig, logger *zap.Logger) (*PipelineReport, error) {
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = DefaultWindowLength
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = 0.2
	}
	if cfg.TargetFPR <= 0 {
		cfg.TargetFPR = DefaultTargetFPR
	}

	// Preprocess.
	clean, err := Clean(frame)
	if err != nil {
		return nil, err
	}
	if !clean.HasLabels() {
		return nil, fmt.Errorf("training data must carry a %q column", LabelColumn)
	}
	if len(clean.Features) <= cfg.WindowLength {
		return nil, &InsufficientDataError{Rows: len(clean.Features), WindowLen: cfg.WindowLength}
	}

	scaler := FitScaler(clean.Features)
	normalized := scaler.Transform(clean.Features)

	windows := Windows(normalized, cfg.WindowLength)
	labels := WindowLabels(clean.Labels, cfg.WindowLength)

	trainX, testX, trainY, testY := SplitWindows(windows, labels, cfg.TestFraction, cfg.Train.Seed)

	report := &PipelineReport{
		Rows:         len(clean.Features),
		DroppedRows:  clean.Dropped,
		Windows:      len(windows),
		TrainWindows: len(trainX),
		TestWindows:  len(testX),
	}
	logger.Info("training data prepared",
		zap.Int("rows", report.Rows),
		zap.Int("dropped", report.DroppedRows),
		zap.Int("train_windows", report.TrainWindows),
		zap.Int("test_windows", report.TestWindows))

	// TRAIN. The autoencoder learns to reconstruct its own input; the test
	// split doubles as the validation set for early stopping.
	model := NewAutoencoder(cfg.WindowLength, len(RequiredFeatures), cfg.Train.Seed)
	training, err := Train(ctx, model, trainX, testX, cfg.Train, logger)
	if err != nil {
		return nil, err
	}
	report.Training = training

	// CALIBRATE.
	trainErrors, err := Score(model, trainX)
	if err != nil {
		return nil, err
	}
	testErrors, err := Score(model, testX)
	if err != nil {
		return nil, err
	}

	report.Baseline = BaselineThreshold(trainErrors)
	calibration, err := Calibrate(trainErrors, testErrors, testY, cfg.TargetFPR)
	if err != nil {
		return nil, err
	}
	report.Calibration = calibration
	logger.Info("threshold calibrated",
		zap.Float64("baseline", report.Baseline),
		zap.Float64("threshold", calibration.Threshold),
		zap.String("strategy", calibration.Strategy))

	// EVALUATE.
	report.TrainMetrics = Evaluate(trainY, Classify(trainErrors, calibration.Threshold))
	report.TestMetrics = Evaluate(testY, Classify(testErrors, calibration.Threshold))
	logger.Info("evaluation complete",
		zap.Float64("detection_rate", report.TestMetrics.DetectionRate),
		zap.Float64("false_positive_rate", report.TestMetrics.FalsePositiveRate),
		zap.Float64("f1", report.TestMetrics.F1Score))

	// PERSIST.
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	artifact := &Artifact{
		SchemaVersion: ArtifactSchemaVersion,
		TrainedAt:     time.Now().UTC(),
		WindowLength:  cfg.WindowLength,
		FeatureNames:  RequiredFeatures,
		Scaler:        scaler,
		Model:         model,
	}
	if err := SaveArtifact(filepath.Join(cfg.ArtifactDir, ModelFileName), artifact); err != nil {
		return nil, err
	}
	if err := SaveThreshold(filepath.Join(cfg.ArtifactDir, ThresholdFileName), report.Baseline); err != nil {
		return nil, err
	}
	if err := SaveThreshold(filepath.Join(cfg.ArtifactDir, OptimizedThresholdFileName), calibration.Threshold); err != nil {
		return nil, err
	}
	logger.Info("artifacts persisted", zap.String("dir", cfg.ArtifactDir))

	return report, nil
}
