package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesms1246/home-iot-guard/internal/detection/ml"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <labeled-traffic.csv>",
	Short: "Recalibrate the anomaly threshold against a labeled capture",
	Long: `Calibrate scores a labeled capture with the persisted model and
searches for the threshold that keeps detection high while holding the
false positive rate under the configured target. The result is written
to threshold_optimized.txt without retraining.`,
	Args: cobra.ExactArgs(1),
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	artifact, err := ml.LoadArtifact(filepath.Join(cfg.Detection.ArtifactDir, ml.ModelFileName))
	if err != nil {
		return fmt.Errorf("no trained model to calibrate: %w", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	frame, err := ml.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", args[0], err)
	}

	clean, err := ml.Clean(frame)
	if err != nil {
		return err
	}
	if !clean.HasLabels() {
		return errors.New("calibration requires a labeled capture")
	}

	scaled := artifact.Scaler.Transform(clean.Features)
	windows := ml.Windows(scaled, artifact.WindowLength)
	labels := ml.WindowLabels(clean.Labels, artifact.WindowLength)
	if len(windows) == 0 {
		return &ml.InsufficientDataError{Rows: len(clean.Features), WindowLen: artifact.WindowLength}
	}

	trainX, testX, _, testY := ml.SplitWindows(windows, labels, cfg.Detection.TestFraction, cfg.Detection.Train.Seed)

	trainErrors, err := ml.Score(artifact.Model, trainX)
	if err != nil {
		return err
	}
	testErrors, err := ml.Score(artifact.Model, testX)
	if err != nil {
		return err
	}

	calibration, err := ml.Calibrate(trainErrors, testErrors, testY, cfg.Detection.TargetFPR)
	if err != nil {
		return err
	}

	optimizedPath := filepath.Join(cfg.Detection.ArtifactDir, ml.OptimizedThresholdFileName)
	if err := ml.SaveThreshold(optimizedPath, calibration.Threshold); err != nil {
		return err
	}

	logger.Info("threshold recalibrated",
		zap.Float64("threshold", calibration.Threshold),
		zap.String("strategy", calibration.Strategy),
		zap.Float64("detection_rate", calibration.Metrics.DetectionRate),
		zap.Float64("false_positive_rate", calibration.Metrics.FalsePositiveRate),
		zap.String("path", optimizedPath))
	return nil
}
