package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesms1246/home-iot-guard/internal/detection/ml"
)

var trainCmd = &cobra.Command{
	Use:   "train <labeled-traffic.csv>",
	Short: "Train the autoencoder on a labeled traffic capture",
	Long: `Train preprocesses a labeled CSV capture, fits the LSTM autoencoder
on it, calibrates the anomaly threshold, and writes the model artifacts
to the configured artifact directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	frame, err := ml.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", args[0], err)
	}

	pipeCfg := ml.PipelineConfig{
		WindowLength: cfg.Detection.WindowLength,
		TestFraction: cfg.Detection.TestFraction,
		TargetFPR:    cfg.Detection.TargetFPR,
		ArtifactDir:  cfg.Detection.ArtifactDir,
		Train: ml.TrainConfig{
			Epochs:       cfg.Detection.Train.Epochs,
			BatchSize:    cfg.Detection.Train.BatchSize,
			LearningRate: cfg.Detection.Train.LearningRate,
			Patience:     cfg.Detection.Train.Patience,
			Seed:         cfg.Detection.Train.Seed,
		},
	}

	report, err := ml.RunPipeline(cmd.Context(), frame, pipeCfg, logger)
	if err != nil {
		return err
	}

	logger.Info("training complete",
		zap.Float64("baseline_threshold", report.Baseline),
		zap.Float64("calibrated_threshold", report.Calibration.Threshold),
		zap.String("strategy", report.Calibration.Strategy))

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
