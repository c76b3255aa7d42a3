package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"
)

// TrainConfig controls the optimization loop.
type TrainConfig struct {
	Epochs       int     `yaml:"epochs" json:"epochs"`
	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Patience     int     `yaml:"patience" json:"patience"`
	Seed         int64   `yaml:"seed" json:"seed"`
}

// DefaultTrainConfig mirrors the settings the model shipped with.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       50,
		BatchSize:    32,
		LearningRate: 0.001,
		Patience:     10,
		Seed:         42,
	}
}

// EpochStats records one epoch of the training history.
type EpochStats struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
}

// TrainResult summarizes a completed training run.
type TrainResult struct {
	History     []EpochStats `json:"history"`
	BestEpoch   int          `json:"best_epoch"`
	BestValLoss float64      `json:"best_val_loss"`
	Stopped     bool         `json:"stopped_early"`
}

// Train optimizes the autoencoder to reconstruct trainX, validating against
// valX after every epoch. Training stops early when validation loss has not
// improved for cfg.Patience epochs, and the parameters from the best
// validation epoch are restored before returning.
//
// ctx is checked between epochs only; that is the same boundary early
// stopping acts on, and the model is left in its best-so-far state when the
// context is canceled.
func Train(ctx context.Context, model *Autoencoder, trainX, valX [][][]float64, cfg TrainConfig, logger *zap.Logger) (*TrainResult, error) {
	if len(trainX) == 0 {
		return nil, fmt.Errorf("train: no training windows")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	params := model.paramSlices()
	grads := newAutoencoderGrads(model)
	gradSlices := grads.slices()
	opt := newAdam(cfg.LearningRate, params)
	rng := rand.New(rand.NewSource(cfg.Seed))

	result := &TrainResult{BestValLoss: math.Inf(1)}
	var bestWeights [][]float64
	sinceImprove := 0

	indices := make([]int, len(trainX))
	for i := range indices {
		indices[i] = i
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			if bestWeights != nil {
				model.restoreWeights(bestWeights)
			}
			return result, ctx.Err()
		default:
		}

		rng.Shuffle(len(indices), func(a, b int) {
			indices[a], indices[b] = indices[b], indices[a]
		})

		var epochLoss float64
		for start := 0; start < len(indices); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(indices) {
				end = len(indices)
			}
			batch := indices[start:end]

			grads.reset()
			var batchLoss float64
			for _, idx := range batch {
				x := trainX[idx]
				wc := model.forwardWindow(x)
				loss, dY := mseGrad(x, wc.y, float64(len(batch)))
				batchLoss += loss
				model.backwardWindow(wc, dY, grads)
			}
			batchLoss /= float64(len(batch))
			if math.IsNaN(batchLoss) || math.IsInf(batchLoss, 0) {
				return nil, &ComputeError{Op: "train", Msg: fmt.Sprintf("non-finite loss at epoch %d", epoch)}
			}
			epochLoss += batchLoss * float64(len(batch))

			opt.step(params, gradSlices)
		}
		epochLoss /= float64(len(indices))

		valLoss := epochLoss
		if len(valX) > 0 {
			v, err := meanLoss(model, valX)
			if err != nil {
				return nil, err
			}
			valLoss = v
		}

		result.History = append(result.History, EpochStats{Epoch: epoch, TrainLoss: epochLoss, ValLoss: valLoss})
		logger.Debug("epoch complete",
			zap.Int("epoch", epoch),
			zap.Float64("train_loss", epochLoss),
			zap.Float64("val_loss", valLoss))

		if valLoss < result.BestValLoss {
			result.BestValLoss = valLoss
			result.BestEpoch = epoch
			bestWeights = model.snapshotWeights()
			sinceImprove = 0
		} else {
			sinceImprove++
			if cfg.Patience > 0 && sinceImprove >= cfg.Patience {
				result.Stopped = true
				logger.Info("early stopping",
					zap.Int("epoch", epoch),
					zap.Int("best_epoch", result.BestEpoch),
					zap.Float64("best_val_loss", result.BestValLoss))
				break
			}
		}
	}

	if bestWeights != nil {
		model.restoreWeights(bestWeights)
	}
	return result, nil
}

// mseGrad returns the mean squared error of one reconstruction and the
// gradient of the batch-mean loss w.r.t. the reconstruction.
func mseGrad(x, y [][]float64, batchSize float64) (float64, [][]float64) {
	n := float64(len(x) * len(x[0]))
	dY := make([][]float64, len(x))
	var sum float64
	for t := range x {
		row := make([]float64, len(x[t]))
		for j := range x[t] {
			d := y[t][j] - x[t][j]
			sum += d * d
			row[j] = 2 * d / (n * batchSize)
		}
		dY[t] = row
	}
	return sum / n, dY
}

// meanLoss computes the mean reconstruction error over a window set.
func meanLoss(model *Autoencoder, windows [][][]float64) (float64, error) {
	errs, err := Score(model, windows)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, e := range errs {
		sum += e
	}
	return sum / float64(len(errs)), nil
}
