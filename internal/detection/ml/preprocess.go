package ml

import (
	"math/rand"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Scaler holds per-feature affine normalization parameters fit on the
// training split. It is persisted with the model and applied unmodified at
// inference; Transform never mutates the scaler.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes the per-column mean and population standard deviation
// of rows and returns the fitted scaler.
func FitScaler(rows [][]float64) *Scaler {
	if len(rows) == 0 {
		return &Scaler{}
	}
	nFeatures := len(rows[0])
	s := &Scaler{
		Mean: make([]float64, nFeatures),
		Std:  make([]float64, nFeatures),
	}
	col := make([]float64, len(rows))
	for j := 0; j < nFeatures; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		s.Std[j] = stat.PopStdDev(col, nil)
	}
	return s
}

// Transform returns (x - mean) / std applied column-wise. A zero-variance
// column is passed through centered only so constant features never divide
// by zero.
func (s *Scaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			std := s.Std[j]
			if std == 0 {
				std = 1
			}
			scaled[j] = (v - s.Mean[j]) / std
		}
		out[i] = scaled
	}
	return out
}

// CleanResult is the output of Clean: feature rows in RequiredFeatures
// order, optional 0/1 labels aligned with those rows, and the count of
// dropped rows.
type CleanResult struct {
	Features [][]float64
	Labels   []int
	Dropped  int
}

// HasLabels reports whether the cleaned table carried a label column.
func (c *CleanResult) HasLabels() bool { return c.Labels != nil }

// Clean validates and scrubs a raw frame: it checks that every required
// feature column is present, drops any row containing a missing or
// unparseable value in any column, selects the required features in fixed
// order, and maps label strings to 0/1.
//
// The timestamp column is ignored entirely. Clean is a pure transform; it
// does not normalize (see FitScaler/Transform).
func Clean(f *Frame) (*CleanResult, error) {
	featureIdx := make([]int, len(RequiredFeatures))
	var missing []string
	for i, name := range RequiredFeatures {
		idx := f.columnIndex(name)
		if idx < 0 {
			missing = append(missing, name)
		}
		featureIdx[i] = idx
	}
	if len(missing) > 0 {
		return nil, &MissingFeatureError{Columns: missing}
	}

	labelIdx := f.columnIndex(LabelColumn)

	result := &CleanResult{}
	if labelIdx >= 0 {
		result.Labels = []int{}
	}

	for rowNum, row := range f.Rows {
		if rowHasMissing(row, len(f.Columns)) {
			result.Dropped++
			continue
		}

		features := make([]float64, len(featureIdx))
		parseable := true
		for j, idx := range featureIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
			if err != nil {
				parseable = false
				break
			}
			features[j] = v
		}
		if !parseable {
			result.Dropped++
			continue
		}

		if labelIdx >= 0 {
			label, err := mapLabel(row[labelIdx], rowNum)
			if err != nil {
				return nil, err
			}
			result.Labels = append(result.Labels, label)
		}
		result.Features = append(result.Features, features)
	}

	return result, nil
}

// rowHasMissing reports whether any cell of the row is empty or an NA
// marker. Short rows count as missing in every trailing column.
func rowHasMissing(row []string, nCols int) bool {
	if len(row) < nCols {
		return true
	}
	for _, cell := range row {
		v := strings.TrimSpace(cell)
		if v == "" || strings.EqualFold(v, "nan") || strings.EqualFold(v, "na") {
			return true
		}
	}
	return false
}

// mapLabel converts a label cell to 0 (benign) or 1 (malicious). Numeric
// 0/1 pass through unchanged.
func mapLabel(raw string, row int) (int, error) {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "benign", "0":
		return 0, nil
	case "malicious", "1":
		return 1, nil
	}
	return 0, &UnknownLabelError{Label: v, Row: row}
}

// SplitWindows partitions windows and their labels into train and test sets
// using a seeded shuffle, testFrac of the data going to the test side.
// Identical inputs and seed always produce the identical split.
func SplitWindows(windows [][][]float64, labels []int, testFrac float64, seed int64) (trainX, testX [][][]float64, trainY, testY []int) {
	n := len(windows)
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	nTest := int(float64(n) * testFrac)
	testIdx := perm[:nTest]
	trainIdx := perm[nTest:]

	for _, i := range trainIdx {
		trainX = append(trainX, windows[i])
		if labels != nil {
			trainY = append(trainY, labels[i])
		}
	}
	for _, i := range testIdx {
		testX = append(testX, windows[i])
		if labels != nil {
			testY = append(testY, labels[i])
		}
	}
	return trainX, testX, trainY, testY
}
