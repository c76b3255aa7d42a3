package ml

// DefaultWindowLength is the sequence length the model was designed around.
const DefaultWindowLength = 10

// Windows slices normalized rows into overlapping fixed-length sequences.
// Window i covers rows [i, i+length). When there are not enough rows for a
// single window (len(rows) <= length) it returns nil; callers decide whether
// that is an error condition.
func Windows(rows [][]float64, length int) [][][]float64 {
	if length <= 0 || len(rows) <= length {
		return nil
	}
	out := make([][][]float64, 0, len(rows)-length)
	for i := 0; i+length < len(rows); i++ {
		out = append(out, rows[i:i+length])
	}
	return out
}

// WindowLabels aligns a per-row label vector with the windows produced by
// Windows: window i takes the label of row i+length, the row immediately
// after the window. This offset is a deliberate carry-over from the trained
// calibration and must match it exactly; realigning to the window's last row
// would silently shift every label by one.
func WindowLabels(labels []int, length int) []int {
	if length <= 0 || len(labels) <= length {
		return nil
	}
	out := make([]int, len(labels)-length)
	copy(out, labels[length:])
	return out
}
