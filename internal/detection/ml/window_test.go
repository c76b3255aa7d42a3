package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRows(n, features int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, features)
		for j := range rows[i] {
			rows[i][j] = float64(i)
		}
	}
	return rows
}

func TestWindows(t *testing.T) {
	tests := []struct {
		name   string
		rows   int
		length int
		want   int
	}{
		{"typical", 100, 10, 90},
		{"one window", 11, 10, 1},
		{"exactly window length", 10, 10, 0},
		{"fewer than window length", 5, 10, 0},
		{"empty", 0, 10, 0},
		{"zero length", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Windows(makeRows(tt.rows, 4), tt.length)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestWindowsContents(t *testing.T) {
	rows := makeRows(12, 2)
	windows := Windows(rows, 10)
	require.Len(t, windows, 2)

	// Window i covers rows [i, i+L).
	assert.Equal(t, rows[0], windows[0][0])
	assert.Equal(t, rows[9], windows[0][9])
	assert.Equal(t, rows[1], windows[1][0])
	assert.Equal(t, rows[10], windows[1][9])
}

func TestWindowLabels(t *testing.T) {
	labels := make([]int, 15)
	labels[12] = 1

	got := WindowLabels(labels, 10)
	require.Len(t, got, 5)

	// Window i is labeled by the row just past its end, so the anomaly at
	// row 12 lands on window index 2.
	assert.Equal(t, []int{0, 0, 1, 0, 0}, got)
}

func TestWindowLabelsIndependentCopy(t *testing.T) {
	labels := []int{0, 0, 0, 1}
	got := WindowLabels(labels, 2)
	require.Equal(t, []int{0, 1}, got)

	labels[3] = 0
	assert.Equal(t, []int{0, 1}, got)
}
