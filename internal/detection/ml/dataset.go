package ml

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Required numeric feature columns, in the fixed order the model consumes
// them. Uploads may carry them in any order; extra columns are ignored.
var RequiredFeatures = []string{"orig_pkts", "resp_pkts", "orig_bytes", "resp_bytes"}

// LabelColumn is the optional ground-truth column. Timestamp and any other
// extra columns are ignored by the numeric pipeline.
const LabelColumn = "label"

// Frame is a raw tabular batch: a header row plus string cells. Cells are
// kept as strings until Clean decides which rows survive and how columns
// are typed.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// ReadCSV parses a CSV stream with a header row into a Frame.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	f := &Frame{Columns: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		f.Rows = append(f.Rows, record)
	}

	return f, nil
}

// columnIndex returns the position of name in the header, or -1.
func (f *Frame) columnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
