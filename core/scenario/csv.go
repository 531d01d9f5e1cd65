package scenario

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/evgrid/fleetsim/core/sim"
)

// readColumn reads one named numeric column from a time-series CSV file:
// header row first, then one value per fixed-duration step.
func readColumn(path, column string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read series header %s: %w", path, err)
	}
	col := -1
	for i, name := range header {
		if name == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: series %s has no column %q", sim.ErrConfig, path, column)
	}

	var values []float64
	for row := 1; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: series %s row %d: %v", sim.ErrConfig, path, row, err)
		}
		if col >= len(rec) {
			return nil, fmt.Errorf("%w: series %s row %d misses column %q", sim.ErrConfig, path, row, column)
		}
		v, err := strconv.ParseFloat(rec[col], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: series %s row %d column %q: %v", sim.ErrConfig, path, row, column, err)
		}
		values = append(values, v)
	}
	return values, nil
}
