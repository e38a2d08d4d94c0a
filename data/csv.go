package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/b0tShaman/neurotrain/ml"
)

// LoadCSV reads a numeric CSV with a header row into a Dataset. Columns
// named in targetCols become targets; idCol (empty for none) provides the
// sample ids and is dropped from the features. Every other column is a
// feature.
func LoadCSV(path string, targetCols []string, idCol string) (*ml.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, targetCols, idCol)
}

func ReadCSV(r io.Reader, targetCols []string, idCol string) (*ml.Dataset, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idIdx := -1
	var featureIdx, targetIdx []int
	for i, name := range header {
		switch {
		case name == idCol && idCol != "":
			idIdx = i
		case slices.Contains(targetCols, name):
			targetIdx = append(targetIdx, i)
		default:
			featureIdx = append(featureIdx, i)
		}
	}
	if len(targetIdx) != len(targetCols) {
		return nil, fmt.Errorf("header %v is missing some of the target columns %v", header, targetCols)
	}
	if idCol != "" && idIdx < 0 {
		return nil, fmt.Errorf("header %v has no id column %q", header, idCol)
	}

	var ids []int
	var features, targets [][]float64
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		values := make([]float64, len(record))
		for i, field := range record {
			if i == idIdx {
				continue
			}
			if values[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
		}
		if idIdx >= 0 {
			id, err := strconv.Atoi(record[idIdx])
			if err != nil {
				return nil, fmt.Errorf("line %d id: %w", line, err)
			}
			ids = append(ids, id)
		}
		features = append(features, pick(values, featureIdx))
		targets = append(targets, pick(values, targetIdx))
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no data rows")
	}
	return ml.NewDataset(ids, ml.FromColumnLeading(features), ml.FromColumnLeading(targets))
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = values[i]
	}
	return out
}
