package ml

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
)

var ErrParamsMismatch = errors.New("parameter layout mismatch")

// NetworkParams is a snapshot of every layer's learnable matrices, indexed
// by layer order and then by the layer's own tensor order. Parameterless
// layers keep an empty entry so positions stay aligned with the network.
type NetworkParams [][]*Matrix

func (p NetworkParams) Clone() NetworkParams {
	out := make(NetworkParams, len(p))
	for i, layer := range p {
		out[i] = make([]*Matrix, len(layer))
		for j, m := range layer {
			out[i][j] = m.Clone()
		}
	}
	return out
}

// Records flattens the snapshot into one record per tensor:
// [layer, tensor, cols, row-major values...]. A parameterless layer is
// written as [layer, -1].
func (p NetworkParams) Records() [][]float64 {
	var records [][]float64
	for i, layer := range p {
		if len(layer) == 0 {
			records = append(records, []float64{float64(i), -1})
			continue
		}
		for j, m := range layer {
			rec := make([]float64, 0, 3+len(m.data))
			rec = append(rec, float64(i), float64(j), float64(m.cols))
			rec = append(rec, m.data...)
			records = append(records, rec)
		}
	}
	return records
}

// ParamsFromRecords rebuilds a snapshot written by Records. Records must
// appear in their original order.
func ParamsFromRecords(records [][]float64) (NetworkParams, error) {
	var p NetworkParams
	for n, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("record %d: too short: %w", n, ErrParamsMismatch)
		}
		layer := int(rec[0])
		if layer < 0 {
			return nil, fmt.Errorf("record %d: negative layer %d: %w", n, layer, ErrParamsMismatch)
		}
		if layer != len(p) && layer != len(p)-1 {
			return nil, fmt.Errorf("record %d: layer %d out of order: %w", n, layer, ErrParamsMismatch)
		}
		if layer == len(p) {
			p = append(p, nil)
		}
		if rec[1] == -1 {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("record %d: missing column count: %w", n, ErrParamsMismatch)
		}
		tensor, cols := int(rec[1]), int(rec[2])
		if tensor != len(p[layer]) {
			return nil, fmt.Errorf("record %d: tensor %d out of order: %w", n, tensor, ErrParamsMismatch)
		}
		values := rec[3:]
		if cols <= 0 || len(values)%cols != 0 {
			return nil, fmt.Errorf("record %d: %d values do not fill %d columns: %w", n, len(values), cols, ErrParamsMismatch)
		}
		data := make([]float64, len(values))
		copy(data, values)
		p[layer] = append(p[layer], NewMatrixFromSlice(len(values)/cols, cols, data))
	}
	return p, nil
}

// AverageParams is the element-wise mean of snapshots with identical layouts.
func AverageParams(snapshots ...NetworkParams) (NetworkParams, error) {
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no snapshots to average: %w", ErrParamsMismatch)
	}
	avg := snapshots[0].Clone()
	for k, s := range snapshots[1:] {
		if err := sameLayout(avg, s); err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", k+1, err)
		}
		for i := range avg {
			for j := range avg[i] {
				floats.Add(avg[i][j].data, s[i][j].data)
			}
		}
	}
	scale := 1.0 / float64(len(snapshots))
	for _, layer := range avg {
		for _, m := range layer {
			floats.Scale(scale, m.data)
		}
	}
	return avg, nil
}

func sameLayout(a, b NetworkParams) error {
	if len(a) != len(b) {
		return fmt.Errorf("%d layers vs %d: %w", len(a), len(b), ErrParamsMismatch)
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return fmt.Errorf("layer %d: %d tensors vs %d: %w", i, len(a[i]), len(b[i]), ErrParamsMismatch)
		}
		for j := range a[i] {
			if a[i][j].rows != b[i][j].rows || a[i][j].cols != b[i][j].cols {
				return fmt.Errorf("layer %d tensor %d: [%d, %d] vs [%d, %d]: %w", i, j,
					a[i][j].rows, a[i][j].cols, b[i][j].rows, b[i][j].cols, ErrParamsMismatch)
			}
		}
	}
	return nil
}

// SaveParams writes the snapshot to a gob file.
func SaveParams(filename string, p NetworkParams) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(p.Records()); err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	return file.Close()
}

func LoadParams(filename string) (NetworkParams, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var records [][]float64
	if err := gob.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode gob file: %w", err)
	}
	return ParamsFromRecords(records)
}
