package ml

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// Dataset pairs features (I×N) and targets (J×N). IDs tag each column so
// validation predictions can be matched back to source rows; they never
// reach the network.
type Dataset struct {
	IDs []int
	X   *Matrix
	Y   *Matrix
}

// NewDataset checks that X, Y and ids agree on the sample count and that ids
// are unique. A nil ids slice numbers the samples 0..N-1.
func NewDataset(ids []int, X, Y *Matrix) (*Dataset, error) {
	if X.cols != Y.cols {
		return nil, fmt.Errorf("features have %d samples, targets have %d", X.cols, Y.cols)
	}
	if ids == nil {
		ids = NewIndexList(X.cols)
	}
	if len(ids) != X.cols {
		return nil, fmt.Errorf("%d ids for %d samples", len(ids), X.cols)
	}
	seen := make(map[int]struct{}, len(ids))
	for j, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("sample %d repeats id %d", j, id)
		}
		seen[id] = struct{}{}
	}
	return &Dataset{IDs: ids, X: X, Y: Y}, nil
}

func (d *Dataset) Len() int { return d.X.cols }

// Subset copies the given sample positions, in order.
func (d *Dataset) Subset(idx []int) *Dataset {
	ids := make([]int, len(idx))
	for k, j := range idx {
		ids[k] = d.IDs[j]
	}
	return &Dataset{IDs: ids, X: d.X.SelectColumns(idx), Y: d.Y.SelectColumns(idx)}
}

// ------ DATA HANDLING HELPERS ------
func NewIndexList(size int) []int {
	indices := make([]int, size)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func ShuffleIndices(indices []int, rng *rand.Rand) {
	swap := func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	}
	if rng == nil {
		rand.Shuffle(len(indices), swap)
		return
	}
	rng.Shuffle(len(indices), swap)
}

// KFoldIndices partitions sample positions 0..n-1 into k contiguous,
// near-equal folds (sizes differ by at most one). A non-nil rng shuffles
// positions first. Every position lands in exactly one fold.
func KFoldIndices(n, k int, rng *rand.Rand) [][]int {
	if k < 2 || k > n {
		panic(fmt.Sprintf("Cannot split %d samples into %d folds", n, k))
	}
	order := NewIndexList(n)
	if rng != nil {
		ShuffleIndices(order, rng)
	}
	folds := make([][]int, k)
	for i := range folds {
		from, to := i*n/k, (i+1)*n/k
		folds[i] = slices.Clone(order[from:to])
	}
	return folds
}

// SplitIndices puts round(ratio·n) positions into the training part and
// the rest into validation. A non-nil rng shuffles positions first.
func SplitIndices(n int, ratio float64, rng *rand.Rand) (train, val []int) {
	if ratio <= 0 || ratio >= 1 {
		panic(fmt.Sprintf("Split ratio %v outside (0, 1)", ratio))
	}
	order := NewIndexList(n)
	if rng != nil {
		ShuffleIndices(order, rng)
	}
	cut := int(ratio*float64(n) + 0.5)
	cut = max(1, min(cut, n-1))
	return order[:cut], order[cut:]
}

// complementIndices returns the positions of 0..n-1 not in held, ascending.
func complementIndices(n int, held []int) []int {
	skip := make([]bool, n)
	for _, i := range held {
		skip[i] = true
	}
	out := make([]int, 0, n-len(held))
	for i := 0; i < n; i++ {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}
