package ml

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// greedySample finds the index of the maximum probability.
func greedySample(probs []float64) int {
	maxProb := -1.0
	maxIdx := 0
	for i, p := range probs {
		if p > maxProb {
			maxProb = p
			maxIdx = i
		}
	}
	return maxIdx
}

// multinomialSample performs standard sampling from a probability distribution.
// Each class has a chance of being selected proportional to its probability.
func multinomialSample(probs []float64, rng *rand.Rand) int {
	r := uniform(rng)
	cumulativeProb := 0.0
	for i, p := range probs {
		cumulativeProb += p
		if r < cumulativeProb {
			return i
		}
	}
	// Fallback in case of floating point inaccuracies, return the last index.
	return len(probs) - 1
}

// Classify runs one sample through the network and returns the most likely
// class with its score.
func (nw *NeuralNetwork) Classify(input []float64) (int, float64) {
	inputSize := nw.InputSize()
	if len(input) != inputSize {
		panic(fmt.Sprintf("Input size mismatch. Expected %d, got %d", inputSize, len(input)))
	}
	// We treat the single sample as a batch of size 1.
	probabilities := nw.Predict(NewMatrixFromSlice(inputSize, 1, input)).Column(0)
	best := greedySample(probabilities)
	return best, probabilities[best]
}

// PredictClasses returns the argmax row of every column.
func PredictClasses(preds *Matrix) []int {
	classes := make([]int, preds.cols)
	for j := range classes {
		classes[j] = greedySample(preds.Column(j))
	}
	return classes
}

// SampleClasses draws one class per column, treating each column as a
// distribution.
func SampleClasses(preds *Matrix, rng *rand.Rand) []int {
	classes := make([]int, preds.cols)
	for j := range classes {
		classes[j] = multinomialSample(preds.Column(j), rng)
	}
	return classes
}

// Accuracy is the share of columns whose argmax matches between targets
// and predictions. Single-row outputs are thresholded at 0.5 instead.
func Accuracy(yTrue, yPred *Matrix) float64 {
	yTrue.mustMatch("Accuracy", yPred)
	if yPred.cols == 0 {
		return 0
	}
	correct := 0
	if yPred.rows == 1 {
		for j := 0; j < yPred.cols; j++ {
			if (yPred.data[j] >= 0.5) == (yTrue.data[j] >= 0.5) {
				correct++
			}
		}
	} else {
		want, got := PredictClasses(yTrue), PredictClasses(yPred)
		for j := range want {
			if want[j] == got[j] {
				correct++
			}
		}
	}
	return float64(correct) / float64(yPred.cols)
}

// TopK returns the indices of the k largest scores, highest first.
func TopK(scores []float64, k int) []int {
	k = min(max(k, 0), len(scores))

	type scoreIndex struct {
		score float64
		idx   int
	}
	indexed := make([]scoreIndex, len(scores))
	for i, s := range scores {
		indexed[i] = scoreIndex{score: s, idx: i}
	}
	// Sort in descending order by score
	sort.SliceStable(indexed, func(i, j int) bool {
		return indexed[i].score > indexed[j].score
	})

	out := make([]int, k)
	for i := range out {
		out[i] = indexed[i].idx
	}
	return out
}
