package ml

import (
	"fmt"
	"math"
	"strings"
)

// Loss is a pure (value, gradient) pair over prediction and target
// matrices of identical shape. Prime returns dE/dY for the output layer.
type Loss interface {
	Loss(yTrue, yPred *Matrix) float64
	Prime(yTrue, yPred *Matrix) *Matrix
}

// MSE is mean squared error. Its gradient is normalised by the output width.
type MSE struct{}

func (MSE) Loss(yTrue, yPred *Matrix) float64 {
	return yPred.ComponentSub(yTrue).Square().Mean()
}

func (MSE) Prime(yTrue, yPred *Matrix) *Matrix {
	return yPred.ComponentSub(yTrue).ScalarMul(2.0 / float64(yPred.rows))
}

// BCE is binary cross-entropy. Predictions must lie strictly inside (0, 1);
// pair it with a Sigmoid or Softmax output.
type BCE struct{}

func (BCE) Loss(yTrue, yPred *Matrix) float64 {
	yTrue.mustMatch("BCE", yPred)
	checkOpenUnit("BCE", yPred)
	sum := 0.0
	for i, p := range yPred.data {
		y := yTrue.data[i]
		sum += y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return -sum / float64(len(yPred.data))
}

func (BCE) Prime(yTrue, yPred *Matrix) *Matrix {
	yTrue.mustMatch("BCE", yPred)
	checkOpenUnit("BCE", yPred)
	out := NewMatrix(yPred.rows, yPred.cols)
	width := float64(yPred.rows)
	for i, p := range yPred.data {
		y := yTrue.data[i]
		out.data[i] = ((1-y)/(1-p) - y/p) / width
	}
	return out
}

// CrossEntropy is categorical cross-entropy over one-hot targets, summed
// over classes and averaged over samples.
type CrossEntropy struct{}

func (CrossEntropy) Loss(yTrue, yPred *Matrix) float64 {
	yTrue.mustMatch("CrossEntropy", yPred)
	sum := 0.0
	for i, p := range yPred.data {
		if y := yTrue.data[i]; y != 0 {
			if p <= 0 {
				panic(fmt.Sprintf("CrossEntropy: prediction %v outside (0, 1]", p))
			}
			sum -= y * math.Log(p)
		}
	}
	return sum / float64(yPred.cols)
}

func (CrossEntropy) Prime(yTrue, yPred *Matrix) *Matrix {
	yTrue.mustMatch("CrossEntropy", yPred)
	out := NewMatrix(yPred.rows, yPred.cols)
	width := float64(yPred.rows)
	for i, p := range yPred.data {
		if y := yTrue.data[i]; y != 0 {
			out.data[i] = -y / p / width
		}
	}
	return out
}

var lossMap = map[string]Loss{
	"mse":          MSE{},
	"bce":          BCE{},
	"crossentropy": CrossEntropy{},
}

func LossByName(name string) (Loss, error) {
	l, ok := lossMap[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown loss %q", name)
	}
	return l, nil
}

func checkOpenUnit(op string, m *Matrix) {
	for _, p := range m.data {
		if p <= 0 || p >= 1 {
			panic(fmt.Sprintf("%s: prediction %v outside (0, 1)", op, p))
		}
	}
}
