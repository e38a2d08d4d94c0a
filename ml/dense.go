package ml

import "fmt"

// DenseLayer is the affine map Y = W·X + B, with B broadcast over the batch.
// Weights are out×in, biases out×1.
type DenseLayer struct {
	Weights *Matrix
	Biases  *Matrix

	optW, optB Optimizer

	input *Matrix
}

func NewDenseLayer(weights, biases *Matrix, opt OptimizerConfig) *DenseLayer {
	if biases.rows != weights.rows || biases.cols != 1 {
		panic(fmt.Sprintf("Bias shape [%d, %d] does not fit weights [%d, %d]",
			biases.rows, biases.cols, weights.rows, weights.cols))
	}
	return &DenseLayer{
		Weights: weights,
		Biases:  biases,
		optW:    opt.New(),
		optB:    opt.New(),
	}
}

func (l *DenseLayer) InputSize() int  { return l.Weights.cols }
func (l *DenseLayer) OutputSize() int { return l.Weights.rows }

func (l *DenseLayer) Params() []*Matrix {
	return []*Matrix{l.Weights, l.Biases}
}

func (l *DenseLayer) SetParams(params []*Matrix) error {
	return setParamsChecked("dense", l.Params(), params)
}

func (l *DenseLayer) Forward(input *Matrix, _ bool) *Matrix {
	if input.rows != l.Weights.cols {
		panic(fmt.Sprintf("Dense input mismatch: expected %d rows, got %d", l.Weights.cols, input.rows))
	}
	l.input = input
	return l.Weights.Dot(input).AddColumn(l.Biases)
}

// Backward computes dW = dY·Xᵗ, dB = Σ_columns dY and dX = Wᵗ·dY with the
// weights used in Forward, then steps both optimizers.
func (l *DenseLayer) Backward(epoch int, outputGrad *Matrix) *Matrix {
	if l.input == nil {
		panic("Dense Backward called before Forward")
	}
	dW := outputGrad.Dot(l.input.Transpose())
	dB := outputGrad.ColumnsSum()
	dX := l.Weights.Transpose().Dot(outputGrad)

	l.Weights = l.optW.Update(epoch, l.Weights, dW)
	l.Biases = l.optB.Update(epoch, l.Biases, dB)
	l.input = nil
	return dX
}
