package ml

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

const (
	ActLinear ActivationType = iota
	ActRelu
	ActSigmoid
	ActSoftmax
	ActTanh
)

// parallelColumnsMin is the batch width from which column-wise work is
// spread across goroutines.
const parallelColumnsMin = 256

var activationMap = map[string]ActivationType{
	"linear":  ActLinear,
	"sigmoid": ActSigmoid,
	"relu":    ActRelu,
	"softmax": ActSoftmax,
	"tanh":    ActTanh,
}

var activationNames = [...]string{
	ActLinear:  "linear",
	ActRelu:    "relu",
	ActSigmoid: "sigmoid",
	ActSoftmax: "softmax",
	ActTanh:    "tanh",
}

type ActivationType int

func (a ActivationType) String() string {
	if a >= 0 && int(a) < len(activationNames) {
		return activationNames[a]
	}
	return fmt.Sprintf("ActivationType(%d)", int(a))
}

// ActivationLayer applies a non-linearity with no learnable parameters.
type ActivationLayer struct {
	act  ActivationType
	size int

	input  *Matrix
	output *Matrix
}

func NewActivationLayer(act ActivationType, size int) *ActivationLayer {
	if _, ok := activationFuncs[act]; !ok && act != ActSoftmax {
		panic(fmt.Sprintf("Unknown activation type %d", act))
	}
	return &ActivationLayer{act: act, size: size}
}

func (l *ActivationLayer) Type() ActivationType { return l.act }
func (l *ActivationLayer) InputSize() int       { return l.size }
func (l *ActivationLayer) OutputSize() int      { return l.size }
func (l *ActivationLayer) Params() []*Matrix    { return nil }

func (l *ActivationLayer) SetParams(params []*Matrix) error {
	return setParamsChecked("activation", nil, params)
}

func (l *ActivationLayer) Forward(input *Matrix, _ bool) *Matrix {
	if input.rows != l.size {
		panic(fmt.Sprintf("Activation input mismatch: expected %d rows, got %d", l.size, input.rows))
	}
	l.input = input
	if l.act == ActSoftmax {
		l.output = Softmax(input)
	} else {
		l.output = input.Apply(activationFuncs[l.act].fn)
	}
	return l.output
}

func (l *ActivationLayer) Backward(_ int, outputGrad *Matrix) *Matrix {
	if l.input == nil {
		panic("Activation Backward called before Forward")
	}
	defer func() { l.input, l.output = nil, nil }()

	if l.act == ActSoftmax {
		return softmaxBackward(l.output, outputGrad)
	}
	return outputGrad.ComponentMul(activationFuncs[l.act].derivative(l.input, l.output))
}

type activationFunc struct {
	fn func(float64) float64
	// derivative receives the cached input and output of Forward.
	derivative func(x, y *Matrix) *Matrix
}

var activationFuncs = map[ActivationType]activationFunc{
	ActLinear: {
		fn:         func(x float64) float64 { return x },
		derivative: func(x, _ *Matrix) *Matrix { return Constant(x.rows, x.cols, 1) },
	},
	ActTanh: {
		fn: math.Tanh,
		// 1 - tanh²
		derivative: func(_, y *Matrix) *Matrix { return y.Square().Apply(func(v float64) float64 { return 1 - v }) },
	},
	ActSigmoid: {
		fn: Sigmoid,
		// σ(1 - σ)
		derivative: func(_, y *Matrix) *Matrix {
			return y.Apply(func(s float64) float64 { return s * (1 - s) })
		},
	},
	ActRelu: {
		fn: Relu,
		// sign(x) clamped to {0, 1}
		derivative: func(x, _ *Matrix) *Matrix { return x.Sign().MaxOf(0) },
	},
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func Relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Softmax normalises every column independently, subtracting the column
// max before exponentiating.
func Softmax(m *Matrix) *Matrix {
	out := NewMatrix(m.rows, m.cols)
	rows, cols := m.rows, m.cols
	forColumns(cols, func(from, to int) {
		for j := from; j < to; j++ {
			maxVal := math.Inf(-1)
			for i := 0; i < rows; i++ {
				maxVal = math.Max(maxVal, m.data[i*cols+j])
			}
			sum := 0.0
			for i := 0; i < rows; i++ {
				val := math.Exp(m.data[i*cols+j] - maxVal)
				out.data[i*cols+j] = val
				sum += val
			}
			for i := 0; i < rows; i++ {
				out.data[i*cols+j] /= sum
			}
		}
	})
	return out
}

// softmaxBackward multiplies each gradient column by the softmax Jacobian
// diag(s) - s·sᵗ of the matching output column.
func softmaxBackward(s, grad *Matrix) *Matrix {
	s.mustMatch("Softmax backward", grad)
	out := NewMatrix(s.rows, s.cols)
	rows, cols := s.rows, s.cols
	forColumns(cols, func(from, to int) {
		for j := from; j < to; j++ {
			dot := 0.0
			for i := 0; i < rows; i++ {
				dot += s.data[i*cols+j] * grad.data[i*cols+j]
			}
			for i := 0; i < rows; i++ {
				k := i*cols + j
				out.data[k] = s.data[k] * (grad.data[k] - dot)
			}
		}
	})
	return out
}

// forColumns runs fn over [0, cols), split into contiguous ranges across at
// most GOMAXPROCS goroutines for wide batches. Ranges never overlap, so fn
// may write its own columns without locking.
func forColumns(cols int, fn func(from, to int)) {
	workers := runtime.GOMAXPROCS(0)
	if cols < parallelColumnsMin || workers < 2 {
		fn(0, cols)
		return
	}
	chunk := (cols + workers - 1) / workers
	var wg sync.WaitGroup
	for from := 0; from < cols; from += chunk {
		to := min(from+chunk, cols)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(from, to)
		}()
	}
	wg.Wait()
}
