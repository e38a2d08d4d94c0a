package ml

import "fmt"

// ConvLayer is a valid (unpadded) 2D convolution over flattened C×H×W
// columns. Kernels are stored as filters × (C·k·k) so every sample reduces
// to one Dot against its im2col patch matrix.
type ConvLayer struct {
	Kernels *Matrix
	Biases  *Matrix

	in, out        Shape
	kernel, stride int

	optK, optB Optimizer

	// im2col patches of the last forward batch, one per sample
	patches []*Matrix
}

func NewConvLayer(in Shape, kernels, biases *Matrix, kernel, stride int, opt OptimizerConfig) *ConvLayer {
	if kernels.cols != in.Channels*kernel*kernel {
		panic(fmt.Sprintf("Kernel matrix [%d, %d] does not fit %d channels of %dx%d",
			kernels.rows, kernels.cols, in.Channels, kernel, kernel))
	}
	if biases.rows != kernels.rows || biases.cols != 1 {
		panic(fmt.Sprintf("Bias shape [%d, %d] does not fit %d filters", biases.rows, biases.cols, kernels.rows))
	}
	out := Shape{
		Channels: kernels.rows,
		Height:   (in.Height-kernel)/stride + 1,
		Width:    (in.Width-kernel)/stride + 1,
	}
	return &ConvLayer{
		Kernels: kernels,
		Biases:  biases,
		in:      in,
		out:     out,
		kernel:  kernel,
		stride:  stride,
		optK:    opt.New(),
		optB:    opt.New(),
	}
}

func (l *ConvLayer) InputShape() Shape  { return l.in }
func (l *ConvLayer) OutputShape() Shape { return l.out }
func (l *ConvLayer) InputSize() int     { return l.in.Size() }
func (l *ConvLayer) OutputSize() int    { return l.out.Size() }

func (l *ConvLayer) Params() []*Matrix {
	return []*Matrix{l.Kernels, l.Biases}
}

func (l *ConvLayer) SetParams(params []*Matrix) error {
	return setParamsChecked("conv", l.Params(), params)
}

func (l *ConvLayer) Forward(input *Matrix, _ bool) *Matrix {
	if input.rows != l.in.Size() {
		panic(fmt.Sprintf("Conv input mismatch: expected %d rows, got %d", l.in.Size(), input.rows))
	}
	n := input.cols
	output := NewMatrix(l.out.Size(), n)
	l.patches = make([]*Matrix, n)
	for s := 0; s < n; s++ {
		p := l.im2col(input, s)
		l.patches[s] = p
		// filters × positions, row-major equals the channel-major output column
		res := l.Kernels.Dot(p).AddColumn(l.Biases)
		setColumn(output, s, res.data)
	}
	return output
}

func (l *ConvLayer) Backward(epoch int, outputGrad *Matrix) *Matrix {
	if l.patches == nil {
		panic("Conv Backward called before Forward")
	}
	if outputGrad.rows != l.out.Size() || outputGrad.cols != len(l.patches) {
		panic(fmt.Sprintf("Conv gradient mismatch: expected [%d, %d], got [%d, %d]",
			l.out.Size(), len(l.patches), outputGrad.rows, outputGrad.cols))
	}
	positions := l.out.Height * l.out.Width
	dK := NewMatrix(l.Kernels.rows, l.Kernels.cols)
	dB := NewMatrix(l.Biases.rows, 1)
	dX := NewMatrix(l.in.Size(), outputGrad.cols)
	kT := l.Kernels.Transpose()

	for s, p := range l.patches {
		g := NewMatrixFromSlice(l.out.Channels, positions, outputGrad.Column(s))
		dK = dK.ComponentAdd(g.Dot(p.Transpose()))
		dB = dB.ComponentAdd(g.ColumnsSum())
		l.col2im(kT.Dot(g), dX, s)
	}

	l.Kernels = l.optK.Update(epoch, l.Kernels, dK)
	l.Biases = l.optB.Update(epoch, l.Biases, dB)
	l.patches = nil
	return dX
}

// im2col lays out every receptive field of sample s as one column.
func (l *ConvLayer) im2col(input *Matrix, s int) *Matrix {
	k, c := l.kernel, l.in
	positions := l.out.Height * l.out.Width
	p := NewMatrix(c.Channels*k*k, positions)
	for ch := 0; ch < c.Channels; ch++ {
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := (ch*k+ky)*k + kx
				for oy := 0; oy < l.out.Height; oy++ {
					for ox := 0; ox < l.out.Width; ox++ {
						y, x := oy*l.stride+ky, ox*l.stride+kx
						src := ch*c.Height*c.Width + y*c.Width + x
						p.data[row*positions+oy*l.out.Width+ox] = input.data[src*input.cols+s]
					}
				}
			}
		}
	}
	return p
}

// col2im accumulates patch gradients back into column s of dX.
func (l *ConvLayer) col2im(dP *Matrix, dX *Matrix, s int) {
	k, c := l.kernel, l.in
	positions := l.out.Height * l.out.Width
	for ch := 0; ch < c.Channels; ch++ {
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := (ch*k+ky)*k + kx
				for oy := 0; oy < l.out.Height; oy++ {
					for ox := 0; ox < l.out.Width; ox++ {
						y, x := oy*l.stride+ky, ox*l.stride+kx
						dst := ch*c.Height*c.Width + y*c.Width + x
						dX.data[dst*dX.cols+s] += dP.data[row*positions+oy*l.out.Width+ox]
					}
				}
			}
		}
	}
}

// setColumn writes vals into column j of m. Only used on matrices the
// caller has just allocated.
func setColumn(m *Matrix, j int, vals []float64) {
	for i, v := range vals {
		m.data[i*m.cols+j] = v
	}
}
