package ml

import "fmt"

// AvgPoolLayer averages non-overlapping window×window blocks per channel.
// Trailing rows and columns that do not fill a window are dropped.
type AvgPoolLayer struct {
	in, out Shape
	window  int

	batch int // columns seen by the last Forward, 0 when idle
}

func NewAvgPoolLayer(in Shape, window int) *AvgPoolLayer {
	return &AvgPoolLayer{
		in:     in,
		out:    Shape{Channels: in.Channels, Height: in.Height / window, Width: in.Width / window},
		window: window,
	}
}

func (l *AvgPoolLayer) OutputShape() Shape { return l.out }
func (l *AvgPoolLayer) InputSize() int     { return l.in.Size() }
func (l *AvgPoolLayer) OutputSize() int    { return l.out.Size() }
func (l *AvgPoolLayer) Params() []*Matrix  { return nil }

func (l *AvgPoolLayer) SetParams(params []*Matrix) error {
	return setParamsChecked("avgpool", nil, params)
}

func (l *AvgPoolLayer) Forward(input *Matrix, _ bool) *Matrix {
	if input.rows != l.in.Size() {
		panic(fmt.Sprintf("AvgPool input mismatch: expected %d rows, got %d", l.in.Size(), input.rows))
	}
	n := input.cols
	l.batch = n
	output := NewMatrix(l.out.Size(), n)
	area := float64(l.window * l.window)
	l.each(func(src, dst int) {
		for s := 0; s < n; s++ {
			output.data[dst*n+s] += input.data[src*n+s] / area
		}
	})
	return output
}

func (l *AvgPoolLayer) Backward(_ int, outputGrad *Matrix) *Matrix {
	if l.batch == 0 {
		panic("AvgPool Backward called before Forward")
	}
	if outputGrad.rows != l.out.Size() || outputGrad.cols != l.batch {
		panic(fmt.Sprintf("AvgPool gradient mismatch: expected [%d, %d], got [%d, %d]",
			l.out.Size(), l.batch, outputGrad.rows, outputGrad.cols))
	}
	n := l.batch
	dX := NewMatrix(l.in.Size(), n)
	area := float64(l.window * l.window)
	l.each(func(src, dst int) {
		for s := 0; s < n; s++ {
			dX.data[src*n+s] += outputGrad.data[dst*n+s] / area
		}
	})
	l.batch = 0
	return dX
}

// each visits every (input row, output row) pair covered by a window.
func (l *AvgPoolLayer) each(fn func(src, dst int)) {
	w := l.window
	for ch := 0; ch < l.in.Channels; ch++ {
		for oy := 0; oy < l.out.Height; oy++ {
			for ox := 0; ox < l.out.Width; ox++ {
				dst := ch*l.out.Height*l.out.Width + oy*l.out.Width + ox
				for dy := 0; dy < w; dy++ {
					for dx := 0; dx < w; dx++ {
						src := ch*l.in.Height*l.in.Width + (oy*w+dy)*l.in.Width + ox*w + dx
						fn(src, dst)
					}
				}
			}
		}
	}
}
