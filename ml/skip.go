package ml

import "fmt"

// SkipLayer is a residual block: y = x + f(x), f being its inner layers run
// in order. The identity path passes the gradient through unchanged.
type SkipLayer struct {
	inner []Layer
	width int
}

func NewSkipLayer(inner ...Layer) *SkipLayer {
	if len(inner) == 0 {
		panic("Skip needs at least one inner layer")
	}
	width := inner[0].InputSize()
	if out := inner[len(inner)-1].OutputSize(); out != width {
		panic(fmt.Sprintf("Skip inner layers map %d -> %d, residual needs equal widths", width, out))
	}
	return &SkipLayer{inner: inner, width: width}
}

func (l *SkipLayer) Inner() []Layer   { return l.inner }
func (l *SkipLayer) InputSize() int  { return l.width }
func (l *SkipLayer) OutputSize() int { return l.width }

func (l *SkipLayer) Params() []*Matrix {
	var params []*Matrix
	for _, layer := range l.inner {
		params = append(params, layer.Params()...)
	}
	return params
}

func (l *SkipLayer) SetParams(params []*Matrix) error {
	if want := len(l.Params()); len(params) != want {
		return fmt.Errorf("skip: expected %d parameter tensors, got %d", want, len(params))
	}
	offset := 0
	for i, layer := range l.inner {
		n := len(layer.Params())
		if err := layer.SetParams(params[offset : offset+n]); err != nil {
			return fmt.Errorf("skip inner layer %d: %w", i, err)
		}
		offset += n
	}
	return nil
}

func (l *SkipLayer) Forward(input *Matrix, training bool) *Matrix {
	activation := input
	for _, layer := range l.inner {
		activation = layer.Forward(activation, training)
	}
	return input.ComponentAdd(activation)
}

func (l *SkipLayer) Backward(epoch int, outputGrad *Matrix) *Matrix {
	grad := outputGrad
	for i := len(l.inner) - 1; i >= 0; i-- {
		grad = l.inner[i].Backward(epoch, grad)
	}
	return outputGrad.ComponentAdd(grad)
}
