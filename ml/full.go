package ml

import (
	"fmt"
	"math/rand/v2"
)

// FullLayer chains an affine layer (Dense or Conv) and an activation.
//
// With a dropout rate p and training enabled, each input unit is zeroed
// with probability p and the survivors are scaled by 1/(1-p) (inverted
// dropout). Inference uses the input untouched, so no weight rescaling is
// needed.
type FullLayer struct {
	affine  Layer
	act     *ActivationLayer
	dropout float64
	rng     *rand.Rand

	mask *Matrix
}

func NewFullLayer(affine Layer, act *ActivationLayer, dropout float64, rng *rand.Rand) *FullLayer {
	if affine.OutputSize() != act.InputSize() {
		panic(fmt.Sprintf("Activation width %d does not match affine output %d", act.InputSize(), affine.OutputSize()))
	}
	return &FullLayer{affine: affine, act: act, dropout: dropout, rng: rng}
}

func (l *FullLayer) Affine() Layer                { return l.affine }
func (l *FullLayer) Activation() *ActivationLayer { return l.act }
func (l *FullLayer) DropoutRate() float64         { return l.dropout }
func (l *FullLayer) InputSize() int               { return l.affine.InputSize() }
func (l *FullLayer) OutputSize() int              { return l.act.OutputSize() }
func (l *FullLayer) Params() []*Matrix            { return l.affine.Params() }

func (l *FullLayer) SetParams(params []*Matrix) error {
	return l.affine.SetParams(params)
}

func (l *FullLayer) Forward(input *Matrix, training bool) *Matrix {
	l.mask = nil
	if training && l.dropout > 0 {
		l.mask = dropoutMask(input.rows, input.cols, l.dropout, l.rng)
		input = input.ComponentMul(l.mask)
	}
	return l.act.Forward(l.affine.Forward(input, training), training)
}

func (l *FullLayer) Backward(epoch int, outputGrad *Matrix) *Matrix {
	grad := l.affine.Backward(epoch, l.act.Backward(epoch, outputGrad))
	if l.mask != nil {
		grad = grad.ComponentMul(l.mask)
		l.mask = nil
	}
	return grad
}

func dropoutMask(rows, cols int, rate float64, rng *rand.Rand) *Matrix {
	keep := 1 - rate
	scale := 1 / keep
	mask := NewMatrix(rows, cols)
	for i := range mask.data {
		if uniform(rng) < keep {
			mask.data[i] = scale
		}
	}
	return mask
}
