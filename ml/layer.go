package ml

import (
	"fmt"
	"math/rand/v2"
)

const (
	KindDense LayerKind = iota
	KindActivation
	KindFull
	KindConv
	KindAvgPool
	KindSkip
)

// -------- TYPE DEFINITIONS -------- //

// Layer is one learnable (or fixed) stage of a Network. Forward caches what
// Backward needs; Backward consumes that cache, updates the layer's own
// parameters through its optimizers and returns dE/dX. Calling Backward
// without a preceding Forward panics.
type Layer interface {
	Forward(input *Matrix, training bool) *Matrix
	Backward(epoch int, outputGrad *Matrix) *Matrix

	// Params returns the learnable matrices in a fixed order.
	Params() []*Matrix
	SetParams(params []*Matrix) error

	InputSize() int
	OutputSize() int
}

type LayerKind int
type LayerOption func(*LayerConfig)

// Shape is the channel-major layout of a flattened image column.
type Shape struct {
	Channels, Height, Width int
}

func (s Shape) Size() int { return s.Channels * s.Height * s.Width }

// LayerConfig holds the blueprint for a layer
type LayerConfig struct {
	Kind       LayerKind
	In, Out    int
	Activation ActivationType
	Dropout    float64
	Optimizer  OptimizerConfig
	Init       InitConfig

	// Conv / pooling fields
	InShape  Shape
	OutShape Shape
	Filters  int
	Kernel   int
	Stride   int
	Window   int

	// Skip fields
	Inner []LayerConfig
}

// ------- LAYER CONFIG HELPERS ------- //

// Dense defines a bare affine layer W·X + B.
func Dense(in, out int, opts ...LayerOption) LayerConfig {
	d := LayerConfig{Kind: KindDense, In: in, Out: out, Activation: ActLinear}
	return d.apply(opts).noDropout("Dense")
}

// Full defines an affine layer followed by an activation, with optional
// dropout on its input.
func Full(in, out int, opts ...LayerOption) LayerConfig {
	d := LayerConfig{Kind: KindFull, In: in, Out: out, Activation: ActTanh}
	return d.apply(opts)
}

// Act defines a stand-alone element-wise (or softmax) activation.
func Act(size int, opts ...LayerOption) LayerConfig {
	d := LayerConfig{Kind: KindActivation, In: size, Out: size, Activation: ActLinear}
	return d.apply(opts).noDropout("Act")
}

// Conv defines a valid convolution with square kernels followed by an
// activation (linear unless set).
func Conv(in Shape, filters, kernel int, opts ...LayerOption) LayerConfig {
	d := LayerConfig{
		Kind:       KindConv,
		InShape:    in,
		Filters:    filters,
		Kernel:     kernel,
		Stride:     1,
		Activation: ActLinear,
	}
	d = d.apply(opts)
	if kernel <= 0 || kernel > in.Height || kernel > in.Width {
		panic(fmt.Sprintf("Kernel %d does not fit input %+v", kernel, in))
	}
	d.OutShape = Shape{
		Channels: filters,
		Height:   (in.Height-kernel)/d.Stride + 1,
		Width:    (in.Width-kernel)/d.Stride + 1,
	}
	d.In, d.Out = in.Size(), d.OutShape.Size()
	return d
}

// AvgPool defines non-overlapping window averaging per channel.
func AvgPool(in Shape, window int) LayerConfig {
	if window <= 0 || window > in.Height || window > in.Width {
		panic(fmt.Sprintf("Window %d does not fit input %+v", window, in))
	}
	out := Shape{Channels: in.Channels, Height: in.Height / window, Width: in.Width / window}
	return LayerConfig{Kind: KindAvgPool, InShape: in, OutShape: out, Window: window, In: in.Size(), Out: out.Size()}
}

// Skip defines a residual block y = x + f(x) over the inner layers.
func Skip(inner ...LayerConfig) LayerConfig {
	if len(inner) == 0 {
		panic("Skip needs at least one inner layer")
	}
	in, out := inner[0].In, inner[len(inner)-1].Out
	if in != out {
		panic(fmt.Sprintf("Skip inner layers map %d -> %d, residual needs equal widths", in, out))
	}
	return LayerConfig{Kind: KindSkip, In: in, Out: out, Inner: inner}
}

func (lc LayerConfig) apply(opts []LayerOption) LayerConfig {
	for _, opt := range opts {
		opt(&lc)
	}
	return lc
}

// noDropout rejects a Dropout option on kinds that have no dropout stage.
// Only Full and Conv apply it.
func (lc LayerConfig) noDropout(kind string) LayerConfig {
	if lc.Dropout != 0 {
		panic(fmt.Sprintf("%s layers do not support dropout, use Full", kind))
	}
	return lc
}

func Activation(activation string) LayerOption {
	return func(lc *LayerConfig) {
		act, exists := activationMap[activation]
		if !exists {
			panic("Unknown activation: " + activation)
		}
		lc.Activation = act
	}
}

func Dropout(rate float64) LayerOption {
	return func(lc *LayerConfig) {
		if rate < 0 || rate >= 1 {
			panic(fmt.Sprintf("Dropout rate %v outside [0, 1)", rate))
		}
		lc.Dropout = rate
	}
}

func WithOptimizer(cfg OptimizerConfig) LayerOption {
	return func(lc *LayerConfig) {
		lc.Optimizer = cfg
	}
}

func Initializer(cfg InitConfig) LayerOption {
	return func(lc *LayerConfig) {
		lc.Init = cfg
	}
}

func Stride(s int) LayerOption {
	return func(lc *LayerConfig) {
		if s <= 0 {
			panic(fmt.Sprintf("Stride %d must be positive", s))
		}
		lc.Stride = s
	}
}

// WithDefaultOptimizer sets opt on every config (recursively into Skip
// blocks) that does not choose its own optimizer type.
func WithDefaultOptimizer(opt OptimizerConfig, configs ...LayerConfig) []LayerConfig {
	out := make([]LayerConfig, len(configs))
	for i, cfg := range configs {
		if cfg.Optimizer.Type == "" && cfg.Optimizer.Schedule == nil {
			cfg.Optimizer = opt
		}
		if cfg.Kind == KindSkip {
			cfg.Inner = WithDefaultOptimizer(opt, cfg.Inner...)
		}
		out[i] = cfg
	}
	return out
}

// build instantiates the layer, drawing initial parameters from rng.
func (lc LayerConfig) build(rng *rand.Rand) Layer {
	switch lc.Kind {
	case KindDense:
		return lc.newDense(rng)

	case KindActivation:
		return NewActivationLayer(lc.Activation, lc.In)

	case KindFull:
		return NewFullLayer(lc.newDense(rng), NewActivationLayer(lc.Activation, lc.Out), lc.Dropout, rng)

	case KindConv:
		fanIn := lc.InShape.Channels * lc.Kernel * lc.Kernel
		kernels := lc.Init.newParam(lc.Filters, fanIn, fanIn, lc.Filters*lc.Kernel*lc.Kernel, rng)
		conv := NewConvLayer(lc.InShape, kernels, Zeros(lc.Filters, 1), lc.Kernel, lc.Stride, lc.Optimizer)
		return NewFullLayer(conv, NewActivationLayer(lc.Activation, lc.Out), lc.Dropout, rng)

	case KindAvgPool:
		return NewAvgPoolLayer(lc.InShape, lc.Window)

	case KindSkip:
		inner := make([]Layer, len(lc.Inner))
		prev := lc.In
		for i, cfg := range lc.Inner {
			if cfg.In != prev {
				panic(fmt.Sprintf("Skip inner layer %d expects %d inputs, previous layer outputs %d", i, cfg.In, prev))
			}
			inner[i] = cfg.build(rng)
			prev = cfg.Out
		}
		return NewSkipLayer(inner...)

	default:
		panic(fmt.Sprintf("Unknown layer kind %d", lc.Kind))
	}
}

func (lc LayerConfig) newDense(rng *rand.Rand) *DenseLayer {
	weights := lc.Init.newParam(lc.Out, lc.In, lc.In, lc.Out, rng)
	return NewDenseLayer(weights, Zeros(lc.Out, 1), lc.Optimizer)
}

// setParamsChecked copies src into dst after checking count and shapes.
func setParamsChecked(name string, dst []*Matrix, src []*Matrix) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%s: expected %d parameter tensors, got %d", name, len(dst), len(src))
	}
	for i := range dst {
		if src[i] == nil || dst[i].rows != src[i].rows || dst[i].cols != src[i].cols {
			return fmt.Errorf("%s: tensor %d shape mismatch: expected [%d, %d]", name, i, dst[i].rows, dst[i].cols)
		}
	}
	for i := range dst {
		copy(dst[i].data, src[i].data)
	}
	return nil
}
