package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD      OptimizerType = "sgd"
	OptMomentum OptimizerType = "momentum"
	OptAdam     OptimizerType = "adam"
)

// Default settings generally recommended for Adam
var DefaultAdamConfig = AdamConfig{
	Beta1:   0.9,
	Beta2:   0.999,
	Epsilon: 1e-8,
}

type OptimizerType string

type AdamConfig struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// Optimizer turns a parameter and its gradient into the updated parameter.
// An instance belongs to exactly one parameter tensor and keeps that
// tensor's hidden state between calls.
type Optimizer interface {
	Update(epoch int, param, grad *Matrix) *Matrix
}

// OptimizerConfig describes an optimizer. Every learnable tensor gets its own
// instance through New. Zero values fall back to defaults.
type OptimizerConfig struct {
	Type     OptimizerType
	Schedule LearningRateSchedule

	MomentumMu float64 // For Momentum (usually 0.9)
	AdamBeta1  float64 // For Adam (usually 0.9)
	AdamBeta2  float64 // For Adam (usually 0.999)
	AdamEps    float64 // For Adam (usually 1e-8)
}

func (c OptimizerConfig) New() Optimizer {
	schedule := c.Schedule
	if schedule == nil {
		schedule = ConstantRate(0.01)
	}

	switch c.Type {
	case OptAdam:
		cfg := DefaultAdamConfig
		if c.AdamBeta1 != 0 {
			cfg.Beta1 = c.AdamBeta1
		}
		if c.AdamBeta2 != 0 {
			cfg.Beta2 = c.AdamBeta2
		}
		if c.AdamEps != 0 {
			cfg.Epsilon = c.AdamEps
		}
		return NewAdamOptimizer(schedule, cfg)

	case OptMomentum:
		return NewMomentumOptimizer(schedule, c.MomentumMu)

	case OptSGD, "":
		return &SGDOptimizer{Schedule: schedule}

	default:
		panic(fmt.Sprintf("Unknown optimizer: %q", c.Type))
	}
}

// ------ SGD OPTIMIZER ------ //
type SGDOptimizer struct {
	Schedule LearningRateSchedule
}

func (opt *SGDOptimizer) Update(epoch int, param, grad *Matrix) *Matrix {
	param.mustMatch("SGD", grad)
	out := param.Clone()
	// Simple update: W = W - (lr * gradient)
	floats.AddScaled(out.data, -opt.Schedule.LearningRate(epoch), grad.data)
	return out
}

// ------ MOMENTUM OPTIMIZER ------ //
type MomentumOptimizer struct {
	Schedule LearningRateSchedule
	Mu       float64 // Momentum Factor (usually 0.9)

	velocity *Matrix
}

func NewMomentumOptimizer(schedule LearningRateSchedule, mu float64) *MomentumOptimizer {
	if mu == 0 {
		mu = 0.9
	} // Default
	return &MomentumOptimizer{Schedule: schedule, Mu: mu}
}

func (opt *MomentumOptimizer) Update(epoch int, param, grad *Matrix) *Matrix {
	param.mustMatch("Momentum", grad)
	if opt.velocity == nil {
		opt.velocity = NewMatrix(param.rows, param.cols)
	}
	lr := opt.Schedule.LearningRate(epoch)

	// v = mu * v + lr * grad
	// w = w - v
	v := opt.velocity.data
	out := param.Clone()
	for i := range v {
		v[i] = opt.Mu*v[i] + lr*grad.data[i]
		out.data[i] -= v[i]
	}
	return out
}

// ------ ADAM OPTIMIZER ------ //
// AdamOptimizer bias-corrects with 1 - beta^t where t = epoch + 1, so an
// update depends only on the stored moments and the epoch it is given.
type AdamOptimizer struct {
	Schedule LearningRateSchedule
	cfg      AdamConfig

	m, v *Matrix
}

func NewAdamOptimizer(schedule LearningRateSchedule, cfg AdamConfig) *AdamOptimizer {
	return &AdamOptimizer{Schedule: schedule, cfg: cfg}
}

func (opt *AdamOptimizer) Update(epoch int, param, grad *Matrix) *Matrix {
	param.mustMatch("Adam", grad)
	if opt.m == nil {
		opt.m = NewMatrix(param.rows, param.cols)
		opt.v = NewMatrix(param.rows, param.cols)
	}

	t := float64(epoch + 1)
	beta1, beta2, eps := opt.cfg.Beta1, opt.cfg.Beta2, opt.cfg.Epsilon
	correction1 := 1.0 - math.Pow(beta1, t)
	correction2 := 1.0 - math.Pow(beta2, t)
	lr := opt.Schedule.LearningRate(epoch)

	m, v := opt.m.data, opt.v.data
	out := param.Clone()
	for i, g := range grad.data {
		// m_t = beta1 * m_{t-1} + (1 - beta1) * g
		m[i] = beta1*m[i] + (1.0-beta1)*g
		// v_t = beta2 * v_{t-1} + (1 - beta2) * g^2
		v[i] = beta2*v[i] + (1.0-beta2)*(g*g)

		mHat := m[i] / correction1
		vHat := v[i] / correction2
		out.data[i] -= lr * mHat / (math.Sqrt(vHat) + eps)
	}
	return out
}
