package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	InitXavier  InitializerType = "xavier"
	InitHe      InitializerType = "he"
	InitUniform InitializerType = "uniform"
	InitNormal  InitializerType = "normal"
	InitZeros   InitializerType = "zeros"
)

type InitializerType string

// InitConfig chooses how a parameter matrix is filled. Low/High apply to
// InitUniform, Mean/Std to InitNormal.
type InitConfig struct {
	Type      InitializerType
	Low, High float64
	Mean, Std float64
}

// newParam builds a rows×cols parameter matrix. fanIn and fanOut drive the
// Xavier and He scales.
func (c InitConfig) newParam(rows, cols, fanIn, fanOut int, rng *rand.Rand) *Matrix {
	switch c.Type {
	case InitXavier, "":
		// limit = sqrt(6 / (fan_in + fan_out))
		limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
		return RandomUniform(rows, cols, -limit, limit, rng)
	case InitHe:
		return RandomNormal(rows, cols, 0, math.Sqrt(2.0/float64(fanIn)), rng)
	case InitUniform:
		lo, hi := c.Low, c.High
		if lo == 0 && hi == 0 {
			lo, hi = -1, 1
		}
		return RandomUniform(rows, cols, lo, hi, rng)
	case InitNormal:
		std := c.Std
		if std == 0 {
			std = 1
		}
		return RandomNormal(rows, cols, c.Mean, std, rng)
	case InitZeros:
		return Zeros(rows, cols)
	default:
		panic(fmt.Sprintf("Unknown initializer: %q", c.Type))
	}
}
