package ml

import (
	"fmt"
	"math"
)

// LearningRateSchedule maps a training epoch to a step size.
type LearningRateSchedule interface {
	LearningRate(epoch int) float64
}

// ConstantRate always returns the same learning rate.
type ConstantRate float64

func (c ConstantRate) LearningRate(int) float64 { return float64(c) }

// InverseTimeDecay computes initial / (1 + rate * epoch/steps). With
// Staircase the ratio epoch/steps is floored.
type InverseTimeDecay struct {
	Initial    float64
	DecaySteps float64
	DecayRate  float64
	Staircase  bool
}

func (s InverseTimeDecay) LearningRate(epoch int) float64 {
	ratio := float64(epoch) / s.DecaySteps
	if s.Staircase {
		ratio = math.Floor(ratio)
	}
	return s.Initial / (1 + s.DecayRate*ratio)
}

// PiecewiseConstant returns the value paired with the last boundary not
// above the epoch. Epochs before the first boundary get the first value.
type PiecewiseConstant struct {
	Boundaries []int
	Values     []float64
}

func NewPiecewiseConstant(boundaries []int, values []float64) PiecewiseConstant {
	if len(boundaries) == 0 || len(boundaries) != len(values) {
		panic(fmt.Sprintf("PiecewiseConstant needs matching non-empty boundaries and values, got %d and %d",
			len(boundaries), len(values)))
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			panic("PiecewiseConstant boundaries must be strictly increasing")
		}
	}
	return PiecewiseConstant{Boundaries: boundaries, Values: values}
}

func (s PiecewiseConstant) LearningRate(epoch int) float64 {
	lr := s.Values[0]
	for i, b := range s.Boundaries {
		if b > epoch {
			break
		}
		lr = s.Values[i]
	}
	return lr
}
