package ml

import (
	"testing"
)

// --- Global Variables to prevent compiler optimizations ---
var resultMat *Matrix
var resultLoss float64

// --- 1. Benchmarks: Matrix Multiplication ---

func benchmarkMatMul(b *testing.B, size int) {
	rng := testRNG(1)
	m1 := RandomUniform(size, size, -1, 1, rng)
	m2 := RandomUniform(size, size, -1, 1, rng)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		resultMat = m1.Dot(m2)
	}
}

func BenchmarkMatMul_64(b *testing.B)  { benchmarkMatMul(b, 64) }
func BenchmarkMatMul_256(b *testing.B) { benchmarkMatMul(b, 256) }
func BenchmarkMatMul_512(b *testing.B) { benchmarkMatMul(b, 512) }

// --- 2. Benchmarks: Softmax column split ---

func benchmarkSoftmax(b *testing.B, batchSize int) {
	m := RandomNormal(10, batchSize, 0, 1, testRNG(2))
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		resultMat = Softmax(m)
	}
}

func BenchmarkSoftmax_Batch_64(b *testing.B)   { benchmarkSoftmax(b, 64) }
func BenchmarkSoftmax_Batch_1024(b *testing.B) { benchmarkSoftmax(b, 1024) }

// --- 3. Benchmarks: Neural Network Operations ---

// setupNetwork prepares a standard MNIST-sized network and a random batch
func setupNetwork(batchSize int, optType OptimizerType) (*NeuralNetwork, *Matrix, *Matrix) {
	rng := testRNG(3)
	nn := NewNetwork(WithDefaultOptimizer(OptimizerConfig{Type: optType, Schedule: ConstantRate(0.01)},
		Full(784, 64, Activation("relu")),
		Full(64, 32, Activation("relu")),
		Full(32, 16, Activation("relu")),
		Full(16, 10, Activation("softmax")),
	), rng)

	input := RandomUniform(784, batchSize, 0, 1, rng)

	// Random one-hot targets (labels 0-9)
	targets := NewMatrix(10, batchSize)
	for j := 0; j < batchSize; j++ {
		targets.data[rng.IntN(10)*batchSize+j] = 1
	}
	return nn, input, targets
}

// Benchmark: Forward Pass Only (Inference Speed)
func benchmarkForward(b *testing.B, batchSize int) {
	nn, input, _ := setupNetwork(batchSize, OptSGD)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		resultMat = nn.Predict(input)
	}
}

func BenchmarkForward_Batch_1(b *testing.B)   { benchmarkForward(b, 1) }
func BenchmarkForward_Batch_64(b *testing.B)  { benchmarkForward(b, 64) }
func BenchmarkForward_Batch_128(b *testing.B) { benchmarkForward(b, 128) }

// --- 4. Benchmarks: Optimizer Types (Micro-Benchmark) ---

func benchmarkOptimizerUpdate(b *testing.B, optType OptimizerType) {
	rng := testRNG(4)
	param := RandomUniform(128, 784, -1, 1, rng)
	grad := RandomUniform(128, 784, -1, 1, rng)
	opt := OptimizerConfig{Type: optType, Schedule: ConstantRate(0.01)}.New()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		resultMat = opt.Update(n, param, grad)
	}
}

func BenchmarkOpt_Micro_SGD(b *testing.B)      { benchmarkOptimizerUpdate(b, OptSGD) }
func BenchmarkOpt_Micro_Momentum(b *testing.B) { benchmarkOptimizerUpdate(b, OptMomentum) }
func BenchmarkOpt_Micro_Adam(b *testing.B)     { benchmarkOptimizerUpdate(b, OptAdam) }

// --- 5. Benchmarks: Full Training Step with Optimizers (Integrated) ---

func benchmarkTrainStep(b *testing.B, batchSize int, optType OptimizerType) {
	nn, input, targets := setupNetwork(batchSize, optType)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		resultLoss = nn.Train(n, input, targets, CrossEntropy{}, batchSize)
	}
}

// Comparison at Batch Size 64
func BenchmarkTrainStep_SGD_64(b *testing.B)      { benchmarkTrainStep(b, 64, OptSGD) }
func BenchmarkTrainStep_Momentum_64(b *testing.B) { benchmarkTrainStep(b, 64, OptMomentum) }
func BenchmarkTrainStep_Adam_64(b *testing.B)     { benchmarkTrainStep(b, 64, OptAdam) }

// Comparison at Batch Size 256
func BenchmarkTrainStep_SGD_256(b *testing.B)      { benchmarkTrainStep(b, 256, OptSGD) }
func BenchmarkTrainStep_Momentum_256(b *testing.B) { benchmarkTrainStep(b, 256, OptMomentum) }
func BenchmarkTrainStep_Adam_256(b *testing.B)     { benchmarkTrainStep(b, 256, OptAdam) }
