package ml

import (
	"encoding/gob"
	"fmt"
	"math/rand/v2"
	"os"

	"gonum.org/v1/gonum/stat"
)

type NeuralNetwork struct {
	Layers []Layer
}

// Neural Network Builder
//
// NewNetwork builds the layers in order, checking that every layer accepts
// the previous layer's output width. A mismatch is a configuration bug and
// panics. Initial parameters and dropout masks draw from rng (nil uses the
// global source).
func NewNetwork(configs []LayerConfig, rng *rand.Rand) *NeuralNetwork {
	if len(configs) == 0 {
		panic("Network must have at least one layer")
	}

	nn := &NeuralNetwork{}
	prevOutputSize := configs[0].In
	for i, cfg := range configs {
		if cfg.In != prevOutputSize {
			panic(fmt.Sprintf("Layer %d expects %d inputs, previous layer outputs %d", i, cfg.In, prevOutputSize))
		}
		nn.Layers = append(nn.Layers, cfg.build(rng))
		prevOutputSize = cfg.Out
	}
	return nn
}

// NewNetworkFromLayers wraps already-built layers.
func NewNetworkFromLayers(layers ...Layer) *NeuralNetwork {
	for i := 1; i < len(layers); i++ {
		if layers[i].InputSize() != layers[i-1].OutputSize() {
			panic(fmt.Sprintf("Layer %d expects %d inputs, previous layer outputs %d",
				i, layers[i].InputSize(), layers[i-1].OutputSize()))
		}
	}
	return &NeuralNetwork{Layers: layers}
}

// -------- NEURAL NETWORK METHODS -------- //
func (nw *NeuralNetwork) InputSize() int  { return nw.Layers[0].InputSize() }
func (nw *NeuralNetwork) OutputSize() int { return nw.Layers[len(nw.Layers)-1].OutputSize() }

// Forward threads a batch (one sample per column) through every layer.
func (nw *NeuralNetwork) Forward(batch *Matrix, training bool) *Matrix {
	activation := batch
	for _, layer := range nw.Layers {
		activation = layer.Forward(activation, training)
	}
	return activation
}

// Predict runs Forward with dropout disabled.
func (nw *NeuralNetwork) Predict(batch *Matrix) *Matrix {
	return nw.Forward(batch, false)
}

// Backward threads dE/dY through the layers in reverse order. Each layer
// updates its own parameters on the way.
func (nw *NeuralNetwork) Backward(epoch int, outputGrad *Matrix) *Matrix {
	grad := outputGrad
	for i := len(nw.Layers) - 1; i >= 0; i-- {
		grad = nw.Layers[i].Backward(epoch, grad)
	}
	return grad
}

// Train runs one epoch over X/Y in contiguous chunks of batchSize columns
// and returns the mean of the chunk losses. A trailing partial chunk
// weighs as much as a full one.
func (nw *NeuralNetwork) Train(epoch int, X, Y *Matrix, loss Loss, batchSize int) float64 {
	if X.cols != Y.cols {
		panic(fmt.Sprintf("Train sample mismatch: X has %d columns, Y has %d", X.cols, Y.cols))
	}
	if batchSize <= 0 {
		panic(fmt.Sprintf("Batch size %d must be positive", batchSize))
	}

	var totalLoss float64
	batchesProcessed := 0
	for batchStart := 0; batchStart < X.cols; batchStart += batchSize {
		batchEnd := min(batchStart+batchSize, X.cols)
		xb := X.SliceColumns(batchStart, batchEnd)
		yb := Y.SliceColumns(batchStart, batchEnd)

		pred := nw.Forward(xb, true)
		totalLoss += loss.Loss(yb, pred)
		nw.Backward(epoch, loss.Prime(yb, pred))
		batchesProcessed++
	}
	if batchesProcessed == 0 {
		return 0
	}
	return totalLoss / float64(batchesProcessed)
}

// PredictEvaluate predicts every column of X with dropout disabled and
// returns the predictions with the mean and population standard deviation
// of the per-sample losses.
func (nw *NeuralNetwork) PredictEvaluate(X, Y *Matrix, loss Loss) (*Matrix, float64, float64) {
	preds := nw.Predict(X)
	preds.mustMatch("PredictEvaluate", Y)
	losses := make([]float64, preds.cols)
	for j := range losses {
		losses[j] = loss.Loss(Y.SliceColumns(j, j+1), preds.SliceColumns(j, j+1))
	}
	if len(losses) == 0 {
		return preds, 0, 0
	}
	mean, std := stat.PopMeanStdDev(losses, nil)
	return preds, mean, std
}

// Params snapshots every layer's learnable matrices.
func (nw *NeuralNetwork) Params() NetworkParams {
	p := make(NetworkParams, len(nw.Layers))
	for i, layer := range nw.Layers {
		for _, m := range layer.Params() {
			p[i] = append(p[i], m.Clone())
		}
	}
	return p
}

// SetParams copies a snapshot into the layers. Nothing is written unless
// every layer's layout matches.
func (nw *NeuralNetwork) SetParams(p NetworkParams) error {
	if err := sameLayout(nw.Params(), p); err != nil {
		return err
	}
	for i, layer := range nw.Layers {
		if err := layer.SetParams(p[i]); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

// SaveToFile saves every layer's parameter matrices to a gob file.
func (nw *NeuralNetwork) SaveToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	encoder := gob.NewEncoder(file)

	type NetworkData struct {
		LayerParams [][]*Matrix
	}
	if err := encoder.Encode(NetworkData{LayerParams: nw.Params()}); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return file.Close()
}

func (nw *NeuralNetwork) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	decoder := gob.NewDecoder(file)

	// Same struct definition as SaveToFile
	type NetworkData struct {
		LayerParams [][]*Matrix
	}

	var loadedData NetworkData
	if err := decoder.Decode(&loadedData); err != nil {
		return fmt.Errorf("failed to decode gob file: %w", err)
	}
	if len(nw.Layers) != len(loadedData.LayerParams) {
		return fmt.Errorf("architecture mismatch: current network has %d layers, model file has %d: %w",
			len(nw.Layers), len(loadedData.LayerParams), ErrParamsMismatch)
	}
	return nw.SetParams(loadedData.LayerParams)
}
