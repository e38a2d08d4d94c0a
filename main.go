package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/b0tShaman/neurotrain/data"
	. "github.com/b0tShaman/neurotrain/ml"
)

// -------- MAIN -------- //
func main() {
	csvPath := flag.String("csv", "", "numeric CSV dataset (header row); empty trains on XOR")
	target := flag.String("target", "y", "target column of the CSV")
	idCol := flag.String("id", "", "id column of the CSV, dropped from features")
	folds := flag.Int("folds", 4, "number of folds; 0 uses a single train/validation split")
	epochs := flag.Int("epochs", 2000, "training epochs")
	batch := flag.Int("batch", 4, "mini-batch size")
	paramsPath := flag.String("params", "", "write the selected parameters to this gob file")
	reportPath := flag.String("report", "", "write the evaluation report to this CSV file")
	flag.Parse()

	// 1. Load Data
	log.Println("Loading dataset...")
	ds, err := loadDataset(*csvPath, *target, *idCol)
	if err != nil {
		log.Fatalf("Failed to load data: %v", err)
	}
	inputDim, outputDim := ds.X.Rows(), ds.Y.Rows()
	log.Printf("Loaded dataset: %d samples, %d input features\n", ds.Len(), inputDim)

	// 2. Describe the Network
	optimizer := OptimizerConfig{
		Type:     OptAdam,
		Schedule: InverseTimeDecay{Initial: 0.01, DecaySteps: 500, DecayRate: 0.5},
	}
	topology := WithDefaultOptimizer(optimizer,
		Full(inputDim, 8, Activation("tanh")),
		Full(8, outputDim, Activation("sigmoid")),
	)

	// 3. Configure & Train
	config := TrainingConfig{
		Epochs:       *epochs,
		BatchSize:    *batch,
		Loss:         MSE{},
		Folds:        *folds,
		SplitRatio:   0.75,
		Shuffle:      true,
		Seed:         42,
		VerboseEvery: max(*epochs/10, 1),
		ParamsPath:   *paramsPath,
		ReportPath:   *reportPath,
	}
	log.Printf("TrainingConfig: %+v\n", config)

	var res *TrainResult
	if *folds >= 2 {
		res, err = TrainKFolds(topology, ds, config)
	} else {
		res, err = TrainSplit(topology, ds, config)
	}
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	for e, ev := range res.Evaluation.MeanPerEpoch() {
		if e%config.VerboseEvery == 0 || e == config.Epochs-1 {
			fmt.Printf("Epoch %d | Loss: %.4f | Val: %.4f ± %.4f\n", e, ev.TrainLoss, ev.ValLossAvg, ev.ValLossStd)
		}
	}
	for _, p := range res.Predictions {
		fmt.Printf("id %d -> %.3f\n", p.ID, p.Values)
	}

	// 4. Rebuild the selected model and score it on the full dataset
	nw := NewNetwork(topology, nil)
	if err := nw.SetParams(res.Params); err != nil {
		log.Fatalf("Cannot load trained params: %v", err)
	}
	preds, avg, std := nw.PredictEvaluate(ds.X, ds.Y, config.Loss)
	fmt.Printf("Best fold %d | Full-data loss: %.4f ± %.4f | Acc: %.2f%%\n",
		res.BestFold, avg, std, Accuracy(ds.Y, preds)*100)
}

func loadDataset(path, target, idCol string) (*Dataset, error) {
	if path == "" {
		return xorDataset()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return data.LoadCSV(path, []string{target}, idCol)
}

func xorDataset() (*Dataset, error) {
	// Repeat the four XOR cases so every fold sees all of them.
	var xs, ys [][]float64
	for r := 0; r < 4; r++ {
		xs = append(xs, []float64{0, 0}, []float64{0, 1}, []float64{1, 0}, []float64{1, 1})
		ys = append(ys, []float64{0}, []float64{1}, []float64{1}, []float64{0})
	}
	return NewDataset(nil, FromColumnLeading(xs), FromColumnLeading(ys))
}
