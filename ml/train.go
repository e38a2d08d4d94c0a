package ml

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"time"
)

var (
	ErrInvalidConfig = errors.New("invalid training config")
	ErrWorkerPanic   = errors.New("fold worker panicked")
)

type TrainingConfig struct {
	Epochs       int
	BatchSize    int
	Loss         Loss    // MSE when nil
	Folds        int     // K-Folds only
	SplitRatio   float64 // Split only: share of samples used for training
	Shuffle      bool    // shuffle samples before partitioning
	Seed         uint64  // seeds partitioning, initialisation and dropout
	VerboseEvery int     // How often to log progress (in epochs)
	Logger       *log.Logger

	// Optional outputs written once training completes
	ParamsPath string // gob snapshot of the selected parameters
	ReportPath string // CSV evaluation report

	// OnEpoch is called from the coordinating goroutine for every
	// (fold, epoch) as results arrive.
	OnEpoch func(fold, epoch int, ev EpochEvaluation)
}

// Prediction is one validation sample's network output, tagged with the
// sample's id.
type Prediction struct {
	ID     int
	Values []float64
}

type TrainResult struct {
	// Params holds the selected parameters: the single split model, or the
	// fold with the lowest final validation loss.
	Params         NetworkParams
	BestFold       int
	FoldParams     []NetworkParams
	AveragedParams NetworkParams
	Evaluation     ModelEvaluation
	Predictions    []Prediction // validation predictions from the last epoch, sorted by ID
}

type foldJob struct {
	fold       int
	train, val *Dataset
}

type foldProgress struct {
	fold, epoch int
	eval        EpochEvaluation
}

type foldResult struct {
	fold   int
	eval   FoldEvaluation
	params NetworkParams
	preds  []Prediction
	err    error
}

// TrainSplit partitions the dataset once by cfg.SplitRatio and trains one
// network on the training part.
func TrainSplit(topology []LayerConfig, ds *Dataset, cfg TrainingConfig) (*TrainResult, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if cfg.SplitRatio <= 0 || cfg.SplitRatio >= 1 {
		return nil, fmt.Errorf("split ratio %v outside (0, 1): %w", cfg.SplitRatio, ErrInvalidConfig)
	}
	if ds.Len() < 2 {
		return nil, fmt.Errorf("need at least 2 samples to split, got %d: %w", ds.Len(), ErrInvalidConfig)
	}

	train, val := SplitIndices(ds.Len(), cfg.SplitRatio, cfg.partitionRNG())
	jobs := []foldJob{{fold: 0, train: ds.Subset(train), val: ds.Subset(val)}}
	cfg.Logger.Printf("Split training: %d train / %d validation samples\n", len(train), len(val))
	return runFolds(topology, jobs, cfg)
}

// TrainKFolds trains cfg.Folds independent networks, one goroutine each.
// Fold i validates on the i-th partition and trains on the others. Workers
// report through channels; this goroutine alone merges their results.
func TrainKFolds(topology []LayerConfig, ds *Dataset, cfg TrainingConfig) (*TrainResult, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if cfg.Folds < 2 || cfg.Folds > ds.Len() {
		return nil, fmt.Errorf("cannot split %d samples into %d folds: %w", ds.Len(), cfg.Folds, ErrInvalidConfig)
	}

	folds := KFoldIndices(ds.Len(), cfg.Folds, cfg.partitionRNG())
	jobs := make([]foldJob, len(folds))
	for i, held := range folds {
		jobs[i] = foldJob{
			fold:  i,
			train: ds.Subset(complementIndices(ds.Len(), held)),
			val:   ds.Subset(held),
		}
	}
	cfg.Logger.Printf("K-Folds training: %d folds over %d samples\n", cfg.Folds, ds.Len())
	return runFolds(topology, jobs, cfg)
}

func (cfg TrainingConfig) withDefaults() (TrainingConfig, error) {
	if cfg.Epochs <= 0 {
		return cfg, fmt.Errorf("epochs must be positive, got %d: %w", cfg.Epochs, ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		return cfg, fmt.Errorf("batch size must be positive, got %d: %w", cfg.BatchSize, ErrInvalidConfig)
	}
	if cfg.Loss == nil {
		cfg.Loss = MSE{}
	}
	if cfg.VerboseEvery <= 0 {
		cfg.VerboseEvery = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return cfg, nil
}

func (cfg TrainingConfig) partitionRNG() *rand.Rand {
	if !cfg.Shuffle {
		return nil
	}
	return rand.New(rand.NewPCG(cfg.Seed, 0))
}

func runFolds(topology []LayerConfig, jobs []foldJob, cfg TrainingConfig) (*TrainResult, error) {
	start := time.Now()

	// The coordinator drains progress while workers run; results holds one
	// entry per worker so nobody blocks once progress is closed.
	progress := make(chan foldProgress, len(jobs))
	results := make(chan foldResult, len(jobs))

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for _, job := range jobs {
		go func() {
			defer wg.Done()
			results <- runFold(topology, job, cfg, progress)
		}()
	}
	go func() {
		wg.Wait()
		close(progress)
		close(results)
	}()

	for p := range progress {
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(p.fold, p.epoch, p.eval)
		}
		if p.epoch%cfg.VerboseEvery == 0 || p.epoch == cfg.Epochs-1 {
			cfg.Logger.Printf("Fold %d | Epoch %d | Loss: %.4f | Val: %.4f ± %.4f | Time: %v\n",
				p.fold, p.epoch, p.eval.TrainLoss, p.eval.ValLossAvg, p.eval.ValLossStd, time.Since(start))
		}
	}

	collected := make([]foldResult, 0, len(jobs))
	for r := range results {
		collected = append(collected, r)
	}
	slices.SortFunc(collected, func(a, b foldResult) int { return a.fold - b.fold })

	var errs []error
	for _, r := range collected {
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	res, err := mergeFolds(collected)
	if err != nil {
		return nil, err
	}
	if err := writeOutputs(res, cfg); err != nil {
		return nil, err
	}
	cfg.Logger.Printf("Training Complete. Best fold: %d. Total Time: %v\n", res.BestFold, time.Since(start))
	return res, nil
}

// runFold trains one network for one partition. A panic anywhere in the
// fold is turned into an error on the result.
func runFold(topology []LayerConfig, job foldJob, cfg TrainingConfig, progress chan<- foldProgress) (res foldResult) {
	res = foldResult{fold: job.fold, eval: FoldEvaluation{Fold: job.fold}}
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("fold %d: %w: %v", job.fold, ErrWorkerPanic, r)
		}
	}()

	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(job.fold)+1))
	nw := NewNetwork(topology, rng)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		trainLoss := nw.Train(epoch, job.train.X, job.train.Y, cfg.Loss, cfg.BatchSize)
		preds, avg, std := nw.PredictEvaluate(job.val.X, job.val.Y, cfg.Loss)
		ev := EpochEvaluation{TrainLoss: trainLoss, ValLossAvg: avg, ValLossStd: std}
		res.eval.Append(ev)
		progress <- foldProgress{fold: job.fold, epoch: epoch, eval: ev}

		if epoch == cfg.Epochs-1 {
			res.preds = make([]Prediction, preds.cols)
			for j := range res.preds {
				res.preds[j] = Prediction{ID: job.val.IDs[j], Values: preds.Column(j)}
			}
		}
	}
	res.params = nw.Params()
	return res
}

func mergeFolds(collected []foldResult) (*TrainResult, error) {
	res := &TrainResult{}
	best := 0
	for i, r := range collected {
		res.Evaluation.Folds = append(res.Evaluation.Folds, r.eval)
		res.FoldParams = append(res.FoldParams, r.params)
		res.Predictions = append(res.Predictions, r.preds...)
		if r.eval.Final().ValLossAvg < collected[best].eval.Final().ValLossAvg {
			best = i
		}
	}
	slices.SortFunc(res.Predictions, func(a, b Prediction) int { return a.ID - b.ID })

	res.BestFold = collected[best].fold
	res.Params = collected[best].params
	avg, err := AverageParams(res.FoldParams...)
	if err != nil {
		return nil, err
	}
	res.AveragedParams = avg
	return res, nil
}

func writeOutputs(res *TrainResult, cfg TrainingConfig) error {
	if cfg.ParamsPath != "" {
		if err := SaveParams(cfg.ParamsPath, res.Params); err != nil {
			return fmt.Errorf("save params: %w", err)
		}
		cfg.Logger.Println("Saving params to", cfg.ParamsPath)
	}
	if cfg.ReportPath != "" {
		f, err := os.Create(cfg.ReportPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		if err := res.Evaluation.WriteCSV(f); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close report: %w", err)
		}
	}
	return nil
}
