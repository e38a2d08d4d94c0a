package ml

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// TrainSuite drives the split and k-fold trainers end to end.
type TrainSuite struct {
	suite.Suite
	ds       *Dataset
	topology []LayerConfig
	cfg      TrainingConfig
}

func (s *TrainSuite) SetupTest() {
	var xs, ys [][]float64
	var ids []int
	for r := 0; r < 5; r++ {
		for k, in := range [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
			xs = append(xs, in)
			ys = append(ys, []float64{float64(int(in[0]) ^ int(in[1]))})
			ids = append(ids, 100+4*r+k)
		}
	}
	ds, err := NewDataset(ids, FromColumnLeading(xs), FromColumnLeading(ys))
	require.NoError(s.T(), err)
	s.ds = ds

	s.topology = WithDefaultOptimizer(OptimizerConfig{Type: OptAdam, Schedule: ConstantRate(0.01)},
		Full(2, 6, Activation("tanh")),
		Full(6, 1, Activation("sigmoid")),
	)
	s.cfg = TrainingConfig{
		Epochs:    30,
		BatchSize: 4,
		Loss:      MSE{},
		Folds:     4,
		Shuffle:   true,
		Seed:      7,
		Logger:    log.New(io.Discard, "", 0),
	}
}

func (s *TrainSuite) TestKFoldsShapesResult() {
	res, err := TrainKFolds(s.topology, s.ds, s.cfg)
	require.NoError(s.T(), err)

	require.Len(s.T(), res.Evaluation.Folds, 4)
	require.Len(s.T(), res.FoldParams, 4)
	for i, f := range res.Evaluation.Folds {
		s.Equal(i, f.Fold)
		s.Len(f.Epochs, s.cfg.Epochs)
		s.LessOrEqual(res.Evaluation.Folds[res.BestFold].Final().ValLossAvg, f.Final().ValLossAvg)
	}
	s.Len(res.Evaluation.MeanPerEpoch(), s.cfg.Epochs)

	// every sample is validated exactly once
	require.Len(s.T(), res.Predictions, s.ds.Len())
	ids := make([]int, len(res.Predictions))
	for i, p := range res.Predictions {
		ids[i] = p.ID
		s.Len(p.Values, 1)
	}
	s.True(slices.IsSorted(ids))
	s.Equal(s.ds.IDs, ids)

	s.NoError(sameLayout(res.Params, res.AveragedParams))
	s.NoError(NewNetwork(s.topology, nil).SetParams(res.Params))
	s.NoError(NewNetwork(s.topology, nil).SetParams(res.AveragedParams))
}

func (s *TrainSuite) TestKFoldsDeterministicForSeed() {
	a, err := TrainKFolds(s.topology, s.ds, s.cfg)
	require.NoError(s.T(), err)
	b, err := TrainKFolds(s.topology, s.ds, s.cfg)
	require.NoError(s.T(), err)
	s.Equal(a.Evaluation, b.Evaluation)
	s.Equal(a.BestFold, b.BestFold)
}

func (s *TrainSuite) TestSplitTrainsOneFold() {
	s.cfg.SplitRatio = 0.75
	res, err := TrainSplit(s.topology, s.ds, s.cfg)
	require.NoError(s.T(), err)

	require.Len(s.T(), res.Evaluation.Folds, 1)
	s.Len(res.Evaluation.Folds[0].Epochs, s.cfg.Epochs)
	s.Equal(0, res.BestFold)
	s.Len(res.Predictions, 5)
	s.Len(res.FoldParams, 1)
}

func (s *TrainSuite) TestTrainingReducesLoss() {
	s.cfg.Epochs = 400
	s.cfg.Folds = 2
	res, err := TrainKFolds(s.topology, s.ds, s.cfg)
	require.NoError(s.T(), err)
	mean := res.Evaluation.MeanPerEpoch()
	s.Less(mean[len(mean)-1].TrainLoss, mean[0].TrainLoss)
}

func (s *TrainSuite) TestOnEpochSeesEveryFoldEpoch() {
	seen := map[[2]int]int{}
	s.cfg.OnEpoch = func(fold, epoch int, _ EpochEvaluation) {
		seen[[2]int{fold, epoch}]++
	}
	_, err := TrainKFolds(s.topology, s.ds, s.cfg)
	require.NoError(s.T(), err)
	s.Len(seen, s.cfg.Folds*s.cfg.Epochs)
	for key, n := range seen {
		s.Equal(1, n, "fold %d epoch %d", key[0], key[1])
	}
}

func (s *TrainSuite) TestSlowOnEpochKeepsEpochOrder() {
	s.cfg.Epochs = 12
	last := map[int]int{}
	calls := 0
	s.cfg.OnEpoch = func(fold, epoch int, _ EpochEvaluation) {
		time.Sleep(time.Millisecond)
		prev, ok := last[fold]
		if !ok {
			prev = -1
		}
		s.Equal(prev+1, epoch, "fold %d", fold)
		last[fold] = epoch
		calls++
	}
	_, err := TrainKFolds(s.topology, s.ds, s.cfg)
	require.NoError(s.T(), err)
	s.Equal(s.cfg.Folds*s.cfg.Epochs, calls)
	for fold := 0; fold < s.cfg.Folds; fold++ {
		s.Equal(s.cfg.Epochs-1, last[fold])
	}
}

func (s *TrainSuite) TestWorkerPanicBecomesError() {
	// a linear output predicts 0 for the (0, 0) input, which BCE rejects
	topology := []LayerConfig{Dense(2, 1)}
	s.cfg.Loss = BCE{}
	res, err := TrainKFolds(topology, s.ds, s.cfg)
	s.Nil(res)
	s.ErrorIs(err, ErrWorkerPanic)
	s.Contains(err.Error(), "BCE")
}

func (s *TrainSuite) TestInvalidConfig() {
	for name, mutate := range map[string]func(*TrainingConfig){
		"no epochs":      func(c *TrainingConfig) { c.Epochs = 0 },
		"no batch":       func(c *TrainingConfig) { c.BatchSize = -1 },
		"one fold":       func(c *TrainingConfig) { c.Folds = 1 },
		"too many folds": func(c *TrainingConfig) { c.Folds = 21 },
	} {
		cfg := s.cfg
		mutate(&cfg)
		_, err := TrainKFolds(s.topology, s.ds, cfg)
		s.ErrorIs(err, ErrInvalidConfig, name)
	}

	_, err := TrainSplit(s.topology, s.ds, s.cfg) // SplitRatio unset
	s.ErrorIs(err, ErrInvalidConfig)
}

func (s *TrainSuite) TestOutputsWritten() {
	dir := s.T().TempDir()
	s.cfg.ParamsPath = filepath.Join(dir, "params.gob")
	s.cfg.ReportPath = filepath.Join(dir, "report.csv")
	var logs bytes.Buffer
	s.cfg.Logger = log.New(&logs, "", 0)
	s.cfg.VerboseEvery = 10

	res, err := TrainKFolds(s.topology, s.ds, s.cfg)
	require.NoError(s.T(), err)

	p, err := LoadParams(s.cfg.ParamsPath)
	require.NoError(s.T(), err)
	s.NoError(sameLayout(res.Params, p))

	f, err := os.Open(s.cfg.ReportPath)
	require.NoError(s.T(), err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(s.T(), err)
	s.Equal([]string{"fold", "epoch", "train_loss", "val_loss_avg", "val_loss_std"}, rows[0])
	s.Len(rows, 1+s.cfg.Folds*s.cfg.Epochs)

	// epochs 0, 10, 20 and the last one, per fold
	s.Equal(4*4, strings.Count(logs.String(), "| Epoch "))
	s.Contains(logs.String(), "Best fold")
}

func TestTrainSuite(t *testing.T) {
	suite.Run(t, new(TrainSuite))
}

func TestKFoldIndicesPartition(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{10, 3}, {20, 4}, {7, 7}, {5, 2}} {
		folds := KFoldIndices(tc.n, tc.k, testRNG(uint64(tc.n)))
		require.Len(t, folds, tc.k)
		seen := make([]int, tc.n)
		minSize, maxSize := tc.n, 0
		for _, fold := range folds {
			minSize, maxSize = min(minSize, len(fold)), max(maxSize, len(fold))
			for _, i := range fold {
				seen[i]++
			}
		}
		for i, c := range seen {
			require.Equal(t, 1, c, "n=%d k=%d position %d", tc.n, tc.k, i)
		}
		require.LessOrEqual(t, maxSize-minSize, 1)
	}
	require.Panics(t, func() { KFoldIndices(3, 4, nil) })
	require.Panics(t, func() { KFoldIndices(3, 1, nil) })

	// without an rng the folds are contiguous
	require.Equal(t, [][]int{{0, 1}, {2, 3, 4}}, KFoldIndices(5, 2, nil))
}

func TestSplitIndices(t *testing.T) {
	train, val := SplitIndices(10, 0.7, testRNG(1))
	require.Len(t, train, 7)
	require.Len(t, val, 3)
	all := append(slices.Clone(train), val...)
	slices.Sort(all)
	require.Equal(t, NewIndexList(10), all)

	train, val = SplitIndices(2, 0.99, nil)
	require.Equal(t, []int{0}, train)
	require.Equal(t, []int{1}, val)
}

func TestDataset(t *testing.T) {
	x := FromRowLeading([][]float64{{1, 2, 3}})
	y := FromRowLeading([][]float64{{4, 5, 6}})
	ds, err := NewDataset(nil, x, y)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, ds.IDs)

	sub := ds.Subset([]int{2, 0})
	require.Equal(t, []int{2, 0}, sub.IDs)
	require.Equal(t, []float64{3, 1}, sub.X.RawData())
	require.Equal(t, []float64{6, 4}, sub.Y.RawData())

	_, err = NewDataset(nil, x, y.SliceColumns(0, 2))
	require.Error(t, err)
	_, err = NewDataset([]int{1}, x, y)
	require.Error(t, err)
	_, err = NewDataset([]int{7, 8, 7}, x, y)
	require.ErrorContains(t, err, "repeats id 7")

	require.Equal(t, []int{1, 3}, complementIndices(4, []int{2, 0}))
}

func TestModelEvaluationMeanPerEpoch(t *testing.T) {
	m := ModelEvaluation{Folds: []FoldEvaluation{
		{Fold: 0, Epochs: []EpochEvaluation{{1, 2, 3}, {5, 6, 7}}},
		{Fold: 1, Epochs: []EpochEvaluation{{3, 4, 5}}},
	}}
	require.Equal(t, []EpochEvaluation{{2, 3, 4}}, m.MeanPerEpoch())
	require.Equal(t, EpochEvaluation{5, 6, 7}, m.Folds[0].Final())
	require.Equal(t, EpochEvaluation{}, FoldEvaluation{}.Final())
	require.Nil(t, ModelEvaluation{}.MeanPerEpoch())
}
