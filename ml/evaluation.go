package ml

import (
	"encoding/csv"
	"io"
	"strconv"
)

// EpochEvaluation is one epoch's training loss and the mean and standard
// deviation of per-sample validation losses.
type EpochEvaluation struct {
	TrainLoss  float64
	ValLossAvg float64
	ValLossStd float64
}

// FoldEvaluation is the epoch log of one fold, in epoch order.
type FoldEvaluation struct {
	Fold   int
	Epochs []EpochEvaluation
}

func (f *FoldEvaluation) Append(e EpochEvaluation) {
	f.Epochs = append(f.Epochs, e)
}

// Final returns the last recorded epoch, or the zero value when empty.
func (f FoldEvaluation) Final() EpochEvaluation {
	if len(f.Epochs) == 0 {
		return EpochEvaluation{}
	}
	return f.Epochs[len(f.Epochs)-1]
}

// ModelEvaluation groups the fold logs of one training run.
type ModelEvaluation struct {
	Folds []FoldEvaluation
}

// MeanPerEpoch averages every field across folds, epoch by epoch, over the
// epochs all folds have reached.
func (m ModelEvaluation) MeanPerEpoch() []EpochEvaluation {
	if len(m.Folds) == 0 {
		return nil
	}
	epochs := len(m.Folds[0].Epochs)
	for _, f := range m.Folds[1:] {
		epochs = min(epochs, len(f.Epochs))
	}
	out := make([]EpochEvaluation, epochs)
	n := float64(len(m.Folds))
	for e := range out {
		for _, f := range m.Folds {
			out[e].TrainLoss += f.Epochs[e].TrainLoss / n
			out[e].ValLossAvg += f.Epochs[e].ValLossAvg / n
			out[e].ValLossStd += f.Epochs[e].ValLossStd / n
		}
	}
	return out
}

// WriteCSV writes one row per (fold, epoch).
func (m ModelEvaluation) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"fold", "epoch", "train_loss", "val_loss_avg", "val_loss_std"}); err != nil {
		return err
	}
	for _, f := range m.Folds {
		for e, ev := range f.Epochs {
			row := []string{
				strconv.Itoa(f.Fold),
				strconv.Itoa(e),
				strconv.FormatFloat(ev.TrainLoss, 'g', -1, 64),
				strconv.FormatFloat(ev.ValLossAvg, 'g', -1, 64),
				strconv.FormatFloat(ev.ValLossStd, 'g', -1, 64),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
