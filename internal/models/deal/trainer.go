package deal

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/cnclabs/deal/pkg/attrnet"
	"github.com/cnclabs/deal/pkg/nn"
)

// Recorder receives training progress; internal/metrics implements it
type Recorder interface {
	ObserveLosses(losses [3]float64)
	ObserveStep(d time.Duration)
	ObserveEpoch()
	ObserveEval(split string, res EvalResult)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLosses([3]float64) {}
func (nopRecorder) ObserveStep(time.Duration) {}
func (nopRecorder) ObserveEpoch() {}
func (nopRecorder) ObserveEval(string, EvalResult) {}

// TrainOptions controls the training loop
type TrainOptions struct {
	Epochs    int
	BatchSize int
	// Thetas weight the node, attr and alignment loss terms
	Thetas [3]float64
	// Lambdas weight the node, attr and inter scores at evaluation
	Lambdas [3]float64
	Seed    int64
}

// EvalResult summarizes link prediction quality on a labeled batch
type EvalResult struct {
	AUC           float64
	AP            float64
	CriterionLoss float64
	// NodeAttrPearson correlates the node path and attr path ranking scores
	NodeAttrPearson float64
}

// Epoch is the averaged loss snapshot of one pass over the training pairs
type Epoch struct {
	Loss   float64
	Losses [3]float64
	Val    *EvalResult
}

// Trainer runs mini-batch training of a DEAL model against one graph
type Trainer struct {
	model     *DEAL
	data      *attrnet.Data
	optimizer nn.Optimizer
	opts      TrainOptions
	logger    *zap.Logger
	recorder  Recorder
	rng       *rand.Rand
}

// NewTrainer creates a trainer. A nil logger or recorder disables that output.
func NewTrainer(model *DEAL, data *attrnet.Data, optimizer nn.Optimizer, opts TrainOptions, logger *zap.Logger, recorder Recorder) (*Trainer, error) {
	if opts.Epochs <= 0 || opts.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: epochs %d, batch size %d must be positive", ErrInvalidOption, opts.Epochs, opts.BatchSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Trainer{
		model:     model,
		data:      data,
		optimizer: optimizer,
		opts:      opts,
		logger:    logger,
		recorder:  recorder,
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Fit trains for the configured number of epochs, validating on val after
// each epoch when it is non-empty. The context is checked between batches.
func (t *Trainer) Fit(ctx context.Context, train, val attrnet.Batch) ([]Epoch, error) {
	if train.Len() == 0 {
		return nil, ErrEmptyBatch
	}

	t.logger.Info("start training",
		zap.Int("pairs", train.Len()),
		zap.Int("epochs", t.opts.Epochs),
		zap.Int("batch_size", t.opts.BatchSize),
		zap.String("mode", t.model.opts.Mode.String()),
		zap.Bool("bce_mode", t.model.opts.BCEMode),
		zap.Float64("gamma", t.model.opts.Gamma),
	)

	shuffled := attrnet.Batch{
		Pairs:  append([]attrnet.Pair(nil), train.Pairs...),
		Labels: append([]float64(nil), train.Labels...),
	}
	params := t.model.Params()
	history := make([]Epoch, 0, t.opts.Epochs)

	for epoch := 0; epoch < t.opts.Epochs; epoch++ {
		t.model.Train()
		shuffled.Shuffle(t.rng)

		var sum Epoch
		batches := 0
		for start := 0; start < shuffled.Len(); start += t.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := start + t.opts.BatchSize
			if end > shuffled.Len() {
				end = shuffled.Len()
			}

			began := time.Now()
			nn.ZeroGrads(params)
			loss, err := t.model.DefaultLossGrad(shuffled.Slice(start, end), t.data, t.opts.Thetas)
			if err != nil {
				return history, fmt.Errorf("epoch %d batch %d: %w", epoch+1, batches, err)
			}
			t.optimizer.Step(params)
			t.recorder.ObserveStep(time.Since(began))

			losses := t.model.Losses()
			t.recorder.ObserveLosses(losses)
			sum.Loss += loss
			floats.Add(sum.Losses[:], losses[:])
			batches++
		}

		sum.Loss /= float64(batches)
		floats.Scale(1/float64(batches), sum.Losses[:])

		fields := []zap.Field{
			zap.Int("epoch", epoch+1),
			zap.Float64("loss", sum.Loss),
			zap.Float64("node_loss", sum.Losses[0]),
			zap.Float64("attr_loss", sum.Losses[1]),
			zap.Float64("align_loss", sum.Losses[2]),
		}
		if val.Len() > 0 {
			res, err := t.Evaluate(val)
			if err != nil {
				return history, fmt.Errorf("epoch %d validation: %w", epoch+1, err)
			}
			sum.Val = &res
			t.recorder.ObserveEval("val", res)
			fields = append(fields,
				zap.Float64("val_auc", res.AUC),
				zap.Float64("val_ap", res.AP),
				zap.Float64("val_criterion", res.CriterionLoss),
				zap.Float64("val_pearson", res.NodeAttrPearson),
			)
		}
		t.logger.Info("epoch done", fields...)
		t.recorder.ObserveEpoch()
		history = append(history, sum)
	}

	t.logger.Info("training complete")
	return history, nil
}

// Evaluate scores batch with the configured lambdas and reports ranking quality
func (t *Trainer) Evaluate(batch attrnet.Batch) (EvalResult, error) {
	if t.model.Training() {
		t.model.Eval()
		defer t.model.Train()
	}

	scores, err := t.model.Evaluate(batch.Pairs, t.data, t.opts.Lambdas)
	if err != nil {
		return EvalResult{}, err
	}
	rank := RankScores(scores)

	nodeScores, err := t.model.NodeForward(batch.Pairs)
	if err != nil {
		return EvalResult{}, err
	}
	attrScores, err := t.model.AttrForward(batch.Pairs, t.data)
	if err != nil {
		return EvalResult{}, err
	}

	return EvalResult{
		AUC:             ROCAUC(rank, batch.Labels),
		AP:              AveragePrecision(rank, batch.Labels),
		CriterionLoss:   t.model.Criterion().Loss(scores, batch.Labels),
		NodeAttrPearson: Pearson(RankScores(nodeScores), RankScores(attrScores)),
	}, nil
}
