package deal

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cnclabs/deal/pkg/attrnet"
	"github.com/cnclabs/deal/pkg/nn"
)

// twoCommunities builds two 6-node cliques joined by one edge. Nodes in the
// same community share an attribute.
func twoCommunities(t *testing.T) (*attrnet.Network, *attrnet.Attributes) {
	t.Helper()
	net := attrnet.NewNetwork()
	for i := 0; i < 12; i++ {
		net.Vertex(fmt.Sprintf("n%d", i))
	}
	for c := 0; c < 2; c++ {
		for i := 0; i < 6; i++ {
			for j := i + 1; j < 6; j++ {
				net.AddEdge(c*6+i, c*6+j)
			}
		}
	}
	net.AddEdge(5, 6)

	attrs := attrnet.NewAttributes()
	left, right, shared := attrs.Attr("left"), attrs.Attr("right"), attrs.Attr("shared")
	for i := 0; i < 12; i++ {
		if i < 6 {
			attrs.Add(i, left, 1)
		} else {
			attrs.Add(i, right, 1)
		}
		if i%3 == 0 {
			attrs.Add(i, shared, 1)
		}
	}
	return net, attrs
}

type countingRecorder struct {
	mu     sync.Mutex
	steps  int
	epochs int
	evals  map[string]int
	last   [3]float64
}

func (r *countingRecorder) ObserveLosses(l [3]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = l
}

func (r *countingRecorder) ObserveStep(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps++
}

func (r *countingRecorder) ObserveEpoch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epochs++
}

func (r *countingRecorder) ObserveEval(split string, _ EvalResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evals == nil {
		r.evals = make(map[string]int)
	}
	r.evals[split]++
}

func prepareTraining(t *testing.T) (*DEAL, *attrnet.Data, *attrnet.Split) {
	t.Helper()
	net, attrs := twoCommunities(t)
	rng := rand.New(rand.NewSource(7))
	split, err := attrnet.SplitEdges(net, attrnet.SplitOptions{ValFrac: 0.2, TestFrac: 0.1, NegPerPos: 1, SamplePower: 0.75}, rng)
	require.NoError(t, err)

	data, err := attrnet.BuildData(split.TrainNet, attrs, 0)
	require.NoError(t, err)

	opts := DefaultOptions()
	m, err := New(8, data.AttrNum, data.NodeNum, opts)
	require.NoError(t, err)
	return m, data, split
}

func TestTrainerFit(t *testing.T) {
	m, data, split := prepareTraining(t)
	core, logs := observer.New(zap.InfoLevel)
	rec := &countingRecorder{}

	thetas := [3]float64{1, 1, 1}
	m.Eval()
	before, err := m.DefaultLoss(split.Train, data, thetas)
	require.NoError(t, err)

	trainer, err := NewTrainer(m, data, nn.NewAdam(0.05, 0), TrainOptions{
		Epochs:    4,
		BatchSize: 8,
		Thetas:    thetas,
		Lambdas:   [3]float64{0.1, 0.9, 0},
		Seed:      1,
	}, zap.New(core), rec)
	require.NoError(t, err)

	history, err := trainer.Fit(context.Background(), split.Train, split.Val)
	require.NoError(t, err)
	require.Len(t, history, 4)

	for _, e := range history {
		assert.False(t, math.IsNaN(e.Loss))
		assert.InDelta(t, e.Loss, e.Losses[0]+e.Losses[1]+e.Losses[2], 1e-9)
		require.NotNil(t, e.Val)
	}

	batches := (split.Train.Len() + 7) / 8
	assert.Equal(t, 4*batches, rec.steps)
	assert.Equal(t, 4, rec.epochs)
	assert.Equal(t, 4, rec.evals["val"])
	assert.Equal(t, 4, logs.FilterMessage("epoch done").Len())
	assert.Equal(t, 1, logs.FilterMessage("training complete").Len())
	assert.True(t, m.Training(), "fit leaves the model in training mode")

	m.Eval()
	after, err := m.DefaultLoss(split.Train, data, thetas)
	require.NoError(t, err)
	assert.Less(t, after, before)

	res, err := trainer.Evaluate(split.Test)
	require.NoError(t, err)
	assert.False(t, m.Training(), "evaluate keeps eval mode")
	assert.GreaterOrEqual(t, res.AUC, 0.0)
	assert.LessOrEqual(t, res.AUC, 1.0)
}

func TestTrainerFitHonorsContext(t *testing.T) {
	m, data, split := prepareTraining(t)
	trainer, err := NewTrainer(m, data, &nn.SGD{LR: 0.01}, TrainOptions{Epochs: 2, BatchSize: 4}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	history, err := trainer.Fit(ctx, split.Train, attrnet.Batch{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, history)
}

func TestNewTrainerValidates(t *testing.T) {
	m, data, _ := prepareTraining(t)
	_, err := NewTrainer(m, data, &nn.SGD{}, TrainOptions{Epochs: 0, BatchSize: 4}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidOption)

	trainer, err := NewTrainer(m, data, &nn.SGD{}, TrainOptions{Epochs: 1, BatchSize: 4}, nil, nil)
	require.NoError(t, err)
	_, err = trainer.Fit(context.Background(), attrnet.Batch{}, attrnet.Batch{})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestRankingMetrics(t *testing.T) {
	scores := []float64{0.9, 0.8, 0.3, 0.1}
	labels := []float64{1, 0, 1, 0}

	assert.InDelta(t, 0.75, ROCAUC(scores, labels), 1e-12)
	assert.InDelta(t, (1+2.0/3.0)/2, AveragePrecision(scores, labels), 1e-12)

	assert.InDelta(t, 1.0, ROCAUC([]float64{0.1, 0.2, 0.8, 0.9}, []float64{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 0.0, ROCAUC([]float64{0.9, 0.8, 0.2, 0.1}, []float64{0, 0, 1, 1}), 1e-12)
	assert.True(t, math.IsNaN(AveragePrecision(scores, []float64{0, 0, 0, 0})))

	// the input order is untouched
	assert.Equal(t, []float64{0.9, 0.8, 0.3, 0.1}, scores)
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, -1.0, Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
}
