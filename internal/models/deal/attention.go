package deal

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cnclabs/deal/pkg/nn"
)

// ErrEmptyBatch is returned when attention pooling is asked to pool nothing
var ErrEmptyBatch = errors.New("deal: empty batch")

// AttentionLayer pools a batch of embeddings into one attended vector.
// A linear map scores every entry, a softmax down each feature column turns
// the scores into weights over the batch, and the weighted column sums form
// the output.
type AttentionLayer struct {
	dim    int
	linear *nn.Linear
}

// NewAttentionLayer creates an attention layer over dim-wide embeddings
func NewAttentionLayer(name string, dim int, rng *rand.Rand) *AttentionLayer {
	return &AttentionLayer{
		dim:    dim,
		linear: nn.NewLinear(name+".linear", dim, dim, rng),
	}
}

// Weights returns the per-entry attention weights; every column sums to 1
func (a *AttentionLayer) Weights(x [][]float64) ([][]float64, error) {
	if len(x) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := a.linear.Check(x); err != nil {
		return nil, fmt.Errorf("attention: %w", err)
	}

	weights := a.linear.Forward(x)
	for j := 0; j < a.dim; j++ {
		maxV := math.Inf(-1)
		for i := range weights {
			maxV = math.Max(maxV, weights[i][j])
		}
		sum := 0.0
		for i := range weights {
			weights[i][j] = math.Exp(weights[i][j] - maxV)
			sum += weights[i][j]
		}
		for i := range weights {
			weights[i][j] /= sum
		}
	}
	return weights, nil
}

// Forward returns the attended vector of x
func (a *AttentionLayer) Forward(x [][]float64) ([]float64, error) {
	weights, err := a.Weights(x)
	if err != nil {
		return nil, err
	}
	attended := make([]float64, a.dim)
	for i := range x {
		for j := 0; j < a.dim; j++ {
			attended[j] += weights[i][j] * x[i][j]
		}
	}
	return attended, nil
}

// Params returns the projection parameters
func (a *AttentionLayer) Params() []*nn.Param {
	return a.linear.Params()
}
