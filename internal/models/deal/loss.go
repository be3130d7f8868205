package deal

import (
	"fmt"
	"math"

	"github.com/cnclabs/deal/pkg/attrnet"
	"github.com/cnclabs/deal/pkg/nn"
)

// rllBias is the margin b in the ranking loss
const rllBias = 0.1

// RLLLoss is the ranking loss
//
//	mean( y*softplus(-s*g + b)/g + exp(d)*(1-y)*softplus(s*g + b)/g )
//
// with g the model gamma and b = 0.1. Negatives are weighted by exp(d), so
// structurally close negatives cost more. Nothing guards exp against
// overflow; a very large gamma*|s| yields +Inf.
func (m *DEAL) RLLLoss(scores, dists, labels []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	g := m.opts.Gamma
	total := 0.0
	for i, s := range scores {
		y := labels[i]
		total += y*nn.Softplus(-s*g+rllBias)/g + math.Exp(dists[i])*(1-y)*nn.Softplus(s*g+rllBias)/g
	}
	return total / float64(len(scores))
}

// rllGrad returns d RLLLoss / d scores, scaled by weight
func (m *DEAL) rllGrad(scores, dists, labels []float64, weight float64) []float64 {
	g := m.opts.Gamma
	n := float64(len(scores))
	grad := make([]float64, len(scores))
	for i, s := range scores {
		y := labels[i]
		pos := -y * nn.Sigmoid(-s*g+rllBias)
		neg := math.Exp(dists[i]) * (1 - y) * nn.Sigmoid(s*g+rllBias)
		grad[i] = weight * (pos + neg) / n
	}
	return grad
}

// scoreGrad places per-pair ranking gradients into the column RankScores reads
func scoreGrad(grad []float64, width int) [][]float64 {
	out := nn.Zeros(len(grad), width)
	for n, g := range grad {
		out[n][width-1] = g
	}
	return out
}

// DefaultLoss returns
//
//	thetas[0]*RLL(node) + thetas[1]*RLL(attr) - thetas[2]*mean(cos(attr_u, node_u))
//
// where u ranges over the distinct nodes of the batch. The three weighted
// terms are kept and available from Losses.
func (m *DEAL) DefaultLoss(batch attrnet.Batch, data *attrnet.Data, thetas [3]float64) (float64, error) {
	return m.defaultLoss(batch, data, thetas, false)
}

// DefaultLossGrad is DefaultLoss that also accumulates the gradient of the
// total into Params. Callers zero the gradients between steps.
func (m *DEAL) DefaultLossGrad(batch attrnet.Batch, data *attrnet.Data, thetas [3]float64) (float64, error) {
	return m.defaultLoss(batch, data, thetas, true)
}

func (m *DEAL) defaultLoss(batch attrnet.Batch, data *attrnet.Data, thetas [3]float64, withGrad bool) (float64, error) {
	if len(batch.Labels) != len(batch.Pairs) {
		return 0, fmt.Errorf("%w: %d pairs, %d labels", ErrShapeMismatch, len(batch.Pairs), len(batch.Labels))
	}
	if len(batch.Pairs) == 0 {
		return 0, ErrEmptyBatch
	}
	if err := m.checkPairs(batch.Pairs); err != nil {
		return 0, err
	}
	if err := m.checkData(data); err != nil {
		return 0, err
	}

	dists := batch.Dists(data)
	firsts, seconds := endpoints(batch.Pairs)

	// node path
	nodeOut, nodeBack, err := m.nodeLayer.ForwardTrain(m.nodeEmb.Lookup(firsts), m.nodeEmb.Lookup(seconds))
	if err != nil {
		return 0, fmt.Errorf("node layer: %w", err)
	}
	nodeScores := RankScores(nodeOut)
	nodeLoss := m.RLLLoss(nodeScores, dists, batch.Labels)

	// attr path
	attrs, err := m.attrRows(data, true, firsts, seconds)
	if err != nil {
		return 0, err
	}
	attrOut, attrBack, err := m.attrLayer.ForwardTrain(attrs.rows(firsts), attrs.rows(seconds))
	if err != nil {
		return 0, fmt.Errorf("attr layer: %w", err)
	}
	attrScores := RankScores(attrOut)
	attrLoss := m.RLLLoss(attrScores, dists, batch.Labels)

	// alignment between attribute and identity spaces, without dropout
	alignSum := 0.0
	for i, u := range attrs.nodes {
		alignSum += nn.Cosine(attrs.clean[i], m.nodeEmb.Weight.Row(u))
	}
	alignLoss := -alignSum / float64(len(attrs.nodes))

	m.losses = [3]float64{nodeLoss * thetas[0], attrLoss * thetas[1], alignLoss * thetas[2]}
	total := m.losses[0] + m.losses[1] + m.losses[2]

	if withGrad {
		m.backward(batch, dists, thetas, firsts, seconds, nodeOut, nodeBack, attrs, attrOut, attrBack, data)
	}
	return total, nil
}

func (m *DEAL) backward(
	batch attrnet.Batch,
	dists []float64,
	thetas [3]float64,
	firsts, seconds []int,
	nodeOut [][]float64, nodeBack Backward,
	attrs *attrBatch,
	attrOut [][]float64, attrBack Backward,
	data *attrnet.Data,
) {
	// node path
	gNode := m.rllGrad(RankScores(nodeOut), dists, batch.Labels, thetas[0])
	gf, gs := nodeBack(scoreGrad(gNode, m.nodeLayer.Width()))
	m.nodeEmb.Backward(firsts, gf)
	m.nodeEmb.Backward(seconds, gs)

	// attr path, routed back through the dropout mask to the distinct rows
	gAttr := m.rllGrad(RankScores(attrOut), dists, batch.Labels, thetas[1])
	gf, gs = attrBack(scoreGrad(gAttr, m.attrLayer.Width()))
	gRows := nn.Zeros(len(attrs.nodes), m.embDim)
	for n := range batch.Pairs {
		fr := gRows[attrs.pos[firsts[n]]]
		sr := gRows[attrs.pos[seconds[n]]]
		for d := 0; d < m.embDim; d++ {
			fr[d] += gf[n][d]
			sr[d] += gs[n][d]
		}
	}
	if attrs.mask != nil {
		for i := range gRows {
			for d := range gRows[i] {
				gRows[i][d] *= attrs.mask[i][d]
			}
		}
	}

	// alignment term
	coef := -thetas[2] / float64(len(attrs.nodes))
	for i, u := range attrs.nodes {
		gx, gy := nn.CosineGrad(attrs.clean[i], m.nodeEmb.Weight.Row(u), coef)
		for d := 0; d < m.embDim; d++ {
			gRows[i][d] += gx[d]
		}
		m.nodeEmb.Backward([]int{u}, [][]float64{gy})
	}

	m.attrEmb.Backward(data, attrs.nodes, gRows)
}
