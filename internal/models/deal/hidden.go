package deal

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/cnclabs/deal/pkg/nn"
)

// ErrShapeMismatch is returned when embedding batches do not line up
var ErrShapeMismatch = errors.New("deal: shape mismatch")

// mlpHidden is the width of the second MLP layer
const mlpHidden = 32

// Backward maps the gradient of a head's output to the gradients of its two inputs
type Backward func(grad [][]float64) (gradFirst, gradSecond [][]float64)

// Head scores the similarity of two equal-shaped embedding batches
type Head interface {
	// Forward is the training-time score: Width() columns per pair
	Forward(first, second [][]float64) ([][]float64, error)
	// ForwardTrain is Forward plus the backward pass of that call
	ForwardTrain(first, second [][]float64) ([][]float64, Backward, error)
	// Evaluate is the ranking-time score
	Evaluate(first, second [][]float64) ([][]float64, error)
	Params() []*nn.Param
	Width() int
}

// HeadFactory builds a scoring head
type HeadFactory func(dim int, bce bool, mode Mode, rng *rand.Rand) (Head, error)

// NewHiddenHead is the HeadFactory for Hidden
func NewHiddenHead(dim int, bce bool, mode Mode, rng *rand.Rand) (Head, error) {
	return NewHidden(dim, bce, mode, rng)
}

// Hidden is the default scoring head.
//
// In ModeAll a three layer MLP over [first; second] is joined with cosine,
// dot and distance features. BCE heads project the four features to one
// logit, categorical heads to two rectified logits.
//
// In the single-statistic modes the statistic s is returned directly in BCE
// mode; categorical heads return the fixed decision map [rrelu(-s), rrelu(s)].
type Hidden struct {
	dim  int
	mode Mode
	bce  bool
	act  nn.RReLU

	linear1 *nn.Linear // [2*dim -> dim]
	linear2 *nn.Linear // [dim -> 32]
	linear3 *nn.Linear // [32 -> 1]
	output  *nn.Linear // [4 -> Width()]
}

// NewHidden creates a scoring head; an unknown mode is rejected here
func NewHidden(dim int, bce bool, mode Mode, rng *rand.Rand) (*Hidden, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	h := &Hidden{dim: dim, mode: mode, bce: bce, act: nn.DefaultRReLU}
	if mode == ModeAll {
		h.linear1 = nn.NewLinear("hidden.linear1", 2*dim, dim, rng)
		h.linear2 = nn.NewLinear("hidden.linear2", dim, mlpHidden, rng)
		h.linear3 = nn.NewLinear("hidden.linear3", mlpHidden, 1, rng)
		h.output = nn.NewLinear("hidden.output", 4, h.Width(), rng)
	}
	return h, nil
}

// Mode returns the scoring mode
func (h *Hidden) Mode() Mode {
	return h.mode
}

// Width is 1 in BCE mode and 2 otherwise
func (h *Hidden) Width() int {
	if h.bce {
		return 1
	}
	return 2
}

// Params returns the learned parameters; single-statistic heads have none
func (h *Hidden) Params() []*nn.Param {
	if h.mode != ModeAll {
		return nil
	}
	var params []*nn.Param
	for _, l := range []*nn.Linear{h.linear1, h.linear2, h.linear3, h.output} {
		params = append(params, l.Params()...)
	}
	return params
}

func (h *Hidden) check(first, second [][]float64) error {
	if len(first) != len(second) {
		return fmt.Errorf("%w: %d first embeddings, %d second", ErrShapeMismatch, len(first), len(second))
	}
	if err := nn.CheckWidth(first, h.dim); err != nil {
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	if err := nn.CheckWidth(second, h.dim); err != nil {
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	return nil
}

// Forward implements Head
func (h *Hidden) Forward(first, second [][]float64) ([][]float64, error) {
	out, _, err := h.ForwardTrain(first, second)
	return out, err
}

// ForwardTrain implements Head
func (h *Hidden) ForwardTrain(first, second [][]float64) ([][]float64, Backward, error) {
	if err := h.check(first, second); err != nil {
		return nil, nil, err
	}
	if h.mode == ModeAll {
		out, back := h.forwardAll(first, second)
		return out, back, nil
	}
	out, back := h.forwardStatistic(first, second)
	return out, back, nil
}

// Evaluate implements Head. ModeAll returns the four raw features and
// ModePDist returns the negated distance so larger always means closer.
func (h *Hidden) Evaluate(first, second [][]float64) ([][]float64, error) {
	if err := h.check(first, second); err != nil {
		return nil, err
	}
	switch h.mode {
	case ModeAll:
		feats, _ := h.features(first, second)
		return feats, nil
	case ModePDist:
		out := make([][]float64, len(first))
		for n := range first {
			out[n] = []float64{-nn.PairwiseDistance(first[n], second[n])}
		}
		return out, nil
	default:
		out := make([][]float64, len(first))
		for n := range first {
			out[n] = []float64{h.statistic(first[n], second[n])}
		}
		return out, nil
	}
}

func (h *Hidden) statistic(x, y []float64) float64 {
	switch h.mode {
	case ModeCos:
		return nn.Cosine(x, y)
	case ModeDot:
		return nn.Dot(x, y)
	default:
		return nn.PairwiseDistance(x, y)
	}
}

func (h *Hidden) statisticGrad(x, y []float64, g float64) ([]float64, []float64) {
	switch h.mode {
	case ModeCos:
		return nn.CosineGrad(x, y, g)
	case ModeDot:
		return nn.DotGrad(x, y, g)
	default:
		return nn.PairwiseDistanceGrad(x, y, g)
	}
}

func (h *Hidden) forwardStatistic(first, second [][]float64) ([][]float64, Backward) {
	stats := make([][]float64, len(first))
	for n := range first {
		stats[n] = []float64{h.statistic(first[n], second[n])}
	}
	if h.bce {
		back := func(grad [][]float64) ([][]float64, [][]float64) {
			gf := make([][]float64, len(first))
			gs := make([][]float64, len(first))
			for n := range first {
				gf[n], gs[n] = h.statisticGrad(first[n], second[n], grad[n][0])
			}
			return gf, gs
		}
		return stats, back
	}

	// fixed two-class map: class 0 gets -s, class 1 gets +s
	pre := make([][]float64, len(stats))
	for n, s := range stats {
		pre[n] = []float64{-s[0], s[0]}
	}
	out := h.act.Apply(pre)
	back := func(grad [][]float64) ([][]float64, [][]float64) {
		gPre := h.act.Backward(pre, grad)
		gf := make([][]float64, len(first))
		gs := make([][]float64, len(first))
		for n := range first {
			gf[n], gs[n] = h.statisticGrad(first[n], second[n], gPre[n][1]-gPre[n][0])
		}
		return gf, gs
	}
	return out, back
}

// mlpTape keeps the intermediate values of one MLP pass
type mlpTape struct {
	x0, z1, a1, z2, a2, z3 [][]float64
}

func (h *Hidden) features(first, second [][]float64) ([][]float64, *mlpTape) {
	tape := &mlpTape{x0: nn.Concat(first, second)}
	tape.z1 = h.linear1.Forward(tape.x0)
	tape.a1 = h.act.Apply(tape.z1)
	tape.z2 = h.linear2.Forward(tape.a1)
	tape.a2 = h.act.Apply(tape.z2)
	tape.z3 = h.linear3.Forward(tape.a2)
	a3 := h.act.Apply(tape.z3)

	feats := make([][]float64, len(first))
	for n := range first {
		feats[n] = []float64{
			a3[n][0],
			nn.Cosine(first[n], second[n]),
			nn.Dot(first[n], second[n]),
			nn.PairwiseDistance(first[n], second[n]),
		}
	}
	return feats, tape
}

func (h *Hidden) forwardAll(first, second [][]float64) ([][]float64, Backward) {
	feats, tape := h.features(first, second)
	zOut := h.output.Forward(feats)
	out := zOut
	if !h.bce {
		out = h.act.Apply(zOut)
	}

	back := func(grad [][]float64) ([][]float64, [][]float64) {
		gZOut := grad
		if !h.bce {
			gZOut = h.act.Backward(zOut, grad)
		}
		gFeats := h.output.Backward(feats, gZOut)

		gA3 := make([][]float64, len(feats))
		for n := range feats {
			gA3[n] = []float64{gFeats[n][0]}
		}
		gZ3 := h.act.Backward(tape.z3, gA3)
		gA2 := h.linear3.Backward(tape.a2, gZ3)
		gZ2 := h.act.Backward(tape.z2, gA2)
		gA1 := h.linear2.Backward(tape.a1, gZ2)
		gZ1 := h.act.Backward(tape.z1, gA1)
		gX0 := h.linear1.Backward(tape.x0, gZ1)

		gf := make([][]float64, len(first))
		gs := make([][]float64, len(first))
		for n := range first {
			gf[n] = append([]float64(nil), gX0[n][:h.dim]...)
			gs[n] = append([]float64(nil), gX0[n][h.dim:]...)

			cx, cy := nn.CosineGrad(first[n], second[n], gFeats[n][1])
			dx, dy := nn.DotGrad(first[n], second[n], gFeats[n][2])
			px, py := nn.PairwiseDistanceGrad(first[n], second[n], gFeats[n][3])
			for d := 0; d < h.dim; d++ {
				gf[n][d] += cx[d] + dx[d] + px[d]
				gs[n][d] += cy[d] + dy[d] + py[d]
			}
		}
		return gf, gs
	}
	return out, back
}
