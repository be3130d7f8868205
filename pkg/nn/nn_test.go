package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numericGrad(f func() float64, x []float64, i int) float64 {
	const h = 1e-6
	orig := x[i]
	x[i] = orig + h
	up := f()
	x[i] = orig - h
	down := f()
	x[i] = orig
	return (up - down) / (2 * h)
}

func TestLinearBackwardMatchesNumeric(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := NewLinear("l", 3, 2, rng)
	x := [][]float64{{0.5, -1.0, 2.0}, {0.1, 0.3, -0.7}}

	// loss = sum of outputs weighted by coefficients
	coef := [][]float64{{1.0, -2.0}, {0.5, 3.0}}
	loss := func() float64 {
		y := l.Forward(x)
		total := 0.0
		for n := range y {
			for o := range y[n] {
				total += coef[n][o] * y[n][o]
			}
		}
		return total
	}

	gradIn := l.Backward(x, coef)
	for i := range l.W.Data {
		assert.InDelta(t, numericGrad(loss, l.W.Data, i), l.W.Grad[i], 1e-5)
	}
	for i := range l.B.Data {
		assert.InDelta(t, numericGrad(loss, l.B.Data, i), l.B.Grad[i], 1e-5)
	}
	for n := range x {
		for i := range x[n] {
			assert.InDelta(t, numericGrad(loss, x[n], i), gradIn[n][i], 1e-5)
		}
	}
}

func TestLinearCheckWidth(t *testing.T) {
	l := NewLinear("l", 3, 2, rand.New(rand.NewSource(1)))
	err := l.Check([][]float64{{1, 2}})
	require.ErrorIs(t, err, ErrShapeMismatch)
	require.NoError(t, l.Check([][]float64{{1, 2, 3}}))
}

func TestSimilarityGradients(t *testing.T) {
	x := []float64{0.3, -1.2, 0.8}
	y := []float64{1.1, 0.4, -0.5}

	cases := []struct {
		name string
		f    func(a, b []float64) float64
		grad func(a, b []float64, g float64) ([]float64, []float64)
	}{
		{"cosine", Cosine, CosineGrad},
		{"dot", Dot, DotGrad},
		{"pdist", PairwiseDistance, PairwiseDistanceGrad},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gx, gy := tc.grad(x, y, 1.0)
			loss := func() float64 { return tc.f(x, y) }
			for i := range x {
				assert.InDelta(t, numericGrad(loss, x, i), gx[i], 1e-5)
				assert.InDelta(t, numericGrad(loss, y, i), gy[i], 1e-5)
			}
		})
	}
}

func TestCosineAndDistanceValues(t *testing.T) {
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, 1.0, Cosine([]float64{1, 1}, []float64{2, 2}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}), 1e-12)
	assert.InDelta(t, 5.0, PairwiseDistance([]float64{3, 0}, []float64{0, -4}), 1e-5)
	assert.InDelta(t, 11.0, Dot([]float64{1, 2}, []float64{3, 4}), 1e-12)
}

func TestRReLU(t *testing.T) {
	r := DefaultRReLU
	assert.InDelta(t, 11.0/48.0, r.Slope(), 1e-12)

	pre := [][]float64{{-2, 0, 3}}
	out := r.Apply(pre)
	assert.InDelta(t, -2*r.Slope(), out[0][0], 1e-12)
	assert.Equal(t, 0.0, out[0][1])
	assert.Equal(t, 3.0, out[0][2])
	assert.Equal(t, -2.0, pre[0][0], "input must not be modified")

	g := r.Backward(pre, [][]float64{{1, 1, 1}})
	assert.InDelta(t, r.Slope(), g[0][0], 1e-12)
	assert.Equal(t, 1.0, g[0][2])
}

func TestDropout(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := [][]float64{{1, 1, 1, 1}, {2, 2, 2, 2}}

	out, mask := Dropout{P: 0.5}.Apply(x, false, rng)
	assert.Nil(t, mask)
	assert.Equal(t, x, out)

	out, mask = Dropout{P: 0.5}.Apply(x, true, rng)
	require.NotNil(t, mask)
	for n := range x {
		for i := range x[n] {
			assert.Contains(t, []float64{0, 2}, mask[n][i])
			assert.Equal(t, x[n][i]*mask[n][i], out[n][i])
		}
	}
}

func TestCriteria(t *testing.T) {
	bce := BCEWithLogits{}
	assert.InDelta(t, math.Log(2), bce.Loss([][]float64{{0}}, []float64{1}), 1e-12)

	ce := CrossEntropy{}
	assert.InDelta(t, math.Log(2), ce.Loss([][]float64{{1, 1}}, []float64{0}), 1e-12)
	assert.Less(t, ce.Loss([][]float64{{0, 5}}, []float64{1}), ce.Loss([][]float64{{5, 0}}, []float64{1}))
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	p := NewParam("p", 1, 2)
	p.Data[0], p.Data[1] = 3, -2
	opt := NewAdam(0.1, 0)

	for i := 0; i < 500; i++ {
		p.ZeroGrad()
		// loss = |p|^2
		for j := range p.Data {
			p.Grad[j] = 2 * p.Data[j]
		}
		opt.Step([]*Param{p})
	}
	assert.Equal(t, 500, opt.Steps())
	assert.InDelta(t, 0.0, p.Data[0], 1e-2)
	assert.InDelta(t, 0.0, p.Data[1], 1e-2)
}

func TestSGDStep(t *testing.T) {
	p := NewParam("p", 1, 1)
	p.Data[0] = 1
	p.Grad[0] = 0.5
	(&SGD{LR: 0.1}).Step([]*Param{p})
	assert.InDelta(t, 0.95, p.Data[0], 1e-12)
}

func TestEmbeddingLookupAndBackward(t *testing.T) {
	e := NewEmbedding("e", 3, 2, rand.New(rand.NewSource(1)))
	require.NoError(t, e.Set(1, []float64{4, 5}))
	require.ErrorIs(t, e.Set(1, []float64{4}), ErrShapeMismatch)

	rows := e.Lookup([]int{1, 1})
	assert.Equal(t, []float64{4, 5}, rows[0])
	rows[0][0] = 100
	assert.Equal(t, 4.0, e.Weight.At(1, 0), "lookup must copy")

	e.Backward([]int{1, 1}, [][]float64{{1, 2}, {3, 4}})
	assert.Equal(t, []float64{4, 6}, e.Weight.GradRow(1))
}
