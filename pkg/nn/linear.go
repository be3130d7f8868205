package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// Linear is a fully-connected layer y = W x + b
type Linear struct {
	In  int
	Out int

	W *Param // [Out x In]
	B *Param // [1 x Out]
}

// NewLinear creates a linear layer with the usual U(-1/sqrt(in), 1/sqrt(in)) init
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		In:  in,
		Out: out,
		W:   NewParam(name+".weight", out, in),
		B:   NewParam(name+".bias", 1, out),
	}
	bound := 1.0 / math.Sqrt(float64(in))
	l.W.Uniform(bound, rng)
	l.B.Uniform(bound, rng)
	return l
}

// Params returns the weight and bias
func (l *Linear) Params() []*Param {
	return []*Param{l.W, l.B}
}

// Forward applies the layer to every row of x
func (l *Linear) Forward(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for n, row := range x {
		out[n] = l.forwardRow(row)
	}
	return out
}

func (l *Linear) forwardRow(x []float64) []float64 {
	y := make([]float64, l.Out)
	for o := 0; o < l.Out; o++ {
		sum := l.B.Data[o]
		w := l.W.Row(o)
		for i := 0; i < l.In; i++ {
			sum += w[i] * x[i]
		}
		y[o] = sum
	}
	return y
}

// Backward accumulates dW and db from the layer input x and gradOut,
// and returns the gradient with respect to x
func (l *Linear) Backward(x, gradOut [][]float64) [][]float64 {
	gradIn := Zeros(len(x), l.In)
	for n := range x {
		for o := 0; o < l.Out; o++ {
			g := gradOut[n][o]
			if g == 0 {
				continue
			}
			w := l.W.Row(o)
			wg := l.W.GradRow(o)
			for i := 0; i < l.In; i++ {
				wg[i] += g * x[n][i]
				gradIn[n][i] += g * w[i]
			}
			l.B.Grad[o] += g
		}
	}
	return gradIn
}

// Check verifies that x has the layer's input width
func (l *Linear) Check(x [][]float64) error {
	if err := CheckWidth(x, l.In); err != nil {
		return fmt.Errorf("linear %s: %w", l.W.Name, err)
	}
	return nil
}
