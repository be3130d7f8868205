package nn

import (
	"math"
	"math/rand"
)

// RReLU is the randomized leaky rectifier. Outside of training it uses the
// fixed slope (Lower+Upper)/2 for negative inputs, which is also how the
// functional form behaves unless a training flag is passed explicitly.
type RReLU struct {
	Lower float64
	Upper float64
}

// DefaultRReLU uses the standard bounds 1/8 and 1/3
var DefaultRReLU = RReLU{Lower: 1.0 / 8.0, Upper: 1.0 / 3.0}

// Slope returns the negative-side slope
func (r RReLU) Slope() float64 {
	return (r.Lower + r.Upper) / 2
}

// Apply returns the rectified copy of x
func (r RReLU) Apply(x [][]float64) [][]float64 {
	a := r.Slope()
	out := make([][]float64, len(x))
	for n, row := range x {
		out[n] = make([]float64, len(row))
		for i, v := range row {
			if v < 0 {
				out[n][i] = a * v
			} else {
				out[n][i] = v
			}
		}
	}
	return out
}

// Backward scales gradOut by the derivative at the pre-activation values
func (r RReLU) Backward(pre, gradOut [][]float64) [][]float64 {
	a := r.Slope()
	grad := make([][]float64, len(gradOut))
	for n, row := range gradOut {
		grad[n] = make([]float64, len(row))
		for i, g := range row {
			if pre[n][i] < 0 {
				grad[n][i] = a * g
			} else {
				grad[n][i] = g
			}
		}
	}
	return grad
}

// Dropout zeroes entries with probability P and rescales the rest by 1/(1-P)
type Dropout struct {
	P float64
}

// Apply returns the dropped-out copy of x and the scale mask that was used.
// A nil mask means the input passed through unchanged.
func (d Dropout) Apply(x [][]float64, training bool, rng *rand.Rand) ([][]float64, [][]float64) {
	if !training || d.P <= 0 {
		return x, nil
	}
	keep := 1.0 / (1.0 - d.P)
	out := make([][]float64, len(x))
	mask := make([][]float64, len(x))
	for n, row := range x {
		out[n] = make([]float64, len(row))
		mask[n] = make([]float64, len(row))
		for i, v := range row {
			if rng.Float64() >= d.P {
				mask[n][i] = keep
				out[n][i] = v * keep
			}
		}
	}
	return out, mask
}

// Softplus returns log(1 + exp(x)) without any overflow guard
func Softplus(x float64) float64 {
	return math.Log(1 + math.Exp(x))
}

// Sigmoid is the logistic function
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
