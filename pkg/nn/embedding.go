package nn

import (
	"math/rand"
)

// Embedding is a lookup table of dense vectors
type Embedding struct {
	Num    int
	Dim    int
	Weight *Param // [Num x Dim]
}

// NewEmbedding creates a table initialized from N(0, 1)
func NewEmbedding(name string, num, dim int, rng *rand.Rand) *Embedding {
	e := &Embedding{
		Num:    num,
		Dim:    dim,
		Weight: NewParam(name+".weight", num, dim),
	}
	e.Weight.Normal(rng)
	return e
}

// Lookup copies the rows for the given indices
func (e *Embedding) Lookup(idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for n, i := range idx {
		out[n] = append([]float64(nil), e.Weight.Row(i)...)
	}
	return out
}

// Backward scatters grad rows back into the table gradient
func (e *Embedding) Backward(idx []int, grad [][]float64) {
	for n, i := range idx {
		g := e.Weight.GradRow(i)
		for d := 0; d < e.Dim; d++ {
			g[d] += grad[n][d]
		}
	}
}

// Set overwrites the vector of entry i
func (e *Embedding) Set(i int, v []float64) error {
	return e.Weight.Set(i, v)
}

// Params returns the table
func (e *Embedding) Params() []*Param {
	return []*Param{e.Weight}
}
