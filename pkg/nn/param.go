// Package nn provides the small set of layers DEAL is built from. Every layer
// has a forward pass and a hand-derived backward pass; gradients are accumulated
// into Param.Grad and applied by an Optimizer.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrShapeMismatch is returned when a tensor does not have the width a layer expects.
var ErrShapeMismatch = errors.New("nn: shape mismatch")

// Param is a trainable matrix stored row-major
type Param struct {
	Name string
	Rows int
	Cols int
	Data []float64
	Grad []float64
}

// NewParam allocates a zeroed rows x cols parameter
func NewParam(name string, rows, cols int) *Param {
	return &Param{
		Name: name,
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
		Grad: make([]float64, rows*cols),
	}
}

// Row returns a view of row i
func (p *Param) Row(i int) []float64 {
	return p.Data[i*p.Cols : (i+1)*p.Cols]
}

// GradRow returns a view of the gradient of row i
func (p *Param) GradRow(i int) []float64 {
	return p.Grad[i*p.Cols : (i+1)*p.Cols]
}

// At returns element (i, j)
func (p *Param) At(i, j int) float64 {
	return p.Data[i*p.Cols+j]
}

// Set overwrites row i with v
func (p *Param) Set(i int, v []float64) error {
	if len(v) != p.Cols {
		return fmt.Errorf("%w: %s row has %d columns, got %d", ErrShapeMismatch, p.Name, p.Cols, len(v))
	}
	copy(p.Row(i), v)
	return nil
}

// ZeroGrad clears the accumulated gradient
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Uniform fills the parameter from U(-bound, bound)
func (p *Param) Uniform(bound float64, rng *rand.Rand) {
	for i := range p.Data {
		p.Data[i] = (rng.Float64()*2 - 1) * bound
	}
}

// Normal fills the parameter from N(0, 1)
func (p *Param) Normal(rng *rand.Rand) {
	for i := range p.Data {
		p.Data[i] = rng.NormFloat64()
	}
}

// XavierUniform fills the parameter with Glorot uniform values
func (p *Param) XavierUniform(rng *rand.Rand) {
	bound := math.Sqrt(6.0 / float64(p.Rows+p.Cols))
	p.Uniform(bound, rng)
}

// ZeroGrads clears the gradient of every parameter
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// Zeros allocates a rows x cols matrix
func Zeros(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// Concat joins a and b row by row
func Concat(a, b [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range a {
		row := make([]float64, 0, len(a[i])+len(b[i]))
		row = append(row, a[i]...)
		out[i] = append(row, b[i]...)
	}
	return out
}

// CheckWidth verifies every row of x has the given width
func CheckWidth(x [][]float64, width int) error {
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has width %d, want %d", ErrShapeMismatch, i, len(row), width)
		}
	}
	return nil
}
