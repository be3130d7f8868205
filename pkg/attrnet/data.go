package attrnet

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when the attribute and distance tables disagree
var ErrShapeMismatch = errors.New("attrnet: shape mismatch")

// Data is the read-only attributed graph a model is trained against
type Data struct {
	X     *mat.Dense // [NodeNum x AttrNum] attribute indicators
	Dists *mat.Dense // [NodeNum x NodeNum] distance weights

	NodeNum int
	AttrNum int
}

// NewData validates and wraps the attribute matrix and distance table
func NewData(x, dists *mat.Dense) (*Data, error) {
	nodes, attrs := x.Dims()
	dr, dc := dists.Dims()
	if dr != nodes || dc != nodes {
		return nil, fmt.Errorf("%w: %d nodes in attributes, distance table is %dx%d", ErrShapeMismatch, nodes, dr, dc)
	}
	return &Data{X: x, Dists: dists, NodeNum: nodes, AttrNum: attrs}, nil
}

// Dist returns the distance weight between a and b
func (d *Data) Dist(a, b int) float64 {
	return d.Dists.At(a, b)
}

// Pair is an ordered (first, second) node pair
type Pair [2]int

// Batch is a set of node pairs with their 0/1 edge labels
type Batch struct {
	Pairs  []Pair
	Labels []float64
}

// Len returns the number of pairs
func (b Batch) Len() int {
	return len(b.Pairs)
}

// Slice returns pairs [start, end)
func (b Batch) Slice(start, end int) Batch {
	return Batch{Pairs: b.Pairs[start:end], Labels: b.Labels[start:end]}
}

// Dists looks up the distance weight of every pair
func (b Batch) Dists(data *Data) []float64 {
	out := make([]float64, len(b.Pairs))
	for i, p := range b.Pairs {
		out[i] = data.Dist(p[0], p[1])
	}
	return out
}
