package deal

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/deal/pkg/attrnet"
	"github.com/cnclabs/deal/pkg/nn"
)

// Encoder maps the attribute matrix of a graph to one embedding per node
type Encoder interface {
	// Encode returns the [NodeNum x Dim] embedding matrix
	Encode(data *attrnet.Data) (*mat.Dense, error)
	// Backward accumulates parameter gradients given grad rows for nodes
	Backward(data *attrnet.Data, nodes []int, grad [][]float64)
	Params() []*nn.Param
	Dim() int
}

// EncoderFactory builds an attribute encoder. layerNum and dropout are
// passed through for deeper encoders; Emb ignores them.
type EncoderFactory func(attrNum, dim, layerNum int, dropout float64, rng *rand.Rand) Encoder

// Emb is the bag-of-attributes encoder: E = X * A, where A holds one learned
// vector per attribute
type Emb struct {
	attrNum int
	table   *nn.Embedding // [attrNum x dim]
}

// NewEmb is the EncoderFactory for Emb
func NewEmb(attrNum, dim, layerNum int, dropout float64, rng *rand.Rand) Encoder {
	return &Emb{
		attrNum: attrNum,
		table:   nn.NewEmbedding("attr_emb", attrNum, dim, rng),
	}
}

// Dim implements Encoder
func (e *Emb) Dim() int {
	return e.table.Dim
}

// Params implements Encoder
func (e *Emb) Params() []*nn.Param {
	return e.table.Params()
}

// Table returns the attribute embedding table
func (e *Emb) Table() *nn.Embedding {
	return e.table
}

// Encode implements Encoder
func (e *Emb) Encode(data *attrnet.Data) (*mat.Dense, error) {
	if data.AttrNum != e.attrNum {
		return nil, fmt.Errorf("%w: data has %d attributes, encoder %d", ErrShapeMismatch, data.AttrNum, e.attrNum)
	}
	// the table is row-major, so it can back a Dense directly
	a := mat.NewDense(e.attrNum, e.table.Dim, e.table.Weight.Data)
	var out mat.Dense
	out.Mul(data.X, a)
	return &out, nil
}

// Backward implements Encoder: dA += X[nodes]^T * grad
func (e *Emb) Backward(data *attrnet.Data, nodes []int, grad [][]float64) {
	for n, u := range nodes {
		row := data.X.RawRowView(u)
		for k, x := range row {
			if x == 0 {
				continue
			}
			g := e.table.Weight.GradRow(k)
			for d := range g {
				g[d] += x * grad[n][d]
			}
		}
	}
}
