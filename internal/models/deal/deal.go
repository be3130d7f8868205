// Package deal implements DEAL, a link prediction model for attributed networks.
//
// DEAL scores a node pair along three paths: identity embeddings against each
// other (node), attribute embeddings against each other (attr), and attribute
// embeddings against identity embeddings (inter). Training combines a ranking
// loss over the node and attr paths with a term aligning the two embedding
// spaces; inference takes a weighted sum of all three paths.
package deal

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/deal/pkg/attrnet"
	"github.com/cnclabs/deal/pkg/nn"
)

// ErrIndexOutOfRange is returned for a node index outside [0, nodeNum)
var ErrIndexOutOfRange = errors.New("deal: node index out of range")

// ErrInvalidOption is returned for a construction option DEAL cannot honor
var ErrInvalidOption = errors.New("deal: invalid option")

// Options are the model hyperparameters
type Options struct {
	// Device must be "" or "cpu"
	Device string
	// LayerNum is handed to the attribute encoder
	LayerNum int
	Mode     Mode
	BCEMode  bool
	// Gamma is the ranking loss steepness
	Gamma float64
	// StrongA is reserved; no code path reads it
	StrongA bool
	// NumClasses > 0 builds the node classification head. It is not part of
	// any forward path.
	NumClasses int
	DropoutP   float64
	Seed       int64
}

// DefaultOptions returns the usual DEAL settings
func DefaultOptions() Options {
	return Options{
		Device:   "cpu",
		LayerNum: 2,
		Mode:     ModeCos,
		BCEMode:  true,
		Gamma:    2.0,
		DropoutP: 0.3,
		Seed:     1,
	}
}

type settings struct {
	encoder EncoderFactory
	head    HeadFactory
}

// Option swaps one of the pluggable components
type Option func(*settings)

// WithEncoder replaces the attribute encoder
func WithEncoder(f EncoderFactory) Option {
	return func(s *settings) { s.encoder = f }
}

// WithHead replaces the scoring head used by all three paths
func WithHead(f HeadFactory) Option {
	return func(s *settings) { s.head = f }
}

// DEAL is the link prediction model
type DEAL struct {
	embDim  int
	attrNum int
	nodeNum int
	opts    Options

	nodeEmb *nn.Embedding
	attrEmb Encoder

	nodeLayer  Head
	attrLayer  Head
	interLayer Head

	attrAttention *AttentionLayer
	nodeAttention *AttentionLayer

	dropout    nn.Dropout
	criterion  nn.Criterion
	classifier *nn.Linear

	rng      *rand.Rand
	training bool
	losses   [3]float64
}

// New builds a DEAL model for nodeNum nodes carrying attrNum attributes
func New(embDim, attrNum, nodeNum int, opts Options, options ...Option) (*DEAL, error) {
	if embDim <= 0 || attrNum <= 0 || nodeNum <= 0 {
		return nil, fmt.Errorf("%w: emb_dim %d, attr_num %d, node_num %d must be positive", ErrInvalidOption, embDim, attrNum, nodeNum)
	}
	if opts.Device != "" && opts.Device != "cpu" {
		return nil, fmt.Errorf("%w: unsupported device %q", ErrInvalidOption, opts.Device)
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, opts.Mode)
	}
	if opts.Gamma <= 0 {
		return nil, fmt.Errorf("%w: gamma %.4f must be positive", ErrInvalidOption, opts.Gamma)
	}
	if opts.DropoutP < 0 || opts.DropoutP >= 1 {
		return nil, fmt.Errorf("%w: dropout %.4f outside [0, 1)", ErrInvalidOption, opts.DropoutP)
	}

	s := settings{encoder: NewEmb, head: NewHiddenHead}
	for _, o := range options {
		o(&s)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	m := &DEAL{
		embDim:   embDim,
		attrNum:  attrNum,
		nodeNum:  nodeNum,
		opts:     opts,
		dropout:  nn.Dropout{P: opts.DropoutP},
		rng:      rng,
		training: true,
	}

	if opts.BCEMode {
		m.criterion = nn.BCEWithLogits{}
	} else {
		m.criterion = nn.CrossEntropy{}
	}
	if opts.NumClasses > 0 {
		m.classifier = nn.NewLinear("nc_linear", embDim, opts.NumClasses, rng)
		m.classifier.W.XavierUniform(rng)
	}

	m.nodeEmb = nn.NewEmbedding("node_emb", nodeNum, embDim, rng)
	m.attrEmb = s.encoder(attrNum, embDim, opts.LayerNum, opts.DropoutP, rng)
	if m.attrEmb.Dim() != embDim {
		return nil, fmt.Errorf("%w: encoder dim %d, emb_dim %d", ErrShapeMismatch, m.attrEmb.Dim(), embDim)
	}

	var err error
	if m.nodeLayer, err = s.head(embDim, opts.BCEMode, opts.Mode, rng); err != nil {
		return nil, fmt.Errorf("node layer: %w", err)
	}
	if m.attrLayer, err = s.head(embDim, opts.BCEMode, opts.Mode, rng); err != nil {
		return nil, fmt.Errorf("attr layer: %w", err)
	}
	if m.interLayer, err = s.head(embDim, opts.BCEMode, opts.Mode, rng); err != nil {
		return nil, fmt.Errorf("inter layer: %w", err)
	}

	m.attrAttention = NewAttentionLayer("attr_attention", embDim, rng)
	m.nodeAttention = NewAttentionLayer("node_attention", embDim, rng)
	return m, nil
}

// Train enables dropout
func (m *DEAL) Train() { m.training = true }

// Eval disables dropout
func (m *DEAL) Eval() { m.training = false }

// Training reports whether dropout is active
func (m *DEAL) Training() bool { return m.training }

// Options returns the construction options
func (m *DEAL) Options() Options { return m.opts }

// EmbDim returns the embedding width shared by every path
func (m *DEAL) EmbDim() int { return m.embDim }

// NodeNum returns the number of nodes
func (m *DEAL) NodeNum() int { return m.nodeNum }

// NodeEmbedding returns the identity embedding table
func (m *DEAL) NodeEmbedding() *nn.Embedding { return m.nodeEmb }

// Encoder returns the attribute encoder
func (m *DEAL) Encoder() Encoder { return m.attrEmb }

// NodeLayer returns the head scoring the node path
func (m *DEAL) NodeLayer() Head { return m.nodeLayer }

// AttrLayer returns the head scoring the attr path
func (m *DEAL) AttrLayer() Head { return m.attrLayer }

// InterLayer returns the head scoring the inter path
func (m *DEAL) InterLayer() Head { return m.interLayer }

// Criterion returns the classification criterion matching the BCE setting.
// The default loss does not use it.
func (m *DEAL) Criterion() nn.Criterion { return m.criterion }

// Classifier returns the reserved node classification head, or nil
func (m *DEAL) Classifier() *nn.Linear { return m.classifier }

// Losses returns the weighted node, attr and alignment terms of the last loss call
func (m *DEAL) Losses() [3]float64 { return m.losses }

// Params returns the parameters the default loss trains
func (m *DEAL) Params() []*nn.Param {
	params := append([]*nn.Param{}, m.nodeEmb.Params()...)
	params = append(params, m.attrEmb.Params()...)
	params = append(params, m.nodeLayer.Params()...)
	params = append(params, m.attrLayer.Params()...)
	return params
}

// AllParams returns every parameter, including the inter head, the attention
// layers and the classifier, none of which the default loss reaches
func (m *DEAL) AllParams() []*nn.Param {
	params := m.Params()
	params = append(params, m.interLayer.Params()...)
	params = append(params, m.attrAttention.Params()...)
	params = append(params, m.nodeAttention.Params()...)
	if m.classifier != nil {
		params = append(params, m.classifier.Params()...)
	}
	return params
}

func (m *DEAL) checkPairs(pairs []attrnet.Pair) error {
	for i, p := range pairs {
		for _, v := range p {
			if v < 0 || v >= m.nodeNum {
				return fmt.Errorf("%w: pair %d has node %d, node_num %d", ErrIndexOutOfRange, i, v, m.nodeNum)
			}
		}
	}
	return nil
}

func (m *DEAL) checkData(data *attrnet.Data) error {
	if data.NodeNum != m.nodeNum || data.AttrNum != m.attrNum {
		return fmt.Errorf("%w: data is %dx%d, model expects %dx%d", ErrShapeMismatch, data.NodeNum, data.AttrNum, m.nodeNum, m.attrNum)
	}
	return nil
}

func endpoints(pairs []attrnet.Pair) ([]int, []int) {
	firsts := make([]int, len(pairs))
	seconds := make([]int, len(pairs))
	for i, p := range pairs {
		firsts[i] = p[0]
		seconds[i] = p[1]
	}
	return firsts, seconds
}

// uniqueNodes returns the sorted distinct values of idx and each value's position
func uniqueNodes(idx ...[]int) ([]int, map[int]int) {
	pos := make(map[int]int)
	var nodes []int
	for _, list := range idx {
		for _, v := range list {
			if _, seen := pos[v]; !seen {
				pos[v] = 0
				nodes = append(nodes, v)
			}
		}
	}
	sort.Ints(nodes)
	for i, v := range nodes {
		pos[v] = i
	}
	return nodes, pos
}

func gatherRows(e *mat.Dense, nodes []int) [][]float64 {
	rows := make([][]float64, len(nodes))
	for i, u := range nodes {
		rows[i] = mat.Row(nil, u, e)
	}
	return rows
}

func pick(rows [][]float64, pos map[int]int, nodes []int) [][]float64 {
	out := make([][]float64, len(nodes))
	for i, u := range nodes {
		out[i] = rows[pos[u]]
	}
	return out
}

// attrBatch holds the attribute embeddings of the distinct nodes of a batch
type attrBatch struct {
	nodes   []int
	pos     map[int]int
	clean   [][]float64
	dropped [][]float64
	mask    [][]float64 // nil when no dropout was applied
}

func (b *attrBatch) rows(nodes []int) [][]float64 {
	return pick(b.dropped, b.pos, nodes)
}

// attrRows encodes the attributes of the given nodes. Dropout is drawn once
// per distinct node so repeated nodes share a mask.
func (m *DEAL) attrRows(data *attrnet.Data, drop bool, idx ...[]int) (*attrBatch, error) {
	e, err := m.attrEmb.Encode(data)
	if err != nil {
		return nil, err
	}
	b := &attrBatch{}
	b.nodes, b.pos = uniqueNodes(idx...)
	b.clean = gatherRows(e, b.nodes)
	b.dropped = b.clean
	if drop {
		b.dropped, b.mask = m.dropout.Apply(b.clean, m.training, m.rng)
	}
	return b, nil
}

// NodeForward scores pairs by their identity embeddings
func (m *DEAL) NodeForward(pairs []attrnet.Pair) ([][]float64, error) {
	if err := m.checkPairs(pairs); err != nil {
		return nil, err
	}
	firsts, seconds := endpoints(pairs)
	return m.nodeLayer.Forward(m.nodeEmb.Lookup(firsts), m.nodeEmb.Lookup(seconds))
}

// AttrForward scores pairs by their attribute embeddings, with dropout while training
func (m *DEAL) AttrForward(pairs []attrnet.Pair, data *attrnet.Data) ([][]float64, error) {
	if err := m.checkPairs(pairs); err != nil {
		return nil, err
	}
	if err := m.checkData(data); err != nil {
		return nil, err
	}
	firsts, seconds := endpoints(pairs)
	attrs, err := m.attrRows(data, true, firsts, seconds)
	if err != nil {
		return nil, err
	}
	return m.attrLayer.Forward(attrs.rows(firsts), attrs.rows(seconds))
}

// InterForward pools the first endpoints' attribute embeddings and the second
// endpoints' identity embeddings with their attention layers, then scores the
// two attended vectors. The score is repeated for every pair in the batch.
func (m *DEAL) InterForward(pairs []attrnet.Pair, data *attrnet.Data) ([][]float64, error) {
	if err := m.checkPairs(pairs); err != nil {
		return nil, err
	}
	if err := m.checkData(data); err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, ErrEmptyBatch
	}
	firsts, seconds := endpoints(pairs)
	attrs, err := m.attrRows(data, true, firsts)
	if err != nil {
		return nil, err
	}

	firstAttended, err := m.attrAttention.Forward(attrs.rows(firsts))
	if err != nil {
		return nil, fmt.Errorf("attr attention: %w", err)
	}
	secondAttended, err := m.nodeAttention.Forward(m.nodeEmb.Lookup(seconds))
	if err != nil {
		return nil, fmt.Errorf("node attention: %w", err)
	}

	f := make([][]float64, len(pairs))
	s := make([][]float64, len(pairs))
	for i := range pairs {
		f[i] = firstAttended
		s[i] = secondAttended
	}
	return m.interLayer.Forward(f, s)
}

// Evaluate returns lambdas[0]*node + lambdas[1]*attr + lambdas[2]*inter scores.
// No dropout is applied, and the inter term compares the first endpoint's
// attribute embedding with the second endpoint's identity embedding directly.
func (m *DEAL) Evaluate(pairs []attrnet.Pair, data *attrnet.Data, lambdas [3]float64) ([][]float64, error) {
	if err := m.checkPairs(pairs); err != nil {
		return nil, err
	}
	if err := m.checkData(data); err != nil {
		return nil, err
	}
	firsts, seconds := endpoints(pairs)
	nodeFirst := m.nodeEmb.Lookup(firsts)
	nodeSecond := m.nodeEmb.Lookup(seconds)

	nodeRes, err := m.nodeLayer.Forward(nodeFirst, nodeSecond)
	if err != nil {
		return nil, fmt.Errorf("node layer: %w", err)
	}

	attrs, err := m.attrRows(data, false, firsts, seconds)
	if err != nil {
		return nil, err
	}
	attrFirst := attrs.rows(firsts)
	attrRes, err := m.attrLayer.Forward(attrFirst, attrs.rows(seconds))
	if err != nil {
		return nil, fmt.Errorf("attr layer: %w", err)
	}
	interRes, err := m.interLayer.Forward(attrFirst, nodeSecond)
	if err != nil {
		return nil, fmt.Errorf("inter layer: %w", err)
	}

	res := make([][]float64, len(pairs))
	for n := range res {
		res[n] = make([]float64, len(nodeRes[n]))
		for c := range res[n] {
			res[n][c] = nodeRes[n][c]*lambdas[0] + attrRes[n][c]*lambdas[1] + interRes[n][c]*lambdas[2]
		}
	}
	return res, nil
}

// RankScores reduces head output to one value per pair: the single column in
// BCE mode, the edge class column otherwise
func RankScores(scores [][]float64) []float64 {
	out := make([]float64, len(scores))
	for n, row := range scores {
		out[n] = row[len(row)-1]
	}
	return out
}
