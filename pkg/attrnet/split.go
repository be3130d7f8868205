package attrnet

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrEmptySplit is returned when a split fraction leaves no training edges
var ErrEmptySplit = errors.New("attrnet: split leaves no training edges")

// maxNegativeTries bounds rejection sampling for dense graphs
const maxNegativeTries = 100

// Split holds labeled pairs for training, validation and testing. TrainNet
// holds only the training edges; distances must be computed from it so held
// out edges do not leak into the loss weights.
type Split struct {
	TrainNet *Network
	Train    Batch
	Val      Batch
	Test     Batch
}

// SplitOptions controls edge partitioning and negative sampling
type SplitOptions struct {
	ValFrac     float64
	TestFrac    float64
	NegPerPos   int
	SamplePower float64
}

// SplitEdges shuffles the edges of n into train/val/test positives and pairs
// each positive with NegPerPos sampled non-edges sharing its first endpoint.
func SplitEdges(n *Network, opts SplitOptions, rng *rand.Rand) (*Split, error) {
	if opts.ValFrac < 0 || opts.TestFrac < 0 || opts.ValFrac+opts.TestFrac >= 1 {
		return nil, fmt.Errorf("%w: val %.3f test %.3f", ErrEmptySplit, opts.ValFrac, opts.TestFrac)
	}

	edges := append([][2]int(nil), n.Edges...)
	rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })

	numVal := int(float64(len(edges)) * opts.ValFrac)
	numTest := int(float64(len(edges)) * opts.TestFrac)
	numTrain := len(edges) - numVal - numTest
	if numTrain <= 0 {
		return nil, fmt.Errorf("%w: %d edges", ErrEmptySplit, len(edges))
	}

	trainEdges := edges[:numTrain]
	valEdges := edges[numTrain : numTrain+numVal]
	testEdges := edges[numTrain+numVal:]

	trainNet := n.WithEdges(trainEdges)
	sampler := NewNegativeSampler(trainNet, opts.SamplePower)

	return &Split{
		TrainNet: trainNet,
		Train:    Samples(n, trainEdges, opts.NegPerPos, sampler, rng),
		Val:      Samples(n, valEdges, opts.NegPerPos, sampler, rng),
		Test:     Samples(n, testEdges, opts.NegPerPos, sampler, rng),
	}, nil
}

// Samples labels every positive edge 1 and appends negPerPos negatives labeled 0.
// A negative is a pair (u, v) with v drawn from the sampler and not adjacent to u in n.
func Samples(n *Network, positives [][2]int, negPerPos int, sampler *NegativeSampler, rng *rand.Rand) Batch {
	batch := Batch{
		Pairs:  make([]Pair, 0, len(positives)*(1+negPerPos)),
		Labels: make([]float64, 0, len(positives)*(1+negPerPos)),
	}
	for _, e := range positives {
		batch.Pairs = append(batch.Pairs, Pair{e[0], e[1]})
		batch.Labels = append(batch.Labels, 1)

		for k := 0; k < negPerPos; k++ {
			for try := 0; try < maxNegativeTries; try++ {
				v := sampler.Sample(rng)
				if v < 0 || v == e[0] || n.HasEdge(e[0], v) {
					continue
				}
				batch.Pairs = append(batch.Pairs, Pair{e[0], v})
				batch.Labels = append(batch.Labels, 0)
				break
			}
		}
	}
	return batch
}

// Shuffle permutes pairs and labels together
func (b Batch) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(b.Pairs), func(i, j int) {
		b.Pairs[i], b.Pairs[j] = b.Pairs[j], b.Pairs[i]
		b.Labels[i], b.Labels[j] = b.Labels[j], b.Labels[i]
	})
}

// BuildData assembles the model input from the attribute store and the
// distance table of net
func BuildData(net *Network, attrs *Attributes, cutoff int) (*Data, error) {
	x := attrs.Matrix(net.NumNodes())
	return NewData(x, PrecomputeDists(net, cutoff))
}
