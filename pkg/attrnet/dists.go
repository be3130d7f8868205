package attrnet

import (
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"
)

// Graph converts the network into a gonum undirected graph with every vertex present
func (n *Network) Graph() *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for vid := 0; vid < n.NumNodes(); vid++ {
		g.AddNode(simple.Node(vid))
	}
	for _, e := range n.Edges {
		g.SetEdge(g.NewEdge(simple.Node(e[0]), simple.Node(e[1])))
	}
	return g
}

// PrecomputeDists builds the distance weight table 1/(d+1), where d is the
// shortest-path hop count between two vertices. Pairs that are unreachable,
// or farther than cutoff hops when cutoff > 0, get weight 0.
func PrecomputeDists(n *Network, cutoff int) *mat.Dense {
	num := n.NumNodes()
	dists := mat.NewDense(num, num, nil)
	if num == 0 {
		return dists
	}

	g := n.Graph()
	for u := 0; u < num; u++ {
		shortest := path.DijkstraFrom(simple.Node(u), g)
		for v := 0; v < num; v++ {
			d := shortest.WeightTo(int64(v))
			if math.IsInf(d, 1) {
				continue
			}
			if cutoff > 0 && d > float64(cutoff) {
				continue
			}
			dists.Set(u, v, 1.0/(d+1.0))
		}
	}
	return dists
}
