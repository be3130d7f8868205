package attrnet

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func pathNetwork(n int) *Network {
	net := NewNetwork()
	for i := 0; i < n; i++ {
		net.Vertex(string(rune('a' + i)))
	}
	for i := 0; i+1 < n; i++ {
		net.AddEdge(i, i+1)
	}
	return net
}

func TestLoadEdgeList(t *testing.T) {
	p := writeFile(t, "edges.txt", "# comment\nA B 1\nB C\nB A\nC C\n\nD\n")
	net := NewNetwork()
	require.NoError(t, net.LoadEdgeList(p))

	assert.Equal(t, 3, net.NumNodes())
	assert.Len(t, net.Edges, 2, "duplicates and self loops are dropped")
	assert.True(t, net.HasEdge(net.VertexHash["A"], net.VertexHash["B"]))
	assert.True(t, net.HasEdge(net.VertexHash["C"], net.VertexHash["B"]))
	assert.False(t, net.HasEdge(net.VertexHash["A"], net.VertexHash["C"]))
	assert.Equal(t, 2.0, net.Degree(net.VertexHash["B"]))
	assert.Equal(t, "C", net.Name(2))
	assert.Equal(t, "", net.Name(9))
}

func TestLoadEdgeListMissingFile(t *testing.T) {
	err := NewNetwork().LoadEdgeList(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestLoadAttributes(t *testing.T) {
	net := NewNetwork()
	net.AddEdge(net.Vertex("A"), net.Vertex("B"))

	p := writeFile(t, "attrs.txt", "A red blue\nB red:0.5\nZ green\n")
	attrs, err := LoadAttributes(p, net)
	require.NoError(t, err)

	assert.Equal(t, 3, attrs.NumAttrs())
	assert.Equal(t, 3, net.NumNodes(), "Z is added as an isolated vertex")

	x := attrs.Matrix(net.NumNodes())
	r, c := x.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 1.0, x.At(0, attrs.AttrHash["red"]))
	assert.Equal(t, 1.0, x.At(0, attrs.AttrHash["blue"]))
	assert.Equal(t, 0.5, x.At(1, attrs.AttrHash["red"]))
	assert.Equal(t, 1.0, x.At(2, attrs.AttrHash["green"]))
	assert.Equal(t, 0.0, x.At(1, attrs.AttrHash["blue"]))
}

func TestLoadAttributesBadWeight(t *testing.T) {
	p := writeFile(t, "attrs.txt", "A red:x\n")
	_, err := LoadAttributes(p, NewNetwork())
	require.Error(t, err)
}

func TestPrecomputeDists(t *testing.T) {
	net := pathNetwork(4)
	net.Vertex("isolated")

	dists := PrecomputeDists(net, 0)
	assert.Equal(t, 1.0, dists.At(0, 0))
	assert.InDelta(t, 0.5, dists.At(0, 1), 1e-12)
	assert.InDelta(t, 1.0/3.0, dists.At(0, 2), 1e-12)
	assert.InDelta(t, 0.25, dists.At(3, 0), 1e-12)
	assert.Equal(t, 0.0, dists.At(0, 4), "unreachable")

	cut := PrecomputeDists(net, 2)
	assert.InDelta(t, 1.0/3.0, cut.At(0, 2), 1e-12)
	assert.Equal(t, 0.0, cut.At(0, 3), "beyond cutoff")
}

func TestNewDataShapeMismatch(t *testing.T) {
	_, err := NewData(mat.NewDense(3, 2, nil), mat.NewDense(2, 2, nil))
	require.ErrorIs(t, err, ErrShapeMismatch)

	data, err := NewData(mat.NewDense(2, 5, nil), mat.NewDense(2, 2, []float64{0, 0.5, 0.5, 0}))
	require.NoError(t, err)
	assert.Equal(t, 2, data.NodeNum)
	assert.Equal(t, 5, data.AttrNum)

	b := Batch{Pairs: []Pair{{0, 1}, {1, 1}}, Labels: []float64{1, 0}}
	assert.Equal(t, []float64{0.5, 0}, b.Dists(data))
}

func TestAliasSamplingFollowsDistribution(t *testing.T) {
	table := NewAlias([]float64{1, 0, 3}, 1.0)
	require.Equal(t, 3, table.Len())
	rng := rand.New(rand.NewSource(3))
	counts := make([]int, 3)
	for i := 0; i < 40000; i++ {
		counts[table.Sample(rng)]++
	}
	assert.Equal(t, 0, counts[1])
	assert.InDelta(t, 0.75, float64(counts[2])/40000, 0.02)

	// power 0 flattens positive weights
	flat := NewAlias([]float64{1, 9}, 0)
	hits := 0
	for i := 0; i < 20000; i++ {
		hits += flat.Sample(rng)
	}
	assert.InDelta(t, 0.5, float64(hits)/20000, 0.02)

	assert.Equal(t, -1, NewAlias(nil, 1).Sample(rng))
}

func TestSplitEdges(t *testing.T) {
	net := pathNetwork(12)
	rng := rand.New(rand.NewSource(5))

	split, err := SplitEdges(net, SplitOptions{ValFrac: 0.2, TestFrac: 0.2, NegPerPos: 1}, rng)
	require.NoError(t, err)

	total := len(net.Edges)
	numVal := int(float64(total) * 0.2)
	assert.Len(t, split.TrainNet.Edges, total-2*numVal)

	for _, b := range []Batch{split.Train, split.Val, split.Test} {
		require.Equal(t, len(b.Pairs), len(b.Labels))
		for i, p := range b.Pairs {
			if b.Labels[i] == 1 {
				assert.True(t, net.HasEdge(p[0], p[1]))
			} else {
				assert.False(t, net.HasEdge(p[0], p[1]))
				assert.NotEqual(t, p[0], p[1])
			}
		}
	}

	// held out edges are absent from the training network
	for i, p := range split.Val.Pairs {
		if split.Val.Labels[i] == 1 {
			assert.False(t, split.TrainNet.HasEdge(p[0], p[1]))
		}
	}
}

func TestSplitEdgesRejectsBadFractions(t *testing.T) {
	_, err := SplitEdges(pathNetwork(4), SplitOptions{ValFrac: 0.6, TestFrac: 0.5}, rand.New(rand.NewSource(1)))
	require.ErrorIs(t, err, ErrEmptySplit)
}

func TestBatchSliceAndShuffle(t *testing.T) {
	b := Batch{Pairs: []Pair{{0, 1}, {1, 2}, {2, 3}}, Labels: []float64{1, 0, 1}}
	s := b.Slice(1, 3)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, Pair{1, 2}, s.Pairs[0])

	b.Shuffle(rand.New(rand.NewSource(2)))
	for i, p := range b.Pairs {
		// labels follow their pairs
		want := 1.0
		if p == (Pair{1, 2}) {
			want = 0
		}
		assert.Equal(t, want, b.Labels[i])
	}
}

func TestBuildData(t *testing.T) {
	net := pathNetwork(3)
	attrs := NewAttributes()
	attrs.Add(0, attrs.Attr("x"), 1)

	data, err := BuildData(net, attrs, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, data.NodeNum)
	assert.Equal(t, 1, data.AttrNum)
	assert.InDelta(t, 0.5, data.Dist(1, 2), 1e-12)
}
