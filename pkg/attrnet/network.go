// Package attrnet loads attributed networks and prepares the inputs DEAL trains on:
// the node attribute matrix, the pairwise distance table and labeled node pairs.
package attrnet

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Network is an undirected, unweighted graph with named vertices
type Network struct {
	// Hash tables for vertex name mapping
	VertexHash map[string]int
	VertexKeys []string

	// Unique undirected edges, stored with the smaller id first
	Edges [][2]int

	adjacency map[[2]int]struct{}
	degree    []float64
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{
		VertexHash: make(map[string]int),
		VertexKeys: make([]string, 0),
		Edges:      make([][2]int, 0),
		adjacency:  make(map[[2]int]struct{}),
	}
}

// NumNodes returns the number of vertices
func (n *Network) NumNodes() int {
	return len(n.VertexKeys)
}

// Vertex gets or creates the id for a vertex name
func (n *Network) Vertex(name string) int {
	if vid, exists := n.VertexHash[name]; exists {
		return vid
	}
	vid := len(n.VertexKeys)
	n.VertexHash[name] = vid
	n.VertexKeys = append(n.VertexKeys, name)
	n.degree = append(n.degree, 0)
	return vid
}

// AddEdge records an undirected edge; self loops and duplicates are ignored
func (n *Network) AddEdge(a, b int) bool {
	if a == b {
		return false
	}
	key := edgeKey(a, b)
	if _, exists := n.adjacency[key]; exists {
		return false
	}
	n.adjacency[key] = struct{}{}
	n.Edges = append(n.Edges, key)
	n.degree[a]++
	n.degree[b]++
	return true
}

// HasEdge reports whether a and b are connected
func (n *Network) HasEdge(a, b int) bool {
	_, exists := n.adjacency[edgeKey(a, b)]
	return exists
}

// Degree returns the degree of vertex vid
func (n *Network) Degree(vid int) float64 {
	return n.degree[vid]
}

// Name returns the name of a vertex by id
func (n *Network) Name(vid int) string {
	if vid < 0 || vid >= len(n.VertexKeys) {
		return ""
	}
	return n.VertexKeys[vid]
}

// WithEdges returns a network sharing n's vertices but holding only the given edges
func (n *Network) WithEdges(edges [][2]int) *Network {
	sub := &Network{
		VertexHash: n.VertexHash,
		VertexKeys: n.VertexKeys,
		Edges:      make([][2]int, 0, len(edges)),
		adjacency:  make(map[[2]int]struct{}, len(edges)),
		degree:     make([]float64, len(n.VertexKeys)),
	}
	for _, e := range edges {
		sub.AddEdge(e[0], e[1])
	}
	return sub
}

// LoadEdgeList loads the network from an edge list file.
// Each line holds "source target [weight]"; weights are ignored.
func (n *Network) LoadEdgeList(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineCount := 0
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		lineCount++
		if len(parts) < 2 || strings.HasPrefix(parts[0], "#") {
			continue
		}
		n.AddEdge(n.Vertex(parts[0]), n.Vertex(parts[1]))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file %s at line %d: %w", filename, lineCount, err)
	}
	return nil
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
