package attrnet

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Attributes maps vertex ids to weighted attribute ids
type Attributes struct {
	AttrHash map[string]int
	AttrKeys []string

	values map[int]map[int]float64
}

// NewAttributes creates an empty attribute store
func NewAttributes() *Attributes {
	return &Attributes{
		AttrHash: make(map[string]int),
		AttrKeys: make([]string, 0),
		values:   make(map[int]map[int]float64),
	}
}

// NumAttrs returns the number of distinct attributes
func (a *Attributes) NumAttrs() int {
	return len(a.AttrKeys)
}

// Attr gets or creates the id for an attribute name
func (a *Attributes) Attr(name string) int {
	if aid, exists := a.AttrHash[name]; exists {
		return aid
	}
	aid := len(a.AttrKeys)
	a.AttrHash[name] = aid
	a.AttrKeys = append(a.AttrKeys, name)
	return aid
}

// Add sets the weight of attribute aid on vertex vid
func (a *Attributes) Add(vid, aid int, weight float64) {
	row, exists := a.values[vid]
	if !exists {
		row = make(map[int]float64)
		a.values[vid] = row
	}
	row[aid] = weight
}

// LoadAttributes reads "node attr[:weight] attr[:weight] ..." lines. Vertices
// that only appear here are added to the network as isolated nodes.
func LoadAttributes(filename string, net *Network) (*Attributes, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	attrs := NewAttributes()
	scanner := bufio.NewScanner(file)
	lineCount := 0
	for scanner.Scan() {
		lineCount++
		parts := strings.Fields(scanner.Text())
		if len(parts) < 1 || strings.HasPrefix(parts[0], "#") {
			continue
		}
		vid := net.Vertex(parts[0])
		for _, token := range parts[1:] {
			name, weight := token, 1.0
			if idx := strings.LastIndex(token, ":"); idx > 0 {
				w, err := strconv.ParseFloat(token[idx+1:], 64)
				if err != nil {
					return nil, fmt.Errorf("invalid attribute weight %q at line %d: %w", token, lineCount, err)
				}
				name, weight = token[:idx], w
			}
			attrs.Add(vid, attrs.Attr(name), weight)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", filename, err)
	}
	return attrs, nil
}

// Matrix builds the numNodes x NumAttrs indicator matrix
func (a *Attributes) Matrix(numNodes int) *mat.Dense {
	cols := a.NumAttrs()
	if cols == 0 {
		cols = 1
	}
	x := mat.NewDense(numNodes, cols, nil)
	for vid, row := range a.values {
		for aid, w := range row {
			x.Set(vid, aid, w)
		}
	}
	return x
}
