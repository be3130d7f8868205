package attrnet

import (
	"math"
	"math/rand"
)

// Alias is a Walker alias table: bucket i keeps itself with probability
// prob[i] and otherwise yields alias[i]
type Alias struct {
	prob  []float64
	alias []int
}

// NewAlias builds an alias table over weights^power. Non-positive weights are
// never drawn; if no weight is positive every bucket is equally likely.
func NewAlias(weights []float64, power float64) *Alias {
	n := len(weights)
	a := &Alias{prob: make([]float64, n), alias: make([]int, n)}
	if n == 0 {
		return a
	}

	scaled := make([]float64, n)
	total := 0.0
	for i, w := range weights {
		if w > 0 {
			scaled[i] = math.Pow(w, power)
			total += scaled[i]
		}
	}
	if total == 0 {
		for i := range scaled {
			scaled[i] = 1
		}
		total = float64(n)
	}

	var under, over []int
	for i := range scaled {
		scaled[i] *= float64(n) / total
		if scaled[i] < 1 {
			under = append(under, i)
		} else {
			over = append(over, i)
		}
	}

	for len(under) > 0 && len(over) > 0 {
		s, l := under[len(under)-1], over[len(over)-1]
		under, over = under[:len(under)-1], over[:len(over)-1]

		a.prob[s], a.alias[s] = scaled[s], l
		scaled[l] -= 1 - scaled[s]
		if scaled[l] < 1 {
			under = append(under, l)
		} else {
			over = append(over, l)
		}
	}
	// leftovers are full buckets up to rounding
	for _, i := range append(under, over...) {
		a.prob[i], a.alias[i] = 1, i
	}
	return a
}

// Len returns the number of buckets
func (a *Alias) Len() int {
	return len(a.prob)
}

// Sample draws one index, or -1 from an empty table
func (a *Alias) Sample(rng *rand.Rand) int {
	if len(a.prob) == 0 {
		return -1
	}
	i := rng.Intn(len(a.prob))
	if rng.Float64() < a.prob[i] {
		return i
	}
	return a.alias[i]
}

// NegativeSampler draws vertices proportionally to degree^power.
// Power 0 gives uniform sampling over vertices with at least one edge.
type NegativeSampler struct {
	table *Alias
}

// NewNegativeSampler builds a sampler over the degrees of n
func NewNegativeSampler(n *Network, power float64) *NegativeSampler {
	degrees := make([]float64, n.NumNodes())
	for vid := range degrees {
		degrees[vid] = n.Degree(vid)
	}
	return &NegativeSampler{table: NewAlias(degrees, power)}
}

// Sample returns a vertex id
func (s *NegativeSampler) Sample(rng *rand.Rand) int {
	return s.table.Sample(rng)
}
