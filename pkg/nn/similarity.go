package nn

import (
	"math"

	"github.com/viterin/vek"
)

// SimilarityEps matches the epsilon used by cosine similarity and pairwise distance
const SimilarityEps = 1e-6

// Dot returns x·y
func Dot(x, y []float64) float64 {
	return vek.Dot(x, y)
}

// DotGrad returns d(x·y)/dx and d(x·y)/dy scaled by g
func DotGrad(x, y []float64, g float64) ([]float64, []float64) {
	gx := append([]float64(nil), y...)
	gy := append([]float64(nil), x...)
	vek.MulNumber_Inplace(gx, g)
	vek.MulNumber_Inplace(gy, g)
	return gx, gy
}

// Cosine returns x·y / max(|x||y|, eps)
func Cosine(x, y []float64) float64 {
	return vek.Dot(x, y) / math.Max(vek.Norm(x)*vek.Norm(y), SimilarityEps)
}

// CosineGrad returns the gradient of Cosine(x, y) scaled by g
func CosineGrad(x, y []float64, g float64) ([]float64, []float64) {
	nx := vek.Norm(x)
	ny := vek.Norm(y)
	dot := vek.Dot(x, y)
	gx := make([]float64, len(x))
	gy := make([]float64, len(y))

	den := nx * ny
	if den <= SimilarityEps {
		// clamped denominator is a constant
		for d := range x {
			gx[d] = g * y[d] / SimilarityEps
			gy[d] = g * x[d] / SimilarityEps
		}
		return gx, gy
	}

	c := dot / den
	for d := range x {
		gx[d] = g * (y[d]/den - c*x[d]/(nx*nx))
		gy[d] = g * (x[d]/den - c*y[d]/(ny*ny))
	}
	return gx, gy
}

// PairwiseDistance returns |x - y + eps|_2
func PairwiseDistance(x, y []float64) float64 {
	diff := vek.Sub(x, y)
	vek.AddNumber_Inplace(diff, SimilarityEps)
	return vek.Norm(diff)
}

// PairwiseDistanceGrad returns the gradient of PairwiseDistance(x, y) scaled by g
func PairwiseDistanceGrad(x, y []float64, g float64) ([]float64, []float64) {
	diff := vek.Sub(x, y)
	vek.AddNumber_Inplace(diff, SimilarityEps)
	dist := vek.Norm(diff)
	gx := make([]float64, len(x))
	gy := make([]float64, len(y))
	if dist == 0 {
		return gx, gy
	}
	for d := range diff {
		gx[d] = g * diff[d] / dist
		gy[d] = -gx[d]
	}
	return gx, gy
}
