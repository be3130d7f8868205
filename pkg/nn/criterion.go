package nn

import (
	"math"
)

// Criterion is a classification loss over score rows and labels
type Criterion interface {
	Name() string
	Loss(scores [][]float64, labels []float64) float64
}

// BCEWithLogits is the mean binary cross-entropy of sigmoid(scores[:,0])
type BCEWithLogits struct{}

// Name implements Criterion
func (BCEWithLogits) Name() string { return "bce_with_logits" }

// Loss implements Criterion using the stable max(x,0) - x*y + log(1+exp(-|x|)) form
func (BCEWithLogits) Loss(scores [][]float64, labels []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	total := 0.0
	for n, row := range scores {
		x := row[0]
		total += math.Max(x, 0) - x*labels[n] + math.Log1p(math.Exp(-math.Abs(x)))
	}
	return total / float64(len(scores))
}

// CrossEntropy is the mean categorical cross-entropy; labels hold class indices
type CrossEntropy struct{}

// Name implements Criterion
func (CrossEntropy) Name() string { return "cross_entropy" }

// Loss implements Criterion with a max-shifted log-sum-exp
func (CrossEntropy) Loss(scores [][]float64, labels []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	total := 0.0
	for n, row := range scores {
		maxV := row[0]
		for _, v := range row[1:] {
			maxV = math.Max(maxV, v)
		}
		sum := 0.0
		for _, v := range row {
			sum += math.Exp(v - maxV)
		}
		total += maxV + math.Log(sum) - row[int(labels[n])]
	}
	return total / float64(len(scores))
}
