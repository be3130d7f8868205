package deal

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Pearson returns the Pearson correlation coefficient of x and y
func Pearson(x, y []float64) float64 {
	return stat.Correlation(x, y, nil)
}

// ROCAUC returns the area under the ROC curve of scores against 0/1 labels.
// It is NaN when only one class is present.
func ROCAUC(scores, labels []float64) float64 {
	y := append([]float64(nil), scores...)
	classes := make([]bool, len(labels))
	numPos := 0
	for i, l := range labels {
		classes[i] = l > 0.5
		if classes[i] {
			numPos++
		}
	}
	if numPos == 0 || numPos == len(labels) {
		return math.NaN()
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// AveragePrecision returns the mean of precision@k over the ranks k of the
// positives when pairs are ordered by descending score
func AveragePrecision(scores, labels []float64) float64 {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	hits := 0
	sum := 0.0
	for k, i := range order {
		if labels[i] > 0.5 {
			hits++
			sum += float64(hits) / float64(k+1)
		}
	}
	if hits == 0 {
		return math.NaN()
	}
	return sum / float64(hits)
}
