package nn

import (
	"math"
)

// Optimizer applies accumulated gradients to parameters
type Optimizer interface {
	Step(params []*Param)
}

// SGD performs plain gradient descent with optional L2 regularization
type SGD struct {
	LR     float64
	Lambda float64
}

// Step updates every parameter with p -= lr * (grad + lambda * p)
func (o *SGD) Step(params []*Param) {
	for _, p := range params {
		for i := range p.Data {
			p.Data[i] -= o.LR * (p.Grad[i] + o.Lambda*p.Data[i])
		}
	}
}

// Adam implements the Adam optimizer (Kingma & Ba, 2015)
type Adam struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	step   int
	moment map[*Param][]float64
	second map[*Param][]float64
}

// NewAdam creates an Adam optimizer with the usual betas
func NewAdam(lr, weightDecay float64) *Adam {
	return &Adam{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		moment:      make(map[*Param][]float64),
		second:      make(map[*Param][]float64),
	}
}

// Step applies one bias-corrected Adam update
func (o *Adam) Step(params []*Param) {
	o.step++
	bc1 := 1 - math.Pow(o.Beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.Beta2, float64(o.step))

	for _, p := range params {
		m, ok := o.moment[p]
		if !ok {
			m = make([]float64, len(p.Data))
			o.moment[p] = m
		}
		v, ok := o.second[p]
		if !ok {
			v = make([]float64, len(p.Data))
			o.second[p] = v
		}

		for i := range p.Data {
			g := p.Grad[i] + o.WeightDecay*p.Data[i]
			m[i] = o.Beta1*m[i] + (1-o.Beta1)*g
			v[i] = o.Beta2*v[i] + (1-o.Beta2)*g*g
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			p.Data[i] -= o.LR * mHat / (math.Sqrt(vHat) + o.Eps)
		}
	}
}

// Steps returns the number of updates applied so far
func (o *Adam) Steps() int {
	return o.step
}
