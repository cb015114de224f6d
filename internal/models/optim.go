package models

import "math"

// Optimizer updates one network's parameters in place. Each network owns
// its own optimizer so the two never share state.
type Optimizer interface {
	Step(p, grads params, lr float64)
}

// SGD is plain stochastic gradient descent.
type SGD struct{}

func (SGD) Step(p, grads params, lr float64) {
	for i, m := range p {
		w, g := raw(m), raw(grads[i])
		for j := range w {
			w[j] -= lr * g[j]
		}
	}
}

// Adam keeps first and second moment estimates per parameter.
type Adam struct {
	Beta1, Beta2, Eps float64

	t    int
	m, v params
}

func NewAdam() *Adam { return &Adam{Beta1: 0.9, Beta2: 0.999, Eps: 1e-8} }

func (a *Adam) Step(p, grads params, lr float64) {
	if a.m == nil {
		a.m, a.v = p.zerosLike(), p.zerosLike()
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, pm := range p {
		w, g, m, v := raw(pm), raw(grads[i]), raw(a.m[i]), raw(a.v[i])
		for j := range w {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			w[j] -= lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.Eps)
		}
	}
}

func newOptimizer(name string) Optimizer {
	if name == "sgd" {
		return SGD{}
	}
	return NewAdam()
}

// decayedRate is lr·decay^⌊step/every⌋.
func decayedRate(lr, decay float64, every, step int) float64 {
	return lr * math.Pow(decay, float64(step/every))
}

// Schedule names how the adversary weight evolves over epochs.
type Schedule string

const (
	Constant    Schedule = "constant"
	InverseSqrt Schedule = "inv_sqrt"
)

// Weight returns the adversary weight for a 1-based epoch. Both schedules
// are non-increasing in epoch.
func (s Schedule) Weight(alpha float64, epoch int) float64 {
	if s == InverseSqrt && epoch > 1 {
		return alpha / math.Sqrt(float64(epoch))
	}
	return alpha
}
