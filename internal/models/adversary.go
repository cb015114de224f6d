package models

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// adversary predicts the protected class from the classifier logit alone.
// The logit is squashed as s = sigmoid((1+|c|)·logit) with a learned c, and
// optionally paired with the true label as [s, s·y, s·(1-y)].
type adversary struct {
	C, W, B   *mat.Dense
	withLabel bool
}

type adversaryCache struct {
	logits []float64
	y      []float64
	s      []float64
	z      *mat.Dense
	q      *mat.Dense
}

func newAdversary(rng *rand.Rand, classes int, withLabel bool, scaleInit float64) *adversary {
	in := 1
	if withLabel {
		in = 3
	}
	return &adversary{
		C:         mat.NewDense(1, 1, []float64{scaleInit}),
		W:         glorot(rng, in, classes),
		B:         mat.NewDense(1, classes, nil),
		withLabel: withLabel,
	}
}

func (a *adversary) params() params { return params{a.C, a.W, a.B} }

func (a *adversary) scale() float64 { return 1 + math.Abs(a.C.At(0, 0)) }

func (a *adversary) forward(logits, y []float64) *adversaryCache {
	n := len(logits)
	in, _ := a.W.Dims()
	k := a.scale()
	s := make([]float64, n)
	z := mat.NewDense(n, in, nil)
	for i, l := range logits {
		s[i] = sigmoid(k * l)
		row := z.RawRowView(i)
		row[0] = s[i]
		if a.withLabel {
			row[1] = s[i] * y[i]
			row[2] = s[i] * (1 - y[i])
		}
	}
	q := affine(z, a.W, a.B)
	for i := 0; i < n; i++ {
		softmax(q.RawRowView(i))
	}
	return &adversaryCache{logits: logits, y: y, s: s, z: z, q: q}
}

// loss is the mean cross-entropy of the predicted class distribution
// against target class indices.
func (a *adversary) loss(cache *adversaryCache, target []int) float64 {
	loss := 0.0
	for i, t := range target {
		loss -= math.Log(math.Max(cache.q.At(i, t), 1e-12))
	}
	return loss / float64(len(target))
}

// backward returns gradients for C, W, B and the gradient of the loss with
// respect to each classifier logit.
func (a *adversary) backward(cache *adversaryCache, target []int) (params, []float64) {
	n := len(target)
	dA := mat.DenseCopyOf(cache.q)
	for i, t := range target {
		row := dA.RawRowView(i)
		row[t]--
		floats.Scale(1/float64(n), row)
	}

	in, classes := a.W.Dims()
	dW := mat.NewDense(in, classes, nil)
	dW.Mul(cache.z.T(), dA)
	dB := colSums(dA)

	dZ := mat.NewDense(n, in, nil)
	dZ.Mul(dA, a.W.T())

	c := a.C.At(0, 0)
	k := a.scale()
	sign := 0.0
	if c > 0 {
		sign = 1
	} else if c < 0 {
		sign = -1
	}
	dC := 0.0
	dLogits := make([]float64, n)
	for i := 0; i < n; i++ {
		row := dZ.RawRowView(i)
		ds := row[0]
		if a.withLabel {
			ds += row[1]*cache.y[i] + row[2]*(1-cache.y[i])
		}
		common := ds * cache.s[i] * (1 - cache.s[i])
		dLogits[i] = common * k
		dC += common * cache.logits[i] * sign
	}
	return params{mat.NewDense(1, 1, []float64{dC}), dW, dB}, dLogits
}

func softmax(v []float64) {
	m := floats.Max(v)
	sum := 0.0
	for i := range v {
		v[i] = math.Exp(v[i] - m)
		sum += v[i]
	}
	floats.Scale(1/sum, v)
}
