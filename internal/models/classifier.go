package models

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// classifier is a one-hidden-layer ReLU network with a single logit output.
type classifier struct {
	W1, B1, W2, B2 *mat.Dense
	keep           float64
}

type classifierCache struct {
	x      *mat.Dense
	z1     *mat.Dense
	a1     *mat.Dense
	mask   []float64
	logits []float64
	probs  []float64
}

func newClassifier(rng *rand.Rand, nFeatures, hidden int, dropout float64) *classifier {
	return &classifier{
		W1:   glorot(rng, nFeatures, hidden),
		B1:   mat.NewDense(1, hidden, nil),
		W2:   glorot(rng, hidden, 1),
		B2:   mat.NewDense(1, 1, nil),
		keep: 1 - dropout,
	}
}

func (c *classifier) params() params { return params{c.W1, c.B1, c.W2, c.B2} }

// forward runs the batch through the network. With a non-nil rng hidden
// units are dropped (inverted dropout); inference passes nil.
func (c *classifier) forward(x *mat.Dense, rng *rand.Rand) *classifierCache {
	n, _ := x.Dims()
	z1 := affine(x, c.W1, c.B1)
	a1 := mat.DenseCopyOf(z1)
	a := raw(a1)
	var mask []float64
	if rng != nil && c.keep < 1 {
		mask = make([]float64, len(a))
		for i := range mask {
			if rng.Float64() < c.keep {
				mask[i] = 1 / c.keep
			}
		}
	}
	for i, v := range a {
		if v < 0 {
			v = 0
		}
		if mask != nil {
			v *= mask[i]
		}
		a[i] = v
	}
	out := affine(a1, c.W2, c.B2)
	logits := make([]float64, n)
	probs := make([]float64, n)
	for i := 0; i < n; i++ {
		logits[i] = out.At(i, 0)
		probs[i] = sigmoid(logits[i])
	}
	return &classifierCache{x: x, z1: z1, a1: a1, mask: mask, logits: logits, probs: probs}
}

// backward maps dLoss/dlogit to gradients for W1, B1, W2, B2.
func (c *classifier) backward(cache *classifierCache, dLogits []float64) params {
	n := len(dLogits)
	dOut := mat.NewDense(n, 1, append([]float64(nil), dLogits...))

	_, h := c.W1.Dims()
	dW2 := mat.NewDense(h, 1, nil)
	dW2.Mul(cache.a1.T(), dOut)
	dB2 := colSums(dOut)

	dA1 := mat.NewDense(n, h, nil)
	dA1.Mul(dOut, c.W2.T())
	d := raw(dA1)
	z := raw(cache.z1)
	for i := range d {
		if z[i] <= 0 {
			d[i] = 0
			continue
		}
		if cache.mask != nil {
			d[i] *= cache.mask[i]
		}
	}
	_, f := cache.x.Dims()
	dW1 := mat.NewDense(f, h, nil)
	dW1.Mul(cache.x.T(), dA1)
	dB1 := colSums(dA1)
	return params{dW1, dB1, dW2, dB2}
}

// bce is the mean binary cross-entropy and its gradient w.r.t. the logits.
func bce(probs, y []float64) (float64, []float64) {
	n := float64(len(y))
	loss := 0.0
	grad := make([]float64, len(y))
	for i, p := range probs {
		q := math.Min(math.Max(p, 1e-12), 1-1e-12)
		loss -= y[i]*math.Log(q) + (1-y[i])*math.Log(1-q)
		grad[i] = (p - y[i]) / n
	}
	return loss / n, grad
}
