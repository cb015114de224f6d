package models

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const fdStep = 1e-6

func randomBatch(rng *rand.Rand, n, f int) (*mat.Dense, []float64, []int) {
	x := mat.NewDense(n, f, nil)
	for i := range raw(x) {
		raw(x)[i] = rng.NormFloat64()
	}
	y := make([]float64, n)
	target := make([]int, n)
	for i := range y {
		if rng.Float64() < 0.5 {
			y[i] = 1
		}
		target[i] = rng.Intn(3)
	}
	return x, y, target
}

// numericGrad perturbs every entry of p and differentiates loss centrally.
func numericGrad(p params, loss func() float64) params {
	out := p.zerosLike()
	for k, m := range p {
		w, g := raw(m), raw(out[k])
		for j := range w {
			orig := w[j]
			w[j] = orig + fdStep
			up := loss()
			w[j] = orig - fdStep
			down := loss()
			w[j] = orig
			g[j] = (up - down) / (2 * fdStep)
		}
	}
	return out
}

func assertClose(t *testing.T, want, got params) {
	t.Helper()
	for k := range want {
		assert.InDeltaSlice(t, raw(want[k]), raw(got[k]), 1e-5, "tensor %d", k)
	}
}

func TestClassifierBackward(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := newClassifier(rng, 4, 5, 0)
	x, y, _ := randomBatch(rng, 7, 4)

	loss := func() float64 {
		l, _ := bce(c.forward(x, nil).probs, y)
		return l
	}
	cache := c.forward(x, nil)
	_, d := bce(cache.probs, y)
	assertClose(t, numericGrad(c.params(), loss), c.backward(cache, d))
}

func TestClassifierBackward_Dropout(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	c := newClassifier(rng, 3, 6, 0.5)
	x, y, _ := randomBatch(rng, 5, 3)

	cache := c.forward(x, rng)
	require.NotNil(t, cache.mask)
	mask := cache.mask
	// replay the same mask while differentiating numerically
	loss := func() float64 {
		z1 := affine(x, c.W1, c.B1)
		a := raw(z1)
		for i, v := range a {
			a[i] = math.Max(v, 0) * mask[i]
		}
		out := affine(z1, c.W2, c.B2)
		probs := make([]float64, len(y))
		for i := range probs {
			probs[i] = sigmoid(out.At(i, 0))
		}
		l, _ := bce(probs, y)
		return l
	}
	_, d := bce(cache.probs, y)
	assertClose(t, numericGrad(c.params(), loss), c.backward(cache, d))
}

func TestAdversaryBackward(t *testing.T) {
	for _, withLabel := range []bool{true, false} {
		rng := rand.New(rand.NewSource(3))
		a := newAdversary(rng, 3, withLabel, 0.7)
		_, y, target := randomBatch(rng, 6, 1)
		logits := make([]float64, len(y))
		for i := range logits {
			logits[i] = 2 * rng.NormFloat64()
		}

		loss := func() float64 { return a.loss(a.forward(logits, y), target) }
		grads, dLogits := a.backward(a.forward(logits, y), target)
		assertClose(t, numericGrad(a.params(), loss), grads)

		lp := mat.NewDense(1, len(logits), logits)
		assert.InDeltaSlice(t, raw(numericGrad(params{lp}, loss)[0]), dLogits, 1e-5)
	}
}

func TestSoftmax(t *testing.T) {
	v := []float64{1000, 1000, 1000}
	softmax(v)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, v, 1e-12)
	assert.InDelta(t, 1, floats.Sum(v), 1e-12)
}

func TestDeflect(t *testing.T) {
	g := []float64{3, 4}
	a := []float64{1, 0}
	deflect(g, a, 0, true)
	assert.InDeltaSlice(t, []float64{0, 4}, g, 1e-12)
	assert.InDelta(t, 0, floats.Dot(g, a), 1e-12)

	g = []float64{3, 4}
	deflect(g, a, 0.5, false)
	assert.InDeltaSlice(t, []float64{2.5, 4}, g, 1e-12)

	g = []float64{3, 4}
	deflect(g, []float64{0, 0}, 1, true)
	assert.Equal(t, []float64{3, 4}, g)
}

func TestOptimizersDescend(t *testing.T) {
	for name, opt := range map[string]Optimizer{"sgd": SGD{}, "adam": NewAdam()} {
		t.Run(name, func(t *testing.T) {
			w := params{mat.NewDense(1, 2, []float64{3, -2})}
			for i := 0; i < 500; i++ {
				g := params{mat.NewDense(1, 2, []float64{2 * raw(w[0])[0], 2 * raw(w[0])[1]})}
				opt.Step(w, g, 0.05)
			}
			assert.InDeltaSlice(t, []float64{0, 0}, raw(w[0]), 0.05)
		})
	}
}

func TestSchedules(t *testing.T) {
	prev := math.Inf(1)
	for e := 1; e <= 20; e++ {
		w := InverseSqrt.Weight(0.4, e)
		assert.LessOrEqual(t, w, prev)
		prev = w
		assert.Equal(t, 0.4, Constant.Weight(0.4, e))
	}
	assert.InDelta(t, 0.1, InverseSqrt.Weight(0.4, 16), 1e-12)

	assert.Equal(t, 0.01, decayedRate(0.01, 0.5, 100, 99))
	assert.Equal(t, 0.005, decayedRate(0.01, 0.5, 100, 100))
	assert.Equal(t, 0.0025, decayedRate(0.01, 0.5, 100, 250))
}
