package models

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func sigmoid(z float64) float64 { return 1.0 / (1.0 + math.Exp(-z)) }

// glorot fills a rows×cols matrix from U(-l, l), l = sqrt(6/(rows+cols)).
func glorot(rng *rand.Rand, rows, cols int) *mat.Dense {
	l := math.Sqrt(6.0 / float64(rows+cols))
	w := mat.NewDense(rows, cols, nil)
	raw := w.RawMatrix().Data
	for i := range raw {
		raw[i] = (2*rng.Float64() - 1) * l
	}
	return w
}

// affine returns x·w + b with b broadcast over rows.
func affine(x, w, b *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	_, c := w.Dims()
	out := mat.NewDense(n, c, nil)
	out.Mul(x, w)
	bias := b.RawRowView(0)
	for i := 0; i < n; i++ {
		floats.Add(out.RawRowView(i), bias)
	}
	return out
}

// colSums returns the 1×c row of column sums of m.
func colSums(m *mat.Dense) *mat.Dense {
	n, c := m.Dims()
	out := mat.NewDense(1, c, nil)
	row := out.RawRowView(0)
	for i := 0; i < n; i++ {
		floats.Add(row, m.RawRowView(i))
	}
	return out
}

// params is an ordered set of parameter (or gradient) tensors. Every tensor
// is freshly allocated, so its backing slice is contiguous.
type params []*mat.Dense

func (p params) zerosLike() params {
	out := make(params, len(p))
	for i, m := range p {
		r, c := m.Dims()
		out[i] = mat.NewDense(r, c, nil)
	}
	return out
}

func (p params) finite() bool {
	for _, m := range p {
		for _, v := range m.RawMatrix().Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func raw(m *mat.Dense) []float64 { return m.RawMatrix().Data }
