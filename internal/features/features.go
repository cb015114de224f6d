package features

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"fairtrain/internal/data"
)

var ErrNotFitted = errors.New("scaler not fitted")

// StandardScaler centers every feature column and scales it to unit
// variance using statistics from the dataset it was fit on.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

func (s *StandardScaler) Fit(ds *data.Dataset) error {
	if ds.Len() == 0 {
		return fmt.Errorf("fit scaler: %w: empty dataset", data.ErrShapeMismatch)
	}
	nf := len(ds.FeatureNames)
	s.Mean = make([]float64, nf)
	s.Std = make([]float64, nf)
	col := make([]float64, ds.Len())
	for j := 0; j < nf; j++ {
		for i, row := range ds.Features {
			col[i] = row[j]
		}
		m, v := stat.PopMeanVariance(col, nil)
		s.Mean[j] = m
		s.Std[j] = sqrtOrOne(v)
	}
	return nil
}

// Transform returns a scaled copy of ds.
func (s *StandardScaler) Transform(ds *data.Dataset) (*data.Dataset, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	if len(ds.FeatureNames) != len(s.Mean) {
		return nil, fmt.Errorf("%w: scaler has %d columns, dataset %d", data.ErrShapeMismatch, len(s.Mean), len(ds.FeatureNames))
	}
	x := make([][]float64, ds.Len())
	for i, row := range ds.Features {
		x[i] = make([]float64, len(row))
		for j, v := range row {
			x[i][j] = (v - s.Mean[j]) / s.Std[j]
		}
	}
	return ds.WithFeatures(x)
}

func (s *StandardScaler) FitTransform(ds *data.Dataset) (*data.Dataset, error) {
	if err := s.Fit(ds); err != nil {
		return nil, err
	}
	return s.Transform(ds)
}

// constant columns are left centered but unscaled
func sqrtOrOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return math.Sqrt(v)
}
