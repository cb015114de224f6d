package models

import (
	"context"
	"errors"

	"fairtrain/internal/data"
)

var (
	ErrInvalidState     = errors.New("invalid trainer state")
	ErrTrainingDiverged = errors.New("training diverged")
	ErrInvalidConfig    = errors.New("invalid config")
)

type Model interface {
	Fit(ctx context.Context, ds *data.Dataset) error
	Predict(ds *data.Dataset) (*data.Dataset, error)
	PredictProba(ds *data.Dataset) ([]float64, error)
	Name() string
}

type State int

const (
	Uninitialized State = iota
	Fitting
	Fitted
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Fitting:
		return "fitting"
	case Fitted:
		return "fitted"
	default:
		return "failed"
	}
}
