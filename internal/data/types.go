package data

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidLabel  = errors.New("invalid label")
)

// Dataset is a snapshot of tabular data with binary labels and protected
// attributes. Consumers receive derived copies; nothing mutates a snapshot
// after it has been handed out.
type Dataset struct {
	Features         [][]float64 `json:"features"`
	Labels           []float64   `json:"labels"`
	Protected        [][]float64 `json:"protected"`
	FeatureNames     []string    `json:"feature_names"`
	ProtectedNames   []string    `json:"protected_names"`
	FavorableLabel   float64     `json:"favorable_label"`
	UnfavorableLabel float64     `json:"unfavorable_label"`
}

func (d *Dataset) Len() int { return len(d.Labels) }

// Validate checks row and column counts and label codes, reporting every
// violation it finds.
func (d *Dataset) Validate() error {
	var err error
	n := len(d.Labels)
	if len(d.Features) != n {
		err = multierr.Append(err, fmt.Errorf("%w: %d feature rows, %d labels", ErrShapeMismatch, len(d.Features), n))
	}
	if len(d.Protected) != n {
		err = multierr.Append(err, fmt.Errorf("%w: %d protected rows, %d labels", ErrShapeMismatch, len(d.Protected), n))
	}
	for i, row := range d.Features {
		if len(row) != len(d.FeatureNames) {
			err = multierr.Append(err, fmt.Errorf("%w: feature row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), len(d.FeatureNames)))
			break
		}
	}
	for i, row := range d.Protected {
		if len(row) != len(d.ProtectedNames) {
			err = multierr.Append(err, fmt.Errorf("%w: protected row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), len(d.ProtectedNames)))
			break
		}
	}
	if d.FavorableLabel == d.UnfavorableLabel {
		err = multierr.Append(err, fmt.Errorf("%w: favorable and unfavorable codes are both %g", ErrInvalidLabel, d.FavorableLabel))
	}
	for i, y := range d.Labels {
		if y != d.FavorableLabel && y != d.UnfavorableLabel {
			err = multierr.Append(err, fmt.Errorf("%w: row %d has label %g", ErrInvalidLabel, i, y))
			break
		}
	}
	return err
}

// ProtectedIndex returns the column of the named protected attribute.
func (d *Dataset) ProtectedIndex(name string) (int, bool) {
	for i, n := range d.ProtectedNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// BinaryLabels maps favorable to 1 and anything else to 0.
func (d *Dataset) BinaryLabels() []float64 {
	out := make([]float64, len(d.Labels))
	for i, y := range d.Labels {
		if y == d.FavorableLabel {
			out[i] = 1
		}
	}
	return out
}

func (d *Dataset) Copy() *Dataset {
	return &Dataset{
		Features:         copyMatrix(d.Features),
		Labels:           append([]float64(nil), d.Labels...),
		Protected:        copyMatrix(d.Protected),
		FeatureNames:     append([]string(nil), d.FeatureNames...),
		ProtectedNames:   append([]string(nil), d.ProtectedNames...),
		FavorableLabel:   d.FavorableLabel,
		UnfavorableLabel: d.UnfavorableLabel,
	}
}

// WithLabels returns a copy carrying the given labels.
func (d *Dataset) WithLabels(labels []float64) (*Dataset, error) {
	if len(labels) != d.Len() {
		return nil, fmt.Errorf("%w: %d labels for %d rows", ErrShapeMismatch, len(labels), d.Len())
	}
	out := d.Copy()
	copy(out.Labels, labels)
	return out, nil
}

// WithFeatures returns a copy carrying the given feature matrix.
func (d *Dataset) WithFeatures(x [][]float64) (*Dataset, error) {
	if len(x) != d.Len() {
		return nil, fmt.Errorf("%w: %d feature rows for %d rows", ErrShapeMismatch, len(x), d.Len())
	}
	out := d.Copy()
	out.Features = copyMatrix(x)
	return out, nil
}

// Subset returns the rows at idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		Features:         make([][]float64, len(idx)),
		Labels:           make([]float64, len(idx)),
		Protected:        make([][]float64, len(idx)),
		FeatureNames:     append([]string(nil), d.FeatureNames...),
		ProtectedNames:   append([]string(nil), d.ProtectedNames...),
		FavorableLabel:   d.FavorableLabel,
		UnfavorableLabel: d.UnfavorableLabel,
	}
	for i, j := range idx {
		out.Features[i] = append([]float64(nil), d.Features[j]...)
		out.Labels[i] = d.Labels[j]
		out.Protected[i] = append([]float64(nil), d.Protected[j]...)
	}
	return out
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}
