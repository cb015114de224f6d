// Package metrics computes group fairness and accuracy statistics over one
// dataset snapshot (DatasetMetric) or a ground-truth and predicted pair
// (ClassificationMetric).
//
// Metrics whose denominator group is empty return ErrUndefinedMetric. The one
// intentional exception is disparate impact, which is 0 when the privileged
// favorable rate is 0.
package metrics

import (
	"errors"
	"fmt"

	"fairtrain/internal/data"
	"fairtrain/internal/groups"
)

var (
	ErrUndefinedMetric = errors.New("undefined metric")
	// ErrUnknownMetric is returned by Report.Get for a name the report does
	// not carry.
	ErrUnknownMetric = errors.New("unknown metric")
)

// Group selects which rows a metric is conditioned on.
type Group int

const (
	All Group = iota
	Privileged
	Unprivileged
)

func (g Group) String() string {
	switch g {
	case Privileged:
		return "privileged"
	case Unprivileged:
		return "unprivileged"
	default:
		return "all"
	}
}

func undefined(metric string, g Group, why string) error {
	return fmt.Errorf("%w: %s: %s group has %s", ErrUndefinedMetric, metric, g, why)
}

type memberships struct {
	priv, unpriv []bool
}

func newMemberships(ds *data.Dataset, priv, unpriv groups.Spec) (memberships, error) {
	if len(priv) == 0 || len(unpriv) == 0 {
		return memberships{}, fmt.Errorf("%w: privileged and unprivileged groups are both required", groups.ErrInvalidGroupSpec)
	}
	p, err := groups.Membership(ds, priv)
	if err != nil {
		return memberships{}, fmt.Errorf("privileged: %w", err)
	}
	u, err := groups.Membership(ds, unpriv)
	if err != nil {
		return memberships{}, fmt.Errorf("unprivileged: %w", err)
	}
	return memberships{priv: p, unpriv: u}, nil
}

func (m memberships) in(g Group, i int) bool {
	switch g {
	case Privileged:
		return m.priv[i]
	case Unprivileged:
		return m.unpriv[i]
	default:
		return true
	}
}

// DatasetMetric describes the label distribution of a single snapshot.
type DatasetMetric struct {
	ds *data.Dataset
	memberships
}

func NewDatasetMetric(ds *data.Dataset, priv, unpriv groups.Spec) (*DatasetMetric, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	m, err := newMemberships(ds, priv, unpriv)
	if err != nil {
		return nil, err
	}
	return &DatasetMetric{ds: ds, memberships: m}, nil
}

func (m *DatasetMetric) NumInstances(g Group) float64 {
	n := 0.0
	for i := range m.ds.Labels {
		if m.in(g, i) {
			n++
		}
	}
	return n
}

func (m *DatasetMetric) NumPositives(g Group) float64 {
	n := 0.0
	for i, y := range m.ds.Labels {
		if m.in(g, i) && y == m.ds.FavorableLabel {
			n++
		}
	}
	return n
}

func (m *DatasetMetric) NumNegatives(g Group) float64 {
	return m.NumInstances(g) - m.NumPositives(g)
}

// BaseRate is P(label = favorable) within g.
func (m *DatasetMetric) BaseRate(g Group) (float64, error) {
	n := m.NumInstances(g)
	if n == 0 {
		return 0, undefined("base_rate", g, "no rows")
	}
	return m.NumPositives(g) / n, nil
}

// MeanDifference is BaseRate(Unprivileged) - BaseRate(Privileged). Negative
// values mean the unprivileged group is favored less often.
func (m *DatasetMetric) MeanDifference() (float64, error) {
	return difference(m.BaseRate)
}

func (m *DatasetMetric) DisparateImpact() (float64, error) {
	return ratio(m.BaseRate)
}

func difference(f func(Group) (float64, error)) (float64, error) {
	u, err := f(Unprivileged)
	if err != nil {
		return 0, err
	}
	p, err := f(Privileged)
	if err != nil {
		return 0, err
	}
	return u - p, nil
}

func ratio(f func(Group) (float64, error)) (float64, error) {
	u, err := f(Unprivileged)
	if err != nil {
		return 0, err
	}
	p, err := f(Privileged)
	if err != nil {
		return 0, err
	}
	if p == 0 {
		return 0, nil
	}
	return u / p, nil
}
