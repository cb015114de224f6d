package metrics

import (
	"fmt"
	"math"

	"fairtrain/internal/data"
	"fairtrain/internal/groups"
)

// ConfusionCounts holds the confusion matrix of one group.
type ConfusionCounts struct {
	TP, FP, TN, FN float64
}

func (c ConfusionCounts) Positives() float64 { return c.TP + c.FN }
func (c ConfusionCounts) Negatives() float64 { return c.TN + c.FP }
func (c ConfusionCounts) Total() float64     { return c.TP + c.FP + c.TN + c.FN }

// ClassificationMetric compares predicted labels against ground truth. Both
// snapshots must describe the same rows in the same order.
type ClassificationMetric struct {
	truth, pred *data.Dataset
	memberships
}

func NewClassificationMetric(truth, pred *data.Dataset, priv, unpriv groups.Spec) (*ClassificationMetric, error) {
	if err := truth.Validate(); err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}
	if err := pred.Validate(); err != nil {
		return nil, fmt.Errorf("predictions: %w", err)
	}
	if truth.Len() != pred.Len() {
		return nil, fmt.Errorf("%w: %d ground-truth rows, %d predicted", data.ErrShapeMismatch, truth.Len(), pred.Len())
	}
	if truth.FavorableLabel != pred.FavorableLabel || truth.UnfavorableLabel != pred.UnfavorableLabel {
		return nil, fmt.Errorf("%w: label codes differ", data.ErrShapeMismatch)
	}
	if len(truth.ProtectedNames) != len(pred.ProtectedNames) {
		return nil, fmt.Errorf("%w: protected attributes differ", data.ErrShapeMismatch)
	}
	for i := range truth.ProtectedNames {
		if truth.ProtectedNames[i] != pred.ProtectedNames[i] {
			return nil, fmt.Errorf("%w: protected attributes differ", data.ErrShapeMismatch)
		}
	}
	for i := range truth.Protected {
		for j, v := range truth.Protected[i] {
			if pred.Protected[i][j] != v {
				return nil, fmt.Errorf("%w: row %d protected attributes differ, rows are not aligned", data.ErrShapeMismatch, i)
			}
		}
	}
	m, err := newMemberships(truth, priv, unpriv)
	if err != nil {
		return nil, err
	}
	return &ClassificationMetric{truth: truth, pred: pred, memberships: m}, nil
}

func (m *ClassificationMetric) Counts(g Group) ConfusionCounts {
	var c ConfusionCounts
	fav := m.truth.FavorableLabel
	for i, y := range m.truth.Labels {
		if !m.in(g, i) {
			continue
		}
		actual := y == fav
		predicted := m.pred.Labels[i] == fav
		switch {
		case actual && predicted:
			c.TP++
		case !actual && predicted:
			c.FP++
		case !actual && !predicted:
			c.TN++
		default:
			c.FN++
		}
	}
	return c
}

func (m *ClassificationMetric) Accuracy(g Group) (float64, error) {
	c := m.Counts(g)
	if c.Total() == 0 {
		return 0, undefined("accuracy", g, "no rows")
	}
	return (c.TP + c.TN) / c.Total(), nil
}

func (m *ClassificationMetric) TruePositiveRate(g Group) (float64, error) {
	c := m.Counts(g)
	if c.Positives() == 0 {
		return 0, undefined("true_positive_rate", g, "no favorable ground-truth rows")
	}
	return c.TP / c.Positives(), nil
}

func (m *ClassificationMetric) FalseNegativeRate(g Group) (float64, error) {
	c := m.Counts(g)
	if c.Positives() == 0 {
		return 0, undefined("false_negative_rate", g, "no favorable ground-truth rows")
	}
	return c.FN / c.Positives(), nil
}

func (m *ClassificationMetric) TrueNegativeRate(g Group) (float64, error) {
	c := m.Counts(g)
	if c.Negatives() == 0 {
		return 0, undefined("true_negative_rate", g, "no unfavorable ground-truth rows")
	}
	return c.TN / c.Negatives(), nil
}

func (m *ClassificationMetric) FalsePositiveRate(g Group) (float64, error) {
	c := m.Counts(g)
	if c.Negatives() == 0 {
		return 0, undefined("false_positive_rate", g, "no unfavorable ground-truth rows")
	}
	return c.FP / c.Negatives(), nil
}

func (m *ClassificationMetric) BalancedAccuracy(g Group) (float64, error) {
	tpr, err := m.TruePositiveRate(g)
	if err != nil {
		return 0, err
	}
	tnr, err := m.TrueNegativeRate(g)
	if err != nil {
		return 0, err
	}
	return 0.5 * (tpr + tnr), nil
}

// SelectionRate is P(predicted = favorable) within g.
func (m *ClassificationMetric) SelectionRate(g Group) (float64, error) {
	c := m.Counts(g)
	if c.Total() == 0 {
		return 0, undefined("selection_rate", g, "no rows")
	}
	return (c.TP + c.FP) / c.Total(), nil
}

// DisparateImpact is SelectionRate(Unprivileged) / SelectionRate(Privileged),
// or 0 when the privileged selection rate is 0.
func (m *ClassificationMetric) DisparateImpact() (float64, error) {
	return ratio(m.SelectionRate)
}

func (m *ClassificationMetric) StatisticalParityDifference() (float64, error) {
	return difference(m.SelectionRate)
}

func (m *ClassificationMetric) EqualOpportunityDifference() (float64, error) {
	return difference(m.TruePositiveRate)
}

func (m *ClassificationMetric) AverageOddsDifference() (float64, error) {
	fpr, err := difference(m.FalsePositiveRate)
	if err != nil {
		return 0, err
	}
	tpr, err := difference(m.TruePositiveRate)
	if err != nil {
		return 0, err
	}
	return 0.5 * (fpr + tpr), nil
}

// GeneralizedEntropyIndex measures inequality of the per-row benefit
// b = 1 + yhat - y over all rows.
func (m *ClassificationMetric) GeneralizedEntropyIndex(alpha float64) (float64, error) {
	name := fmt.Sprintf("generalized_entropy_index(%g)", alpha)
	n := float64(m.truth.Len())
	if n == 0 {
		return 0, undefined(name, All, "no rows")
	}
	yt := m.truth.BinaryLabels()
	yp := m.pred.BinaryLabels()
	b := make([]float64, len(yt))
	mu := 0.0
	for i := range b {
		b[i] = 1 + yp[i] - yt[i]
		mu += b[i]
	}
	mu /= n
	if mu == 0 {
		return 0, undefined(name, All, "zero mean benefit")
	}

	sum := 0.0
	for _, v := range b {
		r := v / mu
		switch alpha {
		case 1:
			if r > 0 {
				sum += r * math.Log(r)
			}
		case 0:
			if r == 0 {
				return 0, undefined(name, All, "a zero benefit")
			}
			sum -= math.Log(r)
		default:
			sum += (math.Pow(r, alpha) - 1) / (alpha * (alpha - 1))
		}
	}
	return sum / n, nil
}

func (m *ClassificationMetric) TheilIndex() (float64, error) {
	return m.GeneralizedEntropyIndex(1)
}

func (m *ClassificationMetric) CoefficientOfVariation() (float64, error) {
	ge, err := m.GeneralizedEntropyIndex(2)
	if err != nil {
		return 0, err
	}
	return 2 * math.Sqrt(ge), nil
}
