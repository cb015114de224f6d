package metrics

import (
	"encoding/json"
	"fmt"

	"fairtrain/internal/data"
	"fairtrain/internal/groups"
)

const (
	MeanDifference             = "mean_difference"
	Accuracy                   = "accuracy"
	BalancedAccuracy           = "balanced_accuracy"
	DisparateImpact            = "disparate_impact"
	EqualOpportunityDifference = "equal_opportunity_difference"
	AverageOddsDifference      = "average_odds_difference"
	TheilIndex                 = "theil_index"
	BaseRate                   = "base_rate"
)

// ClassificationNames lists the metrics Evaluate reports, in report order.
var ClassificationNames = []string{
	MeanDifference,
	Accuracy,
	BalancedAccuracy,
	DisparateImpact,
	EqualOpportunityDifference,
	AverageOddsDifference,
	TheilIndex,
}

var DatasetNames = []string{MeanDifference, DisparateImpact, BaseRate}

// Report is a set of named scalars. Metrics that could not be computed are
// kept in Undefined with the reason instead of being coerced to a number.
type Report struct {
	Names     []string
	Values    map[string]float64
	Undefined map[string]error
}

func newReport(names []string) Report {
	return Report{Names: names, Values: map[string]float64{}, Undefined: map[string]error{}}
}

func (r Report) put(name string, v float64, err error) {
	if err != nil {
		r.Undefined[name] = err
		return
	}
	r.Values[name] = v
}

func (r Report) Get(name string) (float64, error) {
	if err, ok := r.Undefined[name]; ok {
		return 0, err
	}
	v, ok := r.Values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q not in report", ErrUnknownMetric, name)
	}
	return v, nil
}

func (r Report) MarshalJSON() ([]byte, error) {
	undef := make(map[string]string, len(r.Undefined))
	for k, err := range r.Undefined {
		undef[k] = err.Error()
	}
	return json.Marshal(struct {
		Values    map[string]float64 `json:"values"`
		Undefined map[string]string  `json:"undefined,omitempty"`
	}{r.Values, undef})
}

// Evaluate reports classification metrics of pred against truth. It fails
// only on structural problems; empty groups show up in Report.Undefined.
func Evaluate(truth, pred *data.Dataset, priv, unpriv groups.Spec) (Report, error) {
	m, err := NewClassificationMetric(truth, pred, priv, unpriv)
	if err != nil {
		return Report{}, err
	}
	r := newReport(ClassificationNames)
	v, err := m.StatisticalParityDifference()
	r.put(MeanDifference, v, err)
	v, err = m.Accuracy(All)
	r.put(Accuracy, v, err)
	v, err = m.BalancedAccuracy(All)
	r.put(BalancedAccuracy, v, err)
	v, err = m.DisparateImpact()
	r.put(DisparateImpact, v, err)
	v, err = m.EqualOpportunityDifference()
	r.put(EqualOpportunityDifference, v, err)
	v, err = m.AverageOddsDifference()
	r.put(AverageOddsDifference, v, err)
	v, err = m.TheilIndex()
	r.put(TheilIndex, v, err)
	return r, nil
}

// DatasetReport reports label-distribution metrics of a single snapshot.
func DatasetReport(ds *data.Dataset, priv, unpriv groups.Spec) (Report, error) {
	m, err := NewDatasetMetric(ds, priv, unpriv)
	if err != nil {
		return Report{}, err
	}
	r := newReport(DatasetNames)
	v, err := m.MeanDifference()
	r.put(MeanDifference, v, err)
	v, err = m.DisparateImpact()
	r.put(DisparateImpact, v, err)
	v, err = m.BaseRate(All)
	r.put(BaseRate, v, err)
	return r, nil
}
