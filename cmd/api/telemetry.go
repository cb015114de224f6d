package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fairtrain/internal/experiment"
	"fairtrain/internal/metrics"
)

// telemetry owns a private registry so several servers can coexist in one
// process (tests).
type telemetry struct {
	registry *prometheus.Registry

	// fairness holds the report values. Labels: model (original, plain,
	// debiased), split (train, test), metric.
	fairness *prometheus.GaugeVec
	// undefined is 1 for a metric that could not be computed.
	undefined   *prometheus.GaugeVec
	predictions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

func newTelemetry() *telemetry {
	t := &telemetry{
		registry: prometheus.NewRegistry(),
		fairness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fairtrain",
			Name:      "fairness_metric",
			Help:      "Fairness and accuracy metrics of the served models",
		}, []string{"model", "split", "metric"}),
		undefined: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fairtrain",
			Name:      "fairness_metric_undefined",
			Help:      "1 when a metric is undefined for the evaluated groups",
		}, []string{"model", "split", "metric"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairtrain",
			Name:      "predictions_total",
			Help:      "Rows scored by /predict",
		}, []string{"model", "label"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fairtrain",
			Name:      "predict_duration_seconds",
			Help:      "Latency of /predict requests",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"model"}),
	}
	t.registry.MustRegister(t.fairness, t.undefined, t.predictions, t.latency)
	return t
}

func (t *telemetry) observe(res *experiment.Result) {
	t.set("original", "train", res.DatasetTrain)
	t.set("original", "test", res.DatasetTest)
	for _, name := range experiment.Names {
		run := res.Runs[name]
		t.set(name, "train", run.Train)
		t.set(name, "test", run.Test)
	}
}

func (t *telemetry) set(model, split string, r metrics.Report) {
	for _, name := range r.Names {
		v, err := r.Get(name)
		if err != nil {
			t.undefined.WithLabelValues(model, split, name).Set(1)
			continue
		}
		t.undefined.WithLabelValues(model, split, name).Set(0)
		t.fairness.WithLabelValues(model, split, name).Set(v)
	}
}

func (t *telemetry) handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
}
