package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fairtrain/internal/data"
	"fairtrain/internal/experiment"
	"fairtrain/internal/metrics"
)

type server struct {
	logger    *zap.Logger
	result    *experiment.Result
	apiKey    string
	telemetry *telemetry
}

func newServer(res *experiment.Result, apiKey string, logger *zap.Logger) *server {
	s := &server{logger: logger, result: res, apiKey: apiKey, telemetry: newTelemetry()}
	s.telemetry.observe(res)
	return s
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", s.telemetry.handler())
	r.GET("/report", s.handleReport)
	r.GET("/history/:model", s.handleHistory)

	api := r.Group("/")
	api.Use(apiKeyMiddleware(s.apiKey))
	api.POST("/predict", s.handlePredict)
	return r
}

func apiKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Each row maps column name to raw (unscaled) value and must carry every
// feature and protected attribute of the training data.
type predictRequest struct {
	Model string               `json:"model"`
	Rows  []map[string]float64 `json:"rows" binding:"required,min=1"`
}

type prediction struct {
	Probability float64 `json:"probability"`
	Label       float64 `json:"label"`
	Favorable   bool    `json:"favorable"`
}

func (s *server) handlePredict(c *gin.Context) {
	start := time.Now()
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Model == "" {
		req.Model = experiment.Debiased
	}
	run, ok := s.result.Runs[req.Model]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown model %q", req.Model)})
		return
	}

	ds, err := s.rowsToDataset(req.Rows)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scaled, err := s.result.Scaler.Transform(ds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	probs, err := run.Trainer.PredictProba(scaled)
	if err != nil {
		s.logger.Error("Predict failed", zap.String("model", req.Model), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
		return
	}
	pred, err := run.Trainer.Predict(scaled)
	if err != nil {
		s.logger.Error("Predict failed", zap.String("model", req.Model), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
		return
	}

	out := make([]prediction, len(probs))
	for i, p := range probs {
		l := pred.Labels[i]
		out[i] = prediction{Probability: p, Label: l, Favorable: l == pred.FavorableLabel}
		s.telemetry.predictions.WithLabelValues(req.Model, strconv.FormatFloat(l, 'g', -1, 64)).Inc()
	}
	s.telemetry.latency.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
	c.JSON(http.StatusOK, gin.H{"model": req.Model, "predictions": out})
}

func (s *server) rowsToDataset(rows []map[string]float64) (*data.Dataset, error) {
	ref := s.result.Train
	ds := &data.Dataset{
		Features:         make([][]float64, len(rows)),
		Labels:           make([]float64, len(rows)),
		Protected:        make([][]float64, len(rows)),
		FeatureNames:     ref.FeatureNames,
		ProtectedNames:   ref.ProtectedNames,
		FavorableLabel:   ref.FavorableLabel,
		UnfavorableLabel: ref.UnfavorableLabel,
	}
	pick := func(i int, row map[string]float64, names []string) ([]float64, error) {
		out := make([]float64, len(names))
		for j, n := range names {
			v, ok := row[n]
			if !ok {
				return nil, fmt.Errorf("row %d: missing %q", i, n)
			}
			out[j] = v
		}
		return out, nil
	}
	for i, row := range rows {
		var err error
		if ds.Features[i], err = pick(i, row, ref.FeatureNames); err != nil {
			return nil, err
		}
		if ds.Protected[i], err = pick(i, row, ref.ProtectedNames); err != nil {
			return nil, err
		}
		ds.Labels[i] = ref.UnfavorableLabel
	}
	return ds, nil
}

type reportResponse struct {
	Privileged   string                               `json:"privileged"`
	Unprivileged string                               `json:"unprivileged"`
	Dataset      map[string]metrics.Report            `json:"dataset"`
	Models       map[string]map[string]metrics.Report `json:"models"`
}

func (s *server) handleReport(c *gin.Context) {
	res := s.result
	out := reportResponse{
		Privileged:   res.Privileged.String(),
		Unprivileged: res.Unprivileged.String(),
		Dataset:      map[string]metrics.Report{"train": res.DatasetTrain, "test": res.DatasetTest},
		Models:       make(map[string]map[string]metrics.Report, len(res.Runs)),
	}
	for name, run := range res.Runs {
		out.Models[name] = map[string]metrics.Report{"train": run.Train, "test": run.Test}
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) handleHistory(c *gin.Context) {
	name := c.Param("model")
	run, ok := s.result.Runs[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown model %q", name)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": name, "epochs": run.Trainer.History()})
}
