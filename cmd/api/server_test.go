package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fairtrain/internal/config"
	"fairtrain/internal/data"
	"fairtrain/internal/experiment"
	"fairtrain/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	resultOnce sync.Once
	result     *experiment.Result
	resultErr  error
)

// trained fits one small experiment shared by every test in the package.
func trained(t *testing.T) *experiment.Result {
	t.Helper()
	resultOnce.Do(func() {
		cfg := config.Default()
		cfg.Data.Rows = 800
		cfg.Trainer.Epochs = 3
		cfg.Trainer.HiddenUnits = 8
		cfg.Trainer.LearningRate = 0.01
		if resultErr = cfg.Validate(); resultErr != nil {
			return
		}
		ds, err := experiment.LoadDataset(cfg.Data)
		if err != nil {
			resultErr = err
			return
		}
		result, resultErr = experiment.Execute(context.Background(), cfg, ds, nil)
	})
	require.NoError(t, resultErr)
	return result
}

func do(t *testing.T, r http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func row(age, sex float64) map[string]float64 {
	return map[string]float64{
		data.ColAge:         age,
		data.ColEducation:   13,
		data.ColHours:       45,
		data.ColCapitalGain: 1,
		data.ColSex:         sex,
		data.ColRace:        1,
	}
}

func TestPredict(t *testing.T) {
	r := newServer(trained(t), "", zap.NewNop()).routes()

	w := do(t, r, http.MethodPost, "/predict", predictRequest{Rows: []map[string]float64{row(40, 1), row(25, 0)}}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Model       string       `json:"model"`
		Predictions []prediction `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, experiment.Debiased, resp.Model)
	require.Len(t, resp.Predictions, 2)
	for _, p := range resp.Predictions {
		assert.GreaterOrEqual(t, p.Probability, 0.0)
		assert.LessOrEqual(t, p.Probability, 1.0)
		assert.Equal(t, p.Probability >= 0.5, p.Favorable)
		assert.Equal(t, p.Favorable, p.Label == 1)
	}

	// same input, same answer
	again := do(t, r, http.MethodPost, "/predict", predictRequest{Rows: []map[string]float64{row(40, 1), row(25, 0)}}, nil)
	assert.JSONEq(t, w.Body.String(), again.Body.String())
}

func TestPredict_BadRequests(t *testing.T) {
	r := newServer(trained(t), "", zap.NewNop()).routes()
	missing := row(40, 1)
	delete(missing, data.ColHours)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no rows", predictRequest{}, http.StatusBadRequest},
		{"missing feature", predictRequest{Rows: []map[string]float64{missing}}, http.StatusBadRequest},
		{"unknown model", predictRequest{Model: "forest", Rows: []map[string]float64{row(40, 1)}}, http.StatusNotFound},
		{"not json", "rows", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/predict", tt.body, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	r := newServer(trained(t), "s3cret", zap.NewNop()).routes()
	body := predictRequest{Model: experiment.Plain, Rows: []map[string]float64{row(40, 1)}}

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, "/predict", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, "/predict", body, map[string]string{"X-API-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/predict", body, map[string]string{"X-API-Key": "s3cret"}).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/report", nil, nil).Code, "report is public")
}

func TestReport(t *testing.T) {
	r := newServer(trained(t), "", zap.NewNop()).routes()
	w := do(t, r, http.MethodGet, "/report", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Privileged string `json:"privileged"`
		Dataset    map[string]struct {
			Values map[string]float64 `json:"values"`
		} `json:"dataset"`
		Models map[string]map[string]struct {
			Values map[string]float64 `json:"values"`
		} `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sex=1", resp.Privileged)
	assert.Contains(t, resp.Dataset["train"].Values, "base_rate")
	for _, name := range experiment.Names {
		assert.Contains(t, resp.Models[name]["test"].Values, "average_odds_difference", name)
	}
}

func TestHistory(t *testing.T) {
	r := newServer(trained(t), "", zap.NewNop()).routes()
	w := do(t, r, http.MethodGet, "/history/debiased", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Epochs []models.EpochStats `json:"epochs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Epochs, 3)
	assert.Equal(t, 1, resp.Epochs[0].Epoch)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/history/forest", nil, nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newServer(trained(t), "", zap.NewNop()).routes()
	do(t, r, http.MethodPost, "/predict", predictRequest{Rows: []map[string]float64{row(40, 1)}}, nil)

	w := do(t, r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `fairtrain_fairness_metric{metric="average_odds_difference",model="debiased",split="test"}`)
	assert.Contains(t, body, `fairtrain_fairness_metric{metric="base_rate",model="original",split="train"}`)
	assert.Contains(t, body, `fairtrain_predictions_total{label=`)
	assert.Contains(t, body, "fairtrain_predict_duration_seconds_bucket")
}
