// Package experiment runs the plain-versus-debiased comparison: split,
// scale, fit both trainers concurrently, and evaluate each on both splits.
package experiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fairtrain/internal/config"
	"fairtrain/internal/data"
	"fairtrain/internal/features"
	"fairtrain/internal/groups"
	"fairtrain/internal/metrics"
	"fairtrain/internal/models"
)

const (
	Plain    = "plain"
	Debiased = "debiased"
)

// Names lists the runs in report order.
var Names = []string{Plain, Debiased}

type ModelRun struct {
	Trainer *models.AdversarialTrainer
	Train   metrics.Report
	Test    metrics.Report
}

type Result struct {
	Privileged   groups.Spec
	Unprivileged groups.Spec
	Scaler       *features.StandardScaler
	// Train and Test are the scaled splits the trainers saw.
	Train        *data.Dataset
	Test         *data.Dataset
	DatasetTrain metrics.Report
	DatasetTest  metrics.Report
	Runs         map[string]*ModelRun
}

// LoadDataset reads c.Path, or generates the synthetic income dataset when
// no path is set.
func LoadDataset(c config.Data) (*data.Dataset, error) {
	if c.Path != "" {
		return data.LoadCSV(c.Path, c.Schema)
	}
	return data.GenerateSyntheticIncome(c.Rows, c.Seed, c.SexEffect), nil
}

// Execute runs both trainers on ds. The first failing run cancels the other.
func Execute(ctx context.Context, cfg config.Config, ds *data.Dataset, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	priv, unpriv := cfg.Groups()
	res := &Result{
		Privileged:   priv,
		Unprivileged: unpriv,
		Scaler:       &features.StandardScaler{},
		Runs:         make(map[string]*ModelRun, len(Names)),
	}

	train, test := data.Split(ds, cfg.Data.TrainFraction, cfg.Data.Seed)
	var err error
	if res.Train, err = res.Scaler.FitTransform(train); err != nil {
		return nil, fmt.Errorf("scale train split: %w", err)
	}
	if res.Test, err = res.Scaler.Transform(test); err != nil {
		return nil, fmt.Errorf("scale test split: %w", err)
	}
	if res.DatasetTrain, err = metrics.DatasetReport(res.Train, priv, unpriv); err != nil {
		return nil, err
	}
	if res.DatasetTest, err = metrics.DatasetReport(res.Test, priv, unpriv); err != nil {
		return nil, err
	}
	logger.Info("Dataset split",
		zap.Int("train", res.Train.Len()),
		zap.Int("test", res.Test.Len()),
		zap.Stringer("privileged", priv),
		zap.Stringer("unprivileged", unpriv),
	)

	runs := make([]*ModelRun, len(Names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range Names {
		i, name := i, name
		tcfg := cfg.Run(name, name == Debiased)
		g.Go(func() error {
			r, err := fitAndEvaluate(gctx, tcfg, res, logger)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			runs[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, name := range Names {
		res.Runs[name] = runs[i]
	}
	return res, nil
}

func fitAndEvaluate(ctx context.Context, cfg models.Config, res *Result, logger *zap.Logger) (*ModelRun, error) {
	tr, err := models.NewAdversarialTrainer(cfg, models.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := tr.Fit(ctx, res.Train); err != nil {
		return nil, err
	}
	run := &ModelRun{Trainer: tr}
	if run.Train, err = evaluate(tr, res.Train, res); err != nil {
		return nil, err
	}
	if run.Test, err = evaluate(tr, res.Test, res); err != nil {
		return nil, err
	}
	return run, nil
}

func evaluate(m models.Model, ds *data.Dataset, res *Result) (metrics.Report, error) {
	pred, err := m.Predict(ds)
	if err != nil {
		return metrics.Report{}, err
	}
	return metrics.Evaluate(ds, pred, res.Privileged, res.Unprivileged)
}
