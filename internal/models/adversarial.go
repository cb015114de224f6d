package models

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"fairtrain/internal/data"
	"fairtrain/internal/groups"
)

var validate = validator.New()

// Config holds the hyperparameters of one adversarial training run. The
// group specs are set in code; configuration files carry them separately.
type Config struct {
	Name         string      `yaml:"name"`
	Privileged   groups.Spec `yaml:"-" validate:"required,min=1"`
	Unprivileged groups.Spec `yaml:"-" validate:"required,min=1"`
	// ProtectedAttribute is the adversary's target. Empty means the first
	// attribute named by Unprivileged.
	ProtectedAttribute string `yaml:"protected_attribute"`
	Debias             bool   `yaml:"debias"`

	Epochs       int     `yaml:"epochs" validate:"gte=1"`
	BatchSize    int     `yaml:"batch_size" validate:"gte=1"`
	Optimizer    string  `yaml:"optimizer" validate:"oneof=adam sgd"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0"`
	LRDecay      float64 `yaml:"lr_decay" validate:"gt=0,lte=1"`
	LRDecaySteps int     `yaml:"lr_decay_steps" validate:"gte=1"`
	HiddenUnits  int     `yaml:"hidden_units" validate:"gte=1"`
	Dropout      float64 `yaml:"dropout" validate:"gte=0,lt=1"`

	AdversaryWeight    float64  `yaml:"adversary_weight" validate:"gte=0"`
	WeightSchedule     Schedule `yaml:"weight_schedule" validate:"oneof=constant inv_sqrt"`
	Projection         bool     `yaml:"projection"`
	AdversaryUsesLabel bool     `yaml:"adversary_uses_label"`
	AdversaryScaleInit float64  `yaml:"adversary_scale_init"`

	Seed     int64 `yaml:"seed"`
	LogEvery int   `yaml:"log_every" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Epochs:             50,
		BatchSize:          128,
		Optimizer:          "adam",
		LearningRate:       0.001,
		LRDecay:            0.96,
		LRDecaySteps:       1000,
		HiddenUnits:        200,
		Dropout:            0.2,
		AdversaryWeight:    0.1,
		WeightSchedule:     Constant,
		Projection:         true,
		AdversaryUsesLabel: true,
		AdversaryScaleInit: 1,
		LogEvery:           200,
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// EpochStats summarizes one epoch; losses are means over the epoch's rows.
type EpochStats struct {
	Epoch           int     `json:"epoch"`
	ClassifierLoss  float64 `json:"classifier_loss"`
	AdversaryLoss   float64 `json:"adversary_loss"`
	AdversaryWeight float64 `json:"adversary_weight"`
	LearningRate    float64 `json:"learning_rate"`
}

// AdversarialTrainer fits a classifier against an adversary that tries to
// recover the protected attribute from the classifier's logit. A trainer is
// single use: Fit once, then Predict any number of times.
type AdversarialTrainer struct {
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand

	mu    sync.RWMutex
	state State

	clf       *classifier
	adv       *adversary
	nFeatures int
	classes   []float64
	history   []EpochStats
}

type Option func(*AdversarialTrainer)

func WithLogger(l *zap.Logger) Option {
	return func(t *AdversarialTrainer) { t.logger = l }
}

func NewAdversarialTrainer(cfg Config, opts ...Option) (*AdversarialTrainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "plain"
		if cfg.Debias {
			cfg.Name = "debiased"
		}
	}
	t := &AdversarialTrainer{
		cfg:    cfg,
		logger: zap.NewNop(),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, o := range opts {
		o(t)
	}
	t.logger = t.logger.With(zap.String("model", cfg.Name))
	return t, nil
}

func (t *AdversarialTrainer) Name() string { return t.cfg.Name }

func (t *AdversarialTrainer) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// History returns per-epoch statistics of the completed part of training.
func (t *AdversarialTrainer) History() []EpochStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]EpochStats(nil), t.history...)
}

// Classes returns the protected attribute values the adversary predicts.
func (t *AdversarialTrainer) Classes() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]float64(nil), t.classes...)
}

// Fit trains on ds. Invalid input is rejected before the trainer leaves
// Uninitialized. Cancelling ctx stops training between batches and leaves
// the trainer Failed.
func (t *AdversarialTrainer) Fit(ctx context.Context, ds *data.Dataset) error {
	t.mu.Lock()
	if t.state != Uninitialized {
		s := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: fit called while %s", ErrInvalidState, s)
	}
	target, classes, err := t.prepare(ds)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.state = Fitting
	t.nFeatures = len(ds.FeatureNames)
	t.classes = classes
	t.mu.Unlock()

	err = t.train(ctx, ds, target)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.state = Failed
		return err
	}
	t.state = Fitted
	return nil
}

// prepare validates ds and encodes the adversary target as class indices.
func (t *AdversarialTrainer) prepare(ds *data.Dataset) ([]int, []float64, error) {
	if err := ds.Validate(); err != nil {
		return nil, nil, err
	}
	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: empty training set", data.ErrShapeMismatch)
	}
	if err := groups.Validate(ds, t.cfg.Privileged); err != nil {
		return nil, nil, fmt.Errorf("privileged: %w", err)
	}
	if err := groups.Validate(ds, t.cfg.Unprivileged); err != nil {
		return nil, nil, fmt.Errorf("unprivileged: %w", err)
	}
	attr := t.cfg.ProtectedAttribute
	if attr == "" {
		attr = t.cfg.Unprivileged[0][0].Attr
	}
	col, ok := ds.ProtectedIndex(attr)
	if !ok {
		return nil, nil, fmt.Errorf("%w: adversary target %q is not a protected attribute", groups.ErrInvalidGroupSpec, attr)
	}

	seen := map[float64]bool{}
	var classes []float64
	for _, row := range ds.Protected {
		if !seen[row[col]] {
			seen[row[col]] = true
			classes = append(classes, row[col])
		}
	}
	sort.Float64s(classes)
	index := make(map[float64]int, len(classes))
	for i, v := range classes {
		index[v] = i
	}
	target := make([]int, ds.Len())
	for i, row := range ds.Protected {
		target[i] = index[row[col]]
	}
	return target, classes, nil
}

type optimizers struct {
	clf, adv Optimizer
}

func (t *AdversarialTrainer) train(ctx context.Context, ds *data.Dataset, target []int) error {
	cfg := t.cfg
	n := ds.Len()
	y := ds.BinaryLabels()

	t.clf = newClassifier(t.rng, t.nFeatures, cfg.HiddenUnits, cfg.Dropout)
	t.adv = newAdversary(t.rng, len(t.classes), cfg.AdversaryUsesLabel, cfg.AdversaryScaleInit)
	opt := optimizers{clf: newOptimizer(cfg.Optimizer), adv: newOptimizer(cfg.Optimizer)}

	t.logger.Info("training started",
		zap.Int("rows", n),
		zap.Int("features", t.nFeatures),
		zap.Bool("debias", cfg.Debias),
		zap.Float64s("adversary_classes", t.classes),
		zap.Int("epochs", cfg.Epochs),
		zap.Int("batch_size", cfg.BatchSize),
	)

	step := 0
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		alpha := cfg.WeightSchedule.Weight(cfg.AdversaryWeight, epoch)
		perm := t.rng.Perm(n)
		var sumClf, sumAdv float64
		var lr float64
		for start := 0; start < n; start += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("fit %s aborted in epoch %d: %w", cfg.Name, epoch, err)
			}
			idx := perm[start:min(start+cfg.BatchSize, n)]
			lr = decayedRate(cfg.LearningRate, cfg.LRDecay, cfg.LRDecaySteps, step)
			lc, la, err := t.step(ds.Features, y, target, idx, alpha, lr, opt)
			if err != nil {
				return fmt.Errorf("fit %s epoch %d batch %d: %w", cfg.Name, epoch, start/cfg.BatchSize, err)
			}
			sumClf += lc * float64(len(idx))
			sumAdv += la * float64(len(idx))
			step++
			if cfg.LogEvery > 0 && step%cfg.LogEvery == 0 {
				t.logger.Debug("batch",
					zap.Int("epoch", epoch),
					zap.Int("step", step),
					zap.Float64("classifier_loss", lc),
					zap.Float64("adversary_loss", la),
				)
			}
		}

		stats := EpochStats{
			Epoch:           epoch,
			ClassifierLoss:  sumClf / float64(n),
			AdversaryLoss:   sumAdv / float64(n),
			AdversaryWeight: alpha,
			LearningRate:    lr,
		}
		t.mu.Lock()
		t.history = append(t.history, stats)
		t.mu.Unlock()
		t.logger.Info("epoch",
			zap.Int("epoch", epoch),
			zap.Float64("classifier_loss", stats.ClassifierLoss),
			zap.Float64("adversary_loss", stats.AdversaryLoss),
			zap.Float64("adversary_weight", alpha),
			zap.Float64("learning_rate", lr),
		)
	}
	return nil
}

// step runs forward, backward and both updates for one batch and returns the
// batch classifier and adversary losses.
func (t *AdversarialTrainer) step(x [][]float64, y []float64, target, idx []int, alpha, lr float64, opt optimizers) (float64, float64, error) {
	xb := mat.NewDense(len(idx), t.nFeatures, nil)
	yb := make([]float64, len(idx))
	tb := make([]int, len(idx))
	for i, r := range idx {
		copy(xb.RawRowView(i), x[r])
		yb[i] = y[r]
		tb[i] = target[r]
	}

	cache := t.clf.forward(xb, t.rng)
	lossClf, dLogits := bce(cache.probs, yb)
	if !isFinite(lossClf) {
		return 0, 0, fmt.Errorf("%w: classifier loss %v", ErrTrainingDiverged, lossClf)
	}
	grads := t.clf.backward(cache, dLogits)

	lossAdv := 0.0
	if t.cfg.Debias {
		ac := t.adv.forward(cache.logits, yb)
		lossAdv = t.adv.loss(ac, tb)
		if !isFinite(lossAdv) {
			return 0, 0, fmt.Errorf("%w: adversary loss %v", ErrTrainingDiverged, lossAdv)
		}
		advGrads, dAdvLogits := t.adv.backward(ac, tb)
		leak := t.clf.backward(cache, dAdvLogits)
		for i := range grads {
			deflect(raw(grads[i]), raw(leak[i]), alpha, t.cfg.Projection)
		}
		opt.adv.Step(t.adv.params(), advGrads, lr)
	}
	opt.clf.Step(t.clf.params(), grads, lr)

	if !t.clf.params().finite() || !t.adv.params().finite() {
		return 0, 0, fmt.Errorf("%w: non-finite parameters", ErrTrainingDiverged)
	}
	return lossClf, lossAdv, nil
}

// deflect turns the classifier gradient g away from helping the adversary:
// it drops the component of g along the adversary gradient a, then moves
// against a with weight alpha.
func deflect(g, a []float64, alpha float64, project bool) {
	if project {
		norm2 := math.Max(floats.Dot(a, a), 1e-12)
		floats.AddScaled(g, -floats.Dot(g, a)/norm2, a)
	}
	floats.AddScaled(g, -alpha, a)
}

func (t *AdversarialTrainer) PredictProba(ds *data.Dataset) ([]float64, error) {
	if s := t.State(); s != Fitted {
		return nil, fmt.Errorf("%w: predict called while %s", ErrInvalidState, s)
	}
	if len(ds.FeatureNames) != t.nFeatures {
		return nil, fmt.Errorf("%w: model has %d features, dataset %d", data.ErrShapeMismatch, t.nFeatures, len(ds.FeatureNames))
	}
	if ds.Len() == 0 {
		return []float64{}, nil
	}
	x := mat.NewDense(len(ds.Features), t.nFeatures, nil)
	for i, row := range ds.Features {
		if len(row) != t.nFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", data.ErrShapeMismatch, i, len(row), t.nFeatures)
		}
		copy(x.RawRowView(i), row)
	}
	return t.clf.forward(x, nil).probs, nil
}

// Predict returns a copy of ds whose labels are the classifier's decisions
// at a 0.5 probability threshold.
func (t *AdversarialTrainer) Predict(ds *data.Dataset) (*data.Dataset, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	probs, err := t.PredictProba(ds)
	if err != nil {
		return nil, err
	}
	labels := make([]float64, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			labels[i] = ds.FavorableLabel
		} else {
			labels[i] = ds.UnfavorableLabel
		}
	}
	return ds.WithLabels(labels)
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
