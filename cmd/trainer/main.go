package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"fairtrain/internal/config"
	"fairtrain/internal/data"
	"fairtrain/internal/experiment"
	"fairtrain/internal/metrics"
	"fairtrain/internal/models"
	"fairtrain/pkg/utils"
)

func main() {
	logger := utils.Logger()
	defer logger.Sync()

	cfgPath := flag.String("config", "", "YAML experiment file")
	dataPath := flag.String("data", "", "CSV to train on (empty: synthetic income data)")
	n := flag.Int("n", 0, "Synthetic rows")
	regenOut := flag.String("regen_out", "", "Write the synthetic dataset to this CSV")
	epochs := flag.Int("epochs", 0, "Training epochs")
	batch := flag.Int("batch_size", 0, "Mini-batch size")
	lr := flag.Float64("lr", 0, "Learning rate")
	hidden := flag.Int("hidden", 0, "Classifier hidden units")
	advWeight := flag.Float64("adv_weight", 0, "Adversary weight")
	schedule := flag.String("schedule", "", "Adversary weight schedule: constant|inv_sqrt")
	seed := flag.Int64("seed", 0, "Trainer seed")
	outDir := flag.String("out_dir", "", "Directory for history.csv and metrics.csv")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data.Path = *dataPath
		case "n":
			cfg.Data.Rows = *n
		case "epochs":
			cfg.Trainer.Epochs = *epochs
		case "batch_size":
			cfg.Trainer.BatchSize = *batch
		case "lr":
			cfg.Trainer.LearningRate = *lr
		case "hidden":
			cfg.Trainer.HiddenUnits = *hidden
		case "adv_weight":
			cfg.Trainer.AdversaryWeight = *advWeight
		case "schedule":
			cfg.Trainer.WeightSchedule = models.Schedule(*schedule)
		case "seed":
			cfg.Trainer.Seed = *seed
		case "out_dir":
			cfg.OutputDir = *outDir
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ds, err := experiment.LoadDataset(cfg.Data)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}
	if *regenOut != "" {
		if err := data.WriteCSV(*regenOut, ds, cfg.Data.Schema.Label); err != nil {
			logger.Fatal("Failed to write dataset", zap.Error(err))
		}
		logger.Info("Dataset written", zap.String("path", *regenOut))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := experiment.Execute(ctx, cfg, ds, logger)
	if err != nil {
		logger.Fatal("Training failed", zap.Error(err))
	}
	logReport(logger, "Original train set", res.DatasetTrain)
	logReport(logger, "Original test set", res.DatasetTest)
	for _, name := range experiment.Names {
		r := res.Runs[name]
		logReport(logger, name+" model, train set", r.Train)
		logReport(logger, name+" model, test set", r.Test)
	}
	printComparison(res.Runs[experiment.Plain].Test, res.Runs[experiment.Debiased].Test)

	if err := writeHistory(filepath.Join(cfg.OutputDir, "history.csv"), res); err != nil {
		logger.Warn("Failed to write training history", zap.Error(err))
	}
	if err := writeMetrics(filepath.Join(cfg.OutputDir, "metrics.csv"), res); err != nil {
		logger.Warn("Failed to write metrics", zap.Error(err))
	} else {
		logger.Info("Results written", zap.String("dir", cfg.OutputDir))
	}
}

func logReport(logger *zap.Logger, title string, r metrics.Report) {
	fields := make([]zap.Field, 0, len(r.Names))
	for _, name := range r.Names {
		if v, err := r.Get(name); err == nil {
			fields = append(fields, zap.Float64(name, v))
		} else {
			fields = append(fields, zap.String(name, "undefined"))
		}
	}
	logger.Info(title, fields...)
}

func printComparison(plain, debiased metrics.Report) {
	fmt.Printf("%-30s %12s %12s\n", "test set metric", "plain", "debiased")
	for _, name := range metrics.ClassificationNames {
		fmt.Printf("%-30s %12s %12s\n", name, cell(plain, name), cell(debiased, name))
	}
}

func cell(r metrics.Report, name string) string {
	v, err := r.Get(name)
	if err != nil {
		return "undefined"
	}
	return fmt.Sprintf("%.6f", v)
}

func writeHistory(path string, res *experiment.Result) error {
	return writeCSV(path, []string{"model", "epoch", "classifier_loss", "adversary_loss", "adversary_weight", "learning_rate"}, func(w *csv.Writer) error {
		for _, name := range experiment.Names {
			for _, h := range res.Runs[name].Trainer.History() {
				rec := []string{name, strconv.Itoa(h.Epoch),
					fmt.Sprintf("%.6f", h.ClassifierLoss), fmt.Sprintf("%.6f", h.AdversaryLoss),
					fmt.Sprintf("%.6f", h.AdversaryWeight), fmt.Sprintf("%.6g", h.LearningRate),
				}
				if err := w.Write(rec); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

type labeledReport struct {
	model, split string
	r            metrics.Report
}

func writeMetrics(path string, res *experiment.Result) error {
	reports := []labeledReport{
		{"original", "train", res.DatasetTrain},
		{"original", "test", res.DatasetTest},
	}
	for _, name := range experiment.Names {
		run := res.Runs[name]
		reports = append(reports, labeledReport{name, "train", run.Train}, labeledReport{name, "test", run.Test})
	}
	return writeCSV(path, []string{"model", "split", "metric", "value"}, func(w *csv.Writer) error {
		for _, lr := range reports {
			for _, m := range lr.r.Names {
				if err := w.Write([]string{lr.model, lr.split, m, cell(lr.r, m)}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func writeCSV(path string, header []string, rows func(*csv.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := rows(w); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
