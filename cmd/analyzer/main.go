package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"fairtrain/internal/data"
	"fairtrain/internal/groups"
	"fairtrain/internal/metrics"
	"fairtrain/pkg/utils"
)

type options struct {
	dataPath string
	predPath string
	schema   data.Schema
	priv     groups.Spec
	unpriv   groups.Spec
	asJSON   bool
}

func main() {
	logger := utils.Logger()
	defer logger.Sync()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}
	out, err := analyze(opts)
	if err != nil {
		logger.Fatal("Analysis failed", zap.Error(err))
	}
	if opts.asJSON {
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			logger.Fatal("Failed to encode report", zap.Error(err))
		}
		fmt.Println(string(b))
		return
	}
	printReport("dataset", out.Dataset)
	if out.Predictions != nil {
		printReport("predictions", *out.Predictions)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("analyzer", flag.ContinueOnError)
	dataPath := fs.String("data", "data/income.csv", "Labeled CSV")
	predPath := fs.String("predictions", "", "CSV with predicted labels in the label column, same row order")
	label := fs.String("label", data.ColIncome, "Label column")
	protected := fs.String("protected", data.ColSex+","+data.ColRace, "Comma-separated protected columns")
	favorable := fs.Float64("favorable", 1, "Favorable label code")
	unfavorable := fs.Float64("unfavorable", 0, "Unfavorable label code")
	privFlag := fs.String("privileged", "sex=1", "Privileged groups, e.g. sex=1,race=1;race=2")
	unprivFlag := fs.String("unprivileged", "sex=0", "Unprivileged groups")
	asJSON := fs.Bool("json", false, "Print the reports as JSON")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	priv, err := groups.Parse(*privFlag)
	if err != nil {
		return options{}, fmt.Errorf("-privileged: %w", err)
	}
	unpriv, err := groups.Parse(*unprivFlag)
	if err != nil {
		return options{}, fmt.Errorf("-unprivileged: %w", err)
	}
	return options{
		dataPath: *dataPath,
		predPath: *predPath,
		schema: data.Schema{
			Label:       *label,
			Protected:   strings.Split(*protected, ","),
			Favorable:   *favorable,
			Unfavorable: *unfavorable,
		},
		priv:   priv,
		unpriv: unpriv,
		asJSON: *asJSON,
	}, nil
}

type analysis struct {
	Dataset     metrics.Report  `json:"dataset"`
	Predictions *metrics.Report `json:"predictions,omitempty"`
}

func analyze(opts options) (analysis, error) {
	truth, err := data.LoadCSV(opts.dataPath, opts.schema)
	if err != nil {
		return analysis{}, err
	}
	var out analysis
	if out.Dataset, err = metrics.DatasetReport(truth, opts.priv, opts.unpriv); err != nil {
		return analysis{}, err
	}
	if opts.predPath == "" {
		return out, nil
	}
	pred, err := data.LoadCSV(opts.predPath, opts.schema)
	if err != nil {
		return analysis{}, err
	}
	r, err := metrics.Evaluate(truth, pred, opts.priv, opts.unpriv)
	if err != nil {
		return analysis{}, err
	}
	out.Predictions = &r
	return out, nil
}

func printReport(title string, r metrics.Report) {
	fmt.Println(title)
	for _, name := range r.Names {
		if v, err := r.Get(name); err == nil {
			fmt.Printf("  %-30s %.6f\n", name, v)
		} else {
			fmt.Printf("  %-30s undefined (%v)\n", name, err)
		}
	}
}
