// Package config loads experiment settings from YAML.
//
//	data:
//	  rows: 20000
//	  sex_effect: 1.5
//	privileged_groups: [{sex: 1}]
//	unprivileged_groups: [{sex: 0}]
//	trainer:
//	  epochs: 50
//	  adversary_weight: 0.1
//
// Defaults are applied first, then the file; callers apply flags last and
// call Validate again.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"fairtrain/internal/data"
	"fairtrain/internal/groups"
	"fairtrain/internal/models"
)

var validate = validator.New()

type Data struct {
	// Path of a CSV to load; empty generates the synthetic income dataset.
	Path          string      `yaml:"path"`
	Rows          int         `yaml:"rows" validate:"gte=0"`
	Seed          int64       `yaml:"seed"`
	SexEffect     float64     `yaml:"sex_effect"`
	TrainFraction float64     `yaml:"train_fraction" validate:"gt=0,lt=1"`
	Schema        data.Schema `yaml:"schema"`
}

type Config struct {
	Data         Data             `yaml:"data"`
	Privileged   []map[string]any `yaml:"privileged_groups" validate:"required,min=1"`
	Unprivileged []map[string]any `yaml:"unprivileged_groups" validate:"required,min=1"`
	Trainer      models.Config    `yaml:"trainer"`
	OutputDir    string           `yaml:"output_dir"`
}

func Default() Config {
	return Config{
		Data: Data{
			Rows:          20000,
			Seed:          1,
			SexEffect:     1.5,
			TrainFraction: 0.7,
			Schema: data.Schema{
				Label:       data.ColIncome,
				Protected:   []string{data.ColSex, data.ColRace},
				Favorable:   1,
				Unfavorable: 0,
			},
		},
		Privileged:   []map[string]any{{data.ColSex: 1}},
		Unprivileged: []map[string]any{{data.ColSex: 0}},
		Trainer:      models.DefaultConfig(),
		OutputDir:    "out",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate resolves the group mappings into the trainer config and checks
// every field.
func (c *Config) Validate() error {
	var err error
	if c.Trainer.Privileged, err = groups.FromMaps(c.Privileged); err != nil {
		return fmt.Errorf("privileged_groups: %w", err)
	}
	if c.Trainer.Unprivileged, err = groups.FromMaps(c.Unprivileged); err != nil {
		return fmt.Errorf("unprivileged_groups: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	return nil
}

// Groups returns the resolved privileged and unprivileged specs.
func (c *Config) Groups() (groups.Spec, groups.Spec) {
	return c.Trainer.Privileged, c.Trainer.Unprivileged
}

// Run returns the trainer config for one run of the experiment.
func (c *Config) Run(name string, debias bool) models.Config {
	t := c.Trainer
	t.Name = name
	t.Debias = debias
	return t
}
