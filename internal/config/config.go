// Package config loads DEAL run settings from YAML, DEAL_* environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cnclabs/deal/internal/models/deal"
	"github.com/cnclabs/deal/pkg/attrnet"
)

// envPrefix maps nested keys such as train.epochs to DEAL_TRAIN_EPOCHS
const envPrefix = "DEAL"

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("config: invalid")

// Model holds the model hyperparameters
type Model struct {
	EmbDim     int     `mapstructure:"emb_dim" yaml:"emb_dim"`
	LayerNum   int     `mapstructure:"layer_num" yaml:"layer_num"`
	TrainMode  string  `mapstructure:"train_mode" yaml:"train_mode"`
	BCEMode    bool    `mapstructure:"bce_mode" yaml:"bce_mode"`
	Gamma      float64 `mapstructure:"gamma" yaml:"gamma"`
	StrongA    bool    `mapstructure:"strong_a" yaml:"strong_a"`
	NumClasses int     `mapstructure:"num_classes" yaml:"num_classes"`
	Dropout    float64 `mapstructure:"dropout" yaml:"dropout"`
	Seed       int64   `mapstructure:"seed" yaml:"seed"`
}

// Train holds the optimization and split settings
type Train struct {
	Epochs      int       `mapstructure:"epochs" yaml:"epochs"`
	BatchSize   int       `mapstructure:"batch_size" yaml:"batch_size"`
	LR          float64   `mapstructure:"lr" yaml:"lr"`
	WeightDecay float64   `mapstructure:"weight_decay" yaml:"weight_decay"`
	Thetas      []float64 `mapstructure:"thetas" yaml:"thetas"`
	Lambdas     []float64 `mapstructure:"lambdas" yaml:"lambdas"`
	NegPerPos   int       `mapstructure:"neg_per_pos" yaml:"neg_per_pos"`
	ValFrac     float64   `mapstructure:"val_frac" yaml:"val_frac"`
	TestFrac    float64   `mapstructure:"test_frac" yaml:"test_frac"`
}

// Data names the input files and how distances are built
type Data struct {
	Edges       string  `mapstructure:"edges" yaml:"edges"`
	Attributes  string  `mapstructure:"attributes" yaml:"attributes"`
	DistCutoff  int     `mapstructure:"dist_cutoff" yaml:"dist_cutoff"`
	SamplePower float64 `mapstructure:"sample_power" yaml:"sample_power"`
	Output      string  `mapstructure:"output" yaml:"output"`
}

// Log configures the zap logger
type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Metrics configures the prometheus endpoint; an empty Addr disables it
type Metrics struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Config is the resolved run configuration
type Config struct {
	RunID   string  `mapstructure:"run_id" yaml:"run_id"`
	Model   Model   `mapstructure:"model" yaml:"model"`
	Train   Train   `mapstructure:"train" yaml:"train"`
	Data    Data    `mapstructure:"data" yaml:"data"`
	Log     Log     `mapstructure:"log" yaml:"log"`
	Metrics Metrics `mapstructure:"metrics" yaml:"metrics"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// every key needs a default so AutomaticEnv can see it during Unmarshal
func setDefaults(v *viper.Viper) {
	opts := deal.DefaultOptions()
	v.SetDefault("run_id", "")

	v.SetDefault("model.emb_dim", 64)
	v.SetDefault("model.layer_num", opts.LayerNum)
	v.SetDefault("model.train_mode", opts.Mode.String())
	v.SetDefault("model.bce_mode", opts.BCEMode)
	v.SetDefault("model.gamma", opts.Gamma)
	v.SetDefault("model.strong_a", false)
	v.SetDefault("model.num_classes", 0)
	v.SetDefault("model.dropout", opts.DropoutP)
	v.SetDefault("model.seed", opts.Seed)

	v.SetDefault("train.epochs", 10)
	v.SetDefault("train.batch_size", 256)
	v.SetDefault("train.lr", 0.001)
	v.SetDefault("train.weight_decay", 0.0)
	v.SetDefault("train.thetas", []float64{1, 1, 1})
	v.SetDefault("train.lambdas", []float64{0.1, 0.85, 0.05})
	v.SetDefault("train.neg_per_pos", 1)
	v.SetDefault("train.val_frac", 0.05)
	v.SetDefault("train.test_frac", 0.1)

	v.SetDefault("data.edges", "")
	v.SetDefault("data.attributes", "")
	v.SetDefault("data.dist_cutoff", 0)
	v.SetDefault("data.sample_power", 0.75)
	v.SetDefault("data.output", "deal.embeddings")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.addr", "")
}

// Load reads the YAML file at path, or only the environment and defaults
// when path is empty, and validates the result
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges the model and trainer would otherwise reject later
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	_, err := deal.ParseMode(c.Model.TrainMode)
	check(err == nil, "model.train_mode %q", c.Model.TrainMode)
	check(c.Model.EmbDim > 0, "model.emb_dim %d must be positive", c.Model.EmbDim)
	check(c.Model.Gamma > 0, "model.gamma %.4f must be positive", c.Model.Gamma)
	check(c.Model.Dropout >= 0 && c.Model.Dropout < 1, "model.dropout %.4f outside [0, 1)", c.Model.Dropout)
	check(c.Model.NumClasses >= 0, "model.num_classes %d is negative", c.Model.NumClasses)

	check(c.Train.Epochs > 0, "train.epochs %d must be positive", c.Train.Epochs)
	check(c.Train.BatchSize > 0, "train.batch_size %d must be positive", c.Train.BatchSize)
	check(c.Train.LR > 0, "train.lr %g must be positive", c.Train.LR)
	check(len(c.Train.Thetas) == 3, "train.thetas needs 3 weights, got %d", len(c.Train.Thetas))
	check(len(c.Train.Lambdas) == 3, "train.lambdas needs 3 weights, got %d", len(c.Train.Lambdas))
	check(c.Train.NegPerPos >= 0, "train.neg_per_pos %d is negative", c.Train.NegPerPos)
	check(c.Train.ValFrac >= 0 && c.Train.TestFrac >= 0 && c.Train.ValFrac+c.Train.TestFrac < 1,
		"train.val_frac %.3f + train.test_frac %.3f must stay below 1", c.Train.ValFrac, c.Train.TestFrac)

	switch c.Log.Format {
	case "console", "json":
	default:
		check(false, "log.format %q must be console or json", c.Log.Format)
	}
	return errors.Join(errs...)
}

// Options converts the model section; Validate must have passed
func (c *Config) Options() (deal.Options, error) {
	mode, err := deal.ParseMode(c.Model.TrainMode)
	if err != nil {
		return deal.Options{}, err
	}
	return deal.Options{
		Device:     "cpu",
		LayerNum:   c.Model.LayerNum,
		Mode:       mode,
		BCEMode:    c.Model.BCEMode,
		Gamma:      c.Model.Gamma,
		StrongA:    c.Model.StrongA,
		NumClasses: c.Model.NumClasses,
		DropoutP:   c.Model.Dropout,
		Seed:       c.Model.Seed,
	}, nil
}

// TrainOptions converts the train section
func (c *Config) TrainOptions() deal.TrainOptions {
	opts := deal.TrainOptions{
		Epochs:    c.Train.Epochs,
		BatchSize: c.Train.BatchSize,
		Seed:      c.Model.Seed,
	}
	copy(opts.Thetas[:], c.Train.Thetas)
	copy(opts.Lambdas[:], c.Train.Lambdas)
	return opts
}

// SplitOptions converts the split and sampling settings
func (c *Config) SplitOptions() attrnet.SplitOptions {
	return attrnet.SplitOptions{
		ValFrac:     c.Train.ValFrac,
		TestFrac:    c.Train.TestFrac,
		NegPerPos:   c.Train.NegPerPos,
		SamplePower: c.Data.SamplePower,
	}
}

// Write snapshots the resolved configuration as YAML
func (c *Config) Write(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("config: failed to write %q: %w", path, err)
	}
	return nil
}
