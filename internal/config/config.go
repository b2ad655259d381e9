// Package config holds the run configuration shared by the CLI and the
// trainer: hyperparameters, model architecture, data source and output
// locations. Values come from defaults, an optional YAML file and command
// line flags, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/neolearn/neolearn/internal/nn"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete run configuration.
type Config struct {
	// Optimization.
	LR        float64 `yaml:"lr"`
	Epochs    int     `yaml:"epochs"`
	BatchSize int     `yaml:"batch_size"`
	Seed      int64   `yaml:"seed"`

	// Architecture.
	Model   string `yaml:"model"` // "linear" or "conv"
	Hidden  []int  `yaml:"hidden"`
	Init    string `yaml:"init"` // "xavier", "he" or a positive std
	Kernel  int    `yaml:"kernel"`
	Stride  int    `yaml:"stride"`
	Padding int    `yaml:"padding"`

	// Data. An empty DataDir selects the synthetic blobs problem.
	DataDir   string    `yaml:"data_dir"`
	Synthetic Synthetic `yaml:"synthetic"`

	// Persistence.
	Loads      bool   `yaml:"loads"`       // resume from WeightPath
	Saves      bool   `yaml:"saves"`       // write the final state to WeightPath
	WeightPath string `yaml:"weight_path"`
	Project    string `yaml:"project"` // output directory for checkpoints and plots
	NoSave     bool   `yaml:"nosave"`
	NoPlot     bool   `yaml:"noplot"`

	Device   string `yaml:"device"`    // "cpu" or "webgpu"
	LogEvery int    `yaml:"log_every"` // iterations between progress records, 0 disables
}

// Synthetic configures the generated dataset.
type Synthetic struct {
	Samples      int     `yaml:"samples"`
	Classes      int     `yaml:"classes"`
	Features     int     `yaml:"features"`
	Spread       float64 `yaml:"spread"`
	TestFraction float64 `yaml:"test_fraction"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LR:         0.001,
		Epochs:     16,
		BatchSize:  128,
		Seed:       0,
		Model:      nn.KindLinear,
		Hidden:     []int{16, 64, 128, 64, 16},
		Init:       nn.InitXavier,
		Kernel:     3,
		Stride:     1,
		Padding:    1,
		WeightPath: "weights.nlck",
		Synthetic: Synthetic{
			Samples:      2000,
			Classes:      4,
			Features:     16,
			Spread:       1.0,
			TestFraction: 0.2,
		},
		Device:   "cpu",
		LogEvery: 50,
	}
}

// LoadFile overlays the YAML file at path onto Default. Unknown keys are
// rejected.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	//nolint:gosec // G304: config path is supplied by the user
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every setting.
func (c Config) Validate() error {
	switch {
	case !(c.LR > 0):
		return fmt.Errorf("%w: lr must be > 0, got %g", ErrInvalid, c.LR)
	case c.Epochs < 1:
		return fmt.Errorf("%w: epochs must be >= 1, got %d", ErrInvalid, c.Epochs)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be >= 1, got %d", ErrInvalid, c.BatchSize)
	case c.Model != nn.KindLinear && c.Model != nn.KindConv:
		return fmt.Errorf("%w: model must be %q or %q, got %q", ErrInvalid, nn.KindLinear, nn.KindConv, c.Model)
	case (c.Loads || c.Saves) && c.WeightPath == "":
		return fmt.Errorf("%w: loads/saves need a weight path", ErrInvalid)
	case c.LogEvery < 0:
		return fmt.Errorf("%w: log_every must be >= 0", ErrInvalid)
	}
	for _, h := range c.Hidden {
		if h < 1 {
			return fmt.Errorf("%w: hidden sizes must be >= 1, got %v", ErrInvalid, c.Hidden)
		}
	}
	if _, err := nn.ParseInit(c.Init); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Model == nn.KindConv && (c.Kernel < 1 || c.Stride < 1 || c.Padding < 0) {
		return fmt.Errorf("%w: kernel %d stride %d padding %d", ErrInvalid, c.Kernel, c.Stride, c.Padding)
	}
	if c.DataDir == "" {
		s := c.Synthetic
		if s.Samples < 2 || s.Classes < 1 || s.Features < 1 || s.Spread < 0 || s.TestFraction <= 0 || s.TestFraction >= 1 {
			return fmt.Errorf("%w: synthetic data %+v", ErrInvalid, s)
		}
	}
	return nil
}

// ProjectDir returns Project, or runs/<uuid> when it is unset. The
// generated name is stored so later calls agree.
func (c *Config) ProjectDir() string {
	if c.Project == "" {
		c.Project = filepath.Join("runs", uuid.NewString())
	}
	return c.Project
}

// ModelConfig derives the architecture for samples of inputShape with
// classes output classes.
func (c Config) ModelConfig(inputShape []int, classes int) nn.ModelConfig {
	mc := nn.ModelConfig{
		Kind:       c.Model,
		InputShape: append([]int(nil), inputShape...),
		Hidden:     append([]int(nil), c.Hidden...),
		Classes:    classes,
		Init:       c.Init,
	}
	if c.Model == nn.KindConv {
		mc.Kernel, mc.Stride, mc.Padding = c.Kernel, c.Stride, c.Padding
	}
	return mc
}
