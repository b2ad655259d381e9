// Package main provides the neolearn training CLI.
//
// Usage:
//
//	neolearn -data ./data -epochs 10 -hidden 128,64
//	neolearn -config run.yaml -device webgpu
//	neolearn -loads -weights runs/x/last.nlck -epochs 20
//
// Without -data the run uses a synthetic Gaussian-blob problem. With -loads
// the model kind, input shape and class count come from the checkpoint.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/neolearn/neolearn/internal/checkpoint"
	"github.com/neolearn/neolearn/internal/config"
	"github.com/neolearn/neolearn/internal/device"
	"github.com/neolearn/neolearn/internal/nn"
	"github.com/neolearn/neolearn/internal/optim"
	"github.com/neolearn/neolearn/internal/train"
)

const version = "v0.1.0"

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(&cfg, logger); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dev, err := device.Parse(cfg.Device)
	if err != nil {
		return err
	}
	tr, err := device.Open(dev)
	if err != nil {
		return err
	}
	defer tr.Close() //nolint:errcheck // best effort on exit

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: reproducible training, not crypto

	var (
		model *nn.Model
		adam  *optim.Adam
		rec   *checkpoint.Record
	)
	if cfg.Loads {
		model, adam, rec, err = checkpoint.Resume(cfg.WeightPath, tr.Device())
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		if err := adoptLayout(cfg, rec.Config); err != nil {
			return err
		}
		logger.Info("resumed", "path", cfg.WeightPath, "epoch", rec.Epoch, "iter", rec.Iter)
	}

	trainSet, testSet, classes, err := loadData(cfg, rng, tr)
	if err != nil {
		return err
	}

	opts := train.Options{
		Epochs:   cfg.Epochs,
		Project:  cfg.ProjectDir(),
		NoSave:   cfg.NoSave,
		NoPlot:   cfg.NoPlot,
		LogEvery: cfg.LogEvery,
	}
	if rec != nil {
		if trainSet, err = fitInput(trainSet, rec.Config.InputShape); err != nil {
			return err
		}
		if testSet, err = fitInput(testSet, rec.Config.InputShape); err != nil {
			return err
		}
		opts.StartEpoch = rec.Epoch
		opts.History = train.HistoryFromRecord(rec)
	} else {
		mc := cfg.ModelConfig(trainSet.SampleShape(), classes)
		model, err = nn.NewModel(mc, tr.Device(), rng)
		if err != nil {
			return err
		}
		adam = optim.NewAdam(model, optim.AdamConfig{LR: cfg.LR})
	}
	logger.Info("model ready", "kind", model.Config().Kind, "device", tr.Device(), "params", model.NumParams())

	trainLoader, err := newLoader(trainSet, cfg.BatchSize, true, rng)
	if err != nil {
		return err
	}
	testLoader, err := newLoader(testSet, cfg.BatchSize, false, nil)
	if err != nil {
		return err
	}

	trainer, err := train.New(model, adam, trainLoader, testLoader, opts, logger)
	if err != nil {
		return err
	}
	history, err := trainer.Run()
	if err != nil {
		return err
	}
	if n := len(history.Epochs); n > 0 {
		logger.Info("training complete",
			"best_acc", history.BestAcc,
			"best_epoch", history.BestEpoch+1,
			"final_test_acc", history.Epochs[n-1].TestAcc)
	}

	if cfg.Saves {
		final := checkpoint.Capture(model, adam, max(cfg.Epochs, opts.StartEpoch))
		history.Export(final)
		if err := checkpoint.Save(cfg.WeightPath, final); err != nil {
			return err
		}
		logger.Info("weights saved", "path", cfg.WeightPath)
	}
	return nil
}

// parseFlags layers defaults, the optional -config file and explicit flags.
func parseFlags(args []string) (config.Config, error) {
	cfg := config.Default()
	fs := flag.NewFlagSet("neolearn", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML run configuration")
	showVersion := fs.Bool("version", false, "Print version and exit")
	bindFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if *showVersion {
		fmt.Printf("neolearn %s\n", version)
		os.Exit(0)
	}
	if *configPath == "" {
		return cfg, nil
	}

	fileCfg, err := config.LoadFile(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	overlay := flag.NewFlagSet("overlay", flag.ContinueOnError)
	bindFlags(overlay, &fileCfg)
	fs.Visit(func(f *flag.Flag) {
		if overlay.Lookup(f.Name) == nil {
			return
		}
		if setErr := overlay.Set(f.Name, f.Value.String()); setErr != nil && err == nil {
			err = fmt.Errorf("-%s: %w", f.Name, setErr)
		}
	})
	return fileCfg, err
}

func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.Float64Var(&cfg.LR, "lr", cfg.LR, "Learning rate for Adam")
	fs.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "Number of training epochs")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Batch size")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed for init, shuffling and synthetic data")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Model kind: linear or conv")
	fs.Var((*intList)(&cfg.Hidden), "hidden", "Comma-separated hidden widths (channels for conv)")
	fs.StringVar(&cfg.Init, "init", cfg.Init, "Weight init: xavier, he or a std such as 0.01")
	fs.IntVar(&cfg.Kernel, "kernel", cfg.Kernel, "Conv kernel size")
	fs.IntVar(&cfg.Stride, "stride", cfg.Stride, "Conv stride")
	fs.IntVar(&cfg.Padding, "padding", cfg.Padding, "Conv zero padding")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory with MNIST IDX files (empty = synthetic)")
	fs.BoolVar(&cfg.Loads, "loads", cfg.Loads, "Resume from -weights")
	fs.BoolVar(&cfg.Saves, "saves", cfg.Saves, "Write the final state to -weights")
	fs.StringVar(&cfg.WeightPath, "weights", cfg.WeightPath, "Checkpoint path for -loads/-saves")
	fs.StringVar(&cfg.Project, "project", cfg.Project, "Output directory (default runs/<uuid>)")
	fs.BoolVar(&cfg.NoSave, "nosave", cfg.NoSave, "Do not write last/best checkpoints")
	fs.BoolVar(&cfg.NoPlot, "noplot", cfg.NoPlot, "Do not write loss/accuracy plots")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Device: cpu or webgpu")
	fs.IntVar(&cfg.LogEvery, "log-every", cfg.LogEvery, "Iterations between progress lines (0 = off)")
}

// intList is a flag.Value for comma-separated integers.
type intList []int

func (l *intList) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	*l = out
	return nil
}
