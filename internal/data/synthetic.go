package data

import (
	"fmt"
	"math/rand"

	"github.com/neolearn/neolearn/internal/tensor"
)

// BlobsConfig describes a synthetic classification problem.
type BlobsConfig struct {
	Samples  int     // total samples, spread evenly over classes
	Classes  int     // number of Gaussian blobs
	Features int     // dimensionality of each sample
	Spread   float64 // per-feature standard deviation around the centre
}

// Blobs draws Samples points from Classes isotropic Gaussian blobs.
//
// Centres are drawn from N(0, 3²) per feature, so blobs are well separated
// for small Spread. Sample i has label i % Classes.
func Blobs(cfg BlobsConfig, rng *rand.Rand, dev tensor.Device) (Dataset, error) {
	if cfg.Samples < 1 || cfg.Classes < 1 || cfg.Features < 1 || cfg.Spread < 0 {
		return Dataset{}, fmt.Errorf("%w: blobs %+v", ErrEmptyBatch, cfg)
	}

	centres := make([][]float64, cfg.Classes)
	for c := range centres {
		centres[c] = make([]float64, cfg.Features)
		for j := range centres[c] {
			centres[c][j] = rng.NormFloat64() * 3
		}
	}

	x := make([]float64, cfg.Samples*cfg.Features)
	labels := make([]int, cfg.Samples)
	for i := range labels {
		c := i % cfg.Classes
		labels[i] = c
		row := x[i*cfg.Features : (i+1)*cfg.Features]
		for j := range row {
			row[j] = centres[c][j] + rng.NormFloat64()*cfg.Spread
		}
	}
	return NewDataset(tensor.New(x, tensor.Shape{cfg.Samples, cfg.Features}, dev), labels)
}
