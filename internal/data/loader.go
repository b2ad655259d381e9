package data

import (
	"fmt"
	"iter"
	"math/rand"
)

// Loader yields mini-batches of a Dataset.
//
// Example:
//
//	loader, err := data.NewLoader(train, 128, true, rng)
//	for i, batch := range loader.All() {
//	    logits, _ := model.Forward(batch.X)
//	    ...
//	}
type Loader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader creates a loader. Shuffling draws from rng; rng may be nil when
// shuffle is false.
func NewLoader(ds Dataset, batchSize int, shuffle bool, rng *rand.Rand) (*Loader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	if ds.X == nil || ds.Len() == 0 {
		return nil, ErrEmptyBatch
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("data: shuffling loader needs a random source")
	}
	return &Loader{ds: ds, batchSize: batchSize, shuffle: shuffle, rng: rng}, nil
}

// Len returns the number of batches per pass: ceil(n / batchSize).
func (l *Loader) Len() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() Dataset { return l.ds }

// All returns an iterator over one pass of (batch index, batch). Each call
// starts a new pass; a shuffling loader draws a fresh permutation per pass.
// The last batch holds the remainder and may be smaller than the batch size.
func (l *Loader) All() iter.Seq2[int, Batch] {
	return func(yield func(int, Batch) bool) {
		n := l.ds.Len()
		var order []int
		if l.shuffle {
			order = l.rng.Perm(n)
		} else {
			order = make([]int, n)
			for i := range order {
				order[i] = i
			}
		}
		for b := 0; b*l.batchSize < n; b++ {
			end := min((b+1)*l.batchSize, n)
			if !yield(b, l.ds.Gather(order[b*l.batchSize:end])) {
				return
			}
		}
	}
}
