package train

import "github.com/neolearn/neolearn/internal/checkpoint"

// Calculator accumulates a running mean loss and an accuracy count over
// one pass of a loader.
type Calculator struct {
	lossSum float64
	batches int
	correct int
	seen    int
}

// AddLoss records one batch loss.
func (c *Calculator) AddLoss(loss float64) {
	c.lossSum += loss
	c.batches++
}

// AddAccuracy records correct predictions out of n samples.
func (c *Calculator) AddAccuracy(correct, n int) {
	c.correct += correct
	c.seen += n
}

// Loss returns the mean of the recorded batch losses, or 0.
func (c *Calculator) Loss() float64 {
	if c.batches == 0 {
		return 0
	}
	return c.lossSum / float64(c.batches)
}

// Accuracy returns correct/seen, or 0.
func (c *Calculator) Accuracy() float64 {
	if c.seen == 0 {
		return 0
	}
	return float64(c.correct) / float64(c.seen)
}

// Reset clears all counters.
func (c *Calculator) Reset() { *c = Calculator{} }

// EpochStats is the summary of one epoch.
type EpochStats struct {
	Epoch    int
	Iter     int     // training iterations completed at the end of the epoch
	Loss     float64 // mean training batch loss
	TrainAcc float64
	TestAcc  float64
}

// History collects per-epoch stats and per-iteration losses and tracks the
// best test accuracy.
type History struct {
	Epochs    []EpochStats
	IterLoss  []float64
	BestAcc   float64
	BestEpoch int
}

// NewHistory returns an empty history whose first Record always counts as best.
func NewHistory() *History {
	return &History{BestAcc: -1, BestEpoch: -1}
}

// HistoryFromRecord rebuilds the history saved in a checkpoint, so a
// resumed run keeps its best accuracy and its earlier curves.
func HistoryFromRecord(rec *checkpoint.Record) *History {
	h := &History{
		Epochs:    make([]EpochStats, len(rec.History)),
		IterLoss:  append([]float64(nil), rec.IterLoss...),
		BestAcc:   rec.BestAcc,
		BestEpoch: rec.BestEpoch,
	}
	for i, m := range rec.History {
		h.Epochs[i] = EpochStats(m)
	}
	return h
}

// Clone returns a deep copy of h.
func (h *History) Clone() *History {
	c := *h
	c.Epochs = append([]EpochStats(nil), h.Epochs...)
	c.IterLoss = append([]float64(nil), h.IterLoss...)
	return &c
}

// AddIteration appends one training batch loss.
func (h *History) AddIteration(loss float64) {
	h.IterLoss = append(h.IterLoss, loss)
}

// Record appends s and reports whether its test accuracy is at least the
// best seen so far. Ties count as improvements so the newest weights win.
func (h *History) Record(s EpochStats) bool {
	h.Epochs = append(h.Epochs, s)
	if s.TestAcc >= h.BestAcc {
		h.BestAcc = s.TestAcc
		h.BestEpoch = s.Epoch
		return true
	}
	return false
}

// Export copies the history into rec's metric fields.
func (h *History) Export(rec *checkpoint.Record) {
	rec.BestAcc, rec.BestEpoch = h.BestAcc, h.BestEpoch
	rec.IterLoss = append([]float64(nil), h.IterLoss...)
	rec.History = make([]checkpoint.EpochMetrics, len(h.Epochs))
	for i, s := range h.Epochs {
		rec.History[i] = checkpoint.EpochMetrics(s)
	}
}
