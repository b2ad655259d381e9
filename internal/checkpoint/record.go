package checkpoint

import (
	"fmt"
	"math/rand"

	"github.com/neolearn/neolearn/internal/nn"
	"github.com/neolearn/neolearn/internal/optim"
	"github.com/neolearn/neolearn/internal/tensor"
)

// Record is a complete, host-resident training state snapshot.
//
// Params, M and V are index-aligned with the model's registry.
type Record struct {
	Config nn.ModelConfig
	Epoch  int // next epoch to run
	Params []*tensor.Tensor
	LR     float64
	Beta1  float64
	Beta2  float64
	Eps    float64
	Iter   int
	M      []*tensor.Tensor
	V      []*tensor.Tensor

	// Metrics of the epochs before Epoch. BestEpoch is -1 when none ran.
	BestAcc   float64
	BestEpoch int
	History   []EpochMetrics
	IterLoss  []float64 // training loss of every iteration, in order
}

// Capture copies the model parameters and optimizer state to the host.
// The metric fields start empty; the trainer fills them in.
//
// Moments that Adam has not allocated yet are captured as zeros, which is
// what the first Update would start from.
func Capture(model *nn.Model, adam *optim.Adam, epoch int) *Record {
	params := model.Params()
	st := adam.State()

	rec := &Record{
		Config: model.Config(),
		Epoch:  epoch,
		Params: toHost(params),
		LR:     st.LR,
		Beta1:  st.Beta1,
		Beta2:  st.Beta2,
		Eps:    st.Eps,
		Iter:   st.Iter,
		M:      toHost(st.M),
		V:      toHost(st.V),

		BestAcc:   -1,
		BestEpoch: -1,
	}
	if rec.M == nil {
		rec.M = zerosLike(rec.Params)
		rec.V = zerosLike(rec.Params)
	}
	return rec
}

// Restore overwrites model parameters and optimizer state from rec.
//
// The record must match the model exactly: same number of registry entries
// and the same shape at every index. Nothing is modified when the check
// fails. adam may be nil to restore weights only.
func Restore(rec *Record, model *nn.Model, adam *optim.Adam) error {
	params := model.Params()
	if err := checkAligned("params", rec.Params, params); err != nil {
		return err
	}
	if adam != nil {
		if err := checkAligned("m", rec.M, params); err != nil {
			return err
		}
		if err := checkAligned("v", rec.V, params); err != nil {
			return err
		}
	}

	for i, p := range params {
		if err := p.CopyFrom(rec.Params[i]); err != nil {
			return fmt.Errorf("%w: params.%d: %v", ErrSchemaMismatch, i, err)
		}
	}
	if adam == nil {
		return nil
	}
	dev := model.Device()
	return adam.LoadState(optim.State{
		LR:    rec.LR,
		Beta1: rec.Beta1,
		Beta2: rec.Beta2,
		Eps:   rec.Eps,
		Iter:  rec.Iter,
		M:     onDevice(rec.M, dev),
		V:     onDevice(rec.V, dev),
	})
}

// Resume loads a checkpoint and rebuilds the model and optimizer it describes.
func Resume(path string, dev tensor.Device) (*nn.Model, *optim.Adam, *Record, error) {
	rec, err := Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	// Initial weights are overwritten by Restore, so the seed is irrelevant.
	model, err := nn.NewModel(rec.Config, dev, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rebuild model: %w", err)
	}
	adam := optim.NewAdam(model, optim.AdamConfig{
		LR:    rec.LR,
		Beta1: rec.Beta1,
		Beta2: rec.Beta2,
		Eps:   rec.Eps,
	})
	if err := Restore(rec, model, adam); err != nil {
		return nil, nil, nil, err
	}
	return model, adam, rec, nil
}

func checkAligned(name string, got, want []*tensor.Tensor) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: %d %s tensors, model has %d parameters", ErrSchemaMismatch, len(got), name, len(want))
	}
	for i := range want {
		if !got[i].Shape().Equal(want[i].Shape()) {
			return fmt.Errorf("%w: %s.%d has shape %v, model expects %v",
				ErrSchemaMismatch, name, i, got[i].Shape(), want[i].Shape())
		}
	}
	return nil
}

func toHost(ts []*tensor.Tensor) []*tensor.Tensor {
	return onDevice(ts, tensor.CPU)
}

func onDevice(ts []*tensor.Tensor, dev tensor.Device) []*tensor.Tensor {
	if ts == nil {
		return nil
	}
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.OnDevice(dev)
	}
	return out
}

func zerosLike(ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = tensor.ZerosLike(t)
	}
	return out
}
