package checkpoint

import (
	"time"

	"github.com/neolearn/neolearn/internal/nn"
)

// Format constants.
const (
	MagicBytes      = "NEOL"
	FormatVersion   = 1
	FixedHeaderSize = 64   // 0x40 bytes
	ChecksumSize    = 32   // SHA-256
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
	DataAlignment   = 64   // Tensor data starts on a 64-byte boundary
	MaxHeaderSize   = 100 * 1024 * 1024
	MaxTensorCount  = 100_000

	DTypeFloat64 = "float64"
)

// Flags stored in the fixed header.
const (
	FlagHasOptimizer uint32 = 1 << 0 // Adam moments are present
)

// Tensor name prefixes.
const (
	prefixParams = "params"
	prefixM      = "m"
	prefixV      = "v"
)

// Header is the JSON header of a .nlck file.
type Header struct {
	FormatVersion int            `json:"format_version"`
	CreatedAt     time.Time      `json:"created_at"`
	Config        nn.ModelConfig `json:"cfg"`
	Epoch         int            `json:"epoch"`
	LR            float64        `json:"lr"`
	Beta1         float64        `json:"beta1"`
	Beta2         float64        `json:"beta2"`
	Eps           float64        `json:"eps"`
	Iter          int            `json:"iter"`
	BestAcc       float64        `json:"best_acc"`
	BestEpoch     int            `json:"best_epoch"`
	History       []EpochMetrics `json:"history,omitempty"`
	IterLoss      []float64      `json:"iter_loss,omitempty"`
	Tensors       []TensorMeta   `json:"tensors"`
}

// EpochMetrics is the summary of one finished epoch. Iter is the number of
// training iterations completed at the end of the epoch.
type EpochMetrics struct {
	Epoch    int     `json:"epoch"`
	Iter     int     `json:"iter"`
	Loss     float64 `json:"loss"`
	TrainAcc float64 `json:"train_acc"`
	TestAcc  float64 `json:"test_acc"`
}

// TensorMeta describes a tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`   // e.g. "params.0", "m.3"
	DType  string `json:"dtype"`  // always "float64"
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from start of the data section
	Size   int64  `json:"size"`   // bytes
}
