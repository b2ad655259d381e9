package nn

import "errors"

// Errors returned by layers and models. Match with errors.Is.
var (
	// ErrShapeMismatch: an input's dimensions disagree with the layer's parameters.
	ErrShapeMismatch = errors.New("nn: shape mismatch")

	// ErrDeviceMismatch: an input lives on a different device than the layer.
	ErrDeviceMismatch = errors.New("nn: device mismatch")

	// ErrNoForwardCache: Backward was called without a preceding Forward.
	ErrNoForwardCache = errors.New("nn: backward called without forward")

	// ErrInvalidConfig: a layer or model cannot be built from its configuration.
	ErrInvalidConfig = errors.New("nn: invalid configuration")

	// ErrInvalidLabel: a class label is outside [0, classes).
	ErrInvalidLabel = errors.New("nn: invalid label")
)
