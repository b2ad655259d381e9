package checkpoint

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrSchemaMismatch     = errors.New("checkpoint does not match model")
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidHeader      = errors.New("invalid checkpoint header")
)

// ValidationError provides detailed information about tensor table failures.
// It matches ErrInvalidHeader under errors.Is.
type ValidationError struct {
	Type    string // e.g. "offset_overlap", "out_of_bounds"
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Is reports ErrInvalidHeader as the sentinel for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidHeader
}
