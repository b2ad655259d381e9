package checkpoint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/neolearn/neolearn/internal/tensor"
)

// validateHeader checks the tensor table before any data is decoded.
func validateHeader(h *Header, dataSize int64) error {
	if h.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: header declares version %d", ErrUnsupportedVersion, h.FormatVersion)
	}
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}
	for _, t := range h.Tensors {
		if err := validateTensorMeta(t); err != nil {
			return err
		}
	}
	return validateTensorOffsets(h.Tensors, dataSize)
}

func validateTensorMeta(t TensorMeta) error {
	if _, _, err := parseName(t.Name); err != nil {
		return err
	}
	if t.DType != DTypeFloat64 {
		return &ValidationError{Type: "dtype", Tensor: t.Name, Details: fmt.Sprintf("got %q, want %q", t.DType, DTypeFloat64)}
	}
	shape := tensor.Shape(t.Shape)
	if err := shape.Validate(); err != nil {
		return &ValidationError{Type: "shape", Tensor: t.Name, Details: err.Error()}
	}
	if int64(shape.NumElements())*8 != t.Size {
		return &ValidationError{
			Type:    "size",
			Tensor:  t.Name,
			Details: fmt.Sprintf("shape %v needs %d bytes, table says %d", shape, shape.NumElements()*8, t.Size),
		}
	}
	return nil
}

// validateTensorOffsets checks for overlapping tensor regions and
// out-of-bounds access.
func validateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}

// parseName splits "params.3" into ("params", 3).
func parseName(name string) (string, int, error) {
	prefix, num, ok := strings.Cut(name, ".")
	if ok {
		switch prefix {
		case prefixParams, prefixM, prefixV:
			if idx, err := strconv.Atoi(num); err == nil && idx >= 0 && strconv.Itoa(idx) == num {
				return prefix, idx, nil
			}
		}
	}
	return "", 0, &ValidationError{Type: "invalid_name", Tensor: name, Details: "want params.<i>, m.<i> or v.<i>"}
}
