package checkpoint

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/neolearn/neolearn/internal/tensor"
)

// Save writes rec to path in .nlck format, replacing any existing file.
func Save(path string, rec *Record) (err error) {
	//nolint:gosec // G304: File path comes from the run configuration
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	bw := bufio.NewWriter(file)
	if err := Encode(bw, rec); err != nil {
		return err
	}
	return bw.Flush()
}

// Encode writes rec to w in .nlck format.
func Encode(w io.Writer, rec *Record) error {
	header := Header{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		Config:        rec.Config,
		Epoch:         rec.Epoch,
		LR:            rec.LR,
		Beta1:         rec.Beta1,
		Beta2:         rec.Beta2,
		Eps:           rec.Eps,
		Iter:          rec.Iter,
		BestAcc:       rec.BestAcc,
		BestEpoch:     rec.BestEpoch,
		History:       rec.History,
		IterLoss:      rec.IterLoss,
	}

	// Lay out tensors back to back.
	var data []byte
	add := func(prefix string, ts []*tensor.Tensor) {
		for i, t := range ts {
			size := int64(t.NumElements() * 8)
			header.Tensors = append(header.Tensors, TensorMeta{
				Name:   fmt.Sprintf("%s.%d", prefix, i),
				DType:  DTypeFloat64,
				Shape:  []int(t.Shape().Clone()),
				Offset: int64(len(data)),
				Size:   size,
			})
			data = appendFloats(data, t.Data())
		}
	}
	add(prefixParams, rec.Params)
	add(prefixM, rec.M)
	add(prefixV, rec.V)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	checksum := contentChecksum(headerJSON, data)

	fixedHeader := make([]byte, FixedHeaderSize)

	// 0x00-0x03: Magic bytes
	copy(fixedHeader[0:4], MagicBytes)

	// 0x04-0x07: Version
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersion))

	// 0x08-0x0B: Flags
	flags := uint32(0)
	if len(rec.M) > 0 {
		flags |= FlagHasOptimizer
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)

	// 0x10-0x17: Header size
	binary.LittleEndian.PutUint64(fixedHeader[16:24], uint64(len(headerJSON)))

	// 0x18-0x1F: Data size
	binary.LittleEndian.PutUint64(fixedHeader[24:32], uint64(len(data)))

	// 0x20-0x3F: SHA-256 of header JSON and data
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}
	if pad := padding(len(headerJSON)); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// padding returns the zero bytes needed after a header of headerSize bytes
// to put the data section on a DataAlignment boundary.
func padding(headerSize int) int {
	pos := FixedHeaderSize + headerSize
	return (DataAlignment - pos%DataAlignment) % DataAlignment
}

// contentChecksum hashes the JSON header followed by the data section.
func contentChecksum(headerJSON, data []byte) [ChecksumSize]byte {
	h := sha256.New()
	h.Write(headerJSON)
	h.Write(data)
	var sum [ChecksumSize]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func appendFloats(buf []byte, vals []float64) []byte {
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}
