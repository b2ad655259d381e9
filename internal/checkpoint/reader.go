package checkpoint

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/neolearn/neolearn/internal/tensor"
)

// Load reads and validates a .nlck file.
func Load(path string) (*Record, error) {
	//nolint:gosec // G304: File path comes from the run configuration
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	rec, err := Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// Decode reads a .nlck stream, verifying magic, version, flags, header
// size, checksum and the tensor table before building the Record.
func Decode(r io.Reader) (*Record, error) {
	fixedHeader := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixedHeader); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixedHeader[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixedHeader[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	flags := binary.LittleEndian.Uint32(fixedHeader[8:12])
	if flags&^FlagHasOptimizer != 0 {
		return nil, &ValidationError{Type: "flags", Details: fmt.Sprintf("unknown flag bits %#x", flags&^FlagHasOptimizer)}
	}
	headerSize := binary.LittleEndian.Uint64(fixedHeader[16:24])
	dataSize := binary.LittleEndian.Uint64(fixedHeader[24:32])
	var stored [ChecksumSize]byte
	copy(stored[:], fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header JSON: %w", err)
	}
	if _, err := io.CopyN(io.Discard, r, int64(padding(int(headerSize)))); err != nil {
		return nil, fmt.Errorf("failed to skip padding: %w", err)
	}
	if dataSize > math.MaxInt64 {
		return nil, &ValidationError{Type: "data_size", Details: fmt.Sprintf("%d bytes", dataSize)}
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(dataSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if uint64(len(data)) != dataSize {
		return nil, fmt.Errorf("%w: data section truncated (%d of %d bytes)", ErrChecksumMismatch, len(data), dataSize)
	}
	if contentChecksum(headerBytes, data) != stored {
		return nil, ErrChecksumMismatch
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if err := validateHeader(&header, int64(dataSize)); err != nil {
		return nil, err
	}
	return buildRecord(&header, data, flags&FlagHasOptimizer != 0)
}

func buildRecord(h *Header, data []byte, hasOptimizer bool) (*Record, error) {
	groups := map[string][]*tensor.Tensor{}
	counts := map[string]int{}
	for _, meta := range h.Tensors {
		prefix, _, _ := parseName(meta.Name)
		counts[prefix]++
	}
	for prefix, n := range counts {
		groups[prefix] = make([]*tensor.Tensor, n)
	}
	for _, meta := range h.Tensors {
		prefix, idx, _ := parseName(meta.Name)
		if idx >= len(groups[prefix]) || groups[prefix][idx] != nil {
			return nil, &ValidationError{Type: "tensor_index", Tensor: meta.Name, Details: "indices must be unique and contiguous from 0"}
		}
		vals := make([]float64, meta.Size/8)
		chunk := data[meta.Offset : meta.Offset+meta.Size]
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk[i*8:]))
		}
		groups[prefix][idx] = tensor.New(vals, tensor.Shape(meta.Shape), tensor.CPU)
	}

	rec := &Record{
		Config: h.Config,
		Epoch:  h.Epoch,
		Params: groups[prefixParams],
		LR:     h.LR,
		Beta1:  h.Beta1,
		Beta2:  h.Beta2,
		Eps:    h.Eps,
		Iter:   h.Iter,
		M:      groups[prefixM],
		V:      groups[prefixV],

		BestAcc:   h.BestAcc,
		BestEpoch: h.BestEpoch,
		History:   h.History,
		IterLoss:  h.IterLoss,
	}
	if !hasOptimizer {
		if len(rec.M) != 0 || len(rec.V) != 0 {
			return nil, &ValidationError{
				Type:    "flags",
				Details: fmt.Sprintf("%d m and %d v tensors stored without the optimizer flag", len(rec.M), len(rec.V)),
			}
		}
		rec.M, rec.V = zerosLike(rec.Params), zerosLike(rec.Params)
		return rec, nil
	}
	if len(rec.M) != len(rec.Params) || len(rec.V) != len(rec.Params) {
		return nil, &ValidationError{
			Type:    "moment_count",
			Details: fmt.Sprintf("%d params, %d m, %d v", len(rec.Params), len(rec.M), len(rec.V)),
		}
	}
	return rec, nil
}
