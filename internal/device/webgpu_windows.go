//go:build windows

package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/neolearn/neolearn/internal/tensor"
)

// webgpuTransfer stages tensors through WebGPU storage buffers.
//
// Layer kernels run on the host; a tensor tagged tensor.WebGPU carries the
// bytes that were read back from device memory.
type webgpuTransfer struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
}

func openWebGPU() (tr Transfer, err error) {
	// wgpu panics when the native library is missing.
	defer func() {
		if r := recover(); r != nil {
			tr = nil
			err = fmt.Errorf("%w: webgpu native library: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %v", ErrUnavailable, err)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrUnavailable, err)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrUnavailable)
	}

	return &webgpuTransfer{instance: instance, adapter: adapter, device: dev, queue: queue}, nil
}

func (w *webgpuTransfer) Device() tensor.Device { return tensor.WebGPU }

func (w *webgpuTransfer) ToDevice(ts ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	return w.roundTrip(tensor.WebGPU, ts)
}

func (w *webgpuTransfer) ToHost(ts ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	return w.roundTrip(tensor.CPU, ts)
}

func (w *webgpuTransfer) roundTrip(dst tensor.Device, ts []*tensor.Tensor) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		raw := encode(t.Data())
		buf := w.createBuffer(raw, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		back, err := w.readBuffer(buf, uint64(len(raw)))
		buf.Release()
		if err != nil {
			return nil, fmt.Errorf("webgpu: tensor %d: %w", i, err)
		}
		out[i] = tensor.New(decode(back), t.Shape(), dst)
	}
	return out, nil
}

// createBuffer creates a GPU buffer and uploads data through a mapped range.
func (w *webgpuTransfer) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()

	return buffer
}

// readBuffer copies a storage buffer into a mappable staging buffer and
// reads it back. Blocks until the queue has drained.
func (w *webgpuTransfer) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := w.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	w.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(w.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, size)
	result := make([]byte, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(result, unsafe.Slice((*byte)(mappedPtr), size))
	staging.Unmap()

	return result, nil
}

func (w *webgpuTransfer) Close() error {
	if w.queue != nil {
		w.queue.Release()
		w.queue = nil
	}
	if w.device != nil {
		w.device.Release()
		w.device = nil
	}
	if w.adapter != nil {
		w.adapter.Release()
		w.adapter = nil
	}
	if w.instance != nil {
		w.instance.Release()
		w.instance = nil
	}
	return nil
}

func encode(data []float64) []byte {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decode(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return out
}
