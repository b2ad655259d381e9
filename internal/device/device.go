// Package device moves tensors between host memory and an accelerator.
//
// Training code never picks a device implicitly: the caller opens a Transfer
// once and threads its Device() through model construction, then moves
// batches with ToDevice and results back with ToHost.
//
//	tr, err := device.Open(tensor.WebGPU)
//	if err != nil { ... }
//	defer tr.Close()
//	model, _ := nn.NewModel(cfg, tr.Device(), rng)
//	xs, _ := tr.ToDevice(batch.X)
package device

import (
	"errors"
	"fmt"

	"github.com/neolearn/neolearn/internal/tensor"
)

// ErrUnavailable is returned when the requested device cannot be opened.
var ErrUnavailable = errors.New("device: not available")

// Transfer copies tensors between host memory and one device.
//
// Both directions return new tensors and leave their inputs untouched.
type Transfer interface {
	// Device is the device tensors are moved onto by ToDevice.
	Device() tensor.Device

	// ToDevice copies host tensors onto the device.
	ToDevice(ts ...*tensor.Tensor) ([]*tensor.Tensor, error)

	// ToHost copies device tensors back to host memory.
	ToHost(ts ...*tensor.Tensor) ([]*tensor.Tensor, error)

	// Close releases device resources.
	Close() error
}

// Open returns a Transfer for dev.
func Open(dev tensor.Device) (Transfer, error) {
	switch dev {
	case tensor.CPU:
		return Host{}, nil
	case tensor.WebGPU:
		return openWebGPU()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, dev)
	}
}

// Parse maps a device name ("cpu", "webgpu") to a tensor.Device.
func Parse(name string) (tensor.Device, error) {
	switch name {
	case "", "cpu", "CPU":
		return tensor.CPU, nil
	case "webgpu", "gpu", "WebGPU":
		return tensor.WebGPU, nil
	default:
		return 0, fmt.Errorf("unknown device %q", name)
	}
}

// Host is the identity transfer: tensors stay in host memory.
type Host struct{}

// Device returns tensor.CPU.
func (Host) Device() tensor.Device { return tensor.CPU }

// ToDevice returns host copies of ts.
func (Host) ToDevice(ts ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	return copyTo(tensor.CPU, ts), nil
}

// ToHost returns host copies of ts.
func (Host) ToHost(ts ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	return copyTo(tensor.CPU, ts), nil
}

// Close is a no-op.
func (Host) Close() error { return nil }

func copyTo(dev tensor.Device, ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.OnDevice(dev)
	}
	return out
}
