//go:build !windows

package device

import "fmt"

func openWebGPU() (Transfer, error) {
	return nil, fmt.Errorf("%w: webgpu transfer is only built on windows", ErrUnavailable)
}
