package tensor

import (
	"fmt"
	"os"
	"strings"
)

// Device names where a tensor is placed.
type Device string

const (
	// CPU is host memory.
	CPU Device = "cpu"
	// CUDA is the default NVIDIA accelerator.
	CUDA Device = "cuda"
)

// nvidiaDriverPath is present whenever the NVIDIA kernel driver is loaded.
const nvidiaDriverPath = "/proc/driver/nvidia/version"

// cudaProbe reports whether a CUDA device is visible. Replaced in tests.
var cudaProbe = func() bool {
	if strings.ToLower(strings.TrimSpace(os.Getenv("FLAMBE_CUDA_AVAILABLE"))) == "true" {
		return true
	}
	_, err := os.Stat(nvidiaDriverPath)
	return err == nil
}

// ParseDevice parses "cpu", "cuda" or "cuda:<index>".
func ParseDevice(s string) (Device, error) {
	d := Device(strings.ToLower(strings.TrimSpace(s)))
	switch {
	case d == CPU, d == CUDA:
		return d, nil
	case strings.HasPrefix(string(d), "cuda:") && len(d) > len("cuda:"):
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q", s)
	}
}

// IsCUDA reports whether d names a CUDA device.
func (d Device) IsCUDA() bool {
	return d == CUDA || strings.HasPrefix(string(d), "cuda:")
}

// Available reports whether tensors can be placed on d.
func Available(d Device) bool {
	if d == CPU {
		return true
	}
	if d.IsCUDA() {
		return cudaProbe()
	}
	return false
}

// DefaultDevice returns CUDA when available and CPU otherwise.
func DefaultDevice() Device {
	if Available(CUDA) {
		return CUDA
	}
	return CPU
}
