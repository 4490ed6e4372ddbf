// Package device resolves the compute device used by scoring backends.
//
// A device is resolved once per retriever and passed explicitly to every backend
// session; nothing re-queries it per call.
package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is a compute backend family
type Kind string

const (
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
)

// Auto selects the best available device
const Auto = "auto"

// Device is a resolved compute device
type Device struct {
	Kind Kind
	ID   int
}

// String renders the device the way it is written on the command line
func (d Device) String() string {
	if d.Kind == CUDA {
		return fmt.Sprintf("cuda:%d", d.ID)
	}
	return string(CPU)
}

// IsAccelerator reports whether the device is a GPU
func (d Device) IsAccelerator() bool {
	return d.Kind == CUDA
}

// Detector reports whether an accelerator is usable in this process
type Detector func() bool

// Resolve turns a selector ("auto", "cpu", "cuda", "cuda:1") into a device.
// "auto" picks CUDA device 0 when detect reports it usable, else CPU.
// An explicit "cuda" selector fails when detect reports no accelerator.
func Resolve(selector string, detect Detector) (Device, error) {
	s := strings.ToLower(strings.TrimSpace(selector))
	if s == "" {
		s = Auto
	}

	switch {
	case s == Auto:
		if detect != nil && detect() {
			return Device{Kind: CUDA}, nil
		}
		return Device{Kind: CPU}, nil
	case s == string(CPU):
		return Device{Kind: CPU}, nil
	case s == string(CUDA) || strings.HasPrefix(s, "cuda:"):
		id := 0
		if idx := strings.IndexByte(s, ':'); idx >= 0 {
			n, err := strconv.Atoi(s[idx+1:])
			if err != nil || n < 0 {
				return Device{}, fmt.Errorf("invalid device index in %q", selector)
			}
			id = n
		}
		if detect == nil || !detect() {
			return Device{}, fmt.Errorf("device %q requested but no CUDA provider is available", selector)
		}
		return Device{Kind: CUDA, ID: id}, nil
	default:
		return Device{}, fmt.Errorf("unknown device %q (want auto, cpu, cuda or cuda:N)", selector)
	}
}
