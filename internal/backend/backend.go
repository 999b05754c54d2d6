package backend

import (
	"fmt"
	"strings"
)

// Device is the compute backend bound to an engine for its whole lifetime.
type Device int

const (
	CPU Device = iota
	CUDA
	Metal
)

// Auto selects the full preference list.
const Auto = "auto"

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case Metal:
		return "metal"
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}

// Accelerator reports whether d is anything other than the CPU.
func (d Device) Accelerator() bool { return d != CPU }

// Normalize lower-cases and validates a --device value. Empty means auto.
func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case Auto, "cpu", "cuda", "metal":
		return backend, nil
	default:
		return "", fmt.Errorf("unknown device %q (expected auto, cpu, cuda, or metal)", backend)
	}
}

// Preferences returns the ordered device list for a --device value. CPU is
// always last so selection cannot come back empty.
func Preferences(name string) ([]Device, error) {
	n, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	switch n {
	case "cpu":
		return []Device{CPU}, nil
	case "cuda":
		return []Device{CUDA, CPU}, nil
	case "metal":
		return []Device{Metal, CPU}, nil
	default:
		return []Device{CUDA, Metal, CPU}, nil
	}
}
