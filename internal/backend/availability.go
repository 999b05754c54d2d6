package backend

import (
	"os"
	"runtime"
	"strings"
)

// Platform holds the capability flags selection is deterministic over.
type Platform struct {
	CUDA  bool
	Metal bool
}

var cudaMarkers = []string{
	"/proc/driver/nvidia/version",
	"/dev/nvidiactl",
	`C:\Windows\System32\nvcuda.dll`,
}

// DetectPlatform inspects the host. CUDA is reported when the NVIDIA driver
// is visible and CUDA_VISIBLE_DEVICES does not hide every device; Metal is
// reported on darwin.
func DetectPlatform() Platform {
	return Platform{
		CUDA:  detectCUDA(),
		Metal: runtime.GOOS == "darwin",
	}
}

// Has reports whether the platform advertises d.
func (p Platform) Has(d Device) bool {
	switch d {
	case CPU:
		return true
	case CUDA:
		return p.CUDA
	case Metal:
		return p.Metal
	default:
		return false
	}
}

// Available returns a comma-separated list of detected devices.
func (p Platform) Available() string {
	entries := []string{CPU.String()}
	for _, d := range []Device{CUDA, Metal} {
		if p.Has(d) {
			entries = append(entries, d.String())
		}
	}
	return strings.Join(entries, ",")
}

func detectCUDA() bool {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		if v = strings.TrimSpace(v); v == "" || v == "-1" {
			return false
		}
	}
	switch runtime.GOOS {
	case "linux", "windows":
	default:
		return false
	}
	for _, p := range cudaMarkers {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
