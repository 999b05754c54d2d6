// Package llamacpp runs GGUF models through llama.cpp using the yzma FFI
// bindings. The shared libraries are loaded on first use; when they cannot
// be found every operation reports ErrUnavailable.
package llamacpp

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/samcharles93/logtrains/internal/logger"
)

// ErrUnavailable is returned when the llama.cpp shared libraries could not
// be loaded.
var ErrUnavailable = errors.New("llama.cpp runtime unavailable")

// Factory opens llama.cpp models. It satisfies inference.ProviderFactory.
type Factory struct {
	// LibPath is the directory holding the llama.cpp shared libraries.
	LibPath string
	Log     logger.Logger
}

// DefaultLibPath honours LOGTRAINS_LIB, then ~/.logtrains/lib.
func DefaultLibPath() string {
	if p := os.Getenv("LOGTRAINS_LIB"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "lib")
	}
	return filepath.Join(home, ".logtrains", "lib")
}

func (f *Factory) log() logger.Logger {
	if f.Log == nil {
		return logger.Discard()
	}
	return f.Log
}
