package backend

import (
	"context"
	"fmt"

	"github.com/samcharles93/logtrains/internal/fallback"
	"github.com/samcharles93/logtrains/internal/logger"
)

// Initializer brings up an accelerator. It is supplied by the inference
// provider, which is the only component that knows how to open a device.
type Initializer func(Device) error

// Select walks prefs in order and returns the first device that is both
// advertised by the platform and initialises. Accelerator failures are
// logged at info level and never returned; CPU needs no initialisation and
// ends every chain.
func Select(log logger.Logger, prefs []Device, platform Platform, init Initializer) Device {
	if log == nil {
		log = logger.Discard()
	}
	attempts := make([]fallback.Attempt[Device], 0, len(prefs)+1)
	for _, d := range prefs {
		if d == CPU {
			continue
		}
		if !platform.Has(d) {
			log.Debug("accelerator not detected", "device", d.String())
			continue
		}
		attempts = append(attempts, fallback.Attempt[Device]{
			Name: d.String(),
			Run: func(context.Context) (Device, error) {
				if init == nil {
					return CPU, fmt.Errorf("no initializer for %s", d)
				}
				if err := init(d); err != nil {
					return CPU, err
				}
				return d, nil
			},
		})
	}
	attempts = append(attempts, fallback.Attempt[Device]{
		Name: CPU.String(),
		Run:  func(context.Context) (Device, error) { return CPU, nil },
	})

	dev, _, _ := fallback.First(context.Background(), attempts, func(name string, err error) {
		log.Info("accelerator unavailable, falling back", "device", name, "err", err)
	})
	log.Info("using device", "device", dev.String())
	return dev
}
