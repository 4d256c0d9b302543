package temperature

import (
	"errors"

	"github.com/ecgovern/ecgovern/internal/ui"
)

// ErrNoReading is returned when no upstream reader produced a usable
// temperature. Callers must treat this as "unknown", never as 0°C.
var ErrNoReading = errors.New("no temperature reading available")

type Source interface {
	GetLabel() string

	// GetValue returns the current CPU temperature in whole degrees
	// Celsius, always non-negative.
	GetValue() (int, error)
}

// FallbackSource tries its upstream readers in order and returns the
// first successful reading.
type FallbackSource struct {
	Sources []Source
}

func (source FallbackSource) GetLabel() string {
	return "CPU temperature"
}

func (source FallbackSource) GetValue() (int, error) {
	for _, upstream := range source.Sources {
		value, err := upstream.GetValue()
		if err != nil {
			ui.Debug("Reader '%s' produced no value: %v", upstream.GetLabel(), err)
			continue
		}
		return value, nil
	}
	return 0, ErrNoReading
}

// NewCpuTemperatureSource returns the default reader chain: the
// libsensors package temperature first, the raw thermal zone as fallback.
func NewCpuTemperatureSource(thermalZonePath string) Source {
	return FallbackSource{
		Sources: []Source{
			PackageSensor{},
			ThermalZoneSensor{Input: thermalZonePath},
		},
	}
}
