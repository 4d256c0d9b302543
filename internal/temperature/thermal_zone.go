package temperature

import (
	"fmt"

	"github.com/ecgovern/ecgovern/internal/util"
)

// ThermalZoneSensor reads a sysfs thermal zone file reporting
// millidegrees Celsius.
type ThermalZoneSensor struct {
	Input string
}

func (sensor ThermalZoneSensor) GetLabel() string {
	return "thermal zone " + sensor.Input
}

func (sensor ThermalZoneSensor) GetValue() (int, error) {
	millidegrees, err := util.ReadIntFromFile(sensor.Input)
	if err != nil {
		return 0, fmt.Errorf("thermal zone %s: %w", sensor.Input, err)
	}
	if millidegrees < 0 {
		return 0, fmt.Errorf("thermal zone %s: negative reading %d", sensor.Input, millidegrees)
	}
	return millidegrees / 1000, nil
}
