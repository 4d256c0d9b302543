package configuration

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Temperature is a threshold value in whole degrees Celsius.
type Temperature int

// temperatureHookFunc returns a mapstructure decode hook that accepts
// temperature values given as plain integers, floats, or strings like
// "80", "80C" and "80°C".
func temperatureHookFunc() mapstructure.DecodeHookFuncType {
	temperatureType := reflect.TypeOf(Temperature(0))

	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != temperatureType {
			return data, nil
		}

		switch v := data.(type) {
		case int:
			return Temperature(v), nil
		case int64:
			return Temperature(v), nil
		case float64:
			return Temperature(int(v)), nil
		case string:
			return parseTemperature(v)
		}
		return data, nil
	}
}

func parseTemperature(value string) (Temperature, error) {
	text := strings.ToUpper(strings.TrimSpace(value))
	text = strings.TrimSuffix(text, "C")
	text = strings.TrimSuffix(text, "°")
	text = strings.TrimSpace(text)

	number, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("cannot parse temperature value %q", value)
	}
	return Temperature(number), nil
}
