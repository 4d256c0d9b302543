package temperature

import (
	"math"
	"strings"

	"github.com/md14454/gosensors"
)

// packageLabels are feature labels that identify the CPU package
// temperature across vendors.
var packageLabels = []string{
	"package id",
	"tctl",
	"tdie",
	"cpu",
}

// PackageSensor queries the libsensors chip table for the CPU package
// temperature.
type PackageSensor struct{}

func (sensor PackageSensor) GetLabel() string {
	return "lm-sensors CPU package temperature"
}

func (sensor PackageSensor) GetValue() (int, error) {
	gosensors.Init()
	defer gosensors.Cleanup()

	chips := gosensors.GetDetectedChips()
	for i := 0; i < len(chips); i++ {
		chip := chips[i]

		features := chip.GetFeatures()
		for j := 0; j < len(features); j++ {
			feature := features[j]

			if feature.Type != gosensors.FeatureTypeTemp {
				continue
			}
			if !isPackageLabel(feature.GetLabel()) {
				continue
			}

			subfeatures := feature.GetSubFeatures()
			for k := 0; k < len(subfeatures); k++ {
				subfeature := subfeatures[k]
				if subfeature.Type != gosensors.SubFeatureTypeTempInput {
					continue
				}

				value := subfeature.GetValue()
				if value <= 0 {
					continue
				}
				return int(math.Round(value)), nil
			}
		}
	}

	return 0, ErrNoReading
}

func isPackageLabel(label string) bool {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for _, candidate := range packageLabels {
		if strings.Contains(normalized, candidate) {
			return true
		}
	}
	return false
}
