package ingest

import (
	"github.com/lox/tdomcomposite/internal/models"
)

const (
	FlagBandCountMismatch     = "band_count_mismatch"
	FlagReflectanceOutOfRange = "reflectance_out_of_range"
	FlagTemperatureOutOfRange = "temperature_out_of_range"
	FlagNoValidPixels         = "no_valid_pixels"
)

// thermalBands are each sensor's native brightness-temperature bands, in
// Kelvin. Landsat 8 B6 is SWIR1, not thermal.
var thermalBands = map[models.Sensor]map[string]bool{
	models.SensorL5: {"B6": true},
	models.SensorL7: {"B6_VCID_1": true, "B6_VCID_2": true},
	models.SensorL8: {"B10": true, "B11": true},
}

// ValidateScene returns quality flags for a native-band scene. Flags are
// advisory; masking decides what is used.
func ValidateScene(s models.Scene) []string {
	var flags []string

	if len(s.Bands) != len(s.Sensor.NativeBands()) {
		flags = append(flags, FlagBandCountMismatch)
	}

	var reflOut, tempOut bool
	valid := 0
	for _, b := range s.Bands {
		thermal := thermalBands[s.Sensor][b.Name]
		for i, v := range b.Values {
			if !b.Valid[i] {
				continue
			}
			valid++
			if thermal {
				if v < 150 || v > 400 {
					tempOut = true
				}
			} else if v < -0.1 || v > 1.6 {
				reflOut = true
			}
		}
	}

	if reflOut {
		flags = append(flags, FlagReflectanceOutOfRange)
	}
	if tempOut {
		flags = append(flags, FlagTemperatureOutOfRange)
	}
	if valid == 0 {
		flags = append(flags, FlagNoValidPixels)
	}
	return flags
}
