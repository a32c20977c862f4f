package models

import (
	"fmt"
	"strings"
)

// Sensor is the closed set of Landsat instruments the compositor understands.
type Sensor int

const (
	SensorL5 Sensor = iota + 1
	SensorL7
	SensorL8
)

// Target band vocabulary every sensor is remapped onto.
const (
	BandBlue  = "blue"
	BandGreen = "green"
	BandRed   = "red"
	BandNIR   = "nir"
	BandSWIR1 = "swir1"
	BandTemp  = "temp"
	BandSWIR2 = "swir2"

	BandShadowSum = "shadowSum"
	BandYear      = "year"
)

var TargetBands = []string{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR1, BandTemp, BandSWIR2}

// ExportBands are the reflectance bands written to the scaled output raster.
var ExportBands = []string{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR1, BandSWIR2}

var AllSensors = []Sensor{SensorL5, SensorL7, SensorL8}

type sensorSpec struct {
	name         string
	collectionID string
	spacecraft   string
	nativeBands  []string
	remap        []int // native band index for each entry of TargetBands
}

var sensorSpecs = [...]sensorSpec{
	SensorL5: {
		name:         "L5",
		collectionID: "LT5_L1T",
		spacecraft:   "Landsat5",
		nativeBands:  []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7"},
		remap:        []int{0, 1, 2, 3, 4, 5, 6},
	},
	SensorL7: {
		name:         "L7",
		collectionID: "LE7_L1T",
		spacecraft:   "Landsat7",
		nativeBands:  []string{"B1", "B2", "B3", "B4", "B5", "B6_VCID_1", "B6_VCID_2", "B7"},
		remap:        []int{0, 1, 2, 3, 4, 5, 7},
	},
	SensorL8: {
		name:         "L8",
		collectionID: "LC8_L1T",
		spacecraft:   "Landsat8",
		nativeBands:  []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8", "B9", "B10", "B11"},
		remap:        []int{1, 2, 3, 4, 5, 9, 6},
	},
}

func (s Sensor) spec() sensorSpec {
	if s < SensorL5 || s > SensorL8 {
		panic(fmt.Sprintf("models: invalid sensor %d", int(s)))
	}
	return sensorSpecs[s]
}

func (s Sensor) Valid() bool {
	return s >= SensorL5 && s <= SensorL8
}

func (s Sensor) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Sensor(%d)", int(s))
	}
	return s.spec().name
}

// CollectionID is the archive collection holding this sensor's L1T scenes.
func (s Sensor) CollectionID() string { return s.spec().collectionID }

func (s Sensor) Spacecraft() string { return s.spec().spacecraft }

// NativeBands lists the band names as delivered by the archive.
func (s Sensor) NativeBands() []string {
	return append([]string(nil), s.spec().nativeBands...)
}

// BandRemap returns, for each TargetBands entry, the native band index.
func (s Sensor) BandRemap() []int {
	return append([]int(nil), s.spec().remap...)
}

func (s Sensor) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid sensor %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Sensor) UnmarshalText(b []byte) error {
	parsed, err := ParseSensor(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSensor accepts the short identifiers L5, L7 and L8 (case-insensitive).
func ParseSensor(name string) (Sensor, error) {
	for _, s := range AllSensors {
		if strings.EqualFold(name, s.String()) {
			return s, nil
		}
	}
	return 0, &ConfigurationError{Field: "candidate_sensors", Reason: fmt.Sprintf("unsupported sensor %q", name)}
}

// SensorForSpacecraft maps an archive spacecraft id (e.g. "Landsat7") to its sensor.
func SensorForSpacecraft(spacecraft string) (Sensor, bool) {
	for _, s := range AllSensors {
		if s.Spacecraft() == spacecraft {
			return s, true
		}
	}
	return 0, false
}

func SensorNames(sensors []Sensor) []string {
	names := make([]string, len(sensors))
	for i, s := range sensors {
		names[i] = s.String()
	}
	return names
}
