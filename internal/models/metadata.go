package models

import (
	"fmt"
	"time"
)

// MetadataRecord describes the provenance of one exported composite.
type MetadataRecord struct {
	ID                     string    `json:"id"`
	Region                 string    `json:"region"`
	BandNames              []string  `json:"bandNames"`
	DateStart              time.Time `json:"dateStart"`
	DateEnd                time.Time `json:"dateEnd"`
	JulianStart            int       `json:"julianStart"`
	JulianEnd              int       `json:"julianEnd"`
	CloudThreshold         float64   `json:"cloudThreshold"`
	CompositingMethod      string    `json:"compositingMethod"`
	CompositingParameters  string    `json:"compositingParameters"`
	Sensors                []string  `json:"sensors"`
	BufferCloudShadow      bool      `json:"bufferCloudShadow"`
	ImageCountComposite    int       `json:"imageCountComposite"`
	ImageCountShadow       int       `json:"imageCountShadow"`
	CRS                    string    `json:"crs"`
	CloudShadowStart       time.Time `json:"cloudShadowStart"`
	CloudShadowEnd         time.Time `json:"cloudShadowEnd"`
	ZShadowThreshold       float64   `json:"zShadowThreshold"`
	CloudExpandIterations  int       `json:"cloudExpandIterations"`
	ShadowExpandIterations int       `json:"shadowExpandIterations"`
}

// MetadataTable accumulates one record per (year, period) request.
type MetadataTable []MetadataRecord

// Concat folds per-request records into a table without mutating inputs.
func Concat(tables ...MetadataTable) MetadataTable {
	var n int
	for _, t := range tables {
		n += len(t)
	}
	out := make(MetadataTable, 0, n)
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}

// RecordID is the deterministic key region_startyear_endyear_julianstart_julianend.
func RecordID(region string, startYear, endYear, julianStart, julianEnd int) string {
	return fmt.Sprintf("%s_%d_%d_%d_%d", region, startYear, endYear, julianStart, julianEnd)
}
