package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lox/tdomcomposite/internal/models"
)

var tableHeader = []string{
	"id", "region", "band_names", "date_start", "date_end", "julian_start", "julian_end",
	"cloud_threshold", "compositing_method", "compositing_parameters", "sensors",
	"buffer_cloud_shadow", "image_count_composite", "image_count_shadow", "crs",
	"cloud_shadow_start", "cloud_shadow_end", "z_shadow_threshold",
	"cloud_expand_iterations", "shadow_expand_iterations",
}

// WriteTable writes the metadata table as CSV, one row per record.
// List-valued columns are joined with ';'.
func WriteTable(w io.Writer, table models.MetadataTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range table {
		row := []string{
			r.ID,
			r.Region,
			strings.Join(r.BandNames, ";"),
			r.DateStart.UTC().Format(time.DateOnly),
			r.DateEnd.UTC().Format(time.DateOnly),
			strconv.Itoa(r.JulianStart),
			strconv.Itoa(r.JulianEnd),
			formatFloat(r.CloudThreshold),
			r.CompositingMethod,
			r.CompositingParameters,
			strings.Join(r.Sensors, ";"),
			strconv.FormatBool(r.BufferCloudShadow),
			strconv.Itoa(r.ImageCountComposite),
			strconv.Itoa(r.ImageCountShadow),
			r.CRS,
			r.CloudShadowStart.UTC().Format(time.DateOnly),
			r.CloudShadowEnd.UTC().Format(time.DateOnly),
			formatFloat(r.ZShadowThreshold),
			strconv.Itoa(r.CloudExpandIterations),
			strconv.Itoa(r.ShadowExpandIterations),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
