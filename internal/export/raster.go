package export

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/raster"
)

// RasterExt is the file extension of the composite raster format: a gzip
// stream holding one JSON header line followed by band-sequential
// little-endian samples.
const RasterExt = ".tdc.gz"

type rasterHeader struct {
	ID          string   `json:"id"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	West        float64  `json:"west"`
	North       float64  `json:"north"`
	PixelSize   float64  `json:"pixelSize"`
	CRS         string   `json:"crs"`
	ScaleMeters float64  `json:"scaleMeters,omitempty"`
	Bands       []string `json:"bands"`
	PixelType   string   `json:"pixelType"`
	ScaleFactor float64  `json:"scaleFactor"`
	NoData      int64    `json:"noData"`
}

// WriteRaster encodes enc to w.
func WriteRaster(w io.Writer, enc composite.Encoded, opts ImageOptions) error {
	crs := enc.Grid.CRS
	if opts.CRS != "" {
		crs = opts.CRS
	}
	hdr := rasterHeader{
		ID:          enc.ID,
		Width:       enc.Grid.Width,
		Height:      enc.Grid.Height,
		West:        enc.Grid.West,
		North:       enc.Grid.North,
		PixelSize:   enc.Grid.PixelSize,
		CRS:         crs,
		ScaleMeters: opts.ScaleMeters,
		Bands:       enc.BandNames,
		PixelType:   enc.PixelType.String(),
		ScaleFactor: enc.ScaleFactor,
		NoData:      enc.PixelType.NoData(),
	}

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bw := bufio.NewWriter(gz)
	buf := make([]byte, enc.PixelType.Size())
	for _, band := range enc.Samples {
		for _, v := range band {
			putSample(buf, enc.PixelType, v)
			if _, err := bw.Write(buf); err != nil {
				return fmt.Errorf("write samples: %w", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush samples: %w", err)
	}
	return gz.Close()
}

// ReadRaster decodes a raster written by WriteRaster. Samples equal to the
// nodata value come back invalid.
func ReadRaster(r io.Reader) (composite.Encoded, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return composite.Encoded{}, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	br := bufio.NewReader(gz)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return composite.Encoded{}, fmt.Errorf("read header: %w", err)
	}
	var hdr rasterHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return composite.Encoded{}, fmt.Errorf("decode header: %w", err)
	}
	pt, err := composite.ParsePixelType(hdr.PixelType)
	if err != nil {
		return composite.Encoded{}, err
	}

	enc := composite.Encoded{
		ID: hdr.ID,
		Grid: raster.Grid{
			Width:     hdr.Width,
			Height:    hdr.Height,
			West:      hdr.West,
			North:     hdr.North,
			PixelSize: hdr.PixelSize,
			CRS:       hdr.CRS,
		},
		BandNames:   hdr.Bands,
		PixelType:   pt,
		ScaleFactor: hdr.ScaleFactor,
		Samples:     make([][]int64, len(hdr.Bands)),
		Valid:       make([]raster.Mask, len(hdr.Bands)),
	}
	if err := enc.Grid.Validate(); err != nil {
		return composite.Encoded{}, err
	}

	n := enc.Grid.Len()
	buf := make([]byte, pt.Size())
	for bi := range hdr.Bands {
		samples := make([]int64, n)
		valid := make(raster.Mask, n)
		for i := range samples {
			if _, err := io.ReadFull(br, buf); err != nil {
				return composite.Encoded{}, fmt.Errorf("read band %s: %w", hdr.Bands[bi], err)
			}
			samples[i] = getSample(buf, pt)
			valid[i] = samples[i] != hdr.NoData
		}
		enc.Samples[bi] = samples
		enc.Valid[bi] = valid
	}
	return enc, nil
}

func putSample(buf []byte, t composite.PixelType, v int64) {
	switch t {
	case composite.Int32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
	case composite.UInt16:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	default:
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
	}
}

func getSample(buf []byte, t composite.PixelType) int64 {
	switch t {
	case composite.Int32:
		return int64(int32(binary.LittleEndian.Uint32(buf)))
	case composite.UInt16:
		return int64(binary.LittleEndian.Uint16(buf))
	default:
		return int64(int16(binary.LittleEndian.Uint16(buf)))
	}
}
