package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/lox/tdomcomposite/internal/raster"
)

// Scene is one acquisition: co-registered bands on a shared grid.
// Scenes are treated as immutable; the With* helpers return copies.
type Scene struct {
	ID          string
	Sensor      Sensor
	AcquiredAt  time.Time
	Grid        raster.Grid
	Bands       []raster.Band
	Placeholder bool // fully-masked stand-in produced by the emptiness guard
}

func (s Scene) Validate() error {
	if err := s.Grid.Validate(); err != nil {
		return fmt.Errorf("scene %s: %w", s.ID, err)
	}
	n := s.Grid.Len()
	for _, b := range s.Bands {
		if len(b.Values) != n || len(b.Valid) != n {
			return fmt.Errorf("scene %s: band %s has %d values / %d mask entries, want %d",
				s.ID, b.Name, len(b.Values), len(b.Valid), n)
		}
	}
	return nil
}

func (s Scene) BandNames() []string {
	names := make([]string, len(s.Bands))
	for i, b := range s.Bands {
		names[i] = b.Name
	}
	return names
}

func (s Scene) Band(name string) (raster.Band, bool) {
	for _, b := range s.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return raster.Band{}, false
}

// WithBand returns a copy with b appended, replacing any band of the same name.
func (s Scene) WithBand(b raster.Band) Scene {
	out := s
	out.Bands = make([]raster.Band, 0, len(s.Bands)+1)
	for _, existing := range s.Bands {
		if existing.Name != b.Name {
			out.Bands = append(out.Bands, existing)
		}
	}
	out.Bands = append(out.Bands, b)
	return out
}

// WithMask ANDs keep into every band's validity.
func (s Scene) WithMask(keep raster.Mask) Scene {
	out := s
	out.Bands = make([]raster.Band, len(s.Bands))
	for i, b := range s.Bands {
		out.Bands[i] = b.WithMask(keep)
	}
	return out
}

// Select picks bands by index and renames them, in order.
func (s Scene) Select(indices []int, names []string) (Scene, error) {
	if len(indices) != len(names) {
		return Scene{}, fmt.Errorf("select: %d indices for %d names", len(indices), len(names))
	}
	out := s
	out.Bands = make([]raster.Band, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(s.Bands) {
			return Scene{}, fmt.Errorf("select: scene %s has no band index %d", s.ID, idx)
		}
		out.Bands[i] = s.Bands[idx].Renamed(names[i])
	}
	return out, nil
}

// Remap converts a native-band scene to the shared target vocabulary.
func (s Scene) Remap() (Scene, error) {
	return s.Select(s.Sensor.BandRemap(), TargetBands)
}

// DayOfYear is the 1-based day of year of the acquisition (UTC).
func (s Scene) DayOfYear() int {
	return s.AcquiredAt.UTC().YearDay()
}

// Collection is an unordered multiset of scenes over one region.
type Collection []Scene

func (c Collection) Len() int { return len(c) }

// Count returns the number of real (non-placeholder) scenes.
func (c Collection) Count() int {
	n := 0
	for _, s := range c {
		if !s.Placeholder {
			n++
		}
	}
	return n
}

// Real drops placeholder scenes.
func (c Collection) Real() Collection {
	var out Collection
	for _, s := range c {
		if !s.Placeholder {
			out = append(out, s)
		}
	}
	return out
}

// FilterDate keeps scenes acquired in [r.Start, r.End).
func (c Collection) FilterDate(r DateRange) Collection {
	var out Collection
	for _, s := range c {
		if r.Contains(s.AcquiredAt) {
			out = append(out, s)
		}
	}
	return out
}

func (c Collection) FilterJulian(r JulianRange) Collection {
	var out Collection
	for _, s := range c {
		if r.Contains(s.DayOfYear()) {
			out = append(out, s)
		}
	}
	return out
}

// Map applies fn to each scene, returning a new collection.
func (c Collection) Map(fn func(Scene) Scene) Collection {
	out := make(Collection, len(c))
	for i, s := range c {
		out[i] = fn(s)
	}
	return out
}

func (c Collection) Merge(others ...Collection) Collection {
	out := append(Collection(nil), c...)
	for _, o := range others {
		out = append(out, o...)
	}
	return out
}

// SortedNewestFirst orders by acquisition time descending; ties break on ID
// so mosaics are reproducible.
func (c Collection) SortedNewestFirst() Collection {
	out := append(Collection(nil), c...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].AcquiredAt.After(out[j].AcquiredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
