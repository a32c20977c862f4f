package raster

// Band is one named layer of values with its own validity mask.
type Band struct {
	Name   string
	Values []float64
	Valid  Mask
}

// NewBand returns a band of n invalid zero pixels.
func NewBand(name string, n int) Band {
	return Band{
		Name:   name,
		Values: make([]float64, n),
		Valid:  NewMask(n, false),
	}
}

// ConstantBand returns a fully valid band holding v everywhere.
func ConstantBand(name string, n int, v float64) Band {
	b := Band{
		Name:   name,
		Values: make([]float64, n),
		Valid:  NewMask(n, true),
	}
	for i := range b.Values {
		b.Values[i] = v
	}
	return b
}

func (b Band) At(i int) (float64, bool) {
	return b.Values[i], b.Valid[i]
}

func (b Band) Len() int {
	return len(b.Values)
}

// Clone deep-copies the band so callers can mutate the result freely.
func (b Band) Clone() Band {
	values := make([]float64, len(b.Values))
	copy(values, b.Values)
	return Band{Name: b.Name, Values: values, Valid: b.Valid.Clone()}
}

// Renamed returns a copy of the band under a new name, sharing no storage.
func (b Band) Renamed(name string) Band {
	c := b.Clone()
	c.Name = name
	return c
}

// WithMask keeps the values and ANDs the band's validity with keep.
func (b Band) WithMask(keep Mask) Band {
	c := b.Clone()
	c.Valid = c.Valid.And(keep)
	return c
}
