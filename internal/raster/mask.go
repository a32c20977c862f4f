package raster

// Mask is a per-pixel boolean layer over a Grid.
type Mask []bool

func NewMask(n int, v bool) Mask {
	m := make(Mask, n)
	if v {
		for i := range m {
			m[i] = true
		}
	}
	return m
}

func (m Mask) Clone() Mask {
	out := make(Mask, len(m))
	copy(out, m)
	return out
}

func (m Mask) And(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] && o[i]
	}
	return out
}

func (m Mask) Or(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] || o[i]
	}
	return out
}

func (m Mask) Not() Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = !m[i]
	}
	return out
}

func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Dilate grows the true region of m with a radius-1 circular structuring
// element (the pixel and its four edge neighbours), iterations times.
func Dilate(m Mask, g Grid, iterations int) Mask {
	cur := m.Clone()
	for it := 0; it < iterations; it++ {
		next := cur.Clone()
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				if !cur[g.Index(x, y)] {
					continue
				}
				if x > 0 {
					next[g.Index(x-1, y)] = true
				}
				if x < g.Width-1 {
					next[g.Index(x+1, y)] = true
				}
				if y > 0 {
					next[g.Index(x, y-1)] = true
				}
				if y < g.Height-1 {
					next[g.Index(x, y+1)] = true
				}
			}
		}
		cur = next
	}
	return cur
}
