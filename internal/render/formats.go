// Package render provides the element model, the element collector, and a
// software renderer compositing into XRGB8888 buffers.
package render

// Fourcc is a DRM pixel format code
type Fourcc uint32

func fourcc(a, b, c, d byte) Fourcc {
	return Fourcc(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	FourccXrgb8888 = fourcc('X', 'R', '2', '4')
	FourccXbgr8888 = fourcc('X', 'B', '2', '4')
	FourccArgb8888 = fourcc('A', 'R', '2', '4')
	FourccAbgr8888 = fourcc('A', 'B', '2', '4')
)

// SupportedColorFormats are the scanout formats offered to the display, in
// preference order.
var SupportedColorFormats = []Fourcc{
	FourccXrgb8888,
	FourccXbgr8888,
	FourccArgb8888,
	FourccAbgr8888,
}

// Modifier describes the tiling/compression layout of a GPU buffer
type Modifier uint64

const (
	// ModifierLinear is plain row-major layout
	ModifierLinear Modifier = 0
	// ModifierInvalid means "no modifier": legacy allocation paths
	ModifierInvalid Modifier = 0x00ffffffffffffff
)

// Intel modifier encoding: vendor 0x01 in the top byte
const (
	ModifierI915YTiledCCS         Modifier = (0x01 << 56) | 4
	ModifierI915YTiledGen12RcCCS  Modifier = (0x01 << 56) | 6
	ModifierI915YTiledGen12McCCS  Modifier = (0x01 << 56) | 7
)

// Format pairs a fourcc with a modifier
type Format struct {
	Code     Fourcc
	Modifier Modifier
}

// FormatSet is an ordered set of formats
type FormatSet []Format

// Contains reports whether the set holds the exact format
func (s FormatSet) Contains(f Format) bool {
	for _, have := range s {
		if have == f {
			return true
		}
	}
	return false
}

// FilterRenderFormats removes modifiers known to break direct scanout.
// The Intel Y-tiled CCS compression variants have historical driver issues
// when scanned out directly.
func FilterRenderFormats(formats FormatSet) FormatSet {
	out := make(FormatSet, 0, len(formats))
	for _, f := range formats {
		switch f.Modifier {
		case ModifierI915YTiledCCS, ModifierI915YTiledGen12RcCCS, ModifierI915YTiledGen12McCCS:
			continue
		}
		out = append(out, f)
	}
	return out
}

// NoModifierSubset keeps only formats without an explicit modifier, for the
// fallback path when compositor construction fails with the full set.
func NoModifierSubset(formats FormatSet) FormatSet {
	out := FormatSet{}
	for _, f := range formats {
		if f.Modifier == ModifierInvalid {
			out = append(out, f)
		}
	}
	return out
}
