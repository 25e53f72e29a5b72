package tiling

import (
	"fmt"
	"sort"

	"diffusiond/internal/latent"
)

// Tile is a processed latent window and where it belongs.
type Tile struct {
	Rect   Rect
	Tensor *latent.Tensor
}

// FeatherDivisor sets the feather band to 1/8 of the tile side.
const FeatherDivisor = 8

// Stitch composites tiles into a zero tensor of the given shape. Tiles are
// applied in row-major order; a tile not at the left edge fades in over
// width/8 columns and a tile not at the top edge over height/8 rows, so later
// tiles cross-fade over the overlap band of earlier ones. A band never
// extends past what earlier tiles already cover.
func Stitch(shape latent.Shape, tiles []Tile) (*latent.Tensor, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("stitch: invalid shape %s", shape)
	}
	ordered := make([]Tile, len(tiles))
	copy(ordered, tiles)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Rect, ordered[j].Rect
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.Left < b.Left
	})

	out := latent.New(shape)
	h, w := shape[latent.AxisHeight], shape[latent.AxisWidth]
	covered := make([]bool, h*w)
	for i, t := range ordered {
		r := t.Rect
		if r.Left < 0 || r.Top < 0 || r.Right > w || r.Bottom > h || r.Width() <= 0 || r.Height() <= 0 {
			return nil, fmt.Errorf("stitch: tile %d rect %s outside %dx%d", i, r, w, h)
		}
		ts := t.Tensor.Shape
		if ts != (latent.Shape{shape[0], shape[1], r.Height(), r.Width()}) {
			return nil, fmt.Errorf("stitch: tile %d tensor %s does not fit rect %s", i, ts, r)
		}
		colW := ramp(r.Width(), r.Left != 0, leftCover(covered, w, r))
		rowW := ramp(r.Height(), r.Top != 0, topCover(covered, w, r))
		composite(out, t.Tensor, r, rowW, colW)
		for y := r.Top; y < r.Bottom; y++ {
			for x := r.Left; x < r.Right; x++ {
				covered[y*w+x] = true
			}
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !covered[y*w+x] {
				return nil, fmt.Errorf("stitch: cell (%d,%d) not covered by any tile", x, y)
			}
		}
	}
	return out, nil
}

// ramp returns per-index weights: 0 rising linearly to 1 across the band,
// then 1. The band is size/8 wide, clamped to limit.
func ramp(size int, feather bool, limit int) []float32 {
	wts := make([]float32, size)
	band := 0
	if feather {
		band = min(size/FeatherDivisor, limit)
	}
	for i := range wts {
		if i < band {
			wts[i] = float32(i) / float32(band)
		} else {
			wts[i] = 1
		}
	}
	return wts
}

// leftCover counts the columns from the tile's left edge that are already
// covered along its bottom row, which tiles above do not reach.
func leftCover(covered []bool, w int, r Rect) int {
	n := 0
	row := (r.Bottom - 1) * w
	for x := r.Left; x < r.Right && covered[row+x]; x++ {
		n++
	}
	return n
}

// topCover counts the rows from the tile's top edge that are already covered
// along its rightmost column, which the left neighbour does not reach.
func topCover(covered []bool, w int, r Rect) int {
	n := 0
	for y := r.Top; y < r.Bottom && covered[y*w+r.Right-1]; y++ {
		n++
	}
	return n
}

func composite(out, tile *latent.Tensor, r Rect, rowW, colW []float32) {
	s := out.Shape
	for b := 0; b < s[0]; b++ {
		for c := 0; c < s[1]; c++ {
			for y := 0; y < r.Height(); y++ {
				src := tile.Index(b, c, y, 0)
				dst := out.Index(b, c, r.Top+y, r.Left)
				for x := 0; x < r.Width(); x++ {
					m := rowW[y] * colW[x]
					if m == 1 {
						out.Data[dst+x] = tile.Data[src+x]
						continue
					}
					out.Data[dst+x] = tile.Data[src+x]*m + out.Data[dst+x]*(1-m)
				}
			}
		}
	}
}
