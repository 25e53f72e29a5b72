// Package tiling splits a latent into overlapping tiles and stitches the
// processed tiles back together with a feathered blend.
package tiling

import (
	"fmt"
)

// MinOverlap is the least overlap, in latent cells, between adjacent tiles.
// Anything narrower cannot hold a feather band without a visible seam.
const MinOverlap = 32

// Rect is a half-open rectangle [Left,Right) x [Top,Bottom) in latent cells.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", r.Left, r.Right, r.Top, r.Bottom)
}

// ConfigError reports tiling parameters that cannot produce a valid grid.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string { return "tiling: " + e.Field + ": " + e.Reason }

// TileLatent converts a pixel tile size into latent cells.
func TileLatent(tileSizePixels, scaleFactor int) (int, error) {
	if scaleFactor <= 0 {
		return 0, &ConfigError{Field: "scale_factor", Reason: fmt.Sprintf("%d must be positive", scaleFactor)}
	}
	if tileSizePixels <= 0 {
		return 0, &ConfigError{Field: "tile_size", Reason: fmt.Sprintf("%d must be positive", tileSizePixels)}
	}
	t := tileSizePixels / scaleFactor
	if t < 1 {
		return 0, &ConfigError{Field: "tile_size", Reason: fmt.Sprintf("%d px is smaller than one latent cell at scale %d", tileSizePixels, scaleFactor)}
	}
	return t, nil
}

// Plan covers a height x width latent with tiles of at most
// tileSizePixels/scaleFactor cells per side. Rects are returned row-major.
func Plan(height, width, tileSizePixels, scaleFactor int) ([]Rect, error) {
	if height <= 0 || width <= 0 {
		return nil, &ConfigError{Field: "extent", Reason: fmt.Sprintf("%dx%d must be positive", height, width)}
	}
	tile, err := TileLatent(tileSizePixels, scaleFactor)
	if err != nil {
		return nil, err
	}
	ys, err := axisStarts(height, tile)
	if err != nil {
		return nil, err
	}
	xs, err := axisStarts(width, tile)
	if err != nil {
		return nil, err
	}
	th, tw := min(tile, height), min(tile, width)
	rects := make([]Rect, 0, len(ys)*len(xs))
	for _, y := range ys {
		for _, x := range xs {
			rects = append(rects, Rect{Left: x, Top: y, Right: x + tw, Bottom: y + th})
		}
	}
	return rects, nil
}

// Count returns the number of tiles per axis for an extent.
func Count(extent, tile int) (int, error) {
	if extent <= tile {
		return 1, nil
	}
	if tile <= MinOverlap {
		return 0, &ConfigError{Field: "tile_size", Reason: fmt.Sprintf("%d latent cells cannot overlap neighbours by %d", tile, MinOverlap)}
	}
	n := (extent + tile - 1) / tile
	if extent%tile == 0 {
		n++
	}
	// overlap = (n*tile - extent)/(n-1) tends to tile as n grows, so this
	// terminates once tile > MinOverlap.
	for n*tile-extent < MinOverlap*(n-1) {
		n++
	}
	return n, nil
}

// axisStarts spreads n tiles so the first starts at 0 and the last ends at
// extent. Starts are floored, which keeps every integer overlap at or above
// the real-valued one rounded down.
func axisStarts(extent, tile int) ([]int, error) {
	n, err := Count(extent, tile)
	if err != nil {
		return nil, err
	}
	if n == 1 {
		return []int{0}, nil
	}
	span := extent - tile
	starts := make([]int, n)
	for i := range starts {
		starts[i] = i * span / (n - 1)
	}
	return starts, nil
}
