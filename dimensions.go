package fsr

import (
	"fmt"

	"github.com/gogpu/fsr/gpucore"
)

// TileSize is the edge length, in texels, of the square tile one workgroup
// of the upscale and sharpen kernels processes.
const TileSize = 16

// Dimensions is a 2D size in pixels.
type Dimensions struct {
	Width  uint32
	Height uint32
}

// DimensionsOf returns the size of a texture.
func DimensionsOf(t gpucore.Texture) Dimensions {
	return Dimensions{Width: t.Width(), Height: t.Height()}
}

// Valid reports whether both components are at least one pixel.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// String returns "WxH".
func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// DispatchSize returns the workgroup grid covering output with
// TileSize x TileSize tiles. Partial edge tiles are included, so kernels
// bounds-check the trailing row and column of groups.
func DispatchSize(output Dimensions) (x, y, z uint32) {
	return tiles(output.Width), tiles(output.Height), 1
}

// tiles is ceil(n / TileSize) without the n + TileSize - 1 overflow near
// the top of the uint32 range.
func tiles(n uint32) uint32 {
	return n/TileSize + min(n%TileSize, 1)
}

// mustBeValid panics with an error wrapping ErrDegenerateDimensions when any
// of dims has a zero component.
func mustBeValid(dims ...Dimensions) {
	for _, d := range dims {
		if !d.Valid() {
			panic(fmt.Errorf("%w: %s", ErrDegenerateDimensions, d))
		}
	}
}
