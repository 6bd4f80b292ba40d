package gpucore

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent backend objects the upscaler refers to without
// knowing their concrete type. Each backend maintains the mapping between IDs
// and its own resources.

// KernelID is an opaque handle to a compute entry point of a loaded program.
type KernelID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// ErrAllocation is returned (wrapped) when a backend cannot allocate a
// texture. Callers treat it as fatal for the current frame only.
var ErrAllocation = errors.New("gpucore: texture allocation failed")

// TextureUsageReadWrite is the usage every transient upscaler texture is
// created with: sampled by one pass, written as a storage image by another.
const TextureUsageReadWrite = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding

// TextureDesc describes a texture by the properties that make two textures
// interchangeable. It is comparable and used directly as a pool key.
type TextureDesc struct {
	// Width is the texture width in pixels.
	Width uint32

	// Height is the texture height in pixels.
	Height uint32

	// Format is the pixel format.
	Format gputypes.TextureFormat

	// Usage is the set of usages the texture must support.
	Usage gputypes.TextureUsage
}

// String returns a compact human-readable form used in logs.
func (d TextureDesc) String() string {
	return fmt.Sprintf("%dx%d format=%d usage=%#x", d.Width, d.Height, d.Format, uint32(d.Usage))
}

// Texture is a 2D GPU image owned by a backend.
type Texture interface {
	// Width returns the texture width in pixels.
	Width() uint32

	// Height returns the texture height in pixels.
	Height() uint32

	// Format returns the texture pixel format.
	Format() gputypes.TextureFormat
}

// DescOf returns the descriptor of an existing texture with the given usage.
func DescOf(t Texture, usage gputypes.TextureUsage) TextureDesc {
	return TextureDesc{Width: t.Width(), Height: t.Height(), Format: t.Format(), Usage: usage}
}

// Rect is an integer viewport rectangle in pixels.
type Rect struct {
	X, Y          uint32
	Width, Height uint32
}
