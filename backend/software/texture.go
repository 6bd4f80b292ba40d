// Package software is a CPU backend for the upscaler. Textures are
// in-memory images and compute dispatches run one goroutine-pool work item
// per row of workgroups.
//
// The kernels registered by this backend are stand-ins: a bilinear
// resample for the upscale pass and a clamped 5-tap sharpen for the sharpen
// pass. They honor the constant block layout and the 16x16 workgroup tiling
// of the real kernels so the host pipeline can be exercised and inspected
// without a GPU, but they do not reproduce the edge-adaptive algorithms.
package software

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/internal/parallel"
)

// DefaultMaxTextureDimension is the largest texture edge a Device allocates.
const DefaultMaxTextureDimension = 8192

var textureIDs atomic.Uint64

// Texture is an RGBA64 image tagged with the GPU format it stands in for.
type Texture struct {
	id     uint64
	img    *image.RGBA64
	format gputypes.TextureFormat
	label  string
}

// NewTexture returns a cleared texture.
func NewTexture(width, height uint32, format gputypes.TextureFormat) *Texture {
	return &Texture{
		id:     textureIDs.Add(1),
		img:    image.NewRGBA64(image.Rect(0, 0, int(width), int(height))),
		format: format,
	}
}

// TextureFromImage copies img into a new texture.
func TextureFromImage(img image.Image, format gputypes.TextureFormat) *Texture {
	b := img.Bounds()
	t := NewTexture(uint32(b.Dx()), uint32(b.Dy()), format)
	draw.Copy(t.img, image.Point{}, img, b, draw.Src, nil)
	return t
}

// Width implements gpucore.Texture.
func (t *Texture) Width() uint32 { return uint32(t.img.Rect.Dx()) }

// Height implements gpucore.Texture.
func (t *Texture) Height() uint32 { return uint32(t.img.Rect.Dy()) }

// Format implements gpucore.Texture.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Image returns the backing image. Writes to it are visible to later
// commands.
func (t *Texture) Image() *image.RGBA64 { return t.img }

// SetLabel names the texture in command traces.
func (t *Texture) SetLabel(label string) { t.label = label }

// String returns the label, or a generated name.
func (t *Texture) String() string {
	if t.label != "" {
		return t.label
	}
	return fmt.Sprintf("tex#%d(%dx%d)", t.id, t.Width(), t.Height())
}

// Option configures a Device.
type Option func(*Device)

// WithWorkers sets the number of goroutines running workgroups.
// 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Device) { d.workerCount = n }
}

// WithMaxTextureDimension sets the largest texture edge CreateTexture
// accepts.
func WithMaxTextureDimension(n uint32) Option {
	return func(d *Device) { d.maxDim = n }
}

// Device owns the worker pool and tracks live textures. It implements
// pool.Allocator and gpucore.Capabilities.
type Device struct {
	workerCount int
	maxDim      uint32
	workers     *parallel.WorkerPool

	mu   sync.Mutex
	live map[*Texture]struct{}
}

// New creates a device and starts its workers.
func New(opts ...Option) *Device {
	d := &Device{
		maxDim: DefaultMaxTextureDimension,
		live:   make(map[*Texture]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.workers = parallel.NewWorkerPool(d.workerCount)
	fsr.Logger().Info("software: device created", "workers", d.workers.Workers())
	return d
}

// Close stops the workers. Textures stay readable.
func (d *Device) Close() {
	d.workers.Close()
}

// SupportsCompute implements gpucore.Capabilities.
func (d *Device) SupportsCompute() bool { return true }

// CreateTexture allocates a texture for desc.
func (d *Device) CreateTexture(desc gpucore.TextureDesc) (gpucore.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.Width > d.maxDim || desc.Height > d.maxDim {
		return nil, fmt.Errorf("%w: %s exceeds %dx%d", gpucore.ErrAllocation, desc, d.maxDim, d.maxDim)
	}
	t := NewTexture(desc.Width, desc.Height, desc.Format)
	d.mu.Lock()
	d.live[t] = struct{}{}
	d.mu.Unlock()
	return t, nil
}

// DestroyTexture forgets a texture created by CreateTexture.
func (d *Device) DestroyTexture(tex gpucore.Texture) {
	t, ok := tex.(*Texture)
	if !ok {
		return
	}
	d.mu.Lock()
	delete(d.live, t)
	d.mu.Unlock()
}

// LiveTextures returns the number of textures created and not destroyed.
func (d *Device) LiveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// errNotSoftware is returned when a texture from another backend is bound.
var errNotSoftware = errors.New("software: texture does not belong to the software backend")

func asTexture(tex gpucore.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok || t == nil {
		return nil, errNotSoftware
	}
	return t, nil
}
