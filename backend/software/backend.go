package software

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/fsr/backend"
	"github.com/gogpu/fsr/gpucore"
)

// init registers the software backend on package import.
func init() {
	backend.Register(backend.BackendSoftware, func() backend.Backend {
		return &Backend{}
	})
}

// Backend adapts a Device and its Program to backend.Backend.
type Backend struct {
	opts    []Option
	dev     *Device
	program *Program
}

var _ backend.Backend = (*Backend)(nil)

// NewBackend returns an uninitialized software backend. The options are
// applied to the device created by Init.
func NewBackend(opts ...Option) *Backend {
	return &Backend{opts: opts}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendSoftware }

// Init creates the device and registers the stand-in kernels.
func (b *Backend) Init() error {
	if b.dev != nil {
		return nil
	}
	b.dev = New(b.opts...)
	b.program = NewProgram()
	return nil
}

// Close stops the device workers.
func (b *Backend) Close() {
	if b.dev != nil {
		b.dev.Close()
		b.dev = nil
	}
}

// Device returns the underlying device, nil before Init.
func (b *Backend) Device() *Device { return b.dev }

// SupportsCompute implements gpucore.Capabilities.
func (b *Backend) SupportsCompute() bool { return b.dev != nil }

// CreateTexture implements pool.Allocator.
func (b *Backend) CreateTexture(desc gpucore.TextureDesc) (gpucore.Texture, error) {
	if b.dev == nil {
		return nil, fmt.Errorf("%w: %w", gpucore.ErrAllocation, backend.ErrNotInitialized)
	}
	return b.dev.CreateTexture(desc)
}

// DestroyTexture implements pool.Allocator.
func (b *Backend) DestroyTexture(tex gpucore.Texture) {
	if b.dev != nil {
		b.dev.DestroyTexture(tex)
	}
}

// Program returns the kernel registry; nil before Init.
func (b *Backend) Program() gpucore.Program {
	if b.program == nil {
		return nil
	}
	return b.program
}

// NewRecorder implements backend.Backend. The returned recorder has
// already executed everything it recorded, so Submit only returns nil.
func (b *Backend) NewRecorder() (backend.Recorder, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	return submitter{b.dev.NewRecorder(b.program)}, nil
}

// Upload implements backend.Backend.
func (b *Backend) Upload(img image.Image, format gputypes.TextureFormat) (gpucore.Texture, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	bounds := img.Bounds()
	tex, err := b.dev.CreateTexture(gpucore.TextureDesc{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Format: format,
	})
	if err != nil {
		return nil, err
	}
	t := tex.(*Texture)
	draw.Copy(t.img, image.Point{}, img, bounds, draw.Src, nil)
	return t, nil
}

// Download implements backend.Backend. The image is a copy.
func (b *Backend) Download(tex gpucore.Texture) (image.Image, error) {
	t, err := asTexture(tex)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA64(t.img.Rect)
	copy(out.Pix, t.img.Pix)
	return out, nil
}

// submitter gives a Recorder the Submit method of backend.Recorder.
type submitter struct {
	*Recorder
}

func (submitter) Submit() error { return nil }
