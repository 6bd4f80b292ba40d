package native

import (
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr/backend"
	"github.com/gogpu/fsr/gpucore"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// init registers the GPU and noop variants on package import.
//
//	import _ "github.com/gogpu/fsr/backend/native"
func init() {
	backend.Register(backend.BackendNative, func() backend.Backend {
		return &Backend{name: backend.BackendNative, open: func() (*HALAdapter, error) {
			return Open(gputypes.BackendVulkan)
		}}
	})
	backend.Register(backend.BackendNoop, func() backend.Backend {
		return &Backend{name: backend.BackendNoop, open: OpenNoop}
	})
}

// Backend adapts a HALAdapter and a Program to backend.Backend.
type Backend struct {
	name    string
	open    func() (*HALAdapter, error)
	shaders ShaderSource
	opts    []ProgramOption

	adapter *HALAdapter
	program *Program
}

var _ backend.Backend = (*Backend)(nil)

// NewBackend returns an uninitialized backend that opens its device with
// open and loads shaders. An empty ShaderSource selects StandInShaders.
func NewBackend(name string, open func() (*HALAdapter, error), shaders ShaderSource, opts ...ProgramOption) *Backend {
	return &Backend{name: name, open: open, shaders: shaders, opts: opts}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return b.name }

// Init opens the device and starts loading the program. It does not wait
// for the program; use Loader to wait.
func (b *Backend) Init() error {
	if b.adapter != nil {
		return nil
	}
	a, err := b.open()
	if err != nil {
		return err
	}
	src := b.shaders
	if src.WGSL == "" {
		src = StandInShaders()
	}
	b.adapter = a
	b.program = LoadProgram(a, src, b.opts...)
	return nil
}

// Close destroys the program and the device.
func (b *Backend) Close() {
	if b.adapter == nil {
		return
	}
	b.program.Close()
	b.adapter.Close()
	b.adapter, b.program = nil, nil
}

// Adapter returns the underlying adapter, nil before Init.
func (b *Backend) Adapter() *HALAdapter { return b.adapter }

// Loader returns the program being loaded, nil before Init.
func (b *Backend) Loader() *Program { return b.program }

// SupportsCompute implements gpucore.Capabilities.
func (b *Backend) SupportsCompute() bool {
	return b.adapter != nil && b.adapter.SupportsCompute()
}

// CreateTexture implements pool.Allocator.
func (b *Backend) CreateTexture(desc gpucore.TextureDesc) (gpucore.Texture, error) {
	if b.adapter == nil {
		return nil, backend.ErrNotInitialized
	}
	return b.adapter.CreateTexture(desc)
}

// DestroyTexture implements pool.Allocator.
func (b *Backend) DestroyTexture(tex gpucore.Texture) {
	if b.adapter != nil {
		b.adapter.DestroyTexture(tex)
	}
}

// Program implements backend.Backend.
func (b *Backend) Program() gpucore.Program {
	if b.program == nil {
		return nil
	}
	return b.program
}

// NewRecorder implements backend.Backend.
func (b *Backend) NewRecorder() (backend.Recorder, error) {
	if b.adapter == nil {
		return nil, backend.ErrNotInitialized
	}
	rec, err := b.adapter.NewRecorder(b.program)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Upload implements backend.Backend.
func (b *Backend) Upload(img image.Image, format gputypes.TextureFormat) (gpucore.Texture, error) {
	if b.adapter == nil {
		return nil, backend.ErrNotInitialized
	}
	return b.adapter.Upload(img, format)
}

// Download implements backend.Backend.
func (b *Backend) Download(tex gpucore.Texture) (image.Image, error) {
	if b.adapter == nil {
		return nil, backend.ErrNotInitialized
	}
	return b.adapter.Download(tex)
}
