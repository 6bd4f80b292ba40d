package backend

import (
	"errors"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrReadbackUnsupported is returned by Download when the device cannot
	// copy texture contents back to host memory.
	ErrReadbackUnsupported = errors.New("backend: texture readback not supported")
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU backend.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU backend (gogpu/wgpu HAL).
	BackendNative = "native"
	// BackendNoop is the name of the native backend running on the noop HAL
	// device. Commands are validated and encoded but nothing executes.
	BackendNoop = "noop"
)

// Recorder is a frame command stream that can be handed to the GPU.
// Submit blocks until the recorded work has completed.
type Recorder interface {
	gpucore.Recorder
	Submit() error
}

// Backend is a device the upscaler can run on.
// It abstracts the execution implementation so that the upscaler, the pool
// and the demo tool work unchanged on a GPU or on the CPU.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "software", "native").
	Name() string

	// Init initializes the backend.
	// This should be called before any other method.
	Init() error

	// Close releases all backend resources.
	// The backend should not be used after Close is called.
	Close()

	gpucore.Capabilities

	// CreateTexture and DestroyTexture make the backend a pool.Allocator.
	CreateTexture(desc gpucore.TextureDesc) (gpucore.Texture, error)
	DestroyTexture(tex gpucore.Texture)

	// Program returns the backend's shader program. It may still be loading.
	Program() gpucore.Program

	// NewRecorder starts recording a frame.
	NewRecorder() (Recorder, error)

	// Upload creates a texture with the given format and img's contents.
	Upload(img image.Image, format gputypes.TextureFormat) (gpucore.Texture, error)

	// Download copies a texture back into an image.
	Download(tex gpucore.Texture) (image.Image, error)
}
