package gpucore

// Recorder records GPU commands for one frame onto a single command stream.
//
// All calls are issued in program order by one goroutine. A backend is free
// to defer the actual GPU work until submission, but it must preserve the
// order of dispatches and draws and insert whatever barriers are needed so a
// later command observes the writes of an earlier one.
//
// Binding model:
//   - one constant-buffer slot per program (slot 0)
//   - readable (sampled) texture slots
//   - writable (storage) texture slots
//
// Bindings persist until replaced. UnbindWritables must be called before a
// texture bound as writable is bound as readable by a later command.
type Recorder interface {
	// BindConstantBuffer uploads data into the constant buffer at slot and
	// binds it for subsequent dispatches. The data is copied.
	BindConstantBuffer(slot uint32, data []byte)

	// BindReadable binds tex as a read-only shader resource at slot.
	BindReadable(slot uint32, tex Texture)

	// BindWritable binds tex as a writable storage resource at slot.
	BindWritable(slot uint32, tex Texture)

	// UnbindWritables clears every writable binding.
	UnbindWritables()

	// Dispatch records a compute dispatch of the given kernel over a grid of
	// x*y*z workgroups using the current bindings.
	Dispatch(kernel KernelID, x, y, z uint32) error

	// SetViewport sets the viewport used by subsequent draws.
	SetViewport(r Rect)

	// SetRenderTarget sets the color target of subsequent draws.
	SetRenderTarget(tex Texture)

	// DrawFullscreen samples src over the whole viewport of the current
	// render target.
	DrawFullscreen(src Texture) error
}

// DebugMarker is implemented by recorders that can bracket recorded work in
// named groups visible in GPU profilers and frame debuggers.
type DebugMarker interface {
	PushDebugGroup(label string)
	PopDebugGroup()
}

// Program is a loaded shader program exposing compute entry points by name.
type Program interface {
	// IsLoaded reports whether the program finished loading and its kernels
	// can be dispatched.
	IsLoaded() bool

	// Kernel resolves a compute entry point by name.
	// It returns false when the program has no such entry point or is not
	// loaded yet.
	Kernel(entryPoint string) (KernelID, bool)
}

// LoadReporter is implemented by programs that load asynchronously and can
// fail. Err returns nil while loading or after a successful load.
type LoadReporter interface {
	Err() error
}

// TexturePool hands out transient textures.
//
// Acquire returns a texture matching desc, reused or newly created; a failed
// allocation returns an error wrapping ErrAllocation. Release gives the
// texture back; its contents are not preserved.
type TexturePool interface {
	Acquire(desc TextureDesc) (Texture, error)
	Release(tex Texture) error
}

// Capabilities describes the device the recorder targets.
type Capabilities interface {
	// SupportsCompute returns whether compute shaders are supported.
	SupportsCompute() bool
}

// AdapterCapabilities is a static Capabilities value.
type AdapterCapabilities struct {
	// Compute indicates compute shader support.
	Compute bool

	// MaxTextureDimension2D is the largest supported 2D texture extent.
	// Zero means unknown.
	MaxTextureDimension2D uint32
}

// SupportsCompute implements Capabilities.
func (c AdapterCapabilities) SupportsCompute() bool { return c.Compute }
