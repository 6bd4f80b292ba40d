package fsr

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr/gpucore"
)

// profileLabel names the debug group wrapping one frame of upscaler work.
const profileLabel = "FSR"

// Outcome reports what Render recorded for a frame.
type Outcome int

const (
	// OutcomeUpscaled means both dispatches and the final blit were recorded.
	OutcomeUpscaled Outcome = iota

	// OutcomePassThrough means the input was blitted unchanged into the output.
	OutcomePassThrough

	// OutcomeDropped means nothing usable was recorded into the output.
	OutcomeDropped
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeUpscaled:
		return "upscaled"
	case OutcomePassThrough:
		return "passthrough"
	case OutcomeDropped:
		return "dropped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Frame is the per-frame input of Render.
type Frame struct {
	// Input is the low resolution image. Its size is the input resource size.
	Input gpucore.Texture

	// InputViewport is the region of Input holding valid pixels, anchored at
	// the origin. Under dynamic resolution it is smaller than Input.
	// The zero value means all of Input.
	InputViewport Dimensions

	// Output is the render target receiving the final image.
	Output gpucore.Texture
}

// Stats counts frames by outcome.
type Stats struct {
	Upscaled    uint64
	PassThrough uint64
	Dropped     uint64
}

// Upscaler records the two-pass upscale (edge-adaptive upscale, then
// contrast-adaptive sharpen) and the final blit for each frame.
//
// One Upscaler exists per effect activation. It holds no texture longer than
// one Render call: the two intermediates are acquired from the pool at the
// start of a frame and released before Render returns, on every path.
//
// Render must be called from one goroutine at a time. SetSharpness,
// SetEnabled, HandleKey and Stats may be called concurrently with it.
type Upscaler struct {
	program gpucore.Program
	pool    gpucore.TexturePool
	gate    *Gate

	sharpness atomic.Uint32 // math.Float32bits

	intermediateFormat gputypes.TextureFormat
	fallback           Fallback
	upscaleName        string
	sharpenName        string
	toggleKey          gpucontext.Key

	// Resolved lazily on the first active frame.
	upscaleKernel gpucore.KernelID
	sharpenKernel gpucore.KernelID
	resolved      bool

	upscaled    atomic.Uint64
	passThrough atomic.Uint64
	dropped     atomic.Uint64
}

// NewUpscaler creates an upscaler over a shader program, a texture pool and
// the device capabilities. The program may still be loading; frames render
// the fallback until it is ready.
func NewUpscaler(program gpucore.Program, pool gpucore.TexturePool, caps gpucore.Capabilities, opts ...UpscalerOption) (*Upscaler, error) {
	if pool == nil {
		return nil, errors.New("fsr: texture pool is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateSharpness(o.sharpness); err != nil {
		return nil, err
	}

	u := &Upscaler{
		program:            program,
		pool:               pool,
		gate:               NewGate(program, caps, o.enabled),
		intermediateFormat: o.intermediateFormat,
		fallback:           o.fallback,
		upscaleName:        o.upscaleKernel,
		sharpenName:        o.sharpenKernel,
		toggleKey:          o.toggleKey,
	}
	u.sharpness.Store(math.Float32bits(o.sharpness))
	return u, nil
}

// Gate returns the upscaler's effect gate.
func (u *Upscaler) Gate() *Gate { return u.gate }

// Sharpness returns the current sharpness.
func (u *Upscaler) Sharpness() float32 {
	return math.Float32frombits(u.sharpness.Load())
}

// SetSharpness changes the sharpness used from the next frame on.
func (u *Upscaler) SetSharpness(s float32) error {
	if err := validateSharpness(s); err != nil {
		return err
	}
	u.sharpness.Store(math.Float32bits(s))
	return nil
}

// SetEnabled sets the enable flag of the gate.
func (u *Upscaler) SetEnabled(enabled bool) { u.gate.SetEnabled(enabled) }

// Enabled returns the enable flag of the gate.
func (u *Upscaler) Enabled() bool { return u.gate.Enabled() }

// HandleKey flips the enable flag when key is the configured toggle key and
// reports whether it did. Hosts wire it to their key press events to compare
// the upscaled and the raw image at runtime.
func (u *Upscaler) HandleKey(key gpucontext.Key) bool {
	if key != u.toggleKey {
		return false
	}
	enabled := u.gate.Toggle()
	Logger().Info("fsr: toggled", "enabled", enabled)
	return true
}

// Stats returns frame counters by outcome.
func (u *Upscaler) Stats() Stats {
	return Stats{
		Upscaled:    u.upscaled.Load(),
		PassThrough: u.passThrough.Load(),
		Dropped:     u.dropped.Load(),
	}
}

// Render records one frame of work into rec.
//
// When the gate is inactive, Render records only the fallback: no dispatch
// and no pool acquisition. Otherwise it acquires two textures of output size,
// records the upscale dispatch, the sharpen dispatch and the blit into
// frame.Output, and releases both textures.
//
// Render never panics on a bad frame. The returned error explains any outcome
// other than OutcomeUpscaled; it concerns this frame only and the next frame
// starts from scratch.
func (u *Upscaler) Render(rec gpucore.Recorder, frame Frame) (outcome Outcome, err error) {
	defer func() { u.count(outcome) }()

	if frame.Input == nil || frame.Output == nil {
		Logger().Error("fsr: frame without input or output texture")
		return OutcomeDropped, ErrInvalidFrame
	}

	if reason := u.gate.Evaluate(); reason != nil {
		return u.fallbackFrame(rec, frame, reason)
	}

	resource := DimensionsOf(frame.Input)
	viewport := frame.InputViewport
	if viewport == (Dimensions{}) {
		viewport = resource
	}
	output := DimensionsOf(frame.Output)
	if err := checkFrameDimensions(viewport, resource, output); err != nil {
		Logger().Error("fsr: invalid frame dimensions", "err", err)
		return OutcomeDropped, err
	}

	if err := u.resolveKernels(); err != nil {
		return u.fallbackFrame(rec, frame, err)
	}

	// Only the active path is bracketed in the profiler group.
	if marker, ok := rec.(gpucore.DebugMarker); ok {
		marker.PushDebugGroup(profileLabel)
		defer marker.PopDebugGroup()
	}

	scope := gpucore.NewScope(u.pool)
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			Logger().Warn("fsr: release of intermediate textures failed", "err", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	desc := u.intermediateDesc(frame.Output)
	upscaled, err := scope.Acquire(desc)
	if err != nil {
		return u.fallbackFrame(rec, frame, err)
	}
	sharpened, err := scope.Acquire(desc)
	if err != nil {
		return u.fallbackFrame(rec, frame, err)
	}

	gx, gy, gz := DispatchSize(output)
	Logger().Debug("fsr: render",
		"viewport", viewport.String(),
		"resource", resource.String(),
		"output", output.String(),
		"groups", [3]uint32{gx, gy, gz})

	upscaleConsts := ComputeUpscaleConstants(viewport, resource, output)
	if err := u.pass(rec, u.upscaleKernel, upscaleConsts.Bytes(), frame.Input, upscaled, gx, gy, gz); err != nil {
		return u.fallbackFrame(rec, frame, fmt.Errorf("fsr: upscale pass: %w", err))
	}

	sharpenConsts := ComputeSharpenConstants(u.Sharpness())
	if err := u.pass(rec, u.sharpenKernel, sharpenConsts.Bytes(), upscaled, sharpened, gx, gy, gz); err != nil {
		return u.fallbackFrame(rec, frame, fmt.Errorf("fsr: sharpen pass: %w", err))
	}

	if err := blit(rec, sharpened, frame.Output); err != nil {
		Logger().Warn("fsr: final blit failed, frame dropped", "err", err)
		return OutcomeDropped, fmt.Errorf("fsr: blit: %w", err)
	}
	return OutcomeUpscaled, nil
}

// pass records one compute pass reading src and writing dst.
func (u *Upscaler) pass(rec gpucore.Recorder, kernel gpucore.KernelID, consts []byte, src, dst gpucore.Texture, gx, gy, gz uint32) error {
	rec.BindConstantBuffer(0, consts)
	rec.BindReadable(0, src)
	rec.BindWritable(0, dst)
	err := rec.Dispatch(kernel, gx, gy, gz)
	// dst is read by the next command; it must not stay bound as writable.
	rec.UnbindWritables()
	return err
}

func (u *Upscaler) resolveKernels() error {
	if u.resolved {
		return nil
	}
	up, ok := u.program.Kernel(u.upscaleName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrKernelNotFound, u.upscaleName)
	}
	sh, ok := u.program.Kernel(u.sharpenName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrKernelNotFound, u.sharpenName)
	}
	u.upscaleKernel, u.sharpenKernel, u.resolved = up, sh, true
	Logger().Debug("fsr: kernels resolved", "upscale", u.upscaleName, "sharpen", u.sharpenName)
	return nil
}

func (u *Upscaler) intermediateDesc(output gpucore.Texture) gpucore.TextureDesc {
	format := u.intermediateFormat
	if format == gputypes.TextureFormatUndefined {
		format = output.Format()
	}
	return gpucore.TextureDesc{
		Width:  output.Width(),
		Height: output.Height(),
		Format: format,
		Usage:  gpucore.TextureUsageReadWrite,
	}
}

// fallbackFrame records the configured fallback for a frame that cannot be
// upscaled and returns reason alongside the outcome.
func (u *Upscaler) fallbackFrame(rec gpucore.Recorder, frame Frame, reason error) (Outcome, error) {
	if u.fallback == FallbackDrop {
		logFallback(reason, OutcomeDropped)
		return OutcomeDropped, reason
	}
	if err := blit(rec, frame.Input, frame.Output); err != nil {
		Logger().Warn("fsr: pass-through blit failed, frame dropped", "err", err)
		return OutcomeDropped, errors.Join(reason, err)
	}
	logFallback(reason, OutcomePassThrough)
	return OutcomePassThrough, reason
}

func logFallback(reason error, outcome Outcome) {
	switch {
	case errors.Is(reason, ErrEffectDisabled), errors.Is(reason, ErrShaderNotReady), errors.Is(reason, ErrUnsupportedDevice):
		// Steady states; the gate already logged the transition.
	default:
		Logger().Warn("fsr: frame not upscaled", "outcome", outcome.String(), "err", reason)
	}
}

// blit draws src over the full extent of dst.
func blit(rec gpucore.Recorder, src, dst gpucore.Texture) error {
	rec.SetViewport(gpucore.Rect{Width: dst.Width(), Height: dst.Height()})
	rec.SetRenderTarget(dst)
	return rec.DrawFullscreen(src)
}

func (u *Upscaler) count(o Outcome) {
	switch o {
	case OutcomeUpscaled:
		u.upscaled.Add(1)
	case OutcomePassThrough:
		u.passThrough.Add(1)
	default:
		u.dropped.Add(1)
	}
}

func validateSharpness(s float32) error {
	if !(s >= MinSharpness && s <= MaxSharpness) {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidSharpness, s, MinSharpness, MaxSharpness)
	}
	return nil
}

// checkFrameDimensions is the non-panicking counterpart of mustBeValid used
// on the per-frame path.
func checkFrameDimensions(viewport, resource, output Dimensions) error {
	for _, d := range []Dimensions{viewport, resource, output} {
		if !d.Valid() {
			return fmt.Errorf("%w: %s", ErrDegenerateDimensions, d)
		}
	}
	if viewport.Width > resource.Width || viewport.Height > resource.Height {
		return fmt.Errorf("%w: viewport %s exceeds input %s", ErrDegenerateDimensions, viewport, resource)
	}
	return nil
}
