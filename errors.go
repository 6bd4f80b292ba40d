package fsr

import (
	"errors"

	"github.com/gogpu/fsr/gpucore"
)

// Upscaler errors.
//
// None of these escape a frame as a panic: Render reports them alongside an
// Outcome describing what was recorded instead.
var (
	// ErrUnsupportedDevice is returned when the device has no compute support.
	// The gate stays inactive for the rest of the session.
	ErrUnsupportedDevice = errors.New("fsr: compute shaders not supported on this device")

	// ErrShaderNotReady is returned while the shader program is still loading
	// or after it failed to load.
	ErrShaderNotReady = errors.New("fsr: shader program not ready")

	// ErrEffectDisabled is returned when the effect is switched off.
	ErrEffectDisabled = errors.New("fsr: effect disabled")

	// ErrDegenerateDimensions is returned (or panicked with, from the pure
	// constant functions) when an input or output dimension is zero.
	ErrDegenerateDimensions = errors.New("fsr: degenerate dimensions")

	// ErrInvalidFrame is returned when a frame lacks its input or output.
	ErrInvalidFrame = errors.New("fsr: frame input and output textures are required")

	// ErrInvalidSharpness is returned when a sharpness value is outside
	// [MinSharpness, MaxSharpness].
	ErrInvalidSharpness = errors.New("fsr: sharpness out of range")

	// ErrKernelNotFound is returned when the program lacks an entry point.
	ErrKernelNotFound = errors.New("fsr: kernel entry point not found")

	// ErrAllocation is returned when a transient texture cannot be allocated.
	// The frame is dropped; the next frame tries again.
	ErrAllocation = gpucore.ErrAllocation
)
