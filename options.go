package fsr

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Default compute entry point names of the upscale program.
const (
	DefaultUpscaleKernel = "CS_Upscale"
	DefaultSharpenKernel = "CS_Sharpen"
)

// DefaultToggleKey is the debug hotkey that flips the enable flag.
var DefaultToggleKey = gpucontext.KeySpace

// Fallback selects what Render records when the pipeline cannot run.
type Fallback int

const (
	// FallbackPassThrough blits the input unchanged into the output.
	FallbackPassThrough Fallback = iota

	// FallbackDrop records nothing; the output keeps its previous contents.
	FallbackDrop
)

// String returns the name used in settings files.
func (f Fallback) String() string {
	switch f {
	case FallbackPassThrough:
		return "passthrough"
	case FallbackDrop:
		return "drop"
	default:
		return fmt.Sprintf("Fallback(%d)", int(f))
	}
}

// UpscalerOption configures an Upscaler during creation.
//
// Example:
//
//	u, err := fsr.NewUpscaler(program, pool, caps,
//	    fsr.WithSharpness(0.5),
//	    fsr.WithFallback(fsr.FallbackDrop),
//	)
type UpscalerOption func(*upscalerOptions)

type upscalerOptions struct {
	sharpness          float32
	enabled            bool
	intermediateFormat gputypes.TextureFormat
	fallback           Fallback
	upscaleKernel      string
	sharpenKernel      string
	toggleKey          gpucontext.Key
}

func defaultOptions() upscalerOptions {
	return upscalerOptions{
		sharpness:     DefaultSharpness,
		enabled:       true,
		fallback:      FallbackPassThrough,
		upscaleKernel: DefaultUpscaleKernel,
		sharpenKernel: DefaultSharpenKernel,
		toggleKey:     DefaultToggleKey,
	}
}

// WithSharpness sets the initial sharpness, in [MinSharpness, MaxSharpness].
// 0 sharpens the most. Out of range values make NewUpscaler fail.
func WithSharpness(s float32) UpscalerOption {
	return func(o *upscalerOptions) {
		o.sharpness = s
	}
}

// WithEnabled sets the initial enable flag. Upscalers start enabled.
func WithEnabled(enabled bool) UpscalerOption {
	return func(o *upscalerOptions) {
		o.enabled = enabled
	}
}

// WithIntermediateFormat fixes the pixel format of the two intermediate
// textures. By default they use the output texture's format.
//
// The format must keep enough precision for the sharpen pass to avoid
// visible banding, and must support storage binding on the target device.
func WithIntermediateFormat(f gputypes.TextureFormat) UpscalerOption {
	return func(o *upscalerOptions) {
		o.intermediateFormat = f
	}
}

// WithFallback sets what Render records when the gate is inactive or a
// frame cannot be upscaled.
func WithFallback(f Fallback) UpscalerOption {
	return func(o *upscalerOptions) {
		o.fallback = f
	}
}

// WithKernelNames overrides the compute entry point names resolved from the
// program. Empty names keep the defaults.
func WithKernelNames(upscale, sharpen string) UpscalerOption {
	return func(o *upscalerOptions) {
		if upscale != "" {
			o.upscaleKernel = upscale
		}
		if sharpen != "" {
			o.sharpenKernel = sharpen
		}
	}
}

// WithToggleKey sets the key HandleKey reacts to.
func WithToggleKey(k gpucontext.Key) UpscalerOption {
	return func(o *upscalerOptions) {
		o.toggleKey = k
	}
}
