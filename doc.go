// Package fsr implements the host side of a two-pass spatial upscaler:
// an edge-adaptive upscale followed by contrast-adaptive sharpening, run as
// compute dispatches, then blitted into the display target.
//
// # Overview
//
// Renderers that draw at reduced resolution hand each frame's low resolution
// image to an [Upscaler], which records the upscale dispatch, the sharpen
// dispatch and a full-screen blit into the output. The kernels' pixel math
// lives in the shader program; this package derives their parameters,
// manages the two transient textures the passes write, and decides per frame
// whether the effect runs at all.
//
// # Quick Start
//
//	program := native.LoadProgram(adapter, native.ProgramSource{...})
//	textures := pool.New(adapter)
//	u, err := fsr.NewUpscaler(program, textures, adapter, fsr.WithSharpness(0.25))
//	if err != nil {
//	    return err
//	}
//
//	// Every frame:
//	outcome, err := u.Render(recorder, fsr.Frame{Input: lowRes, Output: target})
//
// # Pass constants
//
// [ComputeUpscaleConstants] and [ComputeSharpenConstants] are pure functions
// producing the 64-byte constant blocks of the two passes.
// [DispatchSize] covers the output with 16x16 workgroups.
//
// # Failure handling
//
// Nothing that goes wrong in a frame escapes it. [Upscaler.Render] returns an
// [Outcome] describing what was recorded (upscaled, passed through, dropped)
// and an error explaining why it was not upscaled. Intermediate textures are
// released on every path.
//
// # Architecture
//
//   - fsr: constants, gate, pipeline orchestration, settings
//   - gpucore: contracts between the pipeline and a backend
//   - pool: transient texture pool
//   - backend/native: Pure Go GPU backend on gogpu/wgpu HAL
//   - backend/software: CPU backend with stand-in kernels
//
// # Logging
//
// fsr is silent by default. See [SetLogger].
package fsr
