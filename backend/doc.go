// Package backend provides a pluggable device abstraction for the upscaler.
//
// A Backend bundles everything one frame needs: a texture allocator for the
// transient pool, a shader program, capability queries and a command
// recorder. The upscaler itself only sees the gpucore contracts; this
// package adds the plumbing a host or tool needs to pick a device, move
// images in and out and submit recorded work.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// Import the implementations you want:
//
//	import (
//		_ "github.com/gogpu/fsr/backend/native"
//		_ "github.com/gogpu/fsr/backend/software"
//	)
//
// # Backend Selection
//
// Use InitDefault() to get the best backend that initializes, or Open() to
// request a specific backend by name:
//
//	b, err := backend.InitDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	textures := pool.New(b)
//	defer textures.Close()
//
//	u, err := fsr.NewUpscaler(b.Program(), textures, b)
//	...
//	rec, _ := b.NewRecorder()
//	u.Render(rec, fsr.Frame{Input: in, Output: out})
//	rec.Submit()
//
// # Available Backends
//
//   - "native": GPU via gogpu/wgpu HAL (Vulkan)
//   - "noop": the native backend on the noop HAL device, for dry runs
//   - "software": CPU execution with stand-in kernels (always available)
package backend
