// Package gpucore defines the collaborator contracts the fsr upscaler is
// written against.
//
// The upscaler never talks to a graphics API directly. Instead it records its
// work through a small set of capability interfaces that a concrete renderer
// implements:
//
//   - [Recorder] records constant uploads, resource bindings, compute
//     dispatches and the final full-screen copy onto one command stream.
//   - [Program] exposes the loaded shader program: a readiness predicate and
//     the compute entry points by name.
//   - [TexturePool] hands out transient textures for the duration of a frame.
//   - [Capabilities] answers whether the device can run compute work.
//
// # Architecture
//
//	               +-----------------+
//	               |    fsr.Upscaler |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| backend/native  |          | backend/software|
//	|  (wgpu/hal)     |          |  (image.RGBA64) |
//	+-----------------+          +-----------------+
//
// Both backends implement every interface in this package, so the same
// orchestration code drives a real GPU and the CPU reference path.
//
// # Resource Ownership
//
// Textures returned by a [TexturePool] are exclusively owned by the caller
// between Acquire and Release. Recorders never retain textures beyond the
// frame they were bound in.
package gpucore
