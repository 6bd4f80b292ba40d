// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/backend"
	"github.com/gogpu/fsr/gpucore"
)

// Recorder errors.
var (
	// ErrUnboundResource is returned when a dispatch or draw is missing a
	// binding.
	ErrUnboundResource = errors.New("native: required resource not bound")

	// ErrBindingHazard is returned when one texture is bound as readable
	// and writable at the same time.
	ErrBindingHazard = errors.New("native: texture bound as both readable and writable")

	// ErrUnknownKernel is returned for kernel IDs the program does not have.
	ErrUnknownKernel = errors.New("native: unknown kernel")

	// ErrSubmitted is returned when recording into a submitted recorder.
	ErrSubmitted = errors.New("native: recorder already submitted")
)

// blitParamsSize is the size of the blit uniform block (one vec4).
const blitParamsSize = 16

// Recorder encodes a frame into one command buffer. Constant buffers and
// bind groups created while recording are freed after Submit.
//
// The first recording error is sticky: later commands are skipped and
// Submit returns it.
type Recorder struct {
	adapter *HALAdapter
	program *Program
	encoder hal.CommandEncoder

	constants map[uint32]constantBuffer
	readable  map[uint32]*Texture
	writable  map[uint32]*Texture

	viewport gpucore.Rect
	target   *Texture

	// usage is the usage each touched texture is in at the current point of
	// the command stream.
	usage map[*Texture]gputypes.TextureUsage

	groups     []string
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup

	err  error
	done bool
}

type constantBuffer struct {
	buf  hal.Buffer
	size uint64
}

var (
	_ gpucore.Recorder    = (*Recorder)(nil)
	_ gpucore.DebugMarker = (*Recorder)(nil)
	_ backend.Recorder    = (*Recorder)(nil)
)

// NewRecorder begins encoding a frame that runs program's kernels.
func (a *HALAdapter) NewRecorder(program *Program) (*Recorder, error) {
	if a.device == nil {
		return nil, backend.ErrNotInitialized
	}
	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fsr_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fsr_frame"); err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return &Recorder{
		adapter:   a,
		program:   program,
		encoder:   encoder,
		constants: make(map[uint32]constantBuffer),
		readable:  make(map[uint32]*Texture),
		writable:  make(map[uint32]*Texture),
		usage:     make(map[*Texture]gputypes.TextureUsage),
	}, nil
}

func (r *Recorder) fail(err error) error {
	if r.err == nil {
		r.err = err
		fsr.Logger().Warn("native: recording failed", "err", err)
	}
	return r.err
}

// label prefixes name with the open debug groups, so passes show up
// grouped in frame debuggers.
func (r *Recorder) label(name string) string {
	if len(r.groups) == 0 {
		return name
	}
	return strings.Join(r.groups, "/") + "/" + name
}

func (r *Recorder) uniform(label string, data []byte) (constantBuffer, error) {
	size := uint64(len(data)+15) &^ 15
	buf, err := r.adapter.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return constantBuffer{}, fmt.Errorf("create uniform buffer: %w", err)
	}
	r.buffers = append(r.buffers, buf)
	padded := make([]byte, size)
	copy(padded, data)
	if err := r.adapter.queue.WriteBuffer(buf, 0, padded); err != nil {
		return constantBuffer{}, fmt.Errorf("write uniform buffer: %w", err)
	}
	return constantBuffer{buf: buf, size: size}, nil
}

// BindConstantBuffer implements gpucore.Recorder. Every call writes a new
// buffer, so earlier dispatches keep the values they were recorded with.
func (r *Recorder) BindConstantBuffer(slot uint32, data []byte) {
	if r.err != nil {
		return
	}
	if r.done {
		r.fail(ErrSubmitted)
		return
	}
	cb, err := r.uniform(r.label(fmt.Sprintf("cbuffer%d", slot)), data)
	if err != nil {
		r.fail(err)
		return
	}
	r.constants[slot] = cb
}

// BindReadable implements gpucore.Recorder.
func (r *Recorder) BindReadable(slot uint32, tex gpucore.Texture) {
	t, err := r.adapter.owns(tex)
	if err != nil {
		delete(r.readable, slot)
		return
	}
	r.readable[slot] = t
}

// BindWritable implements gpucore.Recorder.
func (r *Recorder) BindWritable(slot uint32, tex gpucore.Texture) {
	t, err := r.adapter.owns(tex)
	if err != nil {
		delete(r.writable, slot)
		return
	}
	r.writable[slot] = t
}

// UnbindWritables implements gpucore.Recorder.
func (r *Recorder) UnbindWritables() {
	clear(r.writable)
}

// transition records a barrier moving t to usage if it is not already there.
func (r *Recorder) transition(t *Texture, usage gputypes.TextureUsage) {
	old, ok := r.usage[t]
	if !ok {
		old = t.usage
	}
	if old == usage {
		return
	}
	if old != 0 {
		r.encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: old,
				NewUsage: usage,
			},
		}})
	}
	r.usage[t] = usage
}

// Dispatch implements gpucore.Recorder. The bind group is constant slot 0,
// readable slot 0 and writable slot 0, matching the layout built by
// LoadProgram.
func (r *Recorder) Dispatch(kernel gpucore.KernelID, x, y, z uint32) error {
	if r.err != nil {
		return r.err
	}
	if r.done {
		return ErrSubmitted
	}
	if !r.program.IsLoaded() {
		return ErrProgramNotLoaded
	}
	pipeline, name, ok := r.program.computePipeline(kernel)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKernel, kernel)
	}
	cb, hasConsts := r.constants[0]
	src, dst := r.readable[0], r.writable[0]
	if !hasConsts || src == nil || dst == nil {
		return fmt.Errorf("%w: %s needs cbuffer[0], read[0] and write[0]", ErrUnboundResource, name)
	}
	for _, w := range r.writable {
		for _, rd := range r.readable {
			if w == rd {
				return fmt.Errorf("%w: %s", ErrBindingHazard, w)
			}
		}
	}
	if dst.format != storageFormat {
		return fmt.Errorf("%w: storage writes to %v", ErrUnsupportedFormat, dst.format)
	}

	bg, err := r.adapter.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: r.label(name + "_bind"), Layout: r.program.computeLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: cb.buf.NativeHandle(), Offset: 0, Size: cb.size}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: src.view.NativeHandle()}},
			{Binding: 2, Resource: gputypes.TextureViewBinding{TextureView: dst.view.NativeHandle()}},
		},
	})
	if err != nil {
		return r.fail(fmt.Errorf("create bind group for %s: %w", name, err))
	}
	r.bindGroups = append(r.bindGroups, bg)

	r.transition(src, gputypes.TextureUsageTextureBinding)
	r.transition(dst, gputypes.TextureUsageStorageBinding)

	pass := r.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: r.label(name)})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(x, y, z)
	pass.End()
	return nil
}

// SetViewport implements gpucore.Recorder.
func (r *Recorder) SetViewport(rect gpucore.Rect) {
	r.viewport = rect
}

// SetRenderTarget implements gpucore.Recorder.
func (r *Recorder) SetRenderTarget(tex gpucore.Texture) {
	t, err := r.adapter.owns(tex)
	if err != nil {
		r.target = nil
		return
	}
	r.target = t
}

// DrawFullscreen implements gpucore.Recorder. Each viewport pixel fetches
// the nearest src texel.
func (r *Recorder) DrawFullscreen(src gpucore.Texture) error {
	if r.err != nil {
		return r.err
	}
	if r.done {
		return ErrSubmitted
	}
	s, err := r.adapter.owns(src)
	if err != nil {
		return err
	}
	if r.target == nil {
		return fmt.Errorf("%w: no render target", ErrUnboundResource)
	}
	if s == r.target {
		return fmt.Errorf("%w: %s", ErrBindingHazard, s)
	}
	vp := r.viewport
	if vp.Width == 0 || vp.Height == 0 {
		return fmt.Errorf("%w: empty viewport", ErrUnboundResource)
	}

	pipeline, err := r.program.blitPipeline(r.target.format)
	if err != nil {
		return err
	}

	params := make([]byte, blitParamsSize)
	for i, v := range [4]float32{
		float32(s.width) / float32(vp.Width),
		float32(s.height) / float32(vp.Height),
		float32(vp.X),
		float32(vp.Y),
	} {
		binary.LittleEndian.PutUint32(params[i*4:], math.Float32bits(v))
	}
	cb, err := r.uniform(r.label("blit_params"), params)
	if err != nil {
		return r.fail(err)
	}
	bg, err := r.adapter.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: r.label("blit_bind"), Layout: r.program.blitLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: cb.buf.NativeHandle(), Offset: 0, Size: cb.size}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: s.view.NativeHandle()}},
		},
	})
	if err != nil {
		return r.fail(fmt.Errorf("create blit bind group: %w", err))
	}
	r.bindGroups = append(r.bindGroups, bg)

	r.transition(s, gputypes.TextureUsageTextureBinding)
	r.transition(r.target, gputypes.TextureUsageRenderAttachment)

	rp := r.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: r.label("blit"),
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    r.target.view,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	rp.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, bg, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	return nil
}

// PushDebugGroup implements gpucore.DebugMarker. Open groups prefix the
// labels of passes recorded inside them.
func (r *Recorder) PushDebugGroup(label string) {
	r.groups = append(r.groups, label)
}

// PopDebugGroup implements gpucore.DebugMarker.
func (r *Recorder) PopDebugGroup() {
	if len(r.groups) == 0 {
		fsr.Logger().Warn("native: PopDebugGroup without matching push")
		return
	}
	r.groups = r.groups[:len(r.groups)-1]
}

// Submit ends encoding, submits the command buffer and waits for it.
// Transient buffers and bind groups are freed on every path.
func (r *Recorder) Submit() error {
	if r.done {
		return ErrSubmitted
	}
	r.done = true
	defer r.free()

	if r.err != nil {
		r.encoder.DiscardEncoding()
		return r.err
	}
	cmdBuf, err := r.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer r.adapter.device.FreeCommandBuffer(cmdBuf)

	if err := r.adapter.submitAndWait(cmdBuf); err != nil {
		return err
	}
	for t, u := range r.usage {
		t.usage = u
	}
	return nil
}

// Discard abandons the recorded commands.
func (r *Recorder) Discard() {
	if r.done {
		return
	}
	r.done = true
	r.encoder.DiscardEncoding()
	r.free()
}

func (r *Recorder) free() {
	dev := r.adapter.device
	if dev == nil {
		return
	}
	for _, bg := range r.bindGroups {
		dev.DestroyBindGroup(bg)
	}
	for _, b := range r.buffers {
		dev.DestroyBuffer(b)
	}
	r.bindGroups, r.buffers = nil, nil
	clear(r.constants)
	r.encoder.Destroy()
}
