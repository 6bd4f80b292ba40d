package fsr

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr/gpucore"
)

type mockTexture struct {
	name   string
	w, h   uint32
	format gputypes.TextureFormat
}

func (t *mockTexture) Width() uint32                  { return t.w }
func (t *mockTexture) Height() uint32                 { return t.h }
func (t *mockTexture) Format() gputypes.TextureFormat { return t.format }

func newMockTexture(name string, w, h uint32) *mockTexture {
	return &mockTexture{name: name, w: w, h: h, format: gputypes.TextureFormatRGBA8Unorm}
}

// call is one recorded Recorder method invocation.
type call struct {
	op      string
	slot    uint32
	data    []byte
	tex     gpucore.Texture
	kernel  gpucore.KernelID
	x, y, z uint32
	rect    gpucore.Rect
}

type mockRecorder struct {
	calls    []call
	groups   []string
	depth    int
	drawErr  error
	dispErr  error
	dispatch int
}

func (r *mockRecorder) BindConstantBuffer(slot uint32, data []byte) {
	r.calls = append(r.calls, call{op: "cbuf", slot: slot, data: append([]byte(nil), data...)})
}

func (r *mockRecorder) BindReadable(slot uint32, tex gpucore.Texture) {
	r.calls = append(r.calls, call{op: "read", slot: slot, tex: tex})
}

func (r *mockRecorder) BindWritable(slot uint32, tex gpucore.Texture) {
	r.calls = append(r.calls, call{op: "write", slot: slot, tex: tex})
}

func (r *mockRecorder) UnbindWritables() {
	r.calls = append(r.calls, call{op: "unbind"})
}

func (r *mockRecorder) Dispatch(kernel gpucore.KernelID, x, y, z uint32) error {
	r.dispatch++
	r.calls = append(r.calls, call{op: "dispatch", kernel: kernel, x: x, y: y, z: z})
	return r.dispErr
}

func (r *mockRecorder) SetViewport(rect gpucore.Rect) {
	r.calls = append(r.calls, call{op: "viewport", rect: rect})
}

func (r *mockRecorder) SetRenderTarget(tex gpucore.Texture) {
	r.calls = append(r.calls, call{op: "target", tex: tex})
}

func (r *mockRecorder) DrawFullscreen(src gpucore.Texture) error {
	r.calls = append(r.calls, call{op: "draw", tex: src})
	return r.drawErr
}

func (r *mockRecorder) PushDebugGroup(label string) {
	r.groups = append(r.groups, label)
	r.depth++
}

func (r *mockRecorder) PopDebugGroup() { r.depth-- }

func (r *mockRecorder) ops() []string {
	var out []string
	for _, c := range r.calls {
		out = append(out, c.op)
	}
	return out
}

func (r *mockRecorder) find(op string) []call {
	var out []call
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

// plainRecorder hides the DebugMarker methods of mockRecorder.
type plainRecorder struct{ gpucore.Recorder }

type mockProgram struct {
	loaded  bool
	err     error
	kernels map[string]gpucore.KernelID
}

func newLoadedProgram() *mockProgram {
	return &mockProgram{
		loaded: true,
		kernels: map[string]gpucore.KernelID{
			DefaultUpscaleKernel: 1,
			DefaultSharpenKernel: 2,
		},
	}
}

func (p *mockProgram) IsLoaded() bool { return p.loaded }
func (p *mockProgram) Err() error     { return p.err }

func (p *mockProgram) Kernel(name string) (gpucore.KernelID, bool) {
	if !p.loaded {
		return gpucore.InvalidID, false
	}
	id, ok := p.kernels[name]
	return id, ok
}

// mockPool counts allocations and keeps a free list per descriptor.
type mockPool struct {
	free        map[gpucore.TextureDesc][]gpucore.Texture
	out         map[gpucore.Texture]gpucore.TextureDesc
	acquires    int
	releases    int
	allocations int
	failOn      int // fail the n-th acquire (1-based); 0 never fails
}

func newMockPool() *mockPool {
	return &mockPool{
		free: make(map[gpucore.TextureDesc][]gpucore.Texture),
		out:  make(map[gpucore.Texture]gpucore.TextureDesc),
	}
}

func (p *mockPool) Acquire(desc gpucore.TextureDesc) (gpucore.Texture, error) {
	p.acquires++
	if p.failOn != 0 && p.acquires == p.failOn {
		return nil, fmt.Errorf("%w: out of memory", gpucore.ErrAllocation)
	}
	var tex gpucore.Texture
	if list := p.free[desc]; len(list) > 0 {
		tex = list[len(list)-1]
		p.free[desc] = list[:len(list)-1]
	} else {
		p.allocations++
		tex = &mockTexture{name: fmt.Sprintf("pooled%d", p.allocations), w: desc.Width, h: desc.Height, format: desc.Format}
	}
	p.out[tex] = desc
	return tex, nil
}

func (p *mockPool) Release(tex gpucore.Texture) error {
	desc, ok := p.out[tex]
	if !ok {
		return errors.New("mock pool: unknown texture")
	}
	delete(p.out, tex)
	p.releases++
	p.free[desc] = append(p.free[desc], tex)
	return nil
}

func (p *mockPool) inUse() int { return len(p.out) }

var computeCaps = gpucore.AdapterCapabilities{Compute: true}
