package software

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/gpucore"
)

// Recorder errors.
var (
	// ErrUnboundResource is returned by Dispatch and DrawFullscreen when a
	// required binding is missing.
	ErrUnboundResource = errors.New("software: required resource not bound")

	// ErrBindingHazard is returned when one texture is bound as readable and
	// writable at the same time.
	ErrBindingHazard = errors.New("software: texture bound as both readable and writable")

	// ErrUnknownKernel is returned for kernel IDs the program does not have.
	ErrUnknownKernel = errors.New("software: unknown kernel")
)

// Recorder executes commands as they are recorded. Work issued later always
// observes earlier writes, so no barriers are needed.
//
// Every command is appended to a textual trace, see Trace.
type Recorder struct {
	dev     *Device
	program *Program

	constants map[uint32][]byte
	readable  map[uint32]*Texture
	writable  map[uint32]*Texture

	viewport gpucore.Rect
	target   *Texture

	groups []string
	trace  []string
}

// NewRecorder returns a recorder executing program's kernels on d.
func (d *Device) NewRecorder(program *Program) *Recorder {
	return &Recorder{
		dev:       d,
		program:   program,
		constants: make(map[uint32][]byte),
		readable:  make(map[uint32]*Texture),
		writable:  make(map[uint32]*Texture),
	}
}

func (r *Recorder) record(format string, args ...any) {
	indent := strings.Repeat("  ", len(r.groups))
	r.trace = append(r.trace, indent+fmt.Sprintf(format, args...))
}

// Trace returns the commands recorded so far, one per line, indented by
// debug group depth.
func (r *Recorder) Trace() []string {
	return append([]string(nil), r.trace...)
}

// BindConstantBuffer implements gpucore.Recorder.
func (r *Recorder) BindConstantBuffer(slot uint32, data []byte) {
	r.constants[slot] = append([]byte(nil), data...)
	r.record("cbuffer[%d] <- %d bytes", slot, len(data))
}

// BindReadable implements gpucore.Recorder. Textures from other backends
// are recorded as unbound.
func (r *Recorder) BindReadable(slot uint32, tex gpucore.Texture) {
	t, err := asTexture(tex)
	if err != nil {
		delete(r.readable, slot)
		r.record("read[%d] <- invalid: %v", slot, err)
		return
	}
	r.readable[slot] = t
	r.record("read[%d] <- %s", slot, t)
}

// BindWritable implements gpucore.Recorder.
func (r *Recorder) BindWritable(slot uint32, tex gpucore.Texture) {
	t, err := asTexture(tex)
	if err != nil {
		delete(r.writable, slot)
		r.record("write[%d] <- invalid: %v", slot, err)
		return
	}
	r.writable[slot] = t
	r.record("write[%d] <- %s", slot, t)
}

// UnbindWritables implements gpucore.Recorder.
func (r *Recorder) UnbindWritables() {
	clear(r.writable)
	r.record("unbind writables")
}

// Dispatch implements gpucore.Recorder. It runs the kernel over the grid
// with readable slot 0 as source, writable slot 0 as destination and
// constant slot 0 as parameters, and returns when every workgroup is done.
func (r *Recorder) Dispatch(kernel gpucore.KernelID, x, y, z uint32) error {
	k, name, ok := r.program.lookup(kernel)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKernel, kernel)
	}
	src, dst := r.readable[0], r.writable[0]
	if src == nil || dst == nil {
		return fmt.Errorf("%w: %s needs read[0] and write[0]", ErrUnboundResource, name)
	}
	for _, w := range r.writable {
		for _, rd := range r.readable {
			if w == rd {
				return fmt.Errorf("%w: %s", ErrBindingHazard, w)
			}
		}
	}
	consts, err := fsr.DecodeConstants(r.constants[0])
	if err != nil {
		return fmt.Errorf("%w: %s constants: %w", ErrUnboundResource, name, err)
	}

	r.record("dispatch %s %dx%dx%d", name, x, y, z)
	srcImg, dstImg := src.img, dst.img
	r.dev.workers.Dispatch(x, y, z, func(gx, gy, _ uint32) {
		k(consts, srcImg, dstImg, gx, gy)
	})
	return nil
}

// SetViewport implements gpucore.Recorder.
func (r *Recorder) SetViewport(rect gpucore.Rect) {
	r.viewport = rect
	r.record("viewport %d,%d %dx%d", rect.X, rect.Y, rect.Width, rect.Height)
}

// SetRenderTarget implements gpucore.Recorder.
func (r *Recorder) SetRenderTarget(tex gpucore.Texture) {
	t, err := asTexture(tex)
	if err != nil {
		r.target = nil
		r.record("target <- invalid: %v", err)
		return
	}
	r.target = t
	r.record("target <- %s", t)
}

// DrawFullscreen implements gpucore.Recorder. src is copied when its size
// matches the viewport and resampled bilinearly otherwise.
func (r *Recorder) DrawFullscreen(src gpucore.Texture) error {
	s, err := asTexture(src)
	if err != nil {
		return err
	}
	if r.target == nil {
		return fmt.Errorf("%w: no render target", ErrUnboundResource)
	}
	vp := image.Rect(int(r.viewport.X), int(r.viewport.Y),
		int(r.viewport.X+r.viewport.Width), int(r.viewport.Y+r.viewport.Height)).Intersect(r.target.img.Rect)
	if vp.Empty() {
		return fmt.Errorf("%w: empty viewport", ErrUnboundResource)
	}

	r.record("draw %s -> %s", s, r.target)
	sr := s.img.Rect
	if vp.Dx() == sr.Dx() && vp.Dy() == sr.Dy() {
		draw.Copy(r.target.img, vp.Min, s.img, sr, draw.Src, nil)
		return nil
	}
	draw.BiLinear.Scale(r.target.img, vp, s.img, sr, draw.Src, nil)
	return nil
}

// PushDebugGroup implements gpucore.DebugMarker.
func (r *Recorder) PushDebugGroup(label string) {
	r.record("begin %s", label)
	r.groups = append(r.groups, label)
}

// PopDebugGroup implements gpucore.DebugMarker.
func (r *Recorder) PopDebugGroup() {
	if len(r.groups) == 0 {
		fsr.Logger().Warn("software: PopDebugGroup without matching push")
		return
	}
	label := r.groups[len(r.groups)-1]
	r.groups = r.groups[:len(r.groups)-1]
	r.record("end %s", label)
}
