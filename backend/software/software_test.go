package software

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/backend"
	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/pool"
)

var rgba8 = gputypes.TextureFormatRGBA8Unorm

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDeviceCreateTexture(t *testing.T) {
	dev := New(WithWorkers(2), WithMaxTextureDimension(64))
	defer dev.Close()

	tests := []struct {
		name    string
		desc    gpucore.TextureDesc
		wantErr bool
	}{
		{"ok", gpucore.TextureDesc{Width: 64, Height: 32, Format: rgba8}, false},
		{"zero", gpucore.TextureDesc{Width: 0, Height: 32, Format: rgba8}, true},
		{"too large", gpucore.TextureDesc{Width: 65, Height: 1, Format: rgba8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, err := dev.CreateTexture(tt.desc)
			if tt.wantErr {
				if !errors.Is(err, gpucore.ErrAllocation) {
					t.Errorf("err = %v, want ErrAllocation", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tex.Width() != tt.desc.Width || tex.Height() != tt.desc.Height || tex.Format() != rgba8 {
				t.Errorf("texture %dx%d %v, want %s", tex.Width(), tex.Height(), tex.Format(), tt.desc)
			}
			dev.DestroyTexture(tex)
		})
	}
	if dev.LiveTextures() != 0 {
		t.Errorf("LiveTextures() = %d, want 0", dev.LiveTextures())
	}
}

func TestProgramKernels(t *testing.T) {
	p := NewProgram()
	if !p.IsLoaded() {
		t.Fatal("software program should be loaded")
	}
	up, ok := p.Kernel(fsr.DefaultUpscaleKernel)
	if !ok {
		t.Fatal("upscale kernel missing")
	}
	sh, ok := p.Kernel(fsr.DefaultSharpenKernel)
	if !ok || sh == up {
		t.Fatal("sharpen kernel missing or aliased")
	}
	if _, ok := p.Kernel("CS_Missing"); ok {
		t.Error("unknown entry point resolved")
	}
	if id := p.Register(fsr.DefaultUpscaleKernel, UpscaleKernel); id != up {
		t.Error("re-registering changed the kernel ID")
	}
}

func TestUpscaleIdentity(t *testing.T) {
	src := image.NewRGBA64(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			src.SetRGBA64(x, y, color.RGBA64{R: uint16(x * 3000), G: uint16(y * 3000), B: 0x8000, A: 0xffff})
		}
	}
	dst := image.NewRGBA64(src.Rect)
	c := fsr.ComputeUpscaleConstants(fsr.Dimensions{Width: 20, Height: 20}, fsr.Dimensions{Width: 20, Height: 20}, fsr.Dimensions{Width: 20, Height: 20})
	for gy := uint32(0); gy < 2; gy++ {
		for gx := uint32(0); gx < 2; gx++ {
			UpscaleKernel(c, src, dst, gx, gy)
		}
	}
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if dst.RGBA64At(x, y) != src.RGBA64At(x, y) {
				t.Fatalf("(%d,%d) = %v, want %v", x, y, dst.RGBA64At(x, y), src.RGBA64At(x, y))
			}
		}
	}
}

func TestSharpenBounded(t *testing.T) {
	// Vertical step edge: dark left half, bright right half.
	src := image.NewRGBA64(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := uint16(0x4000)
			if x >= 8 {
				v = 0xc000
			}
			src.SetRGBA64(x, y, color.RGBA64{R: v, G: v, B: v, A: 0xffff})
		}
	}
	dst := image.NewRGBA64(src.Rect)
	SharpenKernel(fsr.ComputeSharpenConstants(0), src, dst, 0, 0)

	// Flat regions are unchanged.
	if got := dst.RGBA64At(2, 2); got != src.RGBA64At(2, 2) {
		t.Errorf("flat texel changed: %v", got)
	}
	// Edge texels gain contrast but stay within half the local span.
	left, right := dst.RGBA64At(7, 5).R, dst.RGBA64At(8, 5).R
	if left >= 0x4000 || right <= 0xc000 {
		t.Errorf("edge not sharpened: left=%#x right=%#x", left, right)
	}
	// 0.25 + 0.25*(4*0.25 - 1.5) = 0.125 and 0.75 + 0.25*(4*0.75 - 2.5) = 0.875.
	if absDiff(left, 0x2000) > 2 || absDiff(right, 0xe000) > 2 {
		t.Errorf("edge texels = %#x, %#x; want about 0x2000, 0xe000", left, right)
	}
	if dst.RGBA64At(7, 5).A != 0xffff {
		t.Error("alpha must pass through")
	}
}

func TestRecorderDispatchErrors(t *testing.T) {
	dev := New(WithWorkers(1))
	defer dev.Close()
	prog := NewProgram()
	up, _ := prog.Kernel(fsr.DefaultUpscaleKernel)
	a := NewTexture(16, 16, rgba8)
	b := NewTexture(16, 16, rgba8)
	consts := fsr.ComputeSharpenConstants(0).Bytes()

	t.Run("unbound", func(t *testing.T) {
		rec := dev.NewRecorder(prog)
		rec.BindConstantBuffer(0, consts)
		rec.BindReadable(0, a)
		if err := rec.Dispatch(up, 1, 1, 1); !errors.Is(err, ErrUnboundResource) {
			t.Errorf("err = %v, want ErrUnboundResource", err)
		}
	})
	t.Run("hazard", func(t *testing.T) {
		rec := dev.NewRecorder(prog)
		rec.BindConstantBuffer(0, consts)
		rec.BindReadable(0, a)
		rec.BindWritable(0, a)
		if err := rec.Dispatch(up, 1, 1, 1); !errors.Is(err, ErrBindingHazard) {
			t.Errorf("err = %v, want ErrBindingHazard", err)
		}
	})
	t.Run("missing constants", func(t *testing.T) {
		rec := dev.NewRecorder(prog)
		rec.BindReadable(0, a)
		rec.BindWritable(0, b)
		if err := rec.Dispatch(up, 1, 1, 1); !errors.Is(err, ErrUnboundResource) {
			t.Errorf("err = %v, want ErrUnboundResource", err)
		}
	})
	t.Run("unknown kernel", func(t *testing.T) {
		rec := dev.NewRecorder(prog)
		if err := rec.Dispatch(99, 1, 1, 1); !errors.Is(err, ErrUnknownKernel) {
			t.Errorf("err = %v, want ErrUnknownKernel", err)
		}
	})
	t.Run("draw without target", func(t *testing.T) {
		rec := dev.NewRecorder(prog)
		rec.SetViewport(gpucore.Rect{Width: 16, Height: 16})
		if err := rec.DrawFullscreen(a); !errors.Is(err, ErrUnboundResource) {
			t.Errorf("err = %v, want ErrUnboundResource", err)
		}
	})
}

func TestUpscalerOnSoftwareBackend(t *testing.T) {
	dev := New(WithWorkers(4))
	defer dev.Close()
	textures := pool.New(dev)
	defer textures.Close()

	u, err := fsr.NewUpscaler(NewProgram(), textures, dev, fsr.WithSharpness(0.25))
	if err != nil {
		t.Fatal(err)
	}

	teal := color.RGBA{R: 0, G: 128, B: 128, A: 255}
	input := TextureFromImage(solid(40, 30, teal), rgba8)
	input.SetLabel("input")
	output := NewTexture(60, 45, rgba8)
	output.SetLabel("output")

	rec := dev.NewRecorder(NewProgram())
	outcome, err := u.Render(rec, fsr.Frame{Input: input, Output: output})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if outcome != fsr.OutcomeUpscaled {
		t.Fatalf("outcome = %v", outcome)
	}

	want := color.RGBA64Model.Convert(teal).(color.RGBA64)
	for _, p := range []image.Point{{0, 0}, {30, 22}, {59, 44}} {
		if got := output.Image().RGBA64At(p.X, p.Y); got != want {
			t.Errorf("output%v = %v, want %v", p, got, want)
		}
	}

	trace := strings.Join(rec.Trace(), "\n")
	for _, line := range []string{"begin FSR", "dispatch CS_Upscale 4x3x1", "dispatch CS_Sharpen 4x3x1", "draw", "end FSR"} {
		if !strings.Contains(trace, line) {
			t.Errorf("trace missing %q:\n%s", line, trace)
		}
	}

	s := textures.Stats()
	if s.InUse != 0 || s.Allocations != 2 || s.Idle != 2 {
		t.Errorf("pool stats after frame: %+v", s)
	}

	// Second frame reuses both textures.
	if _, err := u.Render(dev.NewRecorder(NewProgram()), fsr.Frame{Input: input, Output: output}); err != nil {
		t.Fatal(err)
	}
	if s := textures.Stats(); s.Allocations != 2 || s.Reuses != 2 {
		t.Errorf("pool stats after second frame: %+v", s)
	}
}

func TestPassThroughBlit(t *testing.T) {
	dev := New(WithWorkers(1))
	defer dev.Close()
	u, err := fsr.NewUpscaler(NewProgram(), pool.New(dev), dev, fsr.WithEnabled(false))
	if err != nil {
		t.Fatal(err)
	}
	red := color.RGBA{R: 255, A: 255}
	input := TextureFromImage(solid(8, 8, red), rgba8)
	output := NewTexture(8, 8, rgba8)

	outcome, err := u.Render(dev.NewRecorder(NewProgram()), fsr.Frame{Input: input, Output: output})
	if !errors.Is(err, fsr.ErrEffectDisabled) || outcome != fsr.OutcomePassThrough {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if got := output.Image().RGBA64At(4, 4); got != color.RGBA64Model.Convert(red).(color.RGBA64) {
		t.Errorf("pass-through pixel = %v", got)
	}
}

func absDiff(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestBackendRegisteredAndRoundTrip(t *testing.T) {
	if !backend.IsRegistered(backend.BackendSoftware) {
		t.Fatal("software backend not registered")
	}
	b, err := backend.Open(backend.BackendSoftware)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if !b.SupportsCompute() || !b.Program().IsLoaded() {
		t.Fatal("initialized software backend must be compute capable and loaded")
	}

	src := solid(24, 16, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	in, err := b.Upload(src, rgba8)
	if err != nil {
		t.Fatal(err)
	}
	defer b.DestroyTexture(in)
	out, err := b.CreateTexture(gpucore.TextureDesc{Width: 48, Height: 32, Format: rgba8})
	if err != nil {
		t.Fatal(err)
	}
	defer b.DestroyTexture(out)

	textures := pool.New(b)
	defer textures.Close()
	u, err := fsr.NewUpscaler(b.Program(), textures, b)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := b.NewRecorder()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := u.Render(rec, fsr.Frame{Input: in, Output: out}); err != nil {
		t.Fatal(err)
	}
	if err := rec.Submit(); err != nil {
		t.Fatal(err)
	}

	img, err := b.Download(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 48, 32) {
		t.Fatalf("downloaded bounds = %v", got)
	}
	want := color.RGBA64Model.Convert(src.At(0, 0))
	if got := color.RGBA64Model.Convert(img.At(20, 10)); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
}

func TestBackendBeforeInit(t *testing.T) {
	b := NewBackend()
	if b.SupportsCompute() {
		t.Error("uninitialized backend reports compute support")
	}
	if _, err := b.NewRecorder(); !errors.Is(err, backend.ErrNotInitialized) {
		t.Errorf("NewRecorder err = %v", err)
	}
	if _, err := b.CreateTexture(gpucore.TextureDesc{Width: 1, Height: 1}); !errors.Is(err, gpucore.ErrAllocation) {
		t.Errorf("CreateTexture err = %v", err)
	}
}
