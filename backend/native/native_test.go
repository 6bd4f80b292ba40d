package native

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/backend"
	"github.com/gogpu/fsr/gpucore"
	"github.com/gogpu/fsr/pool"
)

var rgba8 = gputypes.TextureFormatRGBA8Unorm

// openNoop creates a noop adapter with a loaded stand-in program.
func openNoop(t *testing.T) (*HALAdapter, *Program) {
	t.Helper()
	a, err := OpenNoop()
	if err != nil {
		t.Fatalf("OpenNoop failed: %v", err)
	}
	p := LoadProgram(a, StandInShaders())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		a.Close()
		t.Fatalf("program load failed: %v", err)
	}
	t.Cleanup(func() {
		p.Close()
		a.Close()
	})
	return a, p
}

func TestAdapterCreateTexture(t *testing.T) {
	a, _ := openNoop(t)

	tests := []struct {
		name    string
		desc    gpucore.TextureDesc
		wantErr bool
	}{
		{"intermediate", gpucore.TextureDesc{Width: 1920, Height: 1080, Format: rgba8, Usage: gpucore.TextureUsageReadWrite}, false},
		{"render target", gpucore.TextureDesc{Width: 64, Height: 64, Format: gputypes.TextureFormatBGRA8Unorm, Usage: gputypes.TextureUsageRenderAttachment}, false},
		{"zero width", gpucore.TextureDesc{Width: 0, Height: 64, Format: rgba8}, true},
		{"too large", gpucore.TextureDesc{Width: 1 << 20, Height: 1, Format: rgba8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, err := a.CreateTexture(tt.desc)
			if tt.wantErr {
				if !errors.Is(err, gpucore.ErrAllocation) {
					t.Errorf("err = %v, want ErrAllocation", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tex.Width() != tt.desc.Width || tex.Height() != tt.desc.Height || tex.Format() != tt.desc.Format {
				t.Errorf("got %dx%d %v, want %s", tex.Width(), tex.Height(), tex.Format(), tt.desc)
			}
			a.DestroyTexture(tex)
		})
	}
	if n := a.LiveTextures(); n != 0 {
		t.Errorf("LiveTextures() = %d, want 0", n)
	}
}

func TestProgramLoad(t *testing.T) {
	_, p := openNoop(t)

	if !p.IsLoaded() || p.Err() != nil {
		t.Fatalf("IsLoaded=%v Err=%v", p.IsLoaded(), p.Err())
	}
	up, ok := p.Kernel(fsr.DefaultUpscaleKernel)
	if !ok || up != 1 {
		t.Errorf("upscale kernel = %d, %v; want 1", up, ok)
	}
	sh, ok := p.Kernel(fsr.DefaultSharpenKernel)
	if !ok || sh != 2 {
		t.Errorf("sharpen kernel = %d, %v; want 2", sh, ok)
	}
	if _, ok := p.Kernel("CS_Missing"); ok {
		t.Error("unknown entry point resolved")
	}
}

func TestCompileSPIRV(t *testing.T) {
	const spirvMagic = 0x07230203

	tests := []struct {
		name string
		wgsl string
	}{
		{"stand-in kernels", standInWGSL},
		{"blit", blitWGSL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, err := compileSPIRV(tt.wgsl)
			if err != nil {
				t.Fatalf("compileSPIRV failed: %v", err)
			}
			if len(words) < 5 || words[0] != spirvMagic {
				t.Errorf("module header = %#x (%d words), want SPIR-V magic", words[:min(len(words), 1)], len(words))
			}
		})
	}

	if _, err := compileSPIRV("fn broken( {"); err == nil {
		t.Error("invalid WGSL compiled")
	}
}

func TestProgramLoadSPIRV(t *testing.T) {
	a, err := OpenNoop()
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	p := LoadProgram(a, StandInShaders(), WithSPIRV())
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("SPIR-V program load failed: %v", err)
	}
	for _, name := range []string{fsr.DefaultUpscaleKernel, fsr.DefaultSharpenKernel} {
		if _, ok := p.Kernel(name); !ok {
			t.Errorf("kernel %s not resolved", name)
		}
	}
}

func TestDownloadFormats(t *testing.T) {
	a, _ := openNoop(t)

	img := image.NewRGBA(image.Rect(0, 0, 70, 3))
	for _, format := range []gputypes.TextureFormat{rgba8, gputypes.TextureFormatBGRA8Unorm} {
		tex, err := a.Upload(img, format)
		if err != nil {
			t.Fatalf("Upload(%v): %v", format, err)
		}
		got, err := a.Download(tex)
		if err != nil {
			t.Fatalf("Download(%v): %v", format, err)
		}
		if got.Bounds() != img.Bounds() {
			t.Errorf("Download(%v) bounds = %v, want %v", format, got.Bounds(), img.Bounds())
		}
		a.DestroyTexture(tex)
	}

	if _, err := a.Upload(img, gputypes.TextureFormatRGBA16Float); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Upload(RGBA16Float) err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestProgramLoadFailure(t *testing.T) {
	a, err := OpenNoop()
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	p := LoadProgram(a, ShaderSource{Label: "empty", WGSL: standInWGSL})
	defer p.Close()
	if err := p.Wait(context.Background()); err == nil {
		t.Fatal("loading a program without entry points should fail")
	}
	if p.IsLoaded() || p.Err() == nil {
		t.Errorf("IsLoaded=%v Err=%v after failed load", p.IsLoaded(), p.Err())
	}
	if _, ok := p.Kernel(fsr.DefaultUpscaleKernel); ok {
		t.Error("failed program resolved a kernel")
	}

	// The gate reports the load failure.
	g := fsr.NewGate(p, a, true)
	if err := g.Evaluate(); !errors.Is(err, fsr.ErrShaderNotReady) {
		t.Errorf("gate err = %v, want ErrShaderNotReady", err)
	}
}

func TestRecorderDispatchErrors(t *testing.T) {
	a, p := openNoop(t)
	up, _ := p.Kernel(fsr.DefaultUpscaleKernel)
	newTex := func(format gputypes.TextureFormat) gpucore.Texture {
		tex, err := a.CreateTexture(gpucore.TextureDesc{Width: 32, Height: 32, Format: format, Usage: gpucore.TextureUsageReadWrite})
		if err != nil {
			t.Fatal(err)
		}
		return tex
	}
	src, dst := newTex(rgba8), newTex(rgba8)
	bgra := newTex(gputypes.TextureFormatBGRA8Unorm)
	consts := fsr.ComputeSharpenConstants(0).Bytes()

	tests := []struct {
		name  string
		setup func(r *Recorder)
		id    gpucore.KernelID
		want  error
	}{
		{"unknown kernel", func(*Recorder) {}, 42, ErrUnknownKernel},
		{"unbound", func(r *Recorder) { r.BindReadable(0, src) }, up, ErrUnboundResource},
		{"hazard", func(r *Recorder) {
			r.BindConstantBuffer(0, consts)
			r.BindReadable(0, src)
			r.BindWritable(0, src)
		}, up, ErrBindingHazard},
		{"storage format", func(r *Recorder) {
			r.BindConstantBuffer(0, consts)
			r.BindReadable(0, src)
			r.BindWritable(0, bgra)
		}, up, ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := a.NewRecorder(p)
			if err != nil {
				t.Fatal(err)
			}
			defer rec.Discard()
			tt.setup(rec)
			if err := rec.Dispatch(tt.id, 2, 2, 1); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("ok", func(t *testing.T) {
		rec, err := a.NewRecorder(p)
		if err != nil {
			t.Fatal(err)
		}
		rec.BindConstantBuffer(0, consts)
		rec.BindReadable(0, src)
		rec.BindWritable(0, dst)
		if err := rec.Dispatch(up, 2, 2, 1); err != nil {
			t.Fatal(err)
		}
		rec.UnbindWritables()
		if err := rec.Submit(); err != nil {
			t.Fatal(err)
		}
		if err := rec.Submit(); !errors.Is(err, ErrSubmitted) {
			t.Errorf("second Submit err = %v, want ErrSubmitted", err)
		}
	})
}

func TestUpscalerOnNoopDevice(t *testing.T) {
	a, p := openNoop(t)
	textures := pool.New(a)
	defer textures.Close()

	u, err := fsr.NewUpscaler(p, textures, a, fsr.WithIntermediateFormat(rgba8))
	if err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	in, err := a.Upload(img, rgba8)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.CreateTexture(gpucore.TextureDesc{
		Width: 96, Height: 54, Format: gputypes.TextureFormatBGRA8Unorm,
		Usage: gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatal(err)
	}

	for frame := range 3 {
		rec, err := a.NewRecorder(p)
		if err != nil {
			t.Fatal(err)
		}
		outcome, err := u.Render(rec, fsr.Frame{Input: in, Output: out})
		if err != nil || outcome != fsr.OutcomeUpscaled {
			t.Fatalf("frame %d: outcome=%v err=%v", frame, outcome, err)
		}
		if err := rec.Submit(); err != nil {
			t.Fatalf("frame %d: submit: %v", frame, err)
		}
	}

	if s := textures.Stats(); s.Allocations != 2 || s.InUse != 0 {
		t.Errorf("pool stats = %+v, want 2 allocations and none in use", s)
	}
	// The noop device reads back zeroes; only the shape is checked.
	got, err := a.Download(out)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds() != image.Rect(0, 0, 96, 54) {
		t.Errorf("downloaded bounds = %v", got.Bounds())
	}
}

func TestBackendRegistered(t *testing.T) {
	for _, name := range []string{backend.BackendNative, backend.BackendNoop} {
		if !backend.IsRegistered(name) {
			t.Errorf("%s not registered", name)
		}
	}

	b, err := backend.Open(backend.BackendNoop)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.(*Backend).Loader().Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !b.SupportsCompute() || !b.Program().IsLoaded() {
		t.Error("noop backend should be compute capable with a loaded program")
	}
	rec, err := b.NewRecorder()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rec.(gpucore.DebugMarker); !ok {
		t.Error("native recorder should implement gpucore.DebugMarker")
	}
	if err := rec.Submit(); err != nil {
		t.Errorf("empty Submit: %v", err)
	}
}

func TestSwapRB(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	swapRB(pix)
	want := []byte{3, 2, 1, 4, 7, 6, 5, 8}
	for i := range pix {
		if pix[i] != want[i] {
			t.Fatalf("swapRB = %v, want %v", pix, want)
		}
	}
}
