package software

import (
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/gpucore"
)

// Kernel runs one workgroup: the TileSize x TileSize tile at (gx, gy) of dst.
// Texels past the edge of dst are skipped.
type Kernel func(consts [4]mgl32.Vec4, src, dst *image.RGBA64, gx, gy uint32)

// Program maps entry point names to CPU kernels. It is loaded from creation.
type Program struct {
	names   map[string]gpucore.KernelID
	kernels map[gpucore.KernelID]Kernel
	labels  map[gpucore.KernelID]string
}

// NewProgram returns a program with the stand-in upscale and sharpen kernels
// registered under the default entry point names.
func NewProgram() *Program {
	p := &Program{
		names:   make(map[string]gpucore.KernelID),
		kernels: make(map[gpucore.KernelID]Kernel),
		labels:  make(map[gpucore.KernelID]string),
	}
	p.Register(fsr.DefaultUpscaleKernel, UpscaleKernel)
	p.Register(fsr.DefaultSharpenKernel, SharpenKernel)
	return p
}

// Register adds or replaces an entry point.
func (p *Program) Register(name string, k Kernel) gpucore.KernelID {
	id, ok := p.names[name]
	if !ok {
		id = gpucore.KernelID(len(p.names) + 1)
		p.names[name] = id
		p.labels[id] = name
	}
	p.kernels[id] = k
	return id
}

// IsLoaded implements gpucore.Program.
func (p *Program) IsLoaded() bool { return true }

// Kernel implements gpucore.Program.
func (p *Program) Kernel(name string) (gpucore.KernelID, bool) {
	id, ok := p.names[name]
	return id, ok
}

func (p *Program) lookup(id gpucore.KernelID) (Kernel, string, bool) {
	k, ok := p.kernels[id]
	return k, p.labels[id], ok
}

// tile returns the texel range of workgroup (gx, gy) clipped to r.
func tile(r image.Rectangle, gx, gy uint32) image.Rectangle {
	x0 := r.Min.X + int(gx)*fsr.TileSize
	y0 := r.Min.Y + int(gy)*fsr.TileSize
	return image.Rect(x0, y0, x0+fsr.TileSize, y0+fsr.TileSize).Intersect(r)
}

type texel [4]float32

func load(img *image.RGBA64, x, y int) texel {
	b := img.Rect
	x = min(max(x, b.Min.X), b.Max.X-1)
	y = min(max(y, b.Min.Y), b.Max.Y-1)
	c := img.RGBA64At(x, y)
	return texel{float32(c.R) / 0xffff, float32(c.G) / 0xffff, float32(c.B) / 0xffff, float32(c.A) / 0xffff}
}

func store(img *image.RGBA64, x, y int, t texel) {
	var c [4]uint16
	for i, v := range t {
		c[i] = uint16(math32.Round(clamp01(v) * 0xffff))
	}
	img.SetRGBA64(x, y, color.RGBA64{R: c[0], G: c[1], B: c[2], A: c[3]})
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}

func lerp(a, b texel, t float32) texel {
	var out texel
	for i := range out {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}

// UpscaleKernel is the stand-in upscale pass. It maps each output texel to
// input pixel space with consts[0] (scale in xy, offset in zw) and samples
// the input bilinearly with clamp-to-edge addressing.
func UpscaleKernel(consts [4]mgl32.Vec4, src, dst *image.RGBA64, gx, gy uint32) {
	c0 := consts[0]
	r := tile(dst.Rect, gx, gy)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		sy := float32(y)*c0[1] + c0[3]
		y0 := int(math32.Floor(sy))
		fy := sy - float32(y0)
		for x := r.Min.X; x < r.Max.X; x++ {
			sx := float32(x)*c0[0] + c0[2]
			x0 := int(math32.Floor(sx))
			fx := sx - float32(x0)

			top := lerp(load(src, x0, y0), load(src, x0+1, y0), fx)
			bottom := lerp(load(src, x0, y0+1), load(src, x0+1, y0+1), fx)
			store(dst, x, y, lerp(top, bottom, fy))
		}
	}
}

// SharpenKernel is the stand-in sharpen pass. consts[0].y scales a 5-tap
// unsharp mask; the result is held within the neighborhood range widened by
// consts[0].x of its span.
func SharpenKernel(consts [4]mgl32.Vec4, src, dst *image.RGBA64, gx, gy uint32) {
	limit, amount := consts[0][0], consts[0][1]*0.25
	r := tile(dst.Rect, gx, gy)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := load(src, x, y)
			n := [4]texel{load(src, x, y-1), load(src, x-1, y), load(src, x+1, y), load(src, x, y+1)}

			var out texel
			for i := range out {
				lo, hi := c[i], c[i]
				var sum float32
				for _, t := range n {
					lo = math32.Min(lo, t[i])
					hi = math32.Max(hi, t[i])
					sum += t[i]
				}
				v := c[i] + amount*(4*c[i]-sum)
				span := (hi - lo) * limit
				out[i] = math32.Max(lo-span, math32.Min(hi+span, v))
			}
			// Alpha passes through unsharpened.
			out[3] = c[3]
			store(dst, x, y, out)
		}
	}
}
