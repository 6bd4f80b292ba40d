// Package native runs the upscaler on a GPU through the Pure Go gogpu/wgpu
// HAL.
//
// HALAdapter owns (or borrows) a hal.Device and hal.Queue and allocates
// textures for the transient pool. Program builds the compute pipelines for
// the upscale and sharpen entry points plus the fullscreen blit pipeline in
// the background. Recorder encodes one frame into a command buffer and
// waits for the queue to complete it.
package native

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/image/draw"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/backend"
	"github.com/gogpu/fsr/gpucore"
)

// Native backend errors.
var (
	// ErrNoAdapter is returned when the HAL backend exposes no adapters.
	ErrNoAdapter = errors.New("native: no GPU adapters found")

	// ErrProviderNotHAL is returned when a device provider does not expose
	// HAL device and queue objects.
	ErrProviderNotHAL = errors.New("native: provider does not expose HAL types")

	// ErrForeignTexture is returned when a texture created by another
	// backend is passed in.
	ErrForeignTexture = errors.New("native: texture does not belong to the native backend")

	// ErrUnsupportedFormat is returned for texture formats the backend cannot
	// upload, download or write from a compute kernel.
	ErrUnsupportedFormat = errors.New("native: unsupported texture format")
)

// copyPitchAlignment is the required BytesPerRow alignment of texture
// to buffer copies.
const copyPitchAlignment = 256

// Texture is a 2D HAL texture with a default view.
type Texture struct {
	tex    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32
	format gputypes.TextureFormat
	label  string

	// usage is the last usage the texture was transitioned to by a
	// submitted recorder; 0 before first use.
	usage gputypes.TextureUsage
}

// Width implements gpucore.Texture.
func (t *Texture) Width() uint32 { return t.width }

// Height implements gpucore.Texture.
func (t *Texture) Height() uint32 { return t.height }

// Format implements gpucore.Texture.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// String returns the debug label.
func (t *Texture) String() string { return t.label }

// HALAdapter wraps a HAL device and queue.
//
// Thread Safety: HALAdapter is safe for concurrent use from multiple goroutines.
// Texture bookkeeping is protected by a mutex.
type HALAdapter struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool // true when using a shared device (don't destroy on Close)

	name          string
	hasCompute    bool
	maxDim        uint32
	surfaceFormat gputypes.TextureFormat

	live   map[*Texture]struct{}
	nextID uint64
}

// NewHALAdapter wraps a device and queue owned by the caller. Close does not
// destroy them.
func NewHALAdapter(device hal.Device, queue hal.Queue) *HALAdapter {
	a := newAdapter(device, queue, "external")
	a.external = true
	return a
}

func newAdapter(device hal.Device, queue hal.Queue, name string) *HALAdapter {
	return &HALAdapter{
		device:        device,
		queue:         queue,
		name:          name,
		hasCompute:    true,
		maxDim:        gputypes.DefaultLimits().MaxTextureDimension2D,
		surfaceFormat: gputypes.TextureFormatBGRA8Unorm,
		live:          make(map[*Texture]struct{}),
	}
}

// NewFromProvider shares the GPU device of a host application. The
// provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*HALAdapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProviderNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProviderNotHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProviderNotHAL)
	}
	a := NewHALAdapter(device, queue)
	a.name = "provider"
	a.surfaceFormat = provider.SurfaceFormat()
	return a, nil
}

// Open creates an instance of the given HAL backend and opens its best
// adapter, preferring discrete and integrated GPUs.
func Open(api gputypes.Backend) (*HALAdapter, error) {
	b, ok := hal.GetBackend(api)
	if !ok {
		return nil, fmt.Errorf("native: HAL backend %v not available", api)
	}
	return openAPI(b)
}

// OpenNoop opens the noop HAL device. Every call succeeds and nothing runs,
// which makes it useful for dry runs and tests.
func OpenNoop() (*HALAdapter, error) {
	return openAPI(noop.API{})
}

func openAPI(api hal.Backend) (*HALAdapter, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	a := newAdapter(openDev.Device, openDev.Queue, selected.Info.Name)
	a.instance = instance
	fsr.Logger().Info("native: adapter opened", "adapter", a.name)
	return a, nil
}

// Name returns the adapter name reported by the driver.
func (a *HALAdapter) Name() string { return a.name }

// Device returns the HAL device.
func (a *HALAdapter) Device() hal.Device { return a.device }

// SurfaceFormat returns the presentation format of the host surface, or
// BGRA8Unorm when the adapter was not created from a provider.
func (a *HALAdapter) SurfaceFormat() gputypes.TextureFormat { return a.surfaceFormat }

// SupportsCompute implements gpucore.Capabilities.
func (a *HALAdapter) SupportsCompute() bool { return a.hasCompute && a.device != nil }

// Close destroys live textures and, unless the device is shared, the
// device and instance.
func (a *HALAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return
	}
	for t := range a.live {
		a.destroyLocked(t)
	}
	if !a.external {
		a.device.Destroy()
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device = nil
	a.queue = nil
	a.instance = nil
}

// CreateTexture implements pool.Allocator. Copy usages are always added so
// every texture can be uploaded to and read back.
func (a *HALAdapter) CreateTexture(desc gpucore.TextureDesc) (gpucore.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.Width > a.maxDim || desc.Height > a.maxDim {
		return nil, fmt.Errorf("%w: %s exceeds %dx%d", gpucore.ErrAllocation, desc, a.maxDim, a.maxDim)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return nil, fmt.Errorf("%w: adapter closed", gpucore.ErrAllocation)
	}
	a.nextID++
	label := fmt.Sprintf("fsr_tex_%d", a.nextID)

	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", gpucore.ErrAllocation, desc, err)
	}
	view, err := a.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		a.device.DestroyTexture(tex)
		return nil, fmt.Errorf("%w: %s view: %w", gpucore.ErrAllocation, desc, err)
	}

	t := &Texture{tex: tex, view: view, width: desc.Width, height: desc.Height, format: desc.Format, label: label}
	a.live[t] = struct{}{}
	return t, nil
}

// DestroyTexture implements pool.Allocator.
func (a *HALAdapter) DestroyTexture(tex gpucore.Texture) {
	t, ok := tex.(*Texture)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, live := a.live[t]; live && a.device != nil {
		a.destroyLocked(t)
	}
}

func (a *HALAdapter) destroyLocked(t *Texture) {
	a.device.DestroyTextureView(t.view)
	a.device.DestroyTexture(t.tex)
	delete(a.live, t)
}

// LiveTextures returns the number of textures created and not destroyed.
func (a *HALAdapter) LiveTextures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

func (a *HALAdapter) owns(tex gpucore.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok || t == nil {
		return nil, ErrForeignTexture
	}
	a.mu.Lock()
	_, live := a.live[t]
	a.mu.Unlock()
	if !live {
		return nil, fmt.Errorf("%w: %s was destroyed", ErrForeignTexture, t.label)
	}
	return t, nil
}

// Upload creates a texture and writes img into it. Only 8-bit RGBA and
// BGRA formats are accepted.
func (a *HALAdapter) Upload(img image.Image, format gputypes.TextureFormat) (gpucore.Texture, error) {
	if !isByteFormat(format) {
		return nil, fmt.Errorf("%w: upload to %v", ErrUnsupportedFormat, format)
	}
	b := img.Bounds()
	tex, err := a.CreateTexture(gpucore.TextureDesc{
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Format: format,
		Usage:  gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, err
	}
	t := tex.(*Texture)

	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(rgba, image.Point{}, img, b, draw.Src, nil)
	if format == gputypes.TextureFormatBGRA8Unorm {
		swapRB(rgba.Pix)
	}

	err = a.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Aspect:   gputypes.TextureAspectAll,
		},
		rgba.Pix,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  t.width * 4,
			RowsPerImage: t.height,
		},
		&hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		a.DestroyTexture(t)
		return nil, fmt.Errorf("write texture: %w", err)
	}
	t.usage = gputypes.TextureUsageCopyDst
	return t, nil
}

// Download copies tex into an RGBA image through a staging buffer.
// The copy is submitted and waited for immediately.
func (a *HALAdapter) Download(tex gpucore.Texture) (image.Image, error) {
	t, err := a.owns(tex)
	if err != nil {
		return nil, err
	}
	if !isByteFormat(t.format) {
		return nil, fmt.Errorf("%w: download from %v", ErrUnsupportedFormat, t.format)
	}

	w, h := t.width, t.height
	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	size := uint64(alignedBytesPerRow) * uint64(h)

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fsr_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(staging)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fsr_readback"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	defer encoder.Destroy()
	if err := encoder.BeginEncoding("fsr_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	if t.usage != 0 && t.usage != gputypes.TextureUsageCopySrc {
		encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: t.usage,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
	}
	encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	if err := a.submitAndWait(cmdBuf); err != nil {
		return nil, err
	}
	t.usage = gputypes.TextureUsageCopySrc

	mapping, err := a.device.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrReadbackUnsupported, err)
	}
	readback := unsafe.Slice((*byte)(mapping.Ptr), size)

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for row := range h {
		src := readback[uint64(row)*uint64(alignedBytesPerRow):]
		copy(img.Pix[int(row)*img.Stride:], src[:bytesPerRow])
	}
	if err := a.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("unmap staging buffer: %w", err)
	}
	if t.format == gputypes.TextureFormatBGRA8Unorm {
		swapRB(img.Pix)
	}
	return img, nil
}

// submitAndWait submits cmdBuf and blocks until the queue has completed it.
func (a *HALAdapter) submitAndWait(cmdBuf hal.CommandBuffer) error {
	index, err := a.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if a.queue.PollCompleted() >= index {
		return nil
	}
	if err := a.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	return nil
}

func isByteFormat(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatRGBA8Unorm || f == gputypes.TextureFormatBGRA8Unorm
}

// swapRB converts between RGBA and BGRA byte order in place.
func swapRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
