// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/gpucore"
)

// ErrProgramNotLoaded is returned when recording against a program that
// has not finished loading, or failed to.
var ErrProgramNotLoaded = errors.New("native: program not loaded")

// blitPipelineCacheSize bounds the number of per-format blit pipelines.
const blitPipelineCacheSize = 4

// ShaderSource is a WGSL module and the compute entry points to build
// pipelines for. Kernel IDs follow EntryPoints order, starting at 1.
type ShaderSource struct {
	Label       string
	WGSL        string
	EntryPoints []string
}

// ProgramOption configures LoadProgram.
type ProgramOption func(*programConfig)

type programConfig struct {
	spirv bool
}

// WithSPIRV compiles the WGSL module to SPIR-V with naga before creating
// the shader module, for drivers that only accept SPIR-V.
func WithSPIRV() ProgramOption {
	return func(c *programConfig) { c.spirv = true }
}

// Program holds the compute pipelines for a shader module and the
// fullscreen blit pipelines. It is built asynchronously by LoadProgram and
// implements gpucore.Program and gpucore.LoadReporter.
type Program struct {
	adapter *HALAdapter
	src     ShaderSource
	cfg     programConfig

	loaded atomic.Bool
	done   chan struct{}
	err    error // written before done is closed

	// Written once by load before loaded is set.
	names          map[string]gpucore.KernelID
	computeModule  hal.ShaderModule
	computeLayout  hal.BindGroupLayout
	computePipe    hal.PipelineLayout
	pipelines      []hal.ComputePipeline
	blitModule     hal.ShaderModule
	blitLayout     hal.BindGroupLayout
	blitPipeLayout hal.PipelineLayout

	mu            sync.Mutex
	blitPipelines *lru.Cache[gputypes.TextureFormat, hal.RenderPipeline]
	closed        bool
}

var _ gpucore.Program = (*Program)(nil)

// LoadProgram starts building src on the adapter's device and returns
// immediately. IsLoaded reports completion; Err reports a failed build.
func LoadProgram(a *HALAdapter, src ShaderSource, opts ...ProgramOption) *Program {
	p := &Program{
		adapter: a,
		src:     src,
		done:    make(chan struct{}),
		names:   make(map[string]gpucore.KernelID, len(src.EntryPoints)),
	}
	for _, opt := range opts {
		opt(&p.cfg)
	}
	go p.run()
	return p
}

func (p *Program) run() {
	defer close(p.done)
	if err := p.load(); err != nil {
		p.destroy()
		p.err = err
		fsr.Logger().Warn("native: program load failed", "program", p.src.Label, "err", err)
		return
	}
	p.loaded.Store(true)
	fsr.Logger().Info("native: program loaded", "program", p.src.Label, "kernels", len(p.pipelines))
}

// IsLoaded implements gpucore.Program.
func (p *Program) IsLoaded() bool { return p.loaded.Load() }

// Err implements gpucore.LoadReporter.
func (p *Program) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until loading finishes or ctx is done.
func (p *Program) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kernel implements gpucore.Program.
func (p *Program) Kernel(entryPoint string) (gpucore.KernelID, bool) {
	if !p.loaded.Load() {
		return gpucore.InvalidID, false
	}
	id, ok := p.names[entryPoint]
	return id, ok
}

// Close waits for loading to finish and destroys every pipeline.
func (p *Program) Close() {
	<-p.done
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.loaded.Store(false)
	p.destroy()
}

func (p *Program) load() error {
	if len(p.src.EntryPoints) == 0 {
		return errors.New("native: shader source has no entry points")
	}
	dev := p.adapter.Device()
	if dev == nil {
		return errors.New("native: adapter closed")
	}

	module, err := p.shaderModule(dev, p.src.Label, p.src.WGSL)
	if err != nil {
		return err
	}
	p.computeModule = module

	layout, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: p.src.Label + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageCompute,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageCompute,
				StorageTexture: &gputypes.StorageTextureBindingLayout{
					Access:        gputypes.StorageTextureAccessWriteOnly,
					Format:        storageFormat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create compute bind layout: %w", err)
	}
	p.computeLayout = layout

	pipeLayout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: p.src.Label + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{p.computeLayout},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline layout: %w", err)
	}
	p.computePipe = pipeLayout

	for _, entry := range p.src.EntryPoints {
		pipeline, err := dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label: entry, Layout: p.computePipe,
			Compute: hal.ComputeState{Module: p.computeModule, EntryPoint: entry},
		})
		if err != nil {
			return fmt.Errorf("create compute pipeline %s: %w", entry, err)
		}
		p.pipelines = append(p.pipelines, pipeline)
		p.names[entry] = gpucore.KernelID(len(p.pipelines))
	}

	return p.loadBlit(dev)
}

func (p *Program) loadBlit(dev hal.Device) error {
	module, err := p.shaderModule(dev, "fsr_blit", blitWGSL)
	if err != nil {
		return err
	}
	p.blitModule = module

	layout, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "fsr_blit_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create blit bind layout: %w", err)
	}
	p.blitLayout = layout

	pipeLayout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "fsr_blit_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{p.blitLayout},
	})
	if err != nil {
		return fmt.Errorf("create blit pipeline layout: %w", err)
	}
	p.blitPipeLayout = pipeLayout

	cache, err := lru.NewWithEvict(blitPipelineCacheSize, func(_ gputypes.TextureFormat, rp hal.RenderPipeline) {
		dev.DestroyRenderPipeline(rp)
	})
	if err != nil {
		return err
	}
	p.blitPipelines = cache
	return nil
}

// shaderModule creates a module from WGSL, or from SPIR-V compiled by naga
// when WithSPIRV is set.
func (p *Program) shaderModule(dev hal.Device, label, wgsl string) (hal.ShaderModule, error) {
	source := hal.ShaderSource{WGSL: wgsl}
	if p.cfg.spirv {
		spirv, err := compileSPIRV(wgsl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		source = hal.ShaderSource{SPIRV: spirv}
	}
	module, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: source})
	if err != nil {
		return nil, fmt.Errorf("create shader module %s: %w", label, err)
	}
	return module, nil
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a multiple of 4", len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// computePipeline returns the pipeline and label for a kernel ID.
func (p *Program) computePipeline(id gpucore.KernelID) (hal.ComputePipeline, string, bool) {
	if !p.loaded.Load() || id == gpucore.InvalidID || int(id) > len(p.pipelines) {
		return nil, "", false
	}
	return p.pipelines[id-1], p.src.EntryPoints[id-1], true
}

// blitPipeline returns the blit pipeline for a render target format,
// building it on first use.
func (p *Program) blitPipeline(format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	if !p.loaded.Load() {
		return nil, ErrProgramNotLoaded
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if rp, ok := p.blitPipelines.Get(format); ok {
		return rp, nil
	}

	rp, err := p.adapter.Device().CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("fsr_blit_%d", format),
		Layout: p.blitPipeLayout,
		Vertex: hal.VertexState{
			Module:     p.blitModule,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.blitModule,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create blit pipeline: %w", err)
	}
	p.blitPipelines.Add(format, rp)
	return rp, nil
}

// destroy releases whatever load created, in reverse order. It is safe to
// call more than once.
func (p *Program) destroy() {
	dev := p.adapter.Device()
	if dev == nil {
		return
	}
	if p.blitPipelines != nil {
		p.blitPipelines.Purge()
	}
	if p.blitPipeLayout != nil {
		dev.DestroyPipelineLayout(p.blitPipeLayout)
		p.blitPipeLayout = nil
	}
	if p.blitLayout != nil {
		dev.DestroyBindGroupLayout(p.blitLayout)
		p.blitLayout = nil
	}
	if p.blitModule != nil {
		dev.DestroyShaderModule(p.blitModule)
		p.blitModule = nil
	}
	for _, pipeline := range p.pipelines {
		dev.DestroyComputePipeline(pipeline)
	}
	p.pipelines = nil
	if p.computePipe != nil {
		dev.DestroyPipelineLayout(p.computePipe)
		p.computePipe = nil
	}
	if p.computeLayout != nil {
		dev.DestroyBindGroupLayout(p.computeLayout)
		p.computeLayout = nil
	}
	if p.computeModule != nil {
		dev.DestroyShaderModule(p.computeModule)
		p.computeModule = nil
	}
	clear(p.names)
}
