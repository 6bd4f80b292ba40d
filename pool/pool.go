// Package pool recycles the transient textures the upscaler writes each
// frame, so steady-state rendering allocates nothing.
package pool

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/fsr"
	"github.com/gogpu/fsr/gpucore"
)

// Pool errors.
var (
	// ErrNotPooled is returned when releasing a texture the pool did not hand
	// out, or one already released.
	ErrNotPooled = errors.New("pool: texture not acquired from this pool")

	// ErrClosed is returned when operating on a closed pool.
	ErrClosed = errors.New("pool: closed")
)

// Default limits.
const (
	// DefaultMaxDescs is the number of distinct descriptors that keep idle
	// textures. The least recently used descriptor is evicted beyond it.
	DefaultMaxDescs = 16

	// DefaultMaxIdlePerDesc is the number of idle textures kept per
	// descriptor. Textures released beyond it are destroyed.
	DefaultMaxIdlePerDesc = 4
)

// Allocator creates and destroys backend textures.
type Allocator interface {
	CreateTexture(desc gpucore.TextureDesc) (gpucore.Texture, error)
	DestroyTexture(tex gpucore.Texture)
}

// Stats contains pool usage counters.
type Stats struct {
	// Allocations is the number of textures created through the Allocator.
	Allocations uint64

	// Reuses is the number of acquisitions served from an idle list.
	Reuses uint64

	// Releases is the number of successful releases.
	Releases uint64

	// Evictions is the number of idle textures destroyed because their
	// descriptor fell out of the LRU.
	Evictions uint64

	// Destroyed is the total number of textures destroyed, evictions included.
	Destroyed uint64

	// InUse is the number of textures currently acquired.
	InUse int

	// Idle is the number of textures waiting for reuse.
	Idle int
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%d in use, %d idle, %d allocs, %d reuses, %d evictions]",
		s.InUse, s.Idle, s.Allocations, s.Reuses, s.Evictions)
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxDescs sets how many distinct descriptors keep idle textures.
// Values below 1 keep the default.
func WithMaxDescs(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxDescs = n
		}
	}
}

// WithMaxIdlePerDesc sets how many idle textures each descriptor keeps.
// Values below 1 keep the default.
func WithMaxIdlePerDesc(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxIdle = n
		}
	}
}

// Pool hands out textures keyed by their full descriptor (size, format and
// usage). A released texture is reused only for an identical descriptor.
// Contents are not preserved across release.
//
// Pool is safe for concurrent use: concurrent Acquire calls never return the
// same idle texture twice.
type Pool struct {
	mu sync.Mutex

	alloc    Allocator
	maxDescs int
	maxIdle  int

	// idle holds released textures per descriptor, most recent last.
	idle  *lru.Cache[gpucore.TextureDesc, []gpucore.Texture]
	inUse map[gpucore.Texture]gpucore.TextureDesc

	// draining is set while the pool itself empties idle lists, so the
	// eviction callback does not count those as LRU evictions.
	draining bool
	closed   bool

	allocations uint64
	reuses      uint64
	releases    uint64
	evictions   uint64
	destroyed   uint64
}

// New creates a pool over alloc.
func New(alloc Allocator, opts ...Option) *Pool {
	p := &Pool{
		alloc:    alloc,
		maxDescs: DefaultMaxDescs,
		maxIdle:  DefaultMaxIdlePerDesc,
		inUse:    make(map[gpucore.Texture]gpucore.TextureDesc),
	}
	for _, opt := range opts {
		opt(p)
	}
	// NewWithEvict only fails for a non-positive size.
	p.idle, _ = lru.NewWithEvict[gpucore.TextureDesc, []gpucore.Texture](p.maxDescs, p.onEvict)
	return p
}

// onEvict destroys the idle textures of a descriptor leaving the cache.
// It runs from within idle's methods, which are only called with mu held.
func (p *Pool) onEvict(desc gpucore.TextureDesc, textures []gpucore.Texture) {
	for _, tex := range textures {
		p.destroyLocked(tex)
	}
	if !p.draining && len(textures) > 0 {
		p.evictions += uint64(len(textures))
		fsr.Logger().Debug("pool: evicted idle textures", "desc", desc.String(), "count", len(textures))
	}
}

// Acquire returns an idle texture matching desc, or allocates one.
// A failed allocation returns an error wrapping gpucore.ErrAllocation and
// leaves the pool unchanged.
func (p *Pool) Acquire(desc gpucore.TextureDesc) (gpucore.Texture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: zero-sized texture %s", gpucore.ErrAllocation, desc)
	}

	if list, ok := p.idle.Get(desc); ok && len(list) > 0 {
		tex := list[len(list)-1]
		list[len(list)-1] = nil
		p.idle.Add(desc, list[:len(list)-1])
		p.inUse[tex] = desc
		p.reuses++
		return tex, nil
	}

	tex, err := p.alloc.CreateTexture(desc)
	if err != nil {
		if !errors.Is(err, gpucore.ErrAllocation) {
			err = fmt.Errorf("%w: %s: %w", gpucore.ErrAllocation, desc, err)
		}
		fsr.Logger().Warn("pool: texture allocation failed", "desc", desc.String(), "err", err)
		return nil, err
	}
	p.inUse[tex] = desc
	p.allocations++
	fsr.Logger().Debug("pool: allocated texture", "desc", desc.String())
	return tex, nil
}

// Release returns tex to the idle list of its descriptor.
func (p *Pool) Release(tex gpucore.Texture) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	desc, ok := p.inUse[tex]
	if !ok {
		return ErrNotPooled
	}
	delete(p.inUse, tex)
	p.releases++

	list, _ := p.idle.Get(desc)
	if len(list) >= p.maxIdle {
		p.destroyLocked(tex)
		return nil
	}
	p.idle.Add(desc, append(list, tex))
	return nil
}

// Scope returns a scoped acquisition over the pool. Every texture acquired
// through it is released by its Close.
func (p *Pool) Scope() *gpucore.Scope {
	return gpucore.NewScope(p)
}

// Invalidate destroys the idle textures of desc. Textures of desc currently
// in use are unaffected and return to a fresh idle list on release.
func (p *Pool) Invalidate(desc gpucore.TextureDesc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.draining = true
	p.idle.Remove(desc)
	p.draining = false
}

// Purge destroys every idle texture.
func (p *Pool) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.draining = true
	p.idle.Purge()
	p.draining = false
}

// Close destroys every texture the pool knows about, idle or in use, and
// makes further Acquire and Release calls fail with ErrClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.draining = true
	p.idle.Purge()
	p.draining = false

	if n := len(p.inUse); n > 0 {
		fsr.Logger().Warn("pool: closing with textures in use", "count", n)
	}
	for tex := range p.inUse {
		p.destroyLocked(tex)
	}
	p.inUse = nil
	p.closed = true
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	idle := 0
	if !p.closed {
		for _, desc := range p.idle.Keys() {
			list, _ := p.idle.Peek(desc)
			idle += len(list)
		}
	}
	return Stats{
		Allocations: p.allocations,
		Reuses:      p.reuses,
		Releases:    p.releases,
		Evictions:   p.evictions,
		Destroyed:   p.destroyed,
		InUse:       len(p.inUse),
		Idle:        idle,
	}
}

func (p *Pool) destroyLocked(tex gpucore.Texture) {
	p.alloc.DestroyTexture(tex)
	p.destroyed++
}
