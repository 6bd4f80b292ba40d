package gpucore

import (
	"errors"
	"fmt"
)

// Scope tracks textures acquired from a TexturePool and releases all of them
// in Close. It is the structured form of an acquire/release pair:
//
//	scope := gpucore.NewScope(pool)
//	defer scope.Close()
//	a, err := scope.Acquire(desc)
//	if err != nil {
//	    return err // a partial acquisition is still released by Close
//	}
//
// A Scope is not safe for concurrent use. The pool it wraps may be.
type Scope struct {
	pool     TexturePool
	acquired []Texture
	closed   bool
}

// NewScope returns an empty scope over pool.
func NewScope(pool TexturePool) *Scope {
	return &Scope{pool: pool}
}

// Acquire acquires a texture from the pool and records it for release.
// Acquiring through a closed scope fails without touching the pool.
func (s *Scope) Acquire(desc TextureDesc) (Texture, error) {
	if s.closed {
		return nil, fmt.Errorf("gpucore: acquire %s on closed scope", desc)
	}
	tex, err := s.pool.Acquire(desc)
	if err != nil {
		return nil, err
	}
	s.acquired = append(s.acquired, tex)
	return tex, nil
}

// Len returns the number of textures currently held by the scope.
func (s *Scope) Len() int { return len(s.acquired) }

// Close releases every texture acquired through the scope, most recent
// first. It is idempotent: only the first call releases anything.
// All release errors are joined into the returned error.
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.acquired) - 1; i >= 0; i-- {
		if err := s.pool.Release(s.acquired[i]); err != nil {
			errs = append(errs, err)
		}
	}
	s.acquired = nil
	return errors.Join(errs...)
}
