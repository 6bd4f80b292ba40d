package gpucore

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

type fakeTexture struct {
	w, h uint32
	id   int
}

func (t *fakeTexture) Width() uint32                  { return t.w }
func (t *fakeTexture) Height() uint32                 { return t.h }
func (t *fakeTexture) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }

type countingPool struct {
	next       int
	acquired   int
	released   []Texture
	failAfter  int // acquisitions allowed before failing; <0 means never
	releaseErr error
}

func (p *countingPool) Acquire(desc TextureDesc) (Texture, error) {
	if p.failAfter >= 0 && p.acquired >= p.failAfter {
		return nil, ErrAllocation
	}
	p.acquired++
	p.next++
	return &fakeTexture{w: desc.Width, h: desc.Height, id: p.next}, nil
}

func (p *countingPool) Release(tex Texture) error {
	p.released = append(p.released, tex)
	return p.releaseErr
}

func TestScopeReleasesAll(t *testing.T) {
	pool := &countingPool{failAfter: -1}
	desc := TextureDesc{Width: 8, Height: 8, Format: gputypes.TextureFormatRGBA8Unorm, Usage: TextureUsageReadWrite}

	scope := NewScope(pool)
	a, err := scope.Acquire(desc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := scope.Acquire(desc)
	if err != nil {
		t.Fatal(err)
	}
	if scope.Len() != 2 {
		t.Errorf("Len() = %d, want 2", scope.Len())
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(pool.released) != 2 {
		t.Fatalf("released %d textures, want 2", len(pool.released))
	}
	if pool.released[0] != b || pool.released[1] != a {
		t.Error("textures should be released most recent first")
	}
}

func TestScopeCloseIdempotent(t *testing.T) {
	pool := &countingPool{failAfter: -1}
	scope := NewScope(pool)
	if _, err := scope.Acquire(TextureDesc{Width: 1, Height: 1}); err != nil {
		t.Fatal(err)
	}
	_ = scope.Close()
	_ = scope.Close()
	if len(pool.released) != 1 {
		t.Errorf("released %d times, want 1", len(pool.released))
	}
	if _, err := scope.Acquire(TextureDesc{Width: 1, Height: 1}); err == nil {
		t.Error("Acquire after Close should fail")
	}
	if pool.acquired != 1 {
		t.Errorf("pool saw %d acquisitions, want 1", pool.acquired)
	}
}

func TestScopePartialAcquisition(t *testing.T) {
	pool := &countingPool{failAfter: 1}
	scope := NewScope(pool)

	if _, err := scope.Acquire(TextureDesc{Width: 4, Height: 4}); err != nil {
		t.Fatal(err)
	}
	_, err := scope.Acquire(TextureDesc{Width: 4, Height: 4})
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("second Acquire error = %v, want ErrAllocation", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatal(err)
	}
	if len(pool.released) != 1 {
		t.Errorf("released %d textures, want 1", len(pool.released))
	}
}

func TestScopeJoinsReleaseErrors(t *testing.T) {
	errRelease := errors.New("release failed")
	pool := &countingPool{failAfter: -1, releaseErr: errRelease}
	scope := NewScope(pool)
	for i := 0; i < 2; i++ {
		if _, err := scope.Acquire(TextureDesc{Width: 2, Height: 2}); err != nil {
			t.Fatal(err)
		}
	}
	err := scope.Close()
	if !errors.Is(err, errRelease) {
		t.Errorf("Close() = %v, want wrapped release error", err)
	}
	if len(pool.released) != 2 {
		t.Errorf("a failing release must not stop the others: released %d", len(pool.released))
	}
}
