package fsr

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ConstantsSize is the size in bytes of one pass's constant block:
// four vec4<f32> values, std140/WGSL uniform aligned.
const ConstantsSize = 4 * 4 * 4

// Sharpness bounds. 0 is the strongest sharpening; every +1 halves it.
const (
	MinSharpness     float32 = 0
	MaxSharpness     float32 = 2
	DefaultSharpness float32 = 0.25
)

// sharpenPeakLimit caps how far the sharpen kernel may push a texel past its
// neighborhood extremes.
const sharpenPeakLimit float32 = 0.5

// UpscaleConstants is the constant block of the upscale pass.
//
//	[0] = (vx/ox, vy/oy, 0.5*vx/ox - 0.5, 0.5*vy/oy - 0.5)
//	[1] = (1/rx, 1/ry, 1/rx, -1/ry)
//	[2] = (-1/rx, 2/ry, 1/rx, 2/ry)
//	[3] = (0, 4/ry, 0, 0)
//
// where v is the input viewport, r the input resource size and o the output
// size. [0] maps an output texel to input pixel space; [1..3] are the fixed
// sampling offsets of the 12-tap edge-adaptive footprint in input UV space.
type UpscaleConstants [4]mgl32.Vec4

// SharpenConstants is the constant block of the sharpen pass.
//
//	[0] = (0.5, 2^-sharpness, 0, 0)
//
// [1..3] are zero.
type SharpenConstants [4]mgl32.Vec4

// ComputeUpscaleConstants derives the upscale pass constants. It is pure and
// bit-for-bit deterministic.
//
// All dimensions must be at least 1x1; a zero component panics with an error
// wrapping ErrDegenerateDimensions.
func ComputeUpscaleConstants(inputViewport, inputResource, output Dimensions) UpscaleConstants {
	mustBeValid(inputViewport, inputResource, output)

	vx, vy := float32(inputViewport.Width), float32(inputViewport.Height)
	rx, ry := float32(inputResource.Width), float32(inputResource.Height)
	ox, oy := float32(output.Width), float32(output.Height)

	scaleX := vx / ox
	scaleY := vy / oy
	invX := 1 / rx
	invY := 1 / ry

	return UpscaleConstants{
		{scaleX, scaleY, 0.5*scaleX - 0.5, 0.5*scaleY - 0.5},
		{invX, invY, invX, -invY},
		{-invX, 2 * invY, invX, 2 * invY},
		{0, 4 * invY, 0, 0},
	}
}

// ComputeSharpenConstants derives the sharpen pass constants. The attenuation
// is exponential: sharpness 0 gives 1.0, sharpness 1 gives 0.5.
func ComputeSharpenConstants(sharpness float32) SharpenConstants {
	return SharpenConstants{
		{sharpenPeakLimit, math32.Exp2(-sharpness), 0, 0},
	}
}

// Bytes returns the little-endian GPU layout of the block.
func (c UpscaleConstants) Bytes() []byte { return packVec4s(c) }

// Bytes returns the little-endian GPU layout of the block.
func (c SharpenConstants) Bytes() []byte { return packVec4s(c) }

// DecodeConstants unpacks a constant block produced by Bytes. Backends that
// execute kernels on the CPU use it to read their parameters.
func DecodeConstants(data []byte) ([4]mgl32.Vec4, error) {
	var out [4]mgl32.Vec4
	if len(data) < ConstantsSize {
		return out, fmt.Errorf("fsr: constant block is %d bytes, want %d", len(data), ConstantsSize)
	}
	for i := range out {
		for j := range out[i] {
			off := (i*4 + j) * 4
			out[i][j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		}
	}
	return out, nil
}

func packVec4s(v [4]mgl32.Vec4) []byte {
	buf := make([]byte, ConstantsSize)
	for i := range v {
		for j := range v[i] {
			binary.LittleEndian.PutUint32(buf[(i*4+j)*4:], math.Float32bits(v[i][j]))
		}
	}
	return buf
}
