package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/fsr"
)

// StandInShaders returns a WGSL module with bilinear upscale and clamped
// unsharp-mask entry points under the default kernel names. They read the
// same constant block and use the same 16x16 workgroup tiling as the
// production kernels, so the host pipeline can be run end to end without
// the proprietary shader asset.
func StandInShaders() ShaderSource {
	return ShaderSource{
		Label:       "fsr_stand_in",
		WGSL:        standInWGSL,
		EntryPoints: []string{fsr.DefaultUpscaleKernel, fsr.DefaultSharpenKernel},
	}
}

// storageFormat is the only format compute kernels can write; it matches
// the storage texture declarations in the WGSL below.
var storageFormat = gputypes.TextureFormatRGBA8Unorm

const standInWGSL = `
struct Consts {
    c0: vec4<f32>,
    c1: vec4<f32>,
    c2: vec4<f32>,
    c3: vec4<f32>,
}

@group(0) @binding(0) var<uniform> consts: Consts;
@group(0) @binding(1) var src: texture_2d<f32>;
@group(0) @binding(2) var dst: texture_storage_2d<rgba8unorm, write>;

fn load(p: vec2<i32>) -> vec4<f32> {
    let size = vec2<i32>(textureDimensions(src));
    return textureLoad(src, clamp(p, vec2<i32>(0), size - vec2<i32>(1)), 0);
}

@compute @workgroup_size(16, 16, 1)
fn CS_Upscale(@builtin(global_invocation_id) id: vec3<u32>) {
    let size = textureDimensions(dst);
    if (id.x >= size.x || id.y >= size.y) {
        return;
    }
    let s = vec2<f32>(id.xy) * consts.c0.xy + consts.c0.zw;
    let base = floor(s);
    let f = s - base;
    let p = vec2<i32>(base);
    let fx = vec4<f32>(f.x);
    let top = mix(load(p), load(p + vec2<i32>(1, 0)), fx);
    let bottom = mix(load(p + vec2<i32>(0, 1)), load(p + vec2<i32>(1, 1)), fx);
    textureStore(dst, vec2<i32>(id.xy), mix(top, bottom, vec4<f32>(f.y)));
}

@compute @workgroup_size(16, 16, 1)
fn CS_Sharpen(@builtin(global_invocation_id) id: vec3<u32>) {
    let size = textureDimensions(dst);
    if (id.x >= size.x || id.y >= size.y) {
        return;
    }
    let p = vec2<i32>(id.xy);
    let c = load(p);
    let n = load(p + vec2<i32>(0, -1));
    let w = load(p + vec2<i32>(-1, 0));
    let e = load(p + vec2<i32>(1, 0));
    let s = load(p + vec2<i32>(0, 1));

    let lo = min(c, min(min(n, w), min(e, s)));
    let hi = max(c, max(max(n, w), max(e, s)));
    let amount = consts.c0.y * 0.25;
    let v = c + amount * (4.0 * c - (n + w + e + s));
    let span = (hi - lo) * consts.c0.x;
    var res = clamp(v, lo - span, hi + span);
    res.a = c.a;
    textureStore(dst, p, res);
}
`

// blitWGSL draws one oversized triangle and fetches the nearest source
// texel. params.xy is the source to viewport scale, params.zw the viewport
// origin.
const blitWGSL = `
struct Blit {
    params: vec4<f32>,
}

@group(0) @binding(0) var<uniform> blit: Blit;
@group(0) @binding(1) var src: texture_2d<f32>;

@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    let uv = vec2<f32>(f32((i << 1u) & 2u), f32(i & 2u));
    return vec4<f32>(uv * vec2<f32>(2.0, -2.0) + vec2<f32>(-1.0, 1.0), 0.0, 1.0);
}

@fragment
fn fs_main(@builtin(position) pos: vec4<f32>) -> @location(0) vec4<f32> {
    let size = vec2<i32>(textureDimensions(src));
    let p = vec2<i32>((pos.xy - blit.params.zw) * blit.params.xy);
    return textureLoad(src, clamp(p, vec2<i32>(0), size - vec2<i32>(1)), 0);
}
`
