package fluid

import (
	"math"

	"github.com/darkroomengineering/satus-sub000/gpu"
)

// Pass names, used for program names and in compile errors.
const (
	passSplat           = "splat"
	passCurl            = "curl"
	passVorticity       = "vorticity"
	passDivergence      = "divergence"
	passClear           = "clear"
	passPressure        = "pressure"
	passGradient        = "gradient_subtract"
	passAdvection       = "advection"
	passAdvectionManual = "advection_manual"
)

// Sampler slots. The order of bindings handed to RunPass must match.
const (
	splatTarget = 0

	stencilVelocity = 0

	vorticityVelocity = 0
	vorticityCurl     = 1

	clearSource = 0

	pressurePressure   = 0
	pressureDivergence = 1

	gradientPressure = 0
	gradientVelocity = 1

	advectVelocity = 0
	advectSource   = 1
)

var splatProgram = gpu.ProgramSource{
	Name: passSplat,
	Fragment: `
uniform sampler2D uTarget;
uniform vec2 uPoint;
uniform vec3 uColor;
uniform float uRadius;
uniform float uAspectRatio;

void main() {
    vec2 uv = fragUv();
    vec2 p = uv - uPoint;
    p.x *= uAspectRatio;
    vec3 splat = exp(-dot(p, p) / uRadius) * uColor;
    vec3 base = texture(uTarget, uv).xyz;
    finalColor = vec4(base + splat, 1.0);
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(SplatUniforms)
		p := f.UV.Sub(u.Point)
		p[0] *= u.AspectRatio
		g := float32(math.Exp(float64(-p.Dot(p) / u.Radius)))
		base := f.Sample(splatTarget, f.UV)
		return gpu.Vec4{
			base[0] + g*u.Color[0],
			base[1] + g*u.Color[1],
			base[2] + g*u.Color[2],
			1,
		}
	},
}

// Curl and divergence treat a neighbor outside the domain as the mirror of
// the center texel's component, which gives a free-slip wall.
var curlProgram = gpu.ProgramSource{
	Name: passCurl,
	Fragment: `
uniform sampler2D uVelocity;
uniform vec2 uTexelSize;

void main() {
    vec2 uv = fragUv();
    vec2 vL = uv - vec2(uTexelSize.x, 0.0);
    vec2 vR = uv + vec2(uTexelSize.x, 0.0);
    vec2 vT = uv + vec2(0.0, uTexelSize.y);
    vec2 vB = uv - vec2(0.0, uTexelSize.y);
    float L = texture(uVelocity, vL).y;
    float R = texture(uVelocity, vR).y;
    float T = texture(uVelocity, vT).x;
    float B = texture(uVelocity, vB).x;
    vec2 C = texture(uVelocity, uv).xy;
    if (vL.x < 0.0) { L = -C.y; }
    if (vR.x > 1.0) { R = -C.y; }
    if (vT.y > 1.0) { T = -C.x; }
    if (vB.y < 0.0) { B = -C.x; }
    float vorticity = R - L - T + B;
    finalColor = vec4(0.5 * vorticity, 0.0, 0.0, 1.0);
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(StencilUniforms)
		n := neighbors(f.UV, u.Texel)
		l := f.Sample(stencilVelocity, n.l)[1]
		r := f.Sample(stencilVelocity, n.r)[1]
		t := f.Sample(stencilVelocity, n.t)[0]
		b := f.Sample(stencilVelocity, n.b)[0]
		c := f.Sample(stencilVelocity, f.UV)
		if n.l[0] < 0 {
			l = -c[1]
		}
		if n.r[0] > 1 {
			r = -c[1]
		}
		if n.t[1] > 1 {
			t = -c[0]
		}
		if n.b[1] < 0 {
			b = -c[0]
		}
		return gpu.Vec4{0.5 * (r - l - t + b), 0, 0, 1}
	},
}

var vorticityProgram = gpu.ProgramSource{
	Name: passVorticity,
	Fragment: `
uniform sampler2D uVelocity;
uniform sampler2D uCurl;
uniform vec2 uTexelSize;
uniform float uCurlStrength;
uniform float uDt;

void main() {
    vec2 uv = fragUv();
    float L = texture(uCurl, uv - vec2(uTexelSize.x, 0.0)).x;
    float R = texture(uCurl, uv + vec2(uTexelSize.x, 0.0)).x;
    float T = texture(uCurl, uv + vec2(0.0, uTexelSize.y)).x;
    float B = texture(uCurl, uv - vec2(0.0, uTexelSize.y)).x;
    float C = texture(uCurl, uv).x;
    vec2 force = 0.5 * vec2(abs(T) - abs(B), abs(R) - abs(L));
    force /= length(force) + 0.0001;
    force *= uCurlStrength * C;
    force.y *= -1.0;
    vec2 vel = texture(uVelocity, uv).xy;
    finalColor = vec4(vel + force * uDt, 0.0, 1.0);
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(VorticityUniforms)
		n := neighbors(f.UV, u.Texel)
		l := f.Sample(vorticityCurl, n.l)[0]
		r := f.Sample(vorticityCurl, n.r)[0]
		t := f.Sample(vorticityCurl, n.t)[0]
		b := f.Sample(vorticityCurl, n.b)[0]
		c := f.Sample(vorticityCurl, f.UV)[0]
		force := gpu.Vec2{abs32(t) - abs32(b), abs32(r) - abs32(l)}.Scale(0.5)
		force = force.Scale(1 / (force.Length() + 0.0001))
		force = force.Scale(u.CurlStrength * c)
		force[1] = -force[1]
		vel := f.Sample(vorticityVelocity, f.UV).XY().Add(force.Scale(u.DT))
		return gpu.Vec4{vel[0], vel[1], 0, 1}
	},
}

var divergenceProgram = gpu.ProgramSource{
	Name: passDivergence,
	Fragment: `
uniform sampler2D uVelocity;
uniform vec2 uTexelSize;

void main() {
    vec2 uv = fragUv();
    vec2 vL = uv - vec2(uTexelSize.x, 0.0);
    vec2 vR = uv + vec2(uTexelSize.x, 0.0);
    vec2 vT = uv + vec2(0.0, uTexelSize.y);
    vec2 vB = uv - vec2(0.0, uTexelSize.y);
    float L = texture(uVelocity, vL).x;
    float R = texture(uVelocity, vR).x;
    float T = texture(uVelocity, vT).y;
    float B = texture(uVelocity, vB).y;
    vec2 C = texture(uVelocity, uv).xy;
    if (vL.x < 0.0) { L = -C.x; }
    if (vR.x > 1.0) { R = -C.x; }
    if (vT.y > 1.0) { T = -C.y; }
    if (vB.y < 0.0) { B = -C.y; }
    float div = 0.5 * (R - L + T - B);
    finalColor = vec4(div, 0.0, 0.0, 1.0);
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(StencilUniforms)
		n := neighbors(f.UV, u.Texel)
		l := f.Sample(stencilVelocity, n.l)[0]
		r := f.Sample(stencilVelocity, n.r)[0]
		t := f.Sample(stencilVelocity, n.t)[1]
		b := f.Sample(stencilVelocity, n.b)[1]
		c := f.Sample(stencilVelocity, f.UV)
		if n.l[0] < 0 {
			l = -c[0]
		}
		if n.r[0] > 1 {
			r = -c[0]
		}
		if n.t[1] > 1 {
			t = -c[1]
		}
		if n.b[1] < 0 {
			b = -c[1]
		}
		return gpu.Vec4{0.5 * (r - l + t - b), 0, 0, 1}
	},
}

var clearProgram = gpu.ProgramSource{
	Name: passClear,
	Fragment: `
uniform sampler2D uTexture;
uniform float uValue;

void main() {
    finalColor = vec4(uValue * texture(uTexture, fragUv()).xyz, 1.0);
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(ClearUniforms)
		v := f.Sample(clearSource, f.UV).Scale(u.Value)
		v[3] = 1
		return v
	},
}

var pressureProgram = gpu.ProgramSource{
	Name: passPressure,
	Fragment: `
uniform sampler2D uPressure;
uniform sampler2D uDivergence;
uniform vec2 uTexelSize;

void main() {
    vec2 uv = fragUv();
    float L = texture(uPressure, uv - vec2(uTexelSize.x, 0.0)).x;
    float R = texture(uPressure, uv + vec2(uTexelSize.x, 0.0)).x;
    float T = texture(uPressure, uv + vec2(0.0, uTexelSize.y)).x;
    float B = texture(uPressure, uv - vec2(0.0, uTexelSize.y)).x;
    float divergence = texture(uDivergence, uv).x;
    float pressure = (L + R + B + T - divergence) * 0.25;
    finalColor = vec4(pressure, 0.0, 0.0, 1.0);
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(StencilUniforms)
		n := neighbors(f.UV, u.Texel)
		l := f.Sample(pressurePressure, n.l)[0]
		r := f.Sample(pressurePressure, n.r)[0]
		t := f.Sample(pressurePressure, n.t)[0]
		b := f.Sample(pressurePressure, n.b)[0]
		div := f.Sample(pressureDivergence, f.UV)[0]
		return gpu.Vec4{(l + r + b + t - div) * 0.25, 0, 0, 1}
	},
}

// The pressure gradient uses the same half-weighted central difference as
// the divergence stencil.
var gradientProgram = gpu.ProgramSource{
	Name: passGradient,
	Fragment: `
uniform sampler2D uPressure;
uniform sampler2D uVelocity;
uniform vec2 uTexelSize;

void main() {
    vec2 uv = fragUv();
    float L = texture(uPressure, uv - vec2(uTexelSize.x, 0.0)).x;
    float R = texture(uPressure, uv + vec2(uTexelSize.x, 0.0)).x;
    float T = texture(uPressure, uv + vec2(0.0, uTexelSize.y)).x;
    float B = texture(uPressure, uv - vec2(0.0, uTexelSize.y)).x;
    vec2 velocity = texture(uVelocity, uv).xy;
    velocity -= 0.5 * vec2(R - L, T - B);
    finalColor = vec4(velocity, 0.0, 1.0);
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(StencilUniforms)
		n := neighbors(f.UV, u.Texel)
		l := f.Sample(gradientPressure, n.l)[0]
		r := f.Sample(gradientPressure, n.r)[0]
		t := f.Sample(gradientPressure, n.t)[0]
		b := f.Sample(gradientPressure, n.b)[0]
		v := f.Sample(gradientVelocity, f.UV).XY().Sub(gpu.Vec2{r - l, t - b}.Scale(0.5))
		return gpu.Vec4{v[0], v[1], 0, 1}
	},
}

var advectionProgram = gpu.ProgramSource{
	Name: passAdvection,
	Fragment: `
uniform sampler2D uVelocity;
uniform sampler2D uSource;
uniform vec2 uTexelSize;
uniform vec2 uSourceTexelSize;
uniform float uDt;
uniform float uDissipation;

void main() {
    vec2 uv = fragUv();
    vec2 coord = uv - uDt * texture(uVelocity, uv).xy * uTexelSize;
    finalColor = uDissipation * texture(uSource, coord);
    finalColor.a = 1.0;
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(AdvectionUniforms)
		vel := f.Sample(advectVelocity, f.UV).XY()
		coord := f.UV.Sub(vel.Mul(u.Texel).Scale(u.DT))
		out := f.Sample(advectSource, coord).Scale(u.Dissipation)
		out[3] = 1
		return out
	},
}

// advectionManualProgram interpolates by hand for devices that cannot
// filter float textures. Each field is filtered on its own texel grid.
var advectionManualProgram = gpu.ProgramSource{
	Name: passAdvectionManual,
	Fragment: `
uniform sampler2D uVelocity;
uniform sampler2D uSource;
uniform vec2 uTexelSize;
uniform vec2 uSourceTexelSize;
uniform float uDt;
uniform float uDissipation;

vec4 bilerp(sampler2D sam, vec2 uv, vec2 tsize) {
    vec2 st = uv / tsize - 0.5;
    vec2 iuv = floor(st);
    vec2 fuv = fract(st);
    vec4 a = texture(sam, (iuv + vec2(0.5, 0.5)) * tsize);
    vec4 b = texture(sam, (iuv + vec2(1.5, 0.5)) * tsize);
    vec4 c = texture(sam, (iuv + vec2(0.5, 1.5)) * tsize);
    vec4 d = texture(sam, (iuv + vec2(1.5, 1.5)) * tsize);
    return mix(mix(a, b, fuv.x), mix(c, d, fuv.x), fuv.y);
}

void main() {
    vec2 uv = fragUv();
    vec2 coord = uv - uDt * bilerp(uVelocity, uv, uTexelSize).xy * uTexelSize;
    finalColor = uDissipation * bilerp(uSource, coord, uSourceTexelSize);
    finalColor.a = 1.0;
}
`,
	Kernel: func(f *gpu.Fragment) gpu.Vec4 {
		u := f.Uniforms.(AdvectionUniforms)
		vel := bilerp(f, advectVelocity, f.UV, u.Texel).XY()
		coord := f.UV.Sub(vel.Mul(u.Texel).Scale(u.DT))
		out := bilerp(f, advectSource, coord, u.SourceTexel).Scale(u.Dissipation)
		out[3] = 1
		return out
	},
}

type stencil struct {
	l, r, t, b gpu.Vec2
}

func neighbors(uv, texel gpu.Vec2) stencil {
	return stencil{
		l: gpu.Vec2{uv[0] - texel[0], uv[1]},
		r: gpu.Vec2{uv[0] + texel[0], uv[1]},
		t: gpu.Vec2{uv[0], uv[1] + texel[1]},
		b: gpu.Vec2{uv[0], uv[1] - texel[1]},
	}
}

// bilerp samples four texel centers of input i and blends them, matching
// the GLSL helper of the manual advection variant.
func bilerp(f *gpu.Fragment, i int, uv, texel gpu.Vec2) gpu.Vec4 {
	sx := uv[0]/texel[0] - 0.5
	sy := uv[1]/texel[1] - 0.5
	ix := float32(math.Floor(float64(sx)))
	iy := float32(math.Floor(float64(sy)))
	fx, fy := sx-ix, sy-iy
	at := func(dx, dy float32) gpu.Vec4 {
		return f.Sample(i, gpu.Vec2{(ix + dx) * texel[0], (iy + dy) * texel[1]})
	}
	a := at(0.5, 0.5)
	b := at(1.5, 0.5)
	c := at(0.5, 1.5)
	d := at(1.5, 1.5)
	return gpu.Mix(gpu.Mix(a, b, fx), gpu.Mix(c, d, fx), fy)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
