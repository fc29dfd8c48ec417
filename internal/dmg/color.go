package dmg

import "math"

func srgbToLinear(v float32) float32 {
	f := float64(v)
	if f <= 0.04045 {
		return float32(f / 12.92)
	}
	return float32(math.Pow((f+0.055)/1.055, 2.4))
}

func linearToSRGB(v float32) float32 {
	f := float64(v)
	if f <= 0.0031308 {
		return float32(f * 12.92)
	}
	return float32(1.055*math.Pow(f, 1/2.4) - 0.055)
}

// rgbToXYZ / xyzToRGB use the sRGB primaries with a D65 white point.
func rgbToXYZ(r, g, b float32) (x, y, z float32) {
	x = 0.4124564*r + 0.3575761*g + 0.1804375*b
	y = 0.2126729*r + 0.7151522*g + 0.0721750*b
	z = 0.0193339*r + 0.1191920*g + 0.9503041*b
	return
}

func xyzToRGB(x, y, z float32) (r, g, b float32) {
	r = 3.2404542*x - 1.5371385*y - 0.4985314*z
	g = -0.9692660*x + 1.8760108*y + 0.0415560*z
	b = 0.0556434*x - 0.2040259*y + 1.0572252*z
	return
}

const (
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

func labF(t float32) float32 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return float32(math.Cbrt(float64(t)))
	}
	return t/(3*delta*delta) + 4.0/29.0
}

func labFInv(t float32) float32 {
	const delta = 6.0 / 29.0
	if t > delta {
		return t * t * t
	}
	return 3 * delta * delta * (t - 4.0/29.0)
}

// rgbToLab converts linear RGB in [0,1] to CIE L*a*b*, with L scaled to
// [0,1] (divided by 100) so all three bands share the solver's implicit
// value range.
func rgbToLab(r, g, b float32) (l, a, bb float32) {
	x, y, z := rgbToXYZ(r, g, b)
	fx := labF(x / whiteX)
	fy := labF(y / whiteY)
	fz := labF(z / whiteZ)
	l = (116*fy - 16) / 100
	a = (500 * (fx - fy)) / 100
	bb = (200 * (fy - fz)) / 100
	return
}

func labToRGB(l, a, b float32) (r, g, bb float32) {
	L := l * 100
	A := a * 100
	B := b * 100
	fy := (L + 16) / 116
	fx := fy + A/500
	fz := fy - B/200
	x := labFInv(fx) * whiteX
	y := labFInv(fy) * whiteY
	z := labFInv(fz) * whiteZ
	return xyzToRGB(x, y, z)
}

// convertForward applies Params.SRGB decoding and Params.ColorConv to an
// RGB triple, in the direction used before solving.
func (p Params) convertForward(r, g, b float32) (float32, float32, float32) {
	if p.SRGB {
		r, g, b = srgbToLinear(r), srgbToLinear(g), srgbToLinear(b)
	}
	switch p.ColorConv {
	case RGBToLAB:
		return rgbToLab(r, g, b)
	case RGBToLogLAB:
		return rgbToLab(log1pf(r), log1pf(g), log1pf(b))
	default:
		return r, g, b
	}
}

// convertBackward undoes convertForward after solving.
func (p Params) convertBackward(r, g, b float32) (float32, float32, float32) {
	switch p.ColorConv {
	case RGBToLAB:
		r, g, b = labToRGB(r, g, b)
	case RGBToLogLAB:
		r, g, b = labToRGB(r, g, b)
		r, g, b = expm1f(r), expm1f(g), expm1f(b)
	}
	if p.SRGB {
		r, g, b = linearToSRGB(r), linearToSRGB(g), linearToSRGB(b)
	}
	return r, g, b
}

func log1pf(v float32) float32 { return float32(math.Log1p(float64(v))) }
func expm1f(v float32) float32 { return float32(math.Expm1(float64(v))) }
