package lights

import "math"

// Led is one physical RGB LED, components in [0, 255].
type Led struct {
	Red   float64
	Green float64
	Blue  float64
}

// NewLed builds a Led from a config triple.
func NewLed(rgb []float64) Led {
	if len(rgb) < 3 {
		return Led{}
	}
	return Led{Red: rgb[0], Green: rgb[1], Blue: rgb[2]}
}

// True if all components are zero, false otherwise
func (s Led) IsEmpty() bool {
	return s.Red == 0 && s.Green == 0 && s.Blue == 0
}

// Scale returns the Led dimmed to factor, clamped to [0, 1].
func (s Led) Scale(factor float64) Led {
	f := clamp(factor, 0, 1)
	return Led{Red: s.Red * f, Green: s.Green * f, Blue: s.Blue * f}
}

// Max returns per component the larger value of s and in.
func (s Led) Max(in Led) Led {
	return Led{
		Red:   math.Max(s.Red, in.Red),
		Green: math.Max(s.Green, in.Green),
		Blue:  math.Max(s.Blue, in.Blue),
	}
}

// Bytes returns the components rounded to bytes after applying the
// per component correction factors.
func (s Led) Bytes(correction []float64) (r, g, b byte) {
	corr := [3]float64{1, 1, 1}
	copy(corr[:], correction)
	return toByte(s.Red * corr[0]), toByte(s.Green * corr[1]), toByte(s.Blue * corr[2])
}

func toByte(v float64) byte {
	return byte(math.Round(clamp(v, 0, 255)))
}
