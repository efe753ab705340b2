package draw

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Point represents a 2D coordinate.
type Point struct {
	X, Y float64
}

// Block characters for drawing.
const (
	BlockFull      = '█'
	BlockEmpty     = ' '
	BlockUpperHalf = '▀'
	BlockLowerHalf = '▄'
)

// Color is an sRGB colour with channels in [0, 1].
type Color = colorful.Color

// Hex parses a "#rrggbb" colour. Malformed input yields black.
func Hex(s string) Color {
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}
	}
	return c
}

// RGB builds a colour from 8-bit channels.
func RGB(r, g, b uint8) Color {
	return Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

// Blend composites src over dst with the given opacity.
func Blend(dst, src Color, alpha float64) Color {
	switch {
	case alpha >= 1:
		return src
	case alpha <= 0:
		return dst
	}
	return dst.BlendRgb(src, alpha).Clamped()
}

// Gradient is a two-stop linear gradient across a shape's bounding box.
type Gradient struct {
	From, To Color
	Vertical bool // Top to bottom instead of left to right
}

// Solid returns a gradient with a single colour.
func Solid(c Color) Gradient {
	return Gradient{From: c, To: c}
}

// At returns the colour at position t in [0, 1].
func (g Gradient) At(t float64) Color {
	return g.From.BlendRgb(g.To, math.Max(0, math.Min(1, t))).Clamped()
}

// pack returns the 24-bit RGB value of c, used as a cheap comparison key.
func pack(c Color) uint32 {
	r, g, b := c.Clamped().RGB255()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
