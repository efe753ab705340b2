package render

import "github.com/tomz197/officeescape/internal/draw"

// BarStrategy paints obstacle bars. It is chosen once from the terminal's
// capabilities instead of being decided on every draw call.
type BarStrategy interface {
	Name() string
	Bar(c *draw.Canvas, x, y, w, h float64, g draw.Gradient)
}

// SelectBars returns rounded gradient bars for profiles that can show
// gradients and flat bars otherwise.
func SelectBars(p draw.Profile) BarStrategy {
	if draw.HasGradients(p) {
		return RoundedBars{}
	}
	return FlatBars{}
}

// RoundedBars fills bars with their gradient and rounded corners.
type RoundedBars struct{}

func (RoundedBars) Name() string { return "rounded" }

func (RoundedBars) Bar(c *draw.Canvas, x, y, w, h float64, g draw.Gradient) {
	c.FillGradient(x, y, w, h, StairRadius, g, 1)
}

// FlatBars fills bars with the gradient's middle colour.
type FlatBars struct{}

func (FlatBars) Name() string { return "flat" }

func (FlatBars) Bar(c *draw.Canvas, x, y, w, h float64, g draw.Gradient) {
	c.FillRect(x, y, w, h, g.At(0.5), 1)
}
