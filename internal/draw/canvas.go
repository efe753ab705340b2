package draw

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	flagTop    = 1 << iota // Upper half pixel is set
	flagBottom             // Lower half pixel is set
	flagValid              // Cell was drawn by the last Render
)

// cellKey is what a terminal cell showed after the last Render.
type cellKey struct {
	top, bottom uint32
	flags       uint8
}

// Canvas is a colour drawing buffer with 2x vertical resolution using
// half-block characters. Shapes are given in logical coordinates and scaled
// to terminal pixels; a pixel is covered when its centre is inside the shape.
// Render only emits cells that changed since the previous Render.
type Canvas struct {
	termWidth      int     // Actual terminal columns
	termHeight     int     // Actual terminal rows
	subPixelHeight int     // termHeight * 2
	pixels         []Color // Flat slice: [y * termWidth + x]
	set            []bool  // Whether the pixel was painted this frame

	// Scaling from logical to pixel coordinates
	logicalWidth  float64
	logicalHeight float64
	scaleX        float64 // termWidth / logicalWidth
	scaleY        float64 // (termHeight*2) / logicalHeight

	// Offset for centering the render area when terminal is larger than max resolution.
	// These are 0-based terminal offsets (columns/rows to skip).
	offsetCol int
	offsetRow int

	encoder *Encoder
	prev    []cellKey // Per terminal cell, as of the last Render
	full    bool      // Next Render repaints every cell

	// Reusable buffers to reduce allocations
	renderBuf       strings.Builder
	scaledBuf       []Point
	intersectionBuf []float64
	polygonBuf      []Point
}

// NewScaledCanvas creates a canvas that scales from logical coordinates to terminal pixels.
// logicalWidth/Height define the coordinate space used by the scene.
// termWidth/Height are the actual terminal dimensions.
func NewScaledCanvas(termWidth, termHeight int, logicalWidth, logicalHeight float64, enc *Encoder) *Canvas {
	c := &Canvas{
		logicalWidth:  logicalWidth,
		logicalHeight: logicalHeight,
		encoder:       enc,
	}
	c.Resize(termWidth, termHeight)
	return c
}

// Resize updates the canvas for new terminal dimensions while keeping logical size.
// The next Render repaints everything.
func (c *Canvas) Resize(termWidth, termHeight int) {
	termWidth = max(termWidth, 0)
	termHeight = max(termHeight, 0)
	subPixelHeight := termHeight * 2

	if termWidth != c.termWidth || termHeight != c.termHeight || c.pixels == nil {
		c.pixels = make([]Color, subPixelHeight*termWidth)
		c.set = make([]bool, subPixelHeight*termWidth)
		c.prev = make([]cellKey, termWidth*termHeight)
		c.termWidth = termWidth
		c.termHeight = termHeight
		c.subPixelHeight = subPixelHeight
	}

	c.scaleX = float64(termWidth) / c.logicalWidth
	c.scaleY = float64(subPixelHeight) / c.logicalHeight
	c.full = true
}

// SetOffset sets the column and row offset for centering the canvas.
// Offsets are 0-based terminal positions: the canvas starts at (offsetCol+1, offsetRow+1).
func (c *Canvas) SetOffset(col, row int) {
	if col != c.offsetCol || row != c.offsetRow {
		c.full = true
	}
	c.offsetCol = col
	c.offsetRow = row
}

// OffsetCol returns the column offset used for centering.
func (c *Canvas) OffsetCol() int {
	return c.offsetCol
}

// OffsetRow returns the row offset used for centering.
func (c *Canvas) OffsetRow() int {
	return c.offsetRow
}

// Encoder returns the encoder the canvas renders with.
func (c *Canvas) Encoder() *Encoder {
	return c.encoder
}

// ForceRedraw makes the next Render repaint every cell, e.g. after the
// screen was cleared by something else.
func (c *Canvas) ForceRedraw() {
	c.full = true
}

// MarkTextDirty invalidates cells overwritten by text so the next Render
// repaints them. col and row are 1-based canvas coordinates.
func (c *Canvas) MarkTextDirty(col, row, n int) {
	row--
	if row < 0 || row >= c.termHeight {
		return
	}
	for x := col - 1; x < col-1+n; x++ {
		if x >= 0 && x < c.termWidth {
			c.prev[row*c.termWidth+x] = cellKey{}
		}
	}
}

// Clear resets all pixels in the canvas.
func (c *Canvas) Clear() {
	clear(c.set)
}

// blendPixel paints a pixel at actual terminal coordinates (no scaling).
func (c *Canvas) blendPixel(x, y int, col Color, alpha float64) {
	if x < 0 || x >= c.termWidth || y < 0 || y >= c.subPixelHeight {
		return
	}
	i := y*c.termWidth + x
	if !c.set[i] {
		// Blending onto an unpainted pixel blends onto black.
		c.pixels[i] = Color{}
		c.set[i] = true
	}
	c.pixels[i] = Blend(c.pixels[i], col, alpha)
}

// At returns the pixel colour at actual terminal coordinates.
func (c *Canvas) At(x, y int) (Color, bool) {
	if x < 0 || x >= c.termWidth || y < 0 || y >= c.subPixelHeight {
		return Color{}, false
	}
	i := y*c.termWidth + x
	return c.pixels[i], c.set[i]
}

// span returns the pixel range whose centres fall inside [from, to).
func span(from, to, scale float64, limit int) (lo, hi int) {
	lo = int(math.Ceil(from*scale - 0.5))
	hi = int(math.Ceil(to*scale-0.5)) - 1
	return max(lo, 0), min(hi, limit-1)
}

// centre returns the logical coordinates of a pixel centre.
func (c *Canvas) centre(px, py int) (float64, float64) {
	return (float64(px) + 0.5) / c.scaleX, (float64(py) + 0.5) / c.scaleY
}

// dot paints the pixel nearest to a logical point. Shapes smaller than a
// pixel still leave a mark this way.
func (c *Canvas) dot(x, y float64, col Color, alpha float64) {
	c.blendPixel(int(math.Floor(x*c.scaleX)), int(math.Floor(y*c.scaleY)), col, alpha)
}

// Fill paints the whole canvas.
func (c *Canvas) Fill(col Color) {
	for i := range c.pixels {
		c.pixels[i] = col
		c.set[i] = true
	}
}

// FillRect fills an axis-aligned rectangle.
func (c *Canvas) FillRect(x, y, w, h float64, col Color, alpha float64) {
	c.FillGradient(x, y, w, h, 0, Solid(col), alpha)
}

// FillGradient fills a rectangle with a gradient. A positive radius rounds
// the corners.
func (c *Canvas) FillGradient(x, y, w, h, radius float64, g Gradient, alpha float64) {
	if w <= 0 || h <= 0 {
		return
	}
	radius = math.Min(radius, math.Min(w, h)/2)
	x0, x1 := span(x, x+w, c.scaleX, c.termWidth)
	y0, y1 := span(y, y+h, c.scaleY, c.subPixelHeight)
	drawn := false
	for py := y0; py <= y1; py++ {
		for px := x0; px <= x1; px++ {
			lx, ly := c.centre(px, py)
			if radius > 0 && !insideRounded(lx-x, ly-y, w, h, radius) {
				continue
			}
			t := (lx - x) / w
			if g.Vertical {
				t = (ly - y) / h
			}
			c.blendPixel(px, py, g.At(t), alpha)
			drawn = true
		}
	}
	if !drawn {
		c.dot(x+w/2, y+h/2, g.At(0.5), alpha)
	}
}

// insideRounded reports whether (dx, dy), relative to the rectangle origin,
// lies inside a w×h rectangle with rounded corners.
func insideRounded(dx, dy, w, h, r float64) bool {
	cx := math.Max(r, math.Min(w-r, dx))
	cy := math.Max(r, math.Min(h-r, dy))
	ex, ey := dx-cx, dy-cy
	return ex*ex+ey*ey <= r*r
}

// FillCircle fills a circle.
func (c *Canvas) FillCircle(cx, cy, r float64, col Color, alpha float64) {
	c.FillEllipse(cx, cy, r, r, col, alpha)
}

// FillEllipse fills an axis-aligned ellipse.
func (c *Canvas) FillEllipse(cx, cy, rx, ry float64, col Color, alpha float64) {
	if rx <= 0 || ry <= 0 {
		return
	}
	x0, x1 := span(cx-rx, cx+rx, c.scaleX, c.termWidth)
	y0, y1 := span(cy-ry, cy+ry, c.scaleY, c.subPixelHeight)
	drawn := false
	for py := y0; py <= y1; py++ {
		for px := x0; px <= x1; px++ {
			lx, ly := c.centre(px, py)
			dx, dy := (lx-cx)/rx, (ly-cy)/ry
			if dx*dx+dy*dy <= 1 {
				c.blendPixel(px, py, col, alpha)
				drawn = true
			}
		}
	}
	if !drawn {
		c.dot(cx, cy, col, alpha)
	}
}

// Glow paints a soft halo of width spread around a circle of radius r.
// Opacity falls off linearly from strength at the rim to zero.
func (c *Canvas) Glow(cx, cy, r, spread float64, col Color, strength float64) {
	if spread <= 0 {
		return
	}
	outer := r + spread
	x0, x1 := span(cx-outer, cx+outer, c.scaleX, c.termWidth)
	y0, y1 := span(cy-outer, cy+outer, c.scaleY, c.subPixelHeight)
	for py := y0; py <= y1; py++ {
		for px := x0; px <= x1; px++ {
			lx, ly := c.centre(px, py)
			d := math.Hypot(lx-cx, ly-cy)
			if d <= r || d > outer {
				continue
			}
			c.blendPixel(px, py, col, strength*(1-(d-r)/spread))
		}
	}
}

// DrawLine draws a line on the canvas using Bresenham's algorithm.
// Coordinates are in logical space and get scaled to pixels.
func (c *Canvas) DrawLine(p1, p2 Point, col Color, alpha float64) {
	x1 := int(math.Floor(p1.X * c.scaleX))
	y1 := int(math.Floor(p1.Y * c.scaleY))
	x2 := int(math.Floor(p2.X * c.scaleX))
	y2 := int(math.Floor(p2.Y * c.scaleY))

	dx := abs(x2 - x1)
	dy := abs(y2 - y1)

	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}

	err := dx - dy

	for {
		c.blendPixel(x1, y1, col, alpha)

		if x1 == x2 && y1 == y2 {
			break
		}

		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// FillPolygon fills a polygon using a scanline algorithm in pixel space.
func (c *Canvas) FillPolygon(points []Point, col Color, alpha float64) {
	if len(points) < 3 {
		return
	}

	if cap(c.scaledBuf) < len(points) {
		c.scaledBuf = make([]Point, len(points))
	}
	scaled := c.scaledBuf[:len(points)]

	var sumX, sumY float64
	for i, p := range points {
		scaled[i] = Point{X: p.X * c.scaleX, Y: p.Y * c.scaleY}
		sumX += p.X
		sumY += p.Y
	}

	minY, maxY := scaled[0].Y, scaled[0].Y
	for _, p := range scaled {
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	yStart := max(int(math.Floor(minY)), 0)
	yEnd := min(int(math.Ceil(maxY)), c.subPixelHeight-1)

	drawn := false
	for y := yStart; y <= yEnd; y++ {
		scanY := float64(y) + 0.5

		intersections := c.intersectionBuf[:0]
		n := len(scaled)
		for i := 0; i < n; i++ {
			p1 := scaled[i]
			p2 := scaled[(i+1)%n]

			if (p1.Y <= scanY && p2.Y > scanY) || (p2.Y <= scanY && p1.Y > scanY) {
				t := (scanY - p1.Y) / (p2.Y - p1.Y)
				intersections = append(intersections, p1.X+t*(p2.X-p1.X))
			}
		}
		c.intersectionBuf = intersections

		sort.Float64s(intersections)

		for i := 0; i+1 < len(intersections); i += 2 {
			xStart := int(math.Ceil(intersections[i] - 0.5))
			xEnd := int(math.Ceil(intersections[i+1]-0.5)) - 1
			for x := xStart; x <= xEnd; x++ {
				c.blendPixel(x, y, col, alpha)
				drawn = true
			}
		}
	}
	if !drawn {
		n := float64(len(points))
		c.dot(sumX/n, sumY/n, col, alpha)
	}
}

// maxChunkSize is the maximum bytes to write at once for optimal network flow.
// 1500 bytes matches typical MTU size for smooth SSH/network transmission.
const maxChunkSize = 1400

func (c *Canvas) key(row, col int) cellKey {
	k := cellKey{flags: flagValid}
	top := (row*2)*c.termWidth + col
	if c.set[top] {
		k.flags |= flagTop
		k.top = pack(c.pixels[top])
	}
	if row*2+1 < c.subPixelHeight {
		bottom := (row*2+1)*c.termWidth + col
		if c.set[bottom] {
			k.flags |= flagBottom
			k.bottom = pack(c.pixels[bottom])
		}
	}
	return k
}

// Render outputs the cells that changed since the previous Render.
func (c *Canvas) Render(w io.Writer) {
	c.renderBuf.Reset()
	c.renderBuf.Grow(c.termWidth * c.termHeight * 4)

	var st sgr
	nextRow, nextCol := -1, -1 // Where the cursor is after the last written cell
	for row := 0; row < c.termHeight; row++ {
		for col := 0; col < c.termWidth; col++ {
			k := c.key(row, col)
			i := row*c.termWidth + col
			if !c.full && c.prev[i] == k {
				continue
			}
			c.prev[i] = k

			if row != nextRow || col != nextCol {
				moveCursor(&c.renderBuf, col+1+c.offsetCol, row+1+c.offsetRow)
			}
			c.encoder.cell(&c.renderBuf, &st, k)
			nextRow, nextCol = row, col+1
		}
	}
	if st.fg != "" || st.bg != "" {
		c.renderBuf.WriteString("\033[0m")
	}
	c.full = false

	writeChunked(w, c.renderBuf.String())
}

// TextStyle controls DrawText.
type TextStyle struct {
	Bold   bool
	Center bool // x is the horizontal centre of the text
}

// DrawText writes s over the canvas at logical coordinates. Each character
// takes the colour of the cell beneath it as background. The covered cells
// are repainted by the next Render.
func (c *Canvas) DrawText(cw *ChunkWriter, x, y float64, s string, fg Color, style TextStyle) {
	n := utf8.RuneCountInString(s)
	if n == 0 || c.termWidth == 0 {
		return
	}
	col, row := c.LogicalToTerminal(x, y)
	if style.Center {
		col -= n / 2
	}
	if row < 1 || row > c.termHeight {
		return
	}

	var b strings.Builder
	var st sgr
	if style.Bold && !c.encoder.Mono() {
		b.WriteString("\033[1m")
	}
	started := false
	i := 0
	for _, r := range s {
		cx := col + i
		i++
		if cx < 1 || cx > c.termWidth {
			continue
		}
		if !started {
			cw.MoveCursor(cx, row)
			started = true
		}
		if !c.encoder.Mono() {
			bg := defaultBg
			if under, ok := c.cellColour(cx-1, row-1); ok {
				bg = c.encoder.sequence(under, true)
			}
			st.set(&b, c.encoder.sequence(fg, false), bg)
		}
		b.WriteRune(r)
	}
	if !started {
		return
	}
	if !c.encoder.Mono() {
		b.WriteString("\033[0m")
	}
	cw.WriteString(b.String())
	c.MarkTextDirty(col, row, n)
}

// cellColour returns the mean colour of a terminal cell's two pixels.
func (c *Canvas) cellColour(col, row int) (Color, bool) {
	top, okTop := c.At(col, row*2)
	bottom, okBottom := c.At(col, row*2+1)
	switch {
	case okTop && okBottom:
		return top.BlendRgb(bottom, 0.5), true
	case okTop:
		return top, true
	case okBottom:
		return bottom, true
	}
	return Color{}, false
}

// RenderBorder draws a box border around the canvas area when the terminal
// exceeds the max render resolution on either axis.
// Draws horizontal borders when there is vertical offset, vertical borders
// when there is horizontal offset, and corners when both are present.
func (c *Canvas) RenderBorder(w io.Writer) {
	hasH := c.offsetCol >= 1 // Room for left/right vertical bars
	hasV := c.offsetRow >= 1 // Room for top/bottom horizontal bars

	// Border positions (1-based terminal coordinates)
	left := c.offsetCol
	right := c.offsetCol + c.termWidth + 1
	top := c.offsetRow
	bottom := c.offsetRow + c.termHeight + 1

	var buf strings.Builder
	buf.Grow((c.termWidth+2)*2 + c.termHeight*2*12)

	if hasV {
		if hasH {
			fmt.Fprintf(&buf, "\033[%d;%dH┌%s┐", top, left, strings.Repeat("─", c.termWidth))
			fmt.Fprintf(&buf, "\033[%d;%dH└%s┘", bottom, left, strings.Repeat("─", c.termWidth))
		} else {
			fmt.Fprintf(&buf, "\033[%d;%dH%s", top, c.offsetCol+1, strings.Repeat("─", c.termWidth))
			fmt.Fprintf(&buf, "\033[%d;%dH%s", bottom, c.offsetCol+1, strings.Repeat("─", c.termWidth))
		}
	}

	if hasH {
		startRow := top + 1
		endRow := bottom
		if !hasV {
			startRow = c.offsetRow + 1
			endRow = c.offsetRow + c.termHeight + 1
		}
		for row := startRow; row < endRow; row++ {
			fmt.Fprintf(&buf, "\033[%d;%dH│\033[%d;%dH│", row, left, row, right)
		}
	}

	io.WriteString(w, buf.String())
}

// LogicalWidth returns the logical width (target resolution).
func (c *Canvas) LogicalWidth() float64 {
	return c.logicalWidth
}

// LogicalHeight returns the logical height (target resolution).
func (c *Canvas) LogicalHeight() float64 {
	return c.logicalHeight
}

// TerminalWidth returns the actual terminal column count.
func (c *Canvas) TerminalWidth() int {
	return c.termWidth
}

// TerminalHeight returns the actual terminal row count.
func (c *Canvas) TerminalHeight() int {
	return c.termHeight
}

// LogicalToTerminal converts logical coordinates to 1-based canvas position (col, row).
// This is useful for placing text overlays at positions matching canvas-drawn objects.
func (c *Canvas) LogicalToTerminal(x, y float64) (col, row int) {
	px := int(math.Floor(x * c.scaleX))
	py := int(math.Floor(y * c.scaleY))
	return px + 1, py/2 + 1
}

// BorrowPoints returns a reusable slice of Points with the given length.
// The returned slice is only valid until the next call to BorrowPoints.
func (c *Canvas) BorrowPoints(n int) []Point {
	if cap(c.polygonBuf) < n {
		c.polygonBuf = make([]Point, n)
	}
	return c.polygonBuf[:n]
}

func moveCursor(b *strings.Builder, col, row int) {
	var num [20]byte
	b.WriteString("\033[")
	b.Write(strconv.AppendInt(num[:0], int64(row), 10))
	b.WriteByte(';')
	b.Write(strconv.AppendInt(num[:0], int64(col), 10))
	b.WriteByte('H')
}

// writeChunked writes data in pieces of at most maxChunkSize bytes.
func writeChunked(w io.Writer, data string) error {
	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxChunkSize {
			chunk = data[:maxChunkSize]
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		data = data[len(chunk):]
	}
	return nil
}
