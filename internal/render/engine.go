// Package render paints the in-game scene of a room onto a terminal canvas.
package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tomz197/officeescape/internal/draw"
	"github.com/tomz197/officeescape/internal/protocol"
)

// Viewport and scene geometry, in world units.
const (
	GameWidth  = 800.0
	GameHeight = 600.0

	PlayerSize   = 30.0
	PlayerRadius = PlayerSize / 2

	GridSpacing = 40.0
	CullPadding = 50.0 // Obstacles are drawn while within this distance of the viewport

	StairHeight = 15.0
	StairRadius = 5.0

	SpikePitch  = 10.0
	SpikeHeight = 8.0
	ArrowPitch  = 20.0

	HazardPitch  = 20.0
	HazardHeight = 20.0
)

var (
	colorBackgroundTop    = draw.Hex("#2c3e50")
	colorBackgroundBottom = draw.Hex("#000000")
	colorGrid             = draw.Hex("#ffffff")
	colorShadow           = draw.Hex("#000000")
	colorSpikeTip         = draw.Hex("#eeeeee")
	colorSpikeShadow      = draw.Hex("#ff0000")
	colorArrow            = draw.Hex("#ffffff")
	colorLocal            = draw.Hex("#2ecc71")
	colorRemote           = draw.Hex("#f1c40f")
	colorEye              = draw.Hex("#000000")
	colorBlush            = draw.Hex("#ff0000")
	colorLabel            = draw.Hex("#ffffff")
	colorHazard           = draw.Hex("#e74c3c")
	colorItem             = draw.Hex("#f1c40f")
	colorHUD              = draw.Hex("#ffffff")

	gradientNormal  = draw.Gradient{From: draw.Hex("#4facfe"), To: draw.Hex("#00f2fe"), Vertical: true}
	gradientSpike   = draw.Gradient{From: draw.Hex("#ff9a9e"), To: draw.Hex("#fecfef"), Vertical: true}
	gradientGeneric = draw.Gradient{From: draw.Hex("#c471ed"), To: draw.Hex("#f64f59"), Vertical: true}
	gradientBG      = draw.Gradient{From: colorBackgroundTop, To: colorBackgroundBottom, Vertical: true}
)

// ErrFrame wraps a panic recovered while painting one frame.
var ErrFrame = errors.New("render: frame failed")

// HUD is the local player's status line.
type HUD struct {
	HP    int
	Floor int
}

// Scene is everything one frame needs.
type Scene struct {
	Snapshot  *protocol.RoomSnapshot
	LocalName string // Player drawn with the local highlight
	HUD       *HUD   // nil when the local player is not in the roster
	Now       time.Time
}

// label is text placed over the canvas after the pixels are out.
type label struct {
	x, y  float64
	text  string
	color draw.Color
	style draw.TextStyle
}

// Engine paints scenes. The bar strategy is fixed when the engine is built.
type Engine struct {
	canvas *draw.Canvas
	bars   BarStrategy
	logger *zap.Logger
	labels []label
}

// NewEngine creates an engine drawing onto canvas, picking the bar strategy
// from the canvas encoder's profile.
func NewEngine(canvas *draw.Canvas, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	bars := SelectBars(canvas.Encoder().Profile())
	logger = logger.Named("render")
	logger.Debug("bar strategy selected",
		zap.String("profile", draw.ProfileName(canvas.Encoder().Profile())),
		zap.String("bars", bars.Name()))
	return &Engine{canvas: canvas, bars: bars, logger: logger}
}

// Canvas returns the canvas the engine draws onto.
func (e *Engine) Canvas() *draw.Canvas {
	return e.canvas
}

// Bars returns the selected bar strategy.
func (e *Engine) Bars() BarStrategy {
	return e.bars
}

// Frame paints one scene and writes it to cw. A panic while painting is
// recovered and returned as an error so the caller's loop keeps running.
func (e *Engine) Frame(cw *draw.ChunkWriter, scene Scene) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.canvas.ForceRedraw()
			err = fmt.Errorf("%w: %v", ErrFrame, r)
		}
	}()

	e.labels = e.labels[:0]
	e.paint(scene)
	e.canvas.Render(cw)
	for _, l := range e.labels {
		e.canvas.DrawText(cw, l.x, l.y, l.text, l.color, l.style)
	}
	return nil
}

func (e *Engine) paint(scene Scene) {
	c := e.canvas
	c.Clear()

	// Background and grid.
	c.FillGradient(0, 0, GameWidth, GameHeight, 0, gradientBG, 1)
	scroll := 0.0
	if s := scene.Snapshot; s != nil {
		scroll = s.ScrollOffset
	}
	for _, x := range VerticalGridLines() {
		c.DrawLine(draw.Point{X: x, Y: 0}, draw.Point{X: x, Y: GameHeight - 1}, colorGrid, 0.05)
	}
	for _, y := range HorizontalGridLines(scroll) {
		c.DrawLine(draw.Point{X: 0, Y: y}, draw.Point{X: GameWidth - 1, Y: y}, colorGrid, 0.05)
	}

	if s := scene.Snapshot; s != nil {
		for _, o := range s.Stairs {
			y := o.Y - scroll
			if !Visible(y) {
				continue
			}
			e.obstacle(o, y)
		}
		for _, it := range s.Items {
			y := it.Y - scroll
			if !Visible(y) {
				continue
			}
			e.item(it, y)
		}
		for _, entry := range s.Players {
			if entry.Player.Dead {
				continue
			}
			e.player(entry.Player, entry.Player.Y-scroll, entry.Player.Name == scene.LocalName, scene.Now)
		}
	}

	e.hazard()

	if scene.HUD != nil {
		e.labels = append(e.labels,
			label{x: 10, y: HazardHeight + 8, text: "♥ " + strconv.Itoa(scene.HUD.HP), color: colorHUD, style: draw.TextStyle{Bold: true}},
			label{x: GameWidth - 60, y: HazardHeight + 8, text: FloorLabel(scene.HUD.Floor), color: colorHUD, style: draw.TextStyle{Bold: true}},
		)
	}
}

// Visible reports whether a screen-space Y lies in the padded visible band.
func Visible(screenY float64) bool {
	return screenY > -CullPadding && screenY < GameHeight+CullPadding
}

// VerticalGridLines returns the X positions of the static grid columns.
func VerticalGridLines() []float64 {
	var xs []float64
	for x := 0.0; x < GameWidth; x += GridSpacing {
		xs = append(xs, x)
	}
	return xs
}

// HorizontalGridLines returns the Y positions of the grid rows for a scroll
// offset. Rows shift by scroll mod spacing so the grid appears to move with
// the camera.
func HorizontalGridLines(scroll float64) []float64 {
	shift := math.Mod(scroll, GridSpacing)
	var ys []float64
	for y := 0.0; y < GameHeight; y += GridSpacing {
		ys = append(ys, y-shift)
	}
	return ys
}

// FloorLabel formats a floor number for display.
func FloorLabel(floor int) string {
	return "B" + strconv.Itoa(floor)
}

// StyleFor returns the bar gradient of an obstacle type. Unrecognised types
// get the generic style.
func StyleFor(t protocol.ObstacleType) draw.Gradient {
	switch t {
	case protocol.ObstacleNormal:
		return gradientNormal
	case protocol.ObstacleSpike:
		return gradientSpike
	}
	return gradientGeneric
}

func (e *Engine) obstacle(o protocol.Obstacle, y float64) {
	c := e.canvas
	shadow := colorShadow
	if o.Type == protocol.ObstacleSpike {
		shadow = colorSpikeShadow
	}
	c.FillRect(o.X, y+5, o.Width, StairHeight, shadow, 0.3)
	e.bars.Bar(c, o.X, y, o.Width, StairHeight, StyleFor(o.Type))

	switch {
	case o.Type == protocol.ObstacleSpike:
		for i := 5.0; i < o.Width-5; i += SpikePitch {
			pts := c.BorrowPoints(3)
			pts[0] = draw.Point{X: o.X + i, Y: y}
			pts[1] = draw.Point{X: o.X + i + 5, Y: y - SpikeHeight}
			pts[2] = draw.Point{X: o.X + i + 10, Y: y}
			c.FillPolygon(pts, colorSpikeTip, 1)
		}
	case o.Type.IsConveyor():
		left := o.Type == protocol.ObstacleConveyorLeft
		for i := 10.0; i < o.Width; i += ArrowPitch {
			e.arrow(o.X+i, y+StairHeight/2, left)
		}
	}
}

// arrow paints a small chevron centred vertically on y.
func (e *Engine) arrow(x, y float64, left bool) {
	pts := e.canvas.BorrowPoints(3)
	if left {
		pts[0] = draw.Point{X: x + 6, Y: y - 4}
		pts[1] = draw.Point{X: x, Y: y}
		pts[2] = draw.Point{X: x + 6, Y: y + 4}
	} else {
		pts[0] = draw.Point{X: x, Y: y - 4}
		pts[1] = draw.Point{X: x + 6, Y: y}
		pts[2] = draw.Point{X: x, Y: y + 4}
	}
	e.canvas.FillPolygon(pts, colorArrow, 0.5)
}

func (e *Engine) item(it protocol.Item, y float64) {
	w, h := it.Width, it.Height
	if w <= 0 {
		w = 20
	}
	if h <= 0 {
		h = 20
	}
	r := math.Min(w, h) / 2
	e.canvas.Glow(it.X+w/2, y+h/2, r, 6, colorItem, 0.3)
	e.canvas.FillCircle(it.X+w/2, y+h/2, r, colorItem, 1)
}

// Blinking reports whether avatars have their eyes shut at t. It depends on
// wall-clock time only, so every frame rate sees the same blinks.
func Blinking(t time.Time) bool {
	ms := t.UnixMilli()
	return (ms/2000)%2 == 0 && (ms/50)%10 == 0
}

// LookOffset returns the horizontal eye shift for a player's movement flags.
func LookOffset(p protocol.PlayerView) float64 {
	switch {
	case p.MovingRight:
		return 2
	case p.MovingLeft:
		return -2
	}
	return 0
}

func (e *Engine) player(p protocol.PlayerView, y float64, local bool, now time.Time) {
	c := e.canvas
	body := colorRemote
	if local {
		body = colorLocal
	}
	cx := p.X + PlayerRadius
	cy := y + PlayerRadius

	c.Glow(cx, cy, PlayerRadius, 15, body, 0.5)
	c.FillCircle(cx, cy, PlayerRadius, body, 1)

	look := LookOffset(p)
	eyeH := 4.0
	if Blinking(now) {
		eyeH = 1
	}
	c.FillEllipse(cx-5+look, cy-5, 2, eyeH, colorEye, 1)
	c.FillEllipse(cx+5+look, cy-5, 2, eyeH, colorEye, 1)

	c.FillCircle(cx-8+look, cy+2, 3, colorBlush, 0.2)
	c.FillCircle(cx+8+look, cy+2, 3, colorBlush, 0.2)

	e.labels = append(e.labels, label{
		x: cx, y: y - 10, text: p.Name, color: colorLabel,
		style: draw.TextStyle{Bold: true, Center: true},
	})
}

// hazard paints the sawtooth strip along the top edge.
func (e *Engine) hazard() {
	for x := 0.0; x < GameWidth; x += HazardPitch {
		pts := e.canvas.BorrowPoints(3)
		pts[0] = draw.Point{X: x, Y: 0}
		pts[1] = draw.Point{X: x + HazardPitch/2, Y: HazardHeight}
		pts[2] = draw.Point{X: x + HazardPitch, Y: 0}
		e.canvas.FillPolygon(pts, colorHazard, 1)
	}
	e.canvas.FillRect(0, 0, GameWidth, 2, colorHazard, 1)
}
