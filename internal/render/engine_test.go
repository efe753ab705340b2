package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomz197/officeescape/internal/draw"
	"github.com/tomz197/officeescape/internal/protocol"
)

// newTestEngine renders the 800x600 world onto 80x30 cells, one pixel per
// 10x10 world units.
func newTestEngine(p draw.Profile) *Engine {
	return NewEngine(draw.NewScaledCanvas(80, 30, GameWidth, GameHeight, draw.NewEncoder(p)), nil)
}

func frame(t *testing.T, e *Engine, scene Scene) string {
	t.Helper()
	var buf bytes.Buffer
	cw := draw.NewChunkWriter(&buf, 0, 0)
	require.NoError(t, e.Frame(cw, scene))
	require.NoError(t, cw.Flush())
	return buf.String()
}

func roster(players ...protocol.PlayerView) protocol.Roster {
	var r protocol.Roster
	for i, p := range players {
		r = append(r, protocol.RosterEntry{ID: string(rune('a' + i)), Player: p})
	}
	return r
}

func rgb(c draw.Color) [3]uint8 {
	r, g, b := c.Clamped().RGB255()
	return [3]uint8{r, g, b}
}

type recordBars struct {
	ys []float64
}

func (b *recordBars) Name() string { return "record" }

func (b *recordBars) Bar(c *draw.Canvas, x, y, w, h float64, g draw.Gradient) {
	b.ys = append(b.ys, y)
}

type panicBars struct{}

func (panicBars) Name() string { return "panic" }

func (panicBars) Bar(*draw.Canvas, float64, float64, float64, float64, draw.Gradient) {
	panic("bad obstacle")
}

func TestFrameWithMixedObstacleTypes(t *testing.T) {
	e := newTestEngine(termenv.TrueColor)
	snap := &protocol.RoomSnapshot{
		GameState: protocol.GameStatePlaying,
		Stairs: []protocol.Obstacle{
			{X: 10, Y: 100, Width: 120, Type: protocol.ObstacleNormal},
			{X: 10, Y: 200, Width: 120, Type: protocol.ObstacleSpike},
			{X: 10, Y: 300, Width: 120, Type: protocol.ObstacleConveyorLeft},
			{X: 10, Y: 400, Width: 120, Type: protocol.ObstacleConveyorRight},
			{X: 100, Y: 300, Width: 200, Type: "UNKNOWN_TYPE"},
		},
		Items: []protocol.Item{{ID: "i1", X: 500, Y: 500, Width: 20, Height: 20, Type: "COIN"}},
	}
	out := frame(t, e, Scene{Snapshot: snap, Now: time.UnixMilli(0)})
	assert.NotEmpty(t, out)

	// The unknown type is painted with the generic gradient.
	got, ok := e.Canvas().At(20, 30)
	require.True(t, ok)
	want := gradientGeneric.At((305.0 - 300) / StairHeight)
	assert.Equal(t, rgb(want), rgb(got))
	assert.Equal(t, gradientGeneric, StyleFor("UNKNOWN_TYPE"))
	assert.Equal(t, gradientNormal, StyleFor(protocol.ObstacleNormal))
}

func TestObstaclesOutsideBandAreCulled(t *testing.T) {
	e := newTestEngine(termenv.TrueColor)
	bars := &recordBars{}
	e.bars = bars

	snap := &protocol.RoomSnapshot{
		ScrollOffset: 400,
		Stairs: []protocol.Obstacle{
			{X: 0, Y: 0, Width: 100, Type: protocol.ObstacleNormal},
			{X: 0, Y: 500, Width: 100, Type: protocol.ObstacleNormal},
			{X: 0, Y: 1000, Width: 100, Type: protocol.ObstacleNormal},
			{X: 0, Y: 1100, Width: 100, Type: protocol.ObstacleNormal},
		},
	}
	frame(t, e, Scene{Snapshot: snap})
	assert.Equal(t, []float64{100, 600}, bars.ys)
}

func TestVisibleBand(t *testing.T) {
	assert.False(t, Visible(-50))
	assert.True(t, Visible(-49))
	assert.True(t, Visible(649))
	assert.False(t, Visible(650))
}

func TestGridFollowsScroll(t *testing.T) {
	assert.Len(t, VerticalGridLines(), 20)

	ys := HorizontalGridLines(0)
	require.Len(t, ys, 15)
	assert.Equal(t, 0.0, ys[0])

	ys = HorizontalGridLines(45)
	assert.Equal(t, -5.0, ys[0])
	assert.Equal(t, 35.0, ys[1])
	assert.Equal(t, HorizontalGridLines(5), ys)
}

func TestBlinkingDependsOnWallClock(t *testing.T) {
	assert.True(t, Blinking(time.UnixMilli(0)))
	assert.True(t, Blinking(time.UnixMilli(49)))
	assert.False(t, Blinking(time.UnixMilli(50)))
	assert.False(t, Blinking(time.UnixMilli(2000)))
	assert.True(t, Blinking(time.UnixMilli(4000)))

	now := time.Now()
	assert.Equal(t, Blinking(now), Blinking(now))
}

func TestLookOffset(t *testing.T) {
	assert.Equal(t, 0.0, LookOffset(protocol.PlayerView{}))
	assert.Equal(t, -2.0, LookOffset(protocol.PlayerView{MovingLeft: true}))
	assert.Equal(t, 2.0, LookOffset(protocol.PlayerView{MovingRight: true}))
}

func TestPlayersColouredAndDeadSkipped(t *testing.T) {
	e := newTestEngine(termenv.TrueColor)
	snap := &protocol.RoomSnapshot{
		Players: roster(
			protocol.PlayerView{Name: "alice", X: 100, Y: 200},
			protocol.PlayerView{Name: "bob", X: 400, Y: 200},
			protocol.PlayerView{Name: "carol", X: 600, Y: 200, Dead: true},
		),
	}
	frame(t, e, Scene{Snapshot: snap, LocalName: "alice"})

	local, _ := e.Canvas().At(11, 22)
	remote, _ := e.Canvas().At(41, 22)
	dead, _ := e.Canvas().At(61, 22)
	assert.Equal(t, rgb(colorLocal), rgb(local))
	assert.Equal(t, rgb(colorRemote), rgb(remote))
	assert.NotEqual(t, rgb(colorRemote), rgb(dead))
	assert.NotEqual(t, rgb(colorLocal), rgb(dead))
}

func TestLabelsAndHUD(t *testing.T) {
	e := newTestEngine(termenv.Ascii)
	snap := &protocol.RoomSnapshot{
		Players: roster(
			protocol.PlayerView{Name: "alice", X: 100, Y: 200},
			protocol.PlayerView{Name: "carol", X: 600, Y: 200, Dead: true},
		),
	}
	out := frame(t, e, Scene{Snapshot: snap, LocalName: "alice", HUD: &HUD{HP: 3, Floor: 7}})

	assert.Contains(t, out, "alice")
	assert.NotContains(t, out, "carol")
	assert.Contains(t, out, "♥ 3")
	assert.Contains(t, out, "B7")
}

func TestFramePanicIsIsolated(t *testing.T) {
	e := newTestEngine(termenv.TrueColor)
	snap := &protocol.RoomSnapshot{
		Stairs: []protocol.Obstacle{{X: 0, Y: 100, Width: 100, Type: protocol.ObstacleNormal}},
	}

	good := e.bars
	e.bars = panicBars{}
	var buf bytes.Buffer
	err := e.Frame(draw.NewChunkWriter(&buf, 0, 0), Scene{Snapshot: snap})
	assert.ErrorIs(t, err, ErrFrame)

	e.bars = good
	frame(t, e, Scene{Snapshot: snap})
}

func TestBarStrategyFollowsProfile(t *testing.T) {
	assert.Equal(t, "rounded", newTestEngine(termenv.TrueColor).Bars().Name())
	assert.Equal(t, "rounded", newTestEngine(termenv.ANSI256).Bars().Name())
	assert.Equal(t, "flat", newTestEngine(termenv.ANSI).Bars().Name())
	assert.Equal(t, "flat", newTestEngine(termenv.Ascii).Bars().Name())
}

func TestFlatBarsUseSingleColour(t *testing.T) {
	c := draw.NewScaledCanvas(80, 30, GameWidth, GameHeight, draw.NewEncoder(termenv.ANSI))
	FlatBars{}.Bar(c, 0, 0, 200, 40, gradientNormal)
	top, _ := c.At(1, 0)
	bottom, _ := c.At(1, 3)
	assert.Equal(t, rgb(top), rgb(bottom))
}
