package client

import (
	"unicode"

	"go.uber.org/zap"

	"github.com/tomz197/officeescape/internal/input"
	"github.com/tomz197/officeescape/internal/lobby"
	"github.com/tomz197/officeescape/internal/render"
	"github.com/tomz197/officeescape/internal/room"
	"github.com/tomz197/officeescape/internal/screen"
)

// drawFrame draws the current frame.
func (c *Client) drawFrame() error {
	// On view transitions, do a full terminal clear so UI elements from the
	// previous view don't persist on screen.
	if c.view != c.prevView {
		c.cw.Clear()
		c.canvas.ForceRedraw()
		c.painter.Invalidate()
		c.logger.Debug("view changed", zap.Stringer("from", c.prevView), zap.Stringer("to", c.view))
		c.prevView = c.view
	}

	if c.view == ViewPlaying && c.alert == "" {
		c.drawGame()
	} else {
		c.cw.SetOffset(0, 0)
		c.painter.Paint(c.cw, c.termWidth, c.termHeight, c.textScreen())
	}
	return c.cw.Flush()
}

// drawGame paints the room onto the canvas. A failed frame is logged and
// the next one is drawn from scratch.
func (c *Client) drawGame() {
	c.cw.SetOffset(c.canvas.OffsetCol(), c.canvas.OffsetRow())

	scene := render.Scene{
		Snapshot:  c.session.Snapshot(),
		LocalName: c.machine.LocalName(),
	}
	if hud, ok := c.machine.HUD(); ok {
		scene.HUD = &render.HUD{HP: hud.HP, Floor: hud.Floor}
	}
	scene.Now = c.lastFrame

	if err := c.engine.Frame(c.cw, scene); err != nil {
		c.logger.Error("frame failed", zap.Error(err))
	}

	// Draw border when terminal exceeds max render resolution
	c.canvas.RenderBorder(c.cw)
}

// textScreen renders the text screen of the current view.
func (c *Client) textScreen() string {
	if c.alert != "" {
		return c.theme.Alert(c.alert)
	}
	switch c.view {
	case ViewJoining:
		return c.theme.Connecting("joining room... (esc to go back)")
	case ViewWaiting:
		if snap := c.session.Snapshot(); snap != nil {
			return c.theme.Waiting(room.WaitingView(snap))
		}
		return c.theme.Connecting("waiting for room...")
	case ViewResults:
		return c.theme.Results(screen.Results{
			Results: c.machine.Results(),
			Elapsed: c.machine.Elapsed(),
		})
	}
	return c.theme.Browser(screen.Browser{
		Form:        &c.form,
		Leaderboard: lobby.LeaderboardLines(c.session.Leaderboard),
		Status:      c.session.Status.String(),
		NoRooms:     len(c.session.Rooms) == 0,
	})
}

// quits reports whether p asks to leave outside of a text field.
func quits(p input.Press) bool {
	return p.Key == input.KeyEscape || isRune(p, 'q')
}

func isRune(p input.Press, r rune) bool {
	return p.Key == input.KeyRune && unicode.ToLower(p.Rune) == r
}
