package screen

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tomz197/officeescape/internal/draw"
)

// Painter writes text screens centred on the terminal. A screen is only
// written when its content or the terminal size changed.
type Painter struct {
	last          string
	width, height int
}

// Paint clears the terminal and writes block centred in a width x height
// area. It reports whether anything was written.
func (p *Painter) Paint(cw *draw.ChunkWriter, width, height int, block string) bool {
	if block == p.last && width == p.width && height == p.height {
		return false
	}
	p.last, p.width, p.height = block, width, height

	lines := strings.Split(block, "\n")
	left := max((width-lipgloss.Width(block))/2, 0) + 1
	top := max((height-len(lines))/2, 0) + 1

	cw.Clear()
	for i, line := range lines {
		if top+i > height {
			break
		}
		cw.WriteAt(left, top+i, line)
	}
	return true
}

// Invalidate makes the next Paint write even if nothing changed.
func (p *Painter) Invalidate() {
	p.last = ""
	p.width, p.height = 0, 0
}
