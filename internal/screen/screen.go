// Package screen renders the text screens of the client: the lobby browser,
// the waiting room, the results and alert boxes.
package screen

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hako/durafmt"

	"github.com/tomz197/officeescape/internal/draw"
	"github.com/tomz197/officeescape/internal/lobby"
	"github.com/tomz197/officeescape/internal/room"
)

// Theme holds the styles of all screens for one terminal.
type Theme struct {
	title   lipgloss.Style
	heading lipgloss.Style
	label   lipgloss.Style
	field   lipgloss.Style
	focused lipgloss.Style
	dim     lipgloss.Style
	accent  lipgloss.Style
	danger  lipgloss.Style
	score   lipgloss.Style
	ready   lipgloss.Style
	local   lipgloss.Style
	panel   lipgloss.Style
	alert   lipgloss.Style
}

// NewTheme builds styles rendered for the given colour profile.
func NewTheme(p draw.Profile) *Theme {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(p)

	return &Theme{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#4facfe")),
		heading: r.NewStyle().Bold(true).Underline(true),
		label:   r.NewStyle().Width(11),
		field:   r.NewStyle().Width(MaxNameLen + 2).Foreground(lipgloss.Color("#aaaaaa")),
		focused: r.NewStyle().Width(MaxNameLen + 2).Bold(true).Foreground(lipgloss.Color("#00f2fe")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#aaaaaa")),
		accent:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#4facfe")),
		danger:  r.NewStyle().Foreground(lipgloss.Color("#e74c3c")),
		score:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#f1c40f")),
		ready:   r.NewStyle().Foreground(lipgloss.Color("#2ecc71")),
		local:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#2ecc71")),
		panel:   r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2),
		alert: r.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#e74c3c")).
			Padding(0, 2).Bold(true),
	}
}

const titleText = "OFFICE ESCAPE"

// Browser is the data of the lobby browser.
type Browser struct {
	Form        *Form
	Leaderboard []string
	Status      string // Connection status line
	// NoRooms is set when the server listed no rooms at all. Ended rooms
	// are dropped from the form but do not count as an empty list.
	NoRooms bool
}

// Browser renders the lobby browser.
func (t *Theme) Browser(v Browser) string {
	f := v.Form

	inputs := lipgloss.JoinVertical(lipgloss.Left,
		t.input("Name", f.Name, f.Focus == FieldName),
		t.input("Room code", f.Code, f.Focus == FieldCode),
		"",
		t.dim.Render("enter on name: create room"),
		t.dim.Render("enter on code: join room"),
	)

	var rooms []string
	rooms = append(rooms, t.heading.Render("Rooms"))
	if v.NoRooms {
		rooms = append(rooms, t.dim.Render(lobby.NoRooms))
	}
	for i, r := range f.Rooms() {
		cursor := "  "
		if f.Focus == FieldRooms && i == f.Selected {
			cursor = "> "
		}
		line := cursor + t.accent.Render(r.RoomID) + " " + t.dim.Render(r.Count())
		if r.Playing {
			line += " " + t.danger.Render("PLAYING")
		}
		rooms = append(rooms, line)
	}

	board := []string{t.heading.Render("Leaderboard")}
	board = append(board, v.Leaderboard...)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		t.panel.Render(inputs),
		t.panel.Render(lipgloss.JoinVertical(lipgloss.Left, rooms...)),
		t.panel.Render(lipgloss.JoinVertical(lipgloss.Left, board...)),
	)
	return lipgloss.JoinVertical(lipgloss.Center,
		t.title.Render(titleText),
		"",
		body,
		"",
		t.dim.Render(v.Status),
		t.dim.Render("tab: next field   ↑/↓: select room   esc: quit"),
	)
}

func (t *Theme) input(label, value string, focused bool) string {
	style := t.field
	cursor := ""
	if focused {
		style = t.focused
		cursor = "_"
	}
	return t.label.Render(label) + style.Render("["+value+cursor+"]")
}

// Waiting renders the waiting room.
func (t *Theme) Waiting(w room.Waiting) string {
	lines := []string{t.heading.Render("Players")}
	for _, m := range w.Members {
		marker := t.dim.Render("○ ")
		state := t.dim.Render("not ready")
		if m.Ready {
			marker = t.ready.Render("● ")
			state = t.ready.Render("ready")
		}
		lines = append(lines, marker+m.Name+"  "+state)
	}
	if len(w.Members) == 0 {
		lines = append(lines, t.dim.Render("waiting for players..."))
	}

	controls := "r: ready   esc: quit"
	if w.ShowStart {
		controls = "r: ready   s: start   esc: quit"
	}
	return lipgloss.JoinVertical(lipgloss.Center,
		t.title.Render(titleText),
		"",
		"Room: "+t.accent.Render(w.RoomID),
		"",
		t.panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
		"",
		t.dim.Render(controls),
	)
}

// Results is the data of the end screen.
type Results struct {
	Results []room.Result
	Elapsed time.Duration
}

// Results renders the end screen.
func (t *Theme) Results(v Results) string {
	lines := []string{t.heading.Render("Final standings")}
	var local *room.Result
	for i, r := range v.Results {
		name := r.Name
		if r.Local {
			name = t.local.Render(r.Name)
			if local == nil {
				local = &v.Results[i]
			}
		}
		lines = append(lines, fmt.Sprintf("%d. %s %s", i+1, name, t.score.Render(fmt.Sprintf("B%d", r.Floor))))
	}

	parts := []string{t.danger.Bold(true).Render("GAME OVER"), ""}
	if local != nil {
		parts = append(parts, "You reached "+t.score.Render(fmt.Sprintf("B%d", local.Floor)))
	}
	if v.Elapsed > 0 {
		parts = append(parts, "Survived for "+FormatElapsed(v.Elapsed))
	}
	parts = append(parts,
		"",
		t.panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
		"",
		t.dim.Render("enter: play again   q: quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Center, parts...)
}

// FormatElapsed formats a match duration to whole seconds.
func FormatElapsed(d time.Duration) string {
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}

// Alert renders a modal message box.
func (t *Theme) Alert(msg string) string {
	return t.alert.Render(lipgloss.JoinVertical(lipgloss.Center, msg, "", t.dim.Render("press any key")))
}

// Connecting renders the placeholder shown while the game view waits for
// the first frame it can draw.
func (t *Theme) Connecting(msg string) string {
	return lipgloss.JoinVertical(lipgloss.Center, t.title.Render(titleText), "", t.dim.Render(msg))
}
