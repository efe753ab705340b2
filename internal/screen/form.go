package screen

import (
	"unicode/utf8"

	"github.com/tomz197/officeescape/internal/input"
	"github.com/tomz197/officeescape/internal/lobby"
)

// Field is a focusable part of the lobby browser.
type Field int

const (
	FieldName Field = iota
	FieldCode
	FieldRooms
	numFields
)

// Input length limits.
const (
	MaxNameLen = 16
	MaxCodeLen = 12
)

// Action is what a key press on the lobby browser asks the client to do.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionJoin // Join the room in Form.Code
	ActionQuit
)

// Form is the editable state of the lobby browser.
type Form struct {
	Name     string
	Code     string
	Focus    Field
	Selected int
	rooms    []lobby.RoomLine
}

// SetRooms replaces the listed rooms, keeping the selection in range.
func (f *Form) SetRooms(rooms []lobby.RoomLine) {
	f.rooms = rooms
	f.Selected = max(0, min(f.Selected, len(rooms)-1))
}

// Rooms returns the listed rooms.
func (f *Form) Rooms() []lobby.RoomLine {
	return f.rooms
}

// Handle applies one key press.
func (f *Form) Handle(p input.Press) Action {
	switch p.Key {
	case input.KeyEscape, input.KeyInterrupt:
		return ActionQuit
	case input.KeyTab:
		f.Focus = (f.Focus + 1) % numFields
	case input.KeyUp:
		if f.Focus == FieldRooms && f.Selected > 0 {
			f.Selected--
		} else if f.Focus != FieldRooms && f.Focus > FieldName {
			f.Focus--
		}
	case input.KeyDown:
		if f.Focus == FieldRooms {
			if f.Selected < len(f.rooms)-1 {
				f.Selected++
			}
		} else {
			f.Focus++
		}
	case input.KeyBackspace:
		if field := f.text(); field != nil {
			*field = trimLastRune(*field)
		}
	case input.KeyRune:
		if field := f.text(); field != nil {
			if utf8.RuneCountInString(*field) < f.limit() {
				*field += string(p.Rune)
			}
		} else if p.Rune == 'q' || p.Rune == 'Q' {
			return ActionQuit
		}
	case input.KeyEnter:
		switch f.Focus {
		case FieldName:
			return ActionCreate
		case FieldCode:
			return ActionJoin
		case FieldRooms:
			if len(f.rooms) == 0 {
				return ActionNone
			}
			f.Code = f.rooms[f.Selected].RoomID
			return ActionJoin
		}
	}
	return ActionNone
}

func (f *Form) text() *string {
	switch f.Focus {
	case FieldName:
		return &f.Name
	case FieldCode:
		return &f.Code
	}
	return nil
}

func (f *Form) limit() int {
	if f.Focus == FieldCode {
		return MaxCodeLen
	}
	return MaxNameLen
}

func trimLastRune(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}
