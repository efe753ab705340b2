package input

import (
	"bufio"
	"unicode/utf8"
)

// Key identifies a decoded key press.
type Key int

const (
	KeyNone Key = iota
	KeyRune     // Printable character, see Press.Rune
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyEnter
	KeyTab
	KeyBackspace
	KeyEscape
	KeyInterrupt // Ctrl-C
)

// Press is one decoded key press. Terminals report presses and OS key-repeat
// but never releases.
type Press struct {
	Key  Key
	Rune rune
}

// Stream delivers input bytes via a channel.
type Stream struct {
	ch      chan byte
	pending []byte // Unfinished escape sequence carried to the next Read
}

// StartStream spawns a goroutine that reads from r and sends bytes to the stream.
func StartStream(r *bufio.Reader) *Stream {
	s := &Stream{
		ch: make(chan byte, 128),
	}
	go func() {
		for {
			b, err := r.ReadByte()
			if err != nil {
				close(s.ch)
				return
			}
			s.ch <- b
		}
	}()
	return s
}

// Read drains all available bytes from the stream (non-blocking) and decodes
// them. closed reports that the underlying reader is gone.
// An escape sequence split across reads is held back for one read.
func (s *Stream) Read() (presses []Press, closed bool) {
	buf := s.pending
	carried := len(buf)
	s.pending = nil
	for {
		select {
		case b, ok := <-s.ch:
			if !ok {
				return Decode(buf), true
			}
			buf = append(buf, b)
		default:
			if n := unfinishedEscape(buf); n > 0 && len(buf) > carried {
				s.pending = append([]byte(nil), buf[len(buf)-n:]...)
				buf = buf[:len(buf)-n]
			}
			return Decode(buf), false
		}
	}
}

// unfinishedEscape returns the length of a trailing ESC or ESC [ / ESC O.
func unfinishedEscape(buf []byte) int {
	n := len(buf)
	switch {
	case n >= 1 && buf[n-1] == '\x1b':
		return 1
	case n >= 2 && buf[n-2] == '\x1b' && (buf[n-1] == '[' || buf[n-1] == 'O'):
		return 2
	}
	return 0
}

// Decode parses raw terminal bytes into key presses.
// Handles CSI and SS3 arrow sequences and UTF-8 text.
func Decode(buf []byte) []Press {
	var out []Press
	for i := 0; i < len(buf); i++ {
		b := buf[i]

		// Escape sequences: ESC [ <code> or ESC O <code>
		if b == '\x1b' && i+2 < len(buf) && (buf[i+1] == '[' || buf[i+1] == 'O') {
			if k := arrowKey(buf[i+2]); k != KeyNone {
				out = append(out, Press{Key: k})
				i += 2
				continue
			}
		}

		switch b {
		case '\x1b':
			out = append(out, Press{Key: KeyEscape})
		case '\x03':
			out = append(out, Press{Key: KeyInterrupt})
		case '\r', '\n':
			out = append(out, Press{Key: KeyEnter})
		case '\t':
			out = append(out, Press{Key: KeyTab})
		case '\b', '\x7f':
			out = append(out, Press{Key: KeyBackspace})
		default:
			if b < 0x20 {
				continue
			}
			r, size := utf8.DecodeRune(buf[i:])
			if r == utf8.RuneError {
				continue
			}
			out = append(out, Press{Key: KeyRune, Rune: r})
			i += size - 1
		}
	}
	return out
}

func arrowKey(code byte) Key {
	switch code {
	case 'A':
		return KeyUp
	case 'B':
		return KeyDown
	case 'C':
		return KeyRight
	case 'D':
		return KeyLeft
	}
	return KeyNone
}

// Direction returns the movement direction a press maps to, if any.
func (p Press) Direction() (Direction, bool) {
	switch p.Key {
	case KeyLeft:
		return DirLeft, true
	case KeyRight:
		return DirRight, true
	case KeyRune:
		switch p.Rune {
		case 'a', 'A':
			return DirLeft, true
		case 'd', 'D':
			return DirRight, true
		}
	}
	return 0, false
}
