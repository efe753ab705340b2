package draw

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal control sequences.
const (
	seqClear      = "\033[H\033[2J"
	seqHideCursor = "\033[?25l"
	seqShowCursor = "\033[?25h"
)

// ChunkWriter collects one frame of terminal output and sends it in pieces
// small enough for an SSH channel. Cursor positions given to it are relative
// to its offset, which follows the centred render area.
type ChunkWriter struct {
	buf    strings.Builder
	out    *bufio.Writer
	offCol int
	offRow int
}

// NewChunkWriter creates a ChunkWriter flushing to w.
func NewChunkWriter(w io.Writer, offsetCol, offsetRow int) *ChunkWriter {
	return &ChunkWriter{
		out:    bufio.NewWriterSize(w, 8192),
		offCol: offsetCol,
		offRow: offsetRow,
	}
}

// SetOffset moves the origin of MoveCursor and WriteAt. Text screens use
// (0, 0); the game view uses the canvas offset.
func (cw *ChunkWriter) SetOffset(offsetCol, offsetRow int) {
	cw.offCol = offsetCol
	cw.offRow = offsetRow
}

// MoveCursor queues a cursor move to the 1-based col and row.
func (cw *ChunkWriter) MoveCursor(col, row int) {
	moveCursor(&cw.buf, col+cw.offCol, row+cw.offRow)
}

// Write queues p; Canvas.Render writes whole frames through it.
func (cw *ChunkWriter) Write(p []byte) (n int, err error) {
	return cw.buf.Write(p)
}

// WriteString queues s.
func (cw *ChunkWriter) WriteString(s string) {
	cw.buf.WriteString(s)
}

// WriteAt queues s at the 1-based col and row.
func (cw *ChunkWriter) WriteAt(col, row int, s string) {
	cw.MoveCursor(col, row)
	cw.buf.WriteString(s)
}

// Clear queues a full terminal clear.
func (cw *ChunkWriter) Clear() {
	cw.buf.WriteString(seqClear)
}

var _ io.Writer = (*ChunkWriter)(nil)

// Flush sends the queued output in chunks and empties the queue.
func (cw *ChunkWriter) Flush() error {
	data := cw.buf.String()
	cw.buf.Reset()
	if err := writeChunked(cw.out, data); err != nil {
		return err
	}
	return cw.out.Flush()
}

// ErrNoSize is returned when the terminal reports no usable size, as a
// fresh SSH pty may do before its first window change.
var ErrNoSize = errors.New("draw: terminal size unknown")

// TermSizeFunc returns the terminal dimensions in cells.
type TermSizeFunc func() (width, height int, err error)

// Size calls f and rejects empty sizes.
func (f TermSizeFunc) Size() (width, height int, err error) {
	width, height, err = f()
	if err != nil {
		return 0, 0, err
	}
	if width <= 0 || height <= 0 {
		return 0, 0, ErrNoSize
	}
	return width, height, nil
}

// DefaultTermSizeFunc returns terminal size from os.Stdout.
var DefaultTermSizeFunc TermSizeFunc = func() (int, int, error) {
	return term.GetSize(int(os.Stdout.Fd()))
}

// ClearScreen clears the terminal and moves cursor to top-left.
func ClearScreen(w io.Writer) {
	io.WriteString(w, seqClear)
}

// HideCursor hides the terminal cursor.
func HideCursor(w io.Writer) {
	io.WriteString(w, seqHideCursor)
}

// ShowCursor shows the terminal cursor.
func ShowCursor(w io.Writer) {
	io.WriteString(w, seqShowCursor)
}
