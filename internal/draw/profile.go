package draw

import (
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
)

// Profile is a terminal colour capability level.
type Profile = termenv.Profile

// Environ provides the environment of the terminal being drawn to. For SSH
// sessions that is the remote client's environment, not the server's.
type Environ = termenv.Environ

// EnvList adapts a KEY=VALUE list to Environ.
type EnvList []string

func (e EnvList) Environ() []string { return e }

// Getenv returns the last value set for key.
func (e EnvList) Getenv(key string) string {
	prefix := key + "="
	for i := len(e) - 1; i >= 0; i-- {
		if v, ok := strings.CutPrefix(e[i], prefix); ok {
			return v
		}
	}
	return ""
}

// OSEnv returns the environment of the current process.
func OSEnv() EnvList {
	return EnvList(os.Environ())
}

// ParseProfile maps a profile name to a Profile. "auto" and unknown names
// report false.
func ParseProfile(name string) (Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "truecolor", "24bit":
		return termenv.TrueColor, true
	case "256", "ansi256":
		return termenv.ANSI256, true
	case "16", "ansi":
		return termenv.ANSI, true
	case "mono", "ascii", "none":
		return termenv.Ascii, true
	}
	return termenv.Ascii, false
}

// ProfileName returns a short name for p.
func ProfileName(p Profile) string {
	switch p {
	case termenv.TrueColor:
		return "truecolor"
	case termenv.ANSI256:
		return "256"
	case termenv.ANSI:
		return "16"
	}
	return "mono"
}

// DetectProfile resolves the colour profile once. A forced name wins over
// detection; otherwise the profile comes from env (TERM, COLORTERM, NO_COLOR).
func DetectProfile(env Environ, tty bool, forced string) Profile {
	if p, ok := ParseProfile(forced); ok {
		return p
	}
	out := termenv.NewOutput(io.Discard, termenv.WithEnvironment(env), termenv.WithTTY(tty))
	return out.EnvColorProfile()
}

// HasGradients reports whether p can show smooth colour ramps.
func HasGradients(p Profile) bool {
	return p == termenv.TrueColor || p == termenv.ANSI256
}

// Encoder turns half-block cells into escape sequences for one profile.
// Sequences are cached per colour since frames reuse a small palette.
type Encoder struct {
	profile Profile
	fg      map[uint32]string
	bg      map[uint32]string
}

// NewEncoder creates an encoder for p.
func NewEncoder(p Profile) *Encoder {
	return &Encoder{
		profile: p,
		fg:      make(map[uint32]string),
		bg:      make(map[uint32]string),
	}
}

// Profile returns the profile the encoder targets.
func (e *Encoder) Profile() Profile {
	return e.profile
}

// Mono reports whether the encoder draws without colour.
func (e *Encoder) Mono() bool {
	return e.profile == termenv.Ascii
}

const (
	defaultFg = "39"
	defaultBg = "49"
)

func (e *Encoder) sequence(c Color, background bool) string {
	key := pack(c)
	cache := e.fg
	if background {
		cache = e.bg
	}
	if s, ok := cache[key]; ok {
		return s
	}
	s := defaultFg
	if background {
		s = defaultBg
	}
	if col := e.profile.Color(c.Clamped().Hex()); col != nil {
		if seq := col.Sequence(background); seq != "" {
			s = seq
		}
	}
	cache[key] = s
	return s
}

// sgr tracks the colours last selected on the output stream.
type sgr struct {
	fg, bg string
}

func (st *sgr) set(b *strings.Builder, fg, bg string) {
	if fg == st.fg && bg == st.bg {
		return
	}
	b.WriteString("\033[")
	switch {
	case fg != st.fg && bg != st.bg:
		b.WriteString(fg)
		b.WriteByte(';')
		b.WriteString(bg)
	case fg != st.fg:
		b.WriteString(fg)
	default:
		b.WriteString(bg)
	}
	b.WriteByte('m')
	st.fg, st.bg = fg, bg
}

// cell writes one terminal cell.
func (e *Encoder) cell(b *strings.Builder, st *sgr, k cellKey) {
	hasTop := k.flags&flagTop != 0
	hasBottom := k.flags&flagBottom != 0

	if e.Mono() {
		hasTop = hasTop && lit(k.top)
		hasBottom = hasBottom && lit(k.bottom)
		switch {
		case hasTop && hasBottom:
			b.WriteRune(BlockFull)
		case hasTop:
			b.WriteRune(BlockUpperHalf)
		case hasBottom:
			b.WriteRune(BlockLowerHalf)
		default:
			b.WriteByte(BlockEmpty)
		}
		return
	}

	switch {
	case hasTop && hasBottom:
		st.set(b, e.sequence(unpack(k.top), false), e.sequence(unpack(k.bottom), true))
		b.WriteRune(BlockUpperHalf)
	case hasTop:
		st.set(b, e.sequence(unpack(k.top), false), defaultBg)
		b.WriteRune(BlockUpperHalf)
	case hasBottom:
		st.set(b, e.sequence(unpack(k.bottom), false), defaultBg)
		b.WriteRune(BlockLowerHalf)
	default:
		st.set(b, st.fg, defaultBg)
		b.WriteByte(BlockEmpty)
	}
}

// lit decides whether a pixel shows up on a monochrome terminal.
func lit(rgb uint32) bool {
	_, _, l := unpack(rgb).Hsl()
	return l > 0.3
}

func unpack(v uint32) Color {
	return RGB(uint8(v>>16), uint8(v>>8), uint8(v))
}
