package client

// View is the screen the client currently shows.
type View int

const (
	ViewBrowser View = iota // Name, room code, room list and leaderboard
	ViewJoining             // Create or join sent, no room snapshot yet
	ViewWaiting             // Room roster with ready markers
	ViewPlaying             // Game canvas
	ViewResults             // Final standings
)

func (v View) String() string {
	switch v {
	case ViewBrowser:
		return "browser"
	case ViewJoining:
		return "joining"
	case ViewWaiting:
		return "waiting"
	case ViewPlaying:
		return "playing"
	case ViewResults:
		return "results"
	}
	return "unknown"
}

// Max render resolution in terminal cells. Larger terminals get a centred
// render area with a border. 240x90 cells hold 240x180 half-block pixels,
// the 4:3 shape of the game area.
const (
	MaxTermWidth  = 240
	MaxTermHeight = 90

	aspectW, aspectH = 4, 3

	// Assumed until the terminal reports a size.
	defaultTermWidth  = 80
	defaultTermHeight = 24
)

// clampTermSize clamps terminal dimensions to the max render resolution,
// fits the result to the 4:3 game area and computes the centering offset.
func clampTermSize(termWidth, termHeight int) (renderWidth, renderHeight, offsetCol, offsetRow int) {
	renderWidth = min(termWidth, MaxTermWidth)
	renderHeight = min(termHeight, MaxTermHeight)

	// One cell is one pixel wide and two pixels high.
	pixelsHigh := renderHeight * 2
	if renderWidth*aspectH > pixelsHigh*aspectW {
		renderWidth = pixelsHigh * aspectW / aspectH
	} else {
		renderHeight = renderWidth * aspectH / aspectW / 2
	}
	renderWidth = max(renderWidth, 1)
	renderHeight = max(renderHeight, 1)

	offsetCol = (termWidth - renderWidth) / 2
	offsetRow = (termHeight - renderHeight) / 2
	return
}
