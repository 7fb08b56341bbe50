package output

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalSize(w io.Writer) (width, height int) {
	width, height = 80, 24
	f, ok := w.(*os.File)
	if !ok {
		return width, height
	}
	if cw, ch, err := term.GetSize(int(f.Fd())); err == nil {
		if cw > 0 {
			width = cw
		}
		if ch > 0 {
			height = ch
		}
	}
	return width, height
}

func terminalHeight(w io.Writer) int {
	_, h := terminalSize(w)
	return h
}
