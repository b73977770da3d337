package console

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Sanitize strips terminal escape sequences (CSI, OSC, cursor movement,
// colors) from text and normalizes CRLF and lone CR line endings to LF.
// Sanitize is pure and idempotent.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	text = ansi.Strip(text)
	if !strings.ContainsRune(text, '\r') {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
