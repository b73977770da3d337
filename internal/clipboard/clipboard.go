// Package clipboard exports text to the host system clipboard.
package clipboard

import (
	"context"

	"github.com/atotto/clipboard"
)

// System writes to the host clipboard via the platform's clipboard utility.
type System struct{}

// New constructs a System clipboard.
func New() *System {
	return &System{}
}

// SetText replaces the clipboard contents. The underlying utility call is not
// interruptible, so a cancelled context is only honored up front.
func (*System) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return clipboard.WriteAll(text)
}

// Available reports whether a clipboard utility is present on this host.
func Available() bool {
	return !clipboard.Unsupported
}
