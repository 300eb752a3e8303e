package hotkey

import "errors"

var ErrUnsupported = errors.New("hotkey: global hotkeys are only supported on Windows")

// Combo is the human-readable global shortcut.
const Combo = "Ctrl+Shift+R"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
