//go:build !windows

package hotkey

func New() (Hotkey, error) { return nil, ErrUnsupported }

func Diagnose() (string, error) { return "", ErrUnsupported }
