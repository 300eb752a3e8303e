package clipboard

import (
	"errors"
	"fmt"
	"time"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("clipboard: no clipboard utility found (install xclip, xsel or wl-clipboard)")

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}

// Verify round-trips a probe string through the clipboard and puts the
// previous contents back.
func Verify() (string, error) {
	prev, err := Read()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	probe := fmt.Sprintf("voiceai-%d", time.Now().UnixNano())
	if err := Copy(probe); err != nil {
		return "", fmt.Errorf("write clipboard: %w", err)
	}
	got, err := Read()
	Copy(prev)
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	if got != probe {
		return "", fmt.Errorf("clipboard returned %q, want %q", got, probe)
	}
	return "clipboard round-trip ok", nil
}
