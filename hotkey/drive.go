package hotkey

import (
	"context"
	"time"
)

// Recorder is what the shortcut drives. Both calls must return quickly.
// Toggle follows the recorder's own state, so other surfaces may start or
// stop a recording between presses.
type Recorder interface {
	Toggle() (started bool)
	Stop()
}

// Drive turns presses of hk into recording commands until ctx is done.
// A tap toggles recording. Holding the key longer than longPress after it
// started a recording stops that recording on release.
func Drive(ctx context.Context, hk Hotkey, rec Recorder, longPress time.Duration) error {
	for {
		if !wait(ctx, hk.Keydown()) {
			return ctx.Err()
		}
		started := rec.Toggle()

		timer := time.NewTimer(longPress)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-hk.Keyup():
			timer.Stop()
		case <-timer.C:
			if !wait(ctx, hk.Keyup()) {
				return ctx.Err()
			}
			if started {
				rec.Stop()
			}
		}
	}
}

func wait(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ch:
		return true
	}
}
