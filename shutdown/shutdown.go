package shutdown

import (
	"context"
	"os"
)

// Context returns a context cancelled on the first interrupt. A second
// interrupt is left to the default handler.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	Notify(ch)
	go func() {
		select {
		case <-ch:
			Stop(ch)
			cancel()
		case <-ctx.Done():
			Stop(ch)
		}
	}()
	return ctx, cancel
}
