package tray

import (
	"sync"
	"time"
)

const idleTooltip = "Voice AI - ready to record"

// Status is what the record menu item and icon show.
type Status int

const (
	Idle Status = iota
	Recording
	Stopping
	Processing
)

// label is the record item's title; ok reports whether it is clickable.
func (s Status) label() (title string, ok bool) {
	switch s {
	case Recording:
		return "Stop Recording", true
	case Stopping:
		return "Stopping...", false
	case Processing:
		return "Processing...", false
	}
	return "Start Recording", true
}

func (s Status) tooltip() string {
	switch s {
	case Recording:
		return "Voice AI - recording"
	case Stopping:
		return "Voice AI - saving recording..."
	case Processing:
		return "Voice AI - processing..."
	}
	return idleTooltip
}

var (
	quitCh    = make(chan struct{})
	closeOnce sync.Once

	mu         sync.Mutex
	recordFn   func()
	stopFn     func()
	panelFn    func()
	settingsFn func()
	status     Status
)

func OnRecord(start, stop func()) {
	mu.Lock()
	recordFn, stopFn = start, stop
	mu.Unlock()
}

func OnOpenPanel(fn func()) {
	mu.Lock()
	panelFn = fn
	mu.Unlock()
}

func OnSettings(fn func()) {
	mu.Lock()
	settingsFn = fn
	mu.Unlock()
}

func SetStatus(s Status) {
	mu.Lock()
	status = s
	mu.Unlock()
	updateMenu(s)
	updateTooltip(s.tooltip())
}

func SetError(msg string) {
	updateTooltip("Voice AI - " + msg)
	go func() {
		time.Sleep(10 * time.Second)
		mu.Lock()
		s := status
		mu.Unlock()
		updateTooltip(s.tooltip())
	}()
}

// Done is closed when the user picks Quit or Quit is called.
func Done() <-chan struct{} { return quitCh }

func Quit() {
	closeOnce.Do(func() {
		close(quitCh)
		shutdown()
	})
}

// toggleRecording starts when idle and stops when recording. While the
// recording is being saved or processed the item does nothing.
func toggleRecording() {
	mu.Lock()
	var fn func()
	switch status {
	case Idle:
		fn = recordFn
	case Recording:
		fn = stopFn
	}
	mu.Unlock()
	if fn != nil {
		fn()
	}
}

func call(fn *func()) {
	mu.Lock()
	f := *fn
	mu.Unlock()
	if f != nil {
		f()
	}
}
