package controller

import (
	"time"

	"github.com/google/uuid"

	"voiceai/capture"
)

type State int32

const (
	Idle State = iota
	Recording
	Stopping
	Processing
	// Error is reported and then left immediately for Idle.
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Processing:
		return "processing"
	case Error:
		return "error"
	}
	return "unknown"
}

// capturing reports whether a recording process may still be running.
func (s State) capturing() bool {
	return s == Recording || s == Stopping
}

// Session is the single in-flight recording. Only the controller loop
// touches it.
type Session struct {
	ID           uuid.UUID
	Handle       capture.Handle
	ArtifactPath string
	StartedAt    time.Time

	started bool // STARTED marker seen
	saved   bool // SAVED marker seen
}

// Sink observes the controller outside the panel: logs, tray, terminal.
// Calls happen on the controller loop and must not block.
type Sink interface {
	StateChanged(s State)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type nopSink struct{}

func (nopSink) StateChanged(State) {}
func (nopSink) Info(string)        {}
func (nopSink) Warn(string)        {}
func (nopSink) Error(string)       {}

// MultiSink fans out to every non-nil sink.
func MultiSink(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multiSink []Sink

func (m multiSink) StateChanged(s State) {
	for _, k := range m {
		k.StateChanged(s)
	}
}

func (m multiSink) Info(msg string) {
	for _, k := range m {
		k.Info(msg)
	}
}

func (m multiSink) Warn(msg string) {
	for _, k := range m {
		k.Warn(msg)
	}
}

func (m multiSink) Error(msg string) {
	for _, k := range m {
		k.Error(msg)
	}
}
