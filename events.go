package main

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voiceai/controller"
	"voiceai/tray"
)

// traySink mirrors controller state on the notification-area icon.
type traySink struct{}

func (traySink) StateChanged(s controller.State) {
	switch s {
	case controller.Recording:
		tray.SetStatus(tray.Recording)
	case controller.Stopping:
		tray.SetStatus(tray.Stopping)
	case controller.Processing:
		tray.SetStatus(tray.Processing)
	case controller.Idle:
		tray.SetStatus(tray.Idle)
	}
}

func (traySink) Info(string)      {}
func (traySink) Warn(string)      {}
func (traySink) Error(msg string) { tray.SetError(msg) }

// consoleSink prints status lines when the panel lives in a browser.
type consoleSink struct {
	w   io.Writer
	now func() time.Time
}

var (
	consoleTime  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	consoleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	consoleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	consoleError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func (c consoleSink) line(style lipgloss.Style, msg string) {
	fmt.Fprintf(c.w, "%s %s\n", consoleTime.Render(c.now().Format("15:04:05")), style.Render(msg))
}

func (c consoleSink) StateChanged(s controller.State) {}
func (c consoleSink) Info(msg string)                 { c.line(consoleInfo, msg) }
func (c consoleSink) Warn(msg string)                 { c.line(consoleWarn, msg) }
func (c consoleSink) Error(msg string)                { c.line(consoleError, msg) }

// tuiSink buffers controller notifications for the terminal panel. The
// controller loop must never wait on rendering, so a full buffer drops.
type tuiSink struct {
	ch chan tea.Msg
}

func newTUISink() *tuiSink {
	return &tuiSink{ch: make(chan tea.Msg, 64)}
}

func (s *tuiSink) push(m tea.Msg) {
	select {
	case s.ch <- m:
	default:
	}
}

func (s *tuiSink) StateChanged(st controller.State) { s.push(stateMsg(st)) }
func (s *tuiSink) Info(msg string)                  { s.push(noticeMsg{level: levelInfo, text: msg}) }
func (s *tuiSink) Warn(msg string)                  { s.push(noticeMsg{level: levelWarn, text: msg}) }
func (s *tuiSink) Error(msg string)                 { s.push(noticeMsg{level: levelError, text: msg}) }

// pump forwards buffered notifications to prog until done closes.
func (s *tuiSink) pump(done <-chan struct{}, send func(tea.Msg)) {
	for {
		select {
		case <-done:
			return
		case m := <-s.ch:
			send(m)
		}
	}
}
