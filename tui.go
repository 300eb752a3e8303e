package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voiceai/controller"
	"voiceai/messenger"
)

type noticeLevel int

const (
	levelInfo noticeLevel = iota
	levelWarn
	levelError
)

// TUI message types
type panelMsg messenger.Message
type stateMsg controller.State
type noticeMsg struct {
	level noticeLevel
	text  string
}
type tickMsg time.Time

const statusComplete = "Complete! Results ready."

type tuiModel struct {
	panel *messenger.Panel
	combo string // global shortcut, empty when unavailable

	state     controller.State
	recStart  time.Time
	now       time.Time
	status    string
	notice    noticeMsg
	errText   string
	text      string
	feedback  string
	showReply bool
	results   int

	width, height int
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

func newTUIModel(p *messenger.Panel, combo string) tuiModel {
	return tuiModel{panel: p, combo: combo, status: "Ready to record", now: time.Now()}
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) send(msg messenger.Message) {
	m.panel.Send(msg)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.onKey(msg)

	case tickMsg:
		m.now = time.Time(msg)
		return m, tuiTick()

	case stateMsg:
		st := controller.State(msg)
		if st == controller.Recording && m.state != controller.Recording {
			m.recStart = m.now
		}
		m.state = st

	case noticeMsg:
		m.notice = msg

	case panelMsg:
		m.onPanel(messenger.Message(msg))
	}
	return m, nil
}

func (m tuiModel) onKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "r", " ":
		switch m.state {
		case controller.Recording:
			m.send(messenger.Simple(messenger.CmdStopSystemRecording))
		default:
			m.errText = ""
			m.send(messenger.Simple(messenger.CmdStartSystemRecording))
		}
	case "s":
		m.send(messenger.Simple(messenger.CmdStopSystemRecording))
	case "c":
		if m.text != "" {
			m.send(messenger.NewCopyText(m.text))
		}
	case "y":
		if m.showReply && m.feedback != "" {
			m.send(messenger.NewCopyText(m.feedback))
		}
	case "g":
		m.showReply = true
		m.feedback = "Sending to ChatGPT..."
		m.send(messenger.NewSendToChatGPT(m.text))
	case "o":
		m.send(messenger.Simple(messenger.CmdOpenSettings))
	}
	return m, nil
}

func (m *tuiModel) onPanel(msg messenger.Message) {
	switch p := msg.Payload.(type) {
	case messenger.ResultsPayload:
		m.results++
		m.text = p.Transcription
		m.showReply = p.Feedback != nil
		if p.Feedback != nil {
			m.feedback = *p.Feedback
		}
		m.errText = ""
		m.status = statusComplete
	case messenger.ChatResponsePayload:
		m.showReply = true
		m.feedback = p.Response
	case messenger.ErrorPayload:
		m.errText = p.Message
		m.status = "Ready to record"
	default:
		switch msg.Command {
		case messenger.CmdRecordingStarted:
			m.status = "Recording active! Press r to stop."
		case messenger.CmdRecordingStopped:
			m.status = "Processing recorded audio..."
		}
	}
}

func (m tuiModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	wrapWidth := max(width-4, 10)

	var b strings.Builder
	b.WriteString(titleStyle.Render("🎤 Voice AI Assistant") + "\n\n")

	switch m.state {
	case controller.Recording:
		b.WriteString(recStyle.Render(fmt.Sprintf("● REC %.1fs", m.now.Sub(m.recStart).Seconds())))
	case controller.Stopping, controller.Processing:
		b.WriteString(busyStyle.Render("◌ " + strings.ToUpper(m.state.String())))
	default:
		b.WriteString(idleStyle.Render("○ STANDBY"))
	}
	statusStyle := idleStyle
	if m.status == statusComplete {
		statusStyle = okStyle
	}
	b.WriteString("  " + statusStyle.Render(m.status) + "\n")

	if m.notice.text != "" {
		style := idleStyle
		switch m.notice.level {
		case levelWarn:
			style = warnStyle
		case levelError:
			style = errStyle
		}
		b.WriteString(style.Render(m.notice.text) + "\n")
	}

	if m.errText != "" {
		b.WriteString("\n" + errStyle.Render("❌ Error: ") + m.errText + "\n")
	}

	if m.results > 0 {
		b.WriteString("\n" + headingStyle.Render(fmt.Sprintf("📝 Transcription (#%d)", m.results)) + "\n")
		for _, line := range wrapText(m.text, wrapWidth) {
			b.WriteString(textStyle.Render(line) + "\n")
		}
	}
	if m.showReply {
		b.WriteString("\n" + headingStyle.Render("🤖 ChatGPT Response") + "\n")
		for _, line := range wrapText(m.feedback, wrapWidth) {
			b.WriteString(replyStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n")
	help := []string{
		keyStyle.Render("r") + helpStyle.Render(" record/stop"),
		keyStyle.Render("c") + helpStyle.Render(" copy"),
		keyStyle.Render("g") + helpStyle.Render(" ask ChatGPT"),
		keyStyle.Render("y") + helpStyle.Render(" copy reply"),
		keyStyle.Render("o") + helpStyle.Render(" settings"),
		keyStyle.Render("q") + helpStyle.Render(" quit"),
	}
	b.WriteString(strings.Join(help, helpStyle.Render(" · ")) + "\n")
	if m.combo != "" {
		b.WriteString(keyStyle.Render(m.combo) + helpStyle.Render(" to record from anywhere") + "\n")
	}
	b.WriteString(helpStyle.Render("voiceai "+version) + "\n")
	return b.String()
}

// runTUI attaches the terminal as the panel and blocks until the user
// quits or ctx is done.
func runTUI(ctx context.Context, b *messenger.Bridge, sink *tuiSink, combo string) error {
	p, err := b.Attach()
	if err != nil {
		return err
	}
	defer p.Close()

	prog := tea.NewProgram(newTUIModel(p, combo), tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan struct{})
	defer close(done)
	go sink.pump(done, prog.Send)

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			m, err := p.Receive(recvCtx)
			if err != nil {
				return
			}
			prog.Send(panelMsg(m))
		}
	}()

	_, err = prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		for len(runes) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if runes[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(runes[:splitAt]))
			runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
		}
		lines = append(lines, string(runes))
	}
	return lines
}
