package doctor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"voiceai/capture"
	"voiceai/clipboard"
	"voiceai/config"
	"voiceai/gateway"
	"voiceai/hotkey"
	"voiceai/log"
)

// Check is one line of the report. Optional checks warn instead of fail.
type Check struct {
	Name     string
	Optional bool
	Run      func(ctx context.Context) (string, error)
}

type Options struct {
	Settings config.Settings
	Path     string
	Gateway  gateway.Gateway
	// Live sends a one-word completion to verify the key.
	Live bool
}

// Checks builds the standard settings report.
func Checks(opts Options) []Check {
	s := opts.Settings
	checks := []Check{
		{Name: "Settings file", Optional: true, Run: func(context.Context) (string, error) {
			if opts.Path == "" {
				return "", fmt.Errorf("no settings path")
			}
			return opts.Path, nil
		}},
		{Name: "API key", Run: func(context.Context) (string, error) {
			if !s.HasAPIKey() {
				return "", fmt.Errorf("NOT SET (add api_key to %s or export VOICEAI_API_KEY)", opts.Path)
			}
			return config.MaskKey(s.APIKey), nil
		}},
		{Name: "Models", Run: func(context.Context) (string, error) {
			return fmt.Sprintf("transcription=%s chat=%s", s.TranscriptionModel, s.GPTModel), nil
		}},
		{Name: "Tuning", Run: func(context.Context) (string, error) {
			return fmt.Sprintf("temperature=%.2f max_tokens=%d audio_quality=%s language=%s",
				s.Temperature, s.MaxTokens, s.AudioQuality, s.Language), nil
		}},
		{Name: "Recorder", Run: func(context.Context) (string, error) {
			if err := capture.Available(); err != nil {
				return "", err
			}
			return "PowerShell with winmm MCI", nil
		}},
		{Name: "Clipboard", Optional: true, Run: func(context.Context) (string, error) {
			return clipboard.Verify()
		}},
		{Name: "Hotkey", Optional: true, Run: func(context.Context) (string, error) {
			return hotkey.Diagnose()
		}},
	}
	if opts.Live && opts.Gateway != nil {
		checks = append(checks, Check{Name: "OpenAI", Run: func(ctx context.Context) (string, error) {
			start := time.Now()
			reply, err := opts.Gateway.Complete(ctx, "Reply with the single word OK.", gateway.CompleteOptions{
				Credential:  s.APIKey,
				Model:       s.GPTModel,
				Temperature: 0,
				MaxTokens:   5,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s replied %q in %s", s.GPTModel, strings.TrimSpace(reply), time.Since(start).Round(time.Millisecond)), nil
		}})
	}
	return checks
}

type styles struct {
	title, pass, warn, fail, dim lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		title: r.NewStyle().Bold(true),
		pass:  r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("208")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		dim:   r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Run prints each check and returns an exit code (0=all required pass).
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	restore := saveTerminal()
	defer restore()
	st := newStyles(w, isTerminal(w))

	fmt.Fprintln(w, st.title.Render("voiceai settings test"))
	fmt.Fprintln(w, st.dim.Render(strings.Repeat("=", 21)))

	failed := 0
	for i, c := range checks {
		label := fmt.Sprintf("[%d/%d] %-14s", i+1, len(checks), c.Name)
		detail, err := c.Run(ctx)
		switch {
		case err == nil:
			fmt.Fprintf(w, "%s %s %s\n", label, st.pass.Render("PASS"), detail)
		case c.Optional:
			fmt.Fprintf(w, "%s %s %v\n", label, st.warn.Render("WARN"), err)
		default:
			failed++
			fmt.Fprintf(w, "%s %s %v\n", label, st.fail.Render("FAIL"), err)
		}
		if err != nil {
			log.Warnf("settings test: %s: %v", c.Name, err)
		}
	}

	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintln(w, st.fail.Render(fmt.Sprintf("%d check(s) failed. See details above.", failed)))
		return 1
	}
	fmt.Fprintln(w, st.pass.Render("All checks passed!"))
	return 0
}
