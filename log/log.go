package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

// Metrics describes one transcription upload.
type Metrics struct {
	Model       string
	AudioBytes  int64
	DNS         time.Duration
	Connect     time.Duration
	TLS         time.Duration
	TTFB        time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

// ResolveDir picks the log directory: the --logpath flag, then
// VOICEAI_LOG_PATH, then the per-user default. Relative paths resolve
// against the working directory.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv("VOICEAI_LOG_PATH")} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			return p, nil
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, p), nil
	}
	return getDefaultDir()
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	return nil
}

func openAppend(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Init opens diagnostics_log.txt and transcribe_log.txt in the log
// directory. Until it succeeds every helper is a no-op.
func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	pid = os.Getpid()

	diag, err := openAppend("diagnostics_log.txt")
	if err != nil {
		return err
	}
	transcripts, err := openAppend("transcribe_log.txt")
	if err != nil {
		diag.Close()
		return err
	}
	diagFile, transcribeFile = diag, transcripts

	diagLog = zerolog.New(zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: time.DateTime,
		NoColor:    true,
	}).With().Timestamp().Int("pid", pid).Logger()
	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady = false
	for _, f := range []**os.File{&diagFile, &transcribeFile} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
}

func emit(level zerolog.Level, msg string) {
	if logReady {
		diagLog.WithLevel(level).Msg(msg)
	}
}

func Info(msg string)                   { emit(zerolog.InfoLevel, msg) }
func Infof(format string, args ...any)  { emit(zerolog.InfoLevel, fmt.Sprintf(format, args...)) }
func Warn(msg string)                   { emit(zerolog.WarnLevel, msg) }
func Warnf(format string, args ...any)  { emit(zerolog.WarnLevel, fmt.Sprintf(format, args...)) }
func Error(msg string)                  { emit(zerolog.ErrorLevel, msg) }
func Errorf(format string, args ...any) { emit(zerolog.ErrorLevel, fmt.Sprintf(format, args...)) }

func millis(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// TranscriptionMetrics logs the connection phases of one upload.
func TranscriptionMetrics(m Metrics) {
	if !logReady {
		return
	}
	conn := "new"
	if m.ConnReused {
		conn = "reused"
	}
	ev := diagLog.Info().Str("model", m.Model).Str("conn", conn)
	if m.TLSProtocol != "" {
		ev = ev.Str("tls_proto", m.TLSProtocol)
	}
	ev.Float64("audio_kb", float64(m.AudioBytes)/1024).
		Float64("dns_ms", millis(m.DNS)).
		Float64("connect_ms", millis(m.Connect)).
		Float64("tls_ms", millis(m.TLS)).
		Float64("ttfb_ms", millis(m.TTFB)).
		Float64("total_ms", millis(m.Total)).
		Msg("transcription")
}

func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format(time.DateTime), pid, text)
	transcribeFile.WriteString(line)
}

func Completion(model string, promptChars, responseChars int, total time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("model", model).
		Int("prompt_chars", promptChars).
		Int("response_chars", responseChars).
		Float64("total_ms", millis(total)).
		Msg("completion")
}

func Transition(session, from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", session).
		Str("from", from).
		Str("to", to).
		Msg("state")
}

func SessionStart(session, artifact string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", session).
		Str("artifact", artifact).
		Msg("session_start")
}

func SessionEnd(session, outcome string, elapsed time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", session).
		Str("outcome", outcome).
		Float64("elapsed_s", elapsed.Seconds()).
		Msg("session_end")
}

// Settings records the effective configuration. The key must already be masked.
func Settings(maskedKey, transcriptionModel, gptModel string, temperature float64, audioQuality string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("api_key", maskedKey).
		Str("transcription_model", transcriptionModel).
		Str("gpt_model", gptModel).
		Float64("temperature", temperature).
		Str("audio_quality", audioQuality).
		Msg("settings")
}
