package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voiceai/log"
)

var (
	ErrBusy        = errors.New("capture: a recording process is already running")
	ErrUnsupported = errors.New("capture: system recording requires Windows")
	ErrNotActive   = errors.New("capture: handle does not belong to the running process")
)

const (
	MarkerStarted = "RECORDING_STARTED"
	MarkerSaved   = "RECORDING_SAVED:"
)

type EventKind int

const (
	Started EventKind = iota
	Saved
	Exited
)

func (k EventKind) String() string {
	switch k {
	case Started:
		return "started"
	case Saved:
		return "saved"
	case Exited:
		return "exited"
	}
	return "unknown"
}

// Event is one lifecycle notification from a recording process. For a given
// handle, Exited is always the last event delivered.
type Event struct {
	Handle uint64
	Kind   EventKind
	Path   string // Saved
	Code   int    // Exited
	Stderr string // Exited, tail of the process stderr
}

// Handle identifies one recording process.
type Handle struct {
	ID   uint64
	Path string
}

// CommandFunc builds the recording process for outputPath. The process must
// print MarkerStarted once capture runs, wait for a line on stdin, save to
// outputPath and print MarkerSaved followed by the path.
type CommandFunc func(outputPath string) (*exec.Cmd, error)

type process struct {
	handle  Handle
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	endOnce sync.Once
	endErr  error
}

// Adapter supervises at most one recording process at a time.
type Adapter struct {
	command CommandFunc
	events  chan Event
	quit    chan struct{}
	closeMu sync.Once

	mu     sync.Mutex
	active *process
	nextID uint64
}

// New returns an adapter that launches processes with command, or the
// platform recorder when command is nil.
func New(command CommandFunc) *Adapter {
	if command == nil {
		command = defaultCommand
	}
	return &Adapter{
		command: command,
		events:  make(chan Event, 16),
		quit:    make(chan struct{}),
	}
}

func (a *Adapter) Events() <-chan Event { return a.events }

// Begin launches a recording process writing to outputPath.
func (a *Adapter) Begin(outputPath string) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != nil {
		return Handle{}, ErrBusy
	}

	cmd, err := a.command(outputPath)
	if err != nil {
		return Handle{}, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Handle{}, fmt.Errorf("capture stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Handle{}, fmt.Errorf("capture stdout: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("start recording process: %w", err)
	}

	a.nextID++
	p := &process{
		handle: Handle{ID: a.nextID, Path: outputPath},
		cmd:    cmd,
		stdin:  stdin,
	}
	a.active = p
	log.Infof("capture %d: pid %d recording to %s", p.handle.ID, cmd.Process.Pid, outputPath)

	go a.supervise(p, stdout, stderr)
	return p.handle, nil
}

// End asks the process to stop and save by writing a newline to its stdin
// and closing it. Calling End twice is harmless.
func (a *Adapter) End(h Handle) error {
	p, err := a.lookup(h)
	if err != nil {
		return err
	}
	p.endOnce.Do(func() {
		if _, err := io.WriteString(p.stdin, "\n"); err != nil {
			p.endErr = fmt.Errorf("signal recording process: %w", err)
		}
		if err := p.stdin.Close(); err != nil && p.endErr == nil {
			p.endErr = fmt.Errorf("close recording stdin: %w", err)
		}
	})
	return p.endErr
}

// Kill terminates the process without saving.
func (a *Adapter) Kill(h Handle) {
	p, err := a.lookup(h)
	if err != nil {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Warnf("capture %d: kill: %v", h.ID, err)
	}
}

// Active reports the running handle, if any.
func (a *Adapter) Active() (Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return Handle{}, false
	}
	return a.active.handle, true
}

// Close kills any running process and stops event delivery.
func (a *Adapter) Close() {
	if h, ok := a.Active(); ok {
		a.Kill(h)
	}
	a.closeMu.Do(func() { close(a.quit) })
}

func (a *Adapter) lookup(h Handle) (*process, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil || a.active.handle.ID != h.ID {
		return nil, ErrNotActive
	}
	return a.active, nil
}

func (a *Adapter) supervise(p *process, stdout io.Reader, stderr *tailBuffer) {
	id := p.handle.ID
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		ev, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		ev.Handle = id
		a.emit(ev)
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("capture %d: read stdout: %v", id, err)
	}

	code := 0
	if err := p.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	a.mu.Lock()
	if a.active == p {
		a.active = nil
	}
	a.mu.Unlock()

	tail := stderr.String()
	log.Infof("capture %d: exited with code %d", id, code)
	a.emit(Event{Handle: id, Kind: Exited, Code: code, Stderr: tail})
}

func (a *Adapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.quit:
	}
}

// ParseLine recognises the status markers the recording process prints.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == MarkerStarted:
		return Event{Kind: Started}, true
	case strings.HasPrefix(line, MarkerSaved):
		return Event{Kind: Saved, Path: strings.TrimSpace(strings.TrimPrefix(line, MarkerSaved))}, true
	}
	return Event{}, false
}

// TempPath names a recording file in dir, stamped with t in milliseconds.
func TempPath(dir string, t time.Time) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("voice_recording_%d.wav", t.UnixMilli()))
}

// IsTempPath reports whether path names a recording file directly inside dir,
// as TempPath would produce.
func IsTempPath(dir, path string) bool {
	if dir == "" {
		dir = os.TempDir()
	}
	if !filepath.IsAbs(path) || filepath.Dir(filepath.Clean(path)) != filepath.Clean(dir) {
		return false
	}
	stamp, ok := strings.CutPrefix(filepath.Base(path), "voice_recording_")
	if !ok {
		return false
	}
	stamp, ok = strings.CutSuffix(stamp, ".wav")
	if !ok || stamp == "" {
		return false
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
