package controller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voiceai/capture"
	"voiceai/config"
	"voiceai/gateway"
	"voiceai/log"
	"voiceai/messenger"
)

const (
	MsgAlreadyRecording = "Recording is already in progress"
	MsgStillProcessing  = "Previous recording is still being processed"
	MsgNoRecording      = "No recording in progress"
	MsgAudioNotFound    = "Audio file not found"
	MsgAudioEmpty       = "Audio file is empty - recording may have failed"
	MsgNothingToSend    = "Nothing to send. Record or type some text first."
	MsgKeyMissing       = "OpenAI API key not configured. Open Voice AI Settings to configure."
)

// Capturer is the external capture adapter as seen by the controller.
type Capturer interface {
	Begin(outputPath string) (capture.Handle, error)
	End(h capture.Handle) error
	Kill(h capture.Handle)
	Events() <-chan capture.Event
}

// Outbox carries messages to the panel. Post must not block.
type Outbox interface {
	Post(m messenger.Message) bool
}

type Options struct {
	Capturer     Capturer
	Gateway      gateway.Gateway
	Outbox       Outbox
	Settings     func() config.Settings
	Clipboard    func(text string) error
	OpenSettings func() error
	Sink         Sink
	TempDir      string
	Now          func() time.Time
}

// Controller owns the recording lifecycle. All state lives on one loop
// goroutine; public methods hand work to it and wait for it to run.
// Requests that collide with the current state are rejected, not queued.
type Controller struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	calls chan func()
	done  chan struct{}
	state atomic.Int32

	inflight sync.WaitGroup

	// loop only
	session *Session
	timer   *time.Timer
	timerC  <-chan time.Time
	armed   time.Duration
	settled []chan struct{}
}

func New(opts Options) *Controller {
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Settings == nil {
		opts.Settings = config.Defaults
	}
	if opts.Clipboard == nil {
		opts.Clipboard = func(string) error { return errors.New("clipboard unavailable") }
	}
	if opts.OpenSettings == nil {
		opts.OpenSettings = func() error { return errors.New("settings unavailable") }
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		calls:  make(chan func()),
		done:   make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) Start() { c.call(c.start) }

func (c *Controller) Stop() { c.call(c.stop) }

// Toggle starts when idle and stops when recording. It reports whether
// this call started a recording.
func (c *Controller) Toggle() (started bool) {
	c.call(func() {
		if c.State() == Recording {
			c.stop()
			return
		}
		c.start()
		started = c.State() == Recording
	})
	return started
}

func (c *Controller) CopyText(text string) {
	c.call(func() {
		if err := c.opts.Clipboard(text); err != nil {
			c.report(fmt.Sprintf("Failed to copy text: %v", err))
			return
		}
		c.opts.Sink.Info("Text copied to clipboard!")
	})
}

// SendToChatGPT issues one completion request. It does not depend on the
// recording state.
func (c *Controller) SendToChatGPT(text string) {
	c.call(func() { c.sendToChatGPT(text) })
}

func (c *Controller) OpenSettings() {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if err := c.opts.OpenSettings(); err != nil {
			c.call(func() { c.report(fmt.Sprintf("Failed to open settings: %v", err)) })
		}
	}()
}

// Dispose is called when the panel goes away. A running recording is
// stopped so its process does not outlive the panel; processing already
// under way finishes and its result is dropped by the outbox.
func (c *Controller) Dispose() {
	c.call(func() {
		if c.State() == Recording {
			log.Info("panel closed while recording, stopping")
			c.stop()
		}
	})
}

// Handle routes a panel command.
func (c *Controller) Handle(m messenger.Message) {
	switch m.Command {
	case messenger.CmdStartSystemRecording:
		c.Start()
	case messenger.CmdStopSystemRecording:
		c.Stop()
	case messenger.CmdCopyText:
		c.CopyText(m.Text())
	case messenger.CmdSendToChatGPT:
		c.SendToChatGPT(m.Text())
	case messenger.CmdOpenSettings:
		c.OpenSettings()
	default:
		log.Warnf("ignoring %q from panel", m.Command)
	}
}

// Close disposes the session, waits for the recording process to finish
// and for in-flight gateway calls, then stops the loop. When ctx expires
// first the process is killed and remaining calls are cancelled.
func (c *Controller) Close(ctx context.Context) error {
	c.Dispose()

	settled := make(chan struct{})
	ran := c.call(func() {
		if !c.State().capturing() {
			close(settled)
			return
		}
		c.settled = append(c.settled, settled)
	})
	if !ran {
		return nil
	}

	var err error
	select {
	case <-settled:
	case <-ctx.Done():
		err = ctx.Err()
		c.call(func() {
			if sess := c.session; sess != nil && c.State().capturing() {
				c.opts.Capturer.Kill(sess.Handle)
				c.fail("Recording aborted during shutdown")
			}
		})
	}

	idle := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	c.cancel()
	<-c.done
	return err
}

func (c *Controller) loop() {
	defer close(c.done)
	events := c.opts.Capturer.Events()
	for {
		select {
		case <-c.ctx.Done():
			c.disarm()
			return
		case fn := <-c.calls:
			fn()
		case ev := <-events:
			c.onCaptureEvent(ev)
		case <-c.timerC:
			c.onTimeout()
		}
	}
}

// call runs fn on the loop and waits for it. It reports false if the loop
// has already exited and fn was dropped.
func (c *Controller) call(fn func()) bool {
	ran := make(chan struct{})
	select {
	case c.calls <- func() {
		defer close(ran)
		fn()
	}:
	case <-c.done:
		return false
	}
	<-ran
	return true
}

func (c *Controller) start() {
	switch c.State() {
	case Idle:
	case Processing:
		c.warn(MsgStillProcessing)
		return
	default:
		c.warn(MsgAlreadyRecording)
		return
	}

	settings := c.opts.Settings()
	now := c.opts.Now()
	sess := &Session{
		ID:           uuid.New(),
		ArtifactPath: capture.TempPath(c.opts.TempDir, now),
		StartedAt:    now,
	}
	c.session = sess
	log.SessionStart(sess.ID.String(), sess.ArtifactPath)

	h, err := c.opts.Capturer.Begin(sess.ArtifactPath)
	if err != nil {
		c.fail(fmt.Sprintf("Failed to start recording: %v", err))
		return
	}
	sess.Handle = h
	c.setState(Recording)
	c.opts.Sink.Info("Starting system recording...")
	c.arm(settings.StartTimeout)
}

func (c *Controller) stop() {
	sess := c.session
	if c.State() != Recording || sess == nil {
		c.warn(MsgNoRecording)
		return
	}

	c.setState(Stopping)
	if err := c.opts.Capturer.End(sess.Handle); err != nil {
		// the Exited event that must follow settles the session
		log.Warnf("session %s: end capture: %v", sess.ID, err)
	}
	c.arm(c.opts.Settings().SaveTimeout)
	c.post(messenger.Simple(messenger.CmdRecordingStopped))
	c.opts.Sink.Info("Stopping system recording...")
}

func (c *Controller) onCaptureEvent(ev capture.Event) {
	sess := c.session
	if sess == nil || ev.Handle != sess.Handle.ID {
		log.Infof("ignoring %s from stale capture %d", ev.Kind, ev.Handle)
		return
	}
	switch ev.Kind {
	case capture.Started:
		c.onStarted(sess)
	case capture.Saved:
		c.onSaved(sess, ev.Path)
	case capture.Exited:
		c.onExited(sess, ev)
	}
}

func (c *Controller) onStarted(sess *Session) {
	if c.State() != Recording || sess.started {
		return
	}
	sess.started = true
	c.disarm()
	c.post(messenger.Simple(messenger.CmdRecordingStarted))
	c.opts.Sink.Info("System recording active! Stop when finished.")
}

func (c *Controller) onSaved(sess *Session, path string) {
	if !c.State().capturing() || sess.saved {
		return
	}
	sess.saved = true
	c.disarm()

	switch {
	case path == "" || path == sess.ArtifactPath:
	case capture.IsTempPath(c.opts.TempDir, path):
		log.Warnf("session %s: recorder saved to %s, expected %s", sess.ID, path, sess.ArtifactPath)
		removeArtifact(sess.ArtifactPath)
		sess.ArtifactPath = path
	default:
		// files outside the recording directory are never adopted or removed
		log.Warnf("session %s: ignoring saved path %s outside %s", sess.ID, path, filepath.Dir(sess.ArtifactPath))
	}

	info, err := os.Stat(sess.ArtifactPath)
	if err != nil {
		c.fail(MsgAudioNotFound)
		return
	}
	if info.Size() == 0 {
		c.fail(MsgAudioEmpty)
		return
	}

	c.setState(Processing)
	c.opts.Sink.Info(fmt.Sprintf("Processing audio file (%dKB)...", (info.Size()+512)/1024))
	c.transcribe(sess)
}

func (c *Controller) onExited(sess *Session, ev capture.Event) {
	if !c.State().capturing() {
		return
	}
	if ev.Code != 0 {
		msg := fmt.Sprintf("Recording process exited with code %d", ev.Code)
		if line := lastLine(ev.Stderr); line != "" {
			msg += ": " + line
		}
		c.fail(msg)
		return
	}
	c.fail("Recording process exited without saving audio")
}

func (c *Controller) onTimeout() {
	c.timerC = nil
	sess := c.session
	if sess == nil {
		return
	}
	switch c.State() {
	case Recording:
		if sess.started {
			return
		}
		c.opts.Capturer.Kill(sess.Handle)
		c.fail(fmt.Sprintf("Recording did not start within %s", c.armed))
	case Stopping:
		c.opts.Capturer.Kill(sess.Handle)
		c.fail(fmt.Sprintf("Recording was not saved within %s", c.armed))
	}
}

// transcribe runs the single gateway call for sess off the loop.
func (c *Controller) transcribe(sess *Session) {
	s := c.opts.Settings()
	opts := gateway.TranscribeOptions{
		Credential:  s.APIKey,
		Model:       s.TranscriptionModel,
		Temperature: s.Temperature,
		Language:    s.Language,
	}
	path := sess.ArtifactPath

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		text, err := c.opts.Gateway.Transcribe(c.ctx, path, opts)
		if !c.call(func() { c.finishProcessing(sess, text, err) }) {
			removeArtifact(path)
		}
	}()
}

func (c *Controller) finishProcessing(sess *Session, text string, err error) {
	outcome := "transcribed"
	switch {
	case err == nil:
		c.post(messenger.NewResults(text, nil))
		log.TranscriptionText(text)
		c.opts.Sink.Info("Processing completed!")
	case gateway.IsConfig(err):
		outcome = "unconfigured"
		c.post(messenger.NewResults(userMessage(err), nil))
		c.warn(MsgKeyMissing)
	default:
		outcome = "provider_error"
		log.Errorf("session %s: transcription: %v", sess.ID, err)
		msg := userMessage(err)
		c.post(messenger.NewResults(msg, nil))
		c.opts.Sink.Warn(msg)
	}
	c.endSession(sess, outcome)
	c.setState(Idle)
}

func (c *Controller) sendToChatGPT(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		c.post(messenger.NewChatGPTResponse(MsgNothingToSend))
		return
	}

	s := c.opts.Settings()
	opts := gateway.CompleteOptions{
		Credential:  s.APIKey,
		Model:       s.GPTModel,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		reply, err := c.opts.Gateway.Complete(c.ctx, text, opts)
		c.call(func() {
			if err != nil {
				if gateway.IsConfig(err) {
					c.warn(MsgKeyMissing)
				} else {
					log.Errorf("completion: %v", err)
				}
				reply = userMessage(err)
			}
			c.post(messenger.NewChatGPTResponse(reply))
		})
	}()
}

// fail reports msg, releases the session and lands in Idle.
func (c *Controller) fail(msg string) {
	c.disarm()
	c.setState(Error)
	log.Errorf("recording failed: %s", msg)
	c.post(messenger.NewError(msg))
	c.opts.Sink.Error(msg)
	if sess := c.session; sess != nil {
		c.endSession(sess, "error")
	}
	c.setState(Idle)
}

func (c *Controller) endSession(sess *Session, outcome string) {
	removeArtifact(sess.ArtifactPath)
	log.SessionEnd(sess.ID.String(), outcome, c.opts.Now().Sub(sess.StartedAt))
	if c.session == sess {
		c.session = nil
	}
}

func (c *Controller) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	id := ""
	if c.session != nil {
		id = c.session.ID.String()
	}
	log.Transition(id, prev.String(), s.String())
	c.opts.Sink.StateChanged(s)

	if !s.capturing() {
		for _, ch := range c.settled {
			close(ch)
		}
		c.settled = nil
	}
}

func (c *Controller) arm(d time.Duration) {
	c.disarm()
	if d <= 0 {
		return
	}
	c.armed = d
	c.timer = time.NewTimer(d)
	c.timerC = c.timer.C
}

func (c *Controller) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerC = nil
}

func (c *Controller) post(m messenger.Message) {
	if c.opts.Outbox == nil {
		return
	}
	c.opts.Outbox.Post(m)
}

func (c *Controller) warn(msg string) {
	log.Warn(msg)
	c.opts.Sink.Warn(msg)
}

// report surfaces a failure that does not touch the recording session.
func (c *Controller) report(msg string) {
	log.Error(msg)
	c.post(messenger.NewError(msg))
	c.opts.Sink.Error(msg)
}

// userMessage turns any gateway failure into display text.
func userMessage(err error) string {
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return err.Error()
}

// removeArtifact deletes a recording. A file that is already gone is fine.
func removeArtifact(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("failed to clean up %s: %v", path, err)
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
