package gateway

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Fake answers from canned values. It enforces the same credential
// precondition as the real gateway.
type Fake struct {
	mu            sync.Mutex
	transcript    string
	transcribeErr error
	reply         string
	completeErr   error
	delay         time.Duration

	// provider calls that got past the credential check
	TranscribeCalls atomic.Int32
	CompleteCalls   atomic.Int32
	LastPrompt      atomic.Value
}

func NewFake(transcript, reply string) *Fake {
	return &Fake{transcript: transcript, reply: reply}
}

func (f *Fake) SetTranscribeError(err error) {
	f.mu.Lock()
	f.transcribeErr = err
	f.mu.Unlock()
}

func (f *Fake) SetCompleteError(err error) {
	f.mu.Lock()
	f.completeErr = err
	f.mu.Unlock()
}

func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *Fake) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) Transcribe(ctx context.Context, path string, opts TranscribeOptions) (string, error) {
	if err := checkCredential(opts.Credential, TranscribeConfigMessage); err != nil {
		return "", err
	}
	f.TranscribeCalls.Add(1)

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	if err := f.wait(ctx); err != nil {
		return "", transcribeFailure(size, err)
	}

	f.mu.Lock()
	text, err := f.transcript, f.transcribeErr
	f.mu.Unlock()
	if err != nil {
		return "", transcribeFailure(size, err)
	}
	return text, nil
}

func (f *Fake) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	if err := checkCredential(opts.Credential, CompleteConfigMessage); err != nil {
		return "", err
	}
	f.CompleteCalls.Add(1)
	f.LastPrompt.Store(prompt)
	if err := f.wait(ctx); err != nil {
		return "", completeFailure(err)
	}

	f.mu.Lock()
	reply, err := f.reply, f.completeErr
	f.mu.Unlock()
	if err != nil {
		return "", completeFailure(err)
	}
	return reply, nil
}
