package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	TranscribeConfigMessage = "Please set your OpenAI API key in settings (⚙️ Voice AI Settings) to enable transcription."
	CompleteConfigMessage   = "Please set your OpenAI API key in settings (⚙️ Voice AI Settings) to use ChatGPT."
)

type Kind int

const (
	// KindConfig means the call was refused before any network traffic.
	KindConfig Kind = iota + 1
	// KindProvider means the provider call was made and failed.
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindProvider:
		return "provider"
	}
	return "unknown"
}

// Error is the only error type Gateway methods return. Message is safe to
// show to the user as is.
type Error struct {
	Kind      Kind
	Message   string
	SizeBytes int64 // artifact size for transcription failures
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// IsConfig reports whether err is a credential precondition failure.
func IsConfig(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindConfig
}

type TranscribeOptions struct {
	Credential  string
	Model       string
	Temperature float64
	Language    string
}

type CompleteOptions struct {
	Credential  string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Gateway wraps the transcription and chat-completion providers. Neither
// method retries; callers may invoke again.
type Gateway interface {
	Transcribe(ctx context.Context, path string, opts TranscribeOptions) (string, error)
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
}

func checkCredential(credential, msg string) error {
	if strings.TrimSpace(credential) == "" {
		return &Error{Kind: KindConfig, Message: msg}
	}
	return nil
}

func transcribeFailure(size int64, err error) *Error {
	return &Error{
		Kind:      KindProvider,
		Message:   fmt.Sprintf("Audio recorded (%dKB). Transcription failed: %s. Please check your API key in settings.", roundKB(size), providerReason(err)),
		SizeBytes: size,
		Err:       err,
	}
}

func completeFailure(err error) *Error {
	return &Error{
		Kind:    KindProvider,
		Message: fmt.Sprintf("Error: %s. Please check your API key in settings.", providerReason(err)),
		Err:     err,
	}
}

func roundKB(size int64) int64 {
	return (size + 512) / 1024
}

// providerReason extracts a short human-readable cause.
func providerReason(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Message != "" {
			return pe.Message
		}
		return fmt.Sprintf("HTTP %d", pe.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return strings.TrimSuffix(err.Error(), ".")
}

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Message)
}
