package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudio(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice_recording_1.wav")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

// countingServer fails the test if the gateway reaches it when it should not.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestBlankCredentialNeverCallsProvider(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	g := NewOpenAI(srv.URL)
	path := writeAudio(t, 12000)

	for _, cred := range []string{"", "   ", "\t\n"} {
		_, err := g.Transcribe(context.Background(), path, TranscribeOptions{Credential: cred, Model: "m"})
		var ge *Error
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, KindConfig, ge.Kind)
		assert.Equal(t, TranscribeConfigMessage, ge.Message)

		_, err = g.Complete(context.Background(), "hi", CompleteOptions{Credential: cred, Model: "m"})
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, KindConfig, ge.Kind)
		assert.Equal(t, CompleteConfigMessage, ge.Message)
		assert.True(t, IsConfig(err))
	}
	assert.Equal(t, int32(0), hits.Load())
}

func TestBlankCredentialIgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOpenAI("http://127.0.0.1:1").Complete(ctx, "hi", CompleteOptions{})
	assert.True(t, IsConfig(err))
}

func TestTranscribeSendsMultipart(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "gpt-4o-transcribe", r.FormValue("model"))
		assert.Equal(t, "0.1", r.FormValue("temperature"))
		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "json", r.FormValue("response_format"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Len(t, data, 12000)
		assert.Equal(t, "voice_recording_1.wav", hdr.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" hello world "}`))
	})

	g := NewOpenAI(srv.URL)
	text, err := g.Transcribe(context.Background(), writeAudio(t, 12000), TranscribeOptions{
		Credential:  "sk-test",
		Model:       "gpt-4o-transcribe",
		Temperature: 0.1,
		Language:    "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, int32(1), hits.Load())
}

func TestTranscribeProviderFailureCarriesSize(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	})

	_, err := NewOpenAI(srv.URL).Transcribe(context.Background(), writeAudio(t, 12000), TranscribeOptions{Credential: "sk-bad", Model: "m"})
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindProvider, ge.Kind)
	assert.Equal(t, int64(12000), ge.SizeBytes)
	assert.Contains(t, ge.Message, "Audio recorded (12KB)")
	assert.Contains(t, ge.Message, "Incorrect API key provided")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
}

func TestTranscribeMissingFile(t *testing.T) {
	_, err := NewOpenAI("http://127.0.0.1:1").Transcribe(context.Background(),
		filepath.Join(t.TempDir(), "gone.wav"), TranscribeOptions{Credential: "sk"})
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindProvider, ge.Kind)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCompleteSendsChatRequest(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.Equal(t, 0.1, req.Temperature)
		assert.Equal(t, 1000, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "hi", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "hello there"}}]
		}`))
	})

	got, err := NewOpenAI(srv.URL).Complete(context.Background(), "hi", CompleteOptions{
		Credential:  "sk-test",
		Model:       "gpt-4o",
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCompleteProviderErrorHasHintAndNoRetry(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	})

	_, err := NewOpenAI(srv.URL).Complete(context.Background(), "hi", CompleteOptions{Credential: "sk", Model: "gpt-4o"})
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindProvider, ge.Kind)
	assert.True(t, strings.HasPrefix(ge.Message, "Error: "))
	assert.True(t, strings.HasSuffix(ge.Message, "Please check your API key in settings."))
	assert.Equal(t, int32(1), hits.Load())
}

func TestProviderReason(t *testing.T) {
	assert.Equal(t, "bad key", providerReason(&ProviderError{StatusCode: 401, Message: "bad key"}))
	assert.Equal(t, "HTTP 502", providerReason(&ProviderError{StatusCode: 502}))
	assert.Equal(t, "request timed out", providerReason(context.DeadlineExceeded))
	assert.Equal(t, "boom", providerReason(errors.New("boom.")))
}

func TestRoundKB(t *testing.T) {
	assert.Equal(t, int64(12), roundKB(12000))
	assert.Equal(t, int64(0), roundKB(100))
	assert.Equal(t, int64(1), roundKB(1024))
}

func TestTracedClientTimings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("done"))
	}))
	defer srv.Close()

	c := NewTracedClient()
	send := func() *TracedResponse {
		req, err := http.NewRequest("POST", srv.URL, strings.NewReader("payload"))
		require.NoError(t, err)
		resp, err := c.Do(req)
		require.NoError(t, err)
		return resp
	}

	first := send()
	assert.Equal(t, http.StatusAccepted, first.StatusCode)
	assert.Equal(t, "done", string(first.Body))
	assert.False(t, first.Timings.ConnReused)
	assert.Positive(t, first.Timings.Total)
	assert.GreaterOrEqual(t, first.Timings.Total, first.Timings.TTFB)

	second := send()
	assert.True(t, second.Timings.ConnReused)
	assert.Zero(t, second.Timings.Connect)
}

func TestFakeHonoursCredential(t *testing.T) {
	f := NewFake("hello", "reply")
	_, err := f.Transcribe(context.Background(), "x", TranscribeOptions{})
	assert.True(t, IsConfig(err))
	assert.Equal(t, int32(0), f.TranscribeCalls.Load())

	got, err := f.Complete(context.Background(), "hi", CompleteOptions{Credential: "k"})
	require.NoError(t, err)
	assert.Equal(t, "reply", got)
	assert.Equal(t, "hi", f.LastPrompt.Load())

	f.SetCompleteError(errors.New("quota"))
	_, err = f.Complete(context.Background(), "hi", CompleteOptions{Credential: "k"})
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Error: quota. Please check your API key in settings.", ge.Message)
}
