package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voiceai/log"
)

// OpenAI talks to the OpenAI REST API. The audio upload goes through the
// traced client so its timings land in the diagnostics log; chat uses the
// official SDK over the same connection pool.
type OpenAI struct {
	baseURL string
	client  *TracedClient
}

func NewOpenAI(baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewTracedClient(),
	}
}

func (o *OpenAI) Transcribe(ctx context.Context, path string, opts TranscribeOptions) (string, error) {
	if err := checkCredential(opts.Credential, TranscribeConfigMessage); err != nil {
		return "", err
	}

	audio, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{Kind: KindProvider, Message: "Audio file not found", Err: err}
	}
	size := int64(len(audio))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", transcribeFailure(size, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", transcribeFailure(size, err)
	}

	writer.WriteField("model", opts.Model)
	writer.WriteField("response_format", "json")
	writer.WriteField("temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))
	if opts.Language != "" {
		writer.WriteField("language", opts.Language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", transcribeFailure(size, err)
	}
	req.Header.Set("Authorization", "Bearer "+opts.Credential)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return "", transcribeFailure(size, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", transcribeFailure(size, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    apiErrorMessage(resp.Body),
		})
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return "", transcribeFailure(size, fmt.Errorf("openai response parse error: %w", err))
	}

	tm := resp.Timings
	log.TranscriptionMetrics(log.Metrics{
		Model:       opts.Model,
		AudioBytes:  size,
		DNS:         tm.DNS,
		Connect:     tm.Connect,
		TLS:         tm.TLS,
		TTFB:        tm.TTFB,
		Total:       tm.Total,
		ConnReused:  tm.ConnReused,
		TLSProtocol: tm.TLSProtocol,
	})

	return strings.TrimSpace(oResp.Text), nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	if err := checkCredential(opts.Credential, CompleteConfigMessage); err != nil {
		return "", err
	}

	client := openai.NewClient(
		option.WithAPIKey(opts.Credential),
		option.WithBaseURL(o.baseURL+"/"),
		option.WithHTTPClient(o.client.HTTPClient()),
		option.WithMaxRetries(0),
	)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	start := time.Now()
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return "", completeFailure(&ProviderError{StatusCode: apierr.StatusCode, Message: apierr.Message})
		}
		return "", completeFailure(err)
	}
	if len(resp.Choices) == 0 {
		return "", completeFailure(errors.New("no choices in response"))
	}

	content := resp.Choices[0].Message.Content
	log.Completion(opts.Model, len(prompt), len(content), time.Since(start))
	return content, nil
}

// apiErrorMessage pulls error.message out of an OpenAI error body.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
