package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"showcase/stream"
)

// PromptMessage is one message sent to the model.
type PromptMessage struct {
	Role    string
	Content string
}

// ModelBackend opens a streamed completion. The returned body is framed as the
// returned stream.Framing and must be closed by the caller.
type ModelBackend interface {
	Stream(ctx context.Context, messages []PromptMessage) (io.ReadCloser, stream.Framing, error)
}

// StatusError is a non-OK response from the completion endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("model endpoint returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("model endpoint returned %d: %s", e.StatusCode, e.Message)
}

// OpenAIBackend streams from any OpenAI-compatible chat completions endpoint.
// The raw SSE body is handed to the stream decoder untouched.
type OpenAIBackend struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIBackend creates a backend for the configured OpenAI-compatible endpoint.
func NewOpenAIBackend(config *Config, client *http.Client) *OpenAIBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIBackend{
		baseURL: strings.TrimRight(config.OpenAIBaseURL, "/"),
		apiKey:  config.OpenAIAPIKey,
		model:   config.OpenAIModel,
		client:  client,
	}
}

// Stream implements ModelBackend.
func (b *OpenAIBackend) Stream(ctx context.Context, messages []PromptMessage) (io.ReadCloser, stream.Framing, error) {
	req := openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
		Stream:   true,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, stream.FramingSSE, fmt.Errorf("encode completion request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, stream.FramingSSE, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, stream.FramingSSE, fmt.Errorf("send completion request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, stream.FramingSSE, statusError(resp)
	}
	return resp.Body, stream.FramingSSE, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var envelope openai.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: envelope.Error.Message}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}

// LangchainBackend adapts a langchaingo model to the prefixed chat framing, so
// providers without an OpenAI-compatible endpoint go through the same decoder.
type LangchainBackend struct {
	llm    llms.Model
	logger *logrus.Logger
}

// NewLangchainBackend wraps llm.
func NewLangchainBackend(llm llms.Model, logger *logrus.Logger) *LangchainBackend {
	return &LangchainBackend{llm: llm, logger: logger}
}

// Stream implements ModelBackend.
func (b *LangchainBackend) Stream(ctx context.Context, messages []PromptMessage) (io.ReadCloser, stream.Framing, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := b.llm.GenerateContent(ctx, content,
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				return stream.WritePrefixed(pw, stream.Frame{Kind: stream.KindText, Text: string(chunk)})
			}),
		)
		switch {
		case err == nil:
			_ = stream.WritePrefixed(pw, stream.Frame{Kind: stream.KindDone})
			pw.Close()
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, io.ErrClosedPipe):
			pw.CloseWithError(err)
		default:
			b.logger.WithError(err).Warn("Model generation failed mid-stream")
			_ = stream.WritePrefixed(pw, stream.Frame{Kind: stream.KindError, Err: err})
			pw.Close()
		}
	}()
	return pr, stream.FramingPrefixed, nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case openai.ChatMessageRoleSystem:
		return llms.ChatMessageTypeSystem
	case openai.ChatMessageRoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// NewBackend picks the generation backend for the configured provider. llm is
// only used for providers without an OpenAI-compatible endpoint.
func NewBackend(config *Config, llm llms.Model, logger *logrus.Logger) ModelBackend {
	if config.LLMProvider == ProviderOpenAI {
		logger.WithFields(logrus.Fields{
			"baseURL": config.OpenAIBaseURL,
			"model":   config.OpenAIModel,
		}).Info("Using OpenAI-compatible streaming backend")
		return NewOpenAIBackend(config, nil)
	}
	logger.WithField("provider", config.LLMProvider).Info("Using langchaingo streaming backend")
	return NewLangchainBackend(llm, logger)
}
