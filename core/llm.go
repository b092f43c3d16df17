/*
Package core provides the language model integration of the showcase service.

This file builds the langchaingo model for the configured provider and wraps it for
the project agent. The agent parser only understands the ReAct keywords, so the
wrapper strips reasoning tags and artifact tags a code model tends to emit, and
turns a bare answer into a Final Answer.
*/
package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// NewLLM initializes the langchaingo model for config.LLMProvider.
func NewLLM(ctx context.Context, config *Config, logger *logrus.Logger) (llms.Model, error) {
	switch config.LLMProvider {
	case ProviderGemini:
		logger.WithField("model", config.GeminiModel).Info("Initializing Gemini LLM")
		if config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key is required when using gemini provider. Set GEMINI_API_KEY environment variable")
		}
		llm, err := googleai.New(
			ctx,
			googleai.WithAPIKey(config.GeminiAPIKey),
			googleai.WithDefaultModel(config.GeminiModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini LLM: %w", err)
		}
		return llm, nil

	case ProviderOpenAI:
		logger.WithFields(logrus.Fields{
			"baseURL": config.OpenAIBaseURL,
			"model":   config.OpenAIModel,
		}).Info("Initializing OpenAI-compatible LLM")
		opts := []lcopenai.Option{
			lcopenai.WithBaseURL(config.OpenAIBaseURL),
			lcopenai.WithModel(config.OpenAIModel),
		}
		// the client refuses an empty token, local gateways ignore it
		token := config.OpenAIAPIKey
		if token == "" {
			token = "unused"
		}
		opts = append(opts, lcopenai.WithToken(token))
		llm, err := lcopenai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI LLM: %w", err)
		}
		return llm, nil

	default:
		logger.WithFields(logrus.Fields{
			"endpoint": config.OllamaEndpoint,
			"model":    config.OllamaModel,
		}).Info("Initializing Ollama LLM")
		llm, err := ollama.New(
			ollama.WithServerURL(config.OllamaEndpoint),
			ollama.WithModel(config.OllamaModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama LLM: %w", err)
		}
		return llm, nil
	}
}

var (
	thinkSpanRe      = regexp.MustCompile(`(?is)<think>.*?</think>`)
	openThinkRe      = regexp.MustCompile(`(?is)<think>.*`)
	artifactSpanRe   = regexp.MustCompile(`(?is)<(files|component)\b[^>]*>.*?</(files|component)>`)
	multiNewlineRe   = regexp.MustCompile(`\n\s*\n\s*\n+`)
	emptyActionInput = regexp.MustCompile(`(?m)^Action Input:[ \t]*$`)
)

// CleaningLLMWrapper cleans model responses before the agent parses them.
type CleaningLLMWrapper struct {
	wrappedLLM llms.Model
	config     *Config
	logger     *logrus.Logger
}

// NewCleaningLLMWrapper wraps llm.
func NewCleaningLLMWrapper(llm llms.Model, config *Config, logger *logrus.Logger) *CleaningLLMWrapper {
	return &CleaningLLMWrapper{
		wrappedLLM: llm,
		config:     config,
		logger:     logger,
	}
}

func truncateForLog(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return truncateRunes(text, limit) + "..."
}

// CleanAgentResponse removes reasoning and artifact tags and makes sure the
// text follows the ReAct format the agent expects.
func (w *CleaningLLMWrapper) CleanAgentResponse(response string) string {
	cleaned := thinkSpanRe.ReplaceAllString(response, "")
	cleaned = openThinkRe.ReplaceAllString(cleaned, "")
	// the agent inspects projects, it must not answer with a new one
	cleaned = artifactSpanRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = multiNewlineRe.ReplaceAllString(cleaned, "\n\n")

	if emptyActionInput.MatchString(cleaned) {
		w.logger.Debug("Detected empty Action Input field, adding empty string value")
		cleaned = emptyActionInput.ReplaceAllString(cleaned, "Action Input: ")
	}

	hasAgentFormat := strings.Contains(cleaned, "Thought:") ||
		strings.Contains(cleaned, "Action:") ||
		strings.Contains(cleaned, "Final Answer:") ||
		strings.Contains(cleaned, "Observation:")

	if !hasAgentFormat && cleaned != "" {
		w.logger.WithFields(logrus.Fields{
			"originalLength": len(response),
			"cleanedLength":  len(cleaned),
		}).Info("Wrapping direct response in Final Answer format")
		cleaned = "Thought: I can answer from what I already know about the project.\nFinal Answer: " + cleaned
	}

	if cleaned == "" {
		return "Final Answer: I could not produce an answer about this project. Please rephrase the question."
	}
	return cleaned
}

// GenerateContent implements llms.Model.
func (w *CleaningLLMWrapper) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	response, err := w.wrappedLLM.GenerateContent(ctx, messages, options...)
	if err != nil {
		return response, err
	}
	if response == nil {
		return response, nil
	}

	for i := range response.Choices {
		original := response.Choices[i].Content
		cleaned := w.CleanAgentResponse(original)
		response.Choices[i].Content = cleaned

		if len(original) != len(cleaned) {
			w.logger.WithFields(logrus.Fields{
				"originalLength":  len(original),
				"cleanedLength":   len(cleaned),
				"originalPreview": truncateForLog(original, w.config.LogTruncateLength),
			}).Debug("Cleaned LLM response content")
		}
	}
	return response, nil
}

// Call implements llms.Model.
func (w *CleaningLLMWrapper) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, w, prompt, options...)
}
