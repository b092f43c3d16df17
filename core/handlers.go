package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// VerboseCallbackHandler logs every agent chain event.
type VerboseCallbackHandler struct {
	requestLogger *logrus.Entry
	iteration     int
	step          int
	config        *Config
}

func NewVerboseCallbackHandler(requestLogger *logrus.Entry, config *Config) *VerboseCallbackHandler {
	return &VerboseCallbackHandler{
		requestLogger: requestLogger,
		config:        config,
	}
}

// StreamingCallbackHandler also reports agent progress to the client: every tool
// call as a "tool" message, and in debug mode every chain event as a "debug" message.
type StreamingCallbackHandler struct {
	*VerboseCallbackHandler
	debug      bool
	streamFunc func(msg StreamMessage)
}

func NewStreamingCallbackHandler(requestLogger *logrus.Entry, config *Config, debug bool, streamFunc func(msg StreamMessage)) *StreamingCallbackHandler {
	return &StreamingCallbackHandler{
		VerboseCallbackHandler: NewVerboseCallbackHandler(requestLogger, config),
		debug:                  debug,
		streamFunc:             streamFunc,
	}
}

func (h *VerboseCallbackHandler) truncateForLog(text string) string {
	return truncateForLog(text, h.config.LogTruncateLength)
}

func (h *VerboseCallbackHandler) fields() logrus.Fields {
	return logrus.Fields{"iteration": h.iteration, "step": h.step}
}

func (h *VerboseCallbackHandler) HandleText(ctx context.Context, text string) {
	h.requestLogger.WithFields(h.fields()).WithFields(logrus.Fields{
		"text":       h.truncateForLog(text),
		"textLength": len(text),
	}).Debug("Agent processing text")
}

func (h *VerboseCallbackHandler) HandleLLMStart(ctx context.Context, prompts []string) {
	h.iteration++
	h.step = 0
	h.requestLogger.WithFields(h.fields()).WithField("promptCount", len(prompts)).Info("Agent iteration started")
}

func (h *VerboseCallbackHandler) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	h.requestLogger.WithFields(h.fields()).WithField("messageCount", len(ms)).Debug("LLM content generation started")
}

func (h *VerboseCallbackHandler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	h.requestLogger.WithFields(h.fields()).WithField("response", h.truncateForLog(firstChoice(res))).Debug("LLM content generation completed")
}

func (h *VerboseCallbackHandler) HandleLLMError(ctx context.Context, err error) {
	h.requestLogger.WithFields(h.fields()).WithError(err).Error("LLM call failed")
}

func (h *VerboseCallbackHandler) HandleChainStart(ctx context.Context, inputs map[string]any) {
	h.requestLogger.WithFields(h.fields()).Info("Agent chain execution started")
}

func (h *VerboseCallbackHandler) HandleChainEnd(ctx context.Context, outputs map[string]any) {
	h.requestLogger.WithFields(h.fields()).WithField("totalIterations", h.iteration).Info("Agent chain execution completed")
}

func (h *VerboseCallbackHandler) HandleChainError(ctx context.Context, err error) {
	h.requestLogger.WithFields(h.fields()).WithError(err).WithField("totalIterations", h.iteration).Error("Agent chain execution failed")
}

func (h *VerboseCallbackHandler) HandleToolStart(ctx context.Context, input string) {
	h.requestLogger.WithFields(h.fields()).WithField("input", input).Info("Tool execution started")
}

func (h *VerboseCallbackHandler) HandleToolEnd(ctx context.Context, output string) {
	h.requestLogger.WithFields(h.fields()).WithFields(logrus.Fields{
		"output":       h.truncateForLog(output),
		"outputLength": len(output),
	}).Info("Tool execution completed")
}

func (h *VerboseCallbackHandler) HandleToolError(ctx context.Context, err error) {
	h.requestLogger.WithFields(h.fields()).WithError(err).Error("Tool execution failed")
}

func (h *VerboseCallbackHandler) HandleAgentAction(ctx context.Context, action schema.AgentAction) {
	h.requestLogger.WithFields(h.fields()).WithFields(logrus.Fields{
		"action":    action.Tool,
		"input":     action.ToolInput,
		"reasoning": h.truncateForLog(action.Log),
	}).Info("Agent decided on action")
}

func (h *VerboseCallbackHandler) HandleAgentFinish(ctx context.Context, finish schema.AgentFinish) {
	output, _ := finish.ReturnValues["output"].(string)
	h.requestLogger.WithFields(h.fields()).WithFields(logrus.Fields{
		"finalResponse":   h.truncateForLog(output),
		"totalIterations": h.iteration,
	}).Info("Agent finished successfully")
}

func (h *VerboseCallbackHandler) HandleRetrieverStart(ctx context.Context, query string) {}

func (h *VerboseCallbackHandler) HandleRetrieverEnd(ctx context.Context, query string, documents []schema.Document) {
}

func (h *VerboseCallbackHandler) HandleStreamingFunc(ctx context.Context, chunk []byte) {}

func firstChoice(res *llms.ContentResponse) string {
	if res != nil && len(res.Choices) > 0 {
		return res.Choices[0].Content
	}
	return ""
}

// debugEvent streams a debug message when debug mode is on.
func (h *StreamingCallbackHandler) debugEvent(kind, content string, details map[string]interface{}) {
	h.step++
	if !h.debug || h.streamFunc == nil {
		return
	}
	details["stepNumber"] = h.step
	h.streamFunc(StreamMessage{
		Type:      "debug",
		Content:   content,
		Debug:     true,
		Iteration: h.iteration,
		Step:      fmt.Sprintf("%s_%d", kind, h.step),
		Details:   details,
	})
}

func (h *StreamingCallbackHandler) HandleLLMStart(ctx context.Context, prompts []string) {
	h.VerboseCallbackHandler.HandleLLMStart(ctx, prompts)
	h.debugEvent("llm_start", "LLM call started", map[string]interface{}{
		"promptCount": len(prompts),
	})
}

func (h *StreamingCallbackHandler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	h.VerboseCallbackHandler.HandleLLMGenerateContentEnd(ctx, res)
	content := firstChoice(res)
	h.debugEvent("llm_response", "LLM response generated", map[string]interface{}{
		"responseLength":  len(content),
		"responsePreview": h.truncateForLog(content),
	})
}

func (h *StreamingCallbackHandler) HandleToolEnd(ctx context.Context, output string) {
	h.VerboseCallbackHandler.HandleToolEnd(ctx, output)
	h.debugEvent("tool_end", "Tool execution completed", map[string]interface{}{
		"toolOutput":   h.truncateForLog(output),
		"outputLength": len(output),
	})
}

func (h *StreamingCallbackHandler) HandleAgentAction(ctx context.Context, action schema.AgentAction) {
	h.VerboseCallbackHandler.HandleAgentAction(ctx, action)
	if h.streamFunc != nil {
		h.streamFunc(StreamMessage{
			Type:      "tool",
			Content:   action.ToolInput,
			Tool:      action.Tool,
			Iteration: h.iteration,
		})
	}
	h.debugEvent("agent_action", fmt.Sprintf("Agent chose to use tool: %s", action.Tool), map[string]interface{}{
		"tool":      action.Tool,
		"toolInput": action.ToolInput,
		"reasoning": action.Log,
	})
}

func (h *StreamingCallbackHandler) HandleAgentFinish(ctx context.Context, finish schema.AgentFinish) {
	h.VerboseCallbackHandler.HandleAgentFinish(ctx, finish)
	output, _ := finish.ReturnValues["output"].(string)
	h.debugEvent("agent_finish", "Agent finished successfully", map[string]interface{}{
		"finalResponse":   h.truncateForLog(output),
		"totalIterations": h.iteration,
	})
}
