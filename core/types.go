/*
Package core contains the service layer of the showcase generator.

This file defines the request and response types of the HTTP API. Request types
carry validate tags checked by the echo validator before a handler runs.

Key type categories:
- Generation API types (GenerateRequest)
- Chatbot API types (ChatRequest, AgentChatRequest)
- Real-time streaming types (StreamMessage)
- Execution control types (StopRequest, StopResponse)
*/
package core

import (
	"showcase/artifact"
)

// GenerateRequest starts one component generation turn.
type GenerateRequest struct {
	Prompt         string `json:"prompt" validate:"required,max=20000"`        // What the user wants built
	ConversationID string `json:"conversationId,omitempty" validate:"max=128"` // Existing conversation to continue
}

// ChatRequest is one chatbot message.
type ChatRequest struct {
	Message   string `json:"message" validate:"required,max=20000"`  // The user's message
	SessionID string `json:"sessionId,omitempty" validate:"max=128"` // Optional session for conversation memory
}

// AgentChatRequest asks the project agent a question about a preview.
type AgentChatRequest struct {
	Message   string `json:"message" validate:"required,max=20000"`
	SessionID string `json:"sessionId,omitempty" validate:"max=128"`
	PreviewID string `json:"previewId" validate:"required,max=128"` // Preview whose project the tools inspect
	Debug     bool   `json:"debug,omitempty"`                       // Stream agent chain events as debug messages
}

// StreamMessage is one SSE event of the generation and agent endpoints.
// The Type field determines how the client handles it.
type StreamMessage struct {
	Type      string                 `json:"type"`                // "session", "execution_started", "artifact", "preview", "retry", "tool", "response", "error", "stopped", "done", "debug"
	Content   string                 `json:"content"`             // Main message content or description
	MessageID string                 `json:"messageId,omitempty"` // Assistant message the event belongs to
	PreviewID string                 `json:"previewId,omitempty"` // Preview that was (re)published
	Artifact  *artifact.Artifact     `json:"artifact,omitempty"`  // Latest parse of the streamed text
	Tool      string                 `json:"tool,omitempty"`      // Tool being executed (Type "tool")
	Complete  bool                   `json:"complete"`            // Whether this event completes an operation
	Debug     bool                   `json:"debug,omitempty"`     // Debug-only event
	Iteration int                    `json:"iteration,omitempty"` // Agent iteration number
	Step      string                 `json:"step,omitempty"`      // Agent step identifier
	Details   map[string]interface{} `json:"details,omitempty"`   // Additional structured data
}

// StopRequest asks to cancel a running generation or chat turn.
type StopRequest struct {
	ExecutionID string `json:"executionId" validate:"required"` // Identifier sent in the execution_started event
}

// StopResponse reports the result of a stop request.
type StopResponse struct {
	Success bool   `json:"success"` // Whether the stop request was processed successfully
	Message string `json:"message"` // Human-readable message describing the result
	Stopped bool   `json:"stopped"` // Whether a running execution was actually cancelled
}
