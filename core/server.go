package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"

	"showcase/preview"
	"showcase/stream"
	localtools "showcase/tools"
)

var finalAnswerRe = regexp.MustCompile(`(?s)Final Answer:\s*(.*)`)

type Server struct {
	llm           llms.Model
	backend       ModelBackend
	controller    *Controller
	conversations *ConversationStore
	previews      *preview.Service
	memoryStore   *MemoryStore
	cancelManager *CancelManager
	config        *Config
	logger        *logrus.Logger
}

// NewServer creates a new server instance with all dependencies initialized
func NewServer(config *Config, logger *logrus.Logger) (*Server, error) {
	logger.Info("Starting server initialization")

	llm, err := NewLLM(context.Background(), config, logger)
	if err != nil {
		logger.WithError(err).WithField("provider", config.LLMProvider).Error("Failed to initialize LLM")
		return nil, err
	}
	backend := NewBackend(config, llm, logger)

	server := newServer(config, logger, llm, backend)
	logger.Info("Server initialization completed successfully")
	return server, nil
}

// newServer wires a server around an already constructed model and backend.
func newServer(config *Config, logger *logrus.Logger, llm llms.Model, backend ModelBackend) *Server {
	memoryStore := NewMemoryStore(MemoryLimitsFromConfig(config), logger)
	logger.WithFields(logrus.Fields{
		"maxSessions":   config.MaxSessions,
		"sessionMaxAge": config.SessionMaxAge,
	}).Info("Memory store initialized")

	previews := preview.NewService(config.PreviewTTL, logger)
	logger.WithField("previewTTL", config.PreviewTTL).Info("Preview service initialized")

	return &Server{
		llm:           llm,
		backend:       backend,
		controller:    NewController(backend, previews, config, logger),
		conversations: NewConversationStore(config.SessionMaxAge, config.CleanupInterval),
		previews:      previews,
		memoryStore:   memoryStore,
		cancelManager: NewCancelManager(),
		config:        config,
		logger:        logger,
	}
}

// Close stops background work.
func (s *Server) Close() {
	s.memoryStore.Close()
}

// Previews returns the preview service.
func (s *Server) Previews() *preview.Service {
	return s.previews
}

func (s *Server) requestLogger(c echo.Context, endpoint, prefix string) *logrus.Entry {
	requestID := c.Request().Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return s.logger.WithFields(logrus.Fields{
		"requestId": requestID,
		"endpoint":  endpoint,
		"method":    c.Request().Method,
		"clientIP":  c.RealIP(),
	})
}

func setEventStreamHeaders(c echo.Context) {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("Access-Control-Allow-Origin", "*")
}

func (s *Server) handleGenerate(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/api/generate", "gen_req")
	requestLogger.Info("Received generation request")

	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		requestLogger.WithError(err).Warn("Invalid generation request")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	conv := s.conversations.GetOrCreate(req.ConversationID)
	if conv.InFlight() {
		requestLogger.WithField("conversationId", conv.ID).Warn("Rejected prompt while a turn is in flight")
		return c.JSON(http.StatusConflict, map[string]string{"error": ErrTurnInFlight.Error()})
	}

	setEventStreamHeaders(c)
	s.sendStreamMessage(c, StreamMessage{
		Type:    "session",
		Content: conv.ID,
	})

	executionID := fmt.Sprintf("exec_%d", time.Now().UnixNano())
	s.sendStreamMessage(c, StreamMessage{
		Type:    "execution_started",
		Content: executionID,
	})

	// the request context also ends the turn when the client disconnects
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer func() {
		s.cancelManager.RemoveExecution(executionID)
		cancel()
	}()
	s.cancelManager.AddExecution(ExecutionInfo{ID: executionID, Kind: ExecutionGenerate, Owner: conv.ID}, cancel)

	requestLogger = requestLogger.WithFields(logrus.Fields{
		"conversationId": conv.ID,
		"executionID":    executionID,
	})
	requestLogger.WithField("promptLength", len(req.Prompt)).Info("Starting generation turn")

	result, err := s.controller.Run(ctx, conv, req.Prompt, func(u Update) {
		s.sendStreamMessage(c, streamMessageFor(u))
	})
	switch {
	case errors.Is(err, ErrTurnInFlight):
		s.sendStreamMessage(c, StreamMessage{Type: "error", Content: getErrorMessage(err), Complete: true})
	case err != nil:
		requestLogger.WithError(err).Warn("Generation turn did not settle")
	default:
		requestLogger.WithFields(logrus.Fields{
			"messageId": result.MessageID,
			"retries":   result.Retries,
			"files":     result.Project.Files.Len(),
		}).Info("Generation turn completed")
	}
	return nil
}

// streamMessageFor converts a controller update into its SSE event.
func streamMessageFor(u Update) StreamMessage {
	msg := StreamMessage{Type: u.Type, MessageID: u.MessageID}
	switch u.Type {
	case UpdateArtifact:
		msg.Artifact = u.Artifact
		if u.Artifact != nil {
			msg.Content = u.Artifact.DisplayContent
		}
	case UpdatePreview:
		msg.PreviewID = u.PreviewID
		msg.Content = "/preview/" + u.PreviewID
		msg.Details = map[string]interface{}{"version": u.Version}
	case UpdateRetry:
		msg.Content = "No component found in the response, retrying with a stricter format"
	case UpdateError:
		msg.Content = u.Error
		msg.Complete = true
	case UpdateStopped:
		msg.Content = "Generation was stopped"
		msg.Complete = true
	case UpdateDone:
		msg.Artifact = u.Artifact
		msg.PreviewID = u.MessageID
		msg.Complete = true
	}
	return msg
}

func (s *Server) handleGetConversation(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/api/conversations/:id", "req")
	conv, ok := s.conversations.Get(c.Param("id"))
	if !ok {
		requestLogger.Warn("Conversation not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": ErrConversationNotFound.Error()})
	}
	return c.JSON(http.StatusOK, conv.Info())
}

func (s *Server) handleDeleteConversation(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/api/conversations/:id", "req")
	id := c.Param("id")
	if conv, ok := s.conversations.Get(id); ok && conv.InFlight() {
		return c.JSON(http.StatusConflict, map[string]string{"error": ErrTurnInFlight.Error()})
	}
	if !s.conversations.Delete(id) {
		requestLogger.Warn("Conversation not found for deletion")
		return c.JSON(http.StatusNotFound, map[string]string{"error": ErrConversationNotFound.Error()})
	}
	requestLogger.WithField("conversationId", id).Info("Conversation deleted")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":        "Conversation deleted successfully",
		"conversationId": id,
	})
}

// handleChat streams a chatbot answer in the prefixed framing: 0: text deltas,
// r: reasoning deltas, e: a terminal error and d: the finish record.
func (s *Server) handleChat(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/api/chat", "chat_req")
	requestLogger.Info("Received chat request")

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	session := s.memoryStore.GetOrCreateSession(req.SessionID)
	history := session.GetRecentMessages(s.config.ContextLimit)
	session.AddMessage("user", req.Message)

	messages := make([]PromptMessage, 0, len(history)+2)
	messages = append(messages, PromptMessage{Role: "system", Content: ChatSystemPrompt})
	for _, m := range history {
		messages = append(messages, PromptMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, PromptMessage{Role: RoleUser, Content: req.Message})

	executionID := fmt.Sprintf("exec_%d", time.Now().UnixNano())
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer func() {
		s.cancelManager.RemoveExecution(executionID)
		cancel()
	}()
	s.cancelManager.AddExecution(ExecutionInfo{ID: executionID, Kind: ExecutionChat, Owner: session.ID}, cancel)

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Access-Control-Allow-Origin", "*")
	resp.Header().Set("Access-Control-Expose-Headers", "X-Session-ID, X-Execution-ID")
	resp.Header().Set("X-Session-ID", session.ID)
	resp.Header().Set("X-Execution-ID", executionID)
	resp.WriteHeader(http.StatusOK)

	requestLogger = requestLogger.WithFields(logrus.Fields{
		"sessionID":   session.ID,
		"executionID": executionID,
	})
	startTime := time.Now()

	reply, err := RelayChat(ctx, s.backend, messages, resp)
	executionTime := time.Since(startTime)
	if err != nil {
		if isAbort(ctx, err) {
			chatStreams.WithLabelValues("stopped").Inc()
			requestLogger.WithField("executionTime", executionTime).Info("Chat stream stopped")
			return nil
		}
		chatStreams.WithLabelValues("error").Inc()
		requestLogger.WithError(err).WithField("executionTime", executionTime).Error("Chat stream failed")
		_ = stream.WritePrefixed(resp, stream.Frame{Kind: stream.KindError, Text: getErrorMessage(err)})
		resp.Flush()
		return nil
	}

	session.AddMessageWithReasoning("assistant", reply.Content, reply.Reasoning)
	_ = stream.WritePrefixed(resp, stream.Frame{Kind: stream.KindDone})
	resp.Flush()

	chatStreams.WithLabelValues("completed").Inc()
	requestLogger.WithFields(logrus.Fields{
		"executionTime":   executionTime,
		"responseLength":  len(reply.Content),
		"reasoningLength": len(reply.Reasoning),
	}).Info("Chat stream completed")
	return nil
}

// handleAgentChat answers a question about a preview's project with the tool agent.
func (s *Server) handleAgentChat(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/api/chat/agent", "agent_req")
	requestLogger.Info("Received agent chat request")

	var req AgentChatRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	entry, ok := s.previews.Get(req.PreviewID)
	if !ok {
		requestLogger.WithField("previewId", req.PreviewID).Warn("Preview not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
	}

	session := s.memoryStore.GetOrCreateSession(req.SessionID)
	conversationContext := session.GetConversationContext(s.config.ContextLimit)
	session.AddMessage("user", req.Message)

	setEventStreamHeaders(c)
	s.sendStreamMessage(c, StreamMessage{
		Type:    "session",
		Content: session.ID,
	})

	executionID := fmt.Sprintf("exec_%d", time.Now().UnixNano())
	s.sendStreamMessage(c, StreamMessage{
		Type:    "execution_started",
		Content: executionID,
	})

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer func() {
		s.cancelManager.RemoveExecution(executionID)
		cancel()
	}()
	s.cancelManager.AddExecution(ExecutionInfo{ID: executionID, Kind: ExecutionAgent, Owner: session.ID}, cancel)

	requestLogger = requestLogger.WithFields(logrus.Fields{
		"sessionID":   session.ID,
		"executionID": executionID,
		"previewId":   req.PreviewID,
	})

	input := req.Message
	if conversationContext != "" {
		input = conversationContext + "Human: " + req.Message
	}

	startTime := time.Now()
	result, err := s.runAgent(ctx, entry, input, req.Debug || s.config.DebugMode, c, requestLogger)
	executionTime := time.Since(startTime)

	if err != nil {
		if isAbort(ctx, err) {
			requestLogger.WithField("executionTime", executionTime).Info("Agent execution stopped")
			s.sendStreamMessage(c, StreamMessage{
				Type:     "stopped",
				Content:  "Agent execution was stopped",
				Complete: true,
			})
			return nil
		}

		errorMsg := getErrorMessage(err)
		requestLogger.WithError(err).WithFields(logrus.Fields{
			"executionTime": executionTime,
			"userMessage":   errorMsg,
		}).Error("Agent execution failed")
		s.sendStreamMessage(c, StreamMessage{
			Type:     "error",
			Content:  errorMsg,
			Complete: true,
		})
		return nil
	}

	session.AddMessage("assistant", result)
	requestLogger.WithFields(logrus.Fields{
		"executionTime":  executionTime,
		"responseLength": len(result),
	}).Info("Agent execution completed")

	s.sendStreamMessage(c, StreamMessage{
		Type:      "response",
		Content:   result,
		PreviewID: req.PreviewID,
		Complete:  true,
	})
	return nil
}

func (s *Server) runAgent(ctx context.Context, entry preview.Entry, input string, debug bool, c echo.Context, requestLogger *logrus.Entry) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			requestLogger.WithField("panic", r).Error("Panic occurred during agent execution")
			err = fmt.Errorf("execution failed due to internal error: %v", r)
		}
	}()

	toolsList := localtools.ProjectTools(localtools.NewWorkspace(entry.Project))
	handler := NewStreamingCallbackHandler(
		requestLogger.WithField("component", "agent"),
		s.config,
		debug,
		func(msg StreamMessage) {
			s.sendStreamMessage(c, msg)
		},
	)

	executor, err := agents.Initialize(
		NewCleaningLLMWrapper(s.llm, s.config, s.logger),
		toolsList,
		agents.ZeroShotReactDescription,
		agents.WithPrompt(CreateAgentPrompt(toolsList)),
		agents.WithMaxIterations(s.config.MaxIterations),
		agents.WithReturnIntermediateSteps(),
		agents.WithCallbacksHandler(handler),
	)
	if err != nil {
		return "", fmt.Errorf("failed to initialize agent executor: %w", err)
	}

	result, err = chains.Run(ctx, executor, input)
	if err != nil && strings.Contains(err.Error(), "unable to parse agent output: ") {
		// a malformed step often still carries a usable final answer
		raw := strings.SplitN(err.Error(), "unable to parse agent output: ", 2)[1]
		if matches := finalAnswerRe.FindStringSubmatch(raw); len(matches) > 1 {
			requestLogger.Info("Recovered final answer from agent parsing error")
			return strings.TrimSpace(matches[1]), nil
		}
		return "", fmt.Errorf("the agent generated a malformed response that couldn't be parsed: %w", err)
	}
	return result, err
}

func (s *Server) sendStreamMessage(c echo.Context, msg StreamMessage) {
	data, _ := json.Marshal(msg)
	fmt.Fprintf(c.Response(), "data: %s\n\n", string(data))
	c.Response().Flush()
}

func (s *Server) handleStatus(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/status", "req")
	requestLogger.Debug("Health check requested")

	memoryStats := s.memoryStore.GetSessionStats()
	activeExecutions := s.cancelManager.GetActiveExecutions()

	response := map[string]interface{}{
		"status":           "healthy",
		"provider":         s.config.LLMProvider,
		"memory":           memoryStats,
		"conversations":    s.conversations.Count(),
		"previews":         s.previews.Store().Count(),
		"activeExecutions": activeExecutions,
		"executionCount":   len(activeExecutions),
	}

	requestLogger.WithFields(logrus.Fields{
		"activeExecutions": len(activeExecutions),
		"sessions":         memoryStats["totalSessions"],
	}).Debug("Status check completed")

	return c.JSON(http.StatusOK, response)
}

// handleGetSession returns a chat session with its messages
func (s *Server) handleGetSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	requestLogger := s.requestLogger(c, "/sessions/:sessionId", "req").WithField("sessionID", sessionID)

	session, exists := s.memoryStore.GetSession(sessionID)
	if !exists {
		requestLogger.Warn("Session not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}

	info := session.Info(true)
	requestLogger.WithField("messageCount", info.MessageCount).Info("Session information retrieved")
	return c.JSON(http.StatusOK, info)
}

// handleClearSession clears the history of a chat session
func (s *Server) handleClearSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	requestLogger := s.requestLogger(c, "/sessions/:sessionId/clear", "req").WithField("sessionID", sessionID)

	session, exists := s.memoryStore.GetSession(sessionID)
	if !exists {
		requestLogger.Warn("Session not found for clearing")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}

	messageCount := session.ClearMessages()
	requestLogger.WithField("clearedMessages", messageCount).Info("Session cleared successfully")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":         "Session cleared successfully",
		"sessionId":       sessionID,
		"clearedMessages": messageCount,
	})
}

// handleDeleteSession deletes a chat session
func (s *Server) handleDeleteSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	requestLogger := s.requestLogger(c, "/sessions/:sessionId", "req").WithField("sessionID", sessionID)

	if !s.memoryStore.DeleteSession(sessionID) {
		requestLogger.Warn("Session not found for deletion")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}

	requestLogger.Info("Session deleted successfully")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":   "Session deleted successfully",
		"sessionId": sessionID,
	})
}

// handleListSessions lists sessions, most recently updated first
func (s *Server) handleListSessions(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/sessions", "req")

	sessions := s.memoryStore.ListSessions()
	requestLogger.WithField("sessionCount", len(sessions)).Debug("Sessions listed")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

func (s *Server) handleStopExecution(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/api/stop", "req")
	requestLogger.Info("Received stop execution request")

	var req StopRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse stop request body")
		return c.JSON(http.StatusBadRequest, StopResponse{
			Success: false,
			Message: "Invalid request format",
		})
	}
	if err := c.Validate(&req); err != nil {
		requestLogger.WithError(err).Error("Invalid stop request")
		return c.JSON(http.StatusBadRequest, StopResponse{
			Success: false,
			Message: "Execution ID is required",
		})
	}

	requestLogger = requestLogger.WithField("executionID", req.ExecutionID)
	if !s.cancelManager.CancelExecution(req.ExecutionID) {
		requestLogger.Warn("Execution not found or already completed")
		return c.JSON(http.StatusNotFound, StopResponse{
			Success: false,
			Message: "Execution not found or already completed",
		})
	}

	requestLogger.Info("Execution stopped successfully")
	return c.JSON(http.StatusOK, StopResponse{
		Success: true,
		Message: "Execution stopped successfully",
		Stopped: true,
	})
}

// RegisterRoutes registers all HTTP routes for the server
func (s *Server) RegisterRoutes(e *echo.Echo) {
	s.logger.Info("Registering routes")

	if e.Validator == nil {
		e.Validator = NewRequestValidator()
	}

	// Generation API
	e.POST("/api/generate", s.handleGenerate)
	e.GET("/api/conversations/:id", s.handleGetConversation)
	e.DELETE("/api/conversations/:id", s.handleDeleteConversation)
	e.POST("/api/stop", s.handleStopExecution)

	// Chatbot API
	e.POST("/api/chat", s.handleChat)
	e.POST("/api/chat/agent", s.handleAgentChat)

	// Session management routes
	e.GET("/sessions", s.handleListSessions)
	e.GET("/sessions/:sessionId", s.handleGetSession)
	e.POST("/sessions/:sessionId/clear", s.handleClearSession)
	e.DELETE("/sessions/:sessionId", s.handleDeleteSession)

	e.GET("/status", s.handleStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.previews.RegisterRoutes(e)
	s.logger.Info("Routes registered successfully")
}
