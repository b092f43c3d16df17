/*
Package core provides configuration management and logging initialization
for the showcase generator service.

This file handles:
- Loading a local .env file, then environment variables over sensible defaults
- Structured logging setup with configurable levels
- Model provider selection and generation tuning
- Chat session and preview retention limits

Environment variables always win over the .env file, and the .env file is
optional, so the same binary runs unchanged in development and in containers.
*/
package core

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Supported model providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// Config holds all configurable values for the showcase service.
type Config struct {
	// Server configuration
	Port string // HTTP server port number (default: "8080")

	// Model provider configuration
	LLMProvider string // "openai", "ollama" or "gemini" (default: "openai")

	// OpenAI-compatible endpoint used by the component generator
	OpenAIBaseURL string // Base URL of the chat completions API (default: "https://api.openai.com/v1")
	OpenAIAPIKey  string // Bearer token, may be empty for local gateways
	OpenAIModel   string // Model name (default: "gpt-4o-mini")

	// Ollama configuration
	OllamaEndpoint string // Base URL for the Ollama API service (default: "http://localhost:11434")
	OllamaModel    string // Ollama model name (default: "qwen3")

	// Gemini configuration
	GeminiAPIKey string // API key for Google Gemini (required when using gemini provider)
	GeminiModel  string // Gemini model name (default: "gemini-2.0-flash")

	// Generation configuration
	RequestTimeout   time.Duration // Upper bound for one generation or chat turn (default: 300s)
	DebounceInterval time.Duration // Delay coalescing stream updates before re-parsing (default: 40ms)
	MaxIterations    int           // Maximum agent reasoning iterations (default: 15)
	ContextLimit     int           // Messages of history included in chat prompts (default: 10)

	// Chat session limits
	MaxSessions           int           // Sessions kept before the oldest is evicted (default: 50)
	MaxMessagesPerSession int           // Messages kept per session (default: 100)
	MaxMessageChars       int           // Characters kept per message (default: 8000)
	SessionMaxAge         time.Duration // Idle time after which a session expires (default: 24h)
	CleanupInterval       time.Duration // How often expired sessions are swept (default: 1h)

	// Preview retention
	PreviewTTL time.Duration // Idle time after which a preview is forgotten (default: 2h)

	// Logging and debugging configuration
	LogLevel          string // debug, info, warn, error (default: "info")
	LogTruncateLength int    // Maximum length of logged payloads (default: 500)
	DebugMode         bool   // Stream agent debug events to clients (default: false)
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() *Config {
	return &Config{
		Port: "8080",

		LLMProvider: ProviderOpenAI,

		OpenAIBaseURL: "https://api.openai.com/v1",
		OpenAIModel:   "gpt-4o-mini",

		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "qwen3",

		GeminiModel: "gemini-2.0-flash",

		RequestTimeout:   300 * time.Second,
		DebounceInterval: 40 * time.Millisecond,
		MaxIterations:    15,
		ContextLimit:     10,

		MaxSessions:           50,
		MaxMessagesPerSession: 100,
		MaxMessageChars:       8000,
		SessionMaxAge:         24 * time.Hour,
		CleanupInterval:       1 * time.Hour,

		PreviewTTL: 2 * time.Hour,

		LogLevel:          "info",
		LogTruncateLength: 500,
		DebugMode:         false,
	}
}

// LoadConfig loads configuration from the environment with sensible defaults.
// A .env file in the working directory is read first when present; variables
// already set in the process environment are never overridden by it.
//
// Environment Variables:
//   - PORT: Server port (string)
//   - LLM_PROVIDER: "openai", "ollama" or "gemini" (string)
//   - OPENAI_BASE_URL, OPENAI_API_KEY, OPENAI_MODEL: OpenAI-compatible endpoint (string)
//   - OLLAMA_ENDPOINT, OLLAMA_MODEL: Ollama endpoint and model (string)
//   - GEMINI_API_KEY, GEMINI_MODEL: Gemini credentials and model (string)
//   - REQUEST_TIMEOUT: Turn timeout in seconds (integer)
//   - DEBOUNCE_MS: Stream re-parse debounce in milliseconds (integer, 0 disables)
//   - MAX_ITERATIONS: Maximum agent iterations (integer)
//   - CONTEXT_LIMIT: Maximum context messages (integer)
//   - MAX_SESSIONS: Maximum chat sessions (integer)
//   - MAX_MESSAGES_PER_SESSION: Maximum messages per session (integer)
//   - MAX_MESSAGE_CHARS: Maximum characters per message (integer)
//   - SESSION_MAX_AGE_HOURS: Session expiry in hours (integer)
//   - CLEANUP_INTERVAL_MINUTES: Cleanup frequency in minutes (integer)
//   - PREVIEW_TTL_MINUTES: Preview expiry in minutes (integer)
//   - LOG_LEVEL: Logging level (string)
//   - LOG_TRUNCATE_LENGTH: Log truncation length (integer)
//   - DEBUG_MODE: Enable debug mode (boolean: "true"/"1")
//
// Returns:
//   - *Config: The effective configuration
func LoadConfig() *Config {
	// Missing .env files are normal outside development
	_ = godotenv.Load()

	config := DefaultConfig()

	if port := os.Getenv("PORT"); port != "" {
		config.Port = port
	}

	if provider := strings.ToLower(os.Getenv("LLM_PROVIDER")); provider != "" {
		switch provider {
		case ProviderOpenAI, ProviderOllama, ProviderGemini:
			config.LLMProvider = provider
		}
	}

	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAIBaseURL = strings.TrimRight(baseURL, "/")
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAIAPIKey = apiKey
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.OpenAIModel = model
	}

	if endpoint := os.Getenv("OLLAMA_ENDPOINT"); endpoint != "" {
		config.OllamaEndpoint = endpoint
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		config.OllamaModel = model
	}

	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.GeminiAPIKey = apiKey
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.GeminiModel = model
	}

	if val, ok := positiveInt("REQUEST_TIMEOUT"); ok {
		config.RequestTimeout = time.Duration(val) * time.Second
	}

	// zero is meaningful here: re-parse on every frame
	if debounce := os.Getenv("DEBOUNCE_MS"); debounce != "" {
		if val, err := strconv.Atoi(debounce); err == nil && val >= 0 {
			config.DebounceInterval = time.Duration(val) * time.Millisecond
		}
	}

	if val, ok := positiveInt("MAX_ITERATIONS"); ok {
		config.MaxIterations = val
	}
	if val, ok := positiveInt("CONTEXT_LIMIT"); ok {
		config.ContextLimit = val
	}

	if val, ok := positiveInt("MAX_SESSIONS"); ok {
		config.MaxSessions = val
	}
	if val, ok := positiveInt("MAX_MESSAGES_PER_SESSION"); ok {
		config.MaxMessagesPerSession = val
	}
	if val, ok := positiveInt("MAX_MESSAGE_CHARS"); ok {
		config.MaxMessageChars = val
	}
	if val, ok := positiveInt("SESSION_MAX_AGE_HOURS"); ok {
		config.SessionMaxAge = time.Duration(val) * time.Hour
	}
	if val, ok := positiveInt("CLEANUP_INTERVAL_MINUTES"); ok {
		config.CleanupInterval = time.Duration(val) * time.Minute
	}
	if val, ok := positiveInt("PREVIEW_TTL_MINUTES"); ok {
		config.PreviewTTL = time.Duration(val) * time.Minute
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
	if val, ok := positiveInt("LOG_TRUNCATE_LENGTH"); ok {
		config.LogTruncateLength = val
	}

	if debug := os.Getenv("DEBUG_MODE"); debug != "" {
		config.DebugMode = strings.ToLower(debug) == "true" || debug == "1"
	}

	// Fall back to a keyless local provider rather than failing every request
	if config.LLMProvider == ProviderGemini && config.GeminiAPIKey == "" {
		config.LLMProvider = ProviderOllama
	}

	return config
}

func positiveInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, false
	}
	return val, true
}

// InitializeLogger configures and returns a structured logger based on the provided configuration.
// The logger writes JSON with RFC3339 timestamps to stdout so log aggregation can
// parse the request and turn scoped fields added with WithFields.
//
// Parameters:
//   - config: Configuration object containing logging preferences
//
// Returns:
//   - *logrus.Logger: Configured logger instance ready for use
func InitializeLogger(config *Config) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	switch strings.ToLower(config.LogLevel) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.SetOutput(os.Stdout)

	logger.WithFields(logrus.Fields{
		"llmProvider":           config.LLMProvider,
		"openaiBaseURL":         config.OpenAIBaseURL,
		"openaiModel":           config.OpenAIModel,
		"ollamaEndpoint":        config.OllamaEndpoint,
		"ollamaModel":           config.OllamaModel,
		"geminiModel":           config.GeminiModel,
		"requestTimeout":        config.RequestTimeout,
		"debounceInterval":      config.DebounceInterval,
		"maxIterations":         config.MaxIterations,
		"contextLimit":          config.ContextLimit,
		"maxSessions":           config.MaxSessions,
		"maxMessagesPerSession": config.MaxMessagesPerSession,
		"maxMessageChars":       config.MaxMessageChars,
		"sessionMaxAge":         config.SessionMaxAge,
		"cleanupInterval":       config.CleanupInterval,
		"previewTTL":            config.PreviewTTL,
		"logTruncateLength":     config.LogTruncateLength,
		"debugMode":             config.DebugMode,
	}).Info("Configuration loaded")

	return logger
}
