package core

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LLM_PROVIDER", "OPENAI_BASE_URL", "OPENAI_API_KEY", "OPENAI_MODEL",
		"OLLAMA_ENDPOINT", "OLLAMA_MODEL", "GEMINI_API_KEY", "GEMINI_MODEL",
		"REQUEST_TIMEOUT", "DEBOUNCE_MS", "MAX_ITERATIONS", "CONTEXT_LIMIT",
		"MAX_SESSIONS", "MAX_MESSAGES_PER_SESSION", "MAX_MESSAGE_CHARS",
		"SESSION_MAX_AGE_HOURS", "CLEANUP_INTERVAL_MINUTES", "PREVIEW_TTL_MINUTES",
		"LOG_LEVEL", "LOG_TRUNCATE_LENGTH", "DEBUG_MODE",
	} {
		t.Setenv(key, "")
	}

	config := LoadConfig()
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", "OLLAMA")
	t.Setenv("OPENAI_BASE_URL", "http://gateway.local/v1/")
	t.Setenv("REQUEST_TIMEOUT", "30")
	t.Setenv("DEBOUNCE_MS", "0")
	t.Setenv("MAX_SESSIONS", "3")
	t.Setenv("PREVIEW_TTL_MINUTES", "15")
	t.Setenv("DEBUG_MODE", "1")

	config := LoadConfig()
	assert.Equal(t, "9090", config.Port)
	assert.Equal(t, ProviderOllama, config.LLMProvider)
	assert.Equal(t, "http://gateway.local/v1", config.OpenAIBaseURL)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, time.Duration(0), config.DebounceInterval)
	assert.Equal(t, 3, config.MaxSessions)
	assert.Equal(t, 15*time.Minute, config.PreviewTTL)
	assert.True(t, config.DebugMode)
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mystery")
	t.Setenv("REQUEST_TIMEOUT", "-5")
	t.Setenv("DEBOUNCE_MS", "soon")
	t.Setenv("MAX_ITERATIONS", "0")

	config := LoadConfig()
	defaults := DefaultConfig()
	assert.Equal(t, defaults.LLMProvider, config.LLMProvider)
	assert.Equal(t, defaults.RequestTimeout, config.RequestTimeout)
	assert.Equal(t, defaults.DebounceInterval, config.DebounceInterval)
	assert.Equal(t, defaults.MaxIterations, config.MaxIterations)
}

func TestLoadConfigGeminiWithoutKeyFallsBack(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")
	assert.Equal(t, ProviderOllama, LoadConfig().LLMProvider)

	t.Setenv("GEMINI_API_KEY", "key")
	assert.Equal(t, ProviderGemini, LoadConfig().LLMProvider)
}

func TestInitializeLoggerLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"WARN":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"verbose": logrus.InfoLevel,
	}
	for level, want := range tests {
		config := DefaultConfig()
		config.LogLevel = level
		assert.Equal(t, want, InitializeLogger(config).GetLevel(), level)
	}
}
