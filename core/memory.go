/*
Package core provides chat session memory for the showcase chatbot.

This file implements a thread-safe, in-memory store of chatbot conversations.
The store enforces hard limits so memory stays bounded no matter how it is used:

- at most MaxSessions sessions; creating one more evicts the oldest by creation time
- at most MaxMessagesPerSession messages per session; the oldest are dropped first
- at most MaxMessageChars characters per message; longer text is truncated
- sessions idle for longer than the maximum age are removed by a cleanup goroutine

Listing returns the most recently updated session first.
*/
package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChatMessage represents a single message in a chatbot conversation.
type ChatMessage struct {
	Role      string    `json:"role"`                // Message sender: "user" or "assistant"
	Content   string    `json:"content"`             // Message text, truncated to the per-message cap
	Reasoning string    `json:"reasoning,omitempty"` // Reasoning split out of the model output
	Timestamp time.Time `json:"timestamp"`           // When the message was created
}

// ChatSession is one chatbot conversation with its bounded history.
type ChatSession struct {
	ID       string        `json:"id"`
	Messages []ChatMessage `json:"messages"`
	Created  time.Time     `json:"created"`
	Updated  time.Time     `json:"updated"`

	seq         uint64
	maxMessages int
	maxChars    int
	mutex       sync.RWMutex
}

// SessionInfo is a point-in-time copy of a session safe to serialize.
type SessionInfo struct {
	ID           string        `json:"id"`
	MessageCount int           `json:"messageCount"`
	Created      time.Time     `json:"created"`
	Updated      time.Time     `json:"updated"`
	Messages     []ChatMessage `json:"messages,omitempty"`
}

// MemoryLimits bounds what a MemoryStore keeps.
type MemoryLimits struct {
	MaxSessions           int
	MaxMessagesPerSession int
	MaxMessageChars       int
	MaxAge                time.Duration
	CleanupInterval       time.Duration
}

// MemoryStore manages chat sessions with automatic lifecycle management.
type MemoryStore struct {
	sessions map[string]*ChatSession
	mutex    sync.RWMutex
	limits   MemoryLimits
	nextSeq  uint64
	logger   *logrus.Logger
	stop     chan struct{}
	once     sync.Once
}

// NewMemoryStore creates a memory store and starts its cleanup goroutine.
//
// Parameters:
//   - limits: Session, message and age limits the store enforces
//   - logger: Logger instance for operational monitoring and debugging
//
// Returns:
//   - *MemoryStore: Configured memory store ready for use
func NewMemoryStore(limits MemoryLimits, logger *logrus.Logger) *MemoryStore {
	store := &MemoryStore{
		sessions: make(map[string]*ChatSession),
		limits:   limits,
		logger:   logger,
		stop:     make(chan struct{}),
	}

	if limits.CleanupInterval > 0 && limits.MaxAge > 0 {
		go store.cleanupExpiredSessions()
	}

	return store
}

// MemoryLimitsFromConfig extracts the store limits from the configuration.
func MemoryLimitsFromConfig(config *Config) MemoryLimits {
	return MemoryLimits{
		MaxSessions:           config.MaxSessions,
		MaxMessagesPerSession: config.MaxMessagesPerSession,
		MaxMessageChars:       config.MaxMessageChars,
		MaxAge:                config.SessionMaxAge,
		CleanupInterval:       config.CleanupInterval,
	}
}

// Close stops the cleanup goroutine.
func (m *MemoryStore) Close() {
	m.once.Do(func() { close(m.stop) })
}

func generateSessionID() string {
	return "session_" + uuid.NewString()
}

// GetOrCreateSession retrieves an existing session or creates a new one if needed.
// Creating a session when the store is full evicts the oldest session by creation time.
//
// Parameters:
//   - sessionID: Existing session ID, or empty string to create a new session
//
// Returns:
//   - *ChatSession: Valid session object (existing or newly created)
func (m *MemoryStore) GetOrCreateSession(sessionID string) *ChatSession {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if sessionID == "" {
		sessionID = generateSessionID()
	}

	session, exists := m.sessions[sessionID]
	if exists {
		session.touch()
		return session
	}

	if m.limits.MaxSessions > 0 {
		for len(m.sessions) >= m.limits.MaxSessions {
			m.evictOldestLocked()
		}
	}

	now := time.Now()
	m.nextSeq++
	session = &ChatSession{
		ID:          sessionID,
		seq:         m.nextSeq,
		Messages:    make([]ChatMessage, 0),
		Created:     now,
		Updated:     now,
		maxMessages: m.limits.MaxMessagesPerSession,
		maxChars:    m.limits.MaxMessageChars,
	}
	m.sessions[sessionID] = session
	m.logger.WithField("sessionID", sessionID).Info("Created new chat session")
	return session
}

func (m *MemoryStore) evictOldestLocked() {
	var oldest *ChatSession
	for _, s := range m.sessions {
		// seq breaks ties between sessions created within one clock tick
		if oldest == nil || s.seq < oldest.seq {
			oldest = s
		}
	}
	if oldest == nil {
		return
	}
	delete(m.sessions, oldest.ID)
	sessionsEvicted.Inc()
	m.logger.WithFields(logrus.Fields{
		"sessionID": oldest.ID,
		"created":   oldest.Created,
	}).Info("Evicted oldest chat session")
}

// GetSession retrieves an existing session without creating a new one.
//
// Parameters:
//   - sessionID: The session identifier to retrieve
//
// Returns:
//   - *ChatSession: The session object if found
//   - bool: Whether the session exists
func (m *MemoryStore) GetSession(sessionID string) (*ChatSession, bool) {
	m.mutex.RLock()
	session, exists := m.sessions[sessionID]
	m.mutex.RUnlock()

	if exists {
		session.touch()
	}
	return session, exists
}

// DeleteSession removes a session from the store by ID.
//
// Returns:
//   - bool: Whether the session existed and was deleted
func (m *MemoryStore) DeleteSession(sessionID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, exists := m.sessions[sessionID]
	if exists {
		delete(m.sessions, sessionID)
		m.logger.WithField("sessionID", sessionID).Info("Session deleted")
	}
	return exists
}

// ListSessions returns a summary of every session, most recently updated first.
func (m *MemoryStore) ListSessions() []SessionInfo {
	m.mutex.RLock()
	sessions := make([]*ChatSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mutex.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		info := session.Info(false)
		infos = append(infos, info)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Updated.After(infos[j].Updated)
	})
	return infos
}

func (s *ChatSession) touch() {
	s.mutex.Lock()
	s.Updated = time.Now()
	s.mutex.Unlock()
}

// Info returns a copy of the session, with its messages when withMessages is set.
func (s *ChatSession) Info(withMessages bool) SessionInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	info := SessionInfo{
		ID:           s.ID,
		MessageCount: len(s.Messages),
		Created:      s.Created,
		Updated:      s.Updated,
	}
	if withMessages {
		info.Messages = append([]ChatMessage(nil), s.Messages...)
	}
	return info
}

// truncateRunes cuts text to at most max characters without splitting a UTF-8 sequence.
func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == max {
			return text[:i]
		}
		count++
	}
	return text
}

// AddMessage appends a message, truncating its text to the per-message cap and
// dropping the oldest messages beyond the per-session cap.
//
// Parameters:
//   - role: The message sender ("user" or "assistant")
//   - content: The message text content
func (s *ChatSession) AddMessage(role, content string) {
	s.AddMessageWithReasoning(role, content, "")
}

// AddMessageWithReasoning is AddMessage with the reasoning the model produced.
func (s *ChatSession) AddMessageWithReasoning(role, content, reasoning string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Messages = append(s.Messages, ChatMessage{
		Role:      role,
		Content:   truncateRunes(content, s.maxChars),
		Reasoning: truncateRunes(reasoning, s.maxChars),
		Timestamp: time.Now(),
	})
	if s.maxMessages > 0 && len(s.Messages) > s.maxMessages {
		dropped := len(s.Messages) - s.maxMessages
		s.Messages = append([]ChatMessage(nil), s.Messages[dropped:]...)
	}
	s.Updated = time.Now()
}

// GetRecentMessages returns a copy of the most recent messages up to limit.
func (s *ChatSession) GetRecentMessages(limit int) []ChatMessage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	start := 0
	if limit >= 0 && len(s.Messages) > limit {
		start = len(s.Messages) - limit
	}
	return append([]ChatMessage(nil), s.Messages[start:]...)
}

// ClearMessages removes all messages from the session.
//
// Returns:
//   - int: Number of messages that were cleared
func (s *ChatSession) ClearMessages() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	messageCount := len(s.Messages)
	s.Messages = make([]ChatMessage, 0)
	s.Updated = time.Now()
	return messageCount
}

// GetConversationContext formats recent messages for inclusion in prompts.
//
// Parameters:
//   - limit: Maximum number of recent messages to include
//
// Returns:
//   - string: Formatted conversation context ready for prompt inclusion
func (s *ChatSession) GetConversationContext(limit int) string {
	messages := s.GetRecentMessages(limit)
	if len(messages) == 0 {
		return ""
	}

	var context strings.Builder
	context.WriteString("Previous conversation context:\n")

	for _, msg := range messages {
		switch msg.Role {
		case "user":
			context.WriteString(fmt.Sprintf("Human: %s\n", msg.Content))
		case "assistant":
			context.WriteString(fmt.Sprintf("Assistant: %s\n", msg.Content))
		}
	}

	context.WriteString("\nCurrent conversation:\n")
	return context.String()
}

func (s *ChatSession) lastUpdated() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Updated
}

// cleanupExpiredSessions removes sessions idle for longer than the maximum age.
func (m *MemoryStore) cleanupExpiredSessions() {
	ticker := time.NewTicker(m.limits.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.removeExpired(now)
		}
	}
}

func (m *MemoryStore) removeExpired(now time.Time) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	expired := make([]string, 0)
	for id, session := range m.sessions {
		if now.Sub(session.lastUpdated()) > m.limits.MaxAge {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}

	if len(expired) > 0 {
		m.logger.WithFields(logrus.Fields{
			"expiredSessions":   len(expired),
			"remainingSessions": len(m.sessions),
			"cleanupInterval":   m.limits.CleanupInterval,
		}).Info("Cleaned up expired chat sessions")
	}
	return len(expired)
}

// GetSessionStats returns operational statistics about stored sessions.
//
// Returns:
//   - map[string]interface{}: Statistics including session and message counts
func (m *MemoryStore) GetSessionStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	totalMessages := 0
	for _, session := range m.sessions {
		session.mutex.RLock()
		totalMessages += len(session.Messages)
		session.mutex.RUnlock()
	}

	return map[string]interface{}{
		"totalSessions": len(m.sessions),
		"totalMessages": totalMessages,
		"maxSessions":   m.limits.MaxSessions,
	}
}
