package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"showcase/artifact"
)

// Message roles stored in a conversation transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrTurnInFlight is returned when a turn is started while another one runs.
	ErrTurnInFlight = errors.New("a generation turn is already in flight for this conversation")

	// ErrConversationNotFound is returned for unknown or expired conversation ids.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Message is one transcript record. Assistant messages are updated in place by id
// while their turn streams.
type Message struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Reasoning string            `json:"reasoning,omitempty"`
	Code      string            `json:"code,omitempty"`
	Files     *artifact.FileSet `json:"files,omitempty"`
	EntryFile string            `json:"entryFile,omitempty"`
	Error     bool              `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Transcript renders the message the way the model should see it in the history,
// with its artifact back in tag form.
func (m Message) Transcript() string {
	if m.Role != RoleAssistant {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	switch {
	case m.Files.Len() > 0:
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if m.EntryFile != "" {
			fmt.Fprintf(&b, "<files entry=%q>\n", m.EntryFile)
		} else {
			b.WriteString("<files>\n")
		}
		for _, p := range m.Files.Paths() {
			src, _ := m.Files.Get(p)
			fmt.Fprintf(&b, "<file path=%q>\n%s\n</file>\n", p, src)
		}
		b.WriteString("</files>")
	case m.Code != "":
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("<component>\n")
		b.WriteString(m.Code)
		b.WriteString("\n</component>")
	}
	return b.String()
}

func (m *Message) applyArtifact(a artifact.Artifact) {
	m.Content = a.DisplayContent
	m.Reasoning = a.Reasoning
	m.Code = a.Code
	m.Files = a.Files
	m.EntryFile = a.EntryFile
}

// Conversation is the ordered transcript of one generation chat. At most one
// turn may be in flight at a time.
type Conversation struct {
	ID string

	mu       sync.RWMutex
	messages []Message
	inFlight bool
	created  time.Time
	updated  time.Time
}

// NewConversation returns an empty conversation. An empty id gets a generated one.
func NewConversation(id string) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Conversation{ID: id, created: now, updated: now}
}

// Begin claims the in-flight slot. The returned func releases it.
func (c *Conversation) Begin() (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return nil, ErrTurnInFlight
	}
	c.inFlight = true

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.inFlight = false
			c.mu.Unlock()
		})
	}, nil
}

// InFlight reports whether a turn currently owns the conversation.
func (c *Conversation) InFlight() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inFlight
}

// Append adds a message, assigning an id and timestamp when missing.
func (c *Conversation) Append(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.updated = time.Now()
	c.mu.Unlock()
	return m
}

// Update applies fn to the message with the given id.
func (c *Conversation) Update(id string, fn func(*Message)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			fn(&c.messages[i])
			c.updated = time.Now()
			return true
		}
	}
	return false
}

// Remove deletes the message with the given id.
func (c *Conversation) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			c.updated = time.Now()
			return true
		}
	}
	return false
}

// Message returns a copy of the message with the given id.
func (c *Conversation) Message(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Messages returns a copy of the transcript in order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.messages...)
}

// History returns the last limit messages before the message with id stop,
// skipping error records. A negative limit means no limit.
func (c *Conversation) History(stop string, limit int) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Message
	for _, m := range c.messages {
		if m.ID == stop {
			break
		}
		if m.Error {
			continue
		}
		out = append(out, m)
	}
	if limit >= 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ConversationInfo is a serializable snapshot of a conversation.
type ConversationInfo struct {
	ID       string    `json:"id"`
	InFlight bool      `json:"inFlight"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	Messages []Message `json:"messages"`
}

// Info returns a snapshot of the conversation.
func (c *Conversation) Info() ConversationInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConversationInfo{
		ID:       c.ID,
		InFlight: c.inFlight,
		Created:  c.created,
		Updated:  c.updated,
		Messages: append([]Message(nil), c.messages...),
	}
}

// ConversationStore keeps generation conversations, forgetting idle ones after maxAge.
type ConversationStore struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

// NewConversationStore creates a store whose entries expire after ttl without use.
func NewConversationStore(ttl, cleanup time.Duration) *ConversationStore {
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &ConversationStore{cache: cache.New(ttl, cleanup), ttl: ttl}
}

// GetOrCreate returns the conversation with id, creating it when absent.
func (s *ConversationStore) GetOrCreate(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if v, ok := s.cache.Get(id); ok {
			conv := v.(*Conversation)
			s.cache.Set(id, conv, s.ttl)
			return conv
		}
	}
	conv := NewConversation(id)
	s.cache.Set(conv.ID, conv, s.ttl)
	return conv
}

// Get returns the conversation with id.
func (s *ConversationStore) Get(id string) (*Conversation, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Conversation), true
}

// Delete forgets the conversation with id.
func (s *ConversationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Get(id); !ok {
		return false
	}
	s.cache.Delete(id)
	return true
}

// Count returns the number of live conversations.
func (s *ConversationStore) Count() int {
	return s.cache.ItemCount()
}
