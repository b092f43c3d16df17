/*
Package preview hosts the live preview of an assembled project.

The generated code never runs in the host page. The host page embeds the sandbox document
in an iframe with only allow-scripts, which gives it an opaque origin and a separate
JavaScript realm. The two sides talk only through typed envelopes ({type, payload}):
the server fans envelopes out over a websocket, the host page relays them into the
sandbox with postMessage, and console or error reports travel back the same way.

Components:
- Store: the current project of each preview, its user edits, version and theme
- Hub: per-preview FIFO fan-out of envelopes to websocket subscribers
- Service: ties both together and serves the echo routes
*/
package preview

import (
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"showcase/artifact"
	"showcase/project"
)

// ErrNotFound is returned for unknown or expired preview ids.
var ErrNotFound = errors.New("preview not found")

// Themes accepted by SetTheme.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Entry is a snapshot of one preview.
type Entry struct {
	ID        string           `json:"id"`
	Version   int              `json:"version"`
	Theme     string           `json:"theme"`
	Project   *project.Project `json:"project"`
	Edited    []string         `json:"edited,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type record struct {
	generated *project.Project
	edits     *artifact.FileSet
	version   int
	theme     string
	updated   time.Time
}

func (r *record) snapshot(id string) Entry {
	return Entry{
		ID:        id,
		Version:   r.version,
		Theme:     r.theme,
		Project:   r.generated.WithEdits(r.edits),
		Edited:    r.edits.Paths(),
		UpdatedAt: r.updated,
	}
}

// Store keeps previews in memory and forgets them after ttl without activity.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
	mu    sync.Mutex
}

// NewStore creates a store whose entries expire ttl after their last change.
func NewStore(ttl time.Duration) *Store {
	cleanup := ttl / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &Store{
		cache: cache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

func (s *Store) lookup(id string) (*record, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*record), true
}

// Put replaces the generated project of id, creating the preview if needed.
// User edits made earlier stay layered on top.
func (s *Store) Put(id string, p *project.Project) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(id)
	if !ok {
		rec = &record{edits: artifact.NewFileSet(), theme: ThemeLight}
	}
	rec.generated = p
	rec.version++
	rec.updated = time.Now()
	s.cache.Set(id, rec, cache.DefaultExpiration)
	return rec.snapshot(id)
}

// Get returns the current snapshot of id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(id)
	if !ok {
		return Entry{}, false
	}
	return rec.snapshot(id), true
}

// Edit replaces one file of the preview with the user's text. The generated project is
// left untouched; the edit is an overlay applied when the snapshot is taken.
func (s *Store) Edit(id, filePath, content string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(id)
	if !ok {
		return Entry{}, ErrNotFound
	}
	rec.edits.Set(filePath, content)
	rec.version++
	rec.updated = time.Now()
	s.cache.Set(id, rec, cache.DefaultExpiration)
	return rec.snapshot(id), nil
}

// ResetEdits drops every user edit of id.
func (s *Store) ResetEdits(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(id)
	if !ok {
		return Entry{}, ErrNotFound
	}
	rec.edits = artifact.NewFileSet()
	rec.version++
	rec.updated = time.Now()
	s.cache.Set(id, rec, cache.DefaultExpiration)
	return rec.snapshot(id), nil
}

// SetTheme records the theme new sandbox documents start with.
func (s *Store) SetTheme(id, theme string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(id)
	if !ok {
		return Entry{}, ErrNotFound
	}
	rec.theme = theme
	rec.updated = time.Now()
	s.cache.Set(id, rec, cache.DefaultExpiration)
	return rec.snapshot(id), nil
}

// Delete forgets id.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

// Count returns the number of live previews.
func (s *Store) Count() int {
	return s.cache.ItemCount()
}
