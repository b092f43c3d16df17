package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// FileSet is a map of virtual file paths to sources that remembers insertion order.
// Overwriting an existing path keeps its original position.
type FileSet struct {
	order []string
	files map[string]string
}

func NewFileSet() *FileSet {
	return &FileSet{files: make(map[string]string)}
}

// FileSetFromMap builds a set from m, ordering the given keys first.
func FileSetFromMap(m map[string]string, order ...string) *FileSet {
	fs := NewFileSet()
	for _, p := range order {
		if src, ok := m[p]; ok {
			fs.Set(p, src)
		}
	}
	for p, src := range m {
		if !fs.Has(NormalizePath(p)) {
			fs.Set(p, src)
		}
	}
	return fs
}

// Set stores src under the normalized form of p.
func (f *FileSet) Set(p, src string) {
	p = NormalizePath(p)
	if _, ok := f.files[p]; !ok {
		f.order = append(f.order, p)
	}
	f.files[p] = src
}

func (f *FileSet) Get(p string) (string, bool) {
	if f == nil {
		return "", false
	}
	src, ok := f.files[NormalizePath(p)]
	return src, ok
}

func (f *FileSet) Has(p string) bool {
	_, ok := f.Get(p)
	return ok
}

// Delete removes p, keeping the order of the remaining paths.
func (f *FileSet) Delete(p string) {
	p = NormalizePath(p)
	if _, ok := f.files[p]; !ok {
		return
	}
	delete(f.files, p)
	for i, existing := range f.order {
		if existing == p {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Rename moves the file at from to to, keeping its position.
// It reports false when from does not exist or to is taken.
func (f *FileSet) Rename(from, to string) bool {
	from, to = NormalizePath(from), NormalizePath(to)
	src, ok := f.files[from]
	if !ok {
		return false
	}
	if _, taken := f.files[to]; taken {
		return false
	}
	delete(f.files, from)
	f.files[to] = src
	for i, existing := range f.order {
		if existing == from {
			f.order[i] = to
			break
		}
	}
	return true
}

func (f *FileSet) Len() int {
	if f == nil {
		return 0
	}
	return len(f.order)
}

// Paths returns the paths in insertion order.
func (f *FileSet) Paths() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// First returns the first inserted path, or "" for an empty set.
func (f *FileSet) First() string {
	if f.Len() == 0 {
		return ""
	}
	return f.order[0]
}

// Map returns a copy of the underlying map.
func (f *FileSet) Map() map[string]string {
	out := make(map[string]string, f.Len())
	if f == nil {
		return out
	}
	for p, src := range f.files {
		out[p] = src
	}
	return out
}

func (f *FileSet) Clone() *FileSet {
	out := NewFileSet()
	if f == nil {
		return out
	}
	for _, p := range f.order {
		out.Set(p, f.files[p])
	}
	return out
}

// MarshalJSON encodes the set as a JSON object whose keys keep insertion order.
func (f *FileSet) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range f.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.files[p])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of path to source, keeping key order.
func (f *FileSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("file set: expected a JSON object, got %v", tok)
	}
	*f = FileSet{files: make(map[string]string)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var src string
		if err := dec.Decode(&src); err != nil {
			return fmt.Errorf("file set: %s: %w", key, err)
		}
		f.Set(key, src)
	}
	_, err = dec.Token()
	return err
}

// NormalizePath turns a model-supplied path into the canonical virtual form:
// forward slashes, a single leading slash, no dot segments.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
