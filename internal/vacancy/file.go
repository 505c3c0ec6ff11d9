package vacancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// FileStore serves vacancies from a JSON object mapping titles to
// descriptions. It is loaded once and read-only afterwards.
type FileStore struct {
	byID    map[string]Descriptor
	ordered []Descriptor
}

var _ Store = (*FileStore)(nil)

// LoadFileStore reads path. A missing file yields an empty store.
func LoadFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewFileStore(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read vacancies %s: %w", path, err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode vacancies %s: %w", path, err)
	}
	return NewFileStore(raw)
}

// NewFileStore builds a store from title → description pairs.
func NewFileStore(raw map[string]string) (*FileStore, error) {
	s := &FileStore{byID: make(map[string]Descriptor, len(raw))}
	for title, description := range raw {
		id := Slug(title)
		if id == "" {
			return nil, fmt.Errorf("vacancy title %q has no usable characters", title)
		}
		if existing, ok := s.byID[id]; ok {
			return nil, fmt.Errorf("vacancies %q and %q map to the same id %q", existing.Title, title, id)
		}
		d := Descriptor{ID: id, Title: title, Description: description}
		s.byID[id] = d
		s.ordered = append(s.ordered, d)
	}
	sort.Slice(s.ordered, func(i, j int) bool { return s.ordered[i].Title < s.ordered[j].Title })
	return s, nil
}

func (s *FileStore) Get(_ context.Context, id string) (Descriptor, error) {
	d, ok := s.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

func (s *FileStore) ListActive(context.Context) ([]Descriptor, error) {
	return append([]Descriptor(nil), s.ordered...), nil
}
