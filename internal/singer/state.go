package singer

import (
	"encoding/json"
	"fmt"
	"os"
)

// Bookmark holds the persisted progress values for one metric.
type Bookmark map[string]string

// State is the persisted tap state: per-metric bookmarks marking the start of
// the next unprocessed window. Loaded once at startup, mutated in memory by
// the sync loop, written back out as STATE messages.
type State struct {
	Bookmarks map[string]Bookmark `json:"bookmarks"`
}

// NewState creates an empty state.
func NewState() *State {
	return &State{Bookmarks: make(map[string]Bookmark)}
}

// LoadState reads a previously persisted state from a JSON file.
// An empty path yields a fresh empty state.
func LoadState(path string) (*State, error) {
	if path == "" {
		return NewState(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.Bookmarks == nil {
		state.Bookmarks = make(map[string]Bookmark)
	}

	return state, nil
}

// GetBookmark returns the bookmark value for a key under a metric.
func (s *State) GetBookmark(metric, key string) (string, bool) {
	bookmark, ok := s.Bookmarks[metric]
	if !ok {
		return "", false
	}
	value, ok := bookmark[key]
	return value, ok
}

// SetBookmark sets the bookmark value for a key under a metric.
func (s *State) SetBookmark(metric, key, value string) {
	if s.Bookmarks[metric] == nil {
		s.Bookmarks[metric] = make(Bookmark)
	}
	s.Bookmarks[metric][key] = value
}
