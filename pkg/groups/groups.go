// Package groups stores group chat documents and serves them over HTTP.
//
// Documents live in a json-server style database file:
//
//	{
//	  "groups": [
//	    {"id": "1", "name": "Savings Circle", "numberOfMembers": 4, "body": "Monthly contributions"}
//	  ]
//	}
//
// The Store can watch that file and reload it when it changes.
package groups

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fundsavy/fundsavy/pkg/fetch"
)

// ErrNotFound is returned when a group does not exist.
var ErrNotFound = errors.New("group not found")

// Group is a chat group document.
type Group struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	NumberOfMembers int    `json:"numberOfMembers"`
	Body            string `json:"body"`
}

// UnmarshalJSON accepts numeric IDs as json-server writes them.
func (g *Group) UnmarshalJSON(data []byte) error {
	type plain Group
	var raw struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = Group(raw.plain)

	id := bytes.TrimSpace(raw.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
		g.ID = ""
	case id[0] == '"':
		return json.Unmarshal(id, &g.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("group id: %w", err)
		}
		g.ID = n.String()
	}
	return nil
}

// Database is the on-disk document layout.
type Database struct {
	Groups []Group `json:"groups"`
}

// Store holds groups in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	groups map[string]Group
	path   string
}

// NewStore creates a store seeded with groups.
func NewStore(groups ...Group) *Store {
	s := &Store{groups: make(map[string]Group)}
	for _, g := range groups {
		s.groups[g.ID] = g
	}
	return s
}

// Open loads a database file into a new store.
func Open(path string) (*Store, error) {
	s := NewStore()
	s.path = path
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database file backing the store, if any.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the database file. The previous contents are kept when
// the file cannot be read or parsed.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}

	groups := make(map[string]Group, len(db.Groups))
	for _, g := range db.Groups {
		if g.ID == "" {
			return fmt.Errorf("parsing %s: group %q has no id", s.path, g.Name)
		}
		groups[g.ID] = g
	}

	s.mu.Lock()
	s.groups = groups
	s.mu.Unlock()
	return nil
}

// Get returns the group with the given ID.
func (s *Store) Get(id string) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, ErrNotFound
	}
	return g, nil
}

// List returns all groups ordered by ID.
func (s *Store) List() []Group {
	s.mu.RLock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put inserts or replaces a group.
func (s *Store) Put(g Group) {
	s.mu.Lock()
	s.groups[g.ID] = g
	s.mu.Unlock()
}

// Retrieve implements fetch.Retriever for locators of the form
// "groups/<id>", so screens can read the store in-process.
func (s *Store) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ok := strings.CutPrefix(strings.TrimPrefix(locator, "/"), "groups/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return nil, fetch.ResponseError(locator, http.StatusNotFound)
	}
	g, err := s.Get(id)
	if err != nil {
		return nil, fetch.ResponseError(locator, http.StatusNotFound)
	}
	return json.Marshal(g)
}

// Locator returns the retrieval locator for a group ID.
func Locator(id string) string {
	return "groups/" + id
}
