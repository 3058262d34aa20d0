// Package memory is an in-process goal persistence service used for
// development, tests and offline demos.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"

	"goalplanner/internal/core"
	"goalplanner/internal/remote"
)

var _ remote.Client = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	items  []core.Goal
	nextID int
	fail   error
}

func New(seed []core.Goal) *Store {
	s := &Store{items: append([]core.Goal(nil), seed...)}
	for _, g := range seed {
		if n, err := strconv.Atoi(g.ID); err == nil && n > s.nextID {
			s.nextID = n
		}
	}
	return s
}

// NewFromFile seeds the store from a json-server db file ({"goals": [...]}).
// A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	goals, err := ReadSeed(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return New(goals), nil
}

// ReadSeed parses a json-server db file.
func ReadSeed(path string) ([]core.Goal, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var db struct {
		Goals []core.Goal `json:"goals"`
	}
	if err := json.Unmarshal(b, &db); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return db.Goals, nil
}

// SetFailure makes every following call fail with err until cleared with nil.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *Store) FetchAll(_ context.Context) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return append([]core.Goal(nil), s.items...), nil
}

func (s *Store) Create(_ context.Context, d core.Draft) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return core.Goal{}, s.fail
	}
	s.nextID++
	g := d.Goal(strconv.Itoa(s.nextID))
	s.items = append(s.items, g)
	return g, nil
}

func (s *Store) Patch(_ context.Context, id string, p core.Patch) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return core.Goal{}, s.fail
	}
	i := s.index(id)
	if i < 0 {
		return core.Goal{}, notFound("patch", id)
	}
	s.items[i] = p.Apply(s.items[i])
	return s.items[i], nil
}

func (s *Store) Replace(_ context.Context, id string, g core.Goal) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return core.Goal{}, s.fail
	}
	i := s.index(id)
	if i < 0 {
		return core.Goal{}, notFound("replace", id)
	}
	g.ID = id
	s.items[i] = g
	return g, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	i := s.index(id)
	if i < 0 {
		return notFound("delete", id)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Store) index(id string) int {
	for i, g := range s.items {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func notFound(op, id string) error {
	return remote.ServerError(op, http.StatusNotFound, fmt.Errorf("goal %q not found", id))
}
