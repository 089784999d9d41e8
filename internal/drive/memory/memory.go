// Package memory is an in-memory snapshot store used in tests and when no
// Drive credentials are configured.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Store struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Upload stores the payload under the given name and returns a synthetic
// object reference. Re-uploading a name overwrites the previous payload.
func (s *Store) Upload(_ context.Context, name string, payload []byte) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty snapshot name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = append([]byte(nil), payload...)
	s.uploads++
	return fmt.Sprintf("mem:%s", name), nil
}

// Get returns the stored payload for a name, if any.
func (s *Store) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.objects[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), payload...), true
}

// Uploads reports how many uploads succeeded.
func (s *Store) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}
