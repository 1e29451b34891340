package memory

import (
	"context"
	"sync"
)

// ObjectStore keeps uploaded objects in memory and hands out memory:// URLs.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string][]byte)}
}

func (s *ObjectStore) UploadBinary(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[name] = append([]byte(nil), data...)
	return "memory://receipts/" + name, nil
}

// Object returns a stored object by name.
func (s *ObjectStore) Object(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[name]
	return data, ok
}

func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
