package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

type memObject struct {
	data       []byte
	generation string
}

// MemoryStore is a process-local store for local runs and tests. Every Put
// bumps a global generation counter so pinned reads behave like GCS.
type MemoryStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]memObject
	history map[string]memObject
	nextGen int64
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		objects: make(map[string]memObject),
		history: make(map[string]memObject),
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextGen++
	obj := memObject{data: append([]byte(nil), body...), generation: strconv.FormatInt(s.nextGen, 10)}
	s.objects[key] = obj
	s.history[key+"#"+obj.generation] = obj
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key, generation string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if generation != "" {
		obj, ok = s.history[key+"#"+generation]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) URL(key string) string {
	return "mem://" + s.bucket + "/" + key
}

func (s *MemoryStore) Bucket() string {
	return s.bucket
}

// Generation returns the current generation of key, or "" if absent.
func (s *MemoryStore) Generation(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key].generation
}

// Keys lists live keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
