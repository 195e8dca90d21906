package fetcher

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const blobScheme = "blob:"

type object struct {
	data     []byte
	mimeType string
}

// ObjectStore keeps fetched bytes addressable by a local blob: reference.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string]object)}
}

func (s *ObjectStore) Put(data []byte, mimeType string) string {
	ref := blobScheme + uuid.NewString()
	s.mu.Lock()
	s.objects[ref] = object{data: data, mimeType: mimeType}
	s.mu.Unlock()
	return ref
}

func (s *ObjectStore) Get(ref string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[ref]
	return obj.data, obj.mimeType, ok
}

func (s *ObjectStore) Revoke(ref string) {
	s.mu.Lock()
	delete(s.objects, ref)
	s.mu.Unlock()
}

func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func IsObjectRef(rawURL string) bool {
	return strings.HasPrefix(rawURL, blobScheme)
}
