package cache

import (
	"sync"

	"github.com/ginmihq/ginmi/internal/model/contract"
)

// MemoryStore is a process-local Store, used in tests and as a fallback
// when no cache directory is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*contract.ModelOutput
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*contract.ModelOutput)}
}

func (s *MemoryStore) Fetch(fingerprint string) (*contract.ModelOutput, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	output, ok := s.entries[fingerprint]
	return output, ok, nil
}

func (s *MemoryStore) Put(fingerprint string, output *contract.ModelOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[fingerprint] = output
	return nil
}
