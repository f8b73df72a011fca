package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// IdentityStore keeps the known-face set in memory. Intended for tests and
// dev runs without a database.
type IdentityStore struct {
	mu  sync.RWMutex
	set map[string][]types.Embedding
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{set: make(map[string][]types.Embedding)}
}

func (s *IdentityStore) LoadIdentities(_ context.Context) (map[string][]types.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSet(s.set), nil
}

func (s *IdentityStore) ReplaceIdentities(_ context.Context, set map[string][]types.Embedding) error {
	next := cloneSet(set)
	s.mu.Lock()
	s.set = next
	s.mu.Unlock()
	return nil
}

func cloneSet(in map[string][]types.Embedding) map[string][]types.Embedding {
	out := make(map[string][]types.Embedding, len(in))
	for name, embs := range in {
		cp := make([]types.Embedding, len(embs))
		for i, e := range embs {
			cp[i] = append(types.Embedding(nil), e...)
		}
		out[name] = cp
	}
	return out
}
