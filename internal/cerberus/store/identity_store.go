package store

import (
	"context"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// IdentityStore persists the known-face embeddings. The set is always written
// as a whole: ReplaceIdentities either commits the new set completely or leaves
// the previous one untouched.
type IdentityStore interface {
	LoadIdentities(ctx context.Context) (map[string][]types.Embedding, error)
	ReplaceIdentities(ctx context.Context, set map[string][]types.Embedding) error
}
