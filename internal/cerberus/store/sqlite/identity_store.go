package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"

	dbpkg "github.com/BrandonDHaskell/Cerberus/server/internal/db"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

type IdentityStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewIdentityStore(db *sql.DB, writer *dbpkg.Worker) *IdentityStore {
	return &IdentityStore{db: db, writer: writer}
}

func (s *IdentityStore) LoadIdentities(ctx context.Context) (map[string][]types.Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, embedding
FROM face_embeddings
ORDER BY name, ordinal;
`)
	if err != nil {
		return nil, fmt.Errorf("LoadIdentities query: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]types.Embedding)
	for rows.Next() {
		var (
			name string
			blob []byte
		)
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, fmt.Errorf("LoadIdentities scan: %w", err)
		}
		var vec []float64
		if err := cbor.Unmarshal(blob, &vec); err != nil {
			return nil, fmt.Errorf("LoadIdentities decode %q: %w", name, err)
		}
		out[name] = append(out[name], types.Embedding(vec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadIdentities rows: %w", err)
	}
	return out, nil
}

// ReplaceIdentities deletes every stored embedding and inserts set in the same
// transaction.
func (s *IdentityStore) ReplaceIdentities(ctx context.Context, set map[string][]types.Embedding) error {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	// Encode before queueing so a bad vector never opens a transaction.
	type row struct {
		name    string
		ordinal int
		blob    []byte
	}
	var rows []row
	for _, name := range names {
		for i, emb := range set[name] {
			blob, err := cbor.Marshal([]float64(emb))
			if err != nil {
				return fmt.Errorf("ReplaceIdentities encode %q: %w", name, err)
			}
			rows = append(rows, row{name: name, ordinal: i, blob: blob})
		}
	}

	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM face_embeddings;`); err != nil {
			return fmt.Errorf("ReplaceIdentities clear: %w", err)
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO face_embeddings(name, ordinal, embedding, created_at_ms)
VALUES (?, ?, ?, ?);
`, r.name, r.ordinal, r.blob, nowMs); err != nil {
				return fmt.Errorf("ReplaceIdentities insert %q: %w", r.name, err)
			}
		}
		return nil
	})
}
