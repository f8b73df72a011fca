package service

import (
	"math"
	"sort"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

const DefaultTolerance = 0.5

// KnownIdentitySet is an immutable name -> embeddings table. A new set is
// built for every retrain and swapped in through Gallery.
type KnownIdentitySet struct {
	names      []string
	embeddings map[string][]types.Embedding
}

func NewKnownIdentitySet(m map[string][]types.Embedding) *KnownIdentitySet {
	s := &KnownIdentitySet{embeddings: make(map[string][]types.Embedding, len(m))}
	for name, embs := range m {
		if len(embs) == 0 {
			continue
		}
		cp := make([]types.Embedding, len(embs))
		for i, e := range embs {
			cp[i] = append(types.Embedding(nil), e...)
		}
		s.embeddings[name] = cp
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

func (s *KnownIdentitySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns the identity names in sorted order.
func (s *KnownIdentitySet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// BestMatch returns the identity with the smallest Euclidean distance to v
// among all embeddings within tolerance. Equal distances go to the name that
// sorts first. When nothing is within tolerance it returns UnknownName.
func (s *KnownIdentitySet) BestMatch(v types.Embedding, tolerance float64) (string, float64) {
	best, bestDist := types.UnknownName, math.Inf(1)
	if s == nil || len(v) == 0 {
		return best, bestDist
	}

	for _, name := range s.names {
		for _, e := range s.embeddings[name] {
			if len(e) != len(v) {
				continue
			}
			d := floats.Distance(v, e, 2)
			if d <= tolerance && d < bestDist {
				best, bestDist = name, d
			}
		}
	}
	return best, bestDist
}

// Gallery publishes the current KnownIdentitySet. Readers always see either
// the old or the new set in full.
type Gallery struct {
	current atomic.Pointer[KnownIdentitySet]
}

func NewGallery() *Gallery {
	g := &Gallery{}
	g.current.Store(NewKnownIdentitySet(nil))
	return g
}

func (g *Gallery) Load() *KnownIdentitySet {
	return g.current.Load()
}

// Swap installs s and returns the set it replaced.
func (g *Gallery) Swap(s *KnownIdentitySet) *KnownIdentitySet {
	if s == nil {
		s = NewKnownIdentitySet(nil)
	}
	return g.current.Swap(s)
}
