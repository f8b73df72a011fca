package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/store"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

// Trainer rebuilds the KnownIdentitySet from the face dataset. Requests made
// while a retrain is running collapse into one follow-up run.
type Trainer struct {
	dataset DatasetSource
	matcher FaceMatcher
	store   store.IdentityStore
	gallery *Gallery
	logger  *zap.Logger

	mu   sync.Mutex // one retrain at a time
	kick chan struct{}
}

func NewTrainer(dataset DatasetSource, matcher FaceMatcher, s store.IdentityStore, gallery *Gallery, logger *zap.Logger) *Trainer {
	return &Trainer{
		dataset: dataset,
		matcher: matcher,
		store:   s,
		gallery: gallery,
		logger:  logger,
		kick:    make(chan struct{}, 1),
	}
}

// Load publishes the persisted identities without touching the dataset.
func (t *Trainer) Load(ctx context.Context) error {
	m, err := t.store.LoadIdentities(ctx)
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}
	t.gallery.Swap(NewKnownIdentitySet(m))
	return nil
}

// Retrain embeds every face of every dataset image, persists the result
// and then swaps it in. On any error the current set stays in place.
func (t *Trainer) Retrain(ctx context.Context) (int, error) {
	if t.dataset == nil {
		return 0, fmt.Errorf("%w: no dataset", ErrHardwareUnavailable)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	images, err := t.dataset.Images(ctx)
	if err != nil {
		return 0, fmt.Errorf("read dataset: %w", err)
	}
	if len(images) > 0 && t.matcher == nil {
		return 0, fmt.Errorf("%w: no face matcher", ErrHardwareUnavailable)
	}

	set := make(map[string][]types.Embedding)
	skipped := 0
	for _, img := range images {
		embs, err := t.embedAll(ctx, img.Frame)
		if err != nil {
			if errors.Is(err, ErrHardwareUnavailable) || ctx.Err() != nil {
				return 0, fmt.Errorf("embed %s: %w", img.Name, err)
			}
			t.logger.Warn("skip training image", zap.String("name", img.Name), zap.Error(err))
			skipped++
			continue
		}
		if len(embs) == 0 {
			skipped++
			continue
		}
		set[img.Name] = append(set[img.Name], embs...)
	}

	if err := t.store.ReplaceIdentities(ctx, set); err != nil {
		return 0, fmt.Errorf("save identities: %w", err)
	}
	next := NewKnownIdentitySet(set)
	t.gallery.Swap(next)

	t.logger.Info("retrain complete",
		zap.Int("identities", next.Len()), zap.Int("images", len(images)), zap.Int("skipped", skipped))
	return next.Len(), nil
}

// embedAll returns one embedding per face found in f.
func (t *Trainer) embedAll(ctx context.Context, f types.Frame) ([]types.Embedding, error) {
	boxes, err := t.matcher.Locate(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]types.Embedding, 0, len(boxes))
	for _, box := range boxes {
		emb, err := t.matcher.Embed(ctx, f, box)
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}

// Trigger requests a retrain without waiting for it.
func (t *Trainer) Trigger() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Run services Trigger requests until ctx ends.
func (t *Trainer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.kick:
			if _, err := t.Retrain(ctx); err != nil && ctx.Err() == nil {
				t.logger.Error("retrain failed", zap.Error(err))
			}
		}
	}
}
