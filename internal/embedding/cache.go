package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// VectorStore persists vectors per model and text hash.
type VectorStore interface {
	Get(ctx context.Context, model string, keys []string) (map[string][]float64, error)
	Put(ctx context.Context, model string, entries map[string][]float64) error
}

// Cached serves repeated texts from a VectorStore and only sends misses to
// the wrapped embedder. Store failures degrade to a plain pass-through.
type Cached struct {
	inner  Embedder
	store  VectorStore
	logger *slog.Logger
}

func NewCached(inner Embedder, store VectorStore, logger *slog.Logger) *Cached {
	return &Cached{inner: inner, store: store, logger: logger}
}

func (c *Cached) Name() string {
	return c.inner.Name()
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	model := c.inner.Name()
	keys := make([]string, len(texts))
	var unique []string
	seen := make(map[string]bool)
	for i, text := range texts {
		keys[i] = TextKey(text)
		if !seen[keys[i]] {
			seen[keys[i]] = true
			unique = append(unique, keys[i])
		}
	}

	hits, err := c.store.Get(ctx, model, unique)
	if err != nil {
		c.logger.Warn("embedding cache read failed", "error", err)
		hits = nil
	}
	// zero vectors carry no model output; older rows may hold them at a
	// guessed size, so they are embedded again.
	for key, v := range hits {
		if isZero(v) {
			delete(hits, key)
		}
	}

	var missTexts, missKeys []string
	queued := make(map[string]bool)
	for i, key := range keys {
		if _, ok := hits[key]; ok || queued[key] {
			continue
		}
		queued[key] = true
		missTexts = append(missTexts, texts[i])
		missKeys = append(missKeys, key)
	}

	fresh := make(map[string][]float64, len(missKeys))
	if len(missTexts) > 0 {
		vecs, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		keep := make(map[string][]float64, len(missKeys))
		for i, key := range missKeys {
			fresh[key] = vecs[i]
			if !isZero(vecs[i]) {
				keep[key] = vecs[i]
			}
		}
		if len(keep) > 0 {
			if err := c.store.Put(ctx, model, keep); err != nil {
				c.logger.Warn("embedding cache write failed", "error", err)
			}
		}
		if dim := modelDim(hits, fresh); dim > 0 {
			for key, v := range fresh {
				if len(v) != dim && isZero(v) {
					fresh[key] = make([]float64, dim)
				}
			}
		}
	}
	c.logger.Debug("embedding cache", "texts", len(texts), "hits", len(unique)-len(missKeys), "misses", len(missKeys))

	out := make([][]float64, len(texts))
	for i, key := range keys {
		v, ok := fresh[key]
		if !ok {
			v = hits[key]
		}
		out[i] = append([]float64(nil), v...)
	}
	return out, nil
}

// modelDim is the size of the first non-zero vector among hits and fresh
// results, or 0 when there is none.
func modelDim(sets ...map[string][]float64) int {
	for _, set := range sets {
		for _, v := range set {
			if !isZero(v) {
				return len(v)
			}
		}
	}
	return 0
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// TextKey is the cache key of a text.
func TextKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
