package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/collab-matcher/internal/ai"

	"go.uber.org/zap"
)

// Store is the subset of Redis used for caching vectors.
type Store interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// HitRecorder counts cache lookups.
type HitRecorder interface {
	CacheLookup(hit bool)
}

// CachedEmbedder memoises query embeddings. Cache errors never fail a call.
type CachedEmbedder struct {
	next     ai.QueryEmbedder
	store    Store
	model    string
	dims     int
	ttl      time.Duration
	recorder HitRecorder
	logger   *zap.Logger
}

// NewCachedEmbedder scopes cache entries to model and dims; a dims of zero
// accepts cached vectors of any length.
func NewCachedEmbedder(next ai.QueryEmbedder, store Store, model string, dims int, ttl time.Duration, recorder HitRecorder, log *zap.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedEmbedder{next: next, store: store, model: model, dims: dims, ttl: ttl, recorder: recorder, logger: log}
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := QueryKey(c.model, c.dims, text)

	var cached []float32
	found, err := c.store.GetJSON(ctx, key, &cached)
	if err != nil {
		c.logger.Debug("embedding cache read failed", zap.Error(err))
	}
	if found && len(cached) > 0 && (c.dims <= 0 || len(cached) == c.dims) {
		c.record(true)
		return cached, nil
	}
	c.record(false)

	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetJSON(ctx, key, vec, c.ttl); err != nil {
		c.logger.Debug("embedding cache write failed", zap.Error(err))
	}
	return vec, nil
}

func (c *CachedEmbedder) record(hit bool) {
	if c.recorder != nil {
		c.recorder.CacheLookup(hit)
	}
}

// QueryKey hashes whitespace-normalised text so equivalent queries share a key.
// Vectors of different models or dimensions never share one.
func QueryKey(model string, dims int, text string) string {
	norm := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(norm))
	return "embedding:query:" + model + ":" + strconv.Itoa(dims) + ":" + hex.EncodeToString(sum[:])
}
