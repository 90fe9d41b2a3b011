// Package vector holds the non-SQL candidate indexes: an in-process cosine
// index for offline runs and an Elasticsearch kNN index.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/matching"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Memory keeps a user pool in process. It serves as user source, vector
// index and embedding sink for offline runs.
type Memory struct {
	mu    sync.RWMutex
	users []*collab.UserProfile
}

func NewMemory(users []*collab.UserProfile) *Memory {
	pool := make([]*collab.UserProfile, 0, len(users))
	for _, u := range users {
		if u != nil {
			pool = append(pool, u)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return &Memory{users: pool}
}

func (m *Memory) ListOpenUsers(_ context.Context, excludeUserID string) ([]*collab.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*collab.UserProfile, 0, len(m.users))
	for _, u := range m.users {
		if u.OpenToCollaboration && u.ID != excludeUserID {
			out = append(out, u)
		}
	}
	return out, nil
}

// Search is an exact scan ordered by cosine distance, then user id.
func (m *Memory) Search(_ context.Context, vec []float32, q matching.SearchQuery) ([]matching.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []matching.Candidate
	for _, u := range m.users {
		if !u.OpenToCollaboration || !u.HasEmbedding() || u.ID == q.ExcludeUserID {
			continue
		}
		if len(u.ProfileEmbedding) != len(vec) {
			return nil, fmt.Errorf("user %s: %w: %d != %d", u.ID, ErrDimensionMismatch, len(u.ProfileEmbedding), len(vec))
		}
		out = append(out, matching.Candidate{User: u, Distance: CosineDistance(vec, u.ProfileEmbedding)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].User.ID < out[j].User.ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) ListForEmbedding(_ context.Context, all bool, afterID string, limit int) ([]*collab.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*collab.UserProfile
	for _, u := range m.users {
		if u.ID <= afterID {
			continue
		}
		if !all && u.HasEmbedding() && u.EmbeddingUpdatedAt != nil && !u.EmbeddingUpdatedAt.Before(u.UpdatedAt) {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) SaveEmbedding(_ context.Context, userID string, embedding []float32, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.ID == userID {
			u.ProfileEmbedding = append([]float32(nil), embedding...)
			stamp := at.UTC()
			u.EmbeddingUpdatedAt = &stamp
			return nil
		}
	}
	return fmt.Errorf("user %s not found", userID)
}

// CosineDistance is 1 - cos(a, b). A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
