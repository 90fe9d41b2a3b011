package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spigell/collab-matcher/internal/collab"
)

// MemoryMatchStore keeps matches in process. It backs offline runs.
type MemoryMatchStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]collab.MatchResult
}

func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{rows: map[string]map[string]collab.MatchResult{}}
}

func (s *MemoryMatchStore) Upsert(_ context.Context, projectID string, results []collab.MatchResult) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.rows[projectID]
	if !ok {
		byUser = map[string]collab.MatchResult{}
		s.rows[projectID] = byUser
	}
	for _, m := range results {
		m.ProjectID = projectID
		if prev, ok := byUser[m.UserID]; ok {
			m.Read = prev.Read
			m.CreatedAt = prev.CreatedAt
		} else {
			m.Read = false
		}
		byUser[m.UserID] = m
	}
	return len(results), nil
}

func (s *MemoryMatchStore) ListByProject(_ context.Context, projectID string) ([]collab.MatchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]collab.MatchResult, 0, len(s.rows[projectID]))
	for _, m := range s.rows[projectID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
