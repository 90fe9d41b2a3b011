package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/logger"

	"go.uber.org/zap"
)

// UserSource lists candidate collaborators for the fallback pipeline.
type UserSource interface {
	// ListOpenUsers returns users open to collaboration, excluding excludeUserID.
	ListOpenUsers(ctx context.Context, excludeUserID string) ([]*collab.UserProfile, error)
}

// MatchStore persists match results keyed by (project, user).
type MatchStore interface {
	// Upsert writes every result it can and reports how many succeeded.
	// A non-nil error describes the rows that failed.
	Upsert(ctx context.Context, projectID string, results []collab.MatchResult) (int, error)
}

// KeywordMatcher is the deterministic, network-free matching pipeline.
type KeywordMatcher struct {
	users     UserSource
	persister persister
	logger    *zap.Logger
	now       func() time.Time
}

func NewKeywordMatcher(users UserSource, store MatchStore, log *zap.Logger, recorder Recorder) *KeywordMatcher {
	log = logger.WithFields(log, logger.Path(PathFallback))
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &KeywordMatcher{
		users:     users,
		persister: persister{store: store, recorder: recorder},
		logger:    log,
		now:       time.Now,
	}
}

// MatchFallback ranks the open user pool against the project's roles,
// persists the top results and returns them. Only UserSource errors are returned.
func (k *KeywordMatcher) MatchFallback(ctx context.Context, project *collab.Project, topK int) ([]collab.MatchResult, error) {
	results, err := k.Rank(ctx, project, topK)
	if err != nil {
		return nil, err
	}

	k.persister.persist(ctx, project.ID, results, k.logger)
	return results, nil
}

// Rank computes fallback results without persisting them.
func (k *KeywordMatcher) Rank(ctx context.Context, project *collab.Project, topK int) ([]collab.MatchResult, error) {
	if project == nil || len(project.NeededRoles) == 0 {
		return []collab.MatchResult{}, nil
	}
	if k.users == nil {
		return nil, fmt.Errorf("fallback matching: user source is not configured")
	}

	users, err := k.users.ListOpenUsers(ctx, project.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("list open users: %w", err)
	}

	now := k.now().UTC()
	results := make([]collab.MatchResult, 0, len(users))
	for _, user := range users {
		if user == nil || !user.OpenToCollaboration || user.ID == project.CreatorID {
			continue
		}

		bestScore, bestRole := 0, ""
		for i := range project.NeededRoles {
			role := &project.NeededRoles[i]
			if score := Score(user, role); score > bestScore {
				bestScore, bestRole = score, role.Role
			}
		}
		if bestScore == 0 {
			continue
		}

		results = append(results, collab.MatchResult{
			ProjectID: project.ID,
			UserID:    user.ID,
			UserName:  user.Name,
			Role:      bestRole,
			Score:     bestScore,
			Type:      collab.MatchTypeFallback,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UserID < results[j].UserID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	k.logger.Debug("fallback ranking complete",
		zap.String(logger.FieldProjectID, project.ID),
		zap.Int("pool", len(users)),
		zap.Int("matches", len(results)),
	)

	return results, nil
}

type persister struct {
	store    MatchStore
	recorder Recorder
}

// persist never fails the caller: partial or total write failures are logged
// and counted.
func (p persister) persist(ctx context.Context, projectID string, results []collab.MatchResult, log *zap.Logger) {
	if p.store == nil || len(results) == 0 {
		return
	}

	written, err := p.store.Upsert(ctx, projectID, results)
	if err != nil {
		failed := len(results) - written
		p.recorder.PersistFailures(failed)
		log.Warn("persisting matches failed",
			zap.String(logger.FieldProjectID, projectID),
			zap.Int("written", written),
			zap.Int("failed", failed),
			zap.Error(err),
		)
		return
	}

	log.Debug("matches persisted",
		zap.String(logger.FieldProjectID, projectID),
		zap.Int("written", written),
	)
}
