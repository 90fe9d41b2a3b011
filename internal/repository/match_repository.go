package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/database"
	"github.com/spigell/collab-matcher/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const upsertMatchSQL = `
INSERT INTO project_matches (id, project_id, user_id, role, score, explanation, match_type, read, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $8)
ON CONFLICT (project_id, user_id) DO UPDATE SET
	role = EXCLUDED.role,
	score = EXCLUDED.score,
	explanation = EXCLUDED.explanation,
	match_type = EXCLUDED.match_type,
	updated_at = EXCLUDED.updated_at`

const listMatchesSQL = `
SELECT m.project_id, m.user_id, COALESCE(u.name, ''), m.role, m.score, m.explanation, m.match_type, m.read, m.created_at, m.updated_at
FROM project_matches m
LEFT JOIN users u ON u.id = m.user_id
WHERE m.project_id = $1
ORDER BY m.score DESC, m.user_id ASC`

// MatchRepository stores match results in project_matches.
type MatchRepository struct {
	db     database.DB
	logger *zap.Logger
	newID  func() uuid.UUID
	now    func() time.Time
}

func NewMatchRepository(db database.DB, log *zap.Logger) *MatchRepository {
	return &MatchRepository{
		db:     db,
		logger: logger.WithFields(log),
		newID:  uuid.New,
		now:    time.Now,
	}
}

// Upsert writes every row independently. A failing row is logged and the
// rest continue; all failures come back joined under ErrPersistence.
func (r *MatchRepository) Upsert(ctx context.Context, projectID string, results []collab.MatchResult) (int, error) {
	var errs []error
	written := 0

	for _, m := range results {
		at := m.UpdatedAt
		if at.IsZero() {
			at = r.now().UTC()
		}
		_, err := r.db.Exec(ctx, upsertMatchSQL,
			r.newID(), projectID, m.UserID, m.Role, m.Score, m.Explanation, string(m.Type), at,
		)
		if err != nil {
			r.logger.Warn("match row not persisted",
				zap.String(logger.FieldProjectID, projectID),
				zap.String(logger.FieldUserID, m.UserID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("user %s: %w", m.UserID, err))
			continue
		}
		written++
	}

	if len(errs) > 0 {
		return written, fmt.Errorf("%w: %w", ErrPersistence, errors.Join(errs...))
	}
	return written, nil
}

// ListByProject returns the stored matches, best first.
func (r *MatchRepository) ListByProject(ctx context.Context, projectID string) ([]collab.MatchResult, error) {
	rows, err := r.db.Query(ctx, listMatchesSQL, projectID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	out := []collab.MatchResult{}
	for rows.Next() {
		var m collab.MatchResult
		var matchType string
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.UserName, &m.Role, &m.Score, &m.Explanation, &matchType, &m.Read, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Type = collab.MatchType(matchType)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return out, nil
}
