package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/database"

	"github.com/pgvector/pgvector-go"
)

const userColumns = `id, name, skills, interests, expertise, location, open_to_collaboration, collaboration_profile, embedding_updated_at, updated_at`

// UserRepository reads profiles and writes their embeddings.
type UserRepository struct {
	db database.DB
}

func NewUserRepository(db database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ListOpenUsers returns users open to collaboration, except excludeUserID.
func (r *UserRepository) ListOpenUsers(ctx context.Context, excludeUserID string) ([]*collab.UserProfile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE open_to_collaboration AND id <> $1 ORDER BY id`,
		excludeUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("list open users: %w", err)
	}
	return collectUsers(rows)
}

// OpenUsersByID returns the current profiles of ids that are still open to
// collaboration, keyed by id.
func (r *UserRepository) OpenUsersByID(ctx context.Context, ids []string) (map[string]*collab.UserProfile, error) {
	if len(ids) == 0 {
		return map[string]*collab.UserProfile{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE open_to_collaboration AND id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("load users by id: %w", err)
	}
	users, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*collab.UserProfile, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// ListForEmbedding pages through users by id. Without all, only users whose
// embedding is missing or older than the profile are returned.
func (r *UserRepository) ListForEmbedding(ctx context.Context, all bool, afterID string, limit int) ([]*collab.UserProfile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users
WHERE id > $1 AND ($2 OR profile_embedding IS NULL OR embedding_updated_at IS NULL OR embedding_updated_at < updated_at)
ORDER BY id
LIMIT $3`,
		afterID, all, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list users for embedding: %w", err)
	}
	return collectUsers(rows)
}

// SaveEmbedding stores a profile vector and stamps when it was computed.
func (r *UserRepository) SaveEmbedding(ctx context.Context, userID string, embedding []float32, at time.Time) error {
	n, err := r.db.Exec(ctx,
		`UPDATE users SET profile_embedding = $2, embedding_updated_at = $3 WHERE id = $1`,
		userID, pgvector.NewVector(embedding), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save embedding for %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func collectUsers(rows database.Rows) ([]*collab.UserProfile, error) {
	defer rows.Close()

	var users []*collab.UserProfile
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// scanUser reads userColumns followed by any extra destinations.
func scanUser(scan func(dest ...any) error, extra ...any) (*collab.UserProfile, error) {
	u := &collab.UserProfile{}
	var profile []byte
	dest := append([]any{
		&u.ID, &u.Name, &u.Skills, &u.Interests, &u.Expertise, &u.Location,
		&u.OpenToCollaboration, &profile, &u.EmbeddingUpdatedAt, &u.UpdatedAt,
	}, extra...)
	if err := scan(dest...); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.CollaborationProfile); err != nil {
			return nil, fmt.Errorf("user %s: collaboration profile: %w", u.ID, err)
		}
	}
	return u, nil
}
