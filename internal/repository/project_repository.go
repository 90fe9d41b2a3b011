package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/database"
)

type ProjectRepository struct {
	db database.DB
}

func NewProjectRepository(db database.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*collab.Project, error) {
	p := &collab.Project{}
	var roles []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, title, problem_statement, solution, target_market, category, stage, creator_id, needed_roles
FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Title, &p.ProblemStatement, &p.Solution, &p.TargetMarket, &p.Category, &p.Stage, &p.CreatorID, &roles)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}

	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &p.NeededRoles); err != nil {
			return nil, fmt.Errorf("project %s: needed roles: %w", id, err)
		}
	}
	return p, nil
}
