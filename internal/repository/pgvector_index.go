package repository

import (
	"context"
	"fmt"

	"github.com/spigell/collab-matcher/internal/database"
	"github.com/spigell/collab-matcher/internal/matching"

	"github.com/pgvector/pgvector-go"
)

// PGVectorIndex runs cosine-distance kNN over users.profile_embedding.
type PGVectorIndex struct {
	db database.DB
}

func NewPGVectorIndex(db database.DB) *PGVectorIndex {
	return &PGVectorIndex{db: db}
}

// Search widens the HNSW candidate list to NumCandidates for this query only.
func (x *PGVectorIndex) Search(ctx context.Context, vec []float32, q matching.SearchQuery) ([]matching.Candidate, error) {
	tx, err := x.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin vector search: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if q.NumCandidates > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", q.NumCandidates)); err != nil {
			return nil, fmt.Errorf("set ef_search: %w", err)
		}
	}

	rows, err := tx.Query(ctx,
		`SELECT `+userColumns+`, profile_embedding <=> $1 AS distance
FROM users
WHERE open_to_collaboration AND profile_embedding IS NOT NULL AND id <> $2
ORDER BY profile_embedding <=> $1
LIMIT $3`,
		pgvector.NewVector(vec), q.ExcludeUserID, q.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []matching.Candidate
	for rows.Next() {
		var distance float64
		u, err := scanUser(rows.Scan, &distance)
		if err != nil {
			return nil, err
		}
		out = append(out, matching.Candidate{User: u, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, tx.Commit(ctx)
}
