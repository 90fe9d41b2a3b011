package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/collab-matcher/internal/ai"
	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/logger"
	"github.com/spigell/collab-matcher/internal/utils"

	"go.uber.org/zap"
)

const (
	DefaultCandidateLimit = 100
	DefaultNumCandidates  = 200
)

// Candidate is a vector search hit. Distance is cosine distance, so lower is closer.
type Candidate struct {
	User     *collab.UserProfile
	Distance float64
}

// SearchQuery constrains a nearest-neighbour search. Implementations must
// only return users open to collaboration that have an embedding.
type SearchQuery struct {
	ExcludeUserID string
	Limit         int
	NumCandidates int
}

// VectorIndex is a nearest-neighbour store over profile embeddings.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, query SearchQuery) ([]Candidate, error)
}

// ProfileLookup loads the current profiles of users still open to
// collaboration. Ids that are missing or closed are absent from the result.
type ProfileLookup interface {
	OpenUsersByID(ctx context.Context, ids []string) (map[string]*collab.UserProfile, error)
}

// Retriever produces raw candidates for the AI pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, project *collab.Project, creatorID string) ([]Candidate, error)
}

// VectorRetriever embeds the project's composite text and searches the index with it.
type VectorRetriever struct {
	embedder      ai.QueryEmbedder
	index         VectorIndex
	limit         int
	numCandidates int
	maxLogLen     int
	profiles      ProfileLookup
	logger        *zap.Logger
}

func NewVectorRetriever(embedder ai.QueryEmbedder, index VectorIndex, limit, numCandidates int, logger *zap.Logger) *VectorRetriever {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	if numCandidates < limit {
		numCandidates = max(DefaultNumCandidates, limit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VectorRetriever{
		embedder:      embedder,
		index:         index,
		limit:         limit,
		numCandidates: numCandidates,
		maxLogLen:     200,
		logger:        logger,
	}
}

// WithProfiles makes Retrieve replace every hit with the profile currently
// held by profiles. Use it when the index stores copies of profiles that can
// go stale.
func (r *VectorRetriever) WithProfiles(profiles ProfileLookup) *VectorRetriever {
	r.profiles = profiles
	return r
}

// Retrieve returns up to limit candidates. Embedding and backend failures are
// returned as errors; an empty result is ErrNoCandidates.
func (r *VectorRetriever) Retrieve(ctx context.Context, project *collab.Project, creatorID string) ([]Candidate, error) {
	if r.embedder == nil || r.index == nil {
		return nil, ai.ErrNotConfigured
	}

	text := CompositeText(project)
	r.logger.Debug("embedding project query",
		zap.String("query_preview", utils.TruncateForLog(text, r.maxLogLen)),
	)

	vector, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	hits, err := r.index.Search(ctx, vector, SearchQuery{
		ExcludeUserID: creatorID,
		Limit:         r.limit,
		NumCandidates: r.numCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if r.profiles != nil {
		if hits, err = r.refresh(ctx, hits); err != nil {
			return nil, err
		}
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		if hit.User == nil || hit.User.ID == creatorID || !hit.User.OpenToCollaboration {
			continue
		}
		candidates = append(candidates, hit)
		if len(candidates) == r.limit {
			break
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	return candidates, nil
}

func (r *VectorRetriever) refresh(ctx context.Context, hits []Candidate) ([]Candidate, error) {
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.User != nil {
			ids = append(ids, hit.User.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	current, err := r.profiles.OpenUsersByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("refresh candidate profiles: %w", err)
	}

	fresh := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		if hit.User == nil {
			continue
		}
		u, ok := current[hit.User.ID]
		if !ok || u == nil {
			r.logger.Debug("dropping stale candidate", logger.User(hit.User.ID))
			continue
		}
		fresh = append(fresh, Candidate{User: u, Distance: hit.Distance})
	}
	return fresh, nil
}

// CompositeText is the single semantic anchor for a whole project: its pitch
// followed by every requested role.
func CompositeText(project *collab.Project) string {
	if project == nil {
		return ""
	}

	parts := []string{
		project.Title,
		project.ProblemStatement,
		project.Solution,
		project.TargetMarket,
		project.Category,
		project.Stage,
	}

	for _, role := range project.NeededRoles {
		parts = append(parts,
			role.Role,
			strings.Join(role.RequiredSkills, " "),
			role.Description,
			role.PreferredLocation,
			role.Commitment,
		)
	}

	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}

	return strings.Join(kept, " ")
}
