// Package collab holds the domain records consumed and produced by matching.
package collab

import "time"

// MatchType tags which pipeline produced a result. Scores of different types
// are not directly comparable.
type MatchType string

const (
	MatchTypeAI       MatchType = "ai"
	MatchTypeFallback MatchType = "fallback"
)

// RoleRequest is one open role declared on a project.
type RoleRequest struct {
	Role              string   `json:"role"`
	RequiredSkills    []string `json:"required_skills"`
	Description       string   `json:"description"`
	PreferredLocation string   `json:"preferred_location"`
	Commitment        string   `json:"commitment"`
}

type Project struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	ProblemStatement string        `json:"problem_statement"`
	Solution         string        `json:"solution"`
	TargetMarket     string        `json:"target_market"`
	Category         string        `json:"category"`
	Stage            string        `json:"stage"`
	CreatorID        string        `json:"creator_id"`
	NeededRoles      []RoleRequest `json:"needed_roles"`
}

// FirstRole returns the first declared role, or nil when none exist.
func (p *Project) FirstRole() *RoleRequest {
	if p == nil || len(p.NeededRoles) == 0 {
		return nil
	}
	return &p.NeededRoles[0]
}

// CollaborationProfile carries the optional soft attributes of a user.
type CollaborationProfile struct {
	CommitmentLevel     string   `json:"commitment_level,omitempty" mapstructure:"commitment_level"`
	Availability        string   `json:"availability,omitempty" mapstructure:"availability"`
	PreferredIndustries []string `json:"preferred_industries,omitempty" mapstructure:"preferred_industries"`
	WorkStyle           string   `json:"work_style,omitempty" mapstructure:"work_style"`
	PersonalityTraits   []string `json:"personality_traits,omitempty" mapstructure:"personality_traits"`
	LookingFor          []string `json:"looking_for,omitempty" mapstructure:"looking_for"`
}

type UserProfile struct {
	ID                   string               `json:"id"`
	Name                 string               `json:"name"`
	Skills               []string             `json:"skills"`
	Interests            []string             `json:"interests"`
	Expertise            []string             `json:"expertise"`
	Location             string               `json:"location"`
	OpenToCollaboration  bool                 `json:"open_to_collaboration"`
	CollaborationProfile CollaborationProfile `json:"collaboration_profile"`
	// ProfileEmbedding is refreshed out of band; users without one are
	// invisible to vector search but still eligible for fallback matching.
	ProfileEmbedding   []float32  `json:"profile_embedding,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at,omitempty"`
	EmbeddingUpdatedAt *time.Time `json:"embedding_updated_at,omitempty"`
}

// HasEmbedding reports whether the profile can take part in vector search.
func (u *UserProfile) HasEmbedding() bool {
	return u != nil && len(u.ProfileEmbedding) > 0
}

// MatchResult is one persisted (project, user) match.
type MatchResult struct {
	ProjectID   string    `json:"project_id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name,omitempty"`
	Role        string    `json:"role"`
	Score       int       `json:"score"`
	Explanation *string   `json:"explanation"`
	Type        MatchType `json:"type"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
