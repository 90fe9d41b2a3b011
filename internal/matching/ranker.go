package matching

import (
	"math"
	"sort"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/utils"
)

const (
	skillBonusPoints = 15
	// MaxAIScore keeps AI scores below certainty.
	MaxAIScore = 95
)

// Ranked is a candidate with its enhanced AI-path score.
type Ranked struct {
	User         *collab.UserProfile
	Distance     float64
	VectorScore  int
	SkillMatches int
	Score        int
}

// Rank converts distances into scores, adds the skill bonus, sorts and keeps topK.
// Only the first declared role feeds the skill bonus.
func Rank(candidates []Candidate, project *collab.Project, topK int) []Ranked {
	var creatorID string
	var required []string
	if project != nil {
		creatorID = project.CreatorID
		if role := project.FirstRole(); role != nil {
			required = utils.NormalizeTerms(role.RequiredSkills)
		}
	}

	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if c.User == nil || c.User.ID == creatorID {
			continue
		}

		skills := utils.TermSet(c.User.Skills)
		matches := 0
		for _, skill := range required {
			if _, ok := skills[skill]; ok {
				matches++
			}
		}

		vectorScore := VectorScore(c.Distance)
		ranked = append(ranked, Ranked{
			User:         c.User,
			Distance:     c.Distance,
			VectorScore:  vectorScore,
			SkillMatches: matches,
			Score:        min(MaxAIScore, vectorScore+matches*skillBonusPoints),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.User.ID < b.User.ID
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// VectorScore maps a cosine distance onto 0..100.
func VectorScore(distance float64) int {
	if math.IsNaN(distance) {
		return 0
	}
	score := int(math.Round((1 - distance) * 100))
	return max(0, min(MaxScore, score))
}
