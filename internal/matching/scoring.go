package matching

import (
	"math"
	"strings"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/utils"
)

const (
	skillPoints      = 5
	interestPoints   = 4
	expertisePoints  = 3
	locationPoints   = 3
	commitmentPoints = 3
	openPoints       = 2

	// MinSurfacedScore is the floor applied to any positive fallback score.
	MinSurfacedScore = 25
	MaxScore         = 100
)

// Score rates how well user fits role on a 0..100 scale. Zero means no match.
//
// Expertise overlapping a required skill is credited on top of the skill
// match itself; the double credit is intentional until product decides otherwise.
func Score(user *collab.UserProfile, role *collab.RoleRequest) int {
	if user == nil || role == nil {
		return 0
	}

	skills := utils.TermSet(user.Skills)
	expertise := utils.TermSet(user.Expertise)
	required := utils.NormalizeTerms(role.RequiredSkills)
	interests := utils.NormalizeTerms(user.Interests)

	raw := 0
	for _, skill := range required {
		if _, ok := skills[skill]; ok {
			raw += skillPoints
		}
		if _, ok := expertise[skill]; ok {
			raw += expertisePoints
		}
	}

	if description := strings.ToLower(strings.TrimSpace(role.Description)); description != "" {
		for _, interest := range interests {
			if strings.Contains(description, interest) {
				raw += interestPoints
			}
		}
	}

	location := strings.ToLower(strings.TrimSpace(user.Location))
	preferred := strings.ToLower(strings.TrimSpace(role.PreferredLocation))
	if location != "" && preferred != "" && strings.Contains(location, preferred) {
		raw += locationPoints
	}

	commitment := strings.TrimSpace(user.CollaborationProfile.CommitmentLevel)
	if commitment != "" && commitment == strings.TrimSpace(role.Commitment) {
		raw += commitmentPoints
	}

	if user.OpenToCollaboration {
		raw += openPoints
	}

	maxPossible := (skillPoints+expertisePoints)*len(required) +
		interestPoints*len(interests) +
		locationPoints + commitmentPoints + openPoints

	return normalize(raw, maxPossible)
}

func normalize(raw, maxPossible int) int {
	if raw <= 0 || maxPossible <= 0 {
		return 0
	}

	score := int(math.Round(100 * float64(raw) / float64(maxPossible)))
	switch {
	case score <= 0:
		return 0
	case score < MinSurfacedScore:
		return MinSurfacedScore
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}
