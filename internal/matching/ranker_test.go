package matching

import (
	"testing"

	"github.com/spigell/collab-matcher/internal/collab"
)

func TestRankCapsAndBonusesFromFirstRoleOnly(t *testing.T) {
	project := eduChat()
	project.NeededRoles = append(project.NeededRoles, collab.RoleRequest{
		Role:           "Backend",
		RequiredSkills: []string{"Go", "SQL"},
	})

	candidates := []Candidate{
		{User: user("designer", true, "figma", "ui/ux"), Distance: 0.1},
		{User: user("backend", true, "Go", "SQL"), Distance: 0.2},
		{User: user("half", true, "Figma"), Distance: 0.3},
	}

	ranked := Rank(candidates, project, 10)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked candidates, got %d", len(ranked))
	}

	byID := map[string]Ranked{}
	for _, r := range ranked {
		if r.Score > MaxAIScore {
			t.Fatalf("score above cap: %+v", r)
		}
		byID[r.User.ID] = r
	}

	if got := byID["designer"]; got.VectorScore != 90 || got.SkillMatches != 2 || got.Score != MaxAIScore {
		t.Fatalf("unexpected designer ranking: %+v", got)
	}
	if got := byID["backend"]; got.SkillMatches != 0 || got.Score != 80 {
		t.Fatalf("second role skills must not earn a bonus: %+v", got)
	}
	if got := byID["half"]; got.Score != 85 {
		t.Fatalf("expected 70 + 15 = 85, got %+v", got)
	}

	order := []string{"designer", "half", "backend"}
	for i, id := range order {
		if ranked[i].User.ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, ranked[i].User.ID)
		}
	}
}

func TestRankTieBreaksByDistanceThenID(t *testing.T) {
	project := &collab.Project{CreatorID: "creator", NeededRoles: []collab.RoleRequest{{Role: "Any"}}}

	candidates := []Candidate{
		{User: user("b", true), Distance: 0.204},
		{User: user("a", true), Distance: 0.204},
		{User: user("c", true), Distance: 0.196},
	}

	ranked := Rank(candidates, project, 10)
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if ranked[i].User.ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, ranked[i].User.ID)
		}
		if ranked[i].Score != 80 {
			t.Fatalf("expected all scores to round to 80, got %d", ranked[i].Score)
		}
	}
}

func TestRankExcludesCreatorAndTruncates(t *testing.T) {
	project := eduChat()
	candidates := []Candidate{
		{User: user("creator", true, "Figma"), Distance: 0},
		{User: nil, Distance: 0},
		{User: user("u1", true), Distance: 0.1},
		{User: user("u2", true), Distance: 0.2},
		{User: user("u3", true), Distance: 0.3},
	}

	ranked := Rank(candidates, project, 2)
	if len(ranked) != 2 {
		t.Fatalf("expected topK results, got %d", len(ranked))
	}
	for _, r := range ranked {
		if r.User.ID == "creator" {
			t.Fatal("creator must never be ranked")
		}
	}
}

func TestVectorScoreClamps(t *testing.T) {
	t.Parallel()

	cases := map[float64]int{
		0:    100,
		0.25: 75,
		1:    0,
		1.6:  0,
		-0.2: 100,
	}
	for distance, want := range cases {
		if got := VectorScore(distance); got != want {
			t.Fatalf("distance %v: expected %d, got %d", distance, want, got)
		}
	}
}
