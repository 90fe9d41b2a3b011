package matching

import (
	"math/rand"
	"testing"

	"github.com/spigell/collab-matcher/internal/collab"
)

func TestScoreEduChatDesigner(t *testing.T) {
	role := &eduChat().NeededRoles[0]
	candidate := &collab.UserProfile{
		ID:                   "a",
		Skills:               []string{"Figma", "UI/UX"},
		Interests:            []string{"EdTech"},
		Location:             "Remote",
		OpenToCollaboration:  true,
		CollaborationProfile: collab.CollaborationProfile{CommitmentLevel: "Part-time"},
	}

	// raw = 5+5 + 4 + 3 + 3 + 2 = 22; maxPossible = 8*2 + 4*1 + 8 = 28.
	if got := Score(candidate, role); got != 79 {
		t.Fatalf("expected 79, got %d", got)
	}
}

func TestScoreZeroCase(t *testing.T) {
	role := &eduChat().NeededRoles[0]
	candidate := &collab.UserProfile{
		ID:                   "b",
		Skills:               []string{"Accounting"},
		Interests:            []string{"Fintech"},
		Expertise:            []string{"Tax"},
		Location:             "Berlin",
		CollaborationProfile: collab.CollaborationProfile{CommitmentLevel: "Full-time"},
	}

	if got := Score(candidate, role); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestScoreOpenCandidateWithoutOverlapIsFloored(t *testing.T) {
	role := &eduChat().NeededRoles[0]
	candidate := &collab.UserProfile{
		ID:                  "b",
		Skills:              []string{"Accounting"},
		Interests:           []string{"Fintech"},
		Location:            "Berlin",
		OpenToCollaboration: true,
	}

	// raw = 2 of 28 -> 7 before flooring.
	if got := Score(candidate, role); got != MinSurfacedScore {
		t.Fatalf("expected %d, got %d", MinSurfacedScore, got)
	}
}

func TestScoreFloorsWeakPositiveSignal(t *testing.T) {
	role := &collab.RoleRequest{Role: "Backend", RequiredSkills: []string{"Go", "SQL", "Kafka", "Redis"}}

	// raw = 5 + 2 = 7 of 40 -> 18 before flooring.
	got := Score(user("c", true, "go"), role)
	if got != MinSurfacedScore {
		t.Fatalf("expected floor %d, got %d", MinSurfacedScore, got)
	}

	// the open-to-collaboration bonus alone is a positive signal.
	if got := Score(user("d", true), role); got != MinSurfacedScore {
		t.Fatalf("expected open-only user floored to %d, got %d", MinSurfacedScore, got)
	}
}

func TestScoreDoubleCreditsExpertise(t *testing.T) {
	role := &collab.RoleRequest{RequiredSkills: []string{"Figma"}}

	skillOnly := Score(&collab.UserProfile{Skills: []string{"figma"}}, role)
	both := Score(&collab.UserProfile{Skills: []string{"figma"}, Expertise: []string{"FIGMA"}}, role)

	// 5/16 -> 31 and 8/16 -> 50.
	if skillOnly != 31 || both != 50 {
		t.Fatalf("expected 31 and 50, got %d and %d", skillOnly, both)
	}
}

func TestScoreAttributeRules(t *testing.T) {
	t.Parallel()

	base := collab.RoleRequest{
		RequiredSkills:    []string{"Go"},
		Description:       "Build our EdTech backend",
		PreferredLocation: "Berlin",
		Commitment:        "Part-time",
	}

	cases := []struct {
		name   string
		user   collab.UserProfile
		role   collab.RoleRequest
		expect int
	}{
		{
			name:   "location substring is case-insensitive",
			user:   collab.UserProfile{Location: "berlin, germany"},
			role:   base,
			expect: 25, // 3/16 -> 19, floored
		},
		{
			name:   "empty preferred location never matches",
			user:   collab.UserProfile{Location: "Berlin"},
			role:   collab.RoleRequest{RequiredSkills: []string{"Go"}},
			expect: 0,
		},
		{
			name:   "commitment must match exactly",
			user:   collab.UserProfile{CollaborationProfile: collab.CollaborationProfile{CommitmentLevel: "part-time"}},
			role:   base,
			expect: 0,
		},
		{
			name:   "empty interests are ignored",
			user:   collab.UserProfile{Interests: []string{"", "  "}},
			role:   base,
			expect: 0,
		},
		{
			name:   "every matching interest counts",
			user:   collab.UserProfile{Interests: []string{"edtech", "backend", "gaming"}, Skills: []string{"GO"}},
			role:   base,
			expect: 46, // 5 + 4 + 4 = 13 of 8 + 12 + 8 = 28
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Score(&tc.user, &tc.role); got != tc.expect {
				t.Fatalf("expected %d, got %d", tc.expect, got)
			}
		})
	}
}

func TestScoreNilInputs(t *testing.T) {
	if Score(nil, &collab.RoleRequest{}) != 0 || Score(&collab.UserProfile{}, nil) != 0 {
		t.Fatal("expected nil inputs to score 0")
	}
}

func TestScoreBoundsAndDeterminism(t *testing.T) {
	vocabulary := []string{"Go", "figma", "UI/UX", "SQL", "edtech", "fintech", "ml", "Remote", "Berlin"}
	rng := rand.New(rand.NewSource(7))
	pick := func() []string {
		out := make([]string, rng.Intn(4))
		for i := range out {
			out[i] = vocabulary[rng.Intn(len(vocabulary))]
		}
		return out
	}

	for i := 0; i < 500; i++ {
		u := &collab.UserProfile{
			Skills:              pick(),
			Interests:           pick(),
			Expertise:           pick(),
			Location:            vocabulary[rng.Intn(len(vocabulary))],
			OpenToCollaboration: rng.Intn(2) == 0,
		}
		r := &collab.RoleRequest{
			RequiredSkills:    pick(),
			Description:       "We build edtech and fintech tools in Go",
			PreferredLocation: vocabulary[rng.Intn(len(vocabulary))],
		}

		first := Score(u, r)
		if first < 0 || first > MaxScore {
			t.Fatalf("score out of bounds: %d", first)
		}
		if first > 0 && first < MinSurfacedScore {
			t.Fatalf("positive score below floor: %d", first)
		}
		if again := Score(u, r); again != first {
			t.Fatalf("score is not deterministic: %d != %d", first, again)
		}
	}
}
