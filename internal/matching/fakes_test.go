package matching

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/spigell/collab-matcher/internal/collab"
)

type fakeUsers struct {
	users []*collab.UserProfile
	err   error
	calls int
}

func (f *fakeUsers) ListOpenUsers(_ context.Context, exclude string) ([]*collab.UserProfile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	// Deliberately leaky: returns everyone so in-process filtering is exercised.
	return f.users, nil
}

type fakeStore struct {
	mu      sync.Mutex
	calls   int
	written []collab.MatchResult
	err     error
}

func (f *fakeStore) Upsert(_ context.Context, _ string, results []collab.MatchResult) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.written = append(f.written, results...)
	return len(results), nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
	last   string
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.last = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeIndex struct {
	hits  []Candidate
	err   error
	query SearchQuery
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, q SearchQuery) ([]Candidate, error) {
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

// fakeProfiles serves the current state of the user table.
type fakeProfiles struct {
	users map[string]*collab.UserProfile
	err   error
	asked []string
}

func (f *fakeProfiles) OpenUsersByID(_ context.Context, ids []string) (map[string]*collab.UserProfile, error) {
	f.asked = append(f.asked, ids...)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]*collab.UserProfile, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok && u.OpenToCollaboration {
			out[id] = u
		}
	}
	return out, nil
}

type fakeRetriever struct {
	candidates []Candidate
	err        error
	panicWith  any
	calls      int
}

func (f *fakeRetriever) Retrieve(context.Context, *collab.Project, string) ([]Candidate, error) {
	f.calls++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.candidates, f.err
}

// fakeCompleter fails for prompts naming any user in failFor.
type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	failFor   map[string]bool
	panicWith any
	calls     int
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	for name := range f.failFor {
		if strings.Contains(prompt, "- Name: "+name+"\n") {
			return "", errors.New("completion unavailable")
		}
	}
	return f.reply, nil
}

type recordedRun struct {
	path string
}

type fakeRecorder struct {
	mu           sync.Mutex
	runs         []recordedRun
	fallbacks    []string
	explanations []string
	persistFails int
}

func (f *fakeRecorder) MatchRun(path string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, recordedRun{path: path})
}

func (f *fakeRecorder) Fallback(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks = append(f.fallbacks, reason)
}

func (f *fakeRecorder) Explanation(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explanations = append(f.explanations, outcome)
}

func (f *fakeRecorder) PersistFailures(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistFails += n
}

func eduChat() *collab.Project {
	return &collab.Project{
		ID:               "p-educhat",
		Title:            "EduChat",
		ProblemStatement: "Students lack personalised tutoring",
		Solution:         "Chat-based tutor",
		TargetMarket:     "University students",
		Category:         "EdTech",
		Stage:            "Idea",
		CreatorID:        "creator",
		NeededRoles: []collab.RoleRequest{{
			Role:              "Designer",
			RequiredSkills:    []string{"UI/UX", "Figma"},
			Description:       "Passionate about EdTech",
			PreferredLocation: "Remote",
			Commitment:        "Part-time",
		}},
	}
}

func user(id string, open bool, skills ...string) *collab.UserProfile {
	return &collab.UserProfile{ID: id, Name: "name-" + id, OpenToCollaboration: open, Skills: skills}
}
