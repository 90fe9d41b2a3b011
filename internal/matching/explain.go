package matching

import (
	"context"
	"strconv"
	"strings"

	_ "embed"

	"github.com/spigell/collab-matcher/internal/ai"
	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/logger"
	"github.com/spigell/collab-matcher/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed prompt.md
var promptTemplate string

const (
	DefaultExplainConcurrency = 4
	maxExplanationLength      = 600
	notProvided               = "not provided"
)

// Explainer asks the completion service for a short rationale per finalist.
// Explanations are cosmetic: failures yield nil and never affect scores.
type Explainer struct {
	completer   ai.Completer
	concurrency int
	recorder    Recorder
	logger      *zap.Logger
}

func NewExplainer(completer ai.Completer, concurrency int, log *zap.Logger, recorder Recorder) *Explainer {
	if concurrency <= 0 {
		concurrency = DefaultExplainConcurrency
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Explainer{
		completer:   completer,
		concurrency: concurrency,
		recorder:    recorder,
		logger:      logger.WithFields(log),
	}
}

// Explain returns the rationale for one candidate, or nil when generation
// fails. A panicking completer counts as a failure.
func (e *Explainer) Explain(ctx context.Context, candidate Ranked, project *collab.Project) (explanation *string) {
	if e == nil || e.completer == nil || candidate.User == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			e.recorder.Explanation(ExplanationFailed)
			e.logger.Error("explanation generation panicked",
				logger.User(candidate.User.ID),
				zap.Any("panic", r),
			)
			explanation = nil
		}
	}()

	text, err := e.completer.Complete(ctx, BuildExplanationPrompt(candidate, project))
	if err != nil {
		e.recorder.Explanation(ExplanationFailed)
		e.logger.Warn("explanation generation failed",
			logger.User(candidate.User.ID),
			zap.Error(err),
		)
		return nil
	}

	cleaned := cleanExplanation(text)
	if cleaned == "" {
		e.recorder.Explanation(ExplanationEmpty)
		return nil
	}

	e.recorder.Explanation(ExplanationOK)
	return &cleaned
}

// ExplainAll explains every finalist concurrently; the result is index-aligned
// with finalists.
func (e *Explainer) ExplainAll(ctx context.Context, finalists []Ranked, project *collab.Project) []*string {
	out := make([]*string, len(finalists))
	if e == nil || e.completer == nil || len(finalists) == 0 {
		return out
	}

	var group errgroup.Group
	group.SetLimit(e.concurrency)
	for i := range finalists {
		group.Go(func() error {
			out[i] = e.Explain(ctx, finalists[i], project)
			return nil
		})
	}
	_ = group.Wait()

	return out
}

// BuildExplanationPrompt fills the embedded template for one candidate.
func BuildExplanationPrompt(candidate Ranked, project *collab.Project) string {
	if project == nil {
		project = &collab.Project{}
	}
	role := project.FirstRole()
	if role == nil {
		role = &collab.RoleRequest{}
	}
	user := candidate.User
	if user == nil {
		user = &collab.UserProfile{}
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Project: {{PROJECT_TITLE}}\nRole: {{ROLE}}\nCandidate: {{CANDIDATE_NAME}} ({{CANDIDATE_SKILLS}})\nExplain the fit in two sentences."
	}

	replacer := strings.NewReplacer(
		"{{PROJECT_TITLE}}", orNotProvided(project.Title),
		"{{PROJECT_PROBLEM}}", orNotProvided(project.ProblemStatement),
		"{{PROJECT_SOLUTION}}", orNotProvided(project.Solution),
		"{{PROJECT_CATEGORY}}", orNotProvided(project.Category),
		"{{ROLE}}", orNotProvided(role.Role),
		"{{ROLE_SKILLS}}", joinOrNotProvided(role.RequiredSkills),
		"{{ROLE_DESCRIPTION}}", orNotProvided(role.Description),
		"{{ROLE_LOCATION}}", orNotProvided(role.PreferredLocation),
		"{{ROLE_COMMITMENT}}", orNotProvided(role.Commitment),
		"{{CANDIDATE_NAME}}", orNotProvided(user.Name),
		"{{CANDIDATE_SKILLS}}", joinOrNotProvided(user.Skills),
		"{{CANDIDATE_INTERESTS}}", joinOrNotProvided(user.Interests),
		"{{CANDIDATE_EXPERTISE}}", joinOrNotProvided(user.Expertise),
		"{{CANDIDATE_LOCATION}}", orNotProvided(user.Location),
		"{{CANDIDATE_COMMITMENT}}", orNotProvided(user.CollaborationProfile.CommitmentLevel),
		"{{SKILL_MATCHES}}", strconv.Itoa(candidate.SkillMatches),
	)

	return replacer.Replace(template)
}

func cleanExplanation(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```text")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx != -1 {
			text = text[:idx]
		}
	}
	text = strings.Trim(strings.TrimSpace(text), "\"`")
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	return utils.TruncateForLog(text, maxExplanationLength)
}

func orNotProvided(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return notProvided
	}
	return s
}

func joinOrNotProvided(values []string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return orNotProvided(strings.Join(kept, ", "))
}
