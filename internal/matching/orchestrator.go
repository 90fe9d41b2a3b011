package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/collab-matcher/internal/ai"
	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultTopK = 10
	tracerName  = "github.com/spigell/collab-matcher/internal/matching"
)

// Stage names an orchestrator state. States are per invocation and never persisted.
type Stage string

const (
	StageStart           Stage = "start"
	StageAIRetrieve      Stage = "ai_retrieve"
	StageAIRank          Stage = "ai_rank"
	StageAIExplain       Stage = "ai_explain"
	StagePersistAI       Stage = "persist_ai"
	StageFallback        Stage = "fallback"
	StagePersistFallback Stage = "persist_fallback"
	StageDone            Stage = "done"
)

// Config controls which pipeline the orchestrator prefers.
type Config struct {
	AIEnabled          bool
	DefaultTopK        int
	ExplainConcurrency int
}

// Deps aggregates the collaborators of the orchestrator. Retriever and
// Completer may be nil, in which case the AI path is unavailable or
// explanations are skipped respectively.
type Deps struct {
	Users     UserSource
	Store     MatchStore
	Retriever Retriever
	Completer ai.Completer
	Logger    *zap.Logger
	Recorder  Recorder
	Tracer    trace.Tracer
}

// Orchestrator is the single entry point for matching a project.
type Orchestrator struct {
	aiEnabled   bool
	defaultTopK int

	retriever Retriever
	explainer *Explainer
	keyword   *KeywordMatcher
	persister persister

	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	log := logger.WithFields(deps.Logger)
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	o := &Orchestrator{
		aiEnabled:   cfg.AIEnabled,
		defaultTopK: topK,
		retriever:   deps.Retriever,
		keyword:     NewKeywordMatcher(deps.Users, deps.Store, log, recorder),
		persister:   persister{store: deps.Store, recorder: recorder},
		recorder:    recorder,
		tracer:      tracer,
		logger:      log,
		now:         time.Now,
	}
	if deps.Completer != nil {
		o.explainer = NewExplainer(deps.Completer, cfg.ExplainConcurrency, log.With(logger.Path(PathAI)), recorder)
	}

	return o
}

// MatchUsersToProject ranks collaborators for project and persists the
// results. It never returns an error and never panics; the worst case is an
// empty list.
func (o *Orchestrator) MatchUsersToProject(ctx context.Context, project *collab.Project, topK int) (results []collab.MatchResult) {
	started := o.now()
	path := PathEmpty

	ctx, span := o.tracer.Start(ctx, "matching.MatchUsersToProject")
	defer span.End()

	log := o.logger
	defer func() {
		if r := recover(); r != nil {
			log.Error("matching aborted by panic", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, fmt.Sprint(r))
			results = []collab.MatchResult{}
			path = PathError
		}
		span.SetAttributes(attribute.String("match.path", path), attribute.Int("match.count", len(results)))
		o.recorder.MatchRun(path, o.now().Sub(started))
	}()

	if project == nil || len(project.NeededRoles) == 0 {
		log.Debug("skipping matching", zap.Error(ErrNoRoles))
		return []collab.MatchResult{}
	}

	if topK <= 0 {
		topK = o.defaultTopK
	}
	log = logger.WithFields(o.logger, logger.MatchFields(project.ID, topK)...)
	span.SetAttributes(attribute.String("project.id", project.ID), attribute.Int("match.top_k", topK))

	if reason, ok := o.aiUnavailable(); ok {
		log.Debug("ai matching unavailable", logger.Stage(string(StageStart)), zap.String("reason", reason))
		o.recorder.Fallback(reason)
	} else {
		aiResults, err := o.runAI(ctx, project, topK, log)
		if err == nil {
			path = PathAI
			log.Info("matching complete", logger.Path(PathAI), zap.Int("matches", len(aiResults)))
			return aiResults
		}

		reason := fallbackReason(err)
		o.recorder.Fallback(reason)
		log.Warn("ai matching failed, falling back",
			logger.Stage(string(StageFallback)),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}

	fbCtx, fbSpan := o.tracer.Start(ctx, "matching."+string(StageFallback))
	fallback, err := o.keyword.MatchFallback(fbCtx, project, topK)
	endSpan(fbSpan, err)
	if err != nil {
		path = PathError
		log.Error("fallback matching failed", logger.Stage(string(StageFallback)), zap.Error(err))
		return []collab.MatchResult{}
	}

	path = PathFallback
	log.Info("matching complete", logger.Path(PathFallback), zap.Int("matches", len(fallback)))
	return fallback
}

func (o *Orchestrator) aiUnavailable() (string, bool) {
	switch {
	case !o.aiEnabled:
		return "disabled", true
	case o.retriever == nil:
		return "not_configured", true
	default:
		return "", false
	}
}

func (o *Orchestrator) runAI(ctx context.Context, project *collab.Project, topK int, log *zap.Logger) ([]collab.MatchResult, error) {
	retrieveCtx, span := o.tracer.Start(ctx, "matching."+string(StageAIRetrieve))
	candidates, err := o.retriever.Retrieve(retrieveCtx, project, project.CreatorID)
	if err == nil && len(candidates) == 0 {
		err = ErrNoCandidates
	}
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	log.Debug("candidates retrieved", logger.Stage(string(StageAIRetrieve)), zap.Int("candidates", len(candidates)))

	ranked := Rank(candidates, project, topK)
	if len(ranked) == 0 {
		return nil, ErrNoCandidates
	}
	log.Debug("candidates ranked", logger.Stage(string(StageAIRank)), zap.Int("finalists", len(ranked)))

	explainCtx, span := o.tracer.Start(ctx, "matching."+string(StageAIExplain))
	explanations := o.explainer.ExplainAll(explainCtx, ranked, project)
	span.End()

	role := project.FirstRole().Role
	now := o.now().UTC()
	results := make([]collab.MatchResult, 0, len(ranked))
	for i, r := range ranked {
		results = append(results, collab.MatchResult{
			ProjectID:   project.ID,
			UserID:      r.User.ID,
			UserName:    r.User.Name,
			Role:        role,
			Score:       r.Score,
			Explanation: explanations[i],
			Type:        collab.MatchTypeAI,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	persistCtx, span := o.tracer.Start(ctx, "matching."+string(StagePersistAI))
	o.persister.persist(persistCtx, project.ID, results, log)
	span.End()

	return results, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrNoCandidates):
		return "no_candidates"
	case errors.Is(err, ai.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ai.ErrEmbeddingService):
		return "embedding_error"
	default:
		return "retrieval_error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
