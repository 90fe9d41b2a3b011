package server

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/repository"

	"github.com/gofiber/fiber/v3"
)

// maxTopK bounds a single request; larger values only inflate explanation cost.
const maxTopK = 50

type Matcher interface {
	MatchUsersToProject(ctx context.Context, project *collab.Project, topK int) []collab.MatchResult
}

type ProjectStore interface {
	Get(ctx context.Context, id string) (*collab.Project, error)
}

type MatchReader interface {
	ListByProject(ctx context.Context, projectID string) ([]collab.MatchResult, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type MatchHandler struct {
	matcher  Matcher
	projects ProjectStore
	matches  MatchReader
}

func NewMatchHandler(matcher Matcher, projects ProjectStore, matches MatchReader) *MatchHandler {
	return &MatchHandler{matcher: matcher, projects: projects, matches: matches}
}

func (h *MatchHandler) RegisterRoutes(r fiber.Router) {
	grp := r.Group("/projects")
	grp.Post("/:id/matches", h.RunMatch)
	grp.Get("/:id/matches", h.ListMatches)
}

type matchesResponse struct {
	ProjectID string               `json:"project_id"`
	Matches   []collab.MatchResult `json:"matches"`
}

func (h *MatchHandler) RunMatch(c fiber.Ctx) error {
	topK, err := parseTopK(c.Query("top_k"))
	if err != nil {
		return NewAppError(fiber.StatusBadRequest, "top_k must be a positive integer", nil, err)
	}

	project, err := h.loadProject(c)
	if err != nil {
		return err
	}

	results := h.matcher.MatchUsersToProject(c.Context(), project, topK)
	return Success(c, fiber.StatusOK, MessageOK, matchesResponse{ProjectID: project.ID, Matches: results})
}

func (h *MatchHandler) ListMatches(c fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return NewAppError(fiber.StatusBadRequest, "project id is required", nil, nil)
	}

	results, err := h.matches.ListByProject(c.Context(), id)
	if err != nil {
		return NewAppError(fiber.StatusInternalServerError, MessageInternalServerError, nil, err)
	}
	return Success(c, fiber.StatusOK, MessageOK, matchesResponse{ProjectID: id, Matches: results})
}

func (h *MatchHandler) loadProject(c fiber.Ctx) (*collab.Project, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return nil, NewAppError(fiber.StatusBadRequest, "project id is required", nil, nil)
	}

	project, err := h.projects.Get(c.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewAppError(fiber.StatusNotFound, "project not found", nil, err)
	case err != nil:
		return nil, NewAppError(fiber.StatusInternalServerError, MessageInternalServerError, nil, err)
	}
	return project, nil
}

// parseTopK returns 0 for an absent value so the matcher default applies.
func parseTopK(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("top_k must be positive")
	}
	return min(n, maxTopK), nil
}

type healthHandler struct {
	db    Pinger
	cache Pinger
}

// Check fails only when the database is unreachable. A cache outage is
// reported but matching keeps working without it.
func (h healthHandler) Check(c fiber.Ctx) error {
	status := fiber.Map{"database": "disabled", "cache": "disabled"}

	if h.db != nil {
		if err := h.db.Ping(c.Context()); err != nil {
			return NewAppError(fiber.StatusServiceUnavailable, MessageServiceUnavailable, nil, err)
		}
		status["database"] = "up"
	}

	if h.cache != nil {
		status["cache"] = "up"
		if err := h.cache.Ping(c.Context()); err != nil {
			status["cache"] = "bypassed"
		}
	}

	return Success(c, fiber.StatusOK, MessageOK, status)
}
