package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidProject wraps schema violations found in a project document.
var ErrInvalidProject = errors.New("invalid project document")

var projectSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "creator_id", "needed_roles"},
	"properties": map[string]any{
		"id":                map[string]any{"type": "string", "minLength": 1},
		"title":             map[string]any{"type": "string"},
		"problem_statement": map[string]any{"type": "string"},
		"solution":          map[string]any{"type": "string"},
		"target_market":     map[string]any{"type": "string"},
		"category":          map[string]any{"type": "string"},
		"stage":             map[string]any{"type": "string"},
		"creator_id":        map[string]any{"type": "string", "minLength": 1},
		"needed_roles": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"role"},
				"properties": map[string]any{
					"role":               map[string]any{"type": "string", "minLength": 1},
					"required_skills":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"description":        map[string]any{"type": "string"},
					"preferred_location": map[string]any{"type": "string"},
					"commitment":         map[string]any{"type": "string"},
				},
			},
		},
	},
}

// DecodeProject validates data against the project schema and decodes it.
func DecodeProject(data []byte) (*Project, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(projectSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidProject, strings.Join(problems, "; "))
	}

	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}

	return &project, nil
}

// DecodeUsers decodes a JSON array of user profiles.
func DecodeUsers(data []byte) ([]*UserProfile, error) {
	var users []*UserProfile
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}
