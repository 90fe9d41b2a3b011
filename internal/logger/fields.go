package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
	// FieldProjectID identifies the project being matched.
	FieldProjectID = "project_id"
	// FieldUserID identifies a candidate collaborator.
	FieldUserID = "user_id"
	// FieldPath is the matching pipeline that produced a result ("ai" or "fallback").
	FieldPath = "match_path"
	// FieldStage is the orchestrator stage currently running.
	FieldStage = "match_stage"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger, defaulting to
// a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// WithProvider attaches AI provider and model fields to the logger.
func WithProvider(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)...)
}

// MatchFields describes a single matching invocation.
func MatchFields(projectID string, topK int) []zap.Field {
	fields := StringFields(StringField{Key: FieldProjectID, Value: projectID})
	return append(fields, zap.Int("top_k", topK))
}

// Stage returns the field naming an orchestrator stage.
func Stage(name string) zap.Field {
	return zap.String(FieldStage, name)
}

// Path returns the field naming the pipeline that produced results.
func Path(name string) zap.Field {
	return zap.String(FieldPath, name)
}

// User returns the candidate user field.
func User(id string) zap.Field {
	return zap.String(FieldUserID, id)
}
