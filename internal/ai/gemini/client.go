package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/collab-matcher/internal/ai"
	"github.com/spigell/collab-matcher/internal/logger"
	"github.com/spigell/collab-matcher/internal/utils"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultEmbeddingModel = "text-embedding-004"
	defaultChatModel      = "gemini-2.5-flash"
	defaultDimensions     = 768
	defaultTimeout        = 15 * time.Second
	defaultMaxRetries     = 2
	defaultMaxLogLength   = 200

	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

var errEmptyResponse = errors.New("gemini api returned empty response")

// wait is replaced in tests to skip backoff delays.
var wait = utils.WaitFor

type modelsAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds the Gemini gateway settings. Zero values fall back to defaults.
type Config struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	Dimensions     int
	Timeout        time.Duration
	// MaxRetries is the total number of attempts per call.
	MaxRetries   int
	MaxLogLength int
}

// Gateway implements ai.Gateway on top of the Google GenAI client.
type Gateway struct {
	models         modelsAPI
	embeddingModel string
	chatModel      string
	dimensions     int
	timeout        time.Duration
	maxRetries     int
	maxLogLen      int
	logger         *zap.Logger
}

var _ ai.Gateway = (*Gateway)(nil)

// NewGateway creates a Gateway configured for the Gemini API backend.
func NewGateway(ctx context.Context, cfg Config, log *zap.Logger) (*Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key: %w", ai.ErrNotConfigured)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGateway(client.Models, cfg, log), nil
}

func newGateway(models modelsAPI, cfg Config, log *zap.Logger) *Gateway {
	g := &Gateway{
		models:         models,
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		chatModel:      strings.TrimSpace(cfg.ChatModel),
		dimensions:     cfg.Dimensions,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		maxLogLen:      cfg.MaxLogLength,
	}

	if g.embeddingModel == "" {
		g.embeddingModel = defaultEmbeddingModel
	}
	if g.chatModel == "" {
		g.chatModel = defaultChatModel
	}
	if g.dimensions <= 0 {
		g.dimensions = defaultDimensions
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.maxRetries <= 0 {
		g.maxRetries = defaultMaxRetries
	}
	if g.maxLogLen <= 0 {
		g.maxLogLen = defaultMaxLogLength
	}

	g.logger = logger.WithProvider(log, "gemini", g.chatModel)
	return g
}

// EmbedQuery embeds search text. Failures wrap ai.ErrEmbeddingService.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, taskRetrievalQuery)
}

// EmbedDocument embeds profile text for storage. Failures wrap ai.ErrEmbeddingService.
func (g *Gateway) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, taskRetrievalDocument)
}

// Complete sends the prompt to the chat model and returns the joined text parts.
// Failures wrap ai.ErrCompletionService.
func (g *Gateway) Complete(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt must not be empty", ai.ErrCompletionService)
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	temperature := float32(0.4)
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}

	var output string
	err := g.withRetry(ctx, "generate_content", func(ctx context.Context) error {
		resp, err := g.models.GenerateContent(ctx, g.chatModel, genai.Text(prompt), cfg)
		if err != nil {
			return err
		}
		output = responseText(resp)
		if output == "" {
			return errEmptyResponse
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ai.ErrCompletionService, err)
	}

	g.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
	)

	return output, nil
}

func (g *Gateway) embed(ctx context.Context, text, task string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text must not be empty", ai.ErrEmbeddingService)
	}

	dims := int32(g.dimensions)
	cfg := &genai.EmbedContentConfig{
		TaskType:             task,
		OutputDimensionality: &dims,
	}

	var values []float32
	err := g.withRetry(ctx, "embed_content", func(ctx context.Context) error {
		resp, err := g.models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), cfg)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
			return errEmptyResponse
		}
		values = resp.Embeddings[0].Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrEmbeddingService, err)
	}

	g.logger.Debug("gemini embed content",
		zap.String("task_type", task),
		zap.String(logger.FieldModel, g.embeddingModel),
		zap.Int("text_length", utf8.RuneCountInString(text)),
		zap.Int("dimensions", len(values)),
	)

	return values, nil
}

// withRetry runs fn with a per-attempt timeout until it succeeds, the error
// is not retryable, or the attempt budget is spent.
func (g *Gateway) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}

		delay, retry := retryDelay(err, attempt)
		if !retry {
			g.logger.Debug("gemini request failed without retry",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return lastErr
		}
		if attempt == g.maxRetries {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return lastErr
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", g.maxRetries, lastErr)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
