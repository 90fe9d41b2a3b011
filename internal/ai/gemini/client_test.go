package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/spigell/collab-matcher/internal/ai"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeModels struct {
	mu sync.Mutex

	embedQueue    []fakeEmbedResponse
	generateQueue []fakeGenerateResponse

	embedCalls    []*genai.EmbedContentConfig
	generateCalls []string
	block         bool
}

type fakeEmbedResponse struct {
	resp *genai.EmbedContentResponse
	err  error
}

type fakeGenerateResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) EmbedContent(ctx context.Context, _ string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	f.embedCalls = append(f.embedCalls, config)
	block := f.block
	var next fakeEmbedResponse
	if len(f.embedQueue) > 0 {
		next = f.embedQueue[0]
		f.embedQueue = f.embedQueue[1:]
	} else {
		next = fakeEmbedResponse{err: errors.New("unexpected call")}
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return next.resp, next.err
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, content := range contents {
		for _, part := range content.Parts {
			f.generateCalls = append(f.generateCalls, part.Text)
		}
	}
	if len(f.generateQueue) == 0 {
		return nil, errors.New("unexpected call")
	}
	next := f.generateQueue[0]
	f.generateQueue = f.generateQueue[1:]
	return next.resp, next.err
}

func embedding(values ...float32) *genai.EmbedContentResponse {
	return &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{Values: values}}}
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func noWait(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	original := wait
	wait = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { wait = original })
	return &delays
}

func TestEmbedQueryRetriesOnTemporaryError(t *testing.T) {
	delays := noWait(t)

	models := &fakeModels{embedQueue: []fakeEmbedResponse{
		{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}},
		{resp: embedding(0.1, 0.2, 0.3)},
	}}
	g := newGateway(models, Config{Dimensions: 3}, zap.NewNop())

	vec, err := g.EmbedQuery(context.Background(), "designer for edtech")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if len(models.embedCalls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.embedCalls))
	}
	if len(*delays) != 1 || (*delays)[0] != baseBackoff {
		t.Fatalf("expected one base backoff wait, got %v", *delays)
	}

	cfg := models.embedCalls[0]
	if cfg.TaskType != taskRetrievalQuery {
		t.Fatalf("unexpected task type: %q", cfg.TaskType)
	}
	if cfg.OutputDimensionality == nil || *cfg.OutputDimensionality != 3 {
		t.Fatalf("expected output dimensionality 3, got %v", cfg.OutputDimensionality)
	}
}

func TestEmbedDocumentUsesDocumentTask(t *testing.T) {
	models := &fakeModels{embedQueue: []fakeEmbedResponse{{resp: embedding(1)}}}
	g := newGateway(models, Config{}, zap.NewNop())

	if _, err := g.EmbedDocument(context.Background(), "Name: Ann"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := models.embedCalls[0].TaskType; got != taskRetrievalDocument {
		t.Fatalf("unexpected task type: %q", got)
	}
	if got := *models.embedCalls[0].OutputDimensionality; got != defaultDimensions {
		t.Fatalf("expected default dimensions, got %d", got)
	}
}

func TestEmbedStopsAfterRetriesExhausted(t *testing.T) {
	noWait(t)

	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models := &fakeModels{embedQueue: []fakeEmbedResponse{{err: tempErr}, {err: tempErr}, {err: tempErr}}}
	g := newGateway(models, Config{MaxRetries: 2}, zap.NewNop())

	_, err := g.EmbedQuery(context.Background(), "query")
	if !errors.Is(err, ai.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	if len(models.embedCalls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.embedCalls))
	}
}

func TestEmbedAttemptTimeoutIsRetried(t *testing.T) {
	noWait(t)

	models := &fakeModels{block: true, embedQueue: []fakeEmbedResponse{{}, {}}}
	g := newGateway(models, Config{Timeout: 5 * time.Millisecond, MaxRetries: 2}, zap.NewNop())

	_, err := g.EmbedQuery(context.Background(), "query")
	if !errors.Is(err, ai.ErrEmbeddingService) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected embedding timeout error, got %v", err)
	}
	if len(models.embedCalls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(models.embedCalls))
	}
}

func TestEmbedDoesNotRetryClientError(t *testing.T) {
	models := &fakeModels{embedQueue: []fakeEmbedResponse{
		{err: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}},
	}}
	g := newGateway(models, Config{MaxRetries: 3}, zap.NewNop())

	if _, err := g.EmbedQuery(context.Background(), "query"); err == nil {
		t.Fatal("expected error")
	}
	if len(models.embedCalls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.embedCalls))
	}
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	g := newGateway(&fakeModels{}, Config{}, zap.NewNop())
	if _, err := g.EmbedQuery(context.Background(), "   "); !errors.Is(err, ai.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
}

func TestCompleteDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := &fakeModels{generateQueue: []fakeGenerateResponse{{err: genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}}}}
	g := newGateway(models, Config{MaxRetries: 3}, zap.NewNop())

	_, err := g.Complete(context.Background(), "explain")
	if !errors.Is(err, ai.ErrCompletionService) {
		t.Fatalf("expected ErrCompletionService, got %v", err)
	}
	if len(models.generateCalls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.generateCalls))
	}
}

func TestCompleteRetriesOnShortQuotaDelay(t *testing.T) {
	delays := noWait(t)

	models := &fakeModels{generateQueue: []fakeGenerateResponse{
		{err: genai.APIError{
			Code:    http.StatusTooManyRequests,
			Status:  "RESOURCE_EXHAUSTED",
			Details: []map[string]any{{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "2s"}},
		}},
		{resp: textResponse("Strong Figma skills", "and EdTech interest.")},
	}}
	g := newGateway(models, Config{}, zap.NewNop())

	out, err := g.Complete(context.Background(), "explain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Strong Figma skills\nand EdTech interest." {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(*delays) != 1 || (*delays)[0] != 2*time.Second {
		t.Fatalf("expected advertised delay, got %v", *delays)
	}
}

func TestCompleteEmptyResponseIsNotRetried(t *testing.T) {
	models := &fakeModels{generateQueue: []fakeGenerateResponse{{resp: textResponse("  ")}}}
	g := newGateway(models, Config{MaxRetries: 3}, zap.NewNop())

	_, err := g.Complete(context.Background(), "explain")
	if !errors.Is(err, errEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
	if len(models.generateCalls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.generateCalls))
	}
}

func TestNewGatewayRequiresAPIKey(t *testing.T) {
	_, err := NewGateway(context.Background(), Config{APIKey: "  "}, zap.NewNop())
	if !errors.Is(err, ai.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRetryDelayClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		err   error
		retry bool
		delay time.Duration
	}{
		{name: "server error", err: genai.APIError{Code: 502}, retry: true, delay: baseBackoff},
		{name: "pointer server error", err: &genai.APIError{Code: 500}, retry: true, delay: baseBackoff},
		{name: "quota in message", err: genai.APIError{Code: 429, Message: "Please retry in 3.5s."}, retry: true, delay: 3500 * time.Millisecond},
		{name: "quota too long", err: genai.APIError{Code: 429, Message: "retry after 30 seconds"}, retry: false, delay: 30 * time.Second},
		{name: "quota without hint", err: genai.APIError{Code: 429}, retry: true, delay: baseBackoff},
		{name: "not found", err: genai.APIError{Code: 404}, retry: false},
		{name: "canceled", err: context.Canceled, retry: false},
		{name: "plain error", err: errors.New("boom"), retry: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			delay, retry := retryDelay(tc.err, 1)
			if retry != tc.retry {
				t.Fatalf("expected retry=%v, got %v", tc.retry, retry)
			}
			if delay != tc.delay {
				t.Fatalf("expected delay %v, got %v", tc.delay, delay)
			}
		})
	}
}

func TestBackoffIsCapped(t *testing.T) {
	if got := backoff(2); got != 2*baseBackoff {
		t.Fatalf("unexpected second backoff: %v", got)
	}
	if got := backoff(20); got != maxBackoff {
		t.Fatalf("expected cap, got %v", got)
	}
}
