package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/collab-matcher/internal/ai"
	"github.com/spigell/collab-matcher/internal/ai/gemini"
	"github.com/spigell/collab-matcher/internal/cache"
	"github.com/spigell/collab-matcher/internal/database"
	"github.com/spigell/collab-matcher/internal/database/migration"
	"github.com/spigell/collab-matcher/internal/database/postgres"
	"github.com/spigell/collab-matcher/internal/embedding"
	"github.com/spigell/collab-matcher/internal/logger"
	"github.com/spigell/collab-matcher/internal/matching"
	"github.com/spigell/collab-matcher/internal/metrics"
	"github.com/spigell/collab-matcher/internal/repository"
	"github.com/spigell/collab-matcher/internal/secrets"
	"github.com/spigell/collab-matcher/internal/vector"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// services holds the process-wide collaborators shared by every command.
type services struct {
	cfg     *Config
	log     *zap.Logger
	metrics *metrics.Metrics
	cache   *cache.Redis
	// gateway is nil when AI is disabled or has no credentials.
	gateway ai.Gateway
	closers []func() error
}

func newLogger() (*zap.Logger, error) {
	return logger.New(viper.GetBool("json"), viper.GetBool("debug"))
}

func newServices(ctx context.Context, cfg *Config, log *zap.Logger) (*services, error) {
	svc := &services{cfg: cfg, log: log, metrics: metrics.New()}

	gw, err := buildGateway(ctx, cfg.AI, log)
	if err != nil {
		return nil, fmt.Errorf("building ai gateway: %w", err)
	}
	svc.gateway = gw

	svc.cache = cache.NewRedis(ctx, cfg.Redis.URL, log.Named("cache"))
	svc.closers = append(svc.closers, svc.cache.Close)

	return svc, nil
}

func (svc *services) close() {
	for i := len(svc.closers) - 1; i >= 0; i-- {
		if err := svc.closers[i](); err != nil {
			svc.log.Warn("closing resource", zap.Error(err))
		}
	}
}

func resolveAPIKey(cfg GeminiConfig) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.APIKeyFile,
		Value: cfg.APIKey,
		Env:   "GEMINI_API_KEY",
	})
}

func buildGateway(ctx context.Context, cfg AIConfig, log *zap.Logger) (ai.Gateway, error) {
	if !cfg.Enabled {
		log.Info("ai is disabled, keyword matching only")
		return nil, nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := resolveAPIKey(cfg.Gemini)
	if errors.Is(err, secrets.ErrNotConfigured) {
		log.Warn("gemini api key is not configured, keyword matching only",
			zap.String("hint", "set GEMINI_API_KEY, GEMINI_API_KEY_FILE or ai.gemini.api-key-file"),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	gw, err := gemini.NewGateway(ctx, gemini.Config{
		APIKey:         apiKey,
		EmbeddingModel: cfg.Gemini.EmbeddingModel,
		ChatModel:      cfg.Gemini.ChatModel,
		Dimensions:     cfg.Gemini.Dimensions,
		Timeout:        cfg.Gemini.Timeout,
		MaxRetries:     cfg.Gemini.MaxRetries,
		MaxLogLength:   cfg.Gemini.MaxLogLength,
	}, log.Named("ai"))
	if err != nil {
		return nil, err
	}
	return gw, nil
}

func (svc *services) connectDB(ctx context.Context) (database.DB, error) {
	db, err := postgres.Connect(ctx, postgres.Config{
		URL:      svc.cfg.Database.URL,
		MaxConns: svc.cfg.Database.MaxConns,
	}, svc.log.Named("db"))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	svc.closers = append(svc.closers, db.Close)

	if svc.cfg.Database.Migrate {
		if _, err := (migration.Runner{Logger: svc.log.Named("migrate")}).Run(ctx, db); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	}
	return db, nil
}

// elastic returns nil when no addresses are configured.
func (svc *services) elastic(ctx context.Context) (*vector.Elastic, error) {
	cfg := svc.cfg.Elasticsearch
	if len(cfg.Addresses) == 0 {
		return nil, nil
	}

	client, err := vector.NewElasticClient(vector.ElasticConfig{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, err
	}

	es := vector.NewElastic(client, cfg.Index, svc.cfg.AI.Gemini.Dimensions)
	if err := es.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return es, nil
}

// vectorIndex picks the configured search backend for the online commands.
func (svc *services) vectorIndex(db database.DB, es *vector.Elastic) (matching.VectorIndex, error) {
	switch svc.cfg.Matching.VectorBackend {
	case backendElasticsearch:
		if es == nil {
			return nil, errors.New("matching.vector-backend is elasticsearch but elasticsearch.addresses is empty")
		}
		return es, nil
	default:
		return repository.NewPGVectorIndex(db), nil
	}
}

type matcherDeps struct {
	users matching.UserSource
	store matching.MatchStore
	index matching.VectorIndex
	// profiles refreshes search hits from the user table when the index keeps
	// its own copy of profiles.
	profiles matching.ProfileLookup
}

func (svc *services) orchestrator(md matcherDeps) *matching.Orchestrator {
	deps := matching.Deps{
		Users:    md.users,
		Store:    md.store,
		Logger:   svc.log.Named("matching"),
		Recorder: svc.metrics,
	}

	if svc.gateway != nil {
		embedder := cache.NewCachedEmbedder(svc.gateway, svc.cache, svc.cfg.AI.Gemini.EmbeddingModel, svc.cfg.AI.Gemini.Dimensions, svc.cfg.Redis.TTL, svc.metrics, svc.log.Named("cache"))
		if md.index != nil {
			retriever := matching.NewVectorRetriever(embedder, md.index,
				svc.cfg.Matching.CandidateLimit, svc.cfg.Matching.NumCandidates, svc.log.Named("retriever"))
			if svc.cfg.Matching.VectorBackend == backendElasticsearch && md.profiles != nil {
				retriever.WithProfiles(md.profiles)
			}
			deps.Retriever = retriever
		}
		deps.Completer = svc.gateway
	}

	return matching.NewOrchestrator(matching.Config{
		AIEnabled:          svc.cfg.Matching.AIEnabled,
		DefaultTopK:        svc.cfg.Matching.TopK,
		ExplainConcurrency: svc.cfg.Matching.ExplainConcurrency,
	}, deps)
}

func (svc *services) backfiller(source embedding.ProfileSource, sink embedding.EmbeddingSink, es *vector.Elastic) *embedding.Backfiller {
	deps := embedding.Deps{
		Source:   source,
		Sink:     sink,
		Recorder: svc.metrics,
		Logger:   svc.log.Named("embedding"),
	}
	if svc.gateway != nil {
		deps.Embedder = svc.gateway
	}
	if es != nil {
		deps.Indexer = es
	}
	return embedding.NewBackfiller(deps, svc.cfg.Embedding.BatchSize)
}
