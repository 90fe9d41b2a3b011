// Package embedding refreshes stored profile vectors out of band.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/collab-matcher/internal/ai"
	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/logger"

	"go.uber.org/zap"
)

const DefaultBatchSize = 50

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// ProfileSource pages through users by id.
type ProfileSource interface {
	ListForEmbedding(ctx context.Context, all bool, afterID string, limit int) ([]*collab.UserProfile, error)
}

type EmbeddingSink interface {
	SaveEmbedding(ctx context.Context, userID string, embedding []float32, at time.Time) error
}

// ProfileIndexer mirrors stored embeddings into a secondary search index.
type ProfileIndexer interface {
	IndexProfile(ctx context.Context, u *collab.UserProfile, embedding []float32, at time.Time) error
}

type Recorder interface {
	ProfileEmbedded(outcome string)
}

type Deps struct {
	Embedder ai.DocumentEmbedder
	Source   ProfileSource
	Sink     EmbeddingSink
	// Indexer is optional.
	Indexer  ProfileIndexer
	Recorder Recorder
	Logger   *zap.Logger
}

type Report struct {
	Seen     int `json:"seen"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
	Indexed  int `json:"indexed"`
}

type Backfiller struct {
	deps      Deps
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

func NewBackfiller(deps Deps, batchSize int) *Backfiller {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Backfiller{
		deps:      deps,
		batchSize: batchSize,
		logger:    logger.WithFields(deps.Logger, logger.Stage("embedding_backfill")),
		now:       time.Now,
	}
}

// Run embeds every selected profile. A failing user is logged and skipped;
// only listing errors and cancellation stop the run.
func (b *Backfiller) Run(ctx context.Context, all bool) (Report, error) {
	var report Report
	if b.deps.Embedder == nil {
		return report, ai.ErrNotConfigured
	}
	if b.deps.Source == nil || b.deps.Sink == nil {
		return report, errors.New("embedding backfill needs a profile source and sink")
	}

	afterID := ""
	for {
		users, err := b.deps.Source.ListForEmbedding(ctx, all, afterID, b.batchSize)
		if err != nil {
			return report, fmt.Errorf("list profiles: %w", err)
		}

		for _, u := range users {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Seen++
			afterID = u.ID

			if err := b.embedOne(ctx, u, &report); err != nil {
				report.Failed++
				b.record(OutcomeFailed)
				b.logger.Warn("profile not embedded", logger.User(u.ID), zap.Error(err))
				continue
			}
			report.Embedded++
			b.record(OutcomeOK)
		}

		if len(users) < b.batchSize {
			break
		}
	}

	b.logger.Info("embedding backfill finished",
		zap.Int("seen", report.Seen),
		zap.Int("embedded", report.Embedded),
		zap.Int("failed", report.Failed),
		zap.Int("indexed", report.Indexed),
	)
	return report, nil
}

func (b *Backfiller) embedOne(ctx context.Context, u *collab.UserProfile, report *Report) error {
	text := collab.ProfileText(u)
	if strings.TrimSpace(text) == "" {
		return errors.New("profile has no text to embed")
	}

	vec, err := b.deps.Embedder.EmbedDocument(ctx, text)
	if err != nil {
		return err
	}
	if len(vec) == 0 {
		return errors.New("empty embedding")
	}

	at := b.now().UTC()
	if err := b.deps.Sink.SaveEmbedding(ctx, u.ID, vec, at); err != nil {
		return err
	}

	if b.deps.Indexer != nil {
		if err := b.deps.Indexer.IndexProfile(ctx, u, vec, at); err != nil {
			b.logger.Warn("profile not indexed", logger.User(u.ID), zap.Error(err))
		} else {
			report.Indexed++
		}
	}
	return nil
}

func (b *Backfiller) record(outcome string) {
	if b.deps.Recorder != nil {
		b.deps.Recorder.ProfileEmbedded(outcome)
	}
}
