package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/collab-matcher/internal/ai"
	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	failFor string
	calls   int
}

func (f *fakeEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failFor != "" && strings.Contains(text, f.failFor) {
		return nil, fmt.Errorf("%w: 503", ai.ErrEmbeddingService)
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeIndexer struct {
	err     error
	indexed []string
}

func (f *fakeIndexer) IndexProfile(_ context.Context, u *collab.UserProfile, _ []float32, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, u.ID)
	return nil
}

type outcomes struct{ ok, failed int }

func (o *outcomes) ProfileEmbedded(outcome string) {
	if outcome == OutcomeOK {
		o.ok++
		return
	}
	o.failed++
}

func pool(n int) []*collab.UserProfile {
	users := make([]*collab.UserProfile, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, &collab.UserProfile{
			ID:     fmt.Sprintf("u%02d", i),
			Name:   fmt.Sprintf("User %02d", i),
			Skills: []string{"Go"},
		})
	}
	return users
}

func TestBackfillEmbedsAcrossBatchesAndSkipsFailures(t *testing.T) {
	users := pool(5)
	store := vector.NewMemory(users)
	rec := &outcomes{}
	indexer := &fakeIndexer{}

	b := NewBackfiller(Deps{
		Embedder: &fakeEmbedder{failFor: "User 03"},
		Source:   store,
		Sink:     store,
		Indexer:  indexer,
		Recorder: rec,
	}, 2)

	report, err := b.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Report{Seen: 5, Embedded: 4, Failed: 1, Indexed: 4}, report)
	assert.Equal(t, outcomes{ok: 4, failed: 1}, *rec)
	assert.Equal(t, []string{"u00", "u01", "u02", "u04"}, indexer.indexed)

	assert.False(t, users[3].HasEmbedding())
	assert.True(t, users[4].HasEmbedding())
	require.NotNil(t, users[4].EmbeddingUpdatedAt)

	report, err = b.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Seen, "only the failed profile is still pending")
}

func TestBackfillAllRefreshesEverything(t *testing.T) {
	store := vector.NewMemory(pool(3))
	b := NewBackfiller(Deps{Embedder: &fakeEmbedder{}, Source: store, Sink: store}, 0)

	_, err := b.Run(context.Background(), false)
	require.NoError(t, err)

	report, err := b.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Embedded)
	assert.Zero(t, report.Indexed)
}

func TestBackfillIndexFailureDoesNotFailUser(t *testing.T) {
	store := vector.NewMemory(pool(1))
	b := NewBackfiller(Deps{
		Embedder: &fakeEmbedder{},
		Source:   store,
		Sink:     store,
		Indexer:  &fakeIndexer{err: errors.New("cluster red")},
	}, 10)

	report, err := b.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Report{Seen: 1, Embedded: 1}, report)
}

func TestBackfillRequiresEmbedder(t *testing.T) {
	_, err := NewBackfiller(Deps{}, 10).Run(context.Background(), false)
	assert.ErrorIs(t, err, ai.ErrNotConfigured)
}

func TestBackfillStopsOnCancel(t *testing.T) {
	store := vector.NewMemory(pool(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewBackfiller(Deps{Embedder: &fakeEmbedder{}, Source: store, Sink: store}, 10).Run(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Seen)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	all   bool
	ran   chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, all bool) (Report, error) {
	f.mu.Lock()
	f.calls++
	f.all = all
	f.mu.Unlock()
	f.ran <- struct{}{}
	return Report{}, nil
}

func TestSchedulerRunsImmediately(t *testing.T) {
	runner := &fakeRunner{ran: make(chan struct{}, 1)}
	s := NewScheduler("@every 1h", runner, true, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("backfill did not run on start")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.calls)
	assert.True(t, runner.all)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler("every tuesday", &fakeRunner{}, false, nil)
	assert.ErrorContains(t, s.Start(context.Background()), "every tuesday")
}

// blockingRunner holds each run until release is closed or ctx ends.
type blockingRunner struct {
	started   chan struct{}
	release   chan struct{}
	finished  chan struct{}
	honourCtx bool
}

func (b *blockingRunner) Run(ctx context.Context, _ bool) (Report, error) {
	b.started <- struct{}{}
	defer close(b.finished)
	if b.honourCtx {
		select {
		case <-ctx.Done():
		case <-b.release:
		}
		return Report{}, ctx.Err()
	}
	<-b.release
	return Report{}, nil
}

func newBlockingRunner(honourCtx bool) *blockingRunner {
	return &blockingRunner{
		started:   make(chan struct{}, 1),
		release:   make(chan struct{}),
		finished:  make(chan struct{}),
		honourCtx: honourCtx,
	}
}

func TestSchedulerShutdownWaitsForImmediateRun(t *testing.T) {
	runner := newBlockingRunner(true)
	s := NewScheduler("@every 1h", runner, false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	<-runner.started

	cancel()
	wait, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	require.NoError(t, s.Shutdown(wait))

	select {
	case <-runner.finished:
	default:
		t.Fatal("shutdown returned before the running backfill finished")
	}
}

func TestSchedulerShutdownGivesUpAfterTimeout(t *testing.T) {
	runner := newBlockingRunner(false)
	s := NewScheduler("@every 1h", runner, false, nil)

	require.NoError(t, s.Start(context.Background()))
	<-runner.started
	defer close(runner.release)

	wait, stop := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stop()
	assert.ErrorIs(t, s.Shutdown(wait), context.DeadlineExceeded)
}
