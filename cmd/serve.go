package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spigell/collab-matcher/internal/embedding"
	"github.com/spigell/collab-matcher/internal/repository"
	"github.com/spigell/collab-matcher/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	config, err := getConfig()
	if err != nil {
		return err
	}

	log.Info("starting the collab-matcher api", zap.String("version", version))

	svc, err := newServices(ctx, config, log)
	if err != nil {
		return err
	}
	defer svc.close()

	db, err := svc.connectDB(ctx)
	if err != nil {
		return err
	}
	es, err := svc.elastic(ctx)
	if err != nil {
		return err
	}
	index, err := svc.vectorIndex(db, es)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	matches := repository.NewMatchRepository(db, log.Named("repository"))

	orchestrator := svc.orchestrator(matcherDeps{users: users, store: matches, index: index, profiles: users})

	if config.Embedding.Schedule != "" {
		if svc.gateway == nil {
			log.Warn("embedding refresh is scheduled but ai is unavailable, skipping")
		} else {
			scheduler := embedding.NewScheduler(config.Embedding.Schedule, svc.backfiller(users, users, es), false, log.Named("scheduler"))
			refreshCtx, cancelRefresh := context.WithCancel(ctx)
			if err := scheduler.Start(refreshCtx); err != nil {
				cancelRefresh()
				return err
			}
			// Runs before svc.close so a batch never outlives the pool.
			defer func() {
				cancelRefresh()
				timeout := config.Server.ShutdownTimeout
				if timeout <= 0 {
					timeout = server.DefaultShutdownTimeout
				}
				wait, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if err := scheduler.Shutdown(wait); err != nil {
					log.Warn("embedding refresh did not stop in time", zap.Error(err))
				}
			}()
		}
	}

	deps := server.Deps{
		Matcher:  orchestrator,
		Projects: repository.NewProjectRepository(db),
		Matches:  matches,
		DB:       db,
		Gatherer: svc.metrics.Registry,
		Logger:   log.Named("http"),
	}
	if config.Redis.URL != "" {
		deps.Cache = svc.cache
	}
	app := server.New(deps)

	return server.Run(ctx, app, config.Server.Address, config.Server.ShutdownTimeout, log)
}
