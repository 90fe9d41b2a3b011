package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spigell/collab-matcher/internal/embedding"
	"github.com/spigell/collab-matcher/internal/repository"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errAborted = errors.New("aborted by user")

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Compute profile embeddings for users whose vectors are missing or stale",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEmbed(cmd)
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().Bool("all", false, "refresh every profile, not only stale ones")
	embedCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	embedCmd.Flags().String("schedule", "", "cron spec to keep refreshing, e.g. \"@every 6h\"")
}

func runEmbed(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	all, _ := cmd.Flags().GetBool("all")
	yes, _ := cmd.Flags().GetBool("yes")
	schedule, _ := cmd.Flags().GetString("schedule")

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	config, err := getConfig()
	if err != nil {
		return err
	}

	svc, err := newServices(ctx, config, log)
	if err != nil {
		return err
	}
	defer svc.close()

	if svc.gateway == nil {
		return errors.New("embedding backfill needs ai.enabled and a gemini api key")
	}

	if !yes {
		if err := confirm(all); err != nil {
			return err
		}
	}

	db, err := svc.connectDB(ctx)
	if err != nil {
		return err
	}
	es, err := svc.elastic(ctx)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	backfiller := svc.backfiller(users, users, es)

	if schedule != "" {
		return runScheduled(ctx, embedding.NewScheduler(schedule, backfiller, all, log.Named("scheduler")))
	}

	report, err := backfiller.Run(ctx, all)
	if err != nil {
		return err
	}
	log.Info("embedding backfill complete",
		zap.Int("seen", report.Seen),
		zap.Int("embedded", report.Embedded),
		zap.Int("failed", report.Failed),
	)
	return writeJSON(cmd.OutOrStdout(), report)
}

func runScheduled(ctx context.Context, scheduler *embedding.Scheduler) error {
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

func confirm(all bool) error {
	scope := "missing or stale"
	if all {
		scope = "all"
	}
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Recompute %s profile embeddings", scope),
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return errAborted
		}
		return err
	}
	return nil
}
