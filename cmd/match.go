package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spigell/collab-matcher/internal/collab"
	"github.com/spigell/collab-matcher/internal/repository"
	"github.com/spigell/collab-matcher/internal/vector"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match collaborators to one project and print the result as JSON",
	Example: `  collab-matcher match --project 3f2a9c
  collab-matcher match --project-file project.json --users-file users.json --top-k 5`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("project", "", "id of a project stored in the database")
	matchCmd.Flags().String("project-file", "", "JSON project file for offline matching")
	matchCmd.Flags().String("users-file", "", "JSON array of user profiles for offline matching")
	matchCmd.Flags().Int("top-k", 0, "number of matches to return (default matching.top-k)")

	matchCmd.MarkFlagsMutuallyExclusive("project", "project-file")
	matchCmd.MarkFlagsRequiredTogether("project-file", "users-file")
	matchCmd.MarkFlagsOneRequired("project", "project-file")
}

type matchOutput struct {
	ProjectID string               `json:"project_id"`
	Matches   []collab.MatchResult `json:"matches"`
}

func runMatch(cmd *cobra.Command) error {
	ctx := cmd.Context()

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

	topK, _ := cmd.Flags().GetInt("top-k")
	projectID, _ := cmd.Flags().GetString("project")

	var out *matchOutput
	if projectID != "" {
		out, err = matchStored(ctx, svc, projectID, topK)
	} else {
		projectFile, _ := cmd.Flags().GetString("project-file")
		usersFile, _ := cmd.Flags().GetString("users-file")
		out, err = matchFiles(ctx, svc, projectFile, usersFile, topK)
	}
	if err != nil {
		return err
	}

	return writeJSON(cmd.OutOrStdout(), out)
}

func matchStored(ctx context.Context, svc *services, projectID string, topK int) (*matchOutput, error) {
	db, err := svc.connectDB(ctx)
	if err != nil {
		return nil, err
	}
	es, err := svc.elastic(ctx)
	if err != nil {
		return nil, err
	}
	index, err := svc.vectorIndex(db, es)
	if err != nil {
		return nil, err
	}

	project, err := repository.NewProjectRepository(db).Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	users := repository.NewUserRepository(db)
	orchestrator := svc.orchestrator(matcherDeps{
		users:    users,
		store:    repository.NewMatchRepository(db, svc.log.Named("repository")),
		index:    index,
		profiles: users,
	})
	return &matchOutput{ProjectID: project.ID, Matches: orchestrator.MatchUsersToProject(ctx, project, topK)}, nil
}

func matchFiles(ctx context.Context, svc *services, projectFile, usersFile string, topK int) (*matchOutput, error) {
	projectData, err := os.ReadFile(projectFile)
	if err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}
	usersData, err := os.ReadFile(usersFile)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}
	return matchOffline(ctx, svc, projectData, usersData, topK)
}

// matchOffline runs the whole pipeline in memory. Profiles without a vector
// are embedded first when the AI gateway is available.
func matchOffline(ctx context.Context, svc *services, projectData, usersData []byte, topK int) (*matchOutput, error) {
	project, err := collab.DecodeProject(projectData)
	if err != nil {
		return nil, err
	}
	users, err := collab.DecodeUsers(usersData)
	if err != nil {
		return nil, err
	}

	pool := vector.NewMemory(users)
	if svc.gateway != nil {
		report, err := svc.backfiller(pool, pool, nil).Run(ctx, false)
		if err != nil && !errors.Is(err, context.Canceled) {
			svc.log.Warn("embedding offline profiles failed", zap.Error(err))
		}
		svc.log.Debug("offline profiles embedded", zap.Int("embedded", report.Embedded), zap.Int("failed", report.Failed))
	}

	orchestrator := svc.orchestrator(matcherDeps{
		users: pool,
		store: repository.NewMemoryMatchStore(),
		index: pool,
	})
	return &matchOutput{ProjectID: project.ID, Matches: orchestrator.MatchUsersToProject(ctx, project, topK)}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
