package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quill0/quill/internal/config"
	"github.com/quill0/quill/internal/database"
	"github.com/quill0/quill/internal/log"
	"github.com/quill0/quill/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRegistry(cmd.Context(), func(ctx context.Context, reg session.Registry) error {
			infos, err := reg.List(ctx)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, info := range infos {
				title := info.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s  %s\n", info.ID, title)
			}
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd.Context(), func(ctx context.Context, reg session.Registry) error {
			if err := reg.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// withRegistry opens the session store without the full application graph so
// session commands work even when the AI credentials are absent.
func withRegistry(ctx context.Context, fn func(context.Context, session.Registry) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	pool, err := database.Connect(ctx, cfg.PostgresURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	reg, err := session.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	return fn(ctx, reg)
}
