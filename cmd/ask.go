package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quill0/quill/internal/app"
	"github.com/quill0/quill/internal/chat"
	"github.com/quill0/quill/internal/config"
)

var (
	askSession  string
	askForceWeb bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question",
	Long: `Ask runs a single chat turn and prints the answer. Use --session to
continue an existing conversation; without it a fresh session is created
and its id printed so you can follow up.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to continue")
	askCmd.Flags().BoolVar(&askForceWeb, "web", false, "force a web search for this question")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	res, err := a.Chat.Turn(ctx, chat.TurnRequest{
		SessionID:      askSession,
		Message:        question,
		ForceWebSearch: askForceWeb,
	})
	if err != nil {
		return err
	}

	fmt.Println(res.Answer)
	if len(res.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range res.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	if askSession == "" {
		fmt.Printf("\nSession: %s\n", res.SessionID)
	}
	return nil
}
