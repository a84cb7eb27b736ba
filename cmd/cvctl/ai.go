package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cvbank/cvbank-backend/internal/cv/llm"
	"github.com/spf13/cobra"
)

var pingAICmd = &cobra.Command{
	Use:   "ping-ai",
	Short: "Send a minimal completion to verify the AI provider credentials and model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		completer, err := llm.New(ctx, cfg.AI, log)
		if err != nil {
			return err
		}
		if err := llm.Ping(ctx, completer); err != nil {
			return fmt.Errorf("%s (%s): %w", cfg.AI.Provider, completer.Model(), err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: model %s is reachable\n", cfg.AI.Provider, completer.Model())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingAICmd)
}
