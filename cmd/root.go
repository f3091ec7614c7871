// Package cmd contains the quill command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Quill is a retrieval-augmented chat assistant",
	Long: `Quill answers questions by blending content you have ingested
(documents, URLs) with live web search, and can expand any topic into a
structured, editable learning outline.

Run "quill serve" to start the HTTP API, or "quill ask" for a one-shot
question from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
