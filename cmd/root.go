// Package cmd defines the advisor CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "Retrieval-augmented business strategy advisor",
	Long: `Advisor answers business and strategy questions by combining a
document corpus, live operational metrics, and conversation memory
into a streamed model response.

Run "advisor serve" to start the HTTP API.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
