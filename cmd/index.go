package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strategos/advisor/internal/config"
	"github.com/strategos/advisor/internal/knowledge"
	"github.com/strategos/advisor/internal/log"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan the document corpus and report the chunk inventory",
	Long: `Index scans the configured corpus directories and prints what the
retriever would see, without starting the server or touching the
database. Useful for checking corpus layout and chunking.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIndex(cmd)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	index := knowledge.NewIndex(cfg.CorpusDirs, log.NewNop())
	chunks := index.Load()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d chunks from %d director", len(chunks), len(cfg.CorpusDirs))
	if len(cfg.CorpusDirs) == 1 {
		fmt.Fprintln(out, "y")
	} else {
		fmt.Fprintln(out, "ies")
	}
	for _, c := range chunks {
		fmt.Fprintf(out, "  %-50s %5d chars, %d keywords\n",
			c.SourcePath+" / "+c.SectionTitle, len(c.Content), len(c.Keywords))
	}
	return nil
}
