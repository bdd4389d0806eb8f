package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Advisor %s\n", AppVersion)
		fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  GEMINI_API_KEY: %s\n", keyStatus(os.Getenv("GEMINI_API_KEY")))
		fmt.Fprintf(out, "  OPENAI_API_KEY: %s\n", keyStatus(os.Getenv("OPENAI_API_KEY")))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// keyStatus shows whether a key is configured without revealing it.
func keyStatus(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) < 8 {
		return "configured"
	}
	return fmt.Sprintf("%s...%s (configured)", key[:4], key[len(key)-4:])
}
