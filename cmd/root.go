package cmd

import (
	"github.com/spf13/cobra"
)

// Build metadata, injected at link time through main.
var (
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "blockpack",
	Short: "Blockpack - Platform Block Packager",
	Long: `Blockpack wraps a containerized algorithm into a platform-ready block:
it validates the packaging config, pulls and probes the base image, builds
and registers the block manifest, and builds the wrapped image.`,
	SilenceUsage: true,
}

func Execute(version, commit, date string) error {
	if version != "" {
		BuildVersion = version
	}
	if commit != "" {
		BuildCommit = commit
	}
	if date != "" {
		BuildDate = date
	}
	return rootCmd.Execute()
}
