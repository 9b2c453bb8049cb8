package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"blockpack/internal/engine"
	"blockpack/internal/manifest"
	"blockpack/internal/pipeline"
)

var validationURL string

var packageCmd = &cobra.Command{
	Use:   "package <config> <destination>",
	Short: "Package an application into a platform block",
	Long: `Package validates the config, pulls the base image, probes its
operating system, builds and persists the block manifest, writes the build
context into <destination> and builds the wrapped image.`,
	Args: cobra.ExactArgs(2),
	RunE: runPackage,
}

func init() {
	rootCmd.AddCommand(packageCmd)
	packageCmd.Flags().StringVar(&validationURL, "validation-url", "", "override the manifest validation endpoint")
}

func runPackage(cmd *cobra.Command, args []string) error {
	configFile, destination := args[0], args[1]

	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// A second signal falls through to the default handler and kills us.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Warn().Msg("Interrupted, aborting packaging...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	eng, err := engine.New(log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to the container engine")
		return err
	}
	defer eng.Close()

	manifests := manifest.NewBuilder(validationURL, log.Logger)
	packager := pipeline.New(eng, manifests, log.Logger)

	if err := packager.Run(ctx, configFile, destination); err != nil {
		// Steps already logged their failure with context.
		return err
	}
	return nil
}
