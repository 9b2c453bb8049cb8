package cmd

import (
	"github.com/spf13/cobra"

	"blockpack/internal/config"
	"blockpack/pkg/logger"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Validate a packaging config without building anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		log := logger.GetLogger()
		log.ConfigureFromEnv()

		cfg, err := config.Load(path)
		if err != nil {
			log.Error("Config is invalid", "file", path, "error", err)
			return err
		}

		log.Info("Config is valid", "file", path, "summary", cfg.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
