package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/yz4230/shipyard/cmd/hook"
	"github.com/yz4230/shipyard/internal/config"
)

var rootFlags struct {
	verbose bool
	config  string
}

// provider is loaded before any command runs.
var provider *config.Provider

var rootCmd = &cobra.Command{
	Use:   "shipyard",
	Short: "Pull, build, upload and restart projects on remote hosts",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

		p, err := config.Load(config.New(), rootFlags.config, log.Logger)
		if err != nil {
			return err
		}
		provider = p
		applyLogLevel(p.Get())
		return nil
	},
}

func applyLogLevel(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if rootFlags.verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.config, "config", "c", "", "Config file (YAML); SHIPYARD_* environment variables override it")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hook.HookCmd)
}
