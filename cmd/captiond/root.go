package main

import (
	"os"

	"github.com/spf13/cobra"

	"captiond/internal/config"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "captiond",
		Short: "Image captioning inference service",
		Long: `Image captioning inference service.

Environment Variables:
      CAPTIOND_CONFIG        Path to a YAML, JSON or TOML config file
      MODEL_FAMILY           (default: blip)         Model family to serve
      LOCAL_MODEL_DIR        (default: models)       Local model directory
      GCS_MODEL_URI          (default: none)         gs://bucket/prefix mirrored before load
      ALLOW_ANONYMOUS_FETCH  (default: false)        Fall back to anonymous bucket access
      DEVICE                 (default: auto)         auto, cpu, cuda or metal
      MAX_NEW_TOKENS         (default: 80)           Caption length limit
      BEAM_SIZE              (default: 3)            Beam width
      CAPTIOND_ADDR          (default: :8080)        HTTP listen address
      LOG_LEVEL              (default: info)         debug, info, warn, error, off`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv(config.EnvConfigFile), "Config file (.yaml, .json or .toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	cmd.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "Human readable console logs instead of JSON")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newFetchCmd(opts))
	cmd.AddCommand(newResolveCmd(opts))
	return cmd
}

// load resolves the effective configuration and applies the root flags.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Resolve(o.configPath, nil)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}
