package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"captiond/internal/resolver"
)

func newResolveCmd(root *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the model folder the service would load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.LocalModelDir = dir
			}
			log := newLogger(os.Stderr, cfg.LogLevel, root.pretty)
			src, err := resolver.New(cfg.ManifestFile, log).Resolve(cfg.LocalModelDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), src.Dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Local model directory (overrides config)")
	return cmd
}
