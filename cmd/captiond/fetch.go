package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"captiond/internal/fetch"
)

func newFetchCmd(root *rootOptions) *cobra.Command {
	var uri, dir string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Mirror the remote model prefix into the local model directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if uri != "" {
				cfg.RemoteURI = uri
			}
			if dir != "" {
				cfg.LocalModelDir = dir
			}
			log := newLogger(os.Stderr, cfg.LogLevel, root.pretty)
			f := fetch.New(fetch.Config{
				AllowAnonymous: cfg.AllowAnonymous,
				Log:            log.With().Str("component", "fetch").Logger(),
			})
			if err := f.Fetch(cmd.Context(), cfg.RemoteURI, cfg.LocalModelDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.LocalModelDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&uri, "uri", "", "Remote URI, e.g. gs://bucket/models/blip (overrides config)")
	cmd.Flags().StringVar(&dir, "dir", "", "Local model directory (overrides config)")
	return cmd
}
