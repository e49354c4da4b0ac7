package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"captiond/internal/captioner"
	"captiond/internal/config"
	"captiond/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr string
		lazy bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP caption server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, root.pretty, lazy)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080 (overrides config)")
	cmd.Flags().BoolVar(&lazy, "lazy", false, "Load the model on the first request instead of at startup")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, pretty, lazy bool) error {
	log := newLogger(os.Stderr, cfg.LogLevel, pretty)

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetRequestTimeout(time.Duration(cfg.RequestTimeout))
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{http.MethodGet, http.MethodPost, http.MethodOptions},
			[]string{"Content-Type", "X-Log-Level", "X-Request-Id"})
	}
	httpapi.SetBaseContext(ctx)

	cache := captioner.New(captioner.FromConfig(cfg, log))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := cache.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("close captioner")
		}
	}()

	if !lazy {
		if _, err := cache.EnsureLoaded(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(cache),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model_dir", cfg.LocalModelDir).Bool("lazy", lazy).Msg("captiond listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
		return err
	}
	return nil
}
