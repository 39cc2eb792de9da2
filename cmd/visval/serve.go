package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cprosche/visibility-testing/internal/api"
	"github.com/cprosche/visibility-testing/internal/auth"
	"github.com/cprosche/visibility-testing/internal/health"
	"github.com/cprosche/visibility-testing/internal/propagation"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve visibility calculation and validation over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			registry := propagation.DefaultRegistry()
			readiness := health.NewReadiness()

			srv := api.NewServer(api.Options{
				Addr:              cfg.HTTP.Addr,
				ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
				WriteTimeout:      cfg.HTTP.WriteTimeout,
				MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
				Auth:              auth.Config{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token},
				Registry:          registry,
				Reference:         cfg.Reference,
				Compare:           cfg.CompareOptions(),
				Version:           version,
				Readiness:         readiness,
				Logger:            a.logger,
			})

			if _, err := registry.Lookup(cfg.Reference); err != nil {
				readiness.SetNotReady(err.Error())
				a.logger.Warn("reference engine not registered, readiness probe will fail", "reference", cfg.Reference)
			} else {
				readiness.SetReady()
			}

			errc := make(chan error, 1)
			go func() {
				a.logger.Info("starting server", "addr", cfg.HTTP.Addr, "auth_enabled", cfg.Auth.Enabled, "engines", registry.Names())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			a.logger.Info("shutting down server...")
			readiness.SetNotReady("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
				return err
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	registerCompareFlags(cmd)
	return cmd
}
