package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reelline/internal/app"
	"reelline/internal/engine"
	"reelline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with background recomputation and lateness sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret:              viper.GetString("jwt-secret"),
					AllowLegacyActorHeader: devAuth,
					DevLogin:               devAuth,
					Logger:                 a.Logger,
				}
				if authCfg.JWTSecret == "" {
					if !devAuth {
						return fmt.Errorf("REELLINE_JWT_SECRET is required unless --dev-auth is set")
					}
					// dev tokens from /auth/dev/login only need to survive this process
					authCfg.JWTSecret = uuid.NewString()
				}
				dispatcher := engine.NewDispatcher(a.Engine)
				watcher := engine.NewWatcher(a.Engine, dispatcher)
				handler, err := server.New(server.Config{Engine: a.Engine, Dispatcher: dispatcher, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}

				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.Logger.Error("dispatcher stopped", "error", err)
					}
				}()
				go func() {
					if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.Logger.Error("watcher stopped", "error", err)
					}
				}()

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving reelline api", "addr", addr, "base_path", basePath, "openapi", basePath+"/openapi.json", "docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devAuth, "dev-auth", false, "enable header auth and /auth/dev/login (local only)")
	return cmd
}
