package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"wp-fleet-manager/config"
	"wp-fleet-manager/controllers"
	"wp-fleet-manager/remote"
	"wp-fleet-manager/server"
	"wp-fleet-manager/services"
	"wp-fleet-manager/store"
	"wp-fleet-manager/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := setup()
		if err != nil {
			return err
		}
		defer st.Close()
		defer utils.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		gin.SetMode(gin.ReleaseMode)
		h := newHandler(cfg, st)
		h.Sync.RefreshStatusGauge(ctx)

		srv := server.New(cfg.HTTP.ListenAddr, server.NewRouter(h, cfg.HTTP.AllowedOrigins))
		errCh := make(chan error, 1)
		go func() {
			utils.LogInfo("Listening on %s", cfg.HTTP.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
		}

		utils.LogInfo("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func newHandler(cfg *config.Config, st *store.Store) *controllers.Handler {
	clients := services.NewClientFactory(remote.Options{
		Timeout:       cfg.Remote.Timeout,
		UpdateTimeout: cfg.Remote.UpdateTimeout,
		MaxBodyBytes:  cfg.Remote.MaxBodyBytes,
		UserAgent:     cfg.Remote.UserAgent,
	})
	return &controllers.Handler{
		Store:   st,
		Clients: clients,
		Sync:    services.NewSyncService(st, clients, cfg.Sync.Concurrency),
		Orchestrator: services.NewUpdateOrchestrator(services.OrchestratorOptions{
			VerifyAttempts: cfg.Remote.VerifyAttempts,
			VerifyInterval: cfg.Remote.VerifyInterval,
		}),
		Locks: services.NewSiteLocks(),
		Provisioner: services.NewProvisioner(services.ProvisionOptions{
			PluginArchive:  cfg.Provision.PluginArchive,
			KnownHostsFile: cfg.Provision.KnownHosts,
			SSHTimeout:     cfg.Provision.SSHTimeout,
		}),
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
		TokenTTL:   cfg.Auth.TokenTTL,
		RunTimeout: cfg.Remote.RunTimeout,
	}
}
