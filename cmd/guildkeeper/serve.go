package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/auth"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/metrics"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/server"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func (app *cli) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and keep the snapshot in sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runServe(cmd.Context())
		},
	}
	defaults := app.configViper
	cmd.Flags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.Flags().String("admin-api-key", "", "Dashboard admin API key (overrides env)")
	cmd.Flags().String("signing-secret", "", "Admin token signing secret (overrides env)")
	cmd.Flags().Int64("owner-id", 0, "User id registered as admin on start")
	cmd.Flags().Bool("watch", defaults.GetBool("snapshot.watch"), "React to snapshot file events")
	for key, flag := range map[string]string{
		"http.address":        "http-address",
		"admin.api_key":       "admin-api-key",
		"auth.signing_secret": "signing-secret",
		"owner.id":            "owner-id",
		"snapshot.watch":      "watch",
	} {
		if err := app.configViper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func (app *cli) runServe(ctx context.Context) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt, err := app.openRuntime(ctx, metrics.NewPrometheus(registry))
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	if rt.config.OwnerID > 0 {
		if _, err := rt.store.AddAdmin(ctx, rt.config.OwnerID, "", ""); err != nil {
			logger.Warn("owner admin not persisted", zap.Int64("user_id", rt.config.OwnerID), zap.Error(err))
		}
	}

	var tokenIssuer server.AdminTokenIssuer
	var tokenValidator auth.TokenValidator
	if rt.config.SigningSecret != "" {
		issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(rt.config.SigningSecret),
			Issuer:        "guildkeeper-dashboard",
			Audience:      "guildkeeper-admin",
			TokenTTL:      rt.config.TokenTTL,
		})
		if err != nil {
			return err
		}
		tokenIssuer = issuer
		tokenValidator = issuer
	} else {
		logger.Info("auth.signing_secret not set, bearer tokens disabled")
	}
	if rt.config.AdminAPIKey == "" {
		logger.Warn("admin.api_key not set, admin routes disabled")
	}

	realtime := server.NewRealtimeDispatcher()
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Repository: rt.store,
		Authenticator: auth.NewAdminAuthenticator(auth.AdminAuthenticatorConfig{
			APIKey: rt.config.AdminAPIKey,
			Tokens: tokenValidator,
		}),
		TokenIssuer:        tokenIssuer,
		Realtime:           realtime,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		XPLeaderboardSize:  rt.config.XPLeaderboardSize,
		CupLeaderboardSize: rt.config.CupLeaderboardSize,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	snapshotWatcher, err := watcher.New(watcher.Config{
		Path:        rt.store.Path(),
		Interval:    pollInterval(rt.config.PollInterval),
		UseFSNotify: rt.config.WatchSnapshot,
		Syncer:      server.NewSnapshotNotifier(rt.store, realtime),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              rt.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return snapshotWatcher.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if flushErr := flushIfDirty(rt); flushErr != nil {
		err = errors.Join(err, flushErr)
	}
	return err
}

// pollInterval maps a zero configured interval onto "polling disabled".
func pollInterval(configured time.Duration) time.Duration {
	if configured == 0 {
		return -1
	}
	return configured
}

func flushIfDirty(rt *runtime) error {
	if !rt.store.Dirty() {
		return nil
	}
	rt.logger.Info("flushing pending changes before exit")
	return rt.store.Save(context.Background())
}
