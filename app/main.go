package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lysyi3m/social-comb/app/api"
	"github.com/lysyi3m/social-comb/app/cfg"
	"github.com/lysyi3m/social-comb/app/mastodon"
	"github.com/lysyi3m/social-comb/app/monitor"
	"github.com/lysyi3m/social-comb/app/platforms"
	"github.com/lysyi3m/social-comb/app/sources"
	"github.com/lysyi3m/social-comb/app/state"
)

func main() {
	// .env is optional, ignore a missing file
	godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Social Comb server", "version", appCfg.Version)

	feedSources, err := sources.Load(filepath.Join(appCfg.DataDir, "sources.yml"))
	if err != nil {
		slog.Error("Failed to load sources", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}

	credentialStore := mastodon.NewCredentialStore(appCfg.DataDir)
	stateStore := state.NewStore(filepath.Join(appCfg.DataDir, "state.json"), state.DefaultState)

	var adapters []platforms.SocialPlatform
	if appCfg.TwitterScriptLocation != "" && len(feedSources.TwitterLists) > 0 {
		adapters = append(adapters, platforms.NewTwitter(appCfg.TwitterScriptLocation, appCfg.DataDir, feedSources.TwitterLists))
	}
	if len(feedSources.MastodonFollowings) > 0 {
		adapters = append(adapters, platforms.NewMastodon(feedSources.MastodonFollowings, credentialStore, httpClient))
	}
	if len(feedSources.BlueskyFollowings) > 0 {
		adapters = append(adapters, platforms.NewBluesky(feedSources.BlueskyFollowings, httpClient))
	}
	if len(feedSources.RSSFeeds) > 0 {
		adapters = append(adapters, platforms.NewRSS(feedSources.RSSFeeds, httpClient, appCfg.UserAgent))
	}
	if len(adapters) == 0 {
		slog.Warn("No platforms configured, the feed will stay empty")
	}

	feedMonitor := monitor.New(adapters)
	feedMonitor.Start()
	defer feedMonitor.Stop()

	authenticator := mastodon.NewAuthenticator(credentialStore, feedMonitor, mastodon.WithHTTPClient(httpClient))

	apiHandler := api.NewHandler(feedMonitor, authenticator, stateStore, feedSources.MastodonFollowings, httpClient)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey, appCfg.WebDir)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Monitor is stopped via defer
	slog.Info("Shutdown complete")
}
