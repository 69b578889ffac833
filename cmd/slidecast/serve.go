package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/slidecast/internal/api/connect"
	"github.com/osa030/slidecast/internal/api/web"
	"github.com/osa030/slidecast/internal/app/live"
	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/infra/config"
	"github.com/osa030/slidecast/internal/infra/metrics"
	"github.com/osa030/slidecast/internal/infra/store"
)

// runServe executes the HTTP server. Using a separate function ensures
// defer statements are executed even when returning with an error.
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	deckStore, err := store.NewFromConfig(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open deck store: %w", err)
	}
	defer deckStore.Close()

	collectors := metrics.New()
	opts := web.Options{
		Segmenter:      newSegmenter(cfg),
		Store:          deckStore,
		Metrics:        collectors,
		Export:         exportOptions(cfg),
		MaxDeckBytes:   cfg.Server.MaxDeckBytes,
		PresenterToken: cfg.Presenter.Token,
	}

	// Live presentation
	var session *live.Session
	if deckPath := firstNonEmpty(*serveDeck, cfg.Presenter.Deck); deckPath != "" {
		session, err = newLiveSession(cfg, deckPath, collectors)
		if err != nil {
			return err
		}
		defer session.Close()

		if cfg.Presenter.Token == "" {
			zlog.Warn().Msg("presenter.token is empty; remote control is disabled")
		}
		presenterService := apiconnect.NewPresenterService(session)
		opts.Session = session
		opts.ConnectPath, opts.ConnectHandler = apiconnect.NewPresenterServiceHandler(
			presenterService,
			connect.WithInterceptors(apiconnect.NewPresenterAuthInterceptor(cfg.Presenter.Token)),
		)
	}

	serverAddr := firstNonEmpty(*serveAddr, cfg.Server.Addr)
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(web.NewHandler(opts), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s store=%s", serverAddr, cfg.Store.Type)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	if session != nil && *serveAutostart {
		if err := startLive(session, cfg); err != nil {
			zlog.Error().Msgf("Failed to start live presentation: %v", err)
		}
	}

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
		if session != nil {
			// Viewers see the presentation end before connections close
			_ = session.Controller().Stop()
		}
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()

	// Close the session first to terminate active streams
	if session != nil {
		session.Close()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

func newLiveSession(cfg *config.Config, deckPath string, m *metrics.Collectors) (*live.Session, error) {
	deck, err := loadDeck(cfg, deckPath)
	if err != nil {
		return nil, err
	}
	speaker, err := newSpeaker(cfg)
	if err != nil {
		return nil, err
	}
	if speaker == nil {
		zlog.Warn().Msg("No speech backend available; the live presentation runs in manual mode only")
	}

	session := live.NewSession(deck, speaker, playbackConfig(cfg),
		notification.NewManager(cfg.Server.NotificationTimeout()), m)
	session.Run()
	zlog.Info().Msgf("Live presentation ready: deck=%s slides=%d", deckPath, deck.Len())
	return session, nil
}

// startLive starts the live presentation in the configured mode.
func startLive(session *live.Session, cfg *config.Config) error {
	controller := session.Controller()
	mode, err := playback.ParseMode(firstNonEmpty(controller.Deck().Meta.Mode, cfg.Presenter.Mode))
	if err != nil {
		return err
	}
	if mode == playback.ModeAuto && !controller.NarrationAvailable() {
		mode = playback.ModeManual
	}
	return controller.Start(mode)
}
