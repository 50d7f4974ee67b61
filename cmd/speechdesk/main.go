package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/speechdesk/speechdesk/internal/config"
	"github.com/speechdesk/speechdesk/internal/gateway"
	"github.com/speechdesk/speechdesk/internal/httpapi"
	"github.com/speechdesk/speechdesk/internal/message"
	"github.com/speechdesk/speechdesk/internal/observability"
	"github.com/speechdesk/speechdesk/internal/pipeline"
	"github.com/speechdesk/speechdesk/internal/playback"
	"github.com/speechdesk/speechdesk/internal/session"
	"github.com/speechdesk/speechdesk/internal/store"
)

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	kv, err := store.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer kv.Close()

	settings := store.NewSettings(kv)
	history := store.NewHistory(kv, cfg.MaxHistoryBytes)

	state := session.NewState(cfg.ProviderAPIKey)
	restoreState(ctx, cfg, state, settings, history)

	gw := gateway.New(gateway.Config{
		BaseURL:            cfg.ProviderBaseURL,
		RequestTimeout:     cfg.RequestTimeout,
		TranscriptionModel: cfg.TranscriptionModel,
	})

	saver := store.NewSaver(history, cfg.SaveDebounce, state.Messages, func(id string) {
		metrics.HistoryEvictions.Inc()
		state.Remove(id)
	})
	state.SetOnMutate(saver.Kick)
	defer saver.Close()

	pl := pipeline.New(state, gw, metrics, pipeline.Config{
		RetryPronePrefixes: cfg.RetryPronePrefixes,
		RetryDelay:         cfg.RetryDelay,
		PricePerMillion:    cfg.PricePerMillion,
	})
	pb := playback.NewController(state)

	api := httpapi.New(cfg, state, pl, pb, gw, settings, history, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	pl.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// restoreState loads the persisted credential, preferences and message
// history into the session. All reads are tolerant; a fresh database starts
// with defaults.
func restoreState(ctx context.Context, cfg config.Config, state *session.State, settings *store.Settings, history *store.History) {
	if credential := settings.Credential(ctx); credential != "" {
		state.SetCredential(credential)
	}

	prefs := session.Settings{
		ModelID:           settings.ModelID(ctx),
		SplitEnabled:      settings.Flag(ctx, store.KeySplitEnabled),
		ConcurrentEnabled: settings.Flag(ctx, store.KeyConcurrent),
		AutoPlayEnabled:   settings.Flag(ctx, store.KeyAutoPlay),
		ConsoleVisible:    settings.Flag(ctx, store.KeyConsoleVisible),
	}
	if prefs.ModelID == "" {
		prefs.ModelID = cfg.DefaultModelID
	}
	if voice, ok := settings.Voice(ctx); ok {
		prefs.Voice = voice
	} else {
		prefs.Voice = message.Voice{ID: gateway.DefaultVoiceID, Name: "Default", Type: message.VoiceSystem}
	}
	state.SetSettings(prefs)
	state.ReplaceNicknames(settings.Nicknames(ctx))

	messages, err := history.Load(ctx)
	if err != nil {
		log.Printf("history load failed, starting empty: %v", err)
		return
	}
	state.ReplaceMessages(messages)
	if len(messages) > 0 {
		log.Printf("restored %d message(s) from history", len(messages))
	}
}
