package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/antoniostano/intervista/internal/avatar"
	"github.com/antoniostano/intervista/internal/config"
	"github.com/antoniostano/intervista/internal/httpapi"
	"github.com/antoniostano/intervista/internal/interview"
	"github.com/antoniostano/intervista/internal/observability"
	"github.com/antoniostano/intervista/internal/session"
	"github.com/antoniostano/intervista/internal/synth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewStageWindow(256)

	var synthesizer synth.Synthesizer

	tryElevenLabs := func() bool {
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			return false
		}
		synthesizer = synth.NewElevenLabsSynthesizer(synth.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			BaseURL: cfg.ElevenLabsBaseURL,
			VoiceID: cfg.SynthVoice,
			ModelID: cfg.SynthModel,
			Timeout: cfg.SynthTimeout,
		})
		log.Printf("synth provider: elevenlabs voice=%s", cfg.SynthVoice)
		return true
	}

	switch strings.ToLower(strings.TrimSpace(cfg.SynthProvider)) {
	case "elevenlabs":
		if !tryElevenLabs() {
			log.Fatalf("SYNTH_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
	case "mock":
		synthesizer = synth.NewMockSynthesizer("")
		log.Printf("synth provider: mock")
	case "auto", "":
		if !tryElevenLabs() {
			synthesizer = synth.NewMockSynthesizer("")
			log.Printf("synth provider: mock (no elevenlabs key)")
		}
	default:
		log.Fatalf("invalid SYNTH_PROVIDER: %q (expected auto|elevenlabs|mock)", cfg.SynthProvider)
	}

	renderer := avatar.NewDIDRenderer(avatar.DIDConfig{
		APIKey:        cfg.DIDAPIKey,
		BaseURL:       cfg.DIDBaseURL,
		PresenterID:   cfg.PresenterID,
		VoiceID:       cfg.PresenterVoice,
		RenderTimeout: cfg.RenderTimeout,
		PollInterval:  cfg.RenderPollInterval,
		IdleVideoURL:  cfg.IdleVideoURL,
	})
	if strings.TrimSpace(cfg.DIDAPIKey) == "" {
		log.Printf("avatar renderer: not configured, sessions start audio-only")
	} else {
		log.Printf("avatar renderer: d-id presenter=%s", cfg.PresenterID)
	}

	var source interview.Source
	if strings.TrimSpace(cfg.QuestionsDatabaseURL) != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgSource, err := interview.NewPostgresSource(initCtx, cfg.QuestionsDatabaseURL)
		cancel()
		if err != nil {
			log.Fatalf("question catalog init failed: %v", err)
		}
		defer pgSource.Close()
		source = pgSource
		log.Printf("question catalog: postgres (%d questions)", len(pgSource.Questions()))
	} else {
		source = interview.NewStaticSource(nil)
		log.Printf("question catalog: built-in")
	}

	store := session.NewStore(cfg.SessionIdleTimeout)

	orchestrator := interview.New(interview.Options{
		Store:             store,
		Synth:             synthesizer,
		Renderer:          renderer,
		Source:            source,
		ForcedMode:        session.AvatarMode(cfg.ForcedAvatarMode),
		PresenterID:       cfg.PresenterID,
		PresenterImageURL: cfg.PresenterImageURL,
		Metrics:           metrics,
		Window:            window,
	})

	api := httpapi.New(cfg, orchestrator, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	store.StartJanitor(runCtx, cfg.SessionSweepInterval)

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

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
