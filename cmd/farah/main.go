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

	"github.com/medvoice/farah/internal/agent"
	"github.com/medvoice/farah/internal/analysis"
	"github.com/medvoice/farah/internal/appointments"
	"github.com/medvoice/farah/internal/config"
	"github.com/medvoice/farah/internal/dispatch"
	"github.com/medvoice/farah/internal/httpapi"
	"github.com/medvoice/farah/internal/observability"
	"github.com/medvoice/farah/internal/relay"
	"github.com/medvoice/farah/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := appointments.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("appointment store init failed: %v", err)
	}
	defer store.Close()

	topicRelay := relay.NewRelay(cfg.RelayBufferSize, cfg.RelayReliableWait, metrics)

	var queue *dispatch.QueueAdapter
	if strings.TrimSpace(cfg.ExecutorURL) != "" {
		bridge := dispatch.NewBridge(cfg.ExecutorURL, cfg.ExecutorTimeout, cfg.DispatchMaxInFlight, metrics)
		queue = dispatch.NewQueueAdapter(bridge)
		log.Printf("command executor: %s", cfg.ExecutorURL)
	} else {
		log.Printf("command executor: disabled (COMMAND_EXECUTOR_URL not set)")
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	coordinator := agent.New(sessions, store, topicRelay, nil, metrics)

	sessions.SetExpireHook(func(s *session.Session) {
		log.Printf("session %s expired after inactivity", s.ID)
		coordinator.ExpireSession(s.ID)
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	summarizer := analysis.NewSummarizer(
		topicRelay,
		nil,
		analysis.NewThrottler(cfg.AnalysisMinInterval, cfg.AnalysisMaxInterval, cfg.AnalysisWordThreshold),
	)
	go summarizer.Run(runCtx)

	api := httpapi.New(cfg, sessions, coordinator, topicRelay, queue, metrics)
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

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	coordinator.Close()

	log.Printf("shutdown complete")
}
