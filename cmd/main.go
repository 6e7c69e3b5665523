package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charleschow/live-scoring/internal/adapters/inbound/operator_http"
	"github.com/charleschow/live-scoring/internal/adapters/inbound/stomp_ws"
	"github.com/charleschow/live-scoring/internal/adapters/outbound/backend_http"
	"github.com/charleschow/live-scoring/internal/adapters/outbound/discord"
	"github.com/charleschow/live-scoring/internal/config"
	"github.com/charleschow/live-scoring/internal/core/completion"
	"github.com/charleschow/live-scoring/internal/core/dispatch"
	"github.com/charleschow/live-scoring/internal/core/display"
	"github.com/charleschow/live-scoring/internal/core/reconciler"
	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/events"
	"github.com/charleschow/live-scoring/internal/fanout"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.Errorf("Config: %v", err)
		os.Exit(1)
	}
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting live scoring  backend=%s  push=%s", cfg.BackendBaseURL, cfg.BackendWSURL)

	bus := events.NewBus()

	// ── Scoring models ──────────────────────────────────────────
	classifier := match.DefaultClassifier()
	if cfg.SportsTablePath != "" {
		table, err := config.LoadSportTable(cfg.SportsTablePath)
		if err != nil {
			telemetry.Errorf("Failed to load sport table: %v", err)
			os.Exit(1)
		}
		setBased := append(append([]string{}, match.DefaultSetBasedSports...), table.SetBased...)
		classifier = match.NewClassifier(setBased, table.Continuous)
	}

	// ── Push frame archive ──────────────────────────────────────
	var archive *stomp_ws.Store
	if cfg.ArchivePath != "" {
		archive, err = stomp_ws.OpenStore(cfg.ArchivePath, cfg.ArchiveMaxBytes)
		if err != nil {
			telemetry.Warnf("Push archive disabled: %v", err)
			archive = nil
		}
	}

	// ── Push channel ────────────────────────────────────────────
	chOpts := []stomp_ws.Option{stomp_ws.WithBus(bus)}
	if archive != nil {
		chOpts = append(chOpts, stomp_ws.WithArchive(archive))
	}
	channel := stomp_ws.New(stomp_ws.Config{
		URL:                  cfg.BackendWSURL,
		AuthToken:            cfg.AuthToken,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Heartbeat:            cfg.HeartbeatInterval,
	}, chOpts...)

	// ── Backend REST ────────────────────────────────────────────
	client := backend_http.NewClient(backend_http.Config{
		BaseURL:   cfg.BackendBaseURL,
		AuthToken: cfg.AuthToken,
		Timeout:   cfg.RequestTimeout,
		ReadRate:  cfg.ReadRateLimit,
		WriteRate: cfg.WriteRateLimit,
	})

	// ── Completion notices ──────────────────────────────────────
	sinks := []completion.Sink{completion.LogSink{}}
	webhook := discord.NewNotifier(cfg.DiscordWebhookURL)
	if webhook.Enabled() {
		sinks = append(sinks, webhook)
		telemetry.Infof("Discord notifications enabled")
	}
	notifier := completion.New(sinks...)
	notifier.Attach(bus)

	display.NewObserver(os.Stderr).Attach(bus)
	feed := fanout.NewServer(bus)

	// ── Reconciler + dispatcher ─────────────────────────────────
	session := reconciler.New(channel, client, bus, reconciler.Config{
		PollInterval: cfg.PollInterval,
		AutoSelect:   cfg.AutoSelect && cfg.MatchID == 0,
		Classifier:   classifier,
	})
	dispatcher := dispatch.New(client, session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := channel.Connect(ctx); err != nil {
			var ce *stomp_ws.ConnectionError
			if errors.As(err, &ce) {
				telemetry.Warnf("Push channel: %v (snapshots only until it reconnects)", ce)
				return
			}
			telemetry.Warnf("Push channel: %v", err)
		}
	}()

	if cfg.MatchID != 0 {
		if err := session.Select(ctx, cfg.MatchID); err != nil {
			telemetry.Warnf("Preselect match %d: %v", cfg.MatchID, err)
		}
	}

	// ── Operator server ─────────────────────────────────────────
	server := &http.Server{
		Addr:         cfg.OperatorAddr,
		Handler:      operator_http.NewHandler(session, dispatcher, notifier, operator_http.WithFeed(feed.HandleWS)).Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("HTTP server: %v", err)
			os.Exit(1)
		}
	}()
	telemetry.Infof("Operator API listening on %q", cfg.OperatorAddr)

	go session.Run(ctx)

	// ── Shutdown ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	session.Close()
	channel.Close()
	notifier.Close()
	if archive != nil {
		archive.Close()
	}

	telemetry.Infof("Shutdown complete")
}
