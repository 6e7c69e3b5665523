// watch tails a running operator's live feed and prints the scoreboard, so a
// second screen can follow the match without touching the backend.
//
// Usage:
//
//	go run ./cmd/watch -addr 127.0.0.1:8790 -match 42
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charleschow/live-scoring/internal/core/display"
	"github.com/charleschow/live-scoring/internal/events"
	"github.com/charleschow/live-scoring/internal/fanout"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8790", "operator API address")
	matchID := flag.Int64("match", 0, "only show this match (0 = whatever the operator selects)")
	level := flag.String("log", "info", "log level")
	flag.Parse()

	telemetry.Init(telemetry.ParseLogLevel(*level))
	telemetry.Infof("Watching operator feed at %s", *addr)

	bus := events.NewBus()
	display.NewObserver(os.Stdout).Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go fanout.NewClient(*addr, *matchID, bus).ConnectWithRetry(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}
