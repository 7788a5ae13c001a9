// feedtap connects to the odds feed, subscribes to one tuple, and streams
// decoded messages to the console. Useful for checking a backend before
// pointing oddsview at it.
//
// Usage: go run ./cmd/feedtap --url ws://localhost:8000/ws/odds --sport NHL --game g1 --market Moneyline
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oddsview/oddsview/internal/connection"
	"github.com/oddsview/oddsview/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8000/ws/odds", "feed WebSocket URL")
	sport := flag.String("sport", "", "sport to subscribe")
	gameID := flag.String("game", "", "game id to subscribe")
	market := flag.String("market", "", "market to subscribe")
	verbose := flag.Bool("verbose", false, "print full odds payloads")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultConfig()
	cfg.URL = *url

	manager := connection.NewManager(cfg, connection.Handlers{
		OnState: func(info connection.Info) {
			fmt.Printf("state=%v upstream=%v games=%d books=%d\n",
				info.State, info.UpstreamConnected, info.GamesTracked, info.SportsbooksActive)
		},
		OnMessage: func(msg protocol.Message) {
			printMessage(msg, *verbose)
		},
	}, logger)

	if err := manager.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer manager.Disconnect()

	if *sport != "" && *gameID != "" && *market != "" {
		// Small delay so the subscribe lands after the connected message.
		time.Sleep(200 * time.Millisecond)
		if err := manager.Subscribe(*sport, *gameID, *market); err != nil {
			logger.Warn("subscribe failed", "error", err)
		}
	} else {
		logger.Info("no complete tuple given, listening only")
	}

	<-ctx.Done()
	fmt.Println("done")
}

func printMessage(msg protocol.Message, verbose bool) {
	switch m := msg.(type) {
	case protocol.Snapshot:
		fmt.Printf("snapshot game=%s market=%s books=%d\n", m.GameID, m.Market, len(m.Odds))
		if verbose {
			dump(m.Odds)
		}
	case protocol.Update:
		fmt.Printf("update game=%s market=%s books=%d\n", m.GameID, m.Market, len(m.Odds))
		if verbose {
			dump(m.Odds)
		}
	case protocol.ServerError:
		fmt.Printf("error: %s\n", m.Message)
	default:
		fmt.Printf("message type=%s\n", msg.MessageType())
	}
}

func dump(v any) {
	data, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		return
	}
	fmt.Println("  " + string(data))
}
