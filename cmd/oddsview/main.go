package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/oddsview/oddsview/internal/app"
	"github.com/oddsview/oddsview/internal/config"
	"github.com/oddsview/oddsview/internal/connection"
	"github.com/oddsview/oddsview/internal/database"
	"github.com/oddsview/oddsview/internal/history"
	"github.com/oddsview/oddsview/internal/metadata"
	"github.com/oddsview/oddsview/internal/metrics"
	"github.com/oddsview/oddsview/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/oddsview.local.yaml", "path to config file")
	sport := flag.String("sport", "", "sport to watch (overrides config)")
	gameID := flag.String("game", "", "game id to watch (overrides config)")
	market := flag.String("market", "", "market to watch (overrides config)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting oddsview",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics server
	metricsServer := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	logger.Info("metrics server started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)

	// Optional history recorder
	var recorder *history.Recorder
	if cfg.History.Enabled {
		logger.Info("connecting to database",
			"host", cfg.History.Postgres.Host,
			"port", cfg.History.Postgres.Port,
			"database", cfg.History.Postgres.Name,
		)

		pool, err := database.Connect(ctx, cfg.History.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		recorder = history.NewRecorder(history.Config{
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
		}, pool, logger)
		if err := recorder.Start(ctx); err != nil {
			logger.Error("failed to start history recorder", "error", err)
			os.Exit(1)
		}
	}

	// Metadata client
	metaClient := metadata.NewClient(
		cfg.Metadata.BaseURL,
		metadata.WithLogger(logger),
		metadata.WithTimeout(cfg.Metadata.Timeout),
		metadata.WithRetries(cfg.Metadata.MaxRetries, time.Second),
	)

	if status, err := metaClient.GetStatus(ctx); err != nil {
		logger.Warn("backend status unavailable", "error", err)
	} else {
		logger.Info("backend status",
			"upstream_connected", status.UpstreamConnected,
			"games_tracked", status.GamesTracked,
			"sportsbooks_active", status.SportsbooksActive,
		)
	}

	// Application core
	connCfg := connection.DefaultConfig()
	connCfg.URL = cfg.Feed.URL
	connCfg.ReconnectBaseDelay = cfg.Feed.ReconnectBaseDelay
	connCfg.ReconnectMaxDelay = cfg.Feed.ReconnectMaxDelay
	connCfg.PingInterval = cfg.Feed.PingInterval
	connCfg.WriteTimeout = cfg.Feed.WriteTimeout
	connCfg.HandshakeTimeout = cfg.Feed.HandshakeTimeout

	core := app.New(connCfg, logger, app.Options{
		Recorder: recorder,
		OnStatus: func(info connection.Info) {
			metrics.SetConnectionState(string(info.State))
		},
		OnServerError: func(msg string) {
			logger.Warn("feed rejected request", "message", msg)
		},
	})

	if err := core.Start(ctx); err != nil {
		logger.Error("failed to start feed connection", "error", err)
		// The manager keeps retrying; only a closed manager is fatal.
	}

	// Resolve the watch tuple: flags override config, and missing pieces
	// are filled from the metadata endpoints.
	watch := cfg.Watch
	if *sport != "" {
		watch.Sport = *sport
	}
	if *gameID != "" {
		watch.GameID = *gameID
	}
	if *market != "" {
		watch.Market = *market
	}

	watch, err = resolveWatch(ctx, metaClient, watch, logger)
	if err != nil {
		logger.Error("failed to resolve watch selection", "error", err)
		os.Exit(1)
	}

	core.SelectSport(watch.Sport)
	core.SelectGame(watch.GameID)
	core.SelectMarket(watch.Market)

	logger.Info("watching",
		"sport", watch.Sport,
		"game_id", watch.GameID,
		"market", watch.Market,
	)

	// Print rows on a short cadence rather than per change; odds bursts
	// would otherwise flood the terminal.
	printTicker := time.NewTicker(2 * time.Second)
	defer printTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-printTicker.C:
				printRows(core)
			}
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := core.Stop(shutdownCtx); err != nil {
		logger.Warn("app stop", "error", err)
	}
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("oddsview stopped")
}

// resolveWatch fills missing selection pieces from the metadata endpoints,
// taking the first available option at each level.
func resolveWatch(ctx context.Context, mc *metadata.Client, watch config.WatchConfig, logger *slog.Logger) (config.WatchConfig, error) {
	if watch.Sport == "" {
		sports, err := mc.GetSports(ctx)
		if err != nil {
			return watch, fmt.Errorf("list sports: %w", err)
		}
		if len(sports.Sports) == 0 {
			return watch, fmt.Errorf("no sports available")
		}
		watch.Sport = sports.Sports[0]
		logger.Info("sport auto-selected", "sport", watch.Sport)
	}

	if watch.GameID == "" {
		games, err := mc.GetGames(ctx, watch.Sport)
		if err != nil {
			return watch, fmt.Errorf("list games: %w", err)
		}
		if len(games) == 0 {
			return watch, fmt.Errorf("no games available for %s", watch.Sport)
		}
		watch.GameID = games[0].GameID
		logger.Info("game auto-selected",
			"game_id", watch.GameID,
			"description", games[0].GameDescription,
		)
	}

	if watch.Market == "" {
		markets, err := mc.GetMarkets(ctx, watch.Sport, watch.GameID)
		if err != nil {
			return watch, fmt.Errorf("list markets: %w", err)
		}
		if len(markets) == 0 {
			return watch, fmt.Errorf("no markets available for %s", watch.GameID)
		}
		watch.Market = markets[0]
		logger.Info("market auto-selected", "market", watch.Market)
	}

	return watch, nil
}

// printRows renders the current projection to stdout.
func printRows(core *app.App) {
	rows := core.Rows()
	moves := core.Movements()
	info := core.ConnectionInfo()

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s | upstream=%v | rows=%d", info.State, info.UpstreamConnected, len(rows))
	if core.Loading() {
		b.WriteString(" | loading")
	}
	b.WriteString("\n")

	for _, row := range rows {
		fmt.Fprintf(&b, "%-24s", row.Label)
		books := make([]string, 0, len(row.Books))
		for book := range row.Books {
			books = append(books, book)
		}
		sort.Strings(books)
		for _, book := range books {
			cell := row.Books[book]
			marker := " "
			if dir, ok := moves[book+"|"+row.Key]; ok {
				if dir == "up" {
					marker = "^"
				} else {
					marker = "v"
				}
			}
			best := " "
			if book == row.BestBook {
				best = "*"
			}
			fmt.Fprintf(&b, "  %s:%s%s%s", book, deref(cell.Odds), marker, best)
		}
		b.WriteString("\n")
	}

	fmt.Print(b.String())
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

