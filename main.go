package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "live-bidding/internal/biddingService"
	"live-bidding/internal/broadcast"
	"live-bidding/internal/config"
	"live-bidding/internal/repository"
	"live-bidding/internal/server"
	"live-bidding/internal/sweeper"
	handler "live-bidding/services/bidding/handler"
	"live-bidding/utils"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(getConfigPath(), ".env")
	if err != nil {
		utils.Fatal("Failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.Log.Level); err != nil {
		utils.Fatal("Invalid log level", map[string]any{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openStore(ctx, cfg.Database)
	if err != nil {
		utils.Fatal("Failed to open auction store", map[string]any{
			"driver": cfg.Database.Driver,
			"error":  err.Error(),
		})
	}
	defer closeRepo()

	// rooms read their join snapshots straight from the store
	rooms := broadcast.NewRouter(repo, broadcast.Config{
		RecentEvents:     cfg.Room.RecentEvents,
		SubscriberBuffer: cfg.Room.SubscriberBuffer,
		MaxPending:       cfg.Room.MaxPending,
		ReorderWindow:    cfg.Room.ReorderWindow.Duration,
	})

	biddingSvc, err := bidding.NewBiddingService(repo, rooms, bidding.Config{
		LockTimeout:      cfg.Bidding.LockTimeout.Duration,
		PersistTimeout:   cfg.Bidding.PersistTimeout.Duration,
		MaxCommitRetries: cfg.Bidding.MaxCommitRetries,
		CacheSize:        cfg.Bidding.CacheSize,
		CacheTTL:         cfg.Bidding.CacheTTL.Duration,
	})
	if err != nil {
		utils.Fatal("Failed to create bidding service", map[string]any{"error": err.Error()})
	}

	sweep := sweeper.New(biddingSvc, cfg.Sweep.Interval.Duration, cfg.Sweep.Concurrency)

	router := server.SetupRouter(biddingSvc, rooms, handler.SocketConfig{
		PingInterval:   cfg.WebSocket.PingInterval.Duration,
		WriteTimeout:   cfg.WebSocket.WriteTimeout.Duration,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		BidsPerSecond:  cfg.WebSocket.BidsPerSecond,
		BidBurst:       cfg.WebSocket.BidBurst,
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweep.Run(gctx)
	})
	g.Go(func() error {
		utils.Info("Starting auction server", map[string]any{
			"addr":   srv.Addr,
			"driver": cfg.Database.Driver,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.Info("Shutting down auction server", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		utils.Error("Auction server stopped with error", map[string]any{"error": err.Error()})
		closeRepo()
		os.Exit(1)
	}
	utils.Info("Auction server stopped", nil)
}

// openStore returns the configured auction store and its cleanup
func openStore(ctx context.Context, cfg config.DatabaseConfig) (repository.AuctionDB, func(), error) {
	if cfg.Driver != "postgres" {
		return repository.NewMemoryRepo(), func() {}, nil
	}

	repo, err := repository.NewPostgresRepo(ctx, cfg.URL, cfg.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

// getConfigPath returns the config file path from env or defaults to "config.toml"
func getConfigPath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return "config.toml"
}
