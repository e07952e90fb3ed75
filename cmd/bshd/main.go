// bshd: Beat Saber historian daemon.
// Streams game events from the HTTP status feed's TCP socket, reduces them
// into per-song results, archives raw sessions and serves a local RPC socket.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyberblades/historian/internal/config"
	"github.com/cyberblades/historian/internal/db"
	"github.com/cyberblades/historian/internal/feed"
	"github.com/cyberblades/historian/internal/historian"
	"github.com/cyberblades/historian/internal/logger"
	"github.com/cyberblades/historian/internal/mirror"
	"github.com/cyberblades/historian/internal/notify"
	"github.com/cyberblades/historian/internal/rpc"
	"github.com/cyberblades/historian/internal/store"
)

func main() {
	configPath := flag.String("c", "", "config file path (default: $XDG_CONFIG_HOME/bsh/config.yaml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bshd: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "bshd: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("daemon failed")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbc, err := db.Open(cfg.DbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbc.Close()
	st := store.New(dbc)

	var uploader historian.Uploader
	if m, err := mirror.FromConfig(cfg.Mirror, cfg.ArchiveDir); err != nil {
		return fmt.Errorf("configure mirror: %w", err)
	} else if m != nil {
		uploader = m
		logger.Info().Str("store", cfg.Mirror.Store).Msg("archive mirror enabled")
	}

	hub := notify.NewHub()
	h := historian.New(st, cfg.ArchiveDir, cfg.HandTracking, hub, uploader)

	srv := rpc.NewServer(h, cfg.PermanentPlayers)
	if err := srv.Listen(cfg.SocketPath); err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	defer os.Remove(cfg.SocketPath)

	logger.Info().
		Str("db", cfg.DbPath).
		Str("archive", cfg.ArchiveDir).
		Str("socket", cfg.SocketPath).
		Str("game", cfg.BeatSaberAddr).
		Msg("bshd starting")

	go feed.New(cfg.BeatSaberAddr, h).Run(ctx)

	err = srv.Serve(ctx)
	if ctx.Err() != nil {
		logger.Info().Msg("bshd shutting down")
		return nil
	}
	return err
}
