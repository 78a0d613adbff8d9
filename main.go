package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("Failed to load environment", "error", err)
		os.Exit(1)
	}

	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: false,
		Level:     cfg.LogLevel,
	}))

	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := NewSQLDatabase(ctx, cfg.DB)
	if err != nil {
		slog.Error("Failed to init the database", "error", err)
		os.Exit(1)
	}

	server := NewAPIServer(db, cfg)
	err = server.Run(ctx)

	if cerr := db.Close(); cerr != nil {
		slog.Error("Failed to close the database", "error", cerr)
	}

	if err != nil {
		slog.Error("Server run error", "error", err)
		os.Exit(1)
	}
}
