package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/promptcraft/promptcraft-chat/internal/handlers"
	"github.com/promptcraft/promptcraft-chat/internal/services"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("error getting user config dir: %w", err)
	}
	cfgPath := filepath.Join(cfgDir, "promptcraft")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	cfgFilePath := os.Getenv("PROMPTCRAFT_CONFIG")
	if cfgFilePath == "" {
		cfgFilePath = filepath.Join(cfgPath, "config.yaml")
	}
	cfg, err := loadConfig(cfgFilePath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	llm, err := cfg.LLM.llm(logger)
	if err != nil {
		return fmt.Errorf("error creating llm: %w", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfgPath, "store.db")
	}
	boltDB, err := services.NewBoltDB(dbPath)
	if err != nil {
		return err
	}
	defer boltDB.Close()

	m, err := handlers.NewMain(llm, boltDB, handlers.Config{
		StreamMode:        cfg.StreamMode,
		ExclusiveFeedback: cfg.ExclusiveFeedback,
		AllowedOrigins:    cfg.AllowedOrigins,
	}, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr), slog.String("db", dbPath),
			slog.String("streamMode", string(cfg.StreamMode)))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Warn("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
	return nil
}

// loadConfig decodes the config file at path. A missing file yields the default configuration.
func loadConfig(path string) (config, error) {
	cfgFile, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	if err != nil {
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer cfgFile.Close()

	cfg := defaultConfig()
	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}
