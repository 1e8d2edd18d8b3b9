package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roman-kulish/radiosense/internal/collect"
	"github.com/roman-kulish/radiosense/internal/storage"
	"github.com/roman-kulish/radiosense/internal/wire"
)

const (
	storageDir      = "data"
	shutdownTimeout = 5 * time.Second
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	codec, err := wire.NewCodec(config.Protocol.NodeCount, config.Protocol.Sentinels)
	if err != nil {
		return fmt.Errorf("failed to create codec: %w", err)
	}

	buffer, err := collect.NewEpochBuffer(config.Protocol.Channels, config.Storage.BufferCapacity, config.Storage.FlushCount)
	if err != nil {
		return fmt.Errorf("failed to create buffer: %w", err)
	}

	source := createSource(&config.Source, codec, logger)
	orchestrator := NewOrchestrator(source, buffer, store, &config.Protocol,
		WithLogger(logger),
		WithMaxBatchSize(config.Storage.MaxBatchSize))

	if config.API.Listen != "" {
		stop := serveAPI(config.API.Listen, NewAPI(store, logger), logger)
		defer stop()
	}

	return orchestrator.Run(ctx)
}

func createSource(config *SourceConfig, codec *wire.Codec, logger *slog.Logger) *collect.Source {
	var stream collect.Stream
	if config.Command != "" {
		stream = collect.CommandStream{
			Runtime: config.Command,
			Args:    config.Args,
			Logger:  logger,
		}
	} else {
		stream = collect.FileStream{Path: config.Path}
	}

	options := []func(*collect.Source){collect.WithLogger(logger)}
	if config.ParseErrorsThreshold > 0 {
		options = append(options, collect.WithParseErrorsThreshold(config.ParseErrorsThreshold))
	}

	return collect.NewSource(stream, codec, options...)
}

// serveAPI starts the HTTP API in the background and returns a function that shuts it down
func serveAPI(addr string, api *API, logger *slog.Logger) func() {
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Info("starting API", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(fmt.Sprintf("API server error: %s", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("API server shutdown: %s", err.Error()))
		}
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	var dbPath string
	if config.DataDirectory != "" {
		dbPath = filepath.Join(wd, config.DataDirectory)
		if filepath.IsAbs(config.DataDirectory) {
			dbPath = config.DataDirectory
		}
	} else {
		dbPath = filepath.Join(wd, storageDir)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("rssi_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
