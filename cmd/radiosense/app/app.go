package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roman-kulish/radiosense/internal/node"
	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/radio"
	"github.com/roman-kulish/radiosense/internal/sink"
	"github.com/roman-kulish/radiosense/internal/wire"
)

const shutdownTimeout = 5 * time.Second

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	logger = logger.With(slog.Int("node", int(config.Node.ID)), slog.String("role", config.Node.Role.String()))

	udp, err := radio.NewUDP(uint8(config.Node.ID), config.Radio, radio.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create radio: %w", err)
	}

	options := []func(*node.Runtime){node.WithLogger(logger)}
	if config.Node.Role.Collects() {
		frameSink, closer, err := createSink(&config.Sink, &config.Protocol, logger)
		if err != nil {
			_ = udp.Close()
			return fmt.Errorf("failed to create sink: %w", err)
		}
		defer closer.Close()

		options = append(options, node.WithFrameSink(frameSink))
	}

	rt, err := node.New(config.Protocol, config.Node.ID, config.Node.Role, udp, options...)
	if err != nil {
		_ = udp.Close()
		return fmt.Errorf("failed to create node: %w", err)
	}

	if config.Status.Listen != "" {
		stop := serveStatus(config.Status.Listen, NewStatus(rt), logger)
		defer stop()
	}

	logger.Info("node started", slog.String("listen", udp.Addr().String()))
	defer logger.Info("node stopped")

	return rt.Run(ctx)
}

func createSink(config *SinkConfig, protocolConfig *protocol.Config, logger *slog.Logger) (protocol.FrameSink, io.Closer, error) {
	if config.Device == "" {
		return protocol.NewLogSink(logger), nopCloser{}, nil
	}

	codec, err := wire.NewCodec(protocolConfig.NodeCount, protocolConfig.Sentinels)
	if err != nil {
		return nil, nil, fmt.Errorf("creating codec: %w", err)
	}

	device, err := sink.OpenDevice(config.Device)
	if err != nil {
		return nil, nil, err
	}

	return sink.NewSerial(device, codec), device, nil
}

// serveStatus starts the status endpoint in the background and returns a function that shuts it down
func serveStatus(addr string, status *Status, logger *slog.Logger) func() {
	r := chi.NewRouter()
	status.RegisterRoutes(r)

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Info("starting status endpoint", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(fmt.Sprintf("status server error: %s", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("status server shutdown: %s", err.Error()))
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
