package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/roman-kulish/radiosense/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderMatrix(ctx, store, config, logger)
}

func renderMatrix(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) (err error) {
	matrix, err := store.ChannelMatrix(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("reading session %d: %w", config.SessionID, err)
	}

	bounds := matrixBounds(matrix, config.MinRSSI, config.MaxRSSI)

	logger.Info("finished reading session",
		slog.Group("stats",
			slog.String("uuid", matrix.Session.UUID),
			slog.Int("channels", len(matrix.Rows)),
			slog.Int("nodes", matrix.Session.NodeCount),
			slog.String("minRSSI", fmt.Sprintf("%0.1fdBm", bounds.Min)),
			slog.String("maxRSSI", fmt.Sprintf("%0.1fdBm", bounds.Max)),
		))

	renderer := NewMatrixRenderer(RenderConfig{
		Location:   config.TimeZone,
		CellSize:   config.CellSize,
		ColorTheme: config.Theme,
		Annotate:   !config.NoAnnotations,
	})

	logger.Info("rendering matrix",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("cell", config.CellSize),
		))

	img, err := renderer.Render(matrix, bounds)
	if err != nil {
		return fmt.Errorf("rendering matrix: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
