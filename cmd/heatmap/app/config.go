package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	TimeZone      *time.Location
	CellSize      int
	MaxRSSI       *float64
	MinRSSI       *float64
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    EnhancedTheme,
		TimeZone: time.Local,
		CellSize: defaultCellSize,
	}
}

// NewConfigFromCLI parses the process command line
func NewConfigFromCLI(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("heatmap", flag.ContinueOnError)
	fs.SetOutput(output)

	var imageFormat, theme, tz string
	var minRSSI, maxRSSI float64
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(EnhancedTheme), "Color theme. [enhanced, classic, grayscale, jungle, thermal, marine]")
	fs.StringVar(&tz, "tz", "", "Time zone of the info bar, e.g. Australia/Sydney (default local)")
	fs.IntVar(&c.CellSize, "cell", defaultCellSize, "Cell size in pixels")
	fs.Float64Var(&minRSSI, "min-rssi", 0, "Define a manual minimum RSSI, dBm (format nn.n)")
	fs.Float64Var(&maxRSSI, "max-rssi", 0, "Define a manual maximum RSSI, dBm (format nn.n)")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as channel and node scales")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-rssi" {
			c.MinRSSI = &minRSSI
		}
		if f.Name == "max-rssi" {
			c.MaxRSSI = &maxRSSI
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.CellSize < minCellSize {
		err = fmt.Errorf("cell size must be at least %d pixels: %d given", minCellSize, c.CellSize)
	} else if c.MinRSSI != nil && c.MaxRSSI != nil && *c.MinRSSI >= *c.MaxRSSI {
		err = fmt.Errorf("min-rssi %.1f must be below max-rssi %.1f", *c.MinRSSI, *c.MaxRSSI)
	} else if c.Theme, err = ParseColorTheme(strings.ToLower(theme)); err == nil && tz != "" {
		c.TimeZone, err = time.LoadLocation(tz)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
