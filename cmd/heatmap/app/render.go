package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/survey"
)

const (
	dpi            = 120.0
	fontSize       = 9.0
	tickMarkLength = 5
	lineSpacing    = 1.4

	defaultCellSize = 64
	minCellSize     = 16
	minImageWidth   = 720

	// cell values are printed only into cells at least this large
	minLabelledCellSize = 40

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 170
	defaultBottomBorder = 70
	defaultRightBorder  = 20

	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the matrix
type BorderConfig struct {
	Top    int // Space for node scale
	Left   int // Space for channel scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for matrix visualization
type RenderConfig struct {
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	// Visual configuration
	CellSize     int        // Cell edge in pixels
	FontSize     float64    // Font size in points
	ColorTheme   ColorTheme // Color scheme for RSSI values
	ColorMapSize int        // Number of colors in gradient (0 for default)
	Annotate     bool       // Draw scales, cell values and the info bar

	// Border configuration
	BorderConfig BorderConfig
}

// MatrixRenderer draws the channel by node mean RSSI of a session
type MatrixRenderer struct {
	config RenderConfig
}

// NewMatrixRenderer creates a new renderer with the given configuration
func NewMatrixRenderer(config RenderConfig) *MatrixRenderer {
	// Set defaults for zero values
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.CellSize == 0 {
		config.CellSize = defaultCellSize
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if !config.Annotate {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	return &MatrixRenderer{config: config}
}

// Render creates an image of the matrix, one cell per channel and node
func (r *MatrixRenderer) Render(m *survey.Matrix, bounds Bounds) (*image.RGBA, error) {
	if m.Session == nil || len(m.Rows) == 0 {
		return nil, fmt.Errorf("matrix has no channels")
	}

	nodes := m.Session.NodeCount
	borders := r.config.BorderConfig
	cell := r.config.CellSize

	fullWidth := borders.Left + nodes*cell + borders.Right
	fullHeight := borders.Top + len(m.Rows)*cell + borders.Bottom
	if r.config.Annotate {
		fullWidth = max(fullWidth, minImageWidth)
	}
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	grid := image.Rect(borders.Left, borders.Top, borders.Left+nodes*cell, borders.Top+len(m.Rows)*cell)
	colors := NewColorMapper(r.config.ColorTheme, bounds, r.config.ColorMapSize)

	r.renderCells(img, grid, m, colors)

	if !r.config.Annotate {
		return img, nil
	}

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, grid, m, colors, bounds); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

func (r *MatrixRenderer) renderCells(img *image.RGBA, grid image.Rectangle, m *survey.Matrix, colors *ColorMapper) {
	cell := r.config.CellSize
	for y, row := range m.Rows {
		for x, c := range row.Cells {
			rect := image.Rect(
				grid.Min.X+x*cell,
				grid.Min.Y+y*cell,
				grid.Min.X+(x+1)*cell-1, // 1px gap between cells
				grid.Min.Y+(y+1)*cell-1,
			)
			draw.Draw(img, rect, image.NewUniform(colors.Color(c.Mean)), image.Point{}, draw.Src)
		}
	}
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	fontFace font.Face
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, grid image.Rectangle, m *survey.Matrix, colors *ColorMapper, bounds Bounds) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawNodeScale(img, grid, m); err != nil {
		return fmt.Errorf("drawing node scale: %w", err)
	}
	if err := a.drawChannelScale(img, grid, m); err != nil {
		return fmt.Errorf("drawing channel scale: %w", err)
	}
	if a.config.CellSize >= minLabelledCellSize {
		if err := a.drawCellValues(grid, m, colors); err != nil {
			return fmt.Errorf("drawing cell values: %w", err)
		}
	}
	if err := a.drawInfoBar(img, m, bounds); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// drawText draws label horizontally centred on x with its baseline at y
func (a *annotator) drawText(label string, x, y int) error {
	width := font.MeasureString(a.fontFace, label)
	_, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, y))
	return err
}

func (a *annotator) drawNodeScale(img *image.RGBA, grid image.Rectangle, m *survey.Matrix) error {
	cell := a.config.CellSize
	textY := grid.Min.Y - tickMarkLength - a.fontFace.Metrics().Descent.Round() - 2

	for node := range m.Session.NodeCount {
		x := grid.Min.X + node*cell + cell/2

		// Draw tick mark
		for y := grid.Min.Y - tickMarkLength; y < grid.Min.Y; y++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("#%d", node)
		if node == int(m.Session.RootID) {
			label += " root"
		}
		if err := a.drawText(label, x, textY); err != nil {
			return fmt.Errorf("drawing node label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawChannelScale(img *image.RGBA, grid image.Rectangle, m *survey.Matrix) error {
	cell := a.config.CellSize
	metrics := a.fontFace.Metrics()

	for i, row := range m.Rows {
		y := grid.Min.Y + i*cell + cell/2

		// Draw tick mark
		for x := grid.Min.X - tickMarkLength; x < grid.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		// Center text vertically relative to the tick mark position
		textY := y + a.fontHeight()/2 - metrics.Descent.Round()

		label := fmt.Sprintf("ch %d  %s", row.Channel, rssi.FormatFrequency(row.Channel))
		pt := freetype.Pt(10, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing channel label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawCellValues(grid image.Rectangle, m *survey.Matrix, colors *ColorMapper) error {
	cell := a.config.CellSize
	metrics := a.fontFace.Metrics()

	for y, row := range m.Rows {
		for x, c := range row.Cells {
			label := "n/a"
			if c.Mean != nil {
				label = fmt.Sprintf("%.1f", *c.Mean)
			}

			a.context.SetSrc(image.NewUniform(textColor(colors.Color(c.Mean))))

			cx := grid.Min.X + x*cell + cell/2
			cy := grid.Min.Y + y*cell + cell/2 + a.fontHeight()/2 - metrics.Descent.Round()
			if err := a.drawText(label, cx, cy); err != nil {
				return err
			}
		}
	}

	a.context.SetSrc(image.Black)
	return nil
}

// textColor picks black or white, whichever reads better on background
func textColor(background color.Color) color.Color {
	c, _ := colorful.MakeColor(background)
	if l, _, _ := c.Lab(); l > 0.6 {
		return color.Black
	}
	return color.White
}

func (a *annotator) drawInfoBar(img *image.RGBA, m *survey.Matrix, bounds Bounds) error {
	s := m.Session

	var frames int
	for _, row := range m.Rows {
		for _, c := range row.Cells {
			frames += c.Frames
		}
	}
	if s.NodeCount > 0 {
		frames /= s.NodeCount
	}

	lines := []string{
		fmt.Sprintf("Session %d (%s); source: %s; started %s",
			s.ID, s.UUID, s.Source, s.StartTime.In(a.config.Location).Format(a.config.DatetimeFormat)),
		fmt.Sprintf("%s frames on %d channels, %d nodes; mean RSSI, colors span %.1f to %.1f dBm",
			humanize.Comma(int64(frames)), len(m.Rows), s.NodeCount, bounds.Min, bounds.Max),
	}

	step := int(float64(a.fontHeight()) * lineSpacing)
	textY := img.Bounds().Max.Y - a.config.BorderConfig.Bottom + step

	for _, line := range lines {
		pt := freetype.Pt(10, textY)
		if _, err := a.context.DrawString(line, pt); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		textY += step
	}

	return nil
}
