package app

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white
	EnhancedTheme  ColorTheme = "enhanced"  // Black to blue to cyan to yellow to red

	DefaultColorMapSize = 256 // Default number of colors in the map
)

// ColorTheme represents a predefined color scheme for RSSI visualization
type ColorTheme string

var validColorThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
	EnhancedTheme:  {},
}

func ParseColorTheme(s string) (ColorTheme, error) {
	theme := ColorTheme(s)
	if _, ok := validColorThemes[theme]; !ok {
		return "", fmt.Errorf("unknown color theme: %s", s)
	}
	return theme, nil
}

// NoDataColor fills cells of nodes that never reported on a channel
var NoDataColor color.Color = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}

// Bounds is the RSSI range, in dBm, the color map spreads over
type Bounds struct {
	Min float64
	Max float64
}

// ColorMapper provides RSSI to color mapping over a pre-computed color map
type ColorMapper struct {
	colorMap   []color.Color // Pre-computed colors
	bounds     Bounds
	dbmPerStep float64
}

// NewColorMapper creates a new color mapper with specified theme, bounds and map size
func NewColorMapper(theme ColorTheme, bounds Bounds, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	cm := ColorMapper{
		colorMap: make([]color.Color, size),
		bounds:   bounds,
	}

	span := bounds.Max - bounds.Min
	if span <= 0 {
		span = 1
	}
	cm.dbmPerStep = span / float64(size-1)

	fn := colorTheme(theme)
	for i := range cm.colorMap {
		cm.colorMap[i] = fn(float64(i) / float64(size-1))
	}

	return &cm
}

// Color returns the color for an RSSI value. Values outside the bounds are clamped.
func (cm *ColorMapper) Color(dbm *float64) color.Color {
	if dbm == nil {
		return NoDataColor
	}

	index := int(math.Round((*dbm - cm.bounds.Min) / cm.dbmPerStep))
	index = max(0, min(index, len(cm.colorMap)-1))

	return cm.colorMap[index]
}

func hsv(h, s, v float64) color.Color {
	return colorful.Hsv(math.Mod(h, 360), clamp(s), clamp(v)).Clamped()
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func colorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(p float64) color.Color {
			return hsv(240-(p*240), 0.9+(p*0.1), math.Pow(p, 0.7))
		}

	case GrayscaleTheme:
		return func(p float64) color.Color {
			return colorful.Color{R: math.Pow(p, 0.7), G: math.Pow(p, 0.7), B: math.Pow(p, 0.7)}
		}

	case JungleTheme:
		return func(p float64) color.Color {
			return hsv(120-(p*60), 1, 0.3+(math.Pow(p, 0.6)*0.7))
		}

	case ThermalTheme:
		black := colorful.Color{}
		red := colorful.Color{R: 1}
		yellow := colorful.Color{R: 1, G: 1}
		white := colorful.Color{R: 1, G: 1, B: 1}
		return func(p float64) color.Color {
			switch {
			case p < 0.33:
				return black.BlendRgb(red, p*3)
			case p < 0.66:
				return red.BlendRgb(yellow, (p-0.33)*3)
			default:
				return yellow.BlendRgb(white, clamp((p-0.66)*3))
			}
		}

	case MarineTheme:
		return func(p float64) color.Color {
			return hsv(240-(p*60), 1-(p*0.8), 0.3+(math.Pow(p, 0.6)*0.7))
		}

	default:
		return func(p float64) color.Color {
			enhanced := math.Pow(p, 0.7)

			switch {
			case p < 0.25:
				return hsv(240, 1, enhanced*4)
			case p < 0.5:
				return hsv(240-((p-0.25)*240), 1, enhanced*1.5)
			case p < 0.75:
				return hsv(180-((p-0.5)*4*120), 1, enhanced*1.5)
			default:
				return hsv(60-((p-0.75)*4*60), 1, 1)
			}
		}
	}
}
