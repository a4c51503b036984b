package render

import (
	"fmt"
	"image/color"
	"image/color/palette"
	"strconv"
)

// MarkerPalette colours markers by rank within a frame, cycling.
var MarkerPalette = []color.RGBA{
	mustHex("#ffd6d6"),
	mustHex("#c0ffb6"),
	mustHex("#faffb0"),
	mustHex("#d0ddff"),
	mustHex("#e1bfff"),
}

var (
	OutlineColor    = mustHex("#858693")
	DateColor       = mustHex("#d3bf91")
	BackgroundColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// MarkerColor returns the palette entry for the rank-th marker of a frame.
func MarkerColor(rank int) color.RGBA {
	return MarkerPalette[rank%len(MarkerPalette)]
}

// FramePalette is the fixed 256-entry palette of GIF frames: the design
// colours first, then a grey ramp for anti-aliased outlines and text, then the
// web-safe cube for marker blending.
var FramePalette = buildFramePalette()

func buildFramePalette() color.Palette {
	p := make(color.Palette, 0, 256)
	p = append(p, BackgroundColor, OutlineColor, DateColor)
	for _, c := range MarkerPalette {
		p = append(p, c)
	}
	for i := 0; i < 32; i++ {
		v := uint8(i * 255 / 31)
		p = append(p, color.RGBA{R: v, G: v, B: v, A: 0xff})
	}
	for _, c := range palette.WebSafe {
		if len(p) == cap(p) {
			break
		}
		p = append(p, c)
	}
	return p
}

func parseHex(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func mustHex(s string) color.RGBA {
	c, err := parseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}
