package render

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"shameless/internal/scratch"
)

// ============================================================
// SVG Mask
// ============================================================

// SVG builds a standalone document that clients without a rasterizer can
// display: the image, then the overlay rect masked by the stroke path.
func (r *MaskRenderer) SVG(path scratch.Path, imageURL string) string {
	side := formatFloat(float64(r.Side))
	overlay := fmt.Sprintf("#%02x%02x%02x", to8(r.Overlay.R), to8(r.Overlay.G), to8(r.Overlay.B))

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%s" height="%s" viewBox="0 0 %s %s">`,
		side, side, side, side))
	b.WriteString("\n")

	if imageURL != "" {
		b.WriteString(fmt.Sprintf(`  <image href="%s" x="0" y="0" width="%s" height="%s" preserveAspectRatio="xMidYMid slice" />`,
			escape(imageURL), side, side))
		b.WriteString("\n")
	}

	b.WriteString(`  <mask id="scratch">` + "\n")
	b.WriteString(`    <rect x="0" y="0" width="100%" height="100%" fill="white" />` + "\n")
	if !path.Empty() {
		b.WriteString(fmt.Sprintf(`    <path d="%s" stroke="black" stroke-width="%s" stroke-linecap="round" stroke-linejoin="round" fill="none" />`,
			path.String(), formatFloat(r.StrokeWidth)))
		b.WriteString("\n")
	}
	b.WriteString(`  </mask>` + "\n")

	b.WriteString(fmt.Sprintf(`  <rect x="0" y="0" width="100%%" height="100%%" fill="%s" mask="url(#scratch)" />`, overlay))
	b.WriteString("\n")
	b.WriteString(`</svg>`)
	return b.String()
}

// ============================================================
// Formatting helpers
// ============================================================

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}

func to8(c float64) uint8 {
	if c <= 0 {
		return 0
	}
	if c >= 1 {
		return 255
	}
	return uint8(c*255 + 0.5)
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
