// Package render rasterizes a scratch stroke path into the reveal mask drawn
// over a position image.
package render

import (
	"fmt"
	"image"
	"io"
	"math"

	"shameless/internal/scratch"

	"github.com/gogpu/gg"
)

// DefaultOverlay is the opaque scratch-off colour.
const DefaultOverlay = "#FF6B6B"

// ============================================================
// Mask Renderer
// ============================================================

type MaskRenderer struct {
	Side        int
	StrokeWidth float64
	Overlay     gg.RGBA
}

func NewMaskRenderer(side float64, overlayHex string) *MaskRenderer {
	if overlayHex == "" {
		overlayHex = DefaultOverlay
	}
	return &MaskRenderer{
		Side:        int(math.Round(side)),
		StrokeWidth: scratch.StrokeWidth,
		Overlay:     gg.Hex(overlayHex),
	}
}

// ForSurface builds a renderer matching the surface geometry.
func ForSurface(s *scratch.Surface, overlayHex string) *MaskRenderer {
	r := NewMaskRenderer(s.Side(), overlayHex)
	r.StrokeWidth = s.StrokeWidth()
	return r
}

// Mask returns the overlay alpha: 255 where the overlay stays, 0 along the
// stroked path.
func (r *MaskRenderer) Mask(path scratch.Path) (*gg.Mask, error) {
	if r.Side <= 0 {
		return nil, fmt.Errorf("invalid side %d", r.Side)
	}

	dc := gg.NewContext(r.Side, r.Side)
	defer dc.Close()

	if !path.Empty() {
		dc.SetRGBA(1, 1, 1, 1)
		dc.SetLineWidth(r.StrokeWidth)
		dc.SetLineCap(gg.LineCapRound)
		dc.SetLineJoin(gg.LineJoinRound)
		for _, sub := range path.Subpaths() {
			dc.MoveTo(sub[0].X, sub[0].Y)
			if len(sub) == 1 {
				// A tap leaves a dot with round caps.
				dc.LineTo(sub[0].X+0.01, sub[0].Y)
				continue
			}
			for _, p := range sub[1:] {
				dc.LineTo(p.X, p.Y)
			}
		}
		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("stroke path: %w", err)
		}
	}

	mask := gg.NewMaskFromAlpha(dc.Image())
	mask.Invert()
	return mask, nil
}

// Frame composites the overlay through the mask on top of background scaled
// to the surface. A nil background leaves the revealed area transparent.
func (r *MaskRenderer) Frame(background image.Image, path scratch.Path) (image.Image, error) {
	mask, err := r.Mask(path)
	if err != nil {
		return nil, err
	}

	overlay := gg.NewContext(r.Side, r.Side)
	defer overlay.Close()
	overlay.ClearWithColor(r.Overlay)
	overlay.ApplyMask(mask)

	dc := gg.NewContext(r.Side, r.Side)
	defer dc.Close()

	side := float64(r.Side)
	if background != nil {
		dc.DrawImageEx(gg.ImageBufFromImage(background), gg.DrawImageOptions{
			DstWidth:      side,
			DstHeight:     side,
			Interpolation: gg.InterpBilinear,
			Opacity:       1,
		})
	}
	dc.DrawImageEx(gg.ImageBufFromImage(overlay.Image()), gg.DrawImageOptions{
		DstWidth:  side,
		DstHeight: side,
		Opacity:   1,
	})

	return dc.Image(), nil
}

// EncodePNG writes the frame for path as PNG.
func (r *MaskRenderer) EncodePNG(w io.Writer, background image.Image, path scratch.Path) error {
	frame, err := r.Frame(background, path)
	if err != nil {
		return err
	}

	dc := gg.NewContextForImage(frame)
	defer dc.Close()
	return dc.EncodePNG(w)
}

// RevealedFraction is the exact share of erased pixels in mask.
func RevealedFraction(mask *gg.Mask) float64 {
	data := mask.Data()
	if len(data) == 0 {
		return 0
	}
	var erased float64
	for _, v := range data {
		erased += float64(255-v) / 255
	}
	return erased / float64(len(data))
}
