package export

import (
	"fmt"
	"io"

	"shameless/internal/feed/models"

	"github.com/jung-kurt/gofpdf"
)

// LikedPDF writes an A4 summary of the positions a user liked.
func LikedPDF(w io.Writer, email string, positions []models.Position) error {
	p := gofpdf.New("P", "mm", "A4", "")
	p.SetTitle("Liked positions", true)
	p.SetAuthor(email, true)
	tr := p.UnicodeTranslatorFromDescriptor("")

	p.AddPage()
	p.SetFont("Helvetica", "B", 18)
	p.Cell(0, 10, tr("Liked positions"))
	p.Ln(10)

	p.SetFont("Helvetica", "", 11)
	p.Cell(0, 6, tr(email))
	p.Ln(8)

	p.SetDrawColor(0xFF, 0x6B, 0x6B)
	p.SetLineWidth(0.5)
	p.Line(10, p.GetY(), 200, p.GetY())
	p.Ln(4)

	if len(positions) == 0 {
		p.SetFont("Helvetica", "I", 11)
		p.Cell(0, 8, "No liked positions yet.")
	}

	for i, pos := range positions {
		p.SetFont("Helvetica", "B", 12)
		p.CellFormat(10, 8, fmt.Sprintf("%d.", i+1), "", 0, "L", false, 0, "")
		p.CellFormat(0, 8, tr(pos.Name), "", 1, "L", false, 0, "")

		p.SetFont("Helvetica", "", 9)
		p.SetTextColor(100, 100, 100)
		if pos.ImageURL != "" {
			p.CellFormat(10, 5, "", "", 0, "L", false, 0, "")
			p.CellFormat(0, 5, tr(pos.ImageURL), "", 1, "L", false, 0, pos.ImageURL)
		}
		p.SetTextColor(0, 0, 0)
		p.Ln(2)
	}

	if err := p.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
