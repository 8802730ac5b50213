package export

import (
	"bytes"
	"testing"

	"shameless/internal/feed/models"
)

func TestLikedPDF(t *testing.T) {
	var buf bytes.Buffer
	positions := []models.Position{
		{ID: "1", Name: "Backend Engineer", ImageURL: "https://picsum.photos/id/1/600"},
		{ID: "2", Name: "Designer"},
	}
	if err := LikedPDF(&buf, "ann@example.com", positions); err != nil {
		t.Fatalf("LikedPDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a pdf: %q", buf.Bytes()[:min(16, buf.Len())])
	}
}

func TestLikedPDFEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := LikedPDF(&buf, "ann@example.com", nil); err != nil {
		t.Fatalf("LikedPDF: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected a document for an empty list")
	}
}
