package blob

import (
	"bytes"
	"image/jpeg"
	"testing"
)

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		maxEdge       int
		wantW, wantH  int
	}{
		{name: "already_small", width: 100, height: 50, maxEdge: 480, wantW: 100, wantH: 50},
		{name: "landscape", width: 1920, height: 1080, maxEdge: 480, wantW: 480, wantH: 270},
		{name: "portrait", width: 1000, height: 2000, maxEdge: 480, wantW: 240, wantH: 480},
		{name: "thin_strip", width: 5000, height: 1, maxEdge: 480, wantW: 480, wantH: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := scaleDimensions(tt.width, tt.height, tt.maxEdge)
			if w != tt.wantW || h != tt.wantH {
				t.Fatalf("scaleDimensions() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestGeneratePreviewProducesJPEG(t *testing.T) {
	src := encodePNG(t, 40, 20)

	preview, err := GeneratePreview(bytes.NewReader(src), 10, 0)
	if err != nil {
		t.Fatalf("GeneratePreview() error = %v", err)
	}
	if preview.MimeType != "image/jpeg" {
		t.Fatalf("MimeType = %q, want image/jpeg", preview.MimeType)
	}
	if preview.Width != 10 || preview.Height != 5 {
		t.Fatalf("preview size = %dx%d, want 10x5", preview.Width, preview.Height)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(preview.Data))
	if err != nil {
		t.Fatalf("jpeg.DecodeConfig() error = %v", err)
	}
	if cfg.Width != 10 || cfg.Height != 5 {
		t.Fatalf("encoded size = %dx%d, want 10x5", cfg.Width, cfg.Height)
	}
}

func TestGeneratePreviewRejectsGarbage(t *testing.T) {
	if _, err := GeneratePreview(bytes.NewReader([]byte("not an image")), 0, 0); err == nil {
		t.Fatal("GeneratePreview() error = nil, want error")
	}
}
