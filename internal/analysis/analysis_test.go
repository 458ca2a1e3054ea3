package analysis

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"webpsync/internal/apperr"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name  string
		size  int64
		valid bool
	}{
		{name: "small file", size: 1024, valid: true},
		{name: "exactly at ceiling", size: MaxFileSize, valid: true},
		{name: "over ceiling", size: MaxFileSize + 1, valid: false},
		{name: "empty", size: 0, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(tt.size)
			if tt.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.valid && !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	data := pngBytes(t, 40, 30)
	info, err := Analyze(File{Name: "facade.png", Data: data})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.Width != 40 || info.Height != 30 {
		t.Errorf("Expected 40x30, got %dx%d", info.Width, info.Height)
	}
	if info.Format != "png" || info.Size != int64(len(data)) {
		t.Errorf("Unexpected format/size: %s %d", info.Format, info.Size)
	}
	if info.EstimatedWebPSize != EstimateWebPSize(info.Size, "png") {
		t.Errorf("Estimate mismatch: %d", info.EstimatedWebPSize)
	}
}

func TestAnalyzeAllContinuesPastBadFiles(t *testing.T) {
	files := []File{
		{Name: "notes.txt", Data: []byte("not an image at all")},
		{Name: "ok.png", Data: pngBytes(t, 8, 8)},
	}

	results := AnalyzeAll(files)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if !apperr.Is(results[0].Err, apperr.KindValidation) {
		t.Errorf("Expected validation error for text file, got %v", results[0].Err)
	}
	if results[1].Err != nil || results[1].Info == nil {
		t.Errorf("Expected second file to be analyzed, got %v", results[1].Err)
	}
}

func TestEstimateWebPSize(t *testing.T) {
	if got := EstimateWebPSize(1000, "jpeg"); got != 700 {
		t.Errorf("Expected 700, got %d", got)
	}
	if got := EstimateWebPSize(1000, "unknown"); got != 700 {
		t.Errorf("Expected default ratio, got %d", got)
	}
}
