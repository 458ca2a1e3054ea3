package analysis

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"webpsync/internal/apperr"
)

const MaxFileSize int64 = 20 * 1024 * 1024

var supportedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
}

// Heuristic WebP/original size ratios for the pre-conversion preview.
var webpRatio = map[string]float64{
	"jpeg": 0.7,
	"png":  0.45,
	"gif":  0.6,
	"bmp":  0.15,
	"tiff": 0.25,
	"webp": 1.0,
}

const defaultWebPRatio = 0.7

type File struct {
	Name string
	Data []byte
}

type Info struct {
	Name              string `json:"name"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	Size              int64  `json:"size"`
	Format            string `json:"format"`
	MimeType          string `json:"mime_type"`
	EstimatedWebPSize int64  `json:"estimated_webp_size"`
}

type Result struct {
	Name string
	Info *Info
	Err  error
}

func ValidateSize(size int64) error {
	if size > MaxFileSize {
		return apperr.New(apperr.KindValidation, "analysis.ValidateSize",
			fmt.Sprintf("ukuran file %.1f MB melebihi batas %d MB", float64(size)/1024/1024, MaxFileSize/1024/1024))
	}
	if size == 0 {
		return apperr.New(apperr.KindValidation, "analysis.ValidateSize", "file kosong")
	}
	return nil
}

// Validate checks the size ceiling and the sniffed content type and returns
// the detected format.
func Validate(data []byte) (string, error) {
	if err := ValidateSize(int64(len(data))); err != nil {
		return "", err
	}
	mime := mimetype.Detect(data).String()
	format, ok := supportedTypes[mime]
	if !ok {
		return "", apperr.New(apperr.KindValidation, "analysis.Validate", fmt.Sprintf("tipe file tidak didukung: %s", mime))
	}
	return format, nil
}

// EstimateWebPSize is a preview figure only. Audit records use the real
// encoded size.
func EstimateWebPSize(size int64, format string) int64 {
	ratio, ok := webpRatio[format]
	if !ok {
		ratio = defaultWebPRatio
	}
	return int64(float64(size) * ratio)
}

func Analyze(f File) (*Info, error) {
	format, err := Validate(f.Data)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "analysis.Analyze", "gagal membaca dimensi gambar", err)
	}

	size := int64(len(f.Data))
	return &Info{
		Name:              f.Name,
		Width:             cfg.Width,
		Height:            cfg.Height,
		Size:              size,
		Format:            format,
		MimeType:          mimetype.Detect(f.Data).String(),
		EstimatedWebPSize: EstimateWebPSize(size, format),
	}, nil
}

// AnalyzeAll never stops at a bad file; each entry carries its own error.
func AnalyzeAll(files []File) []Result {
	results := make([]Result, 0, len(files))
	for _, f := range files {
		info, err := Analyze(f)
		results = append(results, Result{Name: f.Name, Info: info, Err: err})
	}
	return results
}
