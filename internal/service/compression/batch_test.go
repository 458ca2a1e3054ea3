package compression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"webpsync/internal/analysis"
	"webpsync/internal/apperr"
	"webpsync/internal/codec"
)

type pngEncoder struct{}

func (pngEncoder) Name() string { return "png" }

func (pngEncoder) Encode(w io.Writer, img image.Image, _ int) error {
	return png.Encode(w, img)
}

type taggingEncoder struct {
	delay func(data []byte) time.Duration
}

func (e taggingEncoder) Encode(data []byte, opts codec.Options) ([]byte, error) {
	if e.delay != nil {
		time.Sleep(e.delay(data))
	}
	return []byte(fmt.Sprintf("webp:%d:q%d", len(data), opts.Quality)), nil
}

type failingEncoder struct{}

func (failingEncoder) Encode([]byte, codec.Options) ([]byte, error) {
	return nil, errors.New("encoder rusak")
}

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to build fixture: %v", err)
	}
	return buf.Bytes()
}

func defaultOptions() codec.Options {
	return codec.Options{Quality: 85, TargetWidth: 1200, TargetHeight: 900}
}

func TestConvertBatchContinuesAfterBadFile(t *testing.T) {
	files := []analysis.File{
		{Name: "rusak.jpg", Data: []byte("bukan gambar")},
		{Name: "fasad.png", Data: samplePNG(t, 40, 30)},
	}

	var progress []Progress
	var completed []FileResult
	results, err := ConvertBatch(context.Background(), taggingEncoder{}, files, BatchOptions{
		Codec:          defaultOptions(),
		OnProgress:     func(p Progress) { progress = append(progress, p) },
		OnFileComplete: func(r FileResult) { completed = append(completed, r) },
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Status != StatusError || results[0].Kind != apperr.KindValidation || results[0].Message == "" {
		t.Errorf("Expected validation error first, got %+v", results[0])
	}
	if results[1].Status != StatusSuccess || results[1].NewSize != int64(len(results[1].Blob)) {
		t.Errorf("Expected success second, got %+v", results[1])
	}
	if len(completed) != 2 {
		t.Errorf("Expected 2 completion callbacks, got %d", len(completed))
	}
	if len(progress) != 2 || progress[0].Percentage != 0 || progress[1].Percentage != 50 || progress[1].CurrentFileName != "fasad.png" {
		t.Errorf("Unexpected progress %+v", progress)
	}
}

func TestConvertBatchReportsEncoderFailure(t *testing.T) {
	files := []analysis.File{{Name: "a.png", Data: samplePNG(t, 8, 8)}}

	results, err := ConvertBatch(context.Background(), failingEncoder{}, files, BatchOptions{Codec: defaultOptions()})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if results[0].Status != StatusError || results[0].Message != "encoder rusak" {
		t.Errorf("Unexpected result %+v", results[0])
	}
}

func TestConvertBatchIsDeterministic(t *testing.T) {
	enc := codec.New(pngEncoder{})
	files := []analysis.File{
		{Name: "a.png", Data: samplePNG(t, 60, 20)},
		{Name: "b.png", Data: samplePNG(t, 20, 60)},
	}
	opts := BatchOptions{Codec: codec.Options{Quality: 80, TargetWidth: 30, TargetHeight: 30}}

	first, err := ConvertBatch(context.Background(), enc, files, opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := ConvertBatch(context.Background(), enc, files, opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for i := range first {
		if first[i].Status != StatusSuccess {
			t.Fatalf("File %d failed: %s", i, first[i].Message)
		}
		if !bytes.Equal(first[i].Blob, second[i].Blob) {
			t.Errorf("File %d produced different output", i)
		}
	}
}

func TestWorkerPoolKeepsInputOrder(t *testing.T) {
	var files []analysis.File
	for i := 0; i < 10; i++ {
		files = append(files, analysis.File{Name: fmt.Sprintf("img-%d.png", i), Data: samplePNG(t, 4+i, 4)})
	}
	enc := taggingEncoder{delay: func(data []byte) time.Duration {
		return time.Duration(len(data)%7) * time.Millisecond
	}}

	completed := 0
	results, err := ConvertBatch(context.Background(), enc, files, BatchOptions{
		Codec:          defaultOptions(),
		Concurrency:    4,
		OnFileComplete: func(FileResult) { completed++ },
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if completed != len(files) {
		t.Errorf("Expected %d completions, got %d", len(files), completed)
	}
	for i, r := range results {
		if r.FileName != files[i].Name {
			t.Errorf("Result %d is %s, want %s", i, r.FileName, files[i].Name)
		}
		if want := fmt.Sprintf("webp:%d:q85", len(files[i].Data)); string(r.Blob) != want {
			t.Errorf("Result %d blob %q, want %q", i, r.Blob, want)
		}
	}
}

func TestConvertBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []analysis.File{
		{Name: "a.png", Data: samplePNG(t, 4, 4)},
		{Name: "b.png", Data: samplePNG(t, 4, 4)},
	}

	for _, concurrency := range []int{1, 3} {
		completed := 0
		results, err := ConvertBatch(ctx, taggingEncoder{}, files, BatchOptions{
			Codec:          defaultOptions(),
			Concurrency:    concurrency,
			OnFileComplete: func(FileResult) { completed++ },
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(results) != 2 || completed != 2 {
			t.Fatalf("Expected 2 results and callbacks, got %d and %d", len(results), completed)
		}
		if concurrency == 1 {
			for _, r := range results {
				if r.Status != StatusError {
					t.Errorf("Expected cancelled result, got %+v", r)
				}
			}
		}
	}
}

func TestConvertBatchRejectsInvalidOptions(t *testing.T) {
	_, err := ConvertBatch(context.Background(), taggingEncoder{}, nil, BatchOptions{Codec: codec.Options{Quality: 30}})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}
