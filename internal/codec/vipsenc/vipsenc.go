package vipsenc

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/cshum/vipsgen/vips"
	"github.com/disintegration/imaging"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Encoder hands the prepared bitmap to libvips as lossless PNG and lets
// webpsave produce the final bytes.
type Encoder struct{}

func New() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Name() string {
	return "vips"
}

func (e *Encoder) Encode(w io.Writer, img image.Image, quality int) error {
	var raw bytes.Buffer
	if err := imaging.Encode(&raw, img, imaging.PNG); err != nil {
		return fmt.Errorf("gagal menyiapkan bitmap untuk vips: %w", err)
	}

	source := vips.NewSource(io.NopCloser(&raw))
	defer source.Close()

	vimg, err := vips.NewImageFromSource(source, &vips.LoadOptions{
		Access:      vips.AccessSequentialUnbuffered,
		FailOnError: true,
	})
	if err != nil {
		return fmt.Errorf("gagal membuat image dari source: %w", err)
	}
	defer vimg.Close()

	target := vips.NewTarget(nopWriteCloser{w})
	defer target.Close()

	return vimg.WebpsaveTarget(target, &vips.WebpsaveTargetOptions{
		Q: quality,
	})
}
