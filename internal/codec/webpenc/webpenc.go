package webpenc

import (
	"image"
	"io"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// Encoder encodes through libwebp. The 50..100 quality scale maps directly
// onto libwebp's 0..100 lossy quality factor.
type Encoder struct{}

func New() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Name() string {
	return "libwebp"
}

func (e *Encoder) Encode(w io.Writer, img image.Image, quality int) error {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return err
	}
	return webp.Encode(w, img, options)
}
