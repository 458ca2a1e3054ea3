package codec

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"webpsync/internal/apperr"
)

const (
	MinQuality       = 50
	MaxQuality       = 100
	webpMaxDimension = 16383
)

const ContentType = "image/webp"

// Encoder writes img as WebP. quality is on the 50..100 scale.
type Encoder interface {
	Name() string
	Encode(w io.Writer, img image.Image, quality int) error
}

// Options with TargetWidth == TargetHeight == 0 keep the original dimensions.
type Options struct {
	Quality      int
	TargetWidth  int
	TargetHeight int
	Watermark    WatermarkConfig
}

func (o Options) Validate() error {
	const op = "codec.Options.Validate"
	if o.Quality < MinQuality || o.Quality > MaxQuality {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf("kualitas harus di antara %d dan %d", MinQuality, MaxQuality))
	}
	if o.TargetWidth < 0 || o.TargetHeight < 0 {
		return apperr.New(apperr.KindValidation, op, "dimensi target tidak boleh negatif")
	}
	if (o.TargetWidth == 0) != (o.TargetHeight == 0) {
		return apperr.New(apperr.KindValidation, op, "lebar dan tinggi target harus sama-sama 0 atau sama-sama lebih besar dari 0")
	}
	if o.TargetWidth > webpMaxDimension || o.TargetHeight > webpMaxDimension {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf("dimensi target melebihi batas WebP (%dpx)", webpMaxDimension))
	}
	if o.Watermark.Enabled {
		if _, err := ParsePosition(string(o.Watermark.Position)); err != nil {
			return err
		}
	}
	return nil
}

func (o Options) KeepOriginalSize() bool {
	return o.TargetWidth == 0 && o.TargetHeight == 0
}

type Codec struct {
	encoder Encoder
}

func New(encoder Encoder) *Codec {
	return &Codec{encoder: encoder}
}

func (c *Codec) EncoderName() string {
	return c.encoder.Name()
}

// Encode decodes data, fits it into the target bounds, applies the
// watermark and re-encodes it as WebP. Output is deterministic for a given
// input and options.
func (c *Codec) Encode(data []byte, opts Options) ([]byte, error) {
	const op = "codec.Encode"
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCodec, op, "gagal membuat image dari source", err)
	}

	prepared, err := Prepare(img, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, prepared, opts.Quality); err != nil {
		return nil, apperr.Wrap(apperr.KindCodec, op, "gagal encode webp", err)
	}
	return buf.Bytes(), nil
}

// Prepare returns a drawable copy of img resized to fit the target bounds
// with the watermark applied.
func Prepare(img image.Image, opts Options) (*image.NRGBA, error) {
	var dst *image.NRGBA

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scale := 1.0
	if !opts.KeepOriginalSize() {
		scale = calculateOptimalScale(w, h, opts.TargetWidth, opts.TargetHeight)
	}

	if scale < 1.0 {
		nw := max(1, int(math.Round(float64(w)*scale)))
		nh := max(1, int(math.Round(float64(h)*scale)))
		dst = imaging.Resize(img, nw, nh, imaging.Lanczos)
	} else {
		dst = imaging.Clone(img)
	}

	if err := ApplyWatermark(dst, opts.Watermark); err != nil {
		return nil, apperr.Wrap(apperr.KindCodec, "codec.Prepare", "gagal menerapkan watermark", err)
	}
	return dst, nil
}

func calculateOptimalScale(w, h int, maxWidth, maxHeight int) float64 {
	if w <= maxWidth && h <= maxHeight {
		return 1.0
	}
	return math.Min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
}
