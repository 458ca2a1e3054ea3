package codec

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"webpsync/internal/apperr"
)

type Position string

const (
	BottomRight Position = "bottom-right"
	BottomLeft  Position = "bottom-left"
	TopRight    Position = "top-right"
	TopLeft     Position = "top-left"
	Center      Position = "center"
)

const (
	watermarkMargin  = 20
	minWatermarkSize = 12.0
)

func ParsePosition(s string) (Position, error) {
	switch p := Position(strings.ToLower(s)); p {
	case BottomRight, BottomLeft, TopRight, TopLeft, Center:
		return p, nil
	}
	return "", apperr.New(apperr.KindValidation, "codec.ParsePosition", fmt.Sprintf("posisi watermark tidak valid: '%s'", s))
}

type WatermarkConfig struct {
	Enabled  bool     `json:"enabled"`
	Position Position `json:"position"`
	Text     string   `json:"text"`
	Opacity  float64  `json:"opacity"`
}

var (
	fontOnce   sync.Once
	parsedFont *truetype.Font
	fontErr    error
)

func watermarkFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		parsedFont, fontErr = truetype.Parse(goregular.TTF)
	})
	return parsedFont, fontErr
}

// ApplyWatermark draws cfg.Text onto dst in place. Disabled configs leave
// dst untouched whatever the other fields hold.
func ApplyWatermark(dst draw.Image, cfg WatermarkConfig) error {
	if !cfg.Enabled || strings.TrimSpace(cfg.Text) == "" {
		return nil
	}
	opacity := min(max(cfg.Opacity, 0), 1)
	if opacity == 0 {
		return nil
	}

	f, err := watermarkFont()
	if err != nil {
		return err
	}

	bounds := dst.Bounds()
	size := max(minWatermarkSize, float64(bounds.Dx())/40)
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
	defer face.Close()

	textWidth := font.MeasureString(face, cfg.Text).Ceil()
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	textHeight := ascent + metrics.Descent.Ceil()

	origin := anchor(bounds, textWidth, textHeight, cfg.Position)

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetClip(bounds)
	c.SetDst(dst)
	c.SetHinting(font.HintingNone)
	c.SetSrc(image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: uint8(opacity*255 + 0.5)}))

	_, err = c.DrawString(cfg.Text, freetype.Pt(origin.X, origin.Y+ascent))
	return err
}

// anchor returns the top-left corner of a w x h text block placed at pos.
func anchor(bounds image.Rectangle, w, h int, pos Position) image.Point {
	left := bounds.Min.X + watermarkMargin
	right := bounds.Max.X - watermarkMargin - w
	top := bounds.Min.Y + watermarkMargin
	bottom := bounds.Max.Y - watermarkMargin - h

	switch pos {
	case TopLeft:
		return image.Pt(left, top)
	case TopRight:
		return image.Pt(right, top)
	case BottomLeft:
		return image.Pt(left, bottom)
	case Center:
		return image.Pt(bounds.Min.X+(bounds.Dx()-w)/2, bounds.Min.Y+(bounds.Dy()-h)/2)
	default:
		return image.Pt(right, bottom)
	}
}
