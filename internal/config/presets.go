package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"webpsync/internal/codec"
)

type Preset struct {
	Name    string `yaml:"name" json:"name"`
	Quality int    `yaml:"quality" json:"quality"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

var DefaultPresets = []Preset{
	{Name: "original", Quality: 85, Width: 0, Height: 0},
	{Name: "listing", Quality: 85, Width: 1200, Height: 900},
	{Name: "hd", Quality: 90, Width: 1920, Height: 1080},
	{Name: "thumbnail", Quality: 75, Width: 400, Height: 300},
}

// LoadPresets reads the presets file, falling back to DefaultPresets when
// path is empty.
func LoadPresets(path string) ([]Preset, error) {
	if path == "" {
		return DefaultPresets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gagal membaca file preset: %w", err)
	}

	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("gagal parsing file preset: %w", err)
	}
	if len(pf.Presets) == 0 {
		return nil, fmt.Errorf("file preset '%s' tidak berisi preset", path)
	}

	seen := make(map[string]bool, len(pf.Presets))
	for _, p := range pf.Presets {
		if err := validatePreset(p); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("preset '%s' didefinisikan lebih dari sekali", p.Name)
		}
		seen[p.Name] = true
	}
	return pf.Presets, nil
}

func FindPreset(presets []Preset, name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

func validatePreset(p Preset) error {
	if p.Name == "" {
		return fmt.Errorf("preset tanpa nama")
	}
	if p.Quality < 50 || p.Quality > 100 {
		return fmt.Errorf("preset '%s': kualitas harus di antara 50 dan 100", p.Name)
	}
	if p.Width < 0 || p.Height < 0 || (p.Width == 0) != (p.Height == 0) {
		return fmt.Errorf("preset '%s': dimensi tidak valid %dx%d", p.Name, p.Width, p.Height)
	}
	if p.Width > webpMaxDimension || p.Height > webpMaxDimension {
		return fmt.Errorf("preset '%s': dimensi melebihi batas WebP (%dpx)", p.Name, webpMaxDimension)
	}
	return nil
}

// Apply overrides the quality and target bounds of opts.
func (p Preset) Apply(opts codec.Options) codec.Options {
	opts.Quality = p.Quality
	opts.TargetWidth = p.Width
	opts.TargetHeight = p.Height
	return opts
}

// CodecDefaults builds encoder settings from the environment. The
// watermark is configured but disabled until a caller enables it.
func (c *Config) CodecDefaults() codec.Options {
	return codec.Options{
		Quality:      c.WebPQuality,
		TargetWidth:  c.MaxWidth,
		TargetHeight: c.MaxHeight,
		Watermark: codec.WatermarkConfig{
			Position: codec.BottomRight,
			Text:     c.WatermarkText,
			Opacity:  c.WatermarkOpacity,
		},
	}
}
