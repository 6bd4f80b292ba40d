package fsr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrSettingsFormat is returned by LoadSettings for files that are neither
// TOML nor YAML.
var ErrSettingsFormat = errors.New("fsr: unsupported settings file format")

// Settings is the persisted configuration of the effect.
//
// A settings file only needs the keys it changes:
//
//	# fsr.toml
//	sharpness = 0.5
//	fallback = "drop"
type Settings struct {
	// Enabled turns the effect on.
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Sharpness is in [MinSharpness, MaxSharpness]; 0 sharpens the most.
	Sharpness float32 `toml:"sharpness" yaml:"sharpness"`

	// IntermediateFormat names the format of the intermediate textures:
	// "output" (or empty) to follow the output texture, otherwise one of
	// "rgba8unorm", "bgra8unorm", "rgba16float".
	IntermediateFormat string `toml:"intermediate_format" yaml:"intermediate_format"`

	// Fallback is "passthrough" or "drop".
	Fallback string `toml:"fallback" yaml:"fallback"`
}

// DefaultSettings returns the settings an effect starts with.
func DefaultSettings() Settings {
	return Settings{
		Enabled:   true,
		Sharpness: DefaultSharpness,
		Fallback:  FallbackPassThrough.String(),
	}
}

var intermediateFormats = map[string]gputypes.TextureFormat{
	"":            gputypes.TextureFormatUndefined,
	"output":      gputypes.TextureFormatUndefined,
	"rgba8unorm":  gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":  gputypes.TextureFormatBGRA8Unorm,
	"rgba16float": gputypes.TextureFormatRGBA16Float,
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	if err := validateSharpness(s.Sharpness); err != nil {
		return err
	}
	if _, err := parseFallback(s.Fallback); err != nil {
		return err
	}
	if _, ok := intermediateFormats[strings.ToLower(s.IntermediateFormat)]; !ok {
		return fmt.Errorf("fsr: unknown intermediate format %q", s.IntermediateFormat)
	}
	return nil
}

// Options converts valid settings to upscaler options.
func (s Settings) Options() ([]UpscalerOption, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	fallback, _ := parseFallback(s.Fallback)
	opts := []UpscalerOption{
		WithEnabled(s.Enabled),
		WithSharpness(s.Sharpness),
		WithFallback(fallback),
	}
	if f := intermediateFormats[strings.ToLower(s.IntermediateFormat)]; f != gputypes.TextureFormatUndefined {
		opts = append(opts, WithIntermediateFormat(f))
	}
	return opts, nil
}

// LoadSettings reads settings from a .toml, .yaml or .yml file. Keys absent
// from the file keep their DefaultSettings values; unknown keys are an
// error. The result is validated.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("fsr: read settings: %w", err)
	}
	return ParseSettings(data, filepath.Ext(path))
}

// ParseSettings decodes settings in the format named by ext (".toml",
// ".yaml" or ".yml") on top of DefaultSettings.
func ParseSettings(data []byte, ext string) (Settings, error) {
	s := DefaultSettings()
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return Settings{}, fmt.Errorf("fsr: decode toml settings: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return Settings{}, fmt.Errorf("fsr: decode yaml settings: %w", err)
		}
	default:
		return Settings{}, fmt.Errorf("%w: %q", ErrSettingsFormat, ext)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func parseFallback(name string) (Fallback, error) {
	switch strings.ToLower(name) {
	case "", "passthrough":
		return FallbackPassThrough, nil
	case "drop":
		return FallbackDrop, nil
	default:
		return 0, fmt.Errorf("fsr: unknown fallback %q", name)
	}
}
