package wesviz

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Settings are the runtime knobs of the wesviz binary. They come from an
// optional YAML file and are then overridden by command line flags.
type Settings struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	Viewport Viewport `yaml:"viewport"`

	// One of the logrus level names.
	LogLevel string `yaml:"logLevel"`

	// Visualization config applied at startup. Empty means the built-in
	// default charts.
	ConfigPath string `yaml:"config"`

	OpenBrowser bool `yaml:"openBrowser"`
}

func DefaultSettings() Settings {
	return Settings{
		Host:        "localhost",
		Port:        5274,
		Viewport:    DefaultViewport,
		LogLevel:    "info",
		OpenBrowser: true,
	}
}

// LoadSettings reads a settings file on top of DefaultSettings. Unknown keys
// are rejected so typos do not pass silently. An empty file yields the
// defaults.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	settings := DefaultSettings()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	return settings, nil
}

func (s Settings) Validate() error {
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		return err
	}

	if s.Viewport.Width < 0 {
		return fmt.Errorf("viewport width must not be negative, got %d", s.Viewport.Width)
	}

	if s.Viewport.DevicePixelRatio < 0 {
		return fmt.Errorf("device pixel ratio must not be negative, got %g", s.Viewport.DevicePixelRatio)
	}

	return nil
}

// Apply sets the global logrus level.
func (s Settings) Apply() error {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}

	logrus.SetLevel(level)
	return nil
}
