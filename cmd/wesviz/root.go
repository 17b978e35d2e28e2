package main

import (
	"fmt"
	"os"

	"github.com/cactusdynamics/wesviz"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	SettingsPath string
	LogLevel     string
	ConfigPath   string
}

// NewRootCommand creates the root command for the wesviz CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wesviz",
		Short: "wesviz - plot columns of tabular files",
		Long: `Load CSV, XLSX and Parquet files and draw line charts from their columns,
as described by a JSON visualization config.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.SettingsPath, "settings", "", "YAML settings file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides settings)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "visualization config file (overrides settings)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// loadSettings resolves the settings file and the global flags, and sets the
// log level.
func loadSettings(opts *RootOptions) (wesviz.Settings, error) {
	settings := wesviz.DefaultSettings()
	if opts.SettingsPath != "" {
		var err error
		settings, err = wesviz.LoadSettings(opts.SettingsPath)
		if err != nil {
			return wesviz.Settings{}, err
		}
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}
	if opts.ConfigPath != "" {
		settings.ConfigPath = opts.ConfigPath
	}

	if err := settings.Validate(); err != nil {
		return wesviz.Settings{}, err
	}
	if err := settings.Apply(); err != nil {
		return wesviz.Settings{}, err
	}

	return settings, nil
}

// readConfig returns the config document at path, or the default document if
// path is empty.
func readConfig(path string) (string, error) {
	if path == "" {
		return wesviz.SerializeConfig(wesviz.DefaultVisualizations())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read config file: %w", err)
	}
	return string(data), nil
}

func fileSources(paths []string) []wesviz.Source {
	sources := make([]wesviz.Source, len(paths))
	for i, path := range paths {
		sources[i] = wesviz.FileSource(path)
	}
	return sources
}
