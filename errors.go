package wesviz

import (
	"errors"
	"fmt"
)

// None of these errors are fatal. Each one degrades the smallest enclosing
// unit (a series, a chart, a file or one config apply) and ends up as a
// message in the ErrorSink.

var ErrNoFilesSelected = errors.New("No files are selected.")

// FileParseError means a file could not be parsed at all. No dataset is
// registered for it.
type FileParseError struct {
	SourceName string
	Err        error
}

func (e *FileParseError) Error() string {
	return fmt.Sprintf("Error parsing %q. Reason: %v.", e.SourceName, e.Err)
}

func (e *FileParseError) Unwrap() error {
	return e.Err
}

// RowParseErrors means a file parsed but some rows were malformed. The dataset
// is registered anyway.
type RowParseErrors struct {
	SourceName string
	Errors     []RowError
}

func (e *RowParseErrors) Error() string {
	return fmt.Sprintf("Parsing %q resulted in errors (%d row errors).", e.SourceName, len(e.Errors))
}

// MountPointMissingError means the container for one chart does not exist, so
// that chart is not constructed.
type MountPointMissingError struct {
	Index   int
	MountID string
}

func (e *MountPointMissingError) Error() string {
	return fmt.Sprintf("Plot container not found for %s", e.MountID)
}

// ChartRenderError means the renderer refused to construct one chart.
type ChartRenderError struct {
	MountID string
	Err     error
}

func (e *ChartRenderError) Error() string {
	return fmt.Sprintf("Unable to render %s: %v", e.MountID, e.Err)
}

func (e *ChartRenderError) Unwrap() error {
	return e.Err
}

type ConfigErrorKind string

const (
	// The text is not JSON.
	ConfigParseError ConfigErrorKind = "CONFIG_PARSE_ERROR"

	// The text is JSON but not a config document.
	ConfigShapeError ConfigErrorKind = "CONFIG_SHAPE_ERROR"
)

// ConfigError is returned by DeserializeConfig. When applying a config fails
// with it, the previous visualizations are kept.
type ConfigError struct {
	Kind ConfigErrorKind
	Err  error
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case ConfigParseError:
		return fmt.Sprintf("Invalid config! %v", e.Err)
	default:
		return fmt.Sprintf("Error applying config: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a *ConfigError of the given kind.
func IsConfigError(err error, kind ConfigErrorKind) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr) && configErr.Kind == kind
}
