package wesviz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ConfigDocument is the only externally exchanged shape: the JSON form of the
// visualization list.
type ConfigDocument struct {
	Visualizations []VisualizationSpec `json:"visualizations"`
}

// SerializeConfig renders visualizations as the pretty printed document shown
// to the user for copying and editing.
func SerializeConfig(visualizations []VisualizationSpec) (string, error) {
	if visualizations == nil {
		visualizations = []VisualizationSpec{}
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")

	if err := encoder.Encode(ConfigDocument{Visualizations: visualizations}); err != nil {
		return "", fmt.Errorf("failed to serialize config: %w", err)
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DeserializeConfig parses a config document. Only the document structure is
// checked; a bad data reference inside an input is reported later when the
// chart is compiled.
func DeserializeConfig(text string) ([]VisualizationSpec, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ConfigError{Kind: ConfigParseError, Err: errors.New("config is empty")}
	}

	var document map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &document); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, &ConfigError{Kind: ConfigParseError, Err: err}
		}
		return nil, &ConfigError{Kind: ConfigShapeError, Err: fmt.Errorf("config must be a JSON object: %w", err)}
	}

	raw, ok := document["visualizations"]
	if !ok {
		return nil, &ConfigError{Kind: ConfigShapeError, Err: errors.New(`missing "visualizations" field`)}
	}

	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, &ConfigError{Kind: ConfigShapeError, Err: errors.New(`"visualizations" must be a list, got null`)}
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, &ConfigError{Kind: ConfigShapeError, Err: fmt.Errorf(`"visualizations" must be a list: %w`, err)}
	}

	visualizations := make([]VisualizationSpec, len(elements))
	for i, element := range elements {
		if !bytes.HasPrefix(bytes.TrimSpace(element), []byte("{")) {
			return nil, &ConfigError{Kind: ConfigShapeError, Err: fmt.Errorf("visualization %d is not an object", i)}
		}

		if err := json.Unmarshal(element, &visualizations[i]); err != nil {
			return nil, &ConfigError{Kind: ConfigShapeError, Err: fmt.Errorf("visualization %d is malformed: %w", i, err)}
		}
	}

	return visualizations, nil
}
