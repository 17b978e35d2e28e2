package wesviz

import (
	"encoding/json"
)

// VisualizationSpec declares one chart. The first input conventionally holds
// the x values and the rest are y series.
type VisualizationSpec struct {
	Title  string      `json:"title"`
	Height float64     `json:"height"`
	Cursor *CursorSpec `json:"cursor,omitempty"`
	Inputs []InputSpec `json:"inputs"`
}

// SyncKey returns the cursor synchronization key, or "" if the chart does not
// take part in any sync group.
func (v VisualizationSpec) SyncKey() string {
	if v.Cursor == nil || v.Cursor.Sync == nil {
		return ""
	}
	return v.Cursor.Sync.Key
}

// CursorSync groups charts by Key. The other keys (e.g. "setSeries",
// "scales") are renderer settings and are kept in Options.
type CursorSync struct {
	Key     string
	Options map[string]any
}

func (s CursorSync) MarshalJSON() ([]byte, error) {
	return marshalWithPassthrough(map[string]any{"key": s.Key}, s.Options)
}

func (s *CursorSync) UnmarshalJSON(b []byte) error {
	var known struct {
		Key string `json:"key"`
	}

	options, err := splitPassthrough(b, &known, "key")
	if err != nil {
		return err
	}

	*s = CursorSync{Key: known.Key, Options: options}
	return nil
}

// CursorSpec is handed to the renderer verbatim. Only sync is interpreted here.
type CursorSpec struct {
	Sync *CursorSync

	// Renderer specific cursor settings (e.g. "drag", "points").
	Options map[string]any
}

func (c CursorSpec) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
	if c.Sync != nil {
		known["sync"] = c.Sync
	}
	return marshalWithPassthrough(known, c.Options)
}

func (c *CursorSpec) UnmarshalJSON(b []byte) error {
	var known struct {
		Sync *CursorSync `json:"sync"`
	}

	options, err := splitPassthrough(b, &known, "sync")
	if err != nil {
		return err
	}

	*c = CursorSpec{Sync: known.Sync, Options: options}
	return nil
}

// InputSpec binds one column to one series. Data is a PathRef string. Any key
// other than label, data, stroke and width is kept in Style and forwarded to
// the renderer untouched.
type InputSpec struct {
	Label  string
	Data   string
	Stroke string
	Width  *float64
	Style  map[string]any
}

func (s InputSpec) MarshalJSON() ([]byte, error) {
	known := map[string]any{"data": s.Data}
	if s.Label != "" {
		known["label"] = s.Label
	}
	if s.Stroke != "" {
		known["stroke"] = s.Stroke
	}
	if s.Width != nil {
		known["width"] = *s.Width
	}
	return marshalWithPassthrough(known, s.Style)
}

func (s *InputSpec) UnmarshalJSON(b []byte) error {
	var known struct {
		Label  string   `json:"label"`
		Data   string   `json:"data"`
		Stroke string   `json:"stroke"`
		Width  *float64 `json:"width"`
	}

	style, err := splitPassthrough(b, &known, "label", "data", "stroke", "width")
	if err != nil {
		return err
	}

	*s = InputSpec{
		Label:  known.Label,
		Data:   known.Data,
		Stroke: known.Stroke,
		Width:  known.Width,
		Style:  style,
	}
	return nil
}

func marshalWithPassthrough(known map[string]any, passthrough map[string]any) ([]byte, error) {
	fields := make(map[string]any, len(known)+len(passthrough))
	for k, v := range passthrough {
		fields[k] = v
	}
	// Known fields win over a pass-through entry of the same name.
	for k, v := range known {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// splitPassthrough decodes b into known and returns every key of the object
// that is not in knownKeys. Returns nil when nothing is left over so that
// round trips compare equal.
func splitPassthrough(b []byte, known any, knownKeys ...string) (map[string]any, error) {
	if err := json.Unmarshal(b, known); err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}

	for _, k := range knownKeys {
		delete(fields, k)
	}

	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func float64Ptr(f float64) *float64 {
	return &f
}

// DefaultVisualizations is the configuration shown before the user applies
// their own: steering and speed charts for a vehicle output log, with their
// cursors synchronized.
func DefaultVisualizations() []VisualizationSpec {
	return []VisualizationSpec{
		{
			Title:  "Steering",
			Height: 300,
			Cursor: &CursorSpec{Sync: &CursorSync{Key: "moo"}},
			Inputs: []InputSpec{
				{Label: "time (s)", Data: "0.TimeOfUpdate"},
				{Label: "Steering Wheel Angle (rad)", Stroke: "red", Width: float64Ptr(1), Data: "0.SteeringWheelAngle"},
			},
		},
		{
			Title:  "Speed (in vehicle frame)",
			Height: 300,
			Cursor: &CursorSpec{Sync: &CursorSync{Key: "moo"}},
			Inputs: []InputSpec{
				{Label: "time (s)", Data: "0.TimeOfUpdate"},
				{Label: "cdgSpeed_x (m/s)", Stroke: "blue", Width: float64Ptr(1), Data: "0.cdgSpeed_x"},
				{Label: "cdgSpeed_y (m/s)", Stroke: "green", Width: float64Ptr(1), Data: "0.cdgSpeed_y"},
			},
		},
	}
}
