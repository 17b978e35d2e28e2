package wesviz

// ChartOptions is what the renderer receives for one chart. The JSON form
// follows the uPlot options object, which is what the web UI constructs.
type ChartOptions struct {
	Title string `json:"title"`

	// Pixel width. Filled in by the ChartLifecycleManager from the viewport at
	// construction time; Compile leaves it at 0.
	Width  int     `json:"width"`
	Height float64 `json:"height"`

	Scales Scales      `json:"scales"`
	Cursor *CursorSpec `json:"cursor,omitempty"`

	// One entry per input. Entries for inputs that failed to resolve are nil.
	Series []*Series `json:"series"`
}

type Scales struct {
	X Scale `json:"x"`
}

type Scale struct {
	// The x axis is never implicitly treated as calendar time.
	Time bool `json:"time"`
}

// Series is the compiled style of one input: every InputSpec field except
// data, with the width normalized to the device pixel ratio.
type Series struct {
	Label  string
	Stroke string
	Width  *float64
	Style  map[string]any
}

func (s Series) MarshalJSON() ([]byte, error) {
	known := map[string]any{}
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

func (s *Series) UnmarshalJSON(b []byte) error {
	var known struct {
		Label  string   `json:"label"`
		Stroke string   `json:"stroke"`
		Width  *float64 `json:"width"`
	}

	style, err := splitPassthrough(b, &known, "label", "stroke", "width")
	if err != nil {
		return err
	}

	*s = Series{
		Label:  known.Label,
		Stroke: known.Stroke,
		Width:  known.Width,
		Style:  style,
	}
	return nil
}

// CompiledChart is a renderer-ready chart. Data[i] is the column for
// Options.Series[i]; both are nil for an input that failed to resolve.
type CompiledChart struct {
	Options ChartOptions
	Data    [][]float64
	Errors  []string
}

// Compile resolves every input of spec against registry. A reference to a
// missing dataset degrades only that input: an error message is recorded and
// the rest of the chart still compiles.
//
// devicePixelRatio scales input widths so strokes look the same on every
// display density. Values <= 0 are treated as 1.
//
// Compile is pure so that it can run on every state change.
func Compile(spec VisualizationSpec, registry *DatasetRegistry, devicePixelRatio float64) CompiledChart {
	if devicePixelRatio <= 0 {
		devicePixelRatio = 1
	}

	compiled := CompiledChart{
		Options: ChartOptions{
			Title:  spec.Title,
			Height: spec.Height,
			Scales: Scales{X: Scale{Time: false}},
			Cursor: spec.Cursor,
			Series: make([]*Series, len(spec.Inputs)),
		},
		Data: make([][]float64, len(spec.Inputs)),
	}

	for i, input := range spec.Inputs {
		column, err := Resolve(input.Data, registry)
		if err != nil {
			compiled.Errors = append(compiled.Errors, err.Error())
			continue
		}

		compiled.Data[i] = column
		compiled.Options.Series[i] = compileSeries(input, devicePixelRatio)
	}

	return compiled
}

func compileSeries(input InputSpec, devicePixelRatio float64) *Series {
	series := &Series{
		Label:  input.Label,
		Stroke: input.Stroke,
		Style:  copyStyle(input.Style),
	}

	// A zero width means "renderer default", same as no width.
	if input.Width != nil && *input.Width != 0 {
		series.Width = float64Ptr(*input.Width / devicePixelRatio)
	}

	return series
}

// Specs are replaced wholesale and never patched, so a shallow copy is enough to
// keep the compiled series independent of later edits to the map itself.
func copyStyle(style map[string]any) map[string]any {
	if style == nil {
		return nil
	}

	copied := make(map[string]any, len(style))
	for k, v := range style {
		copied[k] = v
	}
	return copied
}
