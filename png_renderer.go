package wesviz

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var ErrMissingXColumn = errors.New("the x column did not resolve")

type fileMount struct {
	id   string
	path string
}

func (m fileMount) ID() string {
	return m.id
}

// FileMounts places every chart in its own PNG file inside a directory. Any
// mount ID is available.
type FileMounts struct {
	dir string
}

func NewFileMounts(dir string) (*FileMounts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileMounts{dir: dir}, nil
}

func (f *FileMounts) Lookup(id string) (MountPoint, bool) {
	return fileMount{id: id, path: filepath.Join(f.dir, id+".png")}, true
}

// Path returns the file the chart mounted at id is written to.
func (f *FileMounts) Path(id string) string {
	return filepath.Join(f.dir, id+".png")
}

// PNGRenderer draws charts with go-chart. Like uPlot, the first column is the
// x axis and every further column is a line against it.
type PNGRenderer struct {
	logger logrus.FieldLogger
}

func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{
		logger: logrus.WithField("tag", "PNGRenderer"),
	}
}

func (r *PNGRenderer) Construct(options ChartOptions, data [][]float64, mount MountPoint) (ChartHandle, error) {
	target, ok := mount.(fileMount)
	if !ok {
		return nil, fmt.Errorf("mount %s is not a file mount", mount.ID())
	}

	if len(data) == 0 || data[0] == nil {
		return nil, ErrMissingXColumn
	}

	xs := data[0]
	var series []chart.Series
	var named []chart.Series

	for i := 1; i < len(data); i++ {
		if data[i] == nil || i >= len(options.Series) || options.Series[i] == nil {
			continue
		}

		style := seriesStyle(options.Series[i], i)
		for j, segment := range splitSegments(xs, data[i]) {
			segment.Style = style
			if j == 0 {
				segment.Name = options.Series[i].Label
			}
			series = append(series, segment)
			if segment.Name != "" {
				named = append(named, segment)
			}
		}
	}

	if len(series) == 0 {
		return nil, errors.New("no series to draw")
	}

	ch := chart.Chart{
		Title:      options.Title,
		Width:      options.Width,
		Height:     int(math.Round(options.Height)),
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 12, Bottom: 16}},
		Series:     series,
	}

	// Only the first segment of each line carries its label.
	legendChart := ch
	legendChart.Series = named
	ch.Elements = []chart.Renderable{chart.Legend(&legendChart)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}

	if err := os.WriteFile(target.path, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"mount":  target.id,
		"path":   target.path,
		"series": len(series),
	}).Debug("chart written")

	return &pngChart{path: target.path}, nil
}

// splitSegments pairs xs with ys and breaks the line wherever either value is
// NaN, so missing samples show as gaps.
func splitSegments(xs, ys []float64) []chart.ContinuousSeries {
	var segments []chart.ContinuousSeries
	var current chart.ContinuousSeries

	flush := func() {
		if len(current.XValues) > 0 {
			segments = append(segments, current)
		}
		current = chart.ContinuousSeries{}
	}

	n := Min(len(xs), len(ys))
	for i := 0; i < n; i++ {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			flush()
			continue
		}
		current.XValues = append(current.XValues, xs[i])
		current.YValues = append(current.YValues, ys[i])
	}
	flush()

	return segments
}

var namedColors = map[string]drawing.Color{
	"black":  chart.ColorBlack,
	"white":  chart.ColorWhite,
	"red":    chart.ColorRed,
	"green":  chart.ColorGreen,
	"blue":   chart.ColorBlue,
	"cyan":   chart.ColorCyan,
	"orange": chart.ColorOrange,
	"yellow": chart.ColorYellow,
	"gray":   chart.ColorAlternateGray,
	"grey":   chart.ColorAlternateGray,
}

func seriesStyle(series *Series, index int) chart.Style {
	style := chart.Style{
		StrokeColor: chart.GetDefaultColor(index - 1),
		StrokeWidth: 1,
	}

	if color, ok := parseColor(series.Stroke); ok {
		style.StrokeColor = color
	}

	if series.Width != nil && *series.Width > 0 {
		style.StrokeWidth = *series.Width
	}

	return style
}

// parseColor understands the CSS color names above and #rgb / #rrggbb.
func parseColor(stroke string) (drawing.Color, bool) {
	stroke = strings.ToLower(strings.TrimSpace(stroke))
	if stroke == "" {
		return drawing.Color{}, false
	}

	if color, ok := namedColors[stroke]; ok {
		return color, true
	}

	hex, ok := strings.CutPrefix(stroke, "#")
	if !ok || (len(hex) != 3 && len(hex) != 6) {
		return drawing.Color{}, false
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return drawing.Color{}, false
		}
	}

	return drawing.ColorFromHex(hex), true
}

type pngChart struct {
	path     string
	disposed bool
}

// Dispose releases the handle. The image file is the output and stays.
func (c *pngChart) Dispose() error {
	c.disposed = true
	return nil
}
