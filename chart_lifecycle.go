package wesviz

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// MountPoint is where a renderer attaches a chart (a page container, an output
// file, ...).
type MountPoint interface {
	ID() string
}

type MountPoints interface {
	Lookup(id string) (MountPoint, bool)
}

// MountLayout is implemented by MountPoints whose containers are derived from
// the number of visualizations, the way a page renders one container per
// chart.
type MountLayout interface {
	Layout(count int)
}

// ChartHandle is a live renderer instance. Only the ChartLifecycleManager
// disposes handles.
type ChartHandle interface {
	Dispose() error
}

// Renderer is the drawing backend. It turns options and columns into pixels
// somewhere and is otherwise a black box.
type Renderer interface {
	Construct(options ChartOptions, data [][]float64, mount MountPoint) (ChartHandle, error)
}

// Viewport describes the display charts are constructed for. It is read once
// per construction; charts are not resized afterwards.
type Viewport struct {
	Width            int     `yaml:"width"`
	DevicePixelRatio float64 `yaml:"devicePixelRatio"`
}

var DefaultViewport = Viewport{Width: 1200, DevicePixelRatio: 1}

// MountID is the container ID for the visualization at index. Mounts are keyed
// by position, so reordering the visualization list remounts every chart from
// the first moved position onwards.
func MountID(index int) string {
	return fmt.Sprintf("plot-%d", index)
}

type MountedChart struct {
	Index   int
	MountID string
	SyncKey string
	Chart   CompiledChart
	Handle  ChartHandle
}

// Generation is every handle produced by one Rebuild. It is superseded as a
// whole by the next Rebuild.
type Generation struct {
	ID     uint64
	Charts []MountedChart
	Sync   *SyncGroups
}

// ChartLifecycleManager owns every ChartHandle. On each Rebuild it disposes the
// previous generation and constructs a new one from scratch; there is no
// diffing of unchanged charts.
//
// Not safe for concurrent use. The Controller calls it from its event loop.
type ChartLifecycleManager struct {
	renderer Renderer
	mounts   MountPoints
	viewport func() Viewport

	current          *Generation
	lastGenerationID uint64

	logger logrus.FieldLogger
}

// viewport is called at every Rebuild. If nil, DefaultViewport is used.
func NewChartLifecycleManager(renderer Renderer, mounts MountPoints, viewport func() Viewport) *ChartLifecycleManager {
	if viewport == nil {
		viewport = func() Viewport { return DefaultViewport }
	}

	return &ChartLifecycleManager{
		renderer: renderer,
		mounts:   mounts,
		viewport: viewport,
		logger:   logrus.WithField("tag", "ChartLifecycleManager"),
	}
}

// Rebuild replaces the current generation with charts for specs. It returns
// the error messages produced along the way: unresolved inputs, missing
// containers and renderer failures. Each of these only affects its own series
// or chart.
func (m *ChartLifecycleManager) Rebuild(registry *DatasetRegistry, specs []VisualizationSpec) []string {
	// No handle from the previous generation may survive into the new one.
	m.Teardown()

	viewport := m.viewport()

	compiled := make([]CompiledChart, len(specs))
	for i, spec := range specs {
		compiled[i] = Compile(spec, registry, viewport.DevicePixelRatio)
	}

	m.lastGenerationID++
	generation := &Generation{
		ID:   m.lastGenerationID,
		Sync: NewSyncGroups(),
	}

	var errorMessages []string
	for i, chart := range compiled {
		errorMessages = append(errorMessages, chart.Errors...)

		mountID := MountID(i)
		logger := m.logger.WithFields(logrus.Fields{
			"generation": generation.ID,
			"mount":      mountID,
		})

		mount, ok := m.mounts.Lookup(mountID)
		if !ok {
			err := &MountPointMissingError{Index: i, MountID: mountID}
			logger.Warn("mount point missing, skipping chart")
			errorMessages = append(errorMessages, err.Error())
			continue
		}

		chart.Options.Width = viewport.Width

		handle, err := m.renderer.Construct(chart.Options, chart.Data, mount)
		if err != nil {
			renderErr := &ChartRenderError{MountID: mountID, Err: err}
			logger.WithError(err).Warn("renderer failed to construct chart")
			errorMessages = append(errorMessages, renderErr.Error())
			continue
		}

		syncKey := specs[i].SyncKey()
		generation.Sync.Join(syncKey, handle)

		generation.Charts = append(generation.Charts, MountedChart{
			Index:   i,
			MountID: mountID,
			SyncKey: syncKey,
			Chart:   chart,
			Handle:  handle,
		})
	}

	m.current = generation

	m.logger.WithFields(logrus.Fields{
		"generation": generation.ID,
		"charts":     len(generation.Charts),
		"specs":      len(specs),
		"syncGroups": generation.Sync.Keys(),
	}).Info("render generation built")

	return errorMessages
}

// Teardown disposes every handle of the current generation. Safe to call when
// nothing is mounted.
func (m *ChartLifecycleManager) Teardown() {
	if m.current == nil {
		return
	}

	for _, chart := range m.current.Charts {
		if err := chart.Handle.Dispose(); err != nil {
			m.logger.WithFields(logrus.Fields{
				"generation": m.current.ID,
				"mount":      chart.MountID,
			}).WithError(err).Warn("failed to dispose chart")
		}
	}

	m.logger.WithField("generation", m.current.ID).Debug("render generation disposed")
	m.current = nil
}

// Generation returns the live generation, or nil if nothing is mounted.
func (m *ChartLifecycleManager) Generation() *Generation {
	return m.current
}
