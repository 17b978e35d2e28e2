package wesviz

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// pageMount is one chart container on the web UI page.
type pageMount string

func (m pageMount) ID() string {
	return string(m)
}

// PageMounts mirrors the containers of the web UI page. The page renders one
// container per visualization, so the set is recomputed from the count before
// every render pass.
type PageMounts struct {
	mutex sync.RWMutex
	count int
}

func NewPageMounts() *PageMounts {
	return &PageMounts{}
}

func (p *PageMounts) Layout(count int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.count = count
}

func (p *PageMounts) Lookup(id string) (MountPoint, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	for i := 0; i < p.count; i++ {
		if MountID(i) == id {
			return pageMount(id), true
		}
	}
	return nil, false
}

// BrowserRenderer constructs charts in every connected web UI. Construct and
// Dispose turn into CHART_MOUNT and CHART_DISPOSE frames; the charts
// themselves are drawn by uPlot in the browser.
type BrowserRenderer struct {
	broadcaster *FrameBroadcaster

	mutex       sync.Mutex
	live        map[string]*browserChart
	lastChartID uint32

	logger logrus.FieldLogger
}

func NewBrowserRenderer(broadcaster *FrameBroadcaster) *BrowserRenderer {
	return &BrowserRenderer{
		broadcaster: broadcaster,
		live:        make(map[string]*browserChart),
		logger:      logrus.WithField("tag", "BrowserRenderer"),
	}
}

func (r *BrowserRenderer) Construct(options ChartOptions, data [][]float64, mount MountPoint) (ChartHandle, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.live[mount.ID()]; exists {
		return nil, fmt.Errorf("mount %s already holds a chart", mount.ID())
	}

	r.lastChartID++
	chart := &browserChart{
		id:       r.lastChartID,
		mountID:  mount.ID(),
		renderer: r,
	}

	frame, err := EncodeWSMessage(newWSMessage(MessageTypeChartMount, ChartMountMessage{
		ChartID: chart.id,
		MountID: chart.mountID,
		Options: options,
		Columns: data,
	}))
	if err != nil {
		return nil, err
	}

	r.live[chart.mountID] = chart
	r.broadcaster.PublishMount(chart.mountID, frame)

	r.logger.WithFields(logrus.Fields{
		"chart": chart.id,
		"mount": chart.mountID,
		"bytes": len(frame),
	}).Debug("chart mounted")

	return chart, nil
}

// HandleCursor applies a cursor movement reported by a web UI client. Events
// for a chart that is no longer live are dropped.
func (r *BrowserRenderer) HandleCursor(msg CursorMessage) bool {
	r.mutex.Lock()
	chart, ok := r.live[msg.MountID]
	r.mutex.Unlock()

	if !ok || chart.id != msg.ChartID {
		r.logger.WithFields(logrus.Fields{
			"chart": msg.ChartID,
			"mount": msg.MountID,
		}).Debug("cursor event for stale chart dropped")
		return false
	}

	group := chart.group.Load()
	if group == nil {
		return false
	}

	group.Publish(chart, msg.Position)
	r.logger.WithFields(logrus.Fields{
		"mount": msg.MountID,
		"group": group.Key(),
	}).Trace("cursor mirrored")
	return true
}

// PublishErrors sends the current error list to every client.
func (r *BrowserRenderer) PublishErrors(errors []string) error {
	frame, err := EncodeWSMessage(newWSMessage(MessageTypeErrors, ErrorsMessage{Errors: errors}))
	if err != nil {
		return err
	}

	r.broadcaster.PublishErrors(frame)
	return nil
}

func (r *BrowserRenderer) release(chart *browserChart) error {
	r.mutex.Lock()
	if r.live[chart.mountID] == chart {
		delete(r.live, chart.mountID)
	}
	r.mutex.Unlock()

	frame, err := EncodeWSMessage(newWSMessage(MessageTypeChartDispose, ChartDisposeMessage{
		ChartID: chart.id,
		MountID: chart.mountID,
	}))
	if err != nil {
		return err
	}

	r.broadcaster.PublishDispose(chart.mountID, frame)
	return nil
}

type browserChart struct {
	id       uint32
	mountID  string
	renderer *BrowserRenderer

	group    atomic.Pointer[SyncGroup]
	disposed atomic.Bool
}

func (c *browserChart) Dispose() error {
	if c.disposed.Swap(true) {
		return nil
	}
	return c.renderer.release(c)
}

func (c *browserChart) JoinSyncGroup(g *SyncGroup) {
	c.group.Store(g)
}

func (c *browserChart) ShowCursor(pos CursorPosition) {
	if c.disposed.Load() {
		return
	}

	frame, err := EncodeWSMessage(newWSMessage(MessageTypeCursor, CursorMessage{
		ChartID:  c.id,
		MountID:  c.mountID,
		Position: pos,
	}))
	if err != nil {
		c.renderer.logger.WithError(err).Warn("failed to encode cursor frame")
		return
	}

	c.renderer.broadcaster.PublishCursor(frame)
}
