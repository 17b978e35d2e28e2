package wesviz

import (
	"context"
	"runtime/trace"
	"sync"

	"github.com/sirupsen/logrus"
)

// FrameBroadcaster fans encoded websocket frames out to every connected web UI
// client.
//
// It also remembers the frames that describe the current page: the mount frame
// of every live chart and the latest error list. A newly registered client
// receives those first, so a tab opened at any time shows the same charts as
// the others.
type FrameBroadcaster struct {
	mutex sync.Mutex

	// These are channels from open websockets where we are sending frames to.
	// Channels should be buffered, to not block the render pass.
	channelsForLiveUpdate []chan<- []byte

	// Mount frames of live charts keyed by mount ID.
	mountFrames map[string][]byte
	errorsFrame []byte

	numFramesEmitted int
	numFramesDropped int

	logger logrus.FieldLogger
}

func NewFrameBroadcaster() *FrameBroadcaster {
	return &FrameBroadcaster{
		channelsForLiveUpdate: make([]chan<- []byte, 0),
		mountFrames:           make(map[string][]byte),
		logger:                logrus.WithField("tag", "FrameBroadcaster"),
	}
}

// Register a new channel. Called from the HTTP server when a new websocket
// connection is initiated.
//
// - ctx: is the HTTP call context.
// - c: is the channel to send frames on. This should be a buffered channel, as any blocked channel blocks the render pass.
func (b *FrameBroadcaster) RegisterChannel(ctx context.Context, c chan<- []byte) {
	// The replay of the current page and the registration happen under the same
	// lock as every publish. Otherwise a chart mounted between the replay and the
	// registration would be missed by this client, or a disposed one would stay
	// on its page.
	traceCtx, task := trace.NewTask(ctx, "RegisterChannel")
	defer task.End()

	trace.WithRegion(traceCtx, "Lock", b.mutex.Lock)
	defer b.mutex.Unlock()

	trace.WithRegion(traceCtx, "pushPageToChannel", func() {
		b.pushPageToChannel(c)
	})

	b.channelsForLiveUpdate = append(b.channelsForLiveUpdate, c)

	b.logger.WithFields(logrus.Fields{
		"channels":    len(b.channelsForLiveUpdate),
		"liveCharts":  len(b.mountFrames),
		"hasErrors":   b.errorsFrame != nil,
		"framesTotal": b.numFramesEmitted,
	}).Info("registered channel")
}

// Deregister a channel. Called when a websocket client disconnects. The channel
// shouldn't be closed until this method returns, as it may cause panics
// otherwise.
func (b *FrameBroadcaster) DeregisterChannel(ctx context.Context, c chan<- []byte) {
	traceCtx, task := trace.NewTask(ctx, "DeregisterChannel")
	defer task.End()

	trace.WithRegion(traceCtx, "Lock", b.mutex.Lock)
	defer b.mutex.Unlock()

	b.channelsForLiveUpdate = Filter(b.channelsForLiveUpdate, func(channel chan<- []byte) bool {
		return channel != c
	})

	b.logger.WithField("channels", len(b.channelsForLiveUpdate)).Info("deregistered channel")
}

// PublishMount records frame as the content of mountID and sends it to every
// client.
func (b *FrameBroadcaster) PublishMount(mountID string, frame []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.mountFrames[mountID] = frame
	b.broadcast(frame, false)
}

// PublishDispose forgets the chart at mountID and sends frame to every client.
func (b *FrameBroadcaster) PublishDispose(mountID string, frame []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delete(b.mountFrames, mountID)
	b.broadcast(frame, false)
}

// PublishErrors replaces the remembered error list.
func (b *FrameBroadcaster) PublishErrors(frame []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.errorsFrame = frame
	b.broadcast(frame, false)
}

// PublishCursor sends a cursor frame. Cursor frames are transient: they are not
// replayed, and a client whose buffer is full misses them instead of stalling
// the others.
func (b *FrameBroadcaster) PublishCursor(frame []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.broadcast(frame, true)
}

// LiveMounts returns the mount IDs that currently have a chart, sorted.
func (b *FrameBroadcaster) LiveMounts() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return SortedKeys(b.mountFrames)
}

// Must hold the mutex.
func (b *FrameBroadcaster) broadcast(frame []byte, droppable bool) {
	b.numFramesEmitted++

	for _, c := range b.channelsForLiveUpdate {
		if !droppable {
			c <- frame
			continue
		}

		select {
		case c <- frame:
		default:
			b.numFramesDropped++
			b.logger.WithField("dropped", b.numFramesDropped).Debug("client buffer full, dropping cursor frame")
		}
	}
}

// Must hold the mutex.
func (b *FrameBroadcaster) pushPageToChannel(c chan<- []byte) {
	for _, mountID := range SortedKeys(b.mountFrames) {
		c <- b.mountFrames[mountID]
	}

	if b.errorsFrame != nil {
		c <- b.errorsFrame
	}
}
