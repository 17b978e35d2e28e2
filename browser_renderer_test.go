package wesviz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain decodes every frame currently buffered in c.
func drain(t *testing.T, c chan []byte) []WSMessage {
	t.Helper()

	var messages []WSMessage
	for {
		select {
		case frame := <-c:
			msg, err := DecodeWSMessage(frame)
			require.NoError(t, err)
			messages = append(messages, msg)
		default:
			return messages
		}
	}
}

func TestPageMounts(t *testing.T) {
	mounts := NewPageMounts()

	_, ok := mounts.Lookup("plot-0")
	assert.False(t, ok)

	mounts.Layout(2)
	mount, ok := mounts.Lookup("plot-1")
	require.True(t, ok)
	assert.Equal(t, "plot-1", mount.ID())

	_, ok = mounts.Lookup("plot-2")
	assert.False(t, ok)
	_, ok = mounts.Lookup("chart-0")
	assert.False(t, ok)

	mounts.Layout(0)
	_, ok = mounts.Lookup("plot-0")
	assert.False(t, ok)
}

func TestFrameBroadcaster(t *testing.T) {
	ctx := context.Background()

	t.Run("new clients receive the current page", func(t *testing.T) {
		b := NewFrameBroadcaster()
		b.PublishMount("plot-1", []byte("m1"))
		b.PublishMount("plot-0", []byte("m0"))
		b.PublishMount("plot-2", []byte("m2"))
		b.PublishDispose("plot-2", []byte("d2"))
		b.PublishErrors([]byte("e1"))
		b.PublishErrors([]byte("e2"))
		b.PublishCursor([]byte("c"))

		c := make(chan []byte, 10)
		b.RegisterChannel(ctx, c)

		var got []string
		for len(c) > 0 {
			got = append(got, string(<-c))
		}
		assert.Equal(t, []string{"m0", "m1", "e2"}, got)
		assert.Equal(t, []string{"plot-0", "plot-1"}, b.LiveMounts())
	})

	t.Run("registered clients receive every frame", func(t *testing.T) {
		b := NewFrameBroadcaster()
		c1 := make(chan []byte, 10)
		c2 := make(chan []byte, 10)
		b.RegisterChannel(ctx, c1)
		b.RegisterChannel(ctx, c2)

		b.PublishMount("plot-0", []byte("m0"))
		b.PublishCursor([]byte("c"))
		b.DeregisterChannel(ctx, c2)
		b.PublishDispose("plot-0", []byte("d0"))

		assert.Equal(t, 3, len(c1))
		assert.Equal(t, 2, len(c2))
		assert.Empty(t, b.LiveMounts())
	})

	t.Run("cursor frames are dropped for full clients", func(t *testing.T) {
		b := NewFrameBroadcaster()
		full := make(chan []byte, 1)
		b.RegisterChannel(ctx, full)

		b.PublishCursor([]byte("c1"))
		b.PublishCursor([]byte("c2"))

		assert.Equal(t, "c1", string(<-full))
		assert.Empty(t, full)
	})
}

func TestBrowserRenderer(t *testing.T) {
	ctx := context.Background()

	t.Run("construct and dispose publish frames", func(t *testing.T) {
		b := NewFrameBroadcaster()
		c := make(chan []byte, 100)
		b.RegisterChannel(ctx, c)

		renderer := NewBrowserRenderer(b)
		options := ChartOptions{Title: "T", Series: []*Series{{Label: "x"}}}
		handle, err := renderer.Construct(options, [][]float64{{1, 2}}, pageMount("plot-0"))
		require.NoError(t, err)

		_, err = renderer.Construct(options, nil, pageMount("plot-0"))
		assert.Error(t, err, "mount already holds a chart")

		require.NoError(t, handle.Dispose())
		require.NoError(t, handle.Dispose())

		messages := drain(t, c)
		require.Len(t, messages, 2)

		mount := messages[0].Payload.(ChartMountMessage)
		assert.Equal(t, "plot-0", mount.MountID)
		assert.Equal(t, "T", mount.Options.Title)
		assert.Equal(t, [][]float64{{1, 2}}, mount.Columns)

		dispose := messages[1].Payload.(ChartDisposeMessage)
		assert.Equal(t, ChartDisposeMessage{ChartID: mount.ChartID, MountID: "plot-0"}, dispose)

		assert.Empty(t, b.LiveMounts())
	})

	t.Run("cursor events are mirrored to the sync group", func(t *testing.T) {
		b := NewFrameBroadcaster()
		renderer := NewBrowserRenderer(b)
		manager := NewChartLifecycleManager(renderer, &PageMounts{count: 3}, nil)

		moo := &CursorSpec{Sync: &CursorSync{Key: "moo"}}
		manager.Rebuild(lifecycleRegistry(), []VisualizationSpec{
			{Cursor: moo, Inputs: []InputSpec{{Data: "0.x"}}},
			{Cursor: moo, Inputs: []InputSpec{{Data: "0.y"}}},
			{Inputs: []InputSpec{{Data: "0.y"}}},
		})

		c := make(chan []byte, 100)
		b.RegisterChannel(ctx, c)
		replayed := drain(t, c)
		require.Len(t, replayed, 3)
		first := replayed[0].Payload.(ChartMountMessage)
		require.Equal(t, "plot-0", first.MountID)

		pos := CursorPosition{Idx: 1, Left: 5, Top: 6}
		assert.True(t, renderer.HandleCursor(CursorMessage{ChartID: first.ChartID, MountID: "plot-0", Position: pos}))

		mirrored := drain(t, c)
		require.Len(t, mirrored, 1)
		cursor := mirrored[0].Payload.(CursorMessage)
		assert.Equal(t, "plot-1", cursor.MountID)
		assert.Equal(t, pos, cursor.Position)

		// Charts outside any group mirror nothing.
		third := replayed[2].Payload.(ChartMountMessage)
		assert.False(t, renderer.HandleCursor(CursorMessage{ChartID: third.ChartID, MountID: "plot-2"}))

		// After a rebuild the old chart IDs are stale.
		manager.Rebuild(lifecycleRegistry(), nil)
		assert.False(t, renderer.HandleCursor(CursorMessage{ChartID: first.ChartID, MountID: "plot-0", Position: pos}))
	})

	t.Run("errors frame", func(t *testing.T) {
		b := NewFrameBroadcaster()
		renderer := NewBrowserRenderer(b)
		require.NoError(t, renderer.PublishErrors([]string{"a", "b"}))

		c := make(chan []byte, 10)
		b.RegisterChannel(ctx, c)
		messages := drain(t, c)
		require.Len(t, messages, 1)
		assert.Equal(t, ErrorsMessage{Errors: []string{"a", "b"}}, messages[0].Payload)
	})
}
