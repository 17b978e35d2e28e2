package wesviz

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startController(t *testing.T, config ControllerConfig) *Controller {
	t.Helper()

	if config.Renderer == nil {
		config.Renderer = &fakeRenderer{}
	}
	if config.Mounts == nil {
		config.Mounts = newFakeMounts("plot-0", "plot-1", "plot-2", "plot-3")
	}

	ctx, cancel := context.WithCancel(context.Background())
	controller := NewController(config)
	controller.Start(ctx)

	t.Cleanup(func() {
		cancel()
		controller.Wait()
	})

	return controller
}

func csvSource(name, content string) Source {
	return BytesSource(name, []byte(content))
}

const chartConfig = `{
	"visualizations": [
		{
			"title": "XY",
			"height": 200,
			"cursor": {"sync": {"key": "moo"}},
			"inputs": [{"data": "0.x"}, {"data": "0.y", "label": "y"}]
		},
		{
			"title": "Other",
			"height": 200,
			"cursor": {"sync": {"key": "moo"}},
			"inputs": [{"data": "0.x"}, {"data": "1.z"}]
		}
	]
}`

func TestControllerInitialRender(t *testing.T) {
	renderer := &fakeRenderer{}
	controller := startController(t, ControllerConfig{Renderer: renderer})

	state, err := controller.Snapshot()
	require.NoError(t, err)

	assert.Empty(t, state.Datasets)
	assert.Equal(t, DefaultVisualizations(), state.Visualizations)
	assert.Equal(t, uint64(1), state.Generation)
	assert.Equal(t, []string{"plot-0", "plot-1"}, state.Mounted)
	assert.Contains(t, state.Errors, "Unable to access 0.TimeOfUpdate because dataset 0 is not available!")
	assert.Len(t, renderer.live(), 2)
}

func TestControllerAddDatasets(t *testing.T) {
	t.Run("dataset is registered and charts rebuilt", func(t *testing.T) {
		renderer := &fakeRenderer{}
		controller := startController(t, ControllerConfig{
			Renderer:       renderer,
			Visualizations: []VisualizationSpec{},
		})
		require.NoError(t, controller.ApplyConfig(chartConfig))

		err := controller.AddDatasets([]Source{csvSource("a.csv", "x,y\n0,0.1\n1,0.2\n")}).Wait()
		require.NoError(t, err)

		state, err := controller.Snapshot()
		require.NoError(t, err)

		require.Len(t, state.Datasets, 1)
		assert.Equal(t, "a.csv", state.Datasets[0].SourceName)
		assert.Equal(t, []string{"Unable to access 1.z because dataset 1 is not available!"}, state.Errors)

		live := renderer.live()
		require.Len(t, live, 2)
		assert.Equal(t, [][]float64{{0, 1}, {0.1, 0.2}}, live[0].data)
		assert.Same(t, live[0].group, live[1].group)
	})

	t.Run("no files", func(t *testing.T) {
		controller := startController(t, ControllerConfig{})

		require.NoError(t, controller.AddDatasets(nil).Wait())

		state, err := controller.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, []string{"No files are selected."}, state.Errors)
		assert.Empty(t, state.Datasets)
	})

	t.Run("row errors are reported and the dataset is kept", func(t *testing.T) {
		controller := startController(t, ControllerConfig{Visualizations: []VisualizationSpec{}})

		require.NoError(t, controller.AddDatasets([]Source{csvSource("a.csv", "x,y\n1\n2,3\n")}).Wait())

		state, err := controller.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, []string{`Parsing "a.csv" resulted in errors (1 row errors).`}, state.Errors)
		require.Len(t, state.Datasets, 1)
		assert.Len(t, state.Datasets[0].Rows, 2)
	})

	t.Run("unreadable file is reported and not registered", func(t *testing.T) {
		controller := startController(t, ControllerConfig{Visualizations: []VisualizationSpec{}})

		missing := FileSource(filepath.Join(t.TempDir(), "missing.csv"))
		ok := csvSource("b.csv", "x\n1\n")
		require.NoError(t, controller.AddDatasets([]Source{missing, ok}).Wait())

		state, err := controller.Snapshot()
		require.NoError(t, err)
		require.Len(t, state.Errors, 1)
		assert.Contains(t, state.Errors[0], `Error parsing "missing.csv". Reason: `)
		require.Len(t, state.Datasets, 1)
		assert.Equal(t, "b.csv", state.Datasets[0].SourceName)
	})

	t.Run("each batch resets the errors", func(t *testing.T) {
		controller := startController(t, ControllerConfig{Visualizations: []VisualizationSpec{}})

		require.NoError(t, controller.AddDatasets(nil).Wait())
		require.NoError(t, controller.AddDatasets([]Source{csvSource("a.csv", "x\n1\n")}).Wait())

		state, err := controller.Snapshot()
		require.NoError(t, err)
		assert.Empty(t, state.Errors)
	})

	t.Run("datasets of one batch are all registered", func(t *testing.T) {
		controller := startController(t, ControllerConfig{Visualizations: []VisualizationSpec{}})

		sources := []Source{
			csvSource("a.csv", "x\n1\n"),
			csvSource("b.csv", "x\n2\n"),
			csvSource("c.csv", "x\n3\n"),
		}
		require.NoError(t, controller.AddDatasets(sources).Wait())

		state, err := controller.Snapshot()
		require.NoError(t, err)

		var names []string
		for _, d := range state.Datasets {
			names = append(names, d.SourceName)
		}
		assert.ElementsMatch(t, []string{"a.csv", "b.csv", "c.csv"}, names)
	})
}

func TestControllerApplyConfig(t *testing.T) {
	t.Run("invalid config keeps the previous charts", func(t *testing.T) {
		renderer := &fakeRenderer{}
		controller := startController(t, ControllerConfig{Renderer: renderer})

		before, err := controller.Snapshot()
		require.NoError(t, err)

		err = controller.ApplyConfig("{not json")
		require.Error(t, err)
		assert.True(t, IsConfigError(err, ConfigParseError))

		after, err := controller.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, before.Visualizations, after.Visualizations)
		assert.Equal(t, before.Generation, after.Generation)
		assert.Equal(t, []string{err.Error()}, after.Errors)
		assert.Len(t, renderer.live(), 2)
	})

	t.Run("valid config replaces the list", func(t *testing.T) {
		renderer := &fakeRenderer{}
		controller := startController(t, ControllerConfig{Renderer: renderer})

		require.NoError(t, controller.ApplyConfig(`{"visualizations": [{"title": "only", "inputs": []}]}`))

		state, err := controller.Snapshot()
		require.NoError(t, err)
		require.Len(t, state.Visualizations, 1)
		assert.Equal(t, "only", state.Visualizations[0].Title)
		assert.Equal(t, uint64(2), state.Generation)
		assert.Equal(t, []string{"plot-0"}, state.Mounted)
		assert.Empty(t, state.Errors)
		assert.Len(t, renderer.live(), 1)
		assert.Equal(t, 3, renderer.constructed())
	})

	t.Run("config round trips through the controller", func(t *testing.T) {
		controller := startController(t, ControllerConfig{})

		require.NoError(t, controller.ApplyConfig(chartConfig))
		text, err := controller.Config()
		require.NoError(t, err)

		expected, err := DeserializeConfig(chartConfig)
		require.NoError(t, err)
		actual, err := DeserializeConfig(text)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	})
}

func TestControllerMountLayout(t *testing.T) {
	mounts := NewPageMounts()
	controller := startController(t, ControllerConfig{Mounts: mounts})

	state, err := controller.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"plot-0", "plot-1"}, state.Mounted)

	require.NoError(t, controller.ApplyConfig(`{"visualizations": [{}, {}, {}]}`))
	state, err = controller.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"plot-0", "plot-1", "plot-2"}, state.Mounted)

	_, ok := mounts.Lookup("plot-3")
	assert.False(t, ok)
}

func TestControllerDatasetFields(t *testing.T) {
	controller := startController(t, ControllerConfig{Visualizations: []VisualizationSpec{}})
	require.NoError(t, controller.AddDatasets([]Source{csvSource("a.csv", "Time,SteeringWheelAngle,cdgSpeed_x\n1,2,3\n")}).Wait())

	fields, err := controller.DatasetFields(0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Time", "SteeringWheelAngle", "cdgSpeed_x"}, fields)

	fields, err = controller.DatasetFields(0, "ANGLE")
	require.NoError(t, err)
	assert.Equal(t, []string{"SteeringWheelAngle"}, fields)

	_, err = controller.DatasetFields(1, "")
	assert.EqualError(t, err, "Unable to access 1 because dataset 1 is not available!")
}

func TestControllerOnChange(t *testing.T) {
	var mutex sync.Mutex
	var states []ControllerState

	controller := startController(t, ControllerConfig{
		Visualizations: []VisualizationSpec{},
		OnChange: func(state ControllerState) {
			mutex.Lock()
			defer mutex.Unlock()
			states = append(states, state)
		},
	})

	require.NoError(t, controller.AddDatasets(nil).Wait())

	mutex.Lock()
	defer mutex.Unlock()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, []string{"No files are selected."}, states[len(states)-1].Errors)
}

func TestControllerStopped(t *testing.T) {
	renderer := &fakeRenderer{}
	ctx, cancel := context.WithCancel(context.Background())
	controller := NewController(ControllerConfig{Renderer: renderer, Mounts: newFakeMounts("plot-0", "plot-1")})
	controller.Start(ctx)

	_, err := controller.Snapshot()
	require.NoError(t, err)

	cancel()
	controller.Wait()

	_, err = controller.Snapshot()
	assert.ErrorIs(t, err, ErrControllerStopped)
	assert.ErrorIs(t, controller.ApplyConfig(chartConfig), ErrControllerStopped)
	assert.ErrorIs(t, controller.AddDatasets(nil).Wait(), ErrControllerStopped)
	assert.Empty(t, renderer.live())
}
