package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cactusdynamics/wesviz"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// startTestServer runs a controller with the browser renderer behind an
// httptest server, with the given CSV loaded as dataset 0.
func startTestServer(t *testing.T, csv string, visualizations []wesviz.VisualizationSpec) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	broadcaster := wesviz.NewFrameBroadcaster()
	renderer := wesviz.NewBrowserRenderer(broadcaster)
	controller := wesviz.NewController(wesviz.ControllerConfig{
		Renderer:       renderer,
		Mounts:         wesviz.NewPageMounts(),
		Visualizations: visualizations,
		OnChange: func(state wesviz.ControllerState) {
			renderer.PublishErrors(state.Errors)
		},
	})
	controller.Start(ctx)

	if csv != "" {
		err := controller.AddDatasets([]wesviz.Source{wesviz.BytesSource("data.csv", []byte(csv))}).Wait()
		require.NoError(t, err)
	}

	server := wesviz.NewHttpServer(controller, renderer, broadcaster, "127.0.0.1", 0)
	srv := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		srv.Close()
		cancel()
		controller.Wait()
	})

	return srv.URL
}

func readPage(t *testing.T, serverURL string) []string {
	t.Helper()

	var output bytes.Buffer
	reader := NewWSReader(Config{
		ServerURL: serverURL,
		Output:    &output,
		Logger:    logrus.WithField("tag", "test"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, reader.Connect(ctx))
	return strings.Split(strings.TrimSpace(output.String()), "\n")
}

// TestWSReaderMountedChart tests that the columns of a mounted chart are
// dumped with one row per sample.
func TestWSReaderMountedChart(t *testing.T) {
	serverURL := startTestServer(t, "x,y\n0,0.1\n1,0.2\n", []wesviz.VisualizationSpec{
		{
			Title:  "Test",
			Height: 100,
			Inputs: []wesviz.InputSpec{
				{Label: "x", Data: "0.x"},
				{Label: "y", Data: "0.y"},
			},
		},
	})

	lines := readPage(t, serverURL)

	require.Equal(t, []string{
		"mount,series,index,value",
		"plot-0,0,0,0",
		"plot-0,0,1,1",
		"plot-0,1,0,0.1",
		"plot-0,1,1,0.2",
	}, lines)
}

// TestWSReaderUnresolvedInput tests that an input referring to a missing
// dataset produces no rows while the rest of the chart still does.
func TestWSReaderUnresolvedInput(t *testing.T) {
	serverURL := startTestServer(t, "x,y\n0,5\n", []wesviz.VisualizationSpec{
		{
			Title: "Partial",
			Inputs: []wesviz.InputSpec{
				{Data: "0.x"},
				{Data: "3.y"},
			},
		},
	})

	lines := readPage(t, serverURL)

	require.Equal(t, []string{
		"mount,series,index,value",
		"plot-0,0,0,0",
	}, lines)
}

// TestWSReaderEmptyPage tests handling of a page without charts
func TestWSReaderEmptyPage(t *testing.T) {
	serverURL := startTestServer(t, "", []wesviz.VisualizationSpec{})

	lines := readPage(t, serverURL)

	require.Equal(t, []string{"mount,series,index,value"}, lines)
}
