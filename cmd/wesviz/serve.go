package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/cactusdynamics/wesviz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	host      string
	port      uint16
	width     int
	dpr       float64
	noBrowser bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve [files...]",
		Short: "Serve the web UI and plot the given files",
		Long: `Start the HTTP server with the web UI. The given files are loaded as datasets
0, 1, ... in the order they finish parsing. More files can be uploaded from
the page.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(rootOpts)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("host") {
				settings.Host = opts.host
			}
			if flags.Changed("port") {
				settings.Port = opts.port
			}
			if flags.Changed("width") {
				settings.Viewport.Width = opts.width
			}
			if flags.Changed("dpr") {
				settings.Viewport.DevicePixelRatio = opts.dpr
			}
			if opts.noBrowser {
				settings.OpenBrowser = false
			}

			return runServe(cmd.Context(), settings, args)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "host to listen on")
	cmd.Flags().Uint16VarP(&opts.port, "port", "p", 0, "port to listen on")
	cmd.Flags().IntVar(&opts.width, "width", 0, "chart width in pixels")
	cmd.Flags().Float64Var(&opts.dpr, "dpr", 0, "device pixel ratio of the display")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "do not open a browser")

	return cmd
}

func runServe(ctx context.Context, settings wesviz.Settings, files []string) error {
	var visualizations []wesviz.VisualizationSpec
	if settings.ConfigPath != "" {
		text, err := readConfig(settings.ConfigPath)
		if err != nil {
			return err
		}

		visualizations, err = wesviz.DeserializeConfig(text)
		if err != nil {
			return fmt.Errorf("%s: %w", settings.ConfigPath, err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	logger := logrus.WithField("tag", "serve")

	broadcaster := wesviz.NewFrameBroadcaster()
	renderer := wesviz.NewBrowserRenderer(broadcaster)

	controller := wesviz.NewController(wesviz.ControllerConfig{
		Renderer:       renderer,
		Mounts:         wesviz.NewPageMounts(),
		Viewport:       func() wesviz.Viewport { return settings.Viewport },
		Visualizations: visualizations,
		OnChange: func(state wesviz.ControllerState) {
			if err := renderer.PublishErrors(state.Errors); err != nil {
				logger.WithError(err).Warn("failed to publish errors")
			}
		},
	})
	controller.Start(ctx)

	if len(files) > 0 {
		controller.AddDatasets(fileSources(files))
	}

	server := wesviz.NewHttpServer(controller, renderer, broadcaster, settings.Host, settings.Port)
	if settings.OpenBrowser {
		go wesviz.OpenBrowser("http://" + server.Addr())
	}

	err := server.Run(ctx)

	stop()
	controller.Wait()
	return err
}
