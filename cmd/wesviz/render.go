package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cactusdynamics/wesviz"
	"github.com/spf13/cobra"
)

var errRenderIncomplete = errors.New("render finished with errors")

type renderOptions struct {
	out   string
	width int
	dpr   float64
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render [files...]",
		Short: "Render charts to PNG files",
		Long: `Load the given files as datasets 0, 1, ... in argument order, apply the
visualization config and write one PNG per chart into the output directory.

Every error message is printed to stderr, and the command fails if there
was any.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(rootOpts)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("width") {
				settings.Viewport.Width = opts.width
			}
			if flags.Changed("dpr") {
				settings.Viewport.DevicePixelRatio = opts.dpr
			}

			return runRender(cmd.Context(), settings, opts.out, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "plots", "output directory")
	cmd.Flags().IntVar(&opts.width, "width", 0, "chart width in pixels")
	cmd.Flags().Float64Var(&opts.dpr, "dpr", 0, "device pixel ratio of the display")

	return cmd
}

func runRender(ctx context.Context, settings wesviz.Settings, out string, files []string, stdout, stderr io.Writer) error {
	config, err := readConfig(settings.ConfigPath)
	if err != nil {
		return err
	}

	mounts, err := wesviz.NewFileMounts(out)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	// Start without charts so that nothing is drawn before every dataset is in.
	controller := wesviz.NewController(wesviz.ControllerConfig{
		Renderer:       wesviz.NewPNGRenderer(),
		Mounts:         mounts,
		Viewport:       func() wesviz.Viewport { return settings.Viewport },
		Visualizations: []wesviz.VisualizationSpec{},
	})
	controller.Start(ctx)
	defer controller.Wait()
	defer cancel()

	var errorMessages []string

	// One file at a time keeps dataset indexes equal to argument positions.
	for _, src := range fileSources(files) {
		if err := controller.AddDatasets([]wesviz.Source{src}).Wait(); err != nil {
			return err
		}

		state, err := controller.Snapshot()
		if err != nil {
			return err
		}
		errorMessages = append(errorMessages, state.Errors...)
	}

	// Applying the config resets the error sink, so load errors were collected
	// above.
	if err := controller.ApplyConfig(config); err != nil {
		var configErr *wesviz.ConfigError
		if errors.As(err, &configErr) {
			fmt.Fprintln(stderr, err.Error())
			return errRenderIncomplete
		}
		return err
	}

	state, err := controller.Snapshot()
	if err != nil {
		return err
	}
	errorMessages = append(errorMessages, state.Errors...)

	for _, mountID := range state.Mounted {
		fmt.Fprintf(stdout, "wrote %s\n", mounts.Path(mountID))
	}

	for _, message := range errorMessages {
		fmt.Fprintln(stderr, message)
	}

	if len(errorMessages) > 0 {
		return errRenderIncomplete
	}
	return nil
}
