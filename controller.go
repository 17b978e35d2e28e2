package wesviz

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrControllerStopped = errors.New("controller is not running")

type ControllerConfig struct {
	// Defaults to NewFormatParser().
	Parser Parser

	// Defaults to DefaultParseOptions.
	ParseOptions *ParseOptions

	Renderer Renderer
	Mounts   MountPoints

	// Read at every render pass. Defaults to DefaultViewport.
	Viewport func() Viewport

	// The visualizations in place before any config is applied. nil means
	// DefaultVisualizations().
	Visualizations []VisualizationSpec

	// Called on the event loop after every state transition. Must not call back
	// into the Controller.
	OnChange func(ControllerState)
}

// ControllerState is a copy of the screen state at one point in time.
type ControllerState struct {
	Datasets       []Dataset
	Visualizations []VisualizationSpec
	Errors         []string

	// Generation is the ID of the live render generation and Mounted lists the
	// mount IDs that currently have a chart.
	Generation uint64
	Mounted    []string
}

// Controller owns the three pieces of screen state: the dataset registry, the
// visualization list and the error sink. All of them are only touched from a
// single event loop goroutine and are replaced wholesale, never patched, so no
// locks guard them.
//
// Three things trigger a transition: a dataset finishing parsing, a config
// being applied, and the render pass that follows either of them.
type Controller struct {
	parser       Parser
	parseOptions ParseOptions
	mounts       MountPoints
	lifecycle    *ChartLifecycleManager
	onChange     func(ControllerState)

	datasets       *DatasetRegistry
	visualizations []VisualizationSpec
	errors         *ErrorSink

	events chan func()
	done   chan struct{}
	wg     sync.WaitGroup

	// Context handed to parsers. Set by Start.
	ctx context.Context

	logger logrus.FieldLogger
}

func NewController(config ControllerConfig) *Controller {
	parser := config.Parser
	if parser == nil {
		parser = NewFormatParser()
	}

	parseOptions := DefaultParseOptions
	if config.ParseOptions != nil {
		parseOptions = *config.ParseOptions
	}

	visualizations := config.Visualizations
	if visualizations == nil {
		visualizations = DefaultVisualizations()
	}

	return &Controller{
		parser:       parser,
		parseOptions: parseOptions,
		mounts:       config.Mounts,
		lifecycle:    NewChartLifecycleManager(config.Renderer, config.Mounts, config.Viewport),
		onChange:     config.OnChange,

		datasets:       NewDatasetRegistry(),
		visualizations: visualizations,
		errors:         NewErrorSink(),

		events: make(chan func()),
		done:   make(chan struct{}),

		logger: logrus.WithField("tag", "Controller"),
	}
}

// Start runs the event loop until ctx is canceled. The initial visualizations
// are rendered right away, against an empty registry. Every other method
// requires Start to have been called.
func (c *Controller) Start(ctx context.Context) {
	c.ctx = ctx

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Wait blocks until the event loop exited and the last generation is disposed.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context) {
	c.render()

	for {
		select {
		case event := <-c.events:
			event()
		case <-ctx.Done():
			c.lifecycle.Teardown()
			close(c.done)
			c.logger.WithField("datasets", c.datasets.Len()).Info("controller stopped")
			return
		}
	}
}

// do runs fn on the event loop and waits for it to finish. Must never be called
// from the loop itself.
func (c *Controller) do(fn func()) error {
	finished := make(chan struct{})

	select {
	case c.events <- func() {
		defer close(finished)
		fn()
	}:
	case <-c.done:
		return ErrControllerStopped
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrControllerStopped
	}
}

// post queues fn on the event loop without waiting. Returns false if the loop
// has stopped.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// PendingLoad tracks one AddDatasets batch.
type PendingLoad struct {
	wg  sync.WaitGroup
	err error
}

// Wait blocks until every file of the batch was either registered or
// reported as failed. Returns ErrControllerStopped if the batch could not be
// started.
func (p *PendingLoad) Wait() error {
	p.wg.Wait()
	return p.err
}

// AddDatasets starts parsing every source concurrently. Each source that
// parses is appended to the registry when its parse completes, so the
// resulting dataset order follows completion order rather than the order of
// sources. Each append triggers a render pass.
func (c *Controller) AddDatasets(sources []Source) *PendingLoad {
	pending := &PendingLoad{}

	err := c.do(func() {
		c.errors.Reset()

		if len(sources) == 0 {
			c.errors.AppendError(ErrNoFilesSelected)
			c.notify()
			return
		}

		pending.wg.Add(len(sources))
		for _, src := range sources {
			go c.parse(src, pending)
		}

		c.notify()
	})

	if err != nil {
		pending.err = err
	}

	return pending
}

func (c *Controller) parse(src Source, pending *PendingLoad) {
	results, err := c.parser.Parse(c.ctx, src, c.parseOptions)

	posted := c.post(func() {
		defer pending.wg.Done()
		c.completeParse(src, results, err)
	})

	if !posted {
		pending.wg.Done()
	}
}

func (c *Controller) completeParse(src Source, results ParseResults, err error) {
	logger := c.logger.WithField("source", src.Name())

	if err != nil {
		logger.WithError(err).Error("error parsing file")
		c.errors.AppendError(&FileParseError{SourceName: src.Name(), Err: err})
		c.notify()
		return
	}

	if len(results.Errors) > 0 {
		for _, rowErr := range results.Errors {
			logger.WithError(&rowErr).Debug("row error")
		}
		logger.WithField("rowErrors", len(results.Errors)).Warn("parsing complete but contains errors")
		c.errors.AppendError(&RowParseErrors{SourceName: src.Name(), Errors: results.Errors})
	} else {
		logger.WithField("rows", len(results.Data)).Info("parsing complete")
	}

	c.datasets = c.datasets.Append(results.Dataset(src.Name()))
	c.render()
}

// ApplyConfig replaces the visualization list with the one in text. If text is
// not a valid config document the current list and charts are kept and the
// *ConfigError is returned.
func (c *Controller) ApplyConfig(text string) error {
	var applyErr error

	err := c.do(func() {
		c.errors.Reset()

		visualizations, err := DeserializeConfig(text)
		if err != nil {
			c.logger.WithError(err).Warn("error applying config")
			c.errors.AppendError(err)
			applyErr = err
			c.notify()
			return
		}

		c.visualizations = visualizations
		c.render()
	})

	if err != nil {
		return err
	}
	return applyErr
}

// render is the derived render pass. It never resets the error sink.
func (c *Controller) render() {
	if layout, ok := c.mounts.(MountLayout); ok {
		layout.Layout(len(c.visualizations))
	}

	errorMessages := c.lifecycle.Rebuild(c.datasets, c.visualizations)
	c.errors.Append(errorMessages...)
	c.notify()
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.state())
}

func (c *Controller) state() ControllerState {
	state := ControllerState{
		Datasets:       c.datasets.Datasets(),
		Visualizations: c.visualizations,
		Errors:         c.errors.Messages(),
	}

	if generation := c.lifecycle.Generation(); generation != nil {
		state.Generation = generation.ID
		for _, chart := range generation.Charts {
			state.Mounted = append(state.Mounted, chart.MountID)
		}
	}

	return state
}

func (c *Controller) Snapshot() (ControllerState, error) {
	var state ControllerState
	err := c.do(func() {
		state = c.state()
	})
	return state, err
}

// Config returns the current visualizations as an editable config document.
func (c *Controller) Config() (string, error) {
	state, err := c.Snapshot()
	if err != nil {
		return "", err
	}
	return SerializeConfig(state.Visualizations)
}

// DatasetFields returns the column names of dataset index that contain
// filter, ignoring case. An empty filter returns every column.
func (c *Controller) DatasetFields(index int, filter string) ([]string, error) {
	state, err := c.Snapshot()
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(state.Datasets) {
		name := strconv.Itoa(index)
		return nil, &DatasetNotFoundError{Ref: name, Index: name}
	}

	return FilterFields(state.Datasets[index].Columns, filter), nil
}
