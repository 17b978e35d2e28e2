package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/cactusdynamics/wesviz"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// errPageComplete signals that the replay of the current page ended.
var errPageComplete = errors.New("page complete")

// Config holds the configuration for the WS reader
type Config struct {
	ServerURL string
	Output    io.Writer

	// Keep reading after the current page was received.
	Follow bool

	Logger logrus.FieldLogger
}

// WSReader reads chart frames from the wesviz /ws endpoint and outputs the
// columns of every mounted chart as CSV.
type WSReader struct {
	config    Config
	csvWriter *csv.Writer
}

// NewWSReader creates a new WS reader with the given configuration
func NewWSReader(config Config) *WSReader {
	return &WSReader{
		config:    config,
		csvWriter: csv.NewWriter(config.Output),
	}
}

// Connect establishes websocket connection and processes messages. Without
// Follow it returns once the server finished sending the current page, which
// always ends with the error list.
func (w *WSReader) Connect(ctx context.Context) error {
	u, err := url.Parse(w.config.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	// Change scheme to websocket
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	u.Path = "/ws"

	w.config.Logger.WithField("url", u.String()).Info("connecting to websocket")

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := w.csvWriter.Write([]string{"mount", "series", "index", "value"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for {
		_, messageData, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				w.config.Logger.Info("connection closed normally")
				break
			}
			w.config.Logger.WithError(err).Error("error reading message")
			break
		}

		if err := w.processMessage(messageData); err != nil {
			if errors.Is(err, errPageComplete) {
				w.config.Logger.Info("page received")
				break
			}
			w.config.Logger.WithError(err).Error("error processing message")
		}
	}

	w.csvWriter.Flush()
	return w.csvWriter.Error()
}

// processMessage processes a single websocket message
func (w *WSReader) processMessage(messageData []byte) error {
	msg, err := wesviz.DecodeWSMessage(messageData)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	switch payload := msg.Payload.(type) {
	case wesviz.ChartMountMessage:
		return w.processChartMount(payload)

	case wesviz.ChartDisposeMessage:
		w.config.Logger.WithField("mount", payload.MountID).Debug("chart disposed")

	case wesviz.CursorMessage:
		w.config.Logger.WithFields(logrus.Fields{
			"mount": payload.MountID,
			"idx":   payload.Position.Idx,
		}).Debug("cursor moved")

	case wesviz.ErrorsMessage:
		for _, message := range payload.Errors {
			w.config.Logger.WithField("message", message).Warn("server reported error")
		}
		if !w.config.Follow {
			return errPageComplete
		}

	default:
		w.config.Logger.WithField("type", fmt.Sprintf("0x%02x", msg.Header.Type)).Warn("unknown message type")
	}

	return nil
}

// processChartMount writes one CSV row per sample. Columns of inputs that did
// not resolve are skipped.
func (w *WSReader) processChartMount(mount wesviz.ChartMountMessage) error {
	for seriesIndex, column := range mount.Columns {
		if column == nil {
			continue
		}

		series := strconv.Itoa(seriesIndex)
		for i, value := range column {
			row := []string{
				mount.MountID,
				series,
				strconv.Itoa(i),
				strconv.FormatFloat(value, 'g', -1, 64),
			}
			if err := w.csvWriter.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	w.csvWriter.Flush()
	return w.csvWriter.Error()
}

func main() {
	var serverURL = flag.String("url", "http://localhost:5274", "URL of the wesviz server")
	var follow = flag.Bool("follow", false, "keep printing charts as they are mounted")
	flag.Parse()

	logrus.SetOutput(os.Stderr)

	config := Config{
		ServerURL: *serverURL,
		Output:    os.Stdout,
		Follow:    *follow,
		Logger:    logrus.WithField("tag", "WSReader"),
	}

	reader := NewWSReader(config)
	if err := reader.Connect(context.Background()); err != nil {
		config.Logger.WithError(err).Error("failed to connect")
		os.Exit(1)
	}
}
