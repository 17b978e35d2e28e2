package wesviz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

const bufferSize = 10000

// Uploads larger than this are kept on disk by mime/multipart while parsing
// the form.
const maxUploadMemory = 32 << 20

type HttpServer struct {
	controller  *Controller
	renderer    *BrowserRenderer
	broadcaster *FrameBroadcaster
	addr        string
	mux         *http.ServeMux
	logger      logrus.FieldLogger
}

// DatasetInfo describes one registered dataset in GET /datasets.
type DatasetInfo struct {
	Index  int      `json:"index"`
	Source string   `json:"source"`
	Rows   int      `json:"rows"`
	Fields []string `json:"fields"`
}

// ErrorsResponse is the body of GET /errors and of every state-changing call.
type ErrorsResponse struct {
	Errors []string `json:"errors"`
}

func NewHttpServer(controller *Controller, renderer *BrowserRenderer, broadcaster *FrameBroadcaster, host string, port uint16) *HttpServer {
	s := &HttpServer{
		controller:  controller,
		renderer:    renderer,
		broadcaster: broadcaster,
		addr:        fmt.Sprintf("%s:%d", host, port),
		mux:         http.NewServeMux(),
		logger:      logrus.WithField("tag", "HttpServer"),
	}

	subFS, err := fs.Sub(webuiFiles, "webui")
	if err != nil {
		panic(err)
	}

	s.mux.Handle("/", http.FileServer(http.FS(subFS)))
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /config", s.handleGetConfig)
	s.mux.HandleFunc("POST /config", s.handlePostConfig)
	s.mux.HandleFunc("GET /datasets", s.handleGetDatasets)
	s.mux.HandleFunc("POST /datasets", s.handlePostDatasets)
	s.mux.HandleFunc("GET /errors", s.handleGetErrors)

	return s
}

func (s *HttpServer) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	c, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.WithError(err).Warn("failed to accept new websocket connection")
		return
	}

	logger := s.logger.WithField("client", uuid.NewString())

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	channel := make(chan []byte, bufferSize)
	wg := sync.WaitGroup{}
	wg.Add(2)

	// Reader: the web UI reports cursor movements.
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			_, frame, err := c.Read(ctx)
			if err != nil {
				logger.WithError(err).Debug("websocket read finished")
				return
			}
			s.handleClientFrame(logger, frame)
		}
	}()

	// Writer
	go func() {
		defer wg.Done()
		for {
			select {
			case frame := <-channel:
				err := c.Write(ctx, websocket.MessageBinary, frame)
				if err != nil {
					// At this point the websocket closed, so we don't even need to send anything
					logger.Warn("websocket write failed and closed")
					cancel()
					return
				}
			case <-ctx.Done():
				logger.Info("client closed connection or context canceled")
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}()

	// The channel is already being received from in another goroutine and we
	// register the channels in the main thread.
	s.broadcaster.RegisterChannel(ctx, channel)
	logger.Info("websocket client connected")

	wg.Wait()

	// A publish may be blocked on this channel while we wait for the
	// broadcaster lock, so keep it drained until deregistration completes.
	deregistered := make(chan struct{})
	go func() {
		for {
			select {
			case <-channel:
			case <-deregistered:
				return
			}
		}
	}()

	s.broadcaster.DeregisterChannel(context.WithoutCancel(ctx), channel)
	close(deregistered)
}

func (s *HttpServer) handleClientFrame(logger logrus.FieldLogger, frame []byte) {
	msg, err := DecodeWSMessage(frame)
	if err != nil {
		logger.WithError(err).Warn("failed to decode client frame")
		return
	}

	cursor, ok := msg.Payload.(CursorMessage)
	if !ok {
		logger.WithField("type", fmt.Sprintf("0x%02x", msg.Header.Type)).Warn("unexpected client frame")
		return
	}

	s.renderer.HandleCursor(cursor)
}

func (s *HttpServer) handleGetConfig(w http.ResponseWriter, req *http.Request) {
	config, err := s.controller.Config()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.Write([]byte(config))
}

func (s *HttpServer) handlePostConfig(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.controller.ApplyConfig(string(body))
	switch {
	case errors.Is(err, ErrControllerStopped):
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		s.writeJSON(w, http.StatusBadRequest, ErrorsResponse{Errors: []string{err.Error()}})
		return
	}

	s.writeCurrentErrors(w, http.StatusOK)
}

func (s *HttpServer) handleGetDatasets(w http.ResponseWriter, req *http.Request) {
	state, err := s.controller.Snapshot()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	filter := req.URL.Query().Get("filter")
	datasets := make([]DatasetInfo, len(state.Datasets))
	for i, dataset := range state.Datasets {
		// The registry only grows, so index i stays valid after the snapshot.
		fields, err := s.controller.DatasetFields(i, filter)
		if err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err)
			return
		}

		datasets[i] = DatasetInfo{
			Index:  i,
			Source: dataset.SourceName,
			Rows:   len(dataset.Rows),
			Fields: fields,
		}
	}

	s.writeJSON(w, http.StatusOK, datasets)
}

// handlePostDatasets registers every file of a multipart upload and answers
// once all of them finished parsing.
func (s *HttpServer) handlePostDatasets(w http.ResponseWriter, req *http.Request) {
	var sources []Source

	if err := req.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.MultipartForm != nil {
		for _, headers := range req.MultipartForm.File {
			for _, header := range headers {
				file, err := header.Open()
				if err != nil {
					s.writeError(w, http.StatusBadRequest, err)
					return
				}

				data, err := io.ReadAll(file)
				file.Close()
				if err != nil {
					s.writeError(w, http.StatusBadRequest, err)
					return
				}

				sources = append(sources, BytesSource(header.Filename, data))
			}
		}
	}

	s.logger.WithField("files", len(sources)).Info("datasets uploaded")

	if err := s.controller.AddDatasets(sources).Wait(); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	status := http.StatusOK
	if len(sources) == 0 {
		status = http.StatusBadRequest
	}
	s.writeCurrentErrors(w, status)
}

func (s *HttpServer) handleGetErrors(w http.ResponseWriter, req *http.Request) {
	s.writeCurrentErrors(w, http.StatusOK)
}

func (s *HttpServer) writeCurrentErrors(w http.ResponseWriter, status int) {
	state, err := s.controller.Snapshot()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	errorMessages := state.Errors
	if errorMessages == nil {
		errorMessages = []string{}
	}
	s.writeJSON(w, status, ErrorsResponse{Errors: errorMessages})
}

func (s *HttpServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("failed to write response")
	}
}

func (s *HttpServer) writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}

// Run serves until ctx is canceled.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logrus.Infof("starting HTTP server at http://%s", s.addr)

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler returns the routes of the server, for embedding or tests.
func (s *HttpServer) Handler() http.Handler {
	return s.mux
}

// Addr returns the host:port the server listens on.
func (s *HttpServer) Addr() string {
	return s.addr
}
