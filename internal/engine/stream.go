package engine

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// buildSuccessMarker is the terminal line the classic builder emits on
// success. Build outcome is judged solely by its presence in the log
// stream, never by the stream ending cleanly.
const buildSuccessMarker = "Successfully built"

// layerState tracks the lifecycle of a single layer during a pull. It only
// feeds progress reporting; pull success is judged by the acquisition
// operation, not by this table.
type layerState int

const (
	statePulling layerState = iota + 1
	stateWaiting
	stateDownloading
	stateVerifying
	stateDownloadCompleted
	stateExtracting
	statePullCompleted
)

var pullStatuses = map[string]layerState{
	"Pulling fs layer":   statePulling,
	"Waiting":            stateWaiting,
	"Downloading":        stateDownloading,
	"Verifying Checksum": stateVerifying,
	"Download complete":  stateDownloadCompleted,
	"Extracting":         stateExtracting,
	"Pull complete":      statePullCompleted,
}

type pullMessage struct {
	Status      string       `json:"status"`
	ID          string       `json:"id"`
	ErrorDetail *errorDetail `json:"errorDetail"`
}

type errorDetail struct {
	Message string `json:"message"`
}

// pullStreamer drains the engine's pull status stream on a dedicated
// goroutine. The layer table is owned by that goroutine for its lifetime;
// nothing else reads or writes it.
type pullStreamer struct {
	body   io.Reader
	log    zerolog.Logger
	layers map[string]layerState
	err    error
	done   chan struct{}
}

func newPullStreamer(body io.Reader, logger zerolog.Logger) *pullStreamer {
	return &pullStreamer{
		body:   body,
		log:    logger,
		layers: make(map[string]layerState),
		done:   make(chan struct{}),
	}
}

// Start launches the worker. The caller must Wait before touching the
// pulled image again.
func (s *pullStreamer) Start() {
	go func() {
		defer close(s.done)
		s.run()
	}()
}

// Wait blocks until the stream is fully drained and returns the first
// engine-reported fault seen in it, if any.
func (s *pullStreamer) Wait() error {
	<-s.done
	return s.err
}

func (s *pullStreamer) run() {
	decoder := json.NewDecoder(s.body)
	for {
		var msg pullMessage
		if err := decoder.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && s.err == nil {
				s.err = err
			}
			return
		}

		if msg.ErrorDetail != nil && s.err == nil {
			s.err = errors.New(msg.ErrorDetail.Message)
			continue
		}
		if msg.Status == "" {
			continue
		}

		state, known := pullStatuses[msg.Status]
		if !known || msg.ID == "" {
			s.log.Info().Msg(msg.Status)
			continue
		}

		s.layers[msg.ID] = state
		if state == statePullCompleted {
			completed := 0
			for _, st := range s.layers {
				if st == statePullCompleted {
					completed++
				}
			}
			s.log.Info().
				Str("layer", msg.ID).
				Int("completed", completed).
				Int("total", len(s.layers)).
				Msg("Pull of layer completed")
		}
	}
}

type buildMessage struct {
	Stream      string       `json:"stream"`
	ErrorDetail *errorDetail `json:"errorDetail"`
}

// buildStreamer drains the build log stream on a dedicated goroutine and
// records whether the success marker was seen.
type buildStreamer struct {
	body      io.Reader
	log       zerolog.Logger
	succeeded bool
	done      chan struct{}
}

func newBuildStreamer(body io.Reader, logger zerolog.Logger) *buildStreamer {
	return &buildStreamer{body: body, log: logger, done: make(chan struct{})}
}

func (s *buildStreamer) Start() {
	go func() {
		defer close(s.done)
		s.run()
	}()
}

// Wait blocks until the stream is fully drained.
func (s *buildStreamer) Wait() {
	<-s.done
}

// Succeeded reports whether the success marker appeared in the stream. Only
// valid after Wait has returned.
func (s *buildStreamer) Succeeded() bool {
	return s.succeeded
}

func (s *buildStreamer) run() {
	s.log.Info().Msg("Start image build log streaming")

	decoder := json.NewDecoder(s.body)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err != nil {
			// A truncated or malformed stream changes nothing: the
			// outcome is already fixed by whether the marker was seen.
			return
		}

		var line string
		switch {
		case msg.Stream != "":
			line = strings.ReplaceAll(msg.Stream, "\n", "")
		case msg.ErrorDetail != nil:
			line = strings.ReplaceAll(msg.ErrorDetail.Message, "\n", "")
		default:
			continue
		}

		if line != "" {
			s.log.Info().Msg(line)
		}
		if strings.Contains(line, buildSuccessMarker) {
			s.succeeded = true
		}
	}
}
