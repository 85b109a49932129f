// Package pipeline implements the ASO keyword discovery, scoring, and
// competitor research pipelines, streaming typed progress events to a
// caller-supplied sink while they run.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/pkg/models"
)

// Sink receives progress events as a pipeline runs. Implementations
// must be safe for use from the single pipeline goroutine; batched
// sub-operations report through the pipeline, not directly.
type Sink interface {
	Emit(event models.ProgressEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(models.ProgressEvent) {}

// CollectSink records events in order; used by tests and by callers
// that want the event log after the fact.
type CollectSink struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (s *CollectSink) Emit(event models.ProgressEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

// Events returns a copy of everything emitted so far.
func (s *CollectSink) Events() []models.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProgressEvent, len(s.events))
	copy(out, s.events)
	return out
}

// StreamSink writes events as newline-delimited JSON to a writer,
// flushing after every line so the UI sees steps as they happen.
// Once the context is done (client disconnected) emission stops
// silently; in-flight pipeline work finishes without further output.
type StreamSink struct {
	ctx     context.Context
	w       io.Writer
	flusher http.Flusher
	mu      sync.Mutex
}

// NewStreamSink creates a sink over an HTTP response writer (or any
// writer; flushing is skipped when the writer cannot flush).
func NewStreamSink(ctx context.Context, w io.Writer) *StreamSink {
	flusher, _ := w.(http.Flusher)
	return &StreamSink{ctx: ctx, w: w, flusher: flusher}
}

func (s *StreamSink) Emit(event models.ProgressEvent) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal progress event")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		log.Debug().Err(err).Msg("Progress stream write failed (client gone?)")
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// tracker keeps the step counter for one pipeline run. Steps increment
// only when executed, so short-circuited runs may not reach the nominal
// total. Every run gets a uuid stamped on its events for correlation
// with the logs.
type tracker struct {
	sink  Sink
	runID string
	step  int
	total int
}

func newTracker(sink Sink, total int) *tracker {
	if sink == nil {
		sink = NopSink{}
	}
	runID := uuid.NewString()
	log.Debug().Str("run_id", runID).Int("total_steps", total).Msg("Pipeline run started")
	return &tracker{sink: sink, runID: runID, total: total}
}

func (t *tracker) emit(event models.ProgressEvent) {
	event.RunID = t.runID
	t.sink.Emit(event)
}

// start opens a bracketed step, incrementing the counter.
func (t *tracker) start(op, message string) {
	t.step++
	t.emit(models.StartEvent(op, t.step, t.total, message))
}

// end closes the current bracketed step.
func (t *tracker) end(op string, data any) {
	t.emit(models.EndEvent(op, t.step, t.total, data))
}

// point emits an unbracketed event.
func (t *tracker) point(event models.ProgressEvent) {
	t.emit(event)
}

// grow raises the nominal total, used when a fallback branch adds a
// step mid-run.
func (t *tracker) grow() {
	t.total++
}

// fail emits the error event; callers still return the error so the
// stream closes in an error state as well.
func (t *tracker) fail(err error) {
	log.Error().Err(err).Str("run_id", t.runID).Msg("Pipeline run failed")
	t.emit(models.ProgressEvent{Type: models.EventError, Message: err.Error()})
}
