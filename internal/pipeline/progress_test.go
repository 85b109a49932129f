package pipeline

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"github.com/appagent/aso/pkg/models"
)

// ProgressSuite tests the event sinks and the step tracker.
type ProgressSuite struct {
	suite.Suite
}

func TestProgressSuite(t *testing.T) {
	suite.Run(t, new(ProgressSuite))
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *ProgressSuite) TestProgress_GoodScenarios_StreamWritesNDJSON() {
	rec := httptest.NewRecorder()
	sink := NewStreamSink(context.Background(), rec)

	sink.Emit(models.StartEvent("getAppInfo", 1, 6, "Fetching app info"))
	sink.Emit(models.EndEvent("getAppInfo", 1, 6, map[string]string{"title": "FitApp"}))
	sink.Emit(models.ProgressEvent{Type: models.EventFinalKeywords, Data: []string{"running"}})

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	s.Require().Len(lines, 3)

	var first models.ProgressEvent
	s.Require().NoError(json.Unmarshal([]byte(lines[0]), &first))
	s.Equal("start:getAppInfo", first.Type)
	s.Equal(1, first.Step)
	s.Equal(6, first.TotalSteps)

	var last models.ProgressEvent
	s.Require().NoError(json.Unmarshal([]byte(lines[2]), &last))
	s.Equal(models.EventFinalKeywords, last.Type)
	s.True(rec.Flushed)
}

func (s *ProgressSuite) TestProgress_GoodScenarios_CollectSinkKeepsOrder() {
	sink := &CollectSink{}

	sink.Emit(models.ProgressEvent{Type: "start:a"})
	sink.Emit(models.ProgressEvent{Type: "end:a"})

	events := sink.Events()
	s.Require().Len(events, 2)
	s.Equal("start:a", events[0].Type)
	s.Equal("end:a", events[1].Type)

	// The returned slice is a copy.
	events[0].Type = "mutated"
	s.Equal("start:a", sink.Events()[0].Type)
}

func (s *ProgressSuite) TestProgress_GoodScenarios_TrackerBracketsSteps() {
	sink := &CollectSink{}
	t := newTracker(sink, 2)

	t.start("first", "First step")
	t.end("first", nil)
	t.start("second", "Second step")
	t.end("second", 5)

	events := sink.Events()
	s.Require().Len(events, 4)
	s.Equal("start:first", events[0].Type)
	s.Equal(1, events[0].Step)
	s.Equal("end:second", events[3].Type)
	s.Equal(2, events[3].Step)
	s.Equal(2, events[3].TotalSteps)
}

func (s *ProgressSuite) TestProgress_GoodScenarios_TrackerGrowsTotalMidRun() {
	sink := &CollectSink{}
	t := newTracker(sink, 2)

	t.start("first", "First step")
	t.end("first", nil)
	t.grow()
	t.start("extra", "Fallback step")

	events := sink.Events()
	s.Equal(2, events[0].TotalSteps)
	s.Equal(3, events[2].TotalSteps, "later events report the grown total")
	s.Equal(2, events[2].Step)
}

// =============================================================================
// BAD SCENARIOS - Edge cases and error conditions
// =============================================================================

func (s *ProgressSuite) TestProgress_BadScenarios_StreamStopsAfterCancel() {
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	sink := NewStreamSink(ctx, rec)

	sink.Emit(models.ProgressEvent{Type: "start:a"})
	cancel()
	sink.Emit(models.ProgressEvent{Type: "end:a"})

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	s.Len(lines, 1, "nothing is written after the client goes away")
}

func (s *ProgressSuite) TestProgress_BadScenarios_NilSinkIsSafe() {
	t := newTracker(nil, 1)

	t.start("only", "Only step")
	t.end("only", nil)
	t.fail(models.ErrUpstream)
}

func (s *ProgressSuite) TestProgress_BadScenarios_FailEmitsErrorEvent() {
	sink := &CollectSink{}
	t := newTracker(sink, 1)

	t.fail(models.ErrUpstream)

	events := sink.Events()
	s.Require().Len(events, 1)
	s.Equal(models.EventError, events[0].Type)
	s.Equal(models.ErrUpstream.Error(), events[0].Message)
}
