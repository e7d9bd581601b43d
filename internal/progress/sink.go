// SPDX-License-Identifier: MPL-2.0

package progress

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type (
	// Sink receives progress events as they are recorded.
	// Emit is called with the Channel lock held and must not call back into it.
	Sink interface {
		Emit(Event)
	}

	// SinkFunc adapts a function into a Sink.
	SinkFunc func(Event)

	jsonLinesSink struct {
		mu  sync.Mutex
		enc *json.Encoder
	}

	// jsonLine is the wire shape of a progress line.
	jsonLine struct {
		Type string `json:"type"`
		Event
	}

	logSink struct {
		logger *log.Logger
	}

	multiSink []Sink
)

// Emit implements Sink.
func (f SinkFunc) Emit(ev Event) { f(ev) }

// NewJSONLinesSink writes each event to w as a single JSON object line of
// the form {"type":"progress","step":...,"data":...,"timestamp":...}.
// Write errors are ignored; progress reporting never fails a run.
func NewJSONLinesSink(w io.Writer) Sink {
	return &jsonLinesSink{enc: json.NewEncoder(w)}
}

func (s *jsonLinesSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(jsonLine{Type: "progress", Event: ev})
}

// NewLogSink logs each event at debug level.
func NewLogSink(logger *log.Logger) Sink {
	return &logSink{logger: logger}
}

func (s *logSink) Emit(ev Event) {
	kv := make([]any, 0, 2+2*len(ev.Data))
	kv = append(kv, "step", ev.Step)
	for k, v := range ev.Data {
		kv = append(kv, k, v)
	}
	s.logger.Debug("progress", kv...)
}

// MultiSink fans each event out to every non-nil sink in order.
func MultiSink(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}
