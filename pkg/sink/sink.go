// Package sink provides pipeline output consumers: persistence, remote
// streaming and fan-out composition. Every sink honors the pipeline
// contract that writes never block the coordinator beyond a bounded
// enqueue.
package sink

import (
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
)

// Multi fans every write out to all children in order.
type Multi struct {
	sinks []pipeline.Sink
}

// NewMulti composes sinks. Nil entries are skipped.
func NewMulti(sinks ...pipeline.Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) WriteResult(r pipeline.Result) {
	for _, s := range m.sinks {
		s.WriteResult(r)
	}
}

func (m *Multi) WriteEvent(ev gaze.StateEvent) {
	for _, s := range m.sinks {
		s.WriteEvent(ev)
	}
}

func (m *Multi) WriteMarker(mk pipeline.Marker) {
	for _, s := range m.sinks {
		s.WriteMarker(mk)
	}
}

// Func adapts plain functions to the Sink interface. Nil fields are
// no-ops.
type Func struct {
	Result func(pipeline.Result)
	Event  func(gaze.StateEvent)
	Marker func(pipeline.Marker)
}

func (f Func) WriteResult(r pipeline.Result) {
	if f.Result != nil {
		f.Result(r)
	}
}

func (f Func) WriteEvent(ev gaze.StateEvent) {
	if f.Event != nil {
		f.Event(ev)
	}
}

func (f Func) WriteMarker(m pipeline.Marker) {
	if f.Marker != nil {
		f.Marker(m)
	}
}
