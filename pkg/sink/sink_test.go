package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
	"github.com/teslashibe/go-gaze/pkg/store"
)

type countingSink struct {
	results, events, markers int
}

func (c *countingSink) WriteResult(pipeline.Result) { c.results++ }
func (c *countingSink) WriteEvent(gaze.StateEvent)  { c.events++ }
func (c *countingSink) WriteMarker(pipeline.Marker) { c.markers++ }

func TestMulti_FansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := NewMulti(a, nil, b)

	m.WriteResult(pipeline.Result{})
	m.WriteResult(pipeline.Result{})
	m.WriteEvent(gaze.StateEvent{})
	m.WriteMarker(pipeline.Marker{})

	for _, s := range []*countingSink{a, b} {
		assert.Equal(t, 2, s.results)
		assert.Equal(t, 1, s.events)
		assert.Equal(t, 1, s.markers)
	}
}

func TestFunc_NilFieldsAreNoOps(t *testing.T) {
	var got int
	f := Func{Result: func(pipeline.Result) { got++ }}

	f.WriteResult(pipeline.Result{})
	f.WriteEvent(gaze.StateEvent{})  // nil handler, must not panic
	f.WriteMarker(pipeline.Marker{}) // nil handler, must not panic
	assert.Equal(t, 1, got)
}

func TestStore_PersistsThroughWriter(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.BeginSession("sess", "p", "h", time.Now()))

	s := NewStore(st)
	s.SetSession("sess")
	ctx, cancel := context.WithCancel(context.Background())
	s.Run(ctx)

	for i := 1; i <= 3; i++ {
		s.WriteResult(pipeline.Result{
			SessionID: "sess",
			Seq:       uint64(i),
			Mono:      time.Duration(i) * 33 * time.Millisecond,
			Wall:      time.Now(),
			Raw:       gaze.StateInCockpit,
			Committed: gaze.StateInCockpit,
		})
	}
	s.WriteEvent(gaze.StateEvent{From: gaze.StateUnknown, To: gaze.StateInCockpit, End: time.Second})
	s.WriteMarker(pipeline.Marker{Label: "note", Wall: time.Now()})

	// Give the writer a moment to pick the ops up, then shut down and
	// wait for the final flush.
	time.Sleep(50 * time.Millisecond)
	cancel()
	s.Wait()

	n, err := st.SampleCount("sess")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	events, err := st.Events("sess")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	markers, err := st.Markers("sess")
	require.NoError(t, err)
	assert.Len(t, markers, 1)

	assert.Zero(t, s.Dropped())
}

func TestStore_EventsWithoutSessionAreSkipped(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	s := NewStore(st)
	ctx, cancel := context.WithCancel(context.Background())
	s.Run(ctx)

	s.WriteEvent(gaze.StateEvent{From: gaze.StateUnknown, To: gaze.StateInCockpit})
	time.Sleep(20 * time.Millisecond)
	cancel()
	s.Wait()

	events, err := st.Events("anything")
	require.NoError(t, err)
	assert.Empty(t, events)
}
