package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testAOI = gaze.AOI{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

func TestStore_CalibrationRoundTrip(t *testing.T) {
	s := openTestStore(t)

	blob := []byte(`{"version":1,"type":"polynomial_ridge"}`)
	require.NoError(t, s.SaveCalibration("alice", blob, 0.021, testAOI))

	rec, err := s.LoadCalibration("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Profile)
	assert.Equal(t, blob, rec.Blob)
	assert.InDelta(t, 0.021, rec.RMSE, 1e-12)
	assert.Equal(t, testAOI, rec.AOI)
	assert.Equal(t, calibration.Hash(blob), rec.Hash)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestStore_CalibrationOverwrite(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveCalibration("p", []byte("one"), 0.1, testAOI))
	require.NoError(t, s.SaveCalibration("p", []byte("two"), 0.2, testAOI))

	rec, err := s.LoadCalibration("p")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), rec.Blob)
	assert.InDelta(t, 0.2, rec.RMSE, 1e-12)

	list, err := s.ListCalibrations()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_LoadCalibrationNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadCalibration("nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	start := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.BeginSession("sess-1", "alice", "abc123def456", start))

	rec, err := s.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Profile)
	assert.Equal(t, "abc123def456", rec.ModelHash)
	assert.Nil(t, rec.EndedAt)
	assert.Nil(t, rec.Summary)

	summary := gaze.Summary{
		TotalDurationS: 12.5,
		InCockpitS:     10.0,
		TotalSamples:   375,
		NOutGlances:    2,
	}
	require.NoError(t, s.EndSession("sess-1", start.Add(12*time.Second), summary))

	rec, err = s.GetSession("sess-1")
	require.NoError(t, err)
	require.NotNil(t, rec.EndedAt)
	require.NotNil(t, rec.Summary)
	assert.Equal(t, 375, rec.Summary.TotalSamples)
	assert.Equal(t, 2, rec.Summary.NOutGlances)
}

func TestStore_EndSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.EndSession("ghost", time.Now(), gaze.Summary{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SamplesEventsMarkers(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.BeginSession("sess-2", "p", "hash", time.Now()))

	results := []pipeline.Result{
		{
			SessionID: "sess-2", Seq: 1, Mono: 33 * time.Millisecond,
			Wall: time.Now(), Raw: gaze.StateInCockpit,
			Committed: gaze.StateUnknown,
			Point:     gaze.Point{X: 0.4, Y: 0.6}, Confidence: 0.9,
			FaceDetected: true,
		},
		{
			SessionID: "sess-2", Seq: 2, Mono: 66 * time.Millisecond,
			Wall: time.Now(), Raw: gaze.StateInCockpit,
			Committed: gaze.StateInCockpit,
			Point:     gaze.Point{X: 0.41, Y: 0.59}, Confidence: 0.92,
			FaceDetected: true,
		},
	}
	require.NoError(t, s.AppendResults(results))

	n, err := s.SampleCount("sess-2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Replaying the same batch must not duplicate rows.
	require.NoError(t, s.AppendResults(results))
	n, err = s.SampleCount("sess-2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ev := gaze.StateEvent{
		From:  gaze.StateUnknown,
		To:    gaze.StateInCockpit,
		Start: 0,
		End:   200 * time.Millisecond,
	}
	require.NoError(t, s.AppendEvent("sess-2", ev))
	events, err := s.Events("sess-2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev, events[0])

	require.NoError(t, s.AppendMarker("sess-2", pipeline.Marker{
		Mono:  time.Second,
		Wall:  time.Now(),
		Label: "takeoff",
	}))
	markers, err := s.Markers("sess-2")
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "takeoff", markers[0].Label)
	assert.Equal(t, time.Second, markers[0].Mono)
}

func TestStore_ListSessions(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()
	require.NoError(t, s.BeginSession("old", "p", "h", base.Add(-time.Hour)))
	require.NoError(t, s.BeginSession("new", "p", "h", base))

	list, err := s.ListSessions(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)

	list, err = s.ListSessions(1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
