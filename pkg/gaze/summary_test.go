package gaze

import (
	"math"
	"testing"
	"time"
)

func sampleAt(t time.Duration, st State) Sample {
	return Sample{
		Mono:       t,
		Point:      Point{0.5, 0.5},
		Confidence: 0.9,
		State:      st,
	}
}

func TestSummarize_EmptySession(t *testing.T) {
	s := Summarize(nil, nil, 0)
	if s.TotalDurationS != 0 {
		t.Errorf("duration: got %v", s.TotalDurationS)
	}
	if s.NOutGlances != 0 {
		t.Errorf("glances: got %d", s.NOutGlances)
	}
	if len(s.OutDurationsMs) != 0 {
		t.Errorf("out durations: got %v", s.OutDurationsMs)
	}
}

func TestSummarize_AllInCockpit(t *testing.T) {
	events := []StateEvent{
		{From: StateUnknown, To: StateInCockpit, Start: 0, End: time.Second},
		// Closing event from ForceClose.
		{From: StateInCockpit, To: StateInCockpit, Start: time.Second, End: 11 * time.Second},
	}
	var samples []Sample
	for i := 0; i <= 10; i++ {
		samples = append(samples, sampleAt(time.Duration(i)*time.Second, StateInCockpit))
	}

	s := Summarize(samples, events, 11*time.Second)

	if math.Abs(s.InCockpitS-10) > 0.01 {
		t.Errorf("in-cockpit seconds: got %v, want 10", s.InCockpitS)
	}
	if s.NOutGlances != 0 {
		t.Errorf("glances: got %d, want 0", s.NOutGlances)
	}
	if math.Abs(s.AvgConfidence-0.9) > 1e-9 {
		t.Errorf("avg confidence: got %v", s.AvgConfidence)
	}
}

func TestSummarize_OutGlanceCounted(t *testing.T) {
	sec := func(n float64) time.Duration { return time.Duration(n * float64(time.Second)) }
	events := []StateEvent{
		{From: StateUnknown, To: StateInCockpit, Start: 0, End: sec(0.5)},
		{From: StateInCockpit, To: StateOutOfCockpit, Start: sec(0.5), End: sec(5.5)},
		{From: StateOutOfCockpit, To: StateInCockpit, Start: sec(5.5), End: sec(7.5)},
		{From: StateInCockpit, To: StateInCockpit, Start: sec(7.5), End: sec(10)},
	}
	var samples []Sample
	for i := 0; i <= 10; i++ {
		samples = append(samples, sampleAt(time.Duration(i)*time.Second, StateInCockpit))
	}

	s := Summarize(samples, events, 10*time.Second)

	if s.NOutGlances != 1 {
		t.Errorf("glances: got %d, want 1", s.NOutGlances)
	}
	if len(s.OutDurationsMs) != 1 || math.Abs(s.OutDurationsMs[0]-2000) > 1 {
		t.Errorf("out durations: got %v, want [2000]", s.OutDurationsMs)
	}
	if math.Abs(s.AvgOutMs-2000) > 1 {
		t.Errorf("avg out: got %v", s.AvgOutMs)
	}
	if math.Abs(s.MaxOutMs-2000) > 1 {
		t.Errorf("max out: got %v", s.MaxOutMs)
	}
	if math.Abs(s.InCockpitS-7.5) > 0.01 {
		t.Errorf("in-cockpit seconds: got %v, want 7.5", s.InCockpitS)
	}
}

func TestSummarize_TimelineDownsampled(t *testing.T) {
	var samples []Sample
	for i := 0; i < 30; i++ {
		samples = append(samples, sampleAt(time.Duration(i)*33*time.Millisecond, StateInCockpit))
	}
	s := Summarize(samples, nil, time.Second)
	if len(s.Timeline) != 10 {
		t.Errorf("timeline length: got %d, want 10", len(s.Timeline))
	}
	if s.Timeline[0].TSeconds != 0 {
		t.Errorf("timeline origin: got %v, want 0", s.Timeline[0].TSeconds)
	}
}
