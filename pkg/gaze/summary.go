package gaze

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// TimelinePoint is one downsampled gaze sample for replay and charting.
type TimelinePoint struct {
	TSeconds float64 `json:"t_s"`
	GX       float64 `json:"gx"`
	GY       float64 `json:"gy"`
	State    State   `json:"state"`
}

// Summary holds debrief statistics for one session.
type Summary struct {
	TotalDurationS float64 `json:"total_duration_s"`

	InCockpitS   float64 `json:"in_cockpit_s"`
	OutCockpitS  float64 `json:"out_cockpit_s"`
	UnknownS     float64 `json:"unknown_s"`
	InCockpitPct float64 `json:"in_cockpit_pct"`
	OutCockpitPct float64 `json:"out_cockpit_pct"`
	UnknownPct   float64 `json:"unknown_pct"`

	NOutGlances    int       `json:"n_out_glances"`
	OutDurationsMs []float64 `json:"out_durations_ms"`
	AvgOutMs       float64   `json:"avg_out_ms"`
	MedianOutMs    float64   `json:"median_out_ms"`
	MaxOutMs       float64   `json:"max_out_ms"`

	TotalSamples  int     `json:"total_samples"`
	AvgConfidence float64 `json:"avg_confidence"`

	Timeline []TimelinePoint `json:"timeline"`
}

// timelineStride downsamples the stored timeline to roughly 10 Hz at the
// default 30 fps pipeline rate.
const timelineStride = 3

// Summarize computes debrief statistics from a closed session.
//
// Dwell times come from committed transition events: each event records
// the time spent in its From state. The final open segment must already
// be closed with Debouncer.ForceClose before calling, or its dwell time
// is lost.
func Summarize(samples []Sample, events []StateEvent, duration time.Duration) Summary {
	s := Summary{
		TotalDurationS: duration.Seconds(),
		TotalSamples:   len(samples),
		OutDurationsMs: []float64{},
	}

	dwell := map[State]float64{}
	for _, ev := range events {
		dwell[ev.From] += ev.Duration().Seconds()
		if ev.From == StateOutOfCockpit {
			s.OutDurationsMs = append(s.OutDurationsMs, float64(ev.Duration().Microseconds())/1000)
		}
		if ev.To == StateOutOfCockpit && ev.From != StateOutOfCockpit {
			s.NOutGlances++
		}
	}
	s.InCockpitS = dwell[StateInCockpit]
	s.OutCockpitS = dwell[StateOutOfCockpit]
	s.UnknownS = dwell[StateUnknown]

	total := s.TotalDurationS
	if total <= 0 {
		total = 1
	}
	s.InCockpitPct = s.InCockpitS / total * 100
	s.OutCockpitPct = s.OutCockpitS / total * 100
	s.UnknownPct = s.UnknownS / total * 100

	if len(s.OutDurationsMs) > 0 {
		s.AvgOutMs = stat.Mean(s.OutDurationsMs, nil)
		sorted := append([]float64(nil), s.OutDurationsMs...)
		sort.Float64s(sorted)
		s.MedianOutMs = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		s.MaxOutMs = sorted[len(sorted)-1]
	}

	var conf []float64
	for _, sm := range samples {
		if sm.Confidence > 0 {
			conf = append(conf, sm.Confidence)
		}
	}
	if len(conf) > 0 {
		s.AvgConfidence = stat.Mean(conf, nil)
	}

	if len(samples) > 0 {
		t0 := samples[0].Mono
		for i := 0; i < len(samples); i += timelineStride {
			sm := samples[i]
			s.Timeline = append(s.Timeline, TimelinePoint{
				TSeconds: (sm.Mono - t0).Seconds(),
				GX:       sm.Point.X,
				GY:       sm.Point.Y,
				State:    sm.State,
			})
		}
	}

	return s
}
