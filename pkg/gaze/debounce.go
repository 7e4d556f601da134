package gaze

import (
	"log/slog"
	"time"
)

// Debouncer converts a stream of raw per-frame states into a stream of
// committed states. A candidate must disagree with the committed state
// unanimously for the whole stability window before it commits; any
// disagreement inside the window restarts the clock. This keeps
// single-frame flicker out of the statistics.
//
// All times are monotonic offsets from session start. Not safe for
// concurrent use; the pipeline goroutine owns it.
type Debouncer struct {
	stable time.Duration

	committed    State
	segmentStart time.Duration

	pending      State
	hasPending   bool
	pendingSince time.Duration

	events       []StateEvent
	onTransition func(StateEvent)
}

// NewDebouncer creates a state machine with the given stability window.
// The initial committed state is UNKNOWN.
func NewDebouncer(stable time.Duration) *Debouncer {
	return &Debouncer{
		stable:    stable,
		committed: StateUnknown,
	}
}

// OnTransition registers a callback invoked for every committed
// transition and for the closing event emitted by ForceClose.
func (d *Debouncer) OnTransition(fn func(StateEvent)) {
	d.onTransition = fn
}

// Current returns the committed state.
func (d *Debouncer) Current() State {
	return d.committed
}

// Events returns a copy of all emitted events so far.
func (d *Debouncer) Events() []StateEvent {
	out := make([]StateEvent, len(d.events))
	copy(out, d.events)
	return out
}

// Reset returns the machine to UNKNOWN with a fresh segment starting at
// mono and clears pending state and recorded events.
func (d *Debouncer) Reset(mono time.Duration) {
	d.committed = StateUnknown
	d.segmentStart = mono
	d.hasPending = false
	d.events = d.events[:0]
}

// Update feeds a raw candidate state observed at mono and returns the
// committed state.
func (d *Debouncer) Update(candidate State, mono time.Duration) State {
	if candidate == d.committed {
		// Agreement clears any pending candidate.
		d.hasPending = false
		return d.committed
	}

	if !d.hasPending || candidate != d.pending {
		// A new disagreement starts its stability timer from scratch.
		d.pending = candidate
		d.hasPending = true
		d.pendingSince = mono
		return d.committed
	}

	if mono-d.pendingSince >= d.stable {
		d.commit(candidate, mono)
	}
	return d.committed
}

// ForceClose emits a closing event for the currently committed segment up
// to mono, without changing the committed state. Used at session end so
// the final segment is represented. Returns nil if the segment is empty.
func (d *Debouncer) ForceClose(mono time.Duration) *StateEvent {
	if mono <= d.segmentStart {
		return nil
	}
	ev := StateEvent{
		From:  d.committed,
		To:    d.committed,
		Start: d.segmentStart,
		End:   mono,
	}
	d.events = append(d.events, ev)
	if d.onTransition != nil {
		d.onTransition(ev)
	}
	return &ev
}

func (d *Debouncer) commit(next State, mono time.Duration) {
	ev := StateEvent{
		From:  d.committed,
		To:    next,
		Start: d.segmentStart,
		End:   mono,
	}
	d.events = append(d.events, ev)

	slog.Debug("state transition",
		"from", d.committed,
		"to", next,
		"segment_ms", ev.Duration().Milliseconds())

	if d.onTransition != nil {
		d.onTransition(ev)
	}

	d.committed = next
	d.segmentStart = mono
	d.hasPending = false
}
