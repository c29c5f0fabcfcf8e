package notify

import (
	"sync"
	"time"
)

// TypingTracker tracks the counterparty's typing indicator. A typing event
// sets the flag and arms a silence timeout; repeat events refresh it, an
// explicit stop clears it early.
type TypingTracker struct {
	timeout  time.Duration
	onChange func(bool)

	mu      sync.Mutex
	timer   *time.Timer
	active  bool
	stopped bool
}

// NewTypingTracker creates a tracker. onChange (optional) fires on every
// flag transition.
func NewTypingTracker(timeout time.Duration, onChange func(bool)) *TypingTracker {
	return &TypingTracker{timeout: timeout, onChange: onChange}
}

// Touch records a typing event: raises the flag and restarts the silence
// timeout.
func (t *TypingTracker) Touch() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	changed := !t.active
	t.active = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, t.silence)
	t.mu.Unlock()
	if changed && t.onChange != nil {
		t.onChange(true)
	}
}

func (t *TypingTracker) silence() {
	t.mu.Lock()
	if t.stopped || !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.timer = nil
	t.mu.Unlock()
	if t.onChange != nil {
		t.onChange(false)
	}
}

// Clear drops the flag immediately (explicit stop-typing event).
func (t *TypingTracker) Clear() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	changed := t.active
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	if changed && t.onChange != nil {
		t.onChange(false)
	}
}

// Active reports the current flag.
func (t *TypingTracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Stop cancels the timeout for teardown.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
}

// TypingEmitter drives the local side of the typing protocol: the first
// non-empty keystroke emits start exactly once, emptying the composer or
// sending emits stop exactly once.
type TypingEmitter struct {
	start func()
	stop  func()

	mu     sync.Mutex
	typing bool
}

func NewTypingEmitter(start, stop func()) *TypingEmitter {
	return &TypingEmitter{start: start, stop: stop}
}

// Input reflects the current composer text.
func (e *TypingEmitter) Input(text string) {
	e.mu.Lock()
	switch {
	case text != "" && !e.typing:
		e.typing = true
		e.mu.Unlock()
		e.start()
	case text == "" && e.typing:
		e.typing = false
		e.mu.Unlock()
		e.stop()
	default:
		e.mu.Unlock()
	}
}

// Sent clears the typing state after a message went out.
func (e *TypingEmitter) Sent() {
	e.mu.Lock()
	if !e.typing {
		e.mu.Unlock()
		return
	}
	e.typing = false
	e.mu.Unlock()
	e.stop()
}

// Typing reports whether a start has been emitted without a matching stop.
func (e *TypingEmitter) Typing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typing
}
