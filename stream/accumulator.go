// Package stream assembles streamed response fragments into a continuously
// updated view of the answer and its thinking trace.
package stream

import (
	"errors"
	"strings"
	"sync"

	"github.com/blixt/nexus/think"
)

// State is a snapshot of an in-flight (or finished) response.
type State struct {
	// Raw is every fragment received so far, in arrival order.
	Raw string
	// Visible is the answer text, or the failure message once Failed is set.
	Visible      string
	Thinking     string
	ThinkingOpen bool
	Complete     bool
	Failed       bool
	Err          *Error
}

// Done reports whether the state has reached a terminal transition.
func (s State) Done() bool {
	return s.Complete || s.Failed
}

// Observer receives a snapshot after every change.
type Observer func(State)

// Accumulator owns the state of one response. Once it has completed or
// failed, further events are ignored.
type Accumulator struct {
	mu       sync.Mutex
	raw      strings.Builder
	state    State
	observer Observer
}

func New(observer Observer) *Accumulator {
	return &Accumulator{observer: observer}
}

// OnFragment appends token and re-parses everything received so far. It
// returns false if the accumulator is already done.
func (a *Accumulator) OnFragment(token string) bool {
	a.mu.Lock()
	if a.state.Done() {
		a.mu.Unlock()
		return false
	}
	a.raw.WriteString(token)
	a.apply(think.Parse(a.raw.String()))
	snapshot := a.state
	a.mu.Unlock()
	a.notify(snapshot)
	return true
}

// OnComplete marks the stream as finished and does one last parse.
func (a *Accumulator) OnComplete() bool {
	a.mu.Lock()
	if a.state.Done() {
		a.mu.Unlock()
		return false
	}
	a.apply(think.Finalize(a.raw.String()))
	a.state.Complete = true
	snapshot := a.state
	a.mu.Unlock()
	a.notify(snapshot)
	return true
}

// OnError marks the stream as failed. The visible text is replaced with the
// user-facing message for the error's kind.
func (a *Accumulator) OnError(err error) bool {
	a.mu.Lock()
	if a.state.Done() {
		a.mu.Unlock()
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		e = NewError(ConnectionLost, err)
	}
	a.apply(think.Finalize(a.raw.String()))
	a.state.Visible = e.Kind.Message()
	a.state.Failed = true
	a.state.Err = e
	snapshot := a.state
	a.mu.Unlock()
	a.notify(snapshot)
	return true
}

func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Accumulator) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Done()
}

func (a *Accumulator) apply(r think.Result) {
	a.state.Raw = a.raw.String()
	a.state.Visible = r.Visible
	a.state.Thinking = r.Thinking
	a.state.ThinkingOpen = r.Open
}

func (a *Accumulator) notify(s State) {
	if a.observer != nil {
		a.observer(s)
	}
}
