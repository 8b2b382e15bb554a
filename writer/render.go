package writer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blixt/nexus/stream"
	"github.com/blixt/nexus/think"
)

// Renderer turns response snapshots into Writer output. Snapshots carry the
// whole answer so far; only the part not yet written is forwarded.
type Renderer struct {
	w            *Writer
	model        string
	showThinking bool

	mu       sync.Mutex
	label    string
	thinking string
	visible  string
	finished bool
}

// NewRenderer returns a renderer for an answer from model. Thinking traces are
// only printed when showThinking is set.
func NewRenderer(w *Writer, model string, showThinking bool) *Renderer {
	r := &Renderer{w: w, model: model, showThinking: showThinking}
	r.setLabel(fmt.Sprintf("%s is responding...", model))
	return r
}

// Connected marks the stream as open; until the first text arrives the label
// says the model is streaming.
func (r *Renderer) Connected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || r.started() {
		return
	}
	r.setLabel(fmt.Sprintf("%s is streaming...", r.model))
}

// Observe is a stream.Observer.
func (r *Renderer) Observe(s stream.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	if s.Failed {
		r.finished = true
		if r.started() {
			r.write("\n\n")
		}
		r.write(s.Visible)
		r.w.Done()
		return
	}

	if s.ThinkingOpen && r.visible == "" {
		r.setLabel(fmt.Sprintf("%s is thinking deeply...", r.model))
	}
	if r.showThinking && r.visible == "" && s.Thinking != "" {
		thinking := s.Thinking
		if s.ThinkingOpen {
			thinking = strings.TrimSuffix(thinking, think.InProgressSuffix)
			thinking = thinking[:len(thinking)-think.PendingCloseMarker(thinking)]
		}
		if r.thinking == "" && thinking != "" {
			r.write("Thinking: ")
		}
		r.thinking = r.emit(thinking, r.thinking, false)
	}

	visible := s.Visible
	if !s.Done() {
		visible = visible[:len(visible)-think.PendingMarker(visible)]
	}
	if visible != "" && !s.ThinkingOpen {
		if r.visible == "" && r.thinking != "" {
			r.write("\n\n")
		}
		r.visible = r.emit(visible, r.visible, s.Complete)
	}

	if s.Complete {
		r.finished = true
		r.w.Done()
	}
}

func (r *Renderer) started() bool {
	return r.visible != "" || r.thinking != ""
}

// emit writes whatever target adds on top of written and returns the new
// written text. Text that doesn't extend what was written (a trimmed trailing
// space, for example) is held back, unless it's final, in which case it's
// written in full on a new paragraph.
func (r *Renderer) emit(target, written string, final bool) string {
	switch {
	case strings.HasPrefix(target, written):
		r.write(target[len(written):])
		return target
	case strings.HasPrefix(written, target):
		return written
	case final:
		r.write("\n\n" + target)
		return target
	default:
		return written
	}
}

func (r *Renderer) write(s string) {
	if s != "" {
		fmt.Fprint(r.w, s)
	}
}

func (r *Renderer) setLabel(label string) {
	if label == r.label {
		return
	}
	r.label = label
	r.w.SetTask(label)
}
