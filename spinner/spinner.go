package spinner

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Animation []rune

var (
	Breathe = Animation("▉▊▋▌▍▎▏▎▍▌▋▊▉")
	Dots1   = Animation("⣾⣽⣻⢿⡿⣟⣯⣷")
	Dots2   = Animation("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")
)

func (a Animation) New() *Spinner {
	return New(os.Stdout, a)
}

// NewTo returns a spinner drawing to out instead of stdout.
func (a Animation) NewTo(out io.Writer) *Spinner {
	return New(out, a)
}

type Spinner struct {
	out      io.Writer
	frames   []rune
	interval time.Duration
	current  int
	label    string
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	wg       sync.WaitGroup
}

func New(out io.Writer, frames []rune) *Spinner {
	return &Spinner{
		out:      out,
		frames:   frames,
		interval: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
}

// SetLabel sets a label to show after the spinner. Set to an empty string to
// hide the label again.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
	s.draw()
}

// Start starts animating the spinner until Stop is called.
func (s *Spinner) Start() {
	s.mu.Lock()
	s.draw()
	s.mu.Unlock()
	ticker := time.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				ticker.Stop()
				fmt.Fprint(s.out, "\r\033[K")
				return
			case <-ticker.C:
				s.mu.Lock()
				s.current = (s.current + 1) % len(s.frames)
				s.draw()
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner and clears its line. It is safe to call more than
// once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// draw must be called with mu held.
func (s *Spinner) draw() {
	if s.label != "" {
		fmt.Fprintf(s.out, "\r\033[K%s %s", string(s.frames[s.current]), s.label)
	} else {
		fmt.Fprintf(s.out, "\r\033[K%s", string(s.frames[s.current]))
	}
}
