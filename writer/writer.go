package writer

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"
	"unicode"

	"golang.org/x/term"

	"github.com/blixt/nexus/spinner"
)

const (
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h"
	greenColor = "\033[32m"
	resetColor = "\033[0m"
)

// Writer prints text like it's being typed, wrapping words at the terminal
// width and showing a spinner whenever it's waiting for more text.
type Writer struct {
	out   io.Writer
	width int
	delay func(remaining int) time.Duration
	color bool
	quiet bool

	index  int
	stream []rune
	done   bool
	mu     sync.Mutex
	wg     sync.WaitGroup
	cond   *sync.Cond

	taskLabel string
	taskIndex int
}

type Option func(*Writer)

func WithOutput(out io.Writer) Option {
	return func(w *Writer) { w.out = out }
}

// WithWidth sets the line width instead of detecting it from the terminal.
func WithWidth(width int) Option {
	return func(w *Writer) { w.width = width }
}

// WithDelay sets how long to pause after each character given the number of
// characters still waiting. A nil func disables the typing effect.
func WithDelay(fn func(remaining int) time.Duration) Option {
	return func(w *Writer) { w.delay = fn }
}

func WithoutColor() Option {
	return func(w *Writer) { w.color = false }
}

// WithoutSpinner prints text only, for output that isn't a terminal.
func WithoutSpinner() Option {
	return func(w *Writer) { w.quiet = true }
}

func New(opts ...Option) *Writer {
	w := &Writer{
		out:   os.Stdout,
		delay: TypingDelay,
		color: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Write prints message in one go and waits until it's been typed out.
func Write(message string, opts ...Option) {
	w := New(opts...)
	fmt.Fprint(w, message)
	w.Done()
	w.StartAndWait()
}

// TypingDelay speeds up output the more text is waiting to be printed.
func TypingDelay(remaining int) time.Duration {
	ms := 5 + 35*math.Exp(-0.005*float64(remaining))
	return time.Duration(math.Max(ms, 5)) * time.Millisecond
}

// StartAndWait takes over the prompt, hiding the cursor, showing a spinner, and then
// outputting the response.
func (r *Writer) StartAndWait() {
	if r.color {
		fmt.Fprint(r.out, hideCursor)
		fmt.Fprint(r.out, greenColor)
	}
	sp := spinner.Dots1.NewTo(r.out)
	didStopSpinner := r.quiet
	if !r.quiet {
		sp.Start()
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		maxLineWidth := r.lineWidth()
		lineLength := 0
		var charsSinceSpace []rune
		var lastSeenTask string
		for {
			r.mu.Lock()
			// Keep rechecking the values until we have at least one character
			// to output, a task to update, or we are done.
			for r.index == len(r.stream) && !r.done && r.taskLabel == lastSeenTask {
				r.cond.Wait()
			}

			// Check if we have written all the characters and are done.
			if r.index == len(r.stream) && r.done {
				r.mu.Unlock()
				if !didStopSpinner {
					sp.Stop()
					didStopSpinner = true
				}
				break
			}

			// If we have a task and we're at the task index, show a spinner for it.
			if r.taskLabel != lastSeenTask && r.index == r.taskIndex {
				taskLabel := r.taskLabel
				r.mu.Unlock()
				lastSeenTask = taskLabel
				if r.quiet {
					continue
				}
				if didStopSpinner {
					sp = spinner.Dots1.NewTo(r.out)
					sp.Start()
					didStopSpinner = false
				}
				sp.SetLabel(taskLabel)
				// Any further output will have to wait until the spinner is done.
				continue
			}

			// Get the next character.
			next := r.stream[r.index]
			r.index++
			remaining := len(r.stream) - r.index
			r.mu.Unlock()

			if !didStopSpinner {
				sp.Stop()
				didStopSpinner = true
			}

			isNextSpace := unicode.IsSpace(next)
			if isNextSpace {
				charsSinceSpace = charsSinceSpace[:0]
			}

			shouldPrintNext := true
			if next == '\n' || lineLength >= maxLineWidth {
				numCharsSinceSpace := len(charsSinceSpace)
				if lineLength >= maxLineWidth && numCharsSinceSpace > 0 && numCharsSinceSpace < maxLineWidth/2 {
					// Move current word to the next line.
					fmt.Fprintf(r.out, "\033[%dD\033[K\n%s", numCharsSinceSpace, string(charsSinceSpace))
					lineLength = numCharsSinceSpace
				} else {
					fmt.Fprintln(r.out)
					lineLength = 0
				}
				// If whitespace is what causes the line to break, don't print it.
				if isNextSpace {
					shouldPrintNext = false
				}
			}

			if !isNextSpace {
				charsSinceSpace = append(charsSinceSpace, next)
			}

			if shouldPrintNext {
				fmt.Fprint(r.out, string(next))
				lineLength++
			}

			if r.delay != nil {
				time.Sleep(r.delay(remaining))
			}
		}
	}()
	r.wg.Wait()
	if r.color {
		fmt.Fprint(r.out, resetColor)
		fmt.Fprint(r.out, showCursor)
	}
	fmt.Fprintln(r.out)
}

func (r *Writer) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return 0, io.EOF
	}
	r.stream = append(r.stream, []rune(string(p))...)
	r.cond.Broadcast()
	return len(p), nil
}

func (r *Writer) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.cond.Broadcast()
}

// SetTask shows label next to the spinner once everything written so far has
// been printed. An empty label hides it.
func (r *Writer) SetTask(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.taskLabel = label
	r.taskIndex = len(r.stream)
	r.cond.Broadcast()
}

// Determine maximum line width, capped at 100 characters.
func (r *Writer) lineWidth() int {
	if r.width > 0 {
		return r.width
	}
	maxLineWidth := 100
	if f, ok := r.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width < maxLineWidth {
			maxLineWidth = width
		}
	}
	return maxLineWidth
}
