// Package think separates a model's thinking trace from the answer text in
// streamed output.
package think

import (
	"strings"
)

const (
	OpenMarker  = "<think>"
	CloseMarker = "</think>"
	// InProgressSuffix is appended to thinking text whose block hasn't been
	// closed yet.
	InProgressSuffix = "..."
)

// Result is the view of an accumulated response at one point in time.
type Result struct {
	// Visible is the answer text with thinking markup removed.
	Visible string
	// Thinking is the text inside the thinking block, if any.
	Thinking string
	// Open is true when an opening marker has been seen without a closing one.
	Open bool
}

func (r Result) HasThinking() bool {
	return r.Thinking != ""
}

// Parse extracts the first thinking block from raw, which must be the full
// text accumulated so far rather than the latest fragment. It never fails;
// text without markers is returned (trimmed) as visible text.
func Parse(raw string) Result {
	start := strings.Index(raw, OpenMarker)
	if start < 0 {
		return Result{Visible: strings.TrimSpace(raw)}
	}
	inner := raw[start+len(OpenMarker):]
	end := strings.Index(inner, CloseMarker)
	if end < 0 {
		return Result{
			Visible:  strings.TrimSpace(raw[:start]),
			Thinking: strings.TrimSpace(inner) + InProgressSuffix,
			Open:     true,
		}
	}
	// Only the first pair is removed; any later markers stay in the answer.
	rest := inner[end+len(CloseMarker):]
	return Result{
		Visible:  strings.TrimSpace(raw[:start] + rest),
		Thinking: strings.TrimSpace(inner[:end]),
	}
}

// Finalize parses raw for the last time. A block that was never closed keeps
// its in-progress text but is no longer reported as open.
func Finalize(raw string) Result {
	r := Parse(raw)
	r.Open = false
	return r
}

// PendingMarker returns how many trailing bytes of visible could be the start
// of an opening marker that hasn't fully arrived yet, e.g. 4 for "Hi <thi".
// Renderers should hold those bytes back until more text arrives.
func PendingMarker(visible string) int {
	return partialSuffix(visible, OpenMarker)
}

// PendingCloseMarker is PendingMarker for the text of an open thinking block,
// e.g. 5 for "reasoning</thi".
func PendingCloseMarker(thinking string) int {
	return partialSuffix(thinking, CloseMarker)
}

// partialSuffix returns the length of the longest suffix of s that is a proper
// prefix of marker.
func partialSuffix(s, marker string) int {
	n := len(marker) - 1
	if len(s) < n {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
