package think

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Result
	}{
		{
			name: "no markers",
			raw:  "  Hello world \n",
			want: Result{Visible: "Hello world"},
		},
		{
			name: "empty",
			raw:  "",
			want: Result{},
		},
		{
			name: "complete block",
			raw:  "<think> reasoning </think>answer",
			want: Result{Visible: "answer", Thinking: "reasoning"},
		},
		{
			name: "text around block",
			raw:  "Before <think>why</think> after",
			want: Result{Visible: "Before  after", Thinking: "why"},
		},
		{
			name: "unterminated block",
			raw:  "Intro <think>still going",
			want: Result{Visible: "Intro", Thinking: "still going...", Open: true},
		},
		{
			name: "bare opening marker",
			raw:  "<think>",
			want: Result{Thinking: "...", Open: true},
		},
		{
			name: "only first pair is recognized",
			raw:  "<think>one</think>answer <think>two</think>",
			want: Result{Visible: "answer <think>two</think>", Thinking: "one"},
		},
		{
			name: "closing marker before opening marker",
			raw:  "</think>text<think>late",
			want: Result{Visible: "</think>text", Thinking: "late...", Open: true},
		},
		{
			name: "stray closing marker only",
			raw:  "oops</think>",
			want: Result{Visible: "oops</think>"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestParseCompleteBlockHasNoMarkers(t *testing.T) {
	inputs := []string{
		"<think>a</think>b",
		"x<think>\n\nlong\nreasoning\n</think>\n\ny",
		"<think></think>",
	}
	for _, raw := range inputs {
		r := Parse(raw)
		assert.False(t, r.Open, raw)
		assert.NotContains(t, r.Visible, OpenMarker, raw)
		assert.NotContains(t, r.Visible, CloseMarker, raw)
		interior := raw[strings.Index(raw, OpenMarker)+len(OpenMarker) : strings.Index(raw, CloseMarker)]
		assert.Equal(t, strings.TrimSpace(interior), r.Thinking, raw)
	}
}

func TestParseIsIdempotent(t *testing.T) {
	raw := "pre <think>mid</think> post"
	assert.Equal(t, Parse(raw), Parse(raw))
}

func TestParseAcrossFragments(t *testing.T) {
	fragments := []string{"<thi", "nk>reasoning</thi", "nk>answer"}
	var raw string
	var r Result
	for _, f := range fragments {
		raw += f
		r = Parse(raw)
	}
	assert.Equal(t, Result{Visible: "answer", Thinking: "reasoning"}, r)
}

func TestFinalizeClosesOpenBlock(t *testing.T) {
	r := Finalize("<think>partial")
	assert.Equal(t, Result{Thinking: "partial..."}, r)
}

func TestPendingMarker(t *testing.T) {
	assert.Equal(t, 0, PendingMarker(""))
	assert.Equal(t, 0, PendingMarker("Hello"))
	assert.Equal(t, 1, PendingMarker("Hello <"))
	assert.Equal(t, 4, PendingMarker("Hello <thi"))
	assert.Equal(t, 6, PendingMarker("<think"))
	// A complete marker is handled by Parse, not held back.
	assert.Equal(t, 0, PendingMarker("a <think>"))
}

func TestPendingCloseMarker(t *testing.T) {
	assert.Equal(t, 0, PendingCloseMarker(""))
	assert.Equal(t, 0, PendingCloseMarker("reasoning"))
	assert.Equal(t, 1, PendingCloseMarker("reasoning<"))
	assert.Equal(t, 2, PendingCloseMarker("reasoning</"))
	assert.Equal(t, 5, PendingCloseMarker("reasoning</thi"))
	assert.Equal(t, 0, PendingCloseMarker("reasoning <thi"))
	assert.Equal(t, 0, PendingCloseMarker("a</think>"))
}

func TestDetectReasoning(t *testing.T) {
	text := "Let me think about this step by step: check the inputs\nthen the outputs\n\nThe answer is 4."
	reasoning, ok := DetectReasoning(text)
	require.True(t, ok)
	assert.Equal(t, "check the inputs\nthen the outputs", reasoning)

	reasoning, ok = DetectReasoning("I need to consider: the cost\nTherefore, buy it.")
	require.True(t, ok)
	assert.Equal(t, "the cost", reasoning)

	reasoning, ok = DetectReasoning("thinking through this. it ends here")
	require.True(t, ok)
	assert.Equal(t, "it ends here", reasoning)

	_, ok = DetectReasoning("The answer is 4.")
	assert.False(t, ok)

	_, ok = DetectReasoning("First, let me analyze")
	assert.False(t, ok)
}
